package main

import (
	"github.com/spf13/cobra"

	"github.com/spineio/spineweb.go/pkg/models"
)

func (a *app) newFetchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch entities of a type and print them as JSON, one per line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			typeName, _ := cmd.Flags().GetString("type")
			ids, _ := cmd.Flags().GetStringSlice("ids")
			numeric, _ := cmd.Flags().GetBool("numeric-ids")
			mask, _ := cmd.Flags().GetStringSlice("mask")
			atOnce, _ := cmd.Flags().GetBool("at-once")

			typeURL := models.TypeURL(typeName)
			if err := typeURL.Validate(); err != nil {
				return err
			}
			lifted, err := liftIDs(ids, numeric)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			client, closeClient, err := a.connect(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeClient()

			if err := registerFallback(client, typeURL); err != nil {
				return err
			}

			q, err := client.Query(typeURL).ByIDs(lifted...).WithMask(mask...).Build()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if atOnce {
				msgs, err := client.FetchAtOnce(ctx, q)
				if err != nil {
					return err
				}
				for _, m := range msgs {
					if err := printMessage(out, "", m); err != nil {
						return err
					}
				}
				return nil
			}

			stream := client.FetchOneByOne(ctx, q)
			defer stream.Close()
			for m := range stream.Items() {
				if err := printMessage(out, "", m); err != nil {
					return err
				}
			}
			<-stream.Done()
			return stream.Err()
		},
	}

	flags := cmd.Flags()
	flags.String("type", "", "type URL of the entities, e.g. type.spine.io/spine.examples.Task")
	flags.StringSlice("ids", nil, "ids of the entities to fetch, all entities when empty")
	flags.Bool("numeric-ids", false, "send --ids as numbers instead of strings")
	flags.StringSlice("mask", nil, "fields to include in each entity")
	flags.Bool("at-once", false, "wait for all results and read them together")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}
