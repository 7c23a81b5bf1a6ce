package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spineio/spineweb.go/pkg/models"
)

func (a *app) newSubscribeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Print the changes of entities of a type until interrupted",
		Long: `Print the changes of entities of a type until interrupted.

Each line holds the kind of change (added, changed or removed), a tab and
the entity as JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			typeName, _ := cmd.Flags().GetString("type")
			ids, _ := cmd.Flags().GetStringSlice("ids")
			numeric, _ := cmd.Flags().GetBool("numeric-ids")
			mask, _ := cmd.Flags().GetStringSlice("mask")

			typeURL := models.TypeURL(typeName)
			if err := typeURL.Validate(); err != nil {
				return err
			}
			lifted, err := liftIDs(ids, numeric)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client, closeClient, err := a.connect(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeClient()

			if err := registerFallback(client, typeURL); err != nil {
				return err
			}

			topic, err := client.Topic(typeURL).ByIDs(lifted...).WithMask(mask...).Build()
			if err != nil {
				return err
			}
			es, err := client.Subscribe(ctx, topic)
			if err != nil {
				return err
			}
			defer client.Unsubscribe(es)

			added, cancelAdded := es.ItemAdded().Subscribe()
			defer cancelAdded()
			changed, cancelChanged := es.ItemChanged().Subscribe()
			defer cancelChanged()
			removed, cancelRemoved := es.ItemRemoved().Subscribe()
			defer cancelRemoved()

			out := cmd.OutOrStdout()
			for {
				var err error
				select {
				case <-ctx.Done():
					return nil
				case m, ok := <-added:
					if !ok {
						return nil
					}
					err = printMessage(out, "added", m)
				case m, ok := <-changed:
					if !ok {
						return nil
					}
					err = printMessage(out, "changed", m)
				case m, ok := <-removed:
					if !ok {
						return nil
					}
					err = printMessage(out, "removed", m)
				}
				if err != nil {
					return err
				}
			}
		},
	}

	flags := cmd.Flags()
	flags.String("type", "", "type URL of the entities")
	flags.StringSlice("ids", nil, "ids of the entities to watch, all entities when empty")
	flags.Bool("numeric-ids", false, "send --ids as numbers instead of strings")
	flags.StringSlice("mask", nil, "fields to include in each entity")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}
