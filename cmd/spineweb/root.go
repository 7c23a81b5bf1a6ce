package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/spineio/spineweb.go"
	"github.com/spineio/spineweb.go/pkg/models"
	"github.com/spineio/spineweb.go/pkg/parser"
)

// app holds what the subcommands share.
type app struct {
	v *viper.Viper
	// opts are appended to the options derived from the config.
	opts []spineweb.Option
}

// NewRootCommand builds the spineweb command. Settings are read from flags,
// SPINEWEB_* environment variables and the --config file, in that order.
func NewRootCommand(opts ...spineweb.Option) *cobra.Command {
	a := &app{v: spineweb.NewViper(), opts: opts}

	root := &cobra.Command{
		Use:          "spineweb",
		Short:        "Query and subscribe to a backend delivering results through a push store",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString(configFlag)
			if path == "" {
				return nil
			}
			a.v.SetConfigFile(path)
			if err := a.v.ReadInConfig(); err != nil {
				return fmt.Errorf("read config %s: %w", path, err)
			}
			return nil
		},
	}
	bindConfigFlags(root, a.v)

	root.AddCommand(a.newFetchCommand(), a.newSubscribeCommand())
	return root
}

// connect builds a Client from the bound settings. The returned func closes
// the client and the log output.
func (a *app) connect(ctx context.Context, stderr io.Writer) (*spineweb.Client, func(), error) {
	cfg, err := spineweb.ConfigFromViper(a.v)
	if err != nil {
		return nil, nil, err
	}
	log, logCloser, err := cfg.NewLogger(stderr)
	if err != nil {
		return nil, nil, err
	}

	opts := append([]spineweb.Option{spineweb.WithLogger(log)}, a.opts...)
	client, err := spineweb.NewClient(ctx, cfg, opts...)
	if err != nil {
		_ = logCloser.Close()
		return nil, nil, err
	}
	return client, func() {
		if err := client.Close(); err != nil {
			log.Warn("close client", "error", err)
		}
		_ = logCloser.Close()
	}, nil
}

// registerFallback lets values of typeURL be printed without a generated
// message type by converting them to structpb.Value.
func registerFallback(client *spineweb.Client, typeURL models.TypeURL) error {
	if _, err := client.Registry().ParserFor(typeURL); err == nil {
		return nil
	}
	return client.RegisterParser(parser.ParserFunc(func(raw any) (proto.Message, error) {
		v, err := structpb.NewValue(raw)
		if err != nil {
			return nil, err
		}
		return v, nil
	}), typeURL)
}

func printMessage(w io.Writer, prefix string, msg proto.Message) error {
	data, err := protojson.Marshal(msg)
	if err != nil {
		return err
	}
	if prefix != "" {
		_, err = fmt.Fprintf(w, "%s\t%s\n", prefix, data)
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

// liftIDs converts the textual ids of --ids to the kind the builders expect.
func liftIDs(ids []string, numeric bool) ([]any, error) {
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		if !numeric {
			out = append(out, id)
			continue
		}
		var n int64
		if _, err := fmt.Sscan(id, &n); err != nil {
			return nil, fmt.Errorf("id %q is not numeric", id)
		}
		out = append(out, n)
	}
	return out, nil
}
