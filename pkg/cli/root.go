// Package cli contains the streamctl Cobra commands for inspecting and
// feeding a stream.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/downfa11-org/go-streams/pkg/config"
	"github.com/downfa11-org/go-streams/pkg/publisher"
	"github.com/downfa11-org/go-streams/pkg/stream"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// LogFactory opens the stream log the commands operate on.
type LogFactory func(cfg *config.Config, logger *slog.Logger) (stream.Log, error)

// RedisLogFactory connects to the Redis server named by cfg.
func RedisLogFactory(cfg *config.Config, logger *slog.Logger) (stream.Log, error) {
	return stream.NewRedisLog(stream.NewRedisClient(cfg.ClientOptions(logger))), nil
}

type app struct {
	open   LogFactory
	flags  *flag.FlagSet
	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCommand constructs the streamctl root command. Settings come from the
// same file, environment and flags as the publisher and consumer.
func NewRootCommand(open LogFactory) *cobra.Command {
	if open == nil {
		open = RedisLogFactory
	}
	a := &app{open: open, flags: flag.NewFlagSet("streamctl", flag.ContinueOnError)}
	config.BindFlags(a.flags, config.Default())

	root := &cobra.Command{
		Use:           "streamctl",
		Short:         "Inspect and operate a Redis stream and its consumer groups",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.resolve(cmd)
		},
	}
	root.PersistentFlags().AddGoFlagSet(a.flags)

	root.AddCommand(
		newInfoCommand(a),
		newGroupsCommand(a),
		newPendingCommand(a),
		newPublishCommand(a),
		newCreateGroupCommand(a),
	)
	return root
}

func (a *app) resolve(cmd *cobra.Command) error {
	overrides := make(map[string]string)
	path := os.Getenv("CONFIG_PATH")

	a.flags.VisitAll(func(f *flag.Flag) {
		if !cmd.Flags().Changed(f.Name) {
			return
		}
		value := cmd.Flags().Lookup(f.Name).Value.String()
		if f.Name == "config" {
			path = value
			return
		}
		overrides[f.Name] = value
	})

	cfg, err := config.Resolve(path, os.LookupEnv, overrides)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = cfg.NewLogger(cmd.ErrOrStderr())
	return nil
}

func (a *app) withLog(fn func(l stream.Log) error) error {
	l, err := a.open(a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := l.Close(); cerr != nil {
			a.logger.Warn("failed to close stream client", "error", cerr)
		}
	}()
	return fn(l)
}

func newInfoCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show stream metadata",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withLog(func(l stream.Log) error {
				info, err := l.Info(cmd.Context(), a.cfg.StreamName)
				if err != nil {
					return err
				}
				return writeYAML(cmd.OutOrStdout(), map[string]any(info))
			})
		},
	}
}

func newGroupsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List consumer groups on the stream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withLog(func(l stream.Log) error {
				groups, err := l.Groups(cmd.Context(), a.cfg.StreamName)
				if err != nil {
					return err
				}
				return writeYAML(cmd.OutOrStdout(), groups)
			})
		},
	}
}

func newPendingCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List unacknowledged entries of the consumer group",
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt64("limit")
			return a.withLog(func(l stream.Log) error {
				pending, err := l.ListPending(cmd.Context(), a.cfg.StreamName, a.cfg.ConsumerGroup, stream.RangeMin, stream.RangeMax, limit)
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tCONSUMER\tIDLE\tDELIVERIES")
				for _, p := range pending {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", p.ID, p.Consumer, p.Idle, p.DeliveryCount)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().Int64("limit", 100, "Maximum entries to list")
	return cmd
}

func newPublishCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Publish a batch of generated messages (size from --count)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withLog(func(l stream.Log) error {
				p := publisher.New(l, publisher.Options{
					Stream:      a.cfg.StreamName,
					Compression: a.cfg.Compression,
					Logger:      a.logger,
				})
				ids, err := p.PublishBatch(cmd.Context(), a.cfg.PublisherMessageCount)
				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return err
			})
		},
	}
}

func newCreateGroupCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-group",
		Short: "Create the consumer group, creating the stream if needed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, _ := cmd.Flags().GetString("start")
			return a.withLog(func(l stream.Log) error {
				err := l.CreateGroup(cmd.Context(), a.cfg.StreamName, a.cfg.ConsumerGroup, start, true)
				switch {
				case errors.Is(err, stream.ErrGroupExists):
					fmt.Fprintf(cmd.OutOrStdout(), "group %s already exists on %s\n", a.cfg.ConsumerGroup, a.cfg.StreamName)
					return nil
				case err != nil:
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created group %s on %s\n", a.cfg.ConsumerGroup, a.cfg.StreamName)
				return nil
			})
		},
	}
	cmd.Flags().String("start", stream.StartLatest, "Starting id for the group ($ for new entries only, 0 for the whole stream)")
	return cmd
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
