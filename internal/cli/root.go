package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"KnowledgeScanner/internal/app"
	"KnowledgeScanner/internal/config"
	"KnowledgeScanner/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
}

// NewRootCommand creates the knowledgescanner command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "knowledgescanner",
		Short:         "Turn resolved tickets and internal mail into knowledge-base pages",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to the YAML config (default $KNOWLEDGE_SCANNER_CONFIG)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewPollCommand(opts))
	cmd.AddCommand(NewDrainCommand(opts))
	cmd.AddCommand(NewQueueCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))

	return cmd
}

func loadConfig(opts *RootOptions) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logging.New(cfg.Logging.Level, cfg.Logging.Format), nil
}

// withApp builds the application, runs fn and releases every connection.
func withApp(ctx context.Context, opts *RootOptions, fn func(context.Context, *app.Application) error) error {
	cfg, logger, err := loadConfig(opts)
	if err != nil {
		return err
	}
	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer application.Close()
	return fn(ctx, application)
}
