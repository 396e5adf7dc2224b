// Package cli implements the blobshard command line: the sequencer and storage node
// daemons, blob reconstruction and blob publishing.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KelvinWu602/blobshard/config"
	"github.com/KelvinWu602/blobshard/logging"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

// load reads the configuration and builds the logger for one command run.
func (o *rootOptions) load() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, nil, fmt.Errorf("loading config: %w", err)
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return cfg, nil, fmt.Errorf("building logger: %w", err)
	}
	return cfg, logger, nil
}

// NewRootCommand builds the blobshard command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "blobshard",
		Short:         "Erasure-coded blob availability storage",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config.yaml (defaults apply when empty)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(newSequencerCommand(opts))
	root.AddCommand(newNodeCommand(opts))
	root.AddCommand(newReconstructCommand(opts))
	root.AddCommand(newPublishCommand(opts))
	return root
}

// Execute runs the command tree. On failure the cause goes to stderr and the process
// exits with status 1.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
