package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/txrelay/internal/node"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Listen   string

	// Deps allows injecting node components (for testing).
	Deps node.Deps
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the relay node",
		Long: `Start the relay node.

The node opens the transaction store (creating it if it doesn't exist),
joins the gossip network, serves the ingress API and dispatches ready
transactions to peers until interrupted.

Example:
  txrelay run --config ./txrelay.yaml
  txrelay run --db /tmp/relay.db --listen 127.0.0.1:9000 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides storage.db_path)")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "ingress listen address (overrides ingress.listen)")

	return cmd
}

func runNode(opts *RunOptions, cmd *cobra.Command) error {
	opts.setupLogging(cmd.ErrOrStderr())

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.Database != "" {
		cfg.Storage.DBPath = opts.Database
	}
	if opts.Listen != "" {
		cfg.Ingress.Listen = opts.Listen
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	slog.Info("node starting", "db", cfg.Storage.DBPath, "ingress", cfg.Ingress.Listen)
	fmt.Fprintln(cmd.OutOrStdout(), "Relay node started. Press Ctrl-C to stop.")

	if err := node.Run(ctx, cfg, opts.Deps); err != nil {
		return WrapExitError(ExitFailure, "node error", err)
	}

	slog.Info("node stopped gracefully")
	return nil
}
