package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/txrelay/internal/tx"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Database string
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Show a stored transaction",
		Long: `Show the status, priority and dependencies of a stored transaction.

Examples:
  txrelay status --db ./relay.db t1
  txrelay status --db ./relay.db t1 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, args[0], cmd)
		},
	}

	dbFlag(cmd, &opts.Database)
	return cmd
}

func runStatus(opts *StatusOptions, id string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	st, err := opts.openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := st.Get(context.Background(), tx.NormalizeID(id))
	if err != nil {
		return f.Fail("status query failed", err)
	}
	return f.Success(newTxView(rec))
}
