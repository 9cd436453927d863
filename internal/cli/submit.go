package cli

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/txrelay/internal/tx"
)

// SubmitOptions holds flags for the submit command.
type SubmitOptions struct {
	*RootOptions
	Database     string
	ID           string
	Priority     uint32
	Dependencies []string
	Text         bool
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "submit <raw>",
		Short: "Insert a transaction directly into the store",
		Long: `Insert one pending transaction directly into the store.

The payload is hex-encoded unless --text is given. Without --id the id is
derived from the payload. A running node picks the record up on its next
poll.

Examples:
  txrelay submit --db ./relay.db deadbeef
  txrelay submit --db ./relay.db --id t2 --priority 0 --depends-on t1 --text "hello"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(opts, args[0], cmd)
		},
	}

	dbFlag(cmd, &opts.Database)
	cmd.Flags().StringVar(&opts.ID, "id", "", "transaction id (default: sha256 of the payload)")
	cmd.Flags().Uint32Var(&opts.Priority, "priority", 0, "dispatch priority (lower goes first)")
	cmd.Flags().StringSliceVar(&opts.Dependencies, "depends-on", nil, "ids that must propagate first (repeatable)")
	cmd.Flags().BoolVar(&opts.Text, "text", false, "treat the payload as text instead of hex")

	return cmd
}

func runSubmit(opts *SubmitOptions, arg string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	raw := []byte(arg)
	if !opts.Text {
		decoded, err := hex.DecodeString(arg)
		if err != nil {
			_ = f.Error(CodeInvalidPayload, "payload is not valid hex", nil)
			return WrapExitError(ExitCodeFor(CodeInvalidPayload), "invalid payload", err)
		}
		raw = decoded
	}

	id := tx.NormalizeID(opts.ID)
	if id == "" {
		id = tx.ContentID(raw)
	}
	var deps []string
	for _, dep := range opts.Dependencies {
		deps = append(deps, tx.NormalizeID(dep))
	}

	st, err := opts.openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	rec := tx.NewPending(id, raw, opts.Priority, deps, time.Now())
	if err := st.Create(context.Background(), []tx.Record{rec}); err != nil {
		return f.Fail("submit rejected", err)
	}

	f.VerboseLog("stored %s with %d dependencies", id, len(deps))
	return f.Success(SubmitView{IDs: []string{id}})
}
