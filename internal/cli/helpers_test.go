package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/txrelay/internal/store"
	"github.com/roach88/txrelay/internal/tx"
)

func noEnv(string) (string, bool) { return "", false }

func testRootOptions(format string) *RootOptions {
	return &RootOptions{Format: format, LogFormat: "text", lookupEnv: noEnv}
}

// execute runs cmd with args and returns what it wrote to stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// seedDB creates a database holding records and returns its path.
func seedDB(t *testing.T, records ...tx.Record) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()
	if len(records) > 0 {
		require.NoError(t, st.Create(context.Background(), records))
	}
	return path
}
