package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/txrelay/internal/store"
)

// dbFlag registers the --db override shared by the store commands.
func dbFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVar(target, "db", "", "path to SQLite database (overrides storage.db_path)")
}

// openStore opens the database named by --db or the loaded config.
func (o *RootOptions) openStore(dbOverride string) (*store.Store, error) {
	path := dbOverride
	if path == "" {
		cfg, err := o.loadConfig()
		if err != nil {
			return nil, err
		}
		path = cfg.Storage.DBPath
	}

	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}
