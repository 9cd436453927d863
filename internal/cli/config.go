package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/txrelay/internal/config"
)

// NewConfigCommand creates the config command.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration the node would run with: defaults, overlaid
with the config file, overlaid with TXRELAY_* environment variables.

Text output is YAML and can be saved as a starting config file.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}

			f := rootOpts.formatter(cmd)
			if f.Format == "json" {
				return f.Success(cfg)
			}
			out, err := config.Marshal(cfg)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to render config", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
