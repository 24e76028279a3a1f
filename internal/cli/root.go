package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/storesync/internal/config"
)

// DefaultConfigPath is used when neither --config nor STORESYNC_CONFIG is set.
const DefaultConfigPath = "storesync.yaml"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	LogLevel   string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the storesync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	v := config.NewViper()

	cmd := &cobra.Command{
		Use:   "storesync",
		Short: "storesync - store master dataset synchronizer",
		Long: `Reconciles the stores master dataset with the store_deltas change queue.

New stores are geocoded and inserted, removed stores are deleted, and the
whole batch is applied as one unit of work. Failures are mailed to the
configured recipients.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			opts.ConfigPath = v.GetString("config")
			opts.LogLevel = v.GetString("log_level")
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output (forces debug logging)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringP("config", "c", DefaultConfigPath, "path to configuration file (env STORESYNC_CONFIG)")
	cmd.PersistentFlags().String("log-level", "", "log level override: debug, info, warn, error (env STORESYNC_LOG_LEVEL)")

	_ = v.BindPFlag("config", cmd.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag("log_level", cmd.PersistentFlags().Lookup("log-level"))

	// Add subcommands
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewPendingCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}
