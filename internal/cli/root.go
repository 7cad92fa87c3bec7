package cli

import (
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/pacer/internal/logging"
)

var version = "0.1.0"

// NewRootCmd builds the command tree. A fresh tree per call keeps flag state
// from leaking between invocations.
func NewRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:     "pacer",
		Short:   "A load generator that paces message senders",
		Version: version,
		Long: `Pacer drives message senders against a target system with a
configurable scheduling strategy: a fixed worker count, a constant speed,
a ramp up and down, or a custom profile. Runs are bounded by time or by
iteration count and report throughput, latency and failures as they go.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.SetLevelString(logLevel)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// If no subcommand is provided, print help
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	root.AddCommand(newRunCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newGeneratorsCmd())

	return root
}

// Execute runs the root command with the process arguments.
// This is called by main.main().
func Execute() error {
	defer logging.Sync()
	return NewRootCmd().Execute()
}
