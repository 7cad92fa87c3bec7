package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/pacer/internal/performance/config"
	"github.com/wesleyorama2/pacer/internal/performance/executor"
)

func newValidateCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a scenario file without running it",
		Long: `Parse a scenario file, apply defaults and report every configuration
error at once. A custom profile is loaded to check its entries.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateScenario(cmd, configFile)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Scenario file (YAML or JSON)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func validateScenario(cmd *cobra.Command, configFile string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	prof, err := cfg.LoadProfile()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	ok := color.New(color.FgGreen)
	label := color.New(color.Bold)

	ok.Fprintf(out, "✓ %s is valid\n", configFile)
	if cfg.Name != "" {
		fmt.Fprintf(out, "  %s %s\n", label.Sprint("Name:     "), cfg.Name)
	}
	fmt.Fprintf(out, "  %s %s\n", label.Sprint("Run:      "), cfg.RunPeriod())
	fmt.Fprintf(out, "  %s %s, up to %d threads\n", label.Sprint("Generator:"), cfg.Generator.Type, cfg.MaxThreads(prof))
	if executor.Type(cfg.Generator.Type) == executor.TypeCustomProfile && prof != nil {
		fmt.Fprintf(out, "  %s %d entries\n", label.Sprint("Profile:  "), len(prof.Entries()))
	}
	fmt.Fprintf(out, "  %s %s, pool of %d\n", label.Sprint("Sender:   "), cfg.Sender.Type, cfg.SenderPoolSize(prof))
	fmt.Fprintf(out, "  %s %d\n", label.Sprint("Messages: "), len(cfg.Messages))
	if cfg.Validation.IsEnabled() {
		fmt.Fprintf(out, "  %s %d validators\n", label.Sprint("Validation:"), len(cfg.Validation.Validators))
	}
	if cfg.Receiver != nil {
		fmt.Fprintf(out, "  %s %s%s\n", label.Sprint("Receiver: "), cfg.Receiver.Address, cfg.Receiver.Path)
	}

	return nil
}
