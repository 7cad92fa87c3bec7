package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/pacer/internal/logging"
	"github.com/wesleyorama2/pacer/internal/message"
	"github.com/wesleyorama2/pacer/internal/performance/config"
	"github.com/wesleyorama2/pacer/internal/performance/engine"
	"github.com/wesleyorama2/pacer/internal/performance/output"
	"github.com/wesleyorama2/pacer/internal/performance/report"
	"github.com/wesleyorama2/pacer/internal/sender"
)

// errRunFailed is returned when a run finished but did not pass.
var errRunFailed = errors.New("run failed")

type runOptions struct {
	configFile string

	// Quick mode
	url        string
	generator  string
	threads    int
	iterations int64
	duration   string
	speed      int
	failFast   bool

	// Output
	metricsAddr string
	outputFile  string
	htmlFile    string
	jsonOutput  bool
	quiet       bool
	noColor     bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a load generation scenario",
		Long: `Run a load generation scenario from a file or from flags.

Examples:
  # Run a scenario file
  pacer run -c scenario.yaml

  # 1000 GET requests with 10 workers
  pacer run --url http://localhost:8080/health --threads 10 --iterations 1000

  # 50 requests per second for a minute
  pacer run --url http://localhost:8080/orders --generator constant-speed --speed 50 --duration 1m

  # Override the generator of a scenario file
  pacer run -c scenario.yaml --threads 20 --fail-fast

  # Keep an HTML report with throughput and latency charts
  pacer run -c scenario.yaml --html report.html`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "Scenario file (YAML or JSON)")
	flags.StringVar(&opts.url, "url", "", "Target URL for a quick HTTP run without a scenario file")
	flags.StringVar(&opts.generator, "generator", "", "Generator type (fixed, constant-speed, ramp-up-down, custom-profile)")
	flags.IntVar(&opts.threads, "threads", 0, "Number of workers")
	flags.Int64Var(&opts.iterations, "iterations", 0, "Run until this many iterations were admitted")
	flags.StringVar(&opts.duration, "duration", "", "Run for this long (e.g. 30s, 5m)")
	flags.IntVar(&opts.speed, "speed", 0, "Iterations per second (constant-speed)")
	flags.BoolVar(&opts.failFast, "fail-fast", false, "Stop the run at the first failed iteration")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	flags.StringVarP(&opts.outputFile, "output", "o", "", "Write the JSON result to this file")
	flags.StringVar(&opts.htmlFile, "html", "", "Write an HTML report to this file")
	flags.BoolVar(&opts.jsonOutput, "json", false, "Print the JSON result instead of the summary")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "Only print PASSED or FAILED")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	return cmd
}

func runScenario(cmd *cobra.Command, opts *runOptions) error {
	cfg, err := loadRunConfig(cmd, opts)
	if err != nil {
		return err
	}
	cfg.ApplyDefaults()

	logger := logging.Logger.Named("run")
	out := cmd.OutOrStdout()

	console := output.NewConsoleOutput(output.ConsoleOutputConfig{
		Name:      cfg.Name,
		Generator: cfg.Generator.Type,
		Period:    cfg.RunPeriod().String(),
		Writer:    out,
		Quiet:     opts.quiet,
		NoColor:   opts.noColor,
	})

	engineOpts := []engine.Option{engine.WithLogger(logger)}
	if !opts.jsonOutput {
		engineOpts = append(engineOpts, engine.WithDestinations(console))
	}
	var series *report.TimeSeries
	if opts.htmlFile != "" {
		series = report.NewTimeSeries()
		engineOpts = append(engineOpts, engine.WithDestinations(series))
	}
	if opts.metricsAddr != "" {
		engineOpts = append(engineOpts, engine.WithMetricsAddress(opts.metricsAddr))
	}

	eng, err := engine.NewEngine(cfg, engineOpts...)
	if err != nil {
		return err
	}

	ctx, cancel := logging.RootContext()
	defer cancel()

	if !opts.jsonOutput {
		console.PrintHeader()
	}

	result, runErr := eng.Run(ctx)
	if result == nil {
		return runErr
	}

	if opts.jsonOutput {
		if err := output.WriteJSON(out, result); err != nil {
			return fmt.Errorf("failed to write result: %w", err)
		}
	} else {
		console.PrintSummary(result)
	}

	if opts.outputFile != "" {
		if err := output.WriteJSONFile(opts.outputFile, result); err != nil {
			return err
		}
		logger.Infow("result written", "file", opts.outputFile)
	}
	if series != nil {
		if err := report.GenerateHTML(result, series.Points(), opts.htmlFile); err != nil {
			return err
		}
		logger.Infow("HTML report written", "file", opts.htmlFile)
	}

	if runErr != nil {
		return runErr
	}
	if !result.Passed {
		return errRunFailed
	}
	return nil
}

// loadRunConfig reads the scenario file or builds one from the quick mode
// flags, then applies the flags that were set explicitly.
func loadRunConfig(cmd *cobra.Command, opts *runOptions) (*config.TestConfig, error) {
	switch {
	case opts.configFile != "" && opts.url != "":
		return nil, errors.New("--config and --url are mutually exclusive")
	case opts.configFile != "":
		cfg, err := config.LoadConfig(opts.configFile)
		if err != nil {
			return nil, err
		}
		if err := applyOverrides(cmd, cfg, opts); err != nil {
			return nil, err
		}
		return cfg, nil
	case opts.url != "":
		return buildConfigFromCLI(opts)
	default:
		return nil, errors.New("either --config or --url is required")
	}
}

// buildConfigFromCLI creates a single message HTTP scenario.
func buildConfigFromCLI(opts *runOptions) (*config.TestConfig, error) {
	generator := opts.generator
	if generator == "" {
		generator = "fixed"
	}
	threads := opts.threads
	if threads <= 0 {
		threads = 10
	}

	cfg := &config.TestConfig{
		Name:        "cli-run",
		Description: "Run generated from CLI flags for " + opts.url,
		Generator: config.GeneratorConfig{
			Type:     generator,
			Threads:  threads,
			Speed:    opts.speed,
			FailFast: opts.failFast,
		},
		Sender: config.SenderConfig{
			Type:   string(sender.TypeHTTP),
			Target: opts.url,
			Method: "GET",
		},
		Messages: []*message.Template{{Name: "cli-request"}},
	}

	switch {
	case opts.iterations > 0 && opts.duration != "":
		return nil, errors.New("--iterations and --duration are mutually exclusive")
	case opts.iterations > 0:
		cfg.Run = config.RunConfig{Type: config.RunIteration, Iterations: opts.iterations}
	default:
		duration := opts.duration
		if duration == "" {
			duration = "30s"
		}
		d, err := config.ParseDurationString(duration)
		if err != nil {
			return nil, fmt.Errorf("invalid --duration: %w", err)
		}
		cfg.Run = config.RunConfig{Type: config.RunTime, Duration: config.Duration(d)}
	}

	return cfg, nil
}

// applyOverrides applies the flags that were set on top of a scenario file.
func applyOverrides(cmd *cobra.Command, cfg *config.TestConfig, opts *runOptions) error {
	flags := cmd.Flags()

	if flags.Changed("generator") {
		cfg.Generator.Type = opts.generator
	}
	if flags.Changed("threads") {
		cfg.Generator.Threads = opts.threads
	}
	if flags.Changed("speed") {
		cfg.Generator.Speed = opts.speed
	}
	if flags.Changed("fail-fast") {
		cfg.Generator.FailFast = opts.failFast
	}
	if flags.Changed("iterations") && flags.Changed("duration") {
		return errors.New("--iterations and --duration are mutually exclusive")
	}
	if flags.Changed("iterations") {
		cfg.Run = config.RunConfig{Type: config.RunIteration, Iterations: opts.iterations}
	}
	if flags.Changed("duration") {
		d, err := config.ParseDurationString(opts.duration)
		if err != nil {
			return fmt.Errorf("invalid --duration: %w", err)
		}
		cfg.Run = config.RunConfig{Type: config.RunTime, Duration: config.Duration(d)}
	}
	return nil
}
