// Command generate-sample-report runs a short ramp-up-down scenario against
// the dummy sender and writes its HTML report.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/wesleyorama2/pacer/internal/logging"
	"github.com/wesleyorama2/pacer/internal/message"
	"github.com/wesleyorama2/pacer/internal/performance/config"
	"github.com/wesleyorama2/pacer/internal/performance/engine"
	"github.com/wesleyorama2/pacer/internal/performance/report"
)

func main() {
	outputPath := "sample-report.html"
	if len(os.Args) > 1 {
		outputPath = os.Args[1]
	}

	if err := run(outputPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Sample report generated: %s\n", outputPath)
}

func run(outputPath string) error {
	ctx, cancel := logging.RootContext()
	defer cancel()

	series := report.NewTimeSeries()
	eng, err := engine.NewEngine(sampleConfig(),
		engine.WithLogger(logging.Logger.Named("sample")),
		engine.WithDestinations(series),
	)
	if err != nil {
		return err
	}

	result, err := eng.Run(ctx)
	if result == nil {
		return err
	}
	return report.GenerateHTML(result, series.Points(), outputPath)
}

func seconds(n int64) config.Span {
	return config.Span{Value: n * 1000, IsDuration: true}
}

func sampleConfig() *config.TestConfig {
	return &config.TestConfig{
		Name:        "Sample Ramp",
		Description: "Dummy sender with a 5ms service time, ramped from 2 to 16 threads and back",
		Run: config.RunConfig{
			Type:     config.RunTime,
			Duration: config.Duration(12 * time.Second),
		},
		Generator: config.GeneratorConfig{
			Type:      "ramp-up-down",
			Threads:   16,
			QueueSize: 16,
			Ramp: &config.RampConfig{
				PreThreads:     2,
				PreDuration:    seconds(2),
				UpStep:         2,
				UpStepPeriod:   seconds(1),
				MainThreads:    16,
				MainDuration:   seconds(8),
				DownStep:       4,
				DownStepPeriod: seconds(1),
				PostThreads:    2,
			},
		},
		Sender: config.SenderConfig{
			Type:      "dummy",
			Delay:     config.Duration(5 * time.Millisecond),
			FailEvery: 97,
		},
		Messages: []*message.Template{{Payload: `{"order": {{n}}}`}},
		Sequences: []config.SequenceConfig{
			{Name: "n", Type: "number", Start: 1, Step: 1},
		},
		Reporting: config.ReportingConfig{
			PublishInterval: config.Duration(250 * time.Millisecond),
		},
	}
}
