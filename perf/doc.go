// Package perf runs pacer scenarios from Go code.
//
// It wraps the engine behind the CLI: the same scenario files, generators,
// senders and reports are available to programs and tests.
//
// # Quick Start
//
//	cfg, _ := perf.LoadConfig("scenario.yaml")
//	result, _ := perf.RunTest(context.Background(), cfg)
//
//	fmt.Printf("Iterations: %d\n", result.Metrics.Iterations)
//	fmt.Printf("P95: %v\n", result.Metrics.Latency.P95)
//	fmt.Printf("Passed: %v\n", result.Passed)
//
// # Building Scenarios
//
// Scenarios can be built in code:
//
//	cfg := &perf.Config{
//	    Name: "Orders",
//	    Run:  perf.RunConfig{Type: perf.RunIteration, Iterations: 1000},
//	    Generator: perf.GeneratorConfig{
//	        Type:    "constant-speed",
//	        Threads: 8,
//	        Speed:   200,
//	    },
//	    Sender: perf.SenderConfig{Type: "http", Target: "http://localhost:8080/orders"},
//	    Messages: []*perf.Message{{Payload: `{"id": "{{id}}"}`}},
//	    Sequences: []perf.SequenceConfig{{Name: "id", Type: "uuid"}},
//	}
//
// # Live Results
//
// Destinations receive a snapshot every publish interval while the run is
// in progress:
//
//	runner := perf.NewRunner(cfg, perf.WithDestinations(myDashboard))
//	result, err := runner.Run(ctx)
package perf
