// Package perf runs stampede load tests from Go code.
//
// It is the programmatic counterpart of the stampede CLI: the same scenario
// files, validation, executors and thresholds, without the console report or
// exit-code handling.
//
// # Quick Start
//
//	cfg, err := perf.LoadConfig("stress-test.yaml")
//	if err != nil {
//	    log.Fatal(err) // *perf.ConfigError
//	}
//	result, err := perf.RunTest(context.Background(), cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("Requests: %d\n", result.Metrics.TotalRequests)
//	fmt.Printf("P95: %v\n", result.Metrics.Latency.P95)
//	fmt.Printf("Passed: %v\n", result.Passed)
//
// # Watching a Run
//
// A Runner exposes live progress while Run is in flight:
//
//	runner, _ := perf.NewRunner(cfg, perf.WithLogger(logger))
//	go func() {
//	    for range time.Tick(time.Second) {
//	        p := runner.Progress()
//	        fmt.Printf("%d/%d VUs, %d requests\n", p.ActiveVUs, p.TargetVUs, p.Requests)
//	    }
//	}()
//	result, err := runner.Run(ctx)
package perf
