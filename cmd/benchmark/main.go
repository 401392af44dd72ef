// Command benchmark runs the synthetic trace benchmarks through the core
// model.
//
// Usage:
//
//	go run ./cmd/benchmark [flags]
//
// Flags:
//
//	-csv        Output results in CSV format (default: human-readable)
//	-json       Output results in JSON format
//	-fuse       Enable macro-op fusion in decode
//	-fuse-mode  Fusion scan: adjacent or window
//	-config     Path to a core configuration JSON file
//
// Example:
//
//	# Compare retire slots with and without fusion
//	go run ./cmd/benchmark -csv > base.csv
//	go run ./cmd/benchmark -csv -fuse -fuse-mode window > fused.csv
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/oocore/benchmarks"
	"github.com/sarchlab/oocore/timing/core"
	"github.com/sarchlab/oocore/timing/decode"
)

func main() {
	csvOutput := flag.Bool("csv", false, "Output results in CSV format")
	jsonOutput := flag.Bool("json", false, "Output results in JSON format")
	fuse := flag.Bool("fuse", false, "Enable macro-op fusion")
	fuseMode := flag.String("fuse-mode", "adjacent", "Fusion scan: adjacent or window")
	configPath := flag.String("config", "", "Path to core configuration JSON file")
	flag.Parse()

	cfg := core.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = core.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}

	mode, err := decode.ParseFuseMode(*fuseMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *fuse {
		cfg.Decode.FuseInsts = true
		cfg.Decode.FuseMode = mode
	}

	config := benchmarks.DefaultConfig()
	config.Core = cfg
	config.Output = os.Stdout

	harness := benchmarks.NewHarness(config)
	harness.AddBenchmarks(benchmarks.GetMicrobenchmarks())

	if !*csvOutput && !*jsonOutput {
		fmt.Println("Timing Benchmark Harness")
		fmt.Println("========================")
		fmt.Printf("Fusion: %v (%s)\n", cfg.Decode.FuseInsts, cfg.Decode.FuseMode)
		fmt.Printf("Retire width: %d\n", cfg.ROB.NumToRetire)
		fmt.Println("")
	}

	results := harness.RunAll()

	switch {
	case *jsonOutput:
		if err := harness.PrintJSON(results); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing JSON: %v\n", err)
			os.Exit(1)
		}
	case *csvOutput:
		harness.PrintCSV(results)
	default:
		harness.PrintResults(results)

		summary := benchmarks.Summarize(results)
		fmt.Println("=== Summary ===")
		fmt.Printf("Benchmarks:   %d\n", summary.TotalBenchmarks)
		fmt.Printf("Instructions: %d\n", summary.TotalInstructions)
		fmt.Printf("Cycles:       %d\n", summary.TotalCycles)
		fmt.Printf("IPC:          %.3f\n", summary.AverageIPC)
		fmt.Printf("Fused pairs:  %d\n", summary.TotalFusedPairs)
	}

	for _, r := range results {
		if r.Error != "" {
			os.Exit(1)
		}
	}
}
