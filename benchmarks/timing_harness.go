// Package benchmarks runs synthetic instruction traces through the core model
// and reports throughput and fusion statistics.
package benchmarks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sarchlab/oocore/loader"
	"github.com/sarchlab/oocore/timing/core"
	"github.com/sarchlab/oocore/timing/decode"
)

// BenchmarkResult holds the timing results for a single benchmark run.
type BenchmarkResult struct {
	// Name identifies the benchmark
	Name string `json:"name"`

	// Description explains what the benchmark measures
	Description string `json:"description"`

	// SimulatedCycles is the total cycle count from the timing simulator
	SimulatedCycles uint64 `json:"simulated_cycles"`

	// InstructionsRetired counts logical instructions; a fused pair is two
	InstructionsRetired uint64 `json:"instructions_retired"`

	// RetiredSlots counts reorder buffer entries retired
	RetiredSlots uint64 `json:"retired_slots"`

	// IPC is instructions retired per cycle
	IPC float64 `json:"ipc"`

	// CPI is cycles per instruction
	CPI float64 `json:"cpi"`

	// FusedPairs is the number of macro-ops built by decode
	FusedPairs uint64 `json:"fused_pairs"`

	// PipelineFlushes is the number of flushes started at retirement
	PipelineFlushes uint64 `json:"pipeline_flushes"`

	// Error is set when the simulation failed
	Error string `json:"error,omitempty"`

	// WallTime is the actual time taken to run the simulation
	WallTime time.Duration `json:"wall_time_ns"`
}

// Benchmark defines a single benchmark trace.
type Benchmark struct {
	// Name identifies the benchmark
	Name string

	// Description explains what the benchmark measures
	Description string

	// Program is the trace, one instruction per line
	Program []string
}

// Trace decodes the benchmark program.
func (b Benchmark) Trace() (*loader.Trace, error) {
	return loader.Parse(strings.NewReader(strings.Join(b.Program, "\n")), b.Name)
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// Core is the core configuration every benchmark runs with
	Core *core.Config

	// Output is where to write results (default: os.Stdout)
	Output io.Writer

	// Verbose enables detailed output
	Verbose bool
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		Core:    core.DefaultConfig(),
		Output:  os.Stdout,
		Verbose: false,
	}
}

// Harness runs timing benchmarks and reports results.
type Harness struct {
	config     HarnessConfig
	benchmarks []Benchmark
}

// NewHarness creates a new benchmark harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Core == nil {
		config.Core = core.DefaultConfig()
	}
	return &Harness{
		config:     config,
		benchmarks: []Benchmark{},
	}
}

// AddBenchmark adds a benchmark to the harness.
func (h *Harness) AddBenchmark(b Benchmark) {
	h.benchmarks = append(h.benchmarks, b)
}

// AddBenchmarks adds multiple benchmarks to the harness.
func (h *Harness) AddBenchmarks(benchmarks []Benchmark) {
	h.benchmarks = append(h.benchmarks, benchmarks...)
}

// RunAll executes all benchmarks and returns results. A benchmark that fails
// is reported through its Error field.
func (h *Harness) RunAll() []BenchmarkResult {
	results := make([]BenchmarkResult, 0, len(h.benchmarks))

	for _, bench := range h.benchmarks {
		result := h.runBenchmark(bench)
		results = append(results, result)
	}

	return results
}

// runBenchmark executes a single benchmark on a fresh core.
func (h *Harness) runBenchmark(bench Benchmark) BenchmarkResult {
	result := BenchmarkResult{
		Name:        bench.Name,
		Description: bench.Description,
	}

	trace, err := bench.Trace()
	if err != nil {
		result.Error = err.Error()
		return result
	}

	c, err := core.NewCore(trace, h.config.Core.Clone())
	if err != nil {
		result.Error = err.Error()
		return result
	}

	start := time.Now()
	if err := c.Run(); err != nil {
		result.Error = err.Error()
	}
	result.WallTime = time.Since(start)

	stats := c.Stats()
	result.SimulatedCycles = stats.Cycles
	result.InstructionsRetired = stats.Retired()
	result.RetiredSlots = stats.ROB.RetiredSlots
	result.IPC = stats.IPC()
	if stats.Retired() > 0 {
		result.CPI = float64(stats.Cycles) / float64(stats.Retired())
	}
	result.FusedPairs = stats.Decode.FusedPairs()
	result.PipelineFlushes = stats.Flushes()

	if h.config.Verbose {
		_, _ = fmt.Fprintf(h.config.Output, "%s: %s\n", bench.Name, stats)
	}

	return result
}

// PrintResults outputs benchmark results in a human-readable format.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output, "=== Timing Benchmark Results ===")
	_, _ = fmt.Fprintln(h.config.Output, "")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "Benchmark: %s\n", r.Name)
		_, _ = fmt.Fprintf(h.config.Output, "  Description: %s\n", r.Description)
		if r.Error != "" {
			_, _ = fmt.Fprintf(h.config.Output, "  Error: %s\n", r.Error)
		}
		_, _ = fmt.Fprintln(h.config.Output, "  --- Timing ---")
		_, _ = fmt.Fprintf(h.config.Output, "  Simulated Cycles:     %d\n", r.SimulatedCycles)
		_, _ = fmt.Fprintf(h.config.Output, "  Instructions Retired: %d\n", r.InstructionsRetired)
		_, _ = fmt.Fprintf(h.config.Output, "  Retired Slots:        %d\n", r.RetiredSlots)
		_, _ = fmt.Fprintf(h.config.Output, "  IPC:                  %.3f\n", r.IPC)
		_, _ = fmt.Fprintf(h.config.Output, "  CPI:                  %.3f\n", r.CPI)
		_, _ = fmt.Fprintf(h.config.Output, "  Pipeline Flushes:     %d\n", r.PipelineFlushes)
		if r.FusedPairs > 0 {
			_, _ = fmt.Fprintf(h.config.Output, "  Fused Pairs:          %d\n", r.FusedPairs)
		}

		_, _ = fmt.Fprintf(h.config.Output, "  Wall Time: %v\n", r.WallTime)
		_, _ = fmt.Fprintln(h.config.Output, "")
	}
}

// PrintCSV outputs benchmark results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,cycles,instructions,slots,ipc,cpi,fused_pairs,flushes,error")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%d,%d,%d,%.3f,%.3f,%d,%d,%q\n",
			r.Name,
			r.SimulatedCycles,
			r.InstructionsRetired,
			r.RetiredSlots,
			r.IPC,
			r.CPI,
			r.FusedPairs,
			r.PipelineFlushes,
			r.Error,
		)
	}
}

// BenchmarkReport is the complete output format for benchmark results.
type BenchmarkReport struct {
	// Metadata about the benchmark run
	Metadata ReportMetadata `json:"metadata"`

	// Results is the list of individual benchmark results
	Results []BenchmarkResult `json:"results"`

	// Summary contains aggregate statistics
	Summary ReportSummary `json:"summary"`
}

// ReportMetadata contains information about the benchmark run.
type ReportMetadata struct {
	// Timestamp when the benchmark was run
	Timestamp string `json:"timestamp"`

	// Config describes the benchmark configuration
	Config BenchmarkConfig `json:"config"`
}

// BenchmarkConfig describes the decode settings used.
type BenchmarkConfig struct {
	FuseInsts bool            `json:"fuse_insts"`
	FuseMode  decode.FuseMode `json:"fuse_mode"`
}

// ReportSummary contains aggregate statistics across all benchmarks.
type ReportSummary struct {
	// TotalBenchmarks is the number of benchmarks run
	TotalBenchmarks int `json:"total_benchmarks"`

	// TotalCycles is the sum of all simulated cycles
	TotalCycles uint64 `json:"total_cycles"`

	// TotalInstructions is the sum of all instructions retired
	TotalInstructions uint64 `json:"total_instructions"`

	// TotalFusedPairs is the sum of all fused pairs
	TotalFusedPairs uint64 `json:"total_fused_pairs"`

	// AverageIPC is the aggregate instructions per cycle
	AverageIPC float64 `json:"average_ipc"`

	// TotalWallTime is the total wall clock time for all benchmarks
	TotalWallTime time.Duration `json:"total_wall_time_ns"`
}

// Summarize aggregates results.
func Summarize(results []BenchmarkResult) ReportSummary {
	s := ReportSummary{TotalBenchmarks: len(results)}
	for _, r := range results {
		s.TotalCycles += r.SimulatedCycles
		s.TotalInstructions += r.InstructionsRetired
		s.TotalFusedPairs += r.FusedPairs
		s.TotalWallTime += r.WallTime
	}

	if s.TotalCycles > 0 {
		s.AverageIPC = float64(s.TotalInstructions) / float64(s.TotalCycles)
	}

	return s
}

// PrintJSON outputs benchmark results in JSON format for automated comparison.
func (h *Harness) PrintJSON(results []BenchmarkResult) error {
	report := BenchmarkReport{
		Metadata: ReportMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Config: BenchmarkConfig{
				FuseInsts: h.config.Core.Decode.FuseInsts,
				FuseMode:  h.config.Core.Decode.FuseMode,
			},
		},
		Results: results,
		Summary: Summarize(results),
	}

	encoder := json.NewEncoder(h.config.Output)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
