// Package main provides the command-line entry point of the core model.
// It replays an instruction trace through fetch, decode, dispatch and the
// reorder buffer and prints retirement statistics.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sarchlab/oocore/insts"
	"github.com/sarchlab/oocore/loader"
	"github.com/sarchlab/oocore/log"
	"github.com/sarchlab/oocore/timing/core"
	"github.com/sarchlab/oocore/timing/decode"
	"github.com/sarchlab/oocore/timing/rob"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
	// exitUnclean means the run finished but left instructions behind.
	exitUnclean = 3
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	configPath string
	saveConfig string
	logLevel   string
	logJSON    bool
	fuse       bool
	fuseMode   string
	maxInsts   uint64
	verbose    bool
}

func parseFlags(args []string, stderr io.Writer) (*options, *flag.FlagSet, error) {
	opts := &options{}

	fs := flag.NewFlagSet("oocore", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "Path to core configuration JSON file")
	fs.StringVar(&opts.saveConfig, "save-config", "", "Write the effective configuration to this file")
	fs.StringVar(&opts.logLevel, "log-level", "warn", "Log level: trace, debug, info, warn, error")
	fs.BoolVar(&opts.logJSON, "log-json", false, "Write logs as JSON")
	fs.BoolVar(&opts.fuse, "fuse", false, "Enable macro-op fusion")
	fs.StringVar(&opts.fuseMode, "fuse-mode", "", "Fusion scan: adjacent or window")
	fs.Uint64Var(&opts.maxInsts, "max-insts", 0, "Stop after retiring this many instructions (0 = whole trace)")
	fs.BoolVar(&opts.verbose, "v", false, "Print heartbeat statistics")
	fs.Usage = func() {
		_, _ = fmt.Fprintf(stderr, "Usage: oocore [options] <trace>\n")
		_, _ = fmt.Fprintf(stderr, "\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	return opts, fs, nil
}

// buildConfig layers the configuration: defaults or file, then
// environment, then flags.
func buildConfig(opts *options) (*core.Config, error) {
	cfg := core.DefaultConfig()
	if opts.configPath != "" {
		var err error
		cfg, err = core.LoadConfig(opts.configPath)
		if err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if opts.fuse {
		cfg.Decode.FuseInsts = true
	}
	if opts.fuseMode != "" {
		mode, err := decode.ParseFuseMode(opts.fuseMode)
		if err != nil {
			return nil, err
		}
		cfg.Decode.FuseMode = mode
	}
	if opts.maxInsts > 0 {
		cfg.ROB.NumInstsToRetire = opts.maxInsts
	}

	return cfg, cfg.Validate()
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, fs, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	if fs.NArg() != 1 {
		fs.Usage()
		return exitUsage
	}

	level, err := log.ParseLogLevel(opts.logLevel)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	logType := log.ConsoleLogger
	if opts.logJSON {
		logType = log.JSONLogger
	}
	log.Init(log.Options{LogLevel: level, Type: logType, Out: stderr})

	cfg, err := buildConfig(opts)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error in configuration: %v\n", err)
		return exitFailure
	}

	if opts.saveConfig != "" {
		if err := cfg.SaveConfig(opts.saveConfig); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error saving configuration: %v\n", err)
			return exitFailure
		}
	}

	tracePath := fs.Arg(0)
	trace, err := loader.Load(tracePath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error loading trace: %v\n", err)
		return exitFailure
	}

	var coreOpts []core.Option
	if opts.verbose {
		coreOpts = append(coreOpts, core.WithHeartbeat(func(s rob.Snapshot) {
			_, _ = fmt.Fprintln(stdout, s)
		}))
	}

	c, err := core.NewCore(trace, cfg, coreOpts...)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error building core: %v\n", err)
		return exitFailure
	}

	runErr := c.Run()
	printReport(stdout, tracePath, cfg, c.Stats())

	if runErr != nil {
		_, _ = fmt.Fprintf(stderr, "Simulation failed: %v\n", runErr)
		c.ROB().DumpDebugContent(stderr)
		return exitFailure
	}

	if !c.Teardown() {
		return exitUnclean
	}

	return exitOK
}

func printReport(w io.Writer, tracePath string, cfg *core.Config, stats core.Stats) {
	_, _ = fmt.Fprintf(w, "\n")
	_, _ = fmt.Fprintf(w, "Trace: %s\n", tracePath)
	_, _ = fmt.Fprintf(w, "Fusion: %v (%s)\n", cfg.Decode.FuseInsts, cfg.Decode.FuseMode)
	_, _ = fmt.Fprintf(w, "Total Instructions: %d\n", stats.Retired())
	_, _ = fmt.Fprintf(w, "Retired Slots: %d\n", stats.ROB.RetiredSlots)
	_, _ = fmt.Fprintf(w, "Total Cycles: %d\n", stats.Cycles)
	_, _ = fmt.Fprintf(w, "IPC: %.4f\n", stats.IPC())
	_, _ = fmt.Fprintf(w, "\n")
	_, _ = fmt.Fprintf(w, "Breakdown:\n")
	_, _ = fmt.Fprintf(w, "  Arithmetic: %d\n", stats.ROB.Arith)
	_, _ = fmt.Fprintf(w, "  Branch:     %d\n", stats.ROB.Branch)
	_, _ = fmt.Fprintf(w, "  Load:       %d\n", stats.ROB.Load)
	_, _ = fmt.Fprintf(w, "  Store:      %d\n", stats.ROB.Store)
	_, _ = fmt.Fprintf(w, "\n")
	_, _ = fmt.Fprintf(w, "Pipeline Events:\n")
	_, _ = fmt.Fprintf(w, "  Fetched:     %d\n", stats.Fetched)
	_, _ = fmt.Fprintf(w, "  Flushes:     %d\n", stats.Flushes())
	_, _ = fmt.Fprintf(w, "  Fused pairs: %d\n", stats.Decode.FusedPairs())

	for k := insts.FusionNone + 1; k < insts.NumFusionKinds; k++ {
		if n := stats.ROB.Fusions[k]; n > 0 {
			_, _ = fmt.Fprintf(w, "    %-24s %d\n", k.String()+":", n)
		}
	}
}
