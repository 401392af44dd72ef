// Package main checks that macro-op fusion preserves retirement accounting:
// every benchmark must retire the same logical instructions with fusion off,
// adjacent or windowed, and fused slots must add up.
package main

import (
	"fmt"
	"os"

	"github.com/sarchlab/oocore/benchmarks"
	"github.com/sarchlab/oocore/timing/core"
	"github.com/sarchlab/oocore/timing/decode"
)

type variant struct {
	name string
	fuse bool
	mode decode.FuseMode
}

var variants = []variant{
	{"off", false, decode.FuseAdjacent},
	{"adjacent", true, decode.FuseAdjacent},
	{"window", true, decode.FuseWindow},
}

func runVariant(b benchmarks.Benchmark, v variant) (core.Stats, error) {
	trace, err := b.Trace()
	if err != nil {
		return core.Stats{}, err
	}

	cfg := core.DefaultConfig()
	cfg.Decode.FuseInsts = v.fuse
	cfg.Decode.FuseMode = v.mode

	c, err := core.NewCore(trace, cfg)
	if err != nil {
		return core.Stats{}, err
	}
	if err := c.Run(); err != nil {
		return c.Stats(), err
	}
	if !c.Teardown() {
		return c.Stats(), fmt.Errorf("reorder buffer not empty at end of run")
	}

	return c.Stats(), nil
}

// checkBenchmark validates one benchmark across all fusion variants.
func checkBenchmark(b benchmarks.Benchmark) bool {
	want := uint64(len(b.Program))
	ok := true

	for _, v := range variants {
		stats, err := runVariant(b, v)
		if err != nil {
			fmt.Printf("❌ %s/%s: %v\n", b.Name, v.name, err)
			ok = false
			continue
		}

		pairs := stats.Decode.FusedPairs()
		slots := stats.ROB.RetiredSlots

		switch {
		case stats.Retired() != want:
			fmt.Printf("❌ %s/%s: retired %d instructions, want %d\n",
				b.Name, v.name, stats.Retired(), want)
			ok = false
		case stats.Flushes() == 0 && slots+pairs != want:
			fmt.Printf("❌ %s/%s: %d slots + %d pairs != %d instructions\n",
				b.Name, v.name, slots, pairs, want)
			ok = false
		case !v.fuse && pairs != 0:
			fmt.Printf("❌ %s/%s: %d pairs fused with fusion off\n", b.Name, v.name, pairs)
			ok = false
		default:
			fmt.Printf("✅ %s/%s: %d instructions in %d slots, %d cycles (IPC %.3f)\n",
				b.Name, v.name, stats.Retired(), slots, stats.Cycles, stats.IPC())
		}
	}

	return ok
}

func main() {
	fmt.Println("Fusion Accuracy Validation")
	fmt.Println("==========================")

	allPassed := true
	for _, b := range benchmarks.GetMicrobenchmarks() {
		if !checkBenchmark(b) {
			allPassed = false
		}
	}

	fmt.Println("\n==========================")
	if allPassed {
		fmt.Println("ALL ACCURACY CHECKS PASSED")
		os.Exit(0)
	}

	fmt.Println("ACCURACY CHECKS FAILED")
	os.Exit(1)
}
