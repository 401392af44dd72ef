// Measure trace decoding cost: throughput and allocations per instruction
// of the assembler-text decoder.
package main

import (
	"fmt"
	"runtime"
	"time"

	"github.com/sarchlab/oocore/insts"
)

func main() {
	decoder := insts.NewDecoder()

	// A 4-wide decode group
	lines := []string{
		"slli a5, a4, 3",
		"add a5, a5, a0",
		"ld a6, 16(a5)",
		"bne a6, zero, -12",
	}

	// Warm up
	for i := 0; i < 1000; i++ {
		for _, l := range lines {
			if _, err := decoder.Decode(l); err != nil {
				fmt.Printf("decode %q: %v\n", l, err)
				return
			}
		}
	}

	runtime.GC()
	var m1, m2 runtime.MemStats
	runtime.ReadMemStats(&m1)

	start := time.Now()
	iterations := 100000

	for i := 0; i < iterations; i++ {
		for _, l := range lines {
			_, _ = decoder.Decode(l)
		}
	}

	elapsed := time.Since(start)
	runtime.ReadMemStats(&m2)

	totalDecodes := iterations * len(lines)
	allocations := m2.Mallocs - m1.Mallocs
	allocatedBytes := m2.TotalAlloc - m1.TotalAlloc

	fmt.Printf("Decoder Validation Results:\n")
	fmt.Printf("===========================\n")
	fmt.Printf("Total decode operations: %d\n", totalDecodes)
	fmt.Printf("Time elapsed: %v\n", elapsed)
	fmt.Printf("Decodes per second: %.0f\n", float64(totalDecodes)/elapsed.Seconds())
	fmt.Printf("Allocations: %d\n", allocations)
	fmt.Printf("Allocated bytes: %d\n", allocatedBytes)
	fmt.Printf("Allocations per decode: %.3f\n", float64(allocations)/float64(totalDecodes))
	fmt.Printf("Bytes per decode: %.1f\n", float64(allocatedBytes)/float64(totalDecodes))
}
