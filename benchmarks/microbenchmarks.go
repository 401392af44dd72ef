package benchmarks

import "fmt"

// GetMicrobenchmarks returns the standard set of microbenchmarks. Each one
// targets a specific pipeline characteristic.
func GetMicrobenchmarks() []Benchmark {
	return []Benchmark{
		arithmeticSequential(),
		dependencyChain(),
		memorySequential(),
		addressGeneration(),
		globalAccess(),
		compareBranch(),
		longLatency(),
		selfModifying(),
		mixedOperations(),
	}
}

// GetFusionBenchmarks returns the benchmarks built around fusible idioms.
func GetFusionBenchmarks() []Benchmark {
	return []Benchmark{
		memorySequential(),
		addressGeneration(),
		globalAccess(),
		compareBranch(),
	}
}

// repeat concatenates n copies of body.
func repeat(n int, body ...string) []string {
	out := make([]string, 0, n*len(body))
	for i := 0; i < n; i++ {
		out = append(out, body...)
	}
	return out
}

// 1. Arithmetic Sequential - Tests ALU throughput with independent operations
func arithmeticSequential() Benchmark {
	return Benchmark{
		Name:        "arithmetic_sequential",
		Description: "40 independent ADDIs - measures retire bandwidth",
		Program: repeat(8,
			"addi x10, x10, 1",
			"addi x11, x11, 1",
			"addi x12, x12, 1",
			"addi x13, x13, 1",
			"addi x14, x14, 1",
		),
	}
}

// 2. Dependency Chain - trace-driven, so only fusion sees the dependency
func dependencyChain() Benchmark {
	return Benchmark{
		Name:        "dependency_chain",
		Description: "40 dependent ADDIs (a0 = a0 + 1) - no fusion partners",
		Program:     repeat(40, "addi a0, a0, 1"),
	}
}

// 3. Memory Sequential - paired accesses at consecutive offsets
func memorySequential() Benchmark {
	return Benchmark{
		Name:        "memory_sequential",
		Description: "store and load pairs through one base register - load/store pair fusion",
		Program: repeat(8,
			"sd a0, 0(sp)",
			"sd a1, 8(sp)",
			"ld a2, 0(sp)",
			"ld a3, 8(sp)",
		),
	}
}

// 4. Address Generation - scaled index then access
func addressGeneration() Benchmark {
	body := make([]string, 0, 48)
	for i := 0; i < 8; i++ {
		body = append(body,
			"slli t0, a1, 3",
			"add t0, t0, a0",
			"ld t1, 0(t0)",
			"sh3add t2, a2, a0",
			"ld t3, 0(t2)",
			fmt.Sprintf("addi a1, a1, %d", i+1),
		)
	}

	return Benchmark{
		Name:        "address_generation",
		Description: "array indexing with shifted indices - LEA and shift-add-load fusion",
		Program:     body,
	}
}

// 5. Global Access - PC-relative address formation
func globalAccess() Benchmark {
	return Benchmark{
		Name:        "global_access",
		Description: "auipc followed by a dependent load, then lui/addi constants",
		Program: repeat(8,
			"auipc t0, 1",
			"ld t1, 16(t0)",
			"lui t2, 74565",
			"addi t2, t2, 1656",
		),
	}
}

// 6. Compare Branch - loop-closing compare with immediate
func compareBranch() Benchmark {
	return Benchmark{
		Name:        "compare_branch",
		Description: "counter update feeding a conditional branch - compare-immediate fusion",
		Program: repeat(10,
			"add a0, a0, a1",
			"addi t0, t0, -1",
			"bne t0, zero, -8",
		),
	}
}

// 7. Long Latency - divides hold the head of the reorder buffer
func longLatency() Benchmark {
	return Benchmark{
		Name:        "long_latency",
		Description: "divides interleaved with independent work - head-of-buffer stalls",
		Program: repeat(6,
			"div a0, a1, a2",
			"addi t0, t0, 1",
			"addi t1, t1, 1",
			"mul a3, a4, a5",
			"addi t2, t2, 1",
		),
	}
}

// 8. Self Modifying - fence.i flushes and refetches the younger path
func selfModifying() Benchmark {
	body := repeat(10, "addi a0, a0, 1")
	body = append(body, "fence.i")
	body = append(body, repeat(10, "addi a1, a1, 1")...)
	body = append(body, "fence.i")
	body = append(body, repeat(10, "addi a2, a2, 1")...)

	return Benchmark{
		Name:        "self_modifying",
		Description: "two fence.i barriers - retire-time flush and refetch",
		Program:     body,
	}
}

// 9. Mixed Operations - Combination of ALU, memory, and branches
func mixedOperations() Benchmark {
	return Benchmark{
		Name:        "mixed_operations",
		Description: "mix of ALU, memory, multiply and branches - realistic workload",
		Program: repeat(6,
			"slli a5, a4, 32",
			"srli a5, a5, 32",
			"add a6, a5, a0",
			"ld a7, 0(a6)",
			"mul t4, a7, a3",
			"sw t4, 0(a1)",
			"sw t5, 4(a1)",
			"li t6, 5",
			"blt t6, a2, 16",
			"addi a4, a4, 1",
		),
	}
}
