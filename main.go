// Package main provides the entry point for oocore.
// oocore is a cycle-level model of the decode and retirement stages of an
// out-of-order core, built on Akita.
//
// For the full CLI, use: go run ./cmd/oocore
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("oocore - out-of-order core timing model")
	fmt.Println("Built on Akita simulation framework")
	fmt.Println("")
	fmt.Println("Usage: oocore [options] <trace>")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config      Path to core configuration JSON file")
	fmt.Println("  -fuse        Enable macro-op fusion")
	fmt.Println("  -fuse-mode   Fusion scan: adjacent or window")
	fmt.Println("  -max-insts   Stop after retiring this many instructions")
	fmt.Println("  -log-level   Log level")
	fmt.Println("  -v           Print heartbeat statistics")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/oocore' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/oocore' instead.")
	}
}
