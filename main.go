// Package main provides the entry point for rv32sim.
// rv32sim is a user-mode RV32IMA emulator.
//
// For the full CLI, use: go run ./cmd/rv32sim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("rv32sim - RV32IMA user-mode emulator")
	fmt.Println("")
	fmt.Println("Usage: rv32sim [options] <binary>")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -d         Hand the machine to the GDB remote server on :3000")
	fmt.Println("  --video    Attach the video/keyboard device")
	fmt.Println("  -v         Verbose output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/rv32sim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/rv32sim' instead.")
	}
}
