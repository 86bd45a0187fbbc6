// Package main provides the rv32sim command-line interface.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sarchlab/rv32sim/emu"
	"github.com/sarchlab/rv32sim/gdb"
	"github.com/sarchlab/rv32sim/loader"
	"github.com/sarchlab/rv32sim/mem"
)

var (
	debugServer bool
	videoOutput bool
	verbose     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rv32sim [flags] <binary>",
		Short: "rv32sim — user-mode RV32IMA emulator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(args[0])
		},
	}

	rootCmd.Flags().BoolVarP(&debugServer, "debug", "d", false,
		"hand the loaded machine to the GDB remote server on :3000")
	rootCmd.Flags().BoolVar(&videoOutput, "video", false,
		"attach the video/keyboard device and open a window")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false,
		"verbose output")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(path string) error {
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	var opts []mem.AddressSpaceOption
	if videoOutput {
		opts = append(opts, mem.WithVideo())
	}
	memory := mem.NewAddressSpace(opts...)

	prog, err := loader.Load(path, memory)
	if err != nil {
		return fmt.Errorf("error loading program: %w", err)
	}
	logrus.Debugf("loaded %s: %d segments, %d bytes, entry 0x%08X",
		path, prog.Segments, prog.Bytes, prog.EntryPoint)

	if video := memory.Video(); video != nil {
		if err := video.Start(); err != nil {
			return fmt.Errorf("error starting video device: %w", err)
		}
		defer video.Stop()
	}

	cpu := emu.NewCPU()

	if debugServer {
		server := gdb.NewServer(cpu, memory)
		return server.ListenAndServe()
	}

	start := time.Now()
	event, err := cpu.Run(memory)
	elapsed := time.Since(start)

	if err != nil {
		return err
	}
	if event != emu.EventHalted {
		return fmt.Errorf("execution stopped without halting")
	}

	executed := cpu.CycleCounter()
	micros := elapsed.Microseconds()
	if micros == 0 {
		micros = 1
	}
	fmt.Fprintf(os.Stderr, "Executed %d instructions in %d µs\n",
		executed, micros)
	fmt.Fprintf(os.Stderr, "Frequency: %.2f MHz\n",
		float64(executed)/float64(micros))

	return nil
}
