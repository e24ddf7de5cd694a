package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/suprax-arch/ooosim/internal/config"
	"github.com/suprax-arch/ooosim/internal/coreerr"
	"github.com/suprax-arch/ooosim/internal/golden"
	"github.com/suprax-arch/ooosim/internal/pipeline"
	"github.com/suprax-arch/ooosim/internal/telemetry"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ooosim",
		Short: "Out-of-order register-renaming core simulator",
	}

	var configPath string
	var logLevel string
	var cycles uint64

	runCmd := &cobra.Command{
		Use:   "run [program-file]",
		Short: "Drive the pipeline over a raw instruction-word program for a fixed number of cycles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, cfg, err := setup(configPath, logLevel)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer recoverAbort(log)

			words, err := readProgram(args[0])
			if err != nil {
				return fmt.Errorf("reading program: %w", err)
			}

			mem := golden.NewMemory(cfg.MemBytes)
			golden.LoadProgram(mem, words)

			m := pipeline.New(cfg, mem, log)
			for i := uint64(0); i < cycles; i++ {
				m.Step()
			}

			if mismatches := m.Mismatches(); len(mismatches) > 0 {
				for _, msg := range mismatches {
					log.Errorw("functional-reference divergence", "detail", msg)
				}
				return fmt.Errorf("%d divergence(s) from the functional reference", len(mismatches))
			}

			fmt.Println(m.Stats())
			return nil
		},
	}
	runCmd.Flags().StringVar(&configPath, "config", "", "TOML config file (defaults if unset)")
	runCmd.Flags().StringVar(&logLevel, "log-level", "info", "debug, info, warn, or error")
	runCmd.Flags().Uint64Var(&cycles, "cycles", 10_000, "number of cycles to step")

	var benchCycles uint64
	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "Run a small built-in synthetic program and report throughput",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, cfg, err := setup(configPath, logLevel)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer recoverAbort(log)

			mem := golden.NewMemory(cfg.MemBytes)
			golden.LoadProgram(mem, syntheticProgram())

			m := pipeline.New(cfg, mem, log)
			for i := uint64(0); i < benchCycles; i++ {
				m.Step()
			}

			if mismatches := m.Mismatches(); len(mismatches) > 0 {
				return fmt.Errorf("%d divergence(s) from the functional reference", len(mismatches))
			}

			fmt.Println(m.Stats())
			return nil
		},
	}
	benchCmd.Flags().StringVar(&configPath, "config", "", "TOML config file (defaults if unset)")
	benchCmd.Flags().StringVar(&logLevel, "log-level", "info", "debug, info, warn, or error")
	benchCmd.Flags().Uint64Var(&benchCycles, "cycles", 5_000, "number of cycles to step")

	rootCmd.AddCommand(runCmd, benchCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger both subcommands share.
func setup(configPath, logLevel string) (*telemetry.Logger, config.Config, error) {
	log, err := telemetry.New(logLevel)
	if err != nil {
		return nil, config.Config{}, fmt.Errorf("building logger: %w", err)
	}

	if configPath == "" {
		return log, config.Default(), nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return log, config.Config{}, err
	}
	return log, cfg, nil
}

// recoverAbort is the one place in this program that recovers a
// *coreerr.CoreError panic: everywhere below it, a structural
// invariant violation is expected to be fatal, not caught and
// continued from.
func recoverAbort(log *telemetry.Logger) {
	if r := recover(); r != nil {
		if ce, ok := r.(*coreerr.CoreError); ok {
			log.Fatalw("structural invariant violation", "op", ce.Op, "detail", ce.Msg)
		}
		panic(r)
	}
}

// readProgram parses a file of whitespace-separated 16-bit hex
// instruction words (e.g. "0210 e203 8300") into a word slice.
func readProgram(path string) ([]uint16, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var words []uint16
	for _, field := range strings.Fields(string(data)) {
		var w uint16
		if _, err := fmt.Sscanf(field, "%x", &w); err != nil {
			return nil, fmt.Errorf("parsing instruction word %q: %w", field, err)
		}
		words = append(words, w)
	}
	return words, nil
}

// syntheticProgram builds a small fixed workload exercising arithmetic,
// a taken branch, and a load/store pair — enough to keep every pipeline
// stage busy for a throughput benchmark.
func syntheticProgram() []uint16 {
	return []uint16{
		golden.EncodeImm(golden.OpADDI, 1, 10),   // r1 = 10
		golden.EncodeImm(golden.OpADDI, 2, 10),   // r2 = 10
		golden.EncodeRR(golden.OpCMP, 0, 1, 2),   // r1 == r2
		golden.EncodeImm(golden.OpBEQ, 0, 2),     // taken: skip the next instruction
		golden.EncodeImm(golden.OpADDI, 3, 99),   // skipped on the taken path
		golden.EncodeImm(golden.OpADDI, 4, 1),    // r4 = 1
		golden.EncodeRR(golden.OpMOVS, 0, 4, 0),  // mem[r4] = r0
		golden.EncodeRR(golden.OpMOVL, 5, 4, 0),  // r5 = mem[r4]
		golden.EncodeImm(golden.OpTRAP, 0, 0),
	}
}
