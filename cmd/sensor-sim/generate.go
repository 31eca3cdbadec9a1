package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"sensor-sim/internal/config"
	"sensor-sim/internal/sim"
	"sensor-sim/internal/telemetry"
)

var (
	genCount int
	genSeed  int64
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Print readings without a broker",
	Long:  "generate prints readings as JSON lines using the simulation settings only; no broker settings are needed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(true)
		if err != nil {
			return err
		}
		return generate(cmd.OutOrStdout(), cfg.Simulation, genCount, genSeed)
	},
}

func generate(out io.Writer, cfg config.SimulationConfig, count int, seed int64) error {
	if count <= 0 {
		return fmt.Errorf("count must be positive, got %d", count)
	}
	gen := telemetry.NewGenerator(cfg, seed)
	w := sim.NewJSONWriter(out)
	for i := 0; i < count; i++ {
		if err := w.Write(gen.Generate()); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	generateCmd.Flags().IntVar(&genCount, "count", 10, "Number of readings")
	generateCmd.Flags().Int64Var(&genSeed, "seed", 0, "Seed for reproducible readings (0 seeds from the clock)")
}
