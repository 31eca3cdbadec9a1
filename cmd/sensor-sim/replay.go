package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sensor-sim/internal/logging"
	"sensor-sim/internal/publisher"
	"sensor-sim/internal/sim"
	"sensor-sim/internal/telemetry"
)

var (
	replayInput string
	replaySpeed float64
	replayPrint bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Republish a reading log to the broker",
	Long:  "replay feeds readings from a JSONL log written with --log-file back through the MQTT publisher.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		log := logging.FromContext(ctx)

		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}
		opts := publisher.Options{}
		if replayPrint {
			opts.Observer = sim.NewJSONStdoutWriter()
		}
		pub := publisher.New(cfg.Publisher, telemetry.NewGenerator(cfg.Simulation, 0), opts)
		defer pub.Close()
		if err := pub.Connect(ctx); err != nil {
			return err
		}

		n, err := sim.ReplayLogFile(ctx, replayInput, pub, replaySpeed)
		log.Info("replay finished", "input", replayInput, "published", n)
		if errors.Is(err, ctx.Err()) {
			return nil
		}
		return err
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to a reading log (JSONL)")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier (0 sends without delay)")
	replayCmd.Flags().BoolVar(&replayPrint, "print", false, "Print replayed readings to STDOUT")
	replayCmd.MarkFlagRequired("input")
}
