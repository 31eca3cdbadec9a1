package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"sensor-sim/internal/admin"
	"sensor-sim/internal/logging"
	"sensor-sim/internal/metrics"
	"sensor-sim/internal/sim"
)

const tuiStatusInterval = time.Second

var (
	simInterval          time.Duration
	simSeed              int64
	simPrint             bool
	simColor             bool
	simTUI               bool
	simLogFile           string
	simAdminAddr         string
	simUniqueClientID    bool
	simReconnectAttempts int
	simReconnectDelay    time.Duration
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Publish simulated sensor readings until interrupted",
	Long:  "simulate connects to the MQTT broker and publishes one reading per interval until SIGINT/SIGTERM, POST /stop or a fatal error.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		log := logging.FromContext(ctx)

		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}
		if simInterval > 0 {
			cfg.Interval = simInterval
		}
		if simUniqueClientID {
			cfg.Publisher.ClientID = uniqueClientID(cfg.Publisher.ClientID)
		}

		isTTY := term.IsTerminal(int(os.Stdout.Fd()))
		var accessLog io.Writer = cmd.ErrOrStderr()
		if simTUI && isTTY {
			// stderr would tear the alternate screen
			log = logging.Nop()
			ctx = logging.NewContext(ctx, log)
			accessLog = nil
		}

		sinks, tui, err := newSinks(&cfg.Simulation, sinkOptions{
			print:   simPrint,
			color:   simColor,
			tui:     simTUI,
			logFile: simLogFile,
			onQuit:  cancel,
		}, os.Getenv, isTTY, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := sinks.Close(); err != nil {
				log.Warn("closing sinks", "err", err)
			}
		}()

		m := metrics.New()
		simulator := sim.NewSimulator(cfg, sim.Options{
			Seed:              simSeed,
			Writer:            sinks,
			Metrics:           m,
			ReconnectAttempts: simReconnectAttempts,
			ReconnectDelay:    simReconnectDelay,
		})

		if simAdminAddr != "" {
			srv := admin.NewServer(simulator, m, accessLog)
			go func() {
				if err := srv.Start(ctx, simAdminAddr); err != nil {
					log.Error("admin server failed", "err", err)
				}
			}()
		}
		if tui != nil {
			go pushStatus(ctx, tui, simulator)
		}

		err = simulator.Run(ctx)
		st := simulator.Status()
		log.Info("simulation stopped", "published", st.Published, "anomalies", st.Anomalies, "failures", st.Failures)
		return err
	},
}

func pushStatus(ctx context.Context, tui *sim.TUIWriter, simulator *sim.Simulator) {
	ticker := time.NewTicker(tuiStatusInterval)
	defer ticker.Stop()
	for {
		tui.SetStatus(simulator.Status())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// uniqueClientID suffixes id so several replicas can share one configuration.
func uniqueClientID(id string) string {
	return id + "-" + uuid.NewString()[:8]
}

func init() {
	f := simulateCmd.Flags()
	f.DurationVar(&simInterval, "interval", 0, "Override the publish interval (e.g. 500ms, 30s)")
	f.Int64Var(&simSeed, "seed", 0, "Seed for reproducible readings (0 seeds from the clock)")
	f.BoolVar(&simPrint, "print", false, "Print published readings to STDOUT as JSON")
	f.BoolVar(&simColor, "color", false, "Print published readings in color")
	f.BoolVar(&simTUI, "tui", false, "Show an interactive terminal UI")
	f.StringVar(&simLogFile, "log-file", "", "Append published readings to a JSONL file")
	f.StringVar(&simAdminAddr, "admin-addr", "", "Serve /healthz, /status, /metrics and /stop on this address")
	f.BoolVar(&simUniqueClientID, "unique-client-id", false, "Append a random suffix to the MQTT client id")
	f.IntVar(&simReconnectAttempts, "reconnect-attempts", sim.DefaultReconnectAttempts, "Reconnect attempts after the connection is lost (0 disables)")
	f.DurationVar(&simReconnectDelay, "reconnect-delay", sim.DefaultReconnectDelay, "Delay between reconnect attempts")
	simulateCmd.MarkFlagsMutuallyExclusive("print", "color", "tui")
}
