package main

import (
	"log/slog"

	"sensor-sim/internal/config"
	"sensor-sim/internal/sim"
)

// GreptimeDB environment keys.
const (
	envGreptimeEndpoint = "GREPTIMEDB_ENDPOINT"
	envGreptimeDatabase = "GREPTIMEDB_DATABASE"
	envGreptimeTable    = "GREPTIMEDB_TABLE"
)

type sinkOptions struct {
	print   bool
	color   bool
	tui     bool
	logFile string
	// onQuit runs when the user leaves the TUI.
	onQuit func()
}

// newSinks builds the writers that receive every acknowledged reading. Color
// and TUI output need a terminal and fall back to JSON lines otherwise.
func newSinks(cfg *config.SimulationConfig, opts sinkOptions, getenv func(string) string, isTTY bool, log *slog.Logger) (*sim.MultiWriter, *sim.TUIWriter, error) {
	var writers []sim.ReadingWriter
	var tui *sim.TUIWriter

	switch {
	case (opts.color || opts.tui) && !isTTY:
		log.Warn("stdout is not a terminal, printing JSON instead")
		writers = append(writers, sim.NewJSONStdoutWriter())
	case opts.tui:
		tui = sim.NewTUIWriter(cfg, opts.onQuit)
		writers = append(writers, tui)
	case opts.color:
		writers = append(writers, sim.NewColorStdoutWriter(cfg))
	case opts.print:
		writers = append(writers, sim.NewJSONStdoutWriter())
	}

	if endpoint := getenv(envGreptimeEndpoint); endpoint != "" {
		gw, err := sim.NewGreptimeDBWriter(endpoint, getenv(envGreptimeDatabase), getenv(envGreptimeTable))
		if err != nil {
			closeAll(writers)
			return nil, nil, err
		}
		log.Info("recording readings to GreptimeDB", "endpoint", endpoint)
		writers = append(writers, gw)
	}

	if opts.logFile != "" {
		fw, err := sim.NewFileWriter(opts.logFile)
		if err != nil {
			closeAll(writers)
			return nil, nil, err
		}
		writers = append(writers, fw)
	}
	return sim.NewMultiWriter(writers...), tui, nil
}

func closeAll(writers []sim.ReadingWriter) {
	_ = sim.NewMultiWriter(writers...).Close()
}
