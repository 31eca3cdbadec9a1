// ColorStdoutWriter prints human-friendly, colorized readings to STDOUT.
package sim

import (
	"fmt"
	"io"
	"os"
	"sync"
	"text/tabwriter"
	"time"

	"sensor-sim/internal/config"
	"sensor-sim/internal/telemetry"
)

const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorGray    = "\x1b[90m"
)

var typePalette = []string{colorCyan, colorMagenta, colorBlue, colorYellow, colorGreen}

// ColorStdoutWriter prints readings using ANSI colors. Anomalous values are
// shown in red.
type ColorStdoutWriter struct {
	cfg        *config.SimulationConfig
	out        io.Writer
	once       sync.Once
	mu         sync.Mutex
	typeColors map[string]string
}

// NewColorStdoutWriter creates a ColorStdoutWriter writing to os.Stdout.
func NewColorStdoutWriter(cfg *config.SimulationConfig) *ColorStdoutWriter {
	return newColorWriter(cfg, os.Stdout)
}

func newColorWriter(cfg *config.SimulationConfig, out io.Writer) *ColorStdoutWriter {
	w := &ColorStdoutWriter{cfg: cfg, out: out, typeColors: make(map[string]string)}
	if cfg != nil {
		for i, t := range cfg.SensorTypes {
			w.typeColors[t] = typePalette[i%len(typePalette)]
		}
	}
	return w
}

func (w *ColorStdoutWriter) typeColor(t string) string {
	if c, ok := w.typeColors[t]; ok {
		return c
	}
	c := typePalette[len(w.typeColors)%len(typePalette)]
	w.typeColors[t] = c
	return c
}

func (w *ColorStdoutWriter) printOverview() {
	if w.cfg == nil {
		return
	}

	fmt.Fprintln(w.out, "Simulation Configuration:")
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Fail Probability:\t%.2f\n", w.cfg.FailProbability)
	fmt.Fprintf(tw, "Locations:\t%d\n", len(w.cfg.Locations))
	tw.Flush()

	fmt.Fprintln(w.out, "\nSensor Types:")
	tw = tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Type\tRange\n")
	for _, t := range w.cfg.SensorTypes {
		fmt.Fprintf(tw, "%s%s%s\t%s\n", w.typeColor(t), t, colorReset, w.cfg.ValueRanges[t])
	}
	tw.Flush()
	fmt.Fprintln(w.out)
}

// Write outputs a single reading in colorized format.
func (w *ColorStdoutWriter) Write(r telemetry.SensorReading) error {
	w.once.Do(w.printOverview)
	w.mu.Lock()
	defer w.mu.Unlock()

	valueColor := colorGreen
	flag := ""
	if r.Anomalous {
		valueColor = colorRed
		flag = fmt.Sprintf(" %sANOMALY%s", colorRed, colorReset)
	}
	_, err := fmt.Fprintf(w.out, "%s[%s]%s %s%-12s%s %ssensor=%s%s %slocation=%s%s %svalue=%.2f%s%s\n",
		colorGray, r.Time().UTC().Format(time.RFC3339), colorReset,
		w.typeColor(r.SensorType), r.SensorType, colorReset,
		colorBlue, r.SensorID, colorReset,
		colorYellow, r.Location, colorReset,
		valueColor, r.Value, colorReset,
		flag,
	)
	return err
}
