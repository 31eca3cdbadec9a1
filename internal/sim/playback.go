package sim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"sensor-sim/internal/telemetry"
)

// ReadingPublisher sends one reading. *publisher.Publisher implements it.
type ReadingPublisher interface {
	PublishOne(ctx context.Context, r telemetry.SensorReading) error
}

// ReplayLog republishes readings from a JSONL log written by FileWriter,
// keeping the recorded spacing divided by speed. If speed <= 0, no artificial
// delay is inserted. It returns the number of readings sent.
func ReplayLog(ctx context.Context, r io.Reader, pub ReadingPublisher, speed float64) (int, error) {
	dec := json.NewDecoder(r)
	var prev int64
	sent := 0
	for {
		var row telemetry.SensorReading
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				return sent, nil
			}
			return sent, fmt.Errorf("reading %d: %w", sent+1, err)
		}
		if sent > 0 && speed > 0 {
			diff := time.Duration(row.Timestamp-prev) * time.Millisecond
			if speed != 1 {
				diff = time.Duration(float64(diff) / speed)
			}
			if diff > 0 {
				if err := sleepCtx(ctx, diff); err != nil {
					return sent, err
				}
			}
		}
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if err := pub.PublishOne(ctx, row); err != nil {
			return sent, err
		}
		sent++
		prev = row.Timestamp
	}
}

// ReplayLogFile opens a file and replays its readings.
func ReplayLogFile(ctx context.Context, path string, pub ReadingPublisher, speed float64) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return ReplayLog(ctx, f, pub, speed)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
