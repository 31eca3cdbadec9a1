package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sensor-sim/internal/logging"
)

// TickStatus is the outcome of one loop iteration.
type TickStatus int

const (
	TickOK TickStatus = iota
	TickTransient
	TickFatal
)

func (s TickStatus) String() string {
	switch s {
	case TickOK:
		return "ok"
	case TickTransient:
		return "transient"
	case TickFatal:
		return "fatal"
	}
	return fmt.Sprintf("TickStatus(%d)", int(s))
}

type action int

const (
	actionContinue action = iota
	actionBackoff
	actionStop
)

// decisions maps each tick outcome to what the loop does next.
var decisions = map[TickStatus]action{
	TickOK:        actionContinue,
	TickTransient: actionBackoff,
	TickFatal:     actionStop,
}

// StopReason tells the caller of Run why the loop ended.
type StopReason int

const (
	// StopRequested means Stop or Close was called.
	StopRequested StopReason = iota
	// StopCancelled means the context was cancelled.
	StopCancelled
	// StopFatal means generation or serialization failed.
	StopFatal
	// StopConnectionLost means a publish failed and the link stayed down.
	StopConnectionLost
)

func (r StopReason) String() string {
	switch r {
	case StopRequested:
		return "stop requested"
	case StopCancelled:
		return "cancelled"
	case StopFatal:
		return "fatal"
	case StopConnectionLost:
		return "connection lost"
	}
	return fmt.Sprintf("StopReason(%d)", int(r))
}

type tickResult struct {
	status TickStatus
	err    error
}

// Run publishes one generated reading per interval until stopped. It requires
// a prior successful Connect and never panics.
func (p *Publisher) Run(ctx context.Context, interval time.Duration) (StopReason, error) {
	if !p.IsConnected() {
		return StopFatal, ErrNotConnected
	}
	if interval <= 0 {
		return StopFatal, fmt.Errorf("publish interval must be positive, got %s", interval)
	}
	log := p.logger(ctx)
	log.Info("publish loop started", "topic", p.cfg.Topic, "interval", interval)

	for {
		if reason, stopped := p.checkStop(ctx); stopped {
			log.Info("publish loop stopped", "reason", reason)
			return reason, nil
		}

		res := p.tick(ctx)
		switch decisions[res.status] {
		case actionStop:
			log.Error("publish loop aborted", "err", res.err)
			return StopFatal, res.err

		case actionBackoff:
			log.Warn("publish failed, backing off", "err", res.err, "backoff", p.opts.Backoff)
			if reason, stopped := p.sleep(ctx, p.opts.Backoff); stopped {
				log.Info("publish loop stopped", "reason", reason)
				return reason, nil
			}
			if !p.connectionOpen() {
				log.Warn("broker connection down after backoff")
				return StopConnectionLost, res.err
			}
			continue
		}

		if reason, stopped := p.sleep(ctx, interval); stopped {
			log.Info("publish loop stopped", "reason", reason)
			return reason, nil
		}
	}
}

func (p *Publisher) tick(ctx context.Context) (res tickResult) {
	defer func() {
		if r := recover(); r != nil {
			res = tickResult{status: TickFatal, err: fmt.Errorf("%w: %v", ErrPanic, r)}
		}
	}()
	reading := p.source.Generate()
	return classify(p.PublishOne(ctx, reading))
}

func classify(err error) tickResult {
	switch {
	case err == nil:
		return tickResult{status: TickOK}
	case errors.Is(err, ErrEncode):
		return tickResult{status: TickFatal, err: err}
	default:
		return tickResult{status: TickTransient, err: err}
	}
}

// checkStop reports whether the loop must end before doing more work.
func (p *Publisher) checkStop(ctx context.Context) (StopReason, bool) {
	select {
	case <-p.stopCh:
		return StopRequested, true
	default:
	}
	if ctx.Err() != nil {
		return StopCancelled, true
	}
	return 0, false
}

// sleep waits d, waking early on stop or cancellation.
func (p *Publisher) sleep(ctx context.Context, d time.Duration) (StopReason, bool) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-p.stopCh:
		return StopRequested, true
	case <-ctx.Done():
		return StopCancelled, true
	case <-timer.C:
	}
	return p.checkStop(ctx)
}

func (p *Publisher) logger(ctx context.Context) *slog.Logger {
	if p.opts.Logger != nil {
		return p.opts.Logger
	}
	return logging.FromContext(ctx)
}
