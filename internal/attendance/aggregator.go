package attendance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kozaktomas/attendance/internal/capture"
)

// Phase names a step of an attendance run.
type Phase string

// Phases of an attendance run, in order.
const (
	PhaseFirstWindow  Phase = "first_window"
	PhaseQuiet        Phase = "quiet_interval"
	PhaseSecondWindow Phase = "second_window"
)

// Progress is reported while an attendance run is in flight.
type Progress struct {
	Phase   Phase  `json:"phase"`
	Message string `json:"message,omitempty"`
	FrameProgress
}

// AggregatorOptions configures window timing.
type AggregatorOptions struct {
	Window        time.Duration // length of each capture window
	QuietInterval time.Duration // pause between the windows
}

// Aggregator runs the two capture windows and intersects their identity sets.
type Aggregator struct {
	device    *capture.Device
	processor *SessionProcessor
	opts      AggregatorOptions
	logger    *slog.Logger

	// OnProgress, when set, receives phase changes and per-frame progress.
	OnProgress func(Progress)

	after func(time.Duration) <-chan time.Time
	now   func() time.Time

	mu         sync.Mutex
	stopWindow context.CancelFunc
}

// NewAggregator creates an aggregator that captures from device.
func NewAggregator(device *capture.Device, processor *SessionProcessor, opts AggregatorOptions, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		device:    device,
		processor: processor,
		opts:      opts,
		logger:    logger,
		after:     time.After,
		now:       time.Now,
	}
}

// Capture runs window A, waits for the quiet interval, runs window B and returns the
// record. Any failure is reported as an *AggregationError and no record is produced.
func (a *Aggregator) Capture(ctx context.Context, req Request) (*Record, error) {
	a.report(Progress{Phase: PhaseFirstWindow, Message: "Starting first capture..."})
	first, err := a.runWindow(ctx, PhaseFirstWindow)
	if err != nil {
		return nil, aggregationFailed("first capture failed", err)
	}
	a.logger.Info("first window finished", "identities", len(first))

	if a.opts.QuietInterval > 0 {
		a.report(Progress{
			Phase:   PhaseQuiet,
			Message: fmt.Sprintf("Waiting %s...", a.opts.QuietInterval),
		})
		select {
		case <-a.after(a.opts.QuietInterval):
		case <-ctx.Done():
			return nil, aggregationFailed("interrupted while waiting", ctx.Err())
		}
	}

	a.report(Progress{Phase: PhaseSecondWindow, Message: "Starting second capture..."})
	second, err := a.runWindow(ctx, PhaseSecondWindow)
	if err != nil {
		return nil, aggregationFailed("second capture failed", err)
	}
	a.logger.Info("second window finished", "identities", len(second))

	return NewRecord(req, first, second, a.now()), nil
}

// StopWindow ends the window currently being captured. The window keeps the identities
// it has confirmed so far. It reports false when no window is running.
func (a *Aggregator) StopWindow() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopWindow == nil {
		return false
	}
	a.stopWindow()
	return true
}

func (a *Aggregator) setStop(cancel context.CancelFunc) {
	a.mu.Lock()
	a.stopWindow = cancel
	a.mu.Unlock()
}

// runWindow holds the device for exactly one window.
func (a *Aggregator) runWindow(ctx context.Context, phase Phase) (IdentitySet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, release, err := a.device.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCaptureUnavailable, err)
	}
	defer release()

	windowCtx, cancel := context.WithCancel(ctx)
	a.setStop(cancel)
	defer func() {
		a.setStop(nil)
		cancel()
	}()

	a.processor.OnFrame = func(fp FrameProgress) {
		a.report(Progress{Phase: phase, FrameProgress: fp})
	}
	defer func() { a.processor.OnFrame = nil }()

	set, err := a.processor.Run(windowCtx, src, a.opts.Window)
	if err != nil {
		return nil, err
	}
	// A stop of the whole run is not a user "stop early" of this window.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return set, nil
}

func (a *Aggregator) report(p Progress) {
	if p.Message != "" {
		a.logger.Info(p.Message, "phase", p.Phase)
	}
	if a.OnProgress != nil {
		a.OnProgress(p)
	}
}
