package attendance

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/kozaktomas/attendance/internal/capture"
)

// FrameProgress describes the state of a window after a sampled frame.
type FrameProgress struct {
	Frame      int `json:"frame"`      // source frames consumed so far
	Sampled    int `json:"sampled"`    // frames that went through detection
	Faces      int `json:"faces"`      // faces detected in this frame
	Identities int `json:"identities"` // distinct identities confirmed in the window
}

// SessionProcessor runs one capture window: it samples about one frame per second of
// footage, resolves every detected face through the tracker and collects the identities.
type SessionProcessor struct {
	detector Detector
	tracker  *Tracker
	crop     Cropper
	logger   *slog.Logger

	// OnFrame, when set, is called after every sampled frame.
	OnFrame func(FrameProgress)
}

// NewSessionProcessor wires a processor. A nil logger uses slog.Default().
func NewSessionProcessor(detector Detector, matcher Matcher, crop Cropper, logger *slog.Logger) *SessionProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionProcessor{
		detector: detector,
		tracker:  NewTracker(matcher),
		crop:     crop,
		logger:   logger,
	}
}

// sampleStep returns how many source frames make up one sample.
func sampleStep(fps float64) int {
	step := int(fps)
	if step < 1 {
		return 1
	}
	return step
}

// Run processes src for duration worth of footage, or until the stream ends.
// Cancelling ctx stops the window early; the identities confirmed so far are returned
// without an error. A duration <= 0 reads until end of stream.
func (p *SessionProcessor) Run(ctx context.Context, src capture.Source, duration time.Duration) (IdentitySet, error) {
	p.tracker.Reset()

	fps := src.FPS()
	if fps <= 0 {
		fps = capture.DefaultFPS
	}
	step := sampleStep(fps)
	maxFrames := 0
	if duration > 0 {
		maxFrames = int(math.Ceil(duration.Seconds() * fps))
	}

	frame, sampled := 0, 0
	for {
		if ctx.Err() != nil {
			p.logger.Info("window stopped early", "frame", frame, "identities", len(p.tracker.Used()))
			break
		}
		if maxFrames > 0 && frame >= maxFrames {
			break
		}

		eof := false
		for range step - 1 {
			if err := src.Grab(); err != nil {
				if errors.Is(err, io.EOF) {
					eof = true
					break
				}
				return nil, fmt.Errorf("grabbing frame %d: %w", frame, err)
			}
			frame++
		}
		if eof {
			break
		}

		img, err := src.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading frame %d: %w", frame, err)
		}
		frame++
		sampled++

		faces := p.processFrame(ctx, img, frame)
		if p.OnFrame != nil {
			p.OnFrame(FrameProgress{
				Frame:      frame,
				Sampled:    sampled,
				Faces:      faces,
				Identities: len(p.tracker.Used()),
			})
		}
	}

	return p.tracker.Used().Clone(), nil
}

// processFrame detects and resolves all faces of one frame and returns the face count.
// Failures are logged and never abort the window.
func (p *SessionProcessor) processFrame(ctx context.Context, img image.Image, frame int) int {
	regions, err := p.detector.Detect(ctx, img)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("face detection failed", "frame", frame, "error", err)
		}
		return 0
	}

	current := make(IdentitySet)
	for _, r := range regions {
		if ctx.Err() != nil {
			break
		}
		if _, ok := p.tracker.Lookup(r, current); ok {
			continue
		}
		crop, err := p.crop(img, r.Box)
		if err != nil {
			p.logger.Warn("cropping face failed", "frame", frame, "region", r.RegionID, "error", err)
			continue
		}
		name, ok, err := p.tracker.Resolve(ctx, r, crop, current)
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Warn("error processing face", "frame", frame, "region", r.RegionID, "error", err)
			}
			continue
		}
		if ok {
			p.logger.Debug("face resolved", "frame", frame, "region", r.RegionID, "identity", name)
		}
	}
	return len(regions)
}
