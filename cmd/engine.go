package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/capture"
	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/gallery"
	"github.com/kozaktomas/attendance/internal/vision"
)

// engine is the wired capture pipeline shared by serve and capture.
type engine struct {
	device     *capture.Device
	gallery    *gallery.Gallery
	aggregator *attendance.Aggregator
	close      func() error
}

func newDetector(cfg *config.VisionConfig, client *vision.Client) (attendance.Detector, func() error, error) {
	switch cfg.Detector {
	case "cascade":
		return newCascadeDetector(cfg.CascadePath)
	default:
		return vision.NewRemoteDetector(client, cfg.MaxFrameSize, cfg.MinDetScore), func() error { return nil }, nil
	}
}

// buildEngine loads the gallery and wires detector, matcher, processor and aggregator.
// cache may be nil.
func buildEngine(ctx context.Context, cfg *config.Config, cache gallery.EmbeddingCache, logger *slog.Logger) (*engine, error) {
	client := vision.NewClient(cfg.Vision.EmbeddingURL, cfg.Vision.Timeout)

	fmt.Printf("Loading gallery from %s...\n", cfg.Gallery.Dir)
	loader := gallery.NewLoader(client, cache, logger.With("component", "gallery"))
	g, err := loader.Open(ctx, cfg.Gallery.Dir, cfg.Gallery.IndexPath)
	if err != nil {
		return nil, fmt.Errorf("loading gallery: %w", err)
	}
	fmt.Printf("Gallery ready: %d identities, %d reference images\n", len(g.Identities()), g.Len())

	detector, closeDetector, err := newDetector(&cfg.Vision, client)
	if err != nil {
		return nil, err
	}

	matcher := vision.NewGalleryMatcher(client, g, cfg.Gallery.TopK, cfg.Gallery.Threshold)
	cropper := vision.NewCropper(cfg.Vision.CropPadding, cfg.Vision.CropMaxSize)
	processor := attendance.NewSessionProcessor(detector, matcher, cropper, logger.With("component", "session"))

	device := capture.NewDevice(cfg.Capture.Device)
	aggregator := attendance.NewAggregator(device, processor, attendance.AggregatorOptions{
		Window:        cfg.Capture.Window,
		QuietInterval: cfg.Capture.QuietInterval,
	}, logger.With("component", "aggregator"))

	return &engine{
		device:     device,
		gallery:    g,
		aggregator: aggregator,
		close:      closeDetector,
	}, nil
}
