//go:build gocv

package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"

	"gocv.io/x/gocv"

	"github.com/kozaktomas/attendance/internal/attendance"
)

// CascadeDetector finds faces locally with an OpenCV Haar cascade.
type CascadeDetector struct {
	mu  sync.Mutex
	cls gocv.CascadeClassifier
}

// NewCascadeDetector loads the cascade file at modelPath.
func NewCascadeDetector(modelPath string) (*CascadeDetector, error) {
	if modelPath == "" {
		return nil, errors.New("cascade model path is required")
	}
	cls := gocv.NewCascadeClassifier()
	if !cls.Load(modelPath) {
		cls.Close()
		return nil, fmt.Errorf("loading haar cascade %s failed", modelPath)
	}
	return &CascadeDetector{cls: cls}, nil
}

// Detect implements attendance.Detector. Faces are numbered left to right.
func (d *CascadeDetector) Detect(_ context.Context, img image.Image) ([]attendance.FaceRegion, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("converting frame: %w", err)
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray)

	d.mu.Lock()
	rects := d.cls.DetectMultiScale(gray)
	d.mu.Unlock()

	sort.Slice(rects, func(i, j int) bool { return rects[i].Min.X < rects[j].Min.X })

	origin := img.Bounds().Min
	regions := make([]attendance.FaceRegion, 0, len(rects))
	for i, r := range rects {
		regions = append(regions, attendance.FaceRegion{
			RegionID: fmt.Sprintf("face_%d", i),
			Box:      r.Add(origin),
		})
	}
	return regions, nil
}

// Close releases the classifier.
func (d *CascadeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cls.Close()
}
