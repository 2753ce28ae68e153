package vision

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/kozaktomas/attendance/internal/attendance"
)

// RemoteDetector finds faces by sending frames to the embedding server.
type RemoteDetector struct {
	client   *Client
	maxSize  int
	minScore float64
}

// NewRemoteDetector creates a detector. Frames larger than maxSize are downscaled before
// upload; faces scoring below minScore are dropped.
func NewRemoteDetector(client *Client, maxSize int, minScore float64) *RemoteDetector {
	return &RemoteDetector{client: client, maxSize: maxSize, minScore: minScore}
}

// Detect returns the faces in img in frame coordinates. Region ids are "face_<n>" by the
// server's face index.
func (d *RemoteDetector) Detect(ctx context.Context, img image.Image) ([]attendance.FaceRegion, error) {
	scaled, scale := Downscale(img, d.maxSize)
	data, err := EncodeJPEG(scaled)
	if err != nil {
		return nil, err
	}

	resp, err := d.client.DetectFaces(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("detecting faces: %w", err)
	}

	bounds := img.Bounds()
	regions := make([]attendance.FaceRegion, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		if len(f.BBox) != 4 || f.DetScore < d.minScore {
			continue
		}
		box := image.Rect(
			bounds.Min.X+int(math.Floor(f.BBox[0]*scale)),
			bounds.Min.Y+int(math.Floor(f.BBox[1]*scale)),
			bounds.Min.X+int(math.Ceil(f.BBox[2]*scale)),
			bounds.Min.Y+int(math.Ceil(f.BBox[3]*scale)),
		).Intersect(bounds)
		if box.Empty() {
			continue
		}
		regions = append(regions, attendance.FaceRegion{
			RegionID: fmt.Sprintf("face_%d", f.FaceIndex),
			Box:      box,
		})
	}
	return regions, nil
}
