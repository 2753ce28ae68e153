//go:build gocv

package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/url"
	"strconv"

	"gocv.io/x/gocv"
)

func init() {
	Register("opencv", openOpenCV)
}

// OpenCVSource reads frames through OpenCV's VideoCapture, which accepts camera
// indexes as well as video files and stream URLs.
type OpenCVSource struct {
	vc  *gocv.VideoCapture
	mat gocv.Mat
}

// openOpenCV handles "opencv://0" (camera index) and "opencv:///path/to/video.mp4".
func openOpenCV(_ context.Context, u *url.URL) (Source, error) {
	var device any = devicePath(u)
	if idx, err := strconv.Atoi(u.Host); err == nil && u.Path == "" {
		device = idx
	}

	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("could not open video device %v: %w", device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("could not open video device %v", device)
	}
	return &OpenCVSource{vc: vc, mat: gocv.NewMat()}, nil
}

// FPS returns the frame rate reported by OpenCV.
func (s *OpenCVSource) FPS() float64 {
	return s.vc.Get(gocv.VideoCaptureFPS)
}

// Grab skips one frame without decoding it.
func (s *OpenCVSource) Grab() error {
	s.vc.Grab(1)
	return nil
}

// Read decodes the next frame.
func (s *OpenCVSource) Read() (image.Image, error) {
	if ok := s.vc.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, io.EOF
	}
	img, err := s.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("converting frame: %w", err)
	}
	return img, nil
}

// Close releases the capture and the frame buffer.
func (s *OpenCVSource) Close() error {
	return errors.Join(s.mat.Close(), s.vc.Close())
}
