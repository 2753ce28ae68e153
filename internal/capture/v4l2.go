//go:build linux

package capture

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"net/url"
	"strconv"

	"github.com/blackjack/webcam"
	"github.com/pkg/errors"
)

// fourcc "MJPG"
const pixelFormatMJPEG = webcam.PixelFormat(0x47504A4D)

const (
	defaultV4L2Width  = 640
	defaultV4L2Height = 480
	frameWaitTimeout  = 5 // seconds
)

func init() {
	Register("v4l2", openV4L2)
}

// V4L2Source streams MJPEG frames from a Video4Linux device.
type V4L2Source struct {
	cam *webcam.Webcam
	fps float64
}

// openV4L2 handles "v4l2:///dev/video0?width=1280&height=720&fps=30".
func openV4L2(_ context.Context, u *url.URL) (Source, error) {
	path := devicePath(u)
	cam, err := webcam.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "Can not open device "+path)
	}

	q := u.Query()
	width := queryUint(q, "width", defaultV4L2Width)
	height := queryUint(q, "height", defaultV4L2Height)

	if _, ok := cam.GetSupportedFormats()[pixelFormatMJPEG]; !ok {
		cam.Close()
		return nil, errors.Errorf("device %s does not support MJPEG", path)
	}
	if _, _, _, err := cam.SetImageFormat(pixelFormatMJPEG, width, height); err != nil {
		cam.Close()
		return nil, errors.Wrap(err, "Can not set image format")
	}
	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, errors.Wrap(err, "Can not start streaming")
	}

	fps := 0.0
	if s := q.Get("fps"); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil && v > 0 {
			fps = v
		}
	}
	return &V4L2Source{cam: cam, fps: fps}, nil
}

func queryUint(q url.Values, key string, def uint32) uint32 {
	if v, err := strconv.ParseUint(q.Get(key), 10, 32); err == nil && v > 0 {
		return uint32(v)
	}
	return def
}

// FPS returns the frame rate requested in the device URL, or 0.
func (s *V4L2Source) FPS() float64 {
	return s.fps
}

func (s *V4L2Source) next() ([]byte, error) {
	for {
		err := s.cam.WaitForFrame(frameWaitTimeout)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			continue
		default:
			return nil, errors.Wrap(err, "Failed when waiting for frame")
		}

		frame, err := s.cam.ReadFrame()
		if err != nil {
			return nil, errors.Wrap(err, "Can not read frame")
		}
		if len(frame) == 0 {
			continue
		}
		return frame, nil
	}
}

// Grab dequeues one frame and drops it.
func (s *V4L2Source) Grab() error {
	_, err := s.next()
	return err
}

// Read dequeues and decodes one frame.
func (s *V4L2Source) Read() (image.Image, error) {
	frame, err := s.next()
	if err != nil {
		return nil, err
	}
	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, errors.Wrap(err, "Can not decode image")
	}
	return img, nil
}

// Close stops streaming and releases the device.
func (s *V4L2Source) Close() error {
	_ = s.cam.StopStreaming()
	return s.cam.Close()
}
