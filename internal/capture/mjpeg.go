package capture

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/url"
	"os"
	"strconv"
)

const megabyte = 1024 * 1024

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

func init() {
	Register("mjpeg", openMJPEG)
	Register("file", openMJPEG)
}

// splitJPEG is a bufio.SplitFunc that yields one complete JPEG image per token.
func splitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, jpegSOI)
	if start == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	end := bytes.Index(data[start:], jpegEOI)
	if end == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	return start + end + 2, data[start : start+end+2], nil
}

// MJPEGSource reads concatenated JPEG frames, as written by
// `ffmpeg -f image2pipe -vcodec mjpeg`.
type MJPEGSource struct {
	r       io.ReadCloser
	scanner *bufio.Scanner
	fps     float64
}

// NewMJPEGSource wraps r. fps <= 0 means unknown.
func NewMJPEGSource(r io.ReadCloser, fps float64) *MJPEGSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(splitJPEG)
	return &MJPEGSource{r: r, scanner: scanner, fps: fps}
}

// openMJPEG handles "mjpeg:///path/to/stream.mjpeg?fps=25".
func openMJPEG(_ context.Context, u *url.URL) (Source, error) {
	path := devicePath(u)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	fps := 0.0
	if s := u.Query().Get("fps"); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil && v > 0 {
			fps = v
		}
	}
	return NewMJPEGSource(f, fps), nil
}

// FPS returns the configured frame rate.
func (s *MJPEGSource) FPS() float64 {
	return s.fps
}

// Grab skips one frame without decoding it.
func (s *MJPEGSource) Grab() error {
	if !s.scanner.Scan() {
		return s.endErr()
	}
	return nil
}

// Read decodes the next frame.
func (s *MJPEGSource) Read() (image.Image, error) {
	if !s.scanner.Scan() {
		return nil, s.endErr()
	}
	img, err := jpeg.Decode(bytes.NewReader(s.scanner.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}
	return img, nil
}

// Close closes the underlying reader.
func (s *MJPEGSource) Close() error {
	return s.r.Close()
}

func (s *MJPEGSource) endErr() error {
	if err := s.scanner.Err(); err != nil {
		return fmt.Errorf("reading frames: %w", err)
	}
	return io.EOF
}
