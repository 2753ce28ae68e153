package attendance

import (
	"context"
	"image"
	"io"
	"log/slog"
	"sync"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// region builds a face region whose box encodes key, so boxCropper and keyedMatcher can
// tell faces apart.
func region(id string, key int) FaceRegion {
	return FaceRegion{RegionID: id, Box: image.Rect(key, 0, key+10, 10)}
}

func cand(identity string, distance float64) Candidate {
	return Candidate{Identity: identity, Distance: distance, Threshold: 0.6}
}

func boxCropper(_ image.Image, box image.Rectangle) (*Crop, error) {
	return NewCrop([]byte{0xFF, 0xD8, 0xFF, 0xD9}, box), nil
}

// scriptedDetector returns frames[n] on the n-th call.
type scriptedDetector struct {
	mu     sync.Mutex
	frames [][]FaceRegion
	errs   map[int]error
	calls  int
}

func (d *scriptedDetector) Detect(_ context.Context, _ image.Image) ([]FaceRegion, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	idx := d.calls
	d.calls++
	if err := d.errs[idx]; err != nil {
		return nil, err
	}
	if idx < len(d.frames) {
		return d.frames[idx], nil
	}
	return nil, nil
}

// keyedMatcher answers with the candidates registered for the crop's box key.
type keyedMatcher struct {
	mu         sync.Mutex
	candidates map[int][]Candidate
	errs       map[int]error
	calls      int
}

func (m *keyedMatcher) Match(_ context.Context, crop *Crop) ([]Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	key := crop.Bounds.Min.X
	if err := m.errs[key]; err != nil {
		return nil, err
	}
	return m.candidates[key], nil
}

func (m *keyedMatcher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// fakeSource yields total blank frames.
type fakeSource struct {
	fps     float64
	total   int
	readErr error

	pos    int
	grabs  int
	reads  int
	closed bool
}

func (s *fakeSource) FPS() float64 { return s.fps }

func (s *fakeSource) Grab() error {
	if s.pos >= s.total {
		return io.EOF
	}
	s.pos++
	s.grabs++
	return nil
}

func (s *fakeSource) Read() (image.Image, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	if s.pos >= s.total {
		return nil, io.EOF
	}
	s.pos++
	s.reads++
	return image.NewGray(image.Rect(0, 0, 4, 4)), nil
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

// fakeRunner blocks Capture until release is closed.
type fakeRunner struct {
	release chan struct{}
	rec     *Record
	err     error
	panics  any

	mu    sync.Mutex
	stops int
	reqs  []Request
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{release: make(chan struct{})}
}

func (r *fakeRunner) Capture(ctx context.Context, req Request) (*Record, error) {
	r.mu.Lock()
	r.reqs = append(r.reqs, req)
	r.mu.Unlock()

	select {
	case <-r.release:
	case <-ctx.Done():
		return nil, aggregationFailed("interrupted", ctx.Err())
	}
	if r.panics != nil {
		panic(r.panics)
	}
	if r.err != nil {
		return nil, r.err
	}
	return r.rec, nil
}

func (r *fakeRunner) StopWindow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	return true
}

type memoryStore struct {
	mu      sync.Mutex
	records []*Record
	err     error
}

func (s *memoryStore) SaveRecord(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}
