// Package attendance implements the two-window attendance engine: per-window face
// tracking, window aggregation and the asynchronous job that exposes a run to callers.
package attendance

import (
	"context"
	"image"
	"sort"
	"sync"
)

// FaceRegion is one face found by a Detector in a single frame.
// RegionID is only meaningful within the detection pass that produced it.
type FaceRegion struct {
	RegionID string
	Box      image.Rectangle
}

// Candidate is one identity suggested by a Matcher for a face crop.
type Candidate struct {
	Identity  string  `json:"identity"`
	Distance  float64 `json:"distance"`
	Threshold float64 `json:"threshold"`
}

// Detector finds faces in a frame.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]FaceRegion, error)
}

// Matcher compares a face crop against the gallery it was built with.
type Matcher interface {
	Match(ctx context.Context, crop *Crop) ([]Candidate, error)
}

// Cropper cuts the face region out of a frame.
type Cropper func(img image.Image, box image.Rectangle) (*Crop, error)

var cropPool = sync.Pool{
	New: func() any { return make([]byte, 0, 64*1024) },
}

// Crop is an encoded face image borrowed from a shared buffer pool.
// Release must be called once the crop is no longer needed.
type Crop struct {
	Data   []byte
	Bounds image.Rectangle

	released bool
}

// NewCrop copies data into a pooled buffer.
func NewCrop(data []byte, bounds image.Rectangle) *Crop {
	buf := cropPool.Get().([]byte)
	if cap(buf) < len(data) {
		buf = make([]byte, len(data))
	}
	buf = buf[:len(data)]
	copy(buf, data)
	return &Crop{Data: buf, Bounds: bounds}
}

// Release returns the buffer to the pool. Calling it twice is a no-op.
func (c *Crop) Release() {
	if c == nil || c.released {
		return
	}
	c.released = true
	cropPool.Put(c.Data[:0]) //nolint:staticcheck
	c.Data = nil
}

// IdentitySet is a set of identity names.
type IdentitySet map[string]struct{}

// NewIdentitySet builds a set from names.
func NewIdentitySet(names ...string) IdentitySet {
	s := make(IdentitySet, len(names))
	for _, n := range names {
		s.Add(n)
	}
	return s
}

// Add inserts name into the set.
func (s IdentitySet) Add(name string) {
	s[name] = struct{}{}
}

// Has reports whether name is in the set.
func (s IdentitySet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the names in ascending order. The result is never nil.
func (s IdentitySet) Sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Intersect returns the names present in both sets.
func (s IdentitySet) Intersect(other IdentitySet) IdentitySet {
	out := make(IdentitySet)
	for n := range s {
		if other.Has(n) {
			out.Add(n)
		}
	}
	return out
}

// Clone returns a copy of the set.
func (s IdentitySet) Clone() IdentitySet {
	out := make(IdentitySet, len(s))
	for n := range s {
		out.Add(n)
	}
	return out
}
