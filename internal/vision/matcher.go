package vision

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/attendance/internal/attendance"
)

// Searcher ranks gallery identities by distance to an embedding.
type Searcher interface {
	Search(embedding []float32, k int, threshold float64) []attendance.Candidate
}

// GalleryMatcher embeds a face crop and looks it up in the gallery.
type GalleryMatcher struct {
	client    *Client
	gallery   Searcher
	topK      int
	threshold float64
}

// NewGalleryMatcher creates a matcher returning up to topK candidates, each carrying
// threshold as its acceptance limit.
func NewGalleryMatcher(client *Client, gallery Searcher, topK int, threshold float64) *GalleryMatcher {
	if topK <= 0 {
		topK = 5
	}
	return &GalleryMatcher{client: client, gallery: gallery, topK: topK, threshold: threshold}
}

// Match implements attendance.Matcher. A crop without a recognizable face yields no
// candidates rather than an error.
func (m *GalleryMatcher) Match(ctx context.Context, crop *attendance.Crop) ([]attendance.Candidate, error) {
	embedding, err := m.client.EmbedFace(ctx, crop.Data)
	if errors.Is(err, ErrNoFace) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("embedding face: %w", err)
	}
	return m.gallery.Search(embedding, m.topK, m.threshold), nil
}
