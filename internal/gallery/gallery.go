// Package gallery holds the reference faces of known students and answers nearest
// identity queries over their embeddings.
package gallery

import (
	"sort"

	"github.com/kozaktomas/attendance/internal/attendance"
)

// Gallery ranks identities by their closest reference embedding.
type Gallery struct {
	index *Index
}

// New wraps an index.
func New(index *Index) *Gallery {
	return &Gallery{index: index}
}

// Index returns the underlying index.
func (g *Gallery) Index() *Index {
	return g.index
}

// Len returns the number of reference embeddings.
func (g *Gallery) Len() int {
	return g.index.Len()
}

// Identities lists the distinct identities in the gallery, sorted.
func (g *Gallery) Identities() []string {
	set := attendance.NewIdentitySet()
	for _, r := range g.index.References() {
		set.Add(r.Identity)
	}
	return set.Sorted()
}

// Search returns up to k identities ordered by ascending distance, each with the distance
// of its closest reference. Every candidate carries threshold so the caller can decide
// acceptance.
func (g *Gallery) Search(embedding []float32, k int, threshold float64) []attendance.Candidate {
	if k <= 0 {
		return nil
	}

	best := make(map[string]float64)
	for _, n := range g.index.Search(embedding, k*searchMultiplier) {
		id := n.Reference.Identity
		if d, ok := best[id]; !ok || n.Distance < d {
			best[id] = n.Distance
		}
	}

	out := make([]attendance.Candidate, 0, len(best))
	for id, d := range best {
		out = append(out, attendance.Candidate{Identity: id, Distance: d, Threshold: threshold})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Identity < out[j].Identity
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}
