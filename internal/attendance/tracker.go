package attendance

import (
	"context"
	"fmt"
	"image"
	"math"
)

// MinTrackIoU is the box overlap a region needs with its previous box to keep the
// identity resolved for its id.
const MinTrackIoU = 0.3

// trackedRegion is a resolved region and the box it was last seen at.
type trackedRegion struct {
	identity string
	box      image.Rectangle
}

// Tracker remembers which identity each detector region resolved to during one window,
// so a face that keeps the same region id is matched only once.
//
// Detectors number regions per detection pass, so an id alone does not follow a face
// across frames. A cached identity is reused only while the region's box overlaps its
// previous box by at least MinTrackIoU; otherwise the entry is dropped and the face is
// matched again.
//
// Every identity is given to at most one region per window: once claimed it stays in
// the window's used set until Reset.
type Tracker struct {
	matcher  Matcher
	resolved map[string]trackedRegion
	used     IdentitySet
}

// NewTracker creates a tracker backed by matcher.
func NewTracker(matcher Matcher) *Tracker {
	return &Tracker{
		matcher:  matcher,
		resolved: make(map[string]trackedRegion),
		used:     make(IdentitySet),
	}
}

// Reset forgets all resolved regions and claimed identities. Called at the start of each window.
func (t *Tracker) Reset() {
	t.resolved = make(map[string]trackedRegion)
	t.used = make(IdentitySet)
}

// Lookup returns the cached identity of region and adds it to current. An entry whose
// box no longer overlaps the region is dropped and reported as a miss.
func (t *Tracker) Lookup(region FaceRegion, current IdentitySet) (string, bool) {
	tr, found := t.resolved[region.RegionID]
	if !found {
		return "", false
	}
	if IoU(tr.box, region.Box) < MinTrackIoU {
		delete(t.resolved, region.RegionID)
		return "", false
	}
	tr.box = region.Box
	t.resolved[region.RegionID] = tr
	current.Add(tr.identity)
	return tr.identity, true
}

// Used returns the identities claimed in the current window.
func (t *Tracker) Used() IdentitySet {
	return t.used
}

// Resolve returns the identity for region, matching crop against the gallery when the
// region is not tracked yet (see Lookup). current holds the identities already seen in this
// frame and is updated on acceptance. The crop is released before Resolve returns.
//
// ok is false when no candidate was acceptable; the region is then left unresolved so a
// later frame can retry it.
func (t *Tracker) Resolve(ctx context.Context, region FaceRegion, crop *Crop, current IdentitySet) (name string, ok bool, err error) {
	defer crop.Release()

	if name, found := t.Lookup(region, current); found {
		return name, true, nil
	}

	candidates, err := t.matcher.Match(ctx, crop)
	if err != nil {
		return "", false, fmt.Errorf("%w: region %s: %w", ErrDetectionFailure, region.RegionID, err)
	}

	best, found := t.pick(candidates, current)
	if !found {
		return "", false, nil
	}

	t.resolved[region.RegionID] = trackedRegion{identity: best, box: region.Box}
	t.used.Add(best)
	current.Add(best)
	return best, true, nil
}

// pick selects the closest candidate within its threshold that is not yet claimed.
func (t *Tracker) pick(candidates []Candidate, current IdentitySet) (string, bool) {
	best := ""
	bestDistance := math.Inf(1)
	for _, c := range candidates {
		if c.Identity == "" || c.Distance > c.Threshold || c.Distance >= bestDistance {
			continue
		}
		if current.Has(c.Identity) || t.used.Has(c.Identity) {
			continue
		}
		best = c.Identity
		bestDistance = c.Distance
	}
	return best, best != ""
}

// IoU returns the intersection over union of two boxes, 0 when either is empty.
func IoU(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	ia := area(inter)
	union := area(a) + area(b) - ia
	if union <= 0 {
		return 0
	}
	return float64(ia) / float64(union)
}

func area(r image.Rectangle) int {
	return r.Dx() * r.Dy()
}
