package attendance

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"
)

func TestSampleStep(t *testing.T) {
	tests := []struct {
		fps  float64
		want int
	}{
		{30, 30},
		{29.97, 29},
		{1, 1},
		{0.5, 1},
		{0, 1},
		{-4, 1},
	}
	for _, tt := range tests {
		if got := sampleStep(tt.fps); got != tt.want {
			t.Errorf("sampleStep(%v) = %d, want %d", tt.fps, got, tt.want)
		}
	}
}

func TestSessionProcessor_Run_SamplesOneFramePerSecond(t *testing.T) {
	det := &scriptedDetector{}
	p := NewSessionProcessor(det, &keyedMatcher{}, boxCropper, quietLogger())
	src := &fakeSource{fps: 3, total: 9}

	if _, err := p.Run(context.Background(), src, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.reads != 3 {
		t.Errorf("decoded %d frames, want 3", src.reads)
	}
	if src.grabs != 6 {
		t.Errorf("skipped %d frames, want 6", src.grabs)
	}
	if det.calls != 3 {
		t.Errorf("detector called %d times, want 3", det.calls)
	}
}

func TestSessionProcessor_Run_StopsAfterDuration(t *testing.T) {
	det := &scriptedDetector{}
	p := NewSessionProcessor(det, &keyedMatcher{}, boxCropper, quietLogger())
	src := &fakeSource{fps: 2, total: 100}

	if _, err := p.Run(context.Background(), src, 2*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.pos != 4 {
		t.Errorf("consumed %d frames, want 4", src.pos)
	}
	if src.reads != 2 {
		t.Errorf("sampled %d frames, want 2", src.reads)
	}
}

func TestSessionProcessor_Run_UnknownFPSUsesDefault(t *testing.T) {
	p := NewSessionProcessor(&scriptedDetector{}, &keyedMatcher{}, boxCropper, quietLogger())
	src := &fakeSource{fps: 0, total: 60}

	p.Run(context.Background(), src, 0)
	if src.reads != 2 {
		t.Errorf("sampled %d frames, want 2 at the default rate", src.reads)
	}
}

func TestSessionProcessor_Run_CollectsDistinctIdentities(t *testing.T) {
	det := &scriptedDetector{frames: [][]FaceRegion{
		{region("face_0", 1), region("face_1", 2)},
		{region("face_0", 1), region("face_2", 3)},
		{region("face_3", 4)},
	}}
	m := &keyedMatcher{candidates: map[int][]Candidate{
		1: {cand("alice", 0.2)},
		2: {cand("bob", 0.3)},
		3: {cand("alice", 0.1)}, // alice already claimed by face_0
		4: {cand("carol", 0.9)}, // too far
	}}
	p := NewSessionProcessor(det, m, boxCropper, quietLogger())

	got, err := p.Run(context.Background(), &fakeSource{fps: 1, total: 3}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertIdentities(t, got.Sorted(), []string{"alice", "bob"})
	// face_0 in the second frame is served from the cache.
	if m.callCount() != 4 {
		t.Errorf("matcher called %d times, want 4", m.callCount())
	}
}

func TestSessionProcessor_Run_NewFaceReusingRegionIDIsIdentified(t *testing.T) {
	// alice leaves and carol is detected next under the same per-frame id.
	det := &scriptedDetector{frames: [][]FaceRegion{
		{region("face_0", 1)},
		{region("face_0", 50)},
		{region("face_0", 50)},
		{region("face_0", 50)},
	}}
	m := &keyedMatcher{candidates: map[int][]Candidate{
		1:  {cand("alice", 0.1)},
		50: {cand("carol", 0.2)},
	}}
	p := NewSessionProcessor(det, m, boxCropper, quietLogger())

	got, err := p.Run(context.Background(), &fakeSource{fps: 1, total: 4}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertIdentities(t, got.Sorted(), []string{"alice", "carol"})
	// carol is matched once, then tracked by her box.
	if m.callCount() != 2 {
		t.Errorf("matcher called %d times, want 2", m.callCount())
	}
}

func TestSessionProcessor_Run_TrackedRegionIsNotCropped(t *testing.T) {
	det := &scriptedDetector{frames: [][]FaceRegion{
		{region("face_0", 1)},
		{region("face_0", 1)},
		{region("face_0", 1)},
	}}
	m := &keyedMatcher{candidates: map[int][]Candidate{1: {cand("alice", 0.1)}}}
	crops := 0
	cropper := func(img image.Image, box image.Rectangle) (*Crop, error) {
		crops++
		return boxCropper(img, box)
	}
	p := NewSessionProcessor(det, m, cropper, quietLogger())

	if _, err := p.Run(context.Background(), &fakeSource{fps: 1, total: 3}, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if crops != 1 {
		t.Errorf("cropped %d times, want 1", crops)
	}
}

func TestSessionProcessor_Run_DetectionFailuresAreSkipped(t *testing.T) {
	det := &scriptedDetector{
		frames: [][]FaceRegion{nil, {region("face_0", 1), region("face_1", 2)}},
		errs:   map[int]error{0: errors.New("detector timeout")},
	}
	m := &keyedMatcher{
		candidates: map[int][]Candidate{2: {cand("bob", 0.1)}},
		errs:       map[int]error{1: errors.New("bad crop")},
	}
	p := NewSessionProcessor(det, m, boxCropper, quietLogger())

	got, err := p.Run(context.Background(), &fakeSource{fps: 1, total: 2}, 0)
	if err != nil {
		t.Fatalf("per-face failures must not fail the window: %v", err)
	}
	assertIdentities(t, got.Sorted(), []string{"bob"})
}

func TestSessionProcessor_Run_CancelReturnsPartialSet(t *testing.T) {
	det := &scriptedDetector{frames: [][]FaceRegion{
		{region("face_0", 1)},
		{region("face_1", 2)},
		{region("face_2", 3)},
	}}
	m := &keyedMatcher{candidates: map[int][]Candidate{
		1: {cand("alice", 0.1)},
		2: {cand("bob", 0.1)},
		3: {cand("carol", 0.1)},
	}}
	p := NewSessionProcessor(det, m, boxCropper, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.OnFrame = func(fp FrameProgress) {
		if fp.Sampled == 2 {
			cancel()
		}
	}

	got, err := p.Run(ctx, &fakeSource{fps: 1, total: 10}, 0)
	if err != nil {
		t.Fatalf("cancel should not be an error: %v", err)
	}
	assertIdentities(t, got.Sorted(), []string{"alice", "bob"})
}

func TestSessionProcessor_Run_ReadErrorFailsWindow(t *testing.T) {
	p := NewSessionProcessor(&scriptedDetector{}, &keyedMatcher{}, boxCropper, quietLogger())
	boom := errors.New("device unplugged")

	_, err := p.Run(context.Background(), &fakeSource{fps: 1, total: 5, readErr: boom}, 0)
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
}

func TestSessionProcessor_Run_WindowsAreIndependent(t *testing.T) {
	det := &scriptedDetector{frames: [][]FaceRegion{
		{region("face_0", 1)},
		{region("face_0", 2)},
	}}
	m := &keyedMatcher{candidates: map[int][]Candidate{
		1: {cand("alice", 0.1)},
		2: {cand("bob", 0.1)},
	}}
	p := NewSessionProcessor(det, m, boxCropper, quietLogger())

	first, _ := p.Run(context.Background(), &fakeSource{fps: 1, total: 1}, 0)
	second, _ := p.Run(context.Background(), &fakeSource{fps: 1, total: 1}, 0)

	assertIdentities(t, first.Sorted(), []string{"alice"})
	// The region id face_0 must not carry over from the previous window.
	assertIdentities(t, second.Sorted(), []string{"bob"})
}

func TestSessionProcessor_Run_ReportsProgress(t *testing.T) {
	det := &scriptedDetector{frames: [][]FaceRegion{{region("face_0", 1)}}}
	m := &keyedMatcher{candidates: map[int][]Candidate{1: {cand("alice", 0.1)}}}
	p := NewSessionProcessor(det, m, boxCropper, quietLogger())

	var updates []FrameProgress
	p.OnFrame = func(fp FrameProgress) { updates = append(updates, fp) }
	p.Run(context.Background(), &fakeSource{fps: 2, total: 4}, 0)

	if len(updates) != 2 {
		t.Fatalf("got %d progress updates, want 2", len(updates))
	}
	first := updates[0]
	if first.Frame != 2 || first.Sampled != 1 || first.Faces != 1 || first.Identities != 1 {
		t.Errorf("first update = %+v", first)
	}
}

func assertIdentities(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("identities = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("identities = %v, want %v", got, want)
		}
	}
}
