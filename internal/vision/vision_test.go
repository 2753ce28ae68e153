package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/kozaktomas/attendance/internal/attendance"
)

func createTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.Set(x, y, c)
		}
	}
	return img
}

type uploadLog struct {
	mu     sync.Mutex
	images [][]byte
}

func (l *uploadLog) add(data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.images = append(l.images, data)
}

func (l *uploadLog) all() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.images
}

// faceServer answers /embed/face with resp and records the uploaded images.
func faceServer(t *testing.T, status int, resp any) (*httptest.Server, *uploadLog) {
	t.Helper()
	uploads := &uploadLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed/face" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(file)
		uploads.add(data)
		if ct := header.Header.Get("Content-Type"); ct != "image/jpeg" {
			http.Error(w, "unexpected content type "+ct, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, uploads
}

func TestClient_DetectFaces(t *testing.T) {
	srv, uploads := faceServer(t, http.StatusOK, FaceResponse{
		FacesCount: 1,
		Faces:      []FaceDetection{{FaceIndex: 0, Embedding: []float32{1, 0}, BBox: []float64{1, 2, 3, 4}, DetScore: 0.9}},
	})
	c := NewClient(srv.URL+"/", 0)

	data, _ := EncodeJPEG(createTestImage(10, 10, color.White))
	resp, err := c.DetectFaces(context.Background(), data)
	if err != nil {
		t.Fatalf("DetectFaces: %v", err)
	}
	if len(resp.Faces) != 1 || resp.Faces[0].DetScore != 0.9 {
		t.Errorf("response = %+v", resp)
	}
	if got := uploads.all(); len(got) != 1 || !bytes.Equal(got[0], data) {
		t.Error("server did not receive the image")
	}
}

func TestClient_APIError(t *testing.T) {
	srv, _ := faceServer(t, http.StatusInternalServerError, map[string]string{"detail": "model not loaded"})
	c := NewClient(srv.URL, 0)

	data, _ := EncodeJPEG(createTestImage(4, 4, color.White))
	_, err := c.DetectFaces(context.Background(), data)
	if err == nil || !strings.Contains(err.Error(), "status 500") {
		t.Errorf("error = %v, want API error", err)
	}
}

func TestClient_EmbedFace(t *testing.T) {
	tests := []struct {
		name    string
		faces   []FaceDetection
		want    []float32
		wantErr error
	}{
		{
			name: "most confident face",
			faces: []FaceDetection{
				{FaceIndex: 0, Embedding: []float32{1, 0}, DetScore: 0.6},
				{FaceIndex: 1, Embedding: []float32{0, 1}, DetScore: 0.95},
			},
			want: []float32{0, 1},
		},
		{name: "no faces", faces: nil, wantErr: ErrNoFace},
		{name: "face without embedding", faces: []FaceDetection{{DetScore: 0.9}}, wantErr: ErrNoFace},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := faceServer(t, http.StatusOK, FaceResponse{Faces: tt.faces})
			c := NewClient(srv.URL, 0)
			data, _ := EncodeJPEG(createTestImage(4, 4, color.White))

			got, err := c.EmbedFace(context.Background(), data)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("embedding = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("embedding = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestDetectMIMEType(t *testing.T) {
	tests := []struct {
		data []byte
		want string
	}{
		{[]byte{0xFF, 0xD8, 0xFF, 0xE0}, "image/jpeg"},
		{[]byte{0x89, 0x50, 0x4E, 0x47, 0x0D}, "image/png"},
		{[]byte{0x00}, "application/octet-stream"},
		{nil, "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := detectMIMEType(tt.data); got != tt.want {
			t.Errorf("detectMIMEType(%x) = %q, want %q", tt.data, got, tt.want)
		}
	}
}

func TestDownscale(t *testing.T) {
	img := createTestImage(400, 200, color.White)

	scaled, scale := Downscale(img, 100)
	if scaled.Bounds().Dx() != 100 || scaled.Bounds().Dy() != 50 {
		t.Errorf("scaled size = %v, want 100x50", scaled.Bounds())
	}
	if scale != 4 {
		t.Errorf("scale = %v, want 4", scale)
	}

	same, scale := Downscale(img, 1000)
	if same != image.Image(img) || scale != 1 {
		t.Error("an image that fits should be returned unchanged")
	}
}

func TestPadBox(t *testing.T) {
	bounds := image.Rect(0, 0, 100, 100)
	tests := []struct {
		name string
		box  image.Rectangle
		pct  float64
		want image.Rectangle
	}{
		{"centered", image.Rect(40, 40, 60, 60), 0.5, image.Rect(30, 30, 70, 70)},
		{"clamped at edge", image.Rect(0, 90, 20, 100), 0.5, image.Rect(0, 85, 30, 100)},
		{"negative padding", image.Rect(10, 10, 20, 20), -1, image.Rect(10, 10, 20, 20)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PadBox(tt.box, bounds, tt.pct); got != tt.want {
				t.Errorf("PadBox = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCropFace(t *testing.T) {
	img := createTestImage(200, 200, color.RGBA{R: 200, A: 255})

	crop, err := CropFace(img, image.Rect(50, 50, 150, 150), 0.1, 64)
	if err != nil {
		t.Fatalf("CropFace: %v", err)
	}
	defer crop.Release()

	if crop.Bounds != image.Rect(40, 40, 160, 160) {
		t.Errorf("bounds = %v", crop.Bounds)
	}
	decoded, err := jpeg.Decode(bytes.NewReader(crop.Data))
	if err != nil {
		t.Fatalf("crop is not a JPEG: %v", err)
	}
	if decoded.Bounds().Dx() != 64 {
		t.Errorf("crop width = %d, want 64", decoded.Bounds().Dx())
	}

	if _, err := CropFace(img, image.Rect(300, 300, 400, 400), 0, 0); err == nil {
		t.Error("box outside the frame should fail")
	}
}

func TestRemoteDetector_Detect(t *testing.T) {
	srv, uploads := faceServer(t, http.StatusOK, FaceResponse{Faces: []FaceDetection{
		{FaceIndex: 0, BBox: []float64{10, 10, 20, 20}, DetScore: 0.9},
		{FaceIndex: 1, BBox: []float64{30, 5, 45, 25}, DetScore: 0.2},
		{FaceIndex: 2, BBox: []float64{1, 2}, DetScore: 0.9},
		{FaceIndex: 3, BBox: []float64{90, 40, 120, 60}, DetScore: 0.8},
	}})
	d := NewRemoteDetector(NewClient(srv.URL, 0), 100, 0.5)

	regions, err := d.Detect(context.Background(), createTestImage(200, 100, color.White))
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}

	want := []attendance.FaceRegion{
		{RegionID: "face_0", Box: image.Rect(20, 20, 40, 40)},
		{RegionID: "face_3", Box: image.Rect(180, 80, 200, 100)},
	}
	if len(regions) != len(want) {
		t.Fatalf("regions = %+v, want %+v", regions, want)
	}
	for i := range want {
		if regions[i] != want[i] {
			t.Errorf("region %d = %+v, want %+v", i, regions[i], want[i])
		}
	}

	sent, err := jpeg.Decode(bytes.NewReader(uploads.all()[0]))
	if err != nil {
		t.Fatal(err)
	}
	if sent.Bounds().Dx() != 100 {
		t.Errorf("uploaded width = %d, want downscaled 100", sent.Bounds().Dx())
	}
}

type fixedSearcher struct {
	got        []float32
	candidates []attendance.Candidate
}

func (s *fixedSearcher) Search(embedding []float32, _ int, _ float64) []attendance.Candidate {
	s.got = embedding
	return s.candidates
}

func TestGalleryMatcher_Match(t *testing.T) {
	srv, _ := faceServer(t, http.StatusOK, FaceResponse{Faces: []FaceDetection{
		{Embedding: []float32{0.5, 0.5}, DetScore: 0.9},
	}})
	searcher := &fixedSearcher{candidates: []attendance.Candidate{{Identity: "alice", Distance: 0.2, Threshold: 0.5}}}
	m := NewGalleryMatcher(NewClient(srv.URL, 0), searcher, 3, 0.5)

	data, _ := EncodeJPEG(createTestImage(8, 8, color.White))
	crop := attendance.NewCrop(data, image.Rect(0, 0, 8, 8))
	defer crop.Release()

	got, err := m.Match(context.Background(), crop)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(got) != 1 || got[0].Identity != "alice" {
		t.Errorf("candidates = %+v", got)
	}
	if len(searcher.got) != 2 {
		t.Errorf("searched with %v", searcher.got)
	}
}

func TestGalleryMatcher_NoFace(t *testing.T) {
	srv, _ := faceServer(t, http.StatusOK, FaceResponse{})
	m := NewGalleryMatcher(NewClient(srv.URL, 0), &fixedSearcher{}, 3, 0.5)

	data, _ := EncodeJPEG(createTestImage(8, 8, color.White))
	got, err := m.Match(context.Background(), attendance.NewCrop(data, image.Rect(0, 0, 8, 8)))
	if err != nil || len(got) != 0 {
		t.Errorf("got (%v, %v), want no candidates and no error", got, err)
	}
}

func TestGalleryMatcher_ServerError(t *testing.T) {
	srv, _ := faceServer(t, http.StatusBadGateway, map[string]string{})
	m := NewGalleryMatcher(NewClient(srv.URL, 0), &fixedSearcher{}, 3, 0.5)

	data, _ := EncodeJPEG(createTestImage(8, 8, color.White))
	if _, err := m.Match(context.Background(), attendance.NewCrop(data, image.Rect(0, 0, 8, 8))); err == nil {
		t.Error("expected an error")
	}
}
