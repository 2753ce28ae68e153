package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/attendance/internal/attendance"
)

// blockingRunner holds each capture until release is closed.
type blockingRunner struct {
	release chan struct{}
	rec     *attendance.Record
	err     error

	mu    sync.Mutex
	stops int
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{release: make(chan struct{})}
}

func (r *blockingRunner) Capture(ctx context.Context, req attendance.Request) (*attendance.Record, error) {
	select {
	case <-r.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if r.err != nil {
		return nil, r.err
	}
	if r.rec != nil {
		return r.rec, nil
	}
	a := attendance.NewIdentitySet()
	a.Add("alice")
	a.Add("bob")
	b := attendance.NewIdentitySet()
	b.Add("bob")
	b.Add("carol")
	return attendance.NewRecord(req, a, b, time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)), nil
}

func (r *blockingRunner) StopWindow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	return true
}

func newTestJob(t *testing.T, runner attendance.Runner, opts ...attendance.JobOption) *attendance.Job {
	t.Helper()
	job := attendance.NewJob(runner, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = job.Shutdown(ctx)
	})
	return job
}

// waitForStatus polls the job until it reaches want.
func waitForStatus(t *testing.T, job *attendance.Job, want attendance.Status) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if job.Poll().Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job did not reach %s, last snapshot %+v", want, job.Poll())
}

func doRequest(t *testing.T, h http.HandlerFunc, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

const validBody = `{"date":"2026-03-02","period":"1","subject":"Math"}`
