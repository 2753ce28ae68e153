package handlers

import (
	"errors"
	"net/http"
	"testing"

	"github.com/kozaktomas/attendance/internal/attendance"
)

func TestAttendanceHandler_SubmitAndResult(t *testing.T) {
	runner := newBlockingRunner()
	job := newTestJob(t, runner)
	h := NewAttendanceHandler(job, NewEventBroadcaster())

	rec := doRequest(t, h.Result, http.MethodGet, "/api/v1/attendance/result", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("result before submit: status %d, want 404", rec.Code)
	}

	rec = doRequest(t, h.Submit, http.MethodPost, "/api/v1/attendance", validBody)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit: status %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[SubmitResponse](t, rec)
	if resp.RunID == "" || resp.Status != "started" {
		t.Errorf("unexpected submit response %+v", resp)
	}

	status := decodeBody[attendance.Snapshot](t, doRequest(t, h.Status, http.MethodGet, "/api/v1/attendance/status", ""))
	if status.Status != attendance.StatusProcessing || status.RunID != resp.RunID {
		t.Errorf("status while running = %+v", status)
	}

	rec = doRequest(t, h.Result, http.MethodGet, "/api/v1/attendance/result", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("result while processing: status %d, want 404", rec.Code)
	}

	close(runner.release)
	waitForStatus(t, job, attendance.StatusComplete)

	rec = doRequest(t, h.Result, http.MethodGet, "/api/v1/attendance/result", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("result after completion: status %d", rec.Code)
	}
	got := decodeBody[attendance.Record](t, rec)
	if len(got.Verified) != 1 || got.Verified[0] != "bob" {
		t.Errorf("verified = %v, want [bob]", got.Verified)
	}
}

func TestAttendanceHandler_SubmitRejects(t *testing.T) {
	runner := newBlockingRunner()
	job := newTestJob(t, runner)
	h := NewAttendanceHandler(job, NewEventBroadcaster())

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"date":`, http.StatusBadRequest},
		{"missing subject", `{"date":"2026-03-02","period":"1"}`, http.StatusBadRequest},
		{"blank period", `{"date":"2026-03-02","period":"  ","subject":"Math"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, h.Submit, http.MethodPost, "/api/v1/attendance", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status %d, want %d", rec.Code, tt.want)
			}
		})
	}
	if job.Poll().Status != attendance.StatusIdle {
		t.Errorf("rejected submissions changed state to %s", job.Poll().Status)
	}

	if rec := doRequest(t, h.Submit, http.MethodPost, "/api/v1/attendance", validBody); rec.Code != http.StatusAccepted {
		t.Fatalf("first submit: %d", rec.Code)
	}
	before := job.Poll()
	rec := doRequest(t, h.Submit, http.MethodPost, "/api/v1/attendance", `{"date":"2026-03-03","period":"2","subject":"Art"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("second submit: status %d, want 409", rec.Code)
	}
	if after := job.Poll(); after.RunID != before.RunID || after.Request.Subject != "Math" {
		t.Errorf("conflict changed state: %+v", after)
	}
	close(runner.release)
}

func TestAttendanceHandler_Stop(t *testing.T) {
	runner := newBlockingRunner()
	job := newTestJob(t, runner)
	h := NewAttendanceHandler(job, NewEventBroadcaster())

	if rec := doRequest(t, h.Stop, http.MethodPost, "/api/v1/attendance/stop", ""); rec.Code != http.StatusConflict {
		t.Errorf("stop while idle: status %d, want 409", rec.Code)
	}

	doRequest(t, h.Submit, http.MethodPost, "/api/v1/attendance", validBody)
	if rec := doRequest(t, h.Stop, http.MethodPost, "/api/v1/attendance/stop", ""); rec.Code != http.StatusOK {
		t.Errorf("stop while processing: status %d, want 200", rec.Code)
	}
	runner.mu.Lock()
	stops := runner.stops
	runner.mu.Unlock()
	if stops != 1 {
		t.Errorf("runner saw %d stops, want 1", stops)
	}
	close(runner.release)
}

func TestAttendanceHandler_FailedRunReportsError(t *testing.T) {
	runner := newBlockingRunner()
	runner.err = &attendance.AggregationError{Reason: "first capture failed", Err: attendance.ErrCaptureUnavailable}
	job := newTestJob(t, runner)
	h := NewAttendanceHandler(job, NewEventBroadcaster())

	doRequest(t, h.Submit, http.MethodPost, "/api/v1/attendance", validBody)
	close(runner.release)
	waitForStatus(t, job, attendance.StatusError)

	status := decodeBody[attendance.Snapshot](t, doRequest(t, h.Status, http.MethodGet, "/api/v1/attendance/status", ""))
	if status.Message != runner.err.Error() {
		t.Errorf("message = %q, want %q", status.Message, runner.err.Error())
	}
	if rec := doRequest(t, h.Result, http.MethodGet, "/api/v1/attendance/result", ""); rec.Code != http.StatusNotFound {
		t.Errorf("result after failure: status %d, want 404", rec.Code)
	}
	if !errors.Is(runner.err, attendance.ErrCaptureUnavailable) {
		t.Error("aggregation error should unwrap to the capture error")
	}
}

func TestAttendanceHandler_Legacy(t *testing.T) {
	runner := newBlockingRunner()
	job := newTestJob(t, runner)
	h := NewAttendanceHandler(job, NewEventBroadcaster())

	rec := doRequest(t, h.LegacyAttendance, http.MethodGet, "/get_attendance", "")
	body := decodeBody[map[string]any](t, rec)
	if rec.Code != http.StatusOK || body["status"] != "error" || body["message"] != "No attendance data available" {
		t.Errorf("get_attendance before run: %d %v", rec.Code, body)
	}

	rec = doRequest(t, h.LegacyCapture, http.MethodPost, "/capture_attendance", `{"date":"2026-03-02"}`)
	body = decodeBody[map[string]any](t, rec)
	if rec.Code != http.StatusBadRequest || body["message"] != "Missing required parameters" {
		t.Errorf("capture with missing fields: %d %v", rec.Code, body)
	}

	rec = doRequest(t, h.LegacyCapture, http.MethodPost, "/capture_attendance", validBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("capture: status %d", rec.Code)
	}
	rec = doRequest(t, h.LegacyCapture, http.MethodPost, "/capture_attendance", validBody)
	body = decodeBody[map[string]any](t, rec)
	if rec.Code != http.StatusBadRequest || body["message"] != "Another capture is already in progress" {
		t.Errorf("capture while running: %d %v", rec.Code, body)
	}

	body = decodeBody[map[string]any](t, doRequest(t, h.LegacyStatus, http.MethodGet, "/get_status", ""))
	if body["status"] != "processing" {
		t.Errorf("get_status = %v", body)
	}
	if _, ok := body["duration"].(float64); !ok {
		t.Errorf("duration missing or not a number: %v", body)
	}

	close(runner.release)
	waitForStatus(t, job, attendance.StatusComplete)

	body = decodeBody[map[string]any](t, doRequest(t, h.LegacyAttendance, http.MethodGet, "/get_attendance", ""))
	data, ok := body["data"].(map[string]any)
	if body["status"] != "complete" || !ok {
		t.Fatalf("get_attendance after run = %v", body)
	}
	verified, _ := data["real"].([]any)
	if len(verified) != 1 || verified[0] != "bob" {
		t.Errorf("real = %v, want [bob]", data["real"])
	}
	if first, _ := data["First10"].([]any); len(first) != 2 {
		t.Errorf("First10 = %v", data["First10"])
	}
}
