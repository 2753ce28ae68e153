package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/constants"
)

// AttendanceJob is the part of *attendance.Job the HTTP API drives.
type AttendanceJob interface {
	Submit(req attendance.Request) (string, error)
	Poll() attendance.Snapshot
	Result() (*attendance.Record, error)
	Stop() bool
}

// AttendanceHandler serves the attendance job API.
type AttendanceHandler struct {
	job       AttendanceJob
	events    *EventBroadcaster
	heartbeat time.Duration
}

func NewAttendanceHandler(job AttendanceJob, events *EventBroadcaster) *AttendanceHandler {
	return &AttendanceHandler{job: job, events: events, heartbeat: constants.SSEHeartbeatInterval}
}

// SubmitResponse is returned when a capture is accepted.
type SubmitResponse struct {
	RunID   string `json:"run_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Submit starts an attendance run.
// POST /api/v1/attendance {"date","period","subject"}
func (h *AttendanceHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req attendance.Request
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	runID, err := h.job.Submit(req)
	switch {
	case errors.Is(err, attendance.ErrInvalidRequest):
		respondError(w, http.StatusBadRequest, "Missing required parameters")
		return
	case errors.Is(err, attendance.ErrJobConflict):
		respondError(w, http.StatusConflict, "Another capture is already in progress")
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	slog.Info("attendance capture accepted", "run_id", runID,
		"date", sanitizeForLog(req.Date), "period", sanitizeForLog(req.Period), "subject", sanitizeForLog(req.Subject))

	respondJSON(w, http.StatusAccepted, SubmitResponse{
		RunID:   runID,
		Status:  "started",
		Message: "Attendance capture started",
	})
}

// Status returns the job snapshot.
// GET /api/v1/attendance/status
func (h *AttendanceHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.job.Poll())
}

// Result returns the record of the last completed run.
// GET /api/v1/attendance/result
func (h *AttendanceHandler) Result(w http.ResponseWriter, r *http.Request) {
	rec, err := h.job.Result()
	if errors.Is(err, attendance.ErrNotAvailable) {
		respondError(w, http.StatusNotFound, "No attendance data available")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// Stop ends the window being captured early; the run continues with the partial window.
// POST /api/v1/attendance/stop
func (h *AttendanceHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if !h.job.Stop() {
		respondError(w, http.StatusConflict, "no capture window is running")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"stopped": true})
}

// Events streams job events over SSE.
// GET /api/v1/attendance/events
func (h *AttendanceHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r, h.events, h.job.Poll, h.heartbeat)
}

// Legacy endpoints keep the response shapes of the original classroom dashboard.

// LegacyCapture handles POST /capture_attendance.
func (h *AttendanceHandler) LegacyCapture(w http.ResponseWriter, r *http.Request) {
	var req attendance.Request
	if err := decodeJSON(w, r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, legacyError("Missing required parameters"))
		return
	}

	if _, err := h.job.Submit(req); err != nil {
		msg := err.Error()
		switch {
		case errors.Is(err, attendance.ErrJobConflict):
			msg = "Another capture is already in progress"
		case errors.Is(err, attendance.ErrInvalidRequest):
			msg = "Missing required parameters"
		}
		respondJSON(w, http.StatusBadRequest, legacyError(msg))
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "started",
		"message": "Attendance capture started",
	})
}

// LegacyStatus handles GET /get_status. duration is whole seconds since the run started.
func (h *AttendanceHandler) LegacyStatus(w http.ResponseWriter, r *http.Request) {
	s := h.job.Poll()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   s.Status,
		"message":  s.Message,
		"duration": int(s.ElapsedSeconds),
	})
}

// LegacyAttendance handles GET /get_attendance.
func (h *AttendanceHandler) LegacyAttendance(w http.ResponseWriter, r *http.Request) {
	rec, err := h.job.Result()
	if err != nil {
		respondJSON(w, http.StatusOK, legacyError("No attendance data available"))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "complete",
		"data": map[string]any{
			"date":    rec.Date,
			"period":  rec.Period,
			"subject": rec.Subject,
			"First10": rec.FirstWindow,
			"last10":  rec.SecondWindow,
			"real":    rec.Verified,
		},
	})
}

func legacyError(message string) map[string]string {
	return map[string]string{"status": "error", "message": message}
}
