package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/attendance/internal/database"
)

// RecordsHandler serves stored attendance history.
type RecordsHandler struct {
	store func(ctx context.Context) (database.RecordStore, error)
}

// NewRecordsHandler creates a handler reading through store, usually database.GetRecordStore.
func NewRecordsHandler(store func(ctx context.Context) (database.RecordStore, error)) *RecordsHandler {
	return &RecordsHandler{store: store}
}

func (h *RecordsHandler) reader(w http.ResponseWriter, r *http.Request) (database.RecordReader, bool) {
	store, err := h.store(r.Context())
	if errors.Is(err, database.ErrNotConfigured) {
		respondError(w, http.StatusServiceUnavailable, "attendance history is not configured")
		return nil, false
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return store, true
}

// List returns stored records, newest first.
// GET /api/v1/records?date=&subject=&limit=
func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	store, ok := h.reader(w, r)
	if !ok {
		return
	}

	filter := database.RecordFilter{
		Date:    r.URL.Query().Get("date"),
		Subject: r.URL.Query().Get("subject"),
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	records, err := store.ListRecords(r.Context(), filter)
	if err != nil {
		slog.Error("listing attendance records failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	respondJSON(w, http.StatusOK, records)
}

// Get returns the record of one class run.
// GET /api/v1/records/{date}/{period}/{subject}
func (h *RecordsHandler) Get(w http.ResponseWriter, r *http.Request) {
	store, ok := h.reader(w, r)
	if !ok {
		return
	}

	rec, err := store.GetRecord(r.Context(),
		chi.URLParam(r, "date"), chi.URLParam(r, "period"), chi.URLParam(r, "subject"))
	if err != nil {
		slog.Error("loading attendance record failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load record")
		return
	}
	if rec == nil {
		respondError(w, http.StatusNotFound, "record not found")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}
