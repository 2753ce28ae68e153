package attendance

import (
	"strings"
	"time"
)

// Request identifies the class an attendance run is for.
type Request struct {
	Date    string `json:"date"`
	Period  string `json:"period"`
	Subject string `json:"subject"`
}

// Validate trims the fields and rejects empty ones.
func (r *Request) Validate() error {
	r.Date = strings.TrimSpace(r.Date)
	r.Period = strings.TrimSpace(r.Period)
	r.Subject = strings.TrimSpace(r.Subject)
	if r.Date == "" || r.Period == "" || r.Subject == "" {
		return ErrInvalidRequest
	}
	return nil
}

// Record is the outcome of one attendance run. Identity lists are sorted and never nil,
// so an empty window encodes as [] rather than being absent.
type Record struct {
	Date         string    `json:"date"`
	Period       string    `json:"period"`
	Subject      string    `json:"subject"`
	FirstWindow  []string  `json:"first_window"`
	SecondWindow []string  `json:"second_window"`
	Verified     []string  `json:"verified"`
	CapturedAt   time.Time `json:"captured_at"`
}

// NewRecord builds a record from the two windows. Verified holds exactly the identities
// seen in both.
func NewRecord(req Request, first, second IdentitySet, capturedAt time.Time) *Record {
	return &Record{
		Date:         req.Date,
		Period:       req.Period,
		Subject:      req.Subject,
		FirstWindow:  first.Sorted(),
		SecondWindow: second.Sorted(),
		Verified:     first.Intersect(second).Sorted(),
		CapturedAt:   capturedAt,
	}
}

// Normalize replaces nil identity lists with empty ones. Used on records read back from storage.
func (r *Record) Normalize() {
	if r.FirstWindow == nil {
		r.FirstWindow = []string{}
	}
	if r.SecondWindow == nil {
		r.SecondWindow = []string{}
	}
	if r.Verified == nil {
		r.Verified = []string{}
	}
}
