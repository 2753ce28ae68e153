package database

import (
	"strings"
	"time"
)

// DefaultRecordLimit caps ListRecords when the filter sets no limit.
const DefaultRecordLimit = 100

// MaxRecordLimit is the largest limit ListRecords accepts.
const MaxRecordLimit = 1000

// RecordFilter selects stored attendance records. Empty fields match everything.
type RecordFilter struct {
	Date    string
	Subject string
	Limit   int
}

// Normalize trims the filter fields and clamps the limit.
func (f RecordFilter) Normalize() RecordFilter {
	f.Date = strings.TrimSpace(f.Date)
	f.Subject = strings.TrimSpace(f.Subject)
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultRecordLimit
	case f.Limit > MaxRecordLimit:
		f.Limit = MaxRecordLimit
	}
	return f
}

// StoredEmbedding is a cached gallery embedding.
type StoredEmbedding struct {
	Hash      string
	Identity  string
	Path      string
	Embedding []float32
	CreatedAt time.Time
}
