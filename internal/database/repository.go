package database

import (
	"context"

	"github.com/kozaktomas/attendance/internal/attendance"
)

// RecordWriter persists finished attendance records.
type RecordWriter interface {
	// SaveRecord stores a record. Records are never updated: running the same class
	// (date, period, subject) again adds another record.
	SaveRecord(ctx context.Context, rec *attendance.Record) error
}

// RecordReader provides read-only access to stored attendance records.
type RecordReader interface {
	// ListRecords returns records matching the filter, newest first.
	ListRecords(ctx context.Context, filter RecordFilter) ([]attendance.Record, error)
	// GetRecord returns the latest record of one class, or nil if none is stored.
	GetRecord(ctx context.Context, date, period, subject string) (*attendance.Record, error)
	// CountRecords returns the number of stored records.
	CountRecords(ctx context.Context) (int, error)
}

// RecordStore reads and writes attendance records.
type RecordStore interface {
	RecordWriter
	RecordReader
}

// GalleryCache stores gallery face embeddings by image content hash, so a gallery
// rebuild only embeds new or changed images.
type GalleryCache interface {
	LookupEmbedding(ctx context.Context, hash string) ([]float32, bool, error)
	StoreEmbedding(ctx context.Context, hash, identity, path string, embedding []float32) error
	// CountEmbeddings returns the number of cached embeddings.
	CountEmbeddings(ctx context.Context) (int, error)
}
