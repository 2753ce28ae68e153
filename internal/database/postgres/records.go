package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/lib/pq"
)

// RecordRepository stores attendance records in the attendance_records table.
type RecordRepository struct {
	pool *Pool
}

// NewRecordRepository creates a record repository on the pool.
func NewRecordRepository(pool *Pool) *RecordRepository {
	return &RecordRepository{pool: pool}
}

// SaveRecord inserts a new row for every run; earlier runs of the class are kept.
func (r *RecordRepository) SaveRecord(ctx context.Context, rec *attendance.Record) error {
	query := `
		INSERT INTO attendance_records (date, period, subject, first_window, second_window, verified, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.db.ExecContext(ctx, query,
		rec.Date, rec.Period, rec.Subject,
		pq.Array(nonNil(rec.FirstWindow)),
		pq.Array(nonNil(rec.SecondWindow)),
		pq.Array(nonNil(rec.Verified)),
		rec.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("save attendance record: %w", err)
	}
	return nil
}

const recordColumns = `date, period, subject, first_window, second_window, verified, captured_at`

// ListRecords returns records newest first.
func (r *RecordRepository) ListRecords(ctx context.Context, filter database.RecordFilter) ([]attendance.Record, error) {
	filter = filter.Normalize()

	var where []string
	var args []any
	if filter.Date != "" {
		args = append(args, filter.Date)
		where = append(where, fmt.Sprintf("date = $%d", len(args)))
	}
	if filter.Subject != "" {
		args = append(args, filter.Subject)
		where = append(where, fmt.Sprintf("subject = $%d", len(args)))
	}

	query := "SELECT " + recordColumns + " FROM attendance_records"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit)
	query += fmt.Sprintf(" ORDER BY captured_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := r.pool.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attendance records: %w", err)
	}
	defer rows.Close()

	records := []attendance.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance records: %w", err)
	}
	return records, nil
}

// GetRecord returns the latest run of the class, or nil, nil when there is none.
func (r *RecordRepository) GetRecord(ctx context.Context, date, period, subject string) (*attendance.Record, error) {
	row := r.pool.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM attendance_records WHERE date = $1 AND period = $2 AND subject = $3"+
			" ORDER BY captured_at DESC, id DESC LIMIT 1",
		date, period, subject)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *RecordRepository) CountRecords(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM attendance_records").Scan(&count); err != nil {
		return 0, fmt.Errorf("count attendance records: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*attendance.Record, error) {
	var rec attendance.Record
	err := row.Scan(
		&rec.Date, &rec.Period, &rec.Subject,
		pq.Array(&rec.FirstWindow),
		pq.Array(&rec.SecondWindow),
		pq.Array(&rec.Verified),
		&rec.CapturedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan attendance record: %w", err)
	}
	rec.Normalize()
	return &rec, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
