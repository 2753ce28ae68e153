package mariadb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/database"
)

// RecordRepository stores attendance records with identity lists as JSON arrays.
type RecordRepository struct {
	pool *Pool
}

func NewRecordRepository(pool *Pool) *RecordRepository {
	return &RecordRepository{pool: pool}
}

// SaveRecord inserts a new row for every run; earlier runs of the class are kept.
func (r *RecordRepository) SaveRecord(ctx context.Context, rec *attendance.Record) error {
	lists := make([][]byte, 0, 3)
	for _, ids := range [][]string{rec.FirstWindow, rec.SecondWindow, rec.Verified} {
		if ids == nil {
			ids = []string{}
		}
		data, err := json.Marshal(ids)
		if err != nil {
			return fmt.Errorf("marshal identities: %w", err)
		}
		lists = append(lists, data)
	}

	query := `
		INSERT INTO attendance_records (date, period, subject, first_window, second_window, verified, captured_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := r.pool.db.ExecContext(ctx, query,
		rec.Date, rec.Period, rec.Subject, lists[0], lists[1], lists[2], rec.CapturedAt.UTC(),
	); err != nil {
		return fmt.Errorf("save attendance record: %w", err)
	}
	return nil
}

const recordColumns = `date, period, subject, first_window, second_window, verified, captured_at`

func (r *RecordRepository) ListRecords(ctx context.Context, filter database.RecordFilter) ([]attendance.Record, error) {
	filter = filter.Normalize()

	var where []string
	var args []any
	if filter.Date != "" {
		where = append(where, "date = ?")
		args = append(args, filter.Date)
	}
	if filter.Subject != "" {
		where = append(where, "subject = ?")
		args = append(args, filter.Subject)
	}

	query := "SELECT " + recordColumns + " FROM attendance_records"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY captured_at DESC, id DESC LIMIT ?"
	args = append(args, filter.Limit)

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

func (r *RecordRepository) GetRecord(ctx context.Context, date, period, subject string) (*attendance.Record, error) {
	row := r.pool.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM attendance_records WHERE date = ? AND period = ? AND subject = ?"+
			" ORDER BY captured_at DESC, id DESC LIMIT 1",
		date, period, subject)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
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
	var first, second, verified []byte
	err := row.Scan(&rec.Date, &rec.Period, &rec.Subject, &first, &second, &verified, &rec.CapturedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan attendance record: %w", err)
	}

	for _, f := range []struct {
		raw  []byte
		dest *[]string
	}{{first, &rec.FirstWindow}, {second, &rec.SecondWindow}, {verified, &rec.Verified}} {
		if err := json.Unmarshal(f.raw, f.dest); err != nil {
			return nil, fmt.Errorf("decode identities: %w", err)
		}
	}
	rec.Normalize()
	return &rec, nil
}
