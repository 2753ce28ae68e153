package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/kozaktomas/attendance/internal/database"
)

// Pool manages a MariaDB connection pool.
type Pool struct {
	db *sql.DB
}

// NewPool opens a MariaDB pool. The DSN is forced to parse DATETIME columns as UTC time.Time.
func NewPool(dsn string) (*Pool, error) {
	if dsn == "" {
		return nil, errors.New("MariaDB DSN is required")
	}

	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid MariaDB DSN: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open MariaDB: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
	}

	return &Pool{db: db}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS attendance_records (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	date VARCHAR(32) NOT NULL,
	period VARCHAR(64) NOT NULL,
	subject VARCHAR(255) NOT NULL,
	first_window JSON NOT NULL,
	second_window JSON NOT NULL,
	verified JSON NOT NULL,
	captured_at DATETIME(6) NOT NULL,
	created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
	KEY idx_class (date, period, subject),
	KEY idx_captured_at (captured_at)
)`

// EnsureSchema creates the attendance_records table when it does not exist.
func (p *Pool) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create attendance_records table: %w", err)
	}
	return nil
}

// Initialize connects to MariaDB and registers it as the record store.
// MariaDB has no gallery embedding cache; gallery builds fall back to embedding every image.
func Initialize(ctx context.Context, dsn string) error {
	pool, err := NewPool(dsn)
	if err != nil {
		return err
	}
	if err := pool.EnsureSchema(ctx); err != nil {
		pool.Close()
		return err
	}

	records := NewRecordRepository(pool)
	database.RegisterRecordBackend("mariadb", func() database.RecordStore { return records }, pool.Close)
	return nil
}
