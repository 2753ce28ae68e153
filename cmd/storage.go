package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/database/mariadb"
	"github.com/kozaktomas/attendance/internal/database/postgres"
)

// initStorage registers PostgreSQL when DATABASE_URL is set, otherwise MariaDB when
// MARIADB_DSN is set. It reports whether a record store is available.
func initStorage(ctx context.Context, cfg *config.Config) (bool, error) {
	switch {
	case cfg.Database.URL != "":
		fmt.Printf("Connecting to PostgreSQL database...\n")
		if err := postgres.Initialize(ctx, &cfg.Database); err != nil {
			return false, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		fmt.Printf("Using PostgreSQL backend (records and gallery embedding cache)\n")
		return true, nil
	case cfg.MariaDB.DSN != "":
		fmt.Printf("Connecting to MariaDB database...\n")
		if err := mariadb.Initialize(ctx, cfg.MariaDB.DSN); err != nil {
			return false, fmt.Errorf("failed to initialize MariaDB: %w", err)
		}
		fmt.Printf("Using MariaDB backend (records only)\n")
		return true, nil
	default:
		return false, nil
	}
}

// galleryCache returns the registered embedding cache, or nil when the backend has none.
func galleryCache(ctx context.Context) database.GalleryCache {
	cache, err := database.GetGalleryCache(ctx)
	if err != nil {
		return nil
	}
	return cache
}

func closeStorage() {
	if err := database.Close(); err != nil {
		fmt.Printf("Warning: closing database: %v\n", err)
	}
}
