package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotConfigured is returned when no storage backend has been registered.
var ErrNotConfigured = errors.New("no database backend configured: set DATABASE_URL or MARIADB_DSN")

var (
	mu              sync.RWMutex
	backendName     string
	recordStoreFn   func() RecordStore
	galleryCacheFn  func() GalleryCache
	backendCloseFns []func() error
)

// RegisterRecordBackend registers the constructor of the active record store.
// This is called by the backend packages to avoid import cycles.
func RegisterRecordBackend(name string, store func() RecordStore, closeFn func() error) {
	mu.Lock()
	defer mu.Unlock()
	backendName = name
	recordStoreFn = store
	if closeFn != nil {
		backendCloseFns = append(backendCloseFns, closeFn)
	}
}

// RegisterGalleryCache registers the constructor of the gallery embedding cache.
func RegisterGalleryCache(cache func() GalleryCache) {
	mu.Lock()
	defer mu.Unlock()
	galleryCacheFn = cache
}

// IsInitialized returns whether a record backend has been registered.
func IsInitialized() bool {
	mu.RLock()
	defer mu.RUnlock()
	return recordStoreFn != nil
}

// BackendName returns the name of the registered record backend, or "".
func BackendName() string {
	mu.RLock()
	defer mu.RUnlock()
	return backendName
}

// GetRecordStore returns the registered record store.
func GetRecordStore(_ context.Context) (RecordStore, error) {
	mu.RLock()
	defer mu.RUnlock()
	if recordStoreFn == nil {
		return nil, ErrNotConfigured
	}
	return recordStoreFn(), nil
}

// GetGalleryCache returns the registered gallery cache.
func GetGalleryCache(_ context.Context) (GalleryCache, error) {
	mu.RLock()
	defer mu.RUnlock()
	if galleryCacheFn == nil {
		return nil, fmt.Errorf("gallery embedding cache not registered: %w", ErrNotConfigured)
	}
	return galleryCacheFn(), nil
}

// Close closes every registered backend and clears the registry.
func Close() error {
	mu.Lock()
	fns := backendCloseFns
	backendName = ""
	recordStoreFn = nil
	galleryCacheFn = nil
	backendCloseFns = nil
	mu.Unlock()

	var errs []error
	for _, fn := range fns {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
