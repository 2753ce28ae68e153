// Package capture opens video sources and hands them out one holder at a time.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// DefaultFPS is assumed when a source cannot report its frame rate.
const DefaultFPS = 30.0

// ErrUnknownDriver is returned for a device URL whose scheme has no registered driver.
var ErrUnknownDriver = errors.New("unknown capture driver")

// Source is an open stream of frames.
type Source interface {
	// FPS returns the nominal frame rate, or 0 when unknown.
	FPS() float64
	// Grab advances past one frame without decoding it.
	Grab() error
	// Read decodes the next frame. It returns io.EOF at the end of the stream.
	Read() (image.Image, error)
	Close() error
}

// Driver opens a source for a parsed device URL.
type Driver func(ctx context.Context, u *url.URL) (Source, error)

var (
	drivers   = make(map[string]Driver)
	driversMu sync.RWMutex
)

// Register makes a driver available for device URLs with the given scheme.
func Register(scheme string, d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[strings.ToLower(scheme)] = d
}

// Drivers lists the registered schemes.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	out := make([]string, 0, len(drivers))
	for s := range drivers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// OpenURL opens a source through the driver registered for the URL scheme.
// A bare path is treated as an MJPEG stream file.
func OpenURL(ctx context.Context, rawURL string) (Source, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing device URL %q: %w", rawURL, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = "mjpeg"
	}

	driversMu.RLock()
	d, ok := drivers[scheme]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, scheme)
	}
	return d(ctx, u)
}

// devicePath returns the path part of a device URL, accepting both
// "scheme:///dev/video0" and "scheme:/dev/video0".
func devicePath(u *url.URL) string {
	switch {
	case u.Path != "":
		return u.Host + u.Path
	case u.Opaque != "":
		return u.Opaque
	default:
		return u.Host
	}
}
