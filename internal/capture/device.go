package capture

import (
	"context"
	"fmt"
	"sync"
)

// Opener opens the underlying source. Tests substitute their own.
type Opener func(ctx context.Context) (Source, error)

// Device is a capture device that at most one caller may hold at a time.
type Device struct {
	url  string
	open Opener
	sem  chan struct{}
}

// NewDevice creates a device for a driver URL such as "v4l2:///dev/video0".
func NewDevice(rawURL string) *Device {
	return NewDeviceWithOpener(rawURL, func(ctx context.Context) (Source, error) {
		return OpenURL(ctx, rawURL)
	})
}

// NewDeviceWithOpener creates a device that opens sources through fn.
func NewDeviceWithOpener(name string, fn Opener) *Device {
	return &Device{
		url:  name,
		open: fn,
		sem:  make(chan struct{}, 1),
	}
}

// URL returns the device selector.
func (d *Device) URL() string {
	return d.url
}

// Acquire waits until the device is free, opens it and returns the source together
// with a release function. Release closes the source and frees the device; it is safe
// to call more than once.
func (d *Device) Acquire(ctx context.Context) (Source, func(), error) {
	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, fmt.Errorf("waiting for device %s: %w", d.url, ctx.Err())
	}

	src, err := d.open(ctx)
	if err != nil {
		<-d.sem
		return nil, nil, fmt.Errorf("opening device %s: %w", d.url, err)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			src.Close()
			<-d.sem
		})
	}
	return src, release, nil
}

// Busy reports whether the device is currently held.
func (d *Device) Busy() bool {
	return len(d.sem) > 0
}
