package attendance

import (
	"errors"
	"fmt"
)

var (
	// ErrCaptureUnavailable is returned when the capture device cannot be opened.
	ErrCaptureUnavailable = errors.New("capture device unavailable")

	// ErrDetectionFailure marks a failed match attempt for a single face.
	// It never aborts a window.
	ErrDetectionFailure = errors.New("face detection failed")

	// ErrJobConflict is returned by Submit while another job is processing.
	ErrJobConflict = errors.New("another capture is already in progress")

	// ErrNotAvailable is returned by Result when no completed record exists.
	ErrNotAvailable = errors.New("no attendance data available")

	// ErrInvalidRequest is returned by Submit when a required field is empty.
	ErrInvalidRequest = errors.New("missing required parameters")
)

// AggregationError reports why an attendance run produced no record.
type AggregationError struct {
	Reason string
	Err    error
}

func (e *AggregationError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *AggregationError) Unwrap() error {
	return e.Err
}

func aggregationFailed(reason string, err error) error {
	return &AggregationError{Reason: reason, Err: err}
}
