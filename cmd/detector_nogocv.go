//go:build !gocv

package cmd

import (
	"errors"

	"github.com/kozaktomas/attendance/internal/attendance"
)

func newCascadeDetector(string) (attendance.Detector, func() error, error) {
	return nil, nil, errors.New("the cascade detector requires a build with -tags gocv")
}
