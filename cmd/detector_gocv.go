//go:build gocv

package cmd

import (
	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/vision"
)

func newCascadeDetector(modelPath string) (attendance.Detector, func() error, error) {
	d, err := vision.NewCascadeDetector(modelPath)
	if err != nil {
		return nil, nil, err
	}
	return d, d.Close, nil
}
