package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	"golang.org/x/image/draw"

	"github.com/kozaktomas/attendance/internal/attendance"
)

const jpegQuality = 85

var errEmptyCrop = errors.New("face box is outside the frame")

// EncodeJPEG encodes img at the package quality.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// Downscale fits img within maxSize on its longer side. It returns the image unchanged
// (scale 1) when it already fits or maxSize <= 0. scale maps result coordinates back
// to the original: orig = result * scale.
func Downscale(img image.Image, maxSize int) (image.Image, float64) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if maxSize <= 0 || (width <= maxSize && height <= maxSize) {
		return img, 1
	}

	var newWidth, newHeight int
	if width > height {
		newWidth = maxSize
		newHeight = int(float64(height) * float64(maxSize) / float64(width))
	} else {
		newHeight = maxSize
		newWidth = int(float64(width) * float64(maxSize) / float64(height))
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
	return resized, float64(width) / float64(newWidth)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// PadBox grows box by pct of its size on every side and clamps it to bounds.
func PadBox(box, bounds image.Rectangle, pct float64) image.Rectangle {
	if pct < 0 {
		pct = 0
	}
	padX := int(math.Round(float64(box.Dx()) * pct))
	padY := int(math.Round(float64(box.Dy()) * pct))
	return image.Rect(
		clamp(box.Min.X-padX, bounds.Min.X, bounds.Max.X),
		clamp(box.Min.Y-padY, bounds.Min.Y, bounds.Max.Y),
		clamp(box.Max.X+padX, bounds.Min.X, bounds.Max.X),
		clamp(box.Max.Y+padY, bounds.Min.Y, bounds.Max.Y),
	)
}

// NewCropper returns an attendance.Cropper that pads each face box by padding, scales
// the crop to at most maxSize pixels and encodes it as JPEG.
func NewCropper(padding float64, maxSize int) attendance.Cropper {
	return func(img image.Image, box image.Rectangle) (*attendance.Crop, error) {
		return CropFace(img, box, padding, maxSize)
	}
}

// CropFace cuts box (plus padding) out of img.
func CropFace(img image.Image, box image.Rectangle, padding float64, maxSize int) (*attendance.Crop, error) {
	r := PadBox(box, img.Bounds(), padding)
	if r.Dx() <= 1 || r.Dy() <= 1 {
		return nil, errEmptyCrop
	}

	face := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(face, face.Bounds(), img, r.Min, draw.Src)

	scaled, _ := Downscale(face, maxSize)
	data, err := EncodeJPEG(scaled)
	if err != nil {
		return nil, err
	}
	return attendance.NewCrop(data, r), nil
}
