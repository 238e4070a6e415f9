// Package raster bridges image.Image and gocv matrices for the native models.
package raster

import (
	"errors"
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/example/face-swap/internal/alignment"
)

// ErrEmpty is returned for rasters without pixels.
var ErrEmpty = errors.New("raster: empty image")

// FromImage converts img to an 8-bit BGR matrix. The caller closes it.
func FromImage(img image.Image) (gocv.Mat, error) {
	if img == nil || img.Bounds().Empty() {
		return gocv.NewMat(), ErrEmpty
	}
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("raster: convert image: %w", err)
	}
	return mat, nil
}

// ToImage converts a BGR matrix back to an RGBA raster.
func ToImage(mat gocv.Mat) (image.Image, error) {
	if mat.Empty() {
		return nil, ErrEmpty
	}
	return mat.ToImage()
}

// AffineMat builds the 2x3 CV_64F matrix OpenCV expects. The caller closes it.
func AffineMat(a alignment.Affine) gocv.Mat {
	m := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	for r := 0; r < 2; r++ {
		for c := 0; c < 3; c++ {
			m.SetDoubleAt(r, c, a[r][c])
		}
	}
	return m
}

// Warp applies a to src into a new matrix of the given size. Pixels mapped
// from outside src are black.
func Warp(src gocv.Mat, a alignment.Affine, size image.Point) gocv.Mat {
	m := AffineMat(a)
	defer m.Close()
	dst := gocv.NewMat()
	gocv.WarpAffine(src, &dst, m, size)
	return dst
}

// Crop aligns a face with a and returns the size x size patch.
func Crop(src gocv.Mat, a alignment.Affine, size int) gocv.Mat {
	return Warp(src, a, image.Pt(size, size))
}

// Bytes reinterprets a CV_32F blob as float32 values.
func Bytes(blob gocv.Mat) []float32 {
	data := blob.ToBytes()
	out := make([]float32, len(data)/4)
	for i := range out {
		bits := uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}
