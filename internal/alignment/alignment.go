// Package alignment estimates the similarity transforms that map detected
// 5-point landmarks onto the canonical face templates used by the recognition
// and swap models.
package alignment

import (
	"errors"
	"math"

	"github.com/example/face-swap/internal/faces"
)

// ArcFaceTemplate is the reference landmark layout of a 112x112 aligned face.
var ArcFaceTemplate = faces.Landmarks{
	{X: 38.2946, Y: 51.6963}, // left eye
	{X: 73.5318, Y: 51.5014}, // right eye
	{X: 56.0252, Y: 71.7366}, // nose
	{X: 41.5493, Y: 92.3655}, // left mouth
	{X: 70.7299, Y: 92.2041}, // right mouth
}

// ErrDegenerate is returned when the landmarks collapse to a single point.
var ErrDegenerate = errors.New("alignment: degenerate landmarks")

// Template returns ArcFaceTemplate scaled to a square crop of the given size.
func Template(size int) faces.Landmarks {
	ratio := float32(size) / 112
	var dst faces.Landmarks
	for i, p := range ArcFaceTemplate {
		dst[i] = faces.Point{X: p.X * ratio, Y: p.Y * ratio}
	}
	return dst
}

// Affine is a 2x3 row-major affine matrix.
type Affine [2][3]float64

// Apply maps p through the transform.
func (a Affine) Apply(p faces.Point) faces.Point {
	x, y := float64(p.X), float64(p.Y)
	return faces.Point{
		X: float32(a[0][0]*x + a[0][1]*y + a[0][2]),
		Y: float32(a[1][0]*x + a[1][1]*y + a[1][2]),
	}
}

// Scale returns the isotropic scale factor of a similarity transform.
func (a Affine) Scale() float64 {
	return math.Hypot(a[0][0], a[1][0])
}

// Invert returns the inverse transform.
func (a Affine) Invert() (Affine, error) {
	det := a[0][0]*a[1][1] - a[0][1]*a[1][0]
	if math.Abs(det) < 1e-12 {
		return Affine{}, ErrDegenerate
	}
	var inv Affine
	inv[0][0] = a[1][1] / det
	inv[0][1] = -a[0][1] / det
	inv[1][0] = -a[1][0] / det
	inv[1][1] = a[0][0] / det
	inv[0][2] = -(inv[0][0]*a[0][2] + inv[0][1]*a[1][2])
	inv[1][2] = -(inv[1][0]*a[0][2] + inv[1][1]*a[1][2])
	return inv, nil
}

// Estimate computes the least-squares similarity transform (rotation, uniform
// scale, translation) mapping src onto dst (Umeyama, without reflection).
func Estimate(src, dst faces.Landmarks) (Affine, error) {
	n := float64(len(src))

	var scx, scy, dcx, dcy float64
	for i := range src {
		scx += float64(src[i].X)
		scy += float64(src[i].Y)
		dcx += float64(dst[i].X)
		dcy += float64(dst[i].Y)
	}
	scx, scy, dcx, dcy = scx/n, scy/n, dcx/n, dcy/n

	// a = sum(s.x*d.x + s.y*d.y), b = sum(s.x*d.y - s.y*d.x)
	var a, b, srcVar float64
	for i := range src {
		sx := float64(src[i].X) - scx
		sy := float64(src[i].Y) - scy
		dx := float64(dst[i].X) - dcx
		dy := float64(dst[i].Y) - dcy
		a += sx*dx + sy*dy
		b += sx*dy - sy*dx
		srcVar += sx*sx + sy*sy
	}
	if srcVar < 1e-12 {
		return Affine{}, ErrDegenerate
	}

	// scale*cos and scale*sin of the optimal rotation
	c := a / srcVar
	s := b / srcVar

	return Affine{
		{c, -s, dcx - (c*scx - s*scy)},
		{s, c, dcy - (s*scx + c*scy)},
	}, nil
}
