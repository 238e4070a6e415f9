package faces

import (
	"context"
	"errors"
	"image"
)

// Point is a 2D image coordinate.
type Point struct {
	X, Y float32
}

// BoundingBox is an axis-aligned face rectangle in image coordinates.
type BoundingBox struct {
	X1, Y1 float32 // top-left
	X2, Y2 float32 // bottom-right
}

// Width returns box width
func (b BoundingBox) Width() float32 {
	return b.X2 - b.X1
}

// Height returns box height
func (b BoundingBox) Height() float32 {
	return b.Y2 - b.Y1
}

// Area returns (x2-x1)*(y2-y1).
func (b BoundingBox) Area() float32 {
	return b.Width() * b.Height()
}

// Landmarks holds the 5-point alignment landmarks produced by the detector.
type Landmarks [5]Point

// Face is one face found by a Detector. It is treated as immutable once
// returned; Embedding is the identity payload consumed by the Swapper.
type Face struct {
	BoundingBox BoundingBox
	Landmarks   Landmarks
	Score       float64
	Embedding   []float32
}

// Detector finds faces in a raster. Implementations must be safe for
// concurrent use; the returned order is the detector's native order.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Face, error)
}

// Swapper replaces targetFace in target with the identity of sourceFace and
// returns a new full-size raster. The target raster is not modified.
// Implementations must be safe for concurrent use.
type Swapper interface {
	Swap(ctx context.Context, target image.Image, targetFace, sourceFace Face) (image.Image, error)
}

// Models is the process-wide model state: built once at cold start and
// shared read-only by every request.
type Models struct {
	detector Detector
	swapper  Swapper
}

// NewModels bundles the loaded collaborators.
func NewModels(detector Detector, swapper Swapper) (*Models, error) {
	if detector == nil {
		return nil, errors.New("faces: detector is required")
	}
	if swapper == nil {
		return nil, errors.New("faces: swapper is required")
	}
	return &Models{detector: detector, swapper: swapper}, nil
}

// Detector returns the shared face detector.
func (m *Models) Detector() Detector {
	return m.detector
}

// Swapper returns the shared face swapper.
func (m *Models) Swapper() Swapper {
	return m.swapper
}

// Close releases collaborators that hold native resources. It is only
// called at process exit.
func (m *Models) Close() error {
	var errs []error
	if c, ok := m.detector.(interface{ Close() error }); ok {
		errs = append(errs, c.Close())
	}
	if c, ok := m.swapper.(interface{ Close() error }); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
