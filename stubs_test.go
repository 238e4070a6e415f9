package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/example/face-swap/internal/faces"
)

// widthDetector reports one face for every image, scored by image width.
type widthDetector struct{}

func (widthDetector) Detect(ctx context.Context, img image.Image) ([]faces.Face, error) {
	w := float32(img.Bounds().Dx())
	return []faces.Face{{
		BoundingBox: faces.BoundingBox{X1: 0, Y1: 0, X2: w, Y2: w},
		Score:       0.9,
		Embedding:   []float32{1},
	}}, nil
}

// blockingSwapper paints the target and optionally waits for release.
type blockingSwapper struct {
	started chan struct{}
	release chan struct{}
}

func (s *blockingSwapper) Swap(ctx context.Context, target image.Image, targetFace, sourceFace faces.Face) (image.Image, error) {
	if s.started != nil {
		select {
		case <-s.started:
		default:
			close(s.started)
		}
	}
	if s.release != nil {
		<-s.release
	}
	out := image.NewRGBA(target.Bounds())
	for y := 0; y < out.Bounds().Dy(); y++ {
		for x := 0; x < out.Bounds().Dx(); x++ {
			out.Set(x, y, color.RGBA{G: 200, A: 255})
		}
	}
	return out, nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 7)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func newStubModels(t *testing.T, sw faces.Swapper) *faces.Models {
	t.Helper()
	models, err := faces.NewModels(widthDetector{}, sw)
	if err != nil {
		t.Fatalf("models: %v", err)
	}
	return models
}
