package usecase

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"

	"go.uber.org/zap"

	"github.com/example/face-swap/internal/faces"
	"github.com/example/face-swap/internal/imagecodec"
)

const (
	sourceWidth = 16
	targetWidth = 32
)

// stubDetector answers by image width so source and target can differ.
type stubDetector struct {
	byWidth map[int][]faces.Face
	err     error
	panics  bool
	calls   int
}

func (s *stubDetector) Detect(ctx context.Context, img image.Image) ([]faces.Face, error) {
	s.calls++
	if s.panics {
		panic("detector exploded")
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.byWidth[img.Bounds().Dx()], nil
}

type swapCall struct {
	input      image.Image
	targetFace faces.Face
	sourceFace faces.Face
}

type stubSwapper struct {
	calls   []swapCall
	outputs []image.Image
	err     error
	nilOut  bool
}

func (s *stubSwapper) Swap(ctx context.Context, target image.Image, targetFace, sourceFace faces.Face) (image.Image, error) {
	s.calls = append(s.calls, swapCall{input: target, targetFace: targetFace, sourceFace: sourceFace})
	if s.err != nil {
		return nil, s.err
	}
	if s.nilOut {
		return nil, nil
	}
	out := image.NewRGBA(target.Bounds())
	for y := 0; y < out.Bounds().Dy(); y++ {
		for x := 0; x < out.Bounds().Dx(); x++ {
			out.Set(x, y, color.RGBA{R: uint8(len(s.calls) * 40), A: 255})
		}
	}
	s.outputs = append(s.outputs, out)
	return out, nil
}

func encodePNG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func face(score float64, x1, y1, x2, y2 float32) faces.Face {
	return faces.Face{
		BoundingBox: faces.BoundingBox{X1: x1, Y1: y1, X2: x2, Y2: y2},
		Score:       score,
		Embedding:   []float32{float32(score)},
	}
}

func newTestOrchestrator(t *testing.T, det *stubDetector, sw *stubSwapper) *Orchestrator {
	t.Helper()
	models, err := faces.NewModels(det, sw)
	if err != nil {
		t.Fatalf("models: %v", err)
	}
	return NewOrchestrator(models, imagecodec.New(imagecodec.DefaultQuality, 0), zap.NewNop())
}

func validInput(t *testing.T) map[string]any {
	t.Helper()
	return map[string]any{
		FieldSourceFace:  encodePNG(t, sourceWidth, sourceWidth),
		FieldTargetImage: encodePNG(t, targetWidth, targetWidth),
	}
}
