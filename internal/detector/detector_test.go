package detector

import (
	"math"
	"testing"

	"github.com/example/face-swap/internal/faces"
)

func box(x1, y1, x2, y2 float32, score float64) faces.Face {
	return faces.Face{BoundingBox: faces.BoundingBox{X1: x1, Y1: y1, X2: x2, Y2: y2}, Score: score}
}

func TestNMSSuppressesOverlaps(t *testing.T) {
	in := []faces.Face{
		box(0, 0, 10, 10, 0.6),
		box(1, 1, 11, 11, 0.9),
		box(50, 50, 60, 60, 0.7),
	}
	out := nms(in, 0.4)
	if len(out) != 2 {
		t.Fatalf("expected 2 faces, got %d", len(out))
	}
	if out[0].Score != 0.9 || out[1].Score != 0.7 {
		t.Fatalf("expected score-descending keep order, got %v, %v", out[0].Score, out[1].Score)
	}
	if in[0].Score != 0.6 {
		t.Fatal("input must not be reordered")
	}
}

func TestNMSEmpty(t *testing.T) {
	if out := nms(nil, 0.4); out != nil {
		t.Fatalf("expected nil, got %v", out)
	}
}

func TestIOU(t *testing.T) {
	a := faces.BoundingBox{X1: 0, Y1: 0, X2: 10, Y2: 10}
	if got := iou(a, a); got != 1 {
		t.Fatalf("self iou = %v", got)
	}
	b := faces.BoundingBox{X1: 5, Y1: 0, X2: 15, Y2: 10}
	if got := iou(a, b); math.Abs(float64(got)-50.0/150.0) > 1e-6 {
		t.Fatalf("iou = %v", got)
	}
	if got := iou(a, faces.BoundingBox{X1: 20, Y1: 20, X2: 30, Y2: 30}); got != 0 {
		t.Fatalf("disjoint iou = %v", got)
	}
}

func TestDecodeLevel(t *testing.T) {
	// 32px input at stride 16 gives a 2x2 map with 2 anchors each.
	out := levelOutput{
		scores:     make([]float32, 8),
		boxes:      make([]float32, 8*4),
		keypoints:  make([]float32, 8*10),
		stride:     16,
		inputSize:  32,
		numAnchors: 2,
	}
	// anchor 6 sits at grid (x=1, y=1), centre (16,16)
	out.scores[6] = 0.8
	copy(out.boxes[6*4:], []float32{0.5, 0.5, 0.5, 0.5})
	for p := 0; p < 5; p++ {
		out.keypoints[6*10+p*2] = 0.25
		out.keypoints[6*10+p*2+1] = -0.25
	}
	out.scores[1] = 0.1

	found := decodeLevel(out, 0.2, 0.5, 100, 100)
	if len(found) != 1 {
		t.Fatalf("expected 1 face, got %d", len(found))
	}
	f := found[0]
	if f.BoundingBox != (faces.BoundingBox{X1: 16, Y1: 16, X2: 48, Y2: 48}) {
		t.Fatalf("unexpected box %+v", f.BoundingBox)
	}
	if f.Landmarks[0] != (faces.Point{X: 40, Y: 24}) {
		t.Fatalf("unexpected landmark %+v", f.Landmarks[0])
	}
	if math.Abs(f.Score-0.8) > 1e-6 {
		t.Fatalf("unexpected score %v", f.Score)
	}
}

func TestDecodeLevelClampsToImage(t *testing.T) {
	out := levelOutput{
		scores:     []float32{0.9, 0},
		boxes:      []float32{4, 4, 4, 4, 0, 0, 0, 0},
		keypoints:  make([]float32, 20),
		stride:     8,
		inputSize:  8,
		numAnchors: 2,
	}
	found := decodeLevel(out, 0.5, 1, 20, 20)
	if len(found) != 1 {
		t.Fatalf("expected 1 face, got %d", len(found))
	}
	if b := found[0].BoundingBox; b.X1 != 0 || b.Y1 != 0 || b.X2 != 20 || b.Y2 != 20 {
		t.Fatalf("expected clamped box, got %+v", b)
	}
}

func TestNormalize(t *testing.T) {
	got := normalize([]float32{3, 4})
	if math.Abs(float64(got[0])-0.6) > 1e-6 || math.Abs(float64(got[1])-0.8) > 1e-6 {
		t.Fatalf("unexpected %v", got)
	}
	zero := normalize([]float32{0, 0})
	if zero[0] != 0 || zero[1] != 0 {
		t.Fatalf("zero vector should stay zero, got %v", zero)
	}
}
