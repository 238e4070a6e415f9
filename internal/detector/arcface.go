package detector

import (
	"fmt"
	"image"
	"math"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/example/face-swap/internal/inference"
	"github.com/example/face-swap/internal/raster"
)

const (
	// ArcFaceSize is the aligned crop side the recognition model expects.
	ArcFaceSize = 112
	// EmbeddingSize is the length of an identity embedding.
	EmbeddingSize = 512
)

// ArcFace extracts identity embeddings from aligned crops.
type ArcFace struct {
	session *inference.Session
}

// NewArcFace loads the recognition model (w600k_r50).
func NewArcFace(modelPath string) (*ArcFace, error) {
	session, err := inference.NewSession(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create ArcFace session: %w", err)
	}
	return &ArcFace{session: session}, nil
}

// Embed computes the L2-normalized embedding of a 112x112 BGR crop.
func (e *ArcFace) Embed(aligned gocv.Mat) ([]float32, error) {
	if aligned.Rows() != ArcFaceSize || aligned.Cols() != ArcFaceSize {
		return nil, fmt.Errorf("expected %dx%d input, got %dx%d", ArcFaceSize, ArcFaceSize, aligned.Cols(), aligned.Rows())
	}

	// (x - 127.5) / 127.5, BGR to RGB
	blob := gocv.BlobFromImage(aligned, 1.0/127.5, image.Pt(ArcFaceSize, ArcFaceSize),
		gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	inputTensor, err := inference.CreateTensor([]int64{1, 3, ArcFaceSize, ArcFaceSize}, raster.Bytes(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputTensor, err := inference.CreateEmptyTensor[float32]([]int64{1, EmbeddingSize})
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	if err := e.session.Run([]ort.Value{inputTensor}, []ort.Value{outputTensor}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	return normalize(outputTensor.GetData()), nil
}

// Close releases encoder resources
func (e *ArcFace) Close() error {
	return e.session.Destroy()
}

// normalize returns a unit-length copy of v.
func normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	if norm < 1e-10 {
		norm = 1
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
