// Package swapper implements faces.Swapper with the inswapper generator and
// an alpha-feathered paste-back.
package swapper

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/example/face-swap/internal/alignment"
	"github.com/example/face-swap/internal/faces"
	"github.com/example/face-swap/internal/inference"
	"github.com/example/face-swap/internal/raster"
)

// FaceSize is the aligned crop side the generator works on.
const FaceSize = 128

// Inswapper performs face swapping using the inswapper model. It is safe for
// concurrent use; generator calls are serialized.
type Inswapper struct {
	mu      sync.Mutex
	session *inference.Session
	emap    *Emap
	logger  *zap.Logger
}

// NewInswapper loads the generator and its identity projection.
func NewInswapper(modelPath, emapPath string, logger *zap.Logger) (*Inswapper, error) {
	emap, err := LoadEmap(emapPath)
	if err != nil {
		return nil, err
	}
	session, err := inference.NewSession(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create inswapper session: %w", err)
	}
	if len(session.InputNames()) != 2 || len(session.OutputNames()) != 1 {
		session.Destroy()
		return nil, fmt.Errorf("inswapper model %s: unexpected io %v -> %v", modelPath, session.InputNames(), session.OutputNames())
	}
	return &Inswapper{
		session: session,
		emap:    emap,
		logger:  logger.Named("swapper"),
	}, nil
}

// Swap implements faces.Swapper. target is left untouched.
func (s *Inswapper) Swap(ctx context.Context, target image.Image, targetFace, sourceFace faces.Face) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	latent, err := s.emap.Project(sourceFace.Embedding)
	if err != nil {
		return nil, err
	}
	m, err := alignment.Estimate(targetFace.Landmarks, alignment.Template(FaceSize))
	if err != nil {
		return nil, fmt.Errorf("target alignment: %w", err)
	}

	frame, err := raster.FromImage(target)
	if err != nil {
		return nil, err
	}
	defer frame.Close()

	crop := raster.Crop(frame, m, FaceSize)
	defer crop.Close()

	generated, err := s.generate(crop, latent)
	if err != nil {
		return nil, err
	}
	defer generated.Close()

	merged, err := pasteBack(frame, generated, m)
	if err != nil {
		return nil, err
	}
	defer merged.Close()

	s.logger.Debug("face swapped", zap.Float64("target_score", targetFace.Score))
	return raster.ToImage(merged)
}

// generate runs the model on an aligned 128x128 BGR crop and returns the
// swapped crop in BGR.
func (s *Inswapper) generate(crop gocv.Mat, latent []float32) (gocv.Mat, error) {
	if crop.Rows() != FaceSize || crop.Cols() != FaceSize {
		return gocv.NewMat(), fmt.Errorf("expected %dx%d target, got %dx%d", FaceSize, FaceSize, crop.Cols(), crop.Rows())
	}

	// [0,1] RGB
	blob := gocv.BlobFromImage(crop, 1.0/255.0, image.Pt(FaceSize, FaceSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	targetTensor, err := inference.CreateTensor([]int64{1, 3, FaceSize, FaceSize}, raster.Bytes(blob))
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to create target tensor: %w", err)
	}
	defer targetTensor.Destroy()

	sourceTensor, err := inference.CreateTensor([]int64{1, LatentSize}, latent)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to create source tensor: %w", err)
	}
	defer sourceTensor.Destroy()

	outputTensor, err := inference.CreateEmptyTensor[float32]([]int64{1, 3, FaceSize, FaceSize})
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	s.mu.Lock()
	err = s.session.Run([]ort.Value{targetTensor, sourceTensor}, []ort.Value{outputTensor})
	s.mu.Unlock()
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("inference failed: %w", err)
	}

	return chwToBGR(outputTensor.GetData(), FaceSize)
}

// chwToBGR converts a [3,size,size] RGB tensor in [0,1] to an 8-bit BGR mat.
func chwToBGR(data []float32, size int) (gocv.Mat, error) {
	plane := size * size
	if len(data) < 3*plane {
		return gocv.NewMat(), errors.New("generator output too small")
	}
	result := gocv.NewMatWithSize(size, size, gocv.MatTypeCV8UC3)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			i := y*size + x
			result.SetUCharAt(y, x*3+0, clampByte(data[2*plane+i]*255))
			result.SetUCharAt(y, x*3+1, clampByte(data[plane+i]*255))
			result.SetUCharAt(y, x*3+2, clampByte(data[i]*255))
		}
	}
	return result, nil
}

// Close releases swapper resources
func (s *Inswapper) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Destroy()
}

func clampByte(v float32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
