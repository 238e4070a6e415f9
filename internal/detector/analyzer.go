// Package detector implements faces.Detector on SCRFD detection and ArcFace
// recognition models.
package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"go.uber.org/zap"

	"github.com/example/face-swap/internal/alignment"
	"github.com/example/face-swap/internal/faces"
	"github.com/example/face-swap/internal/raster"
)

// Options selects the detector weights and thresholds.
type Options struct {
	DetectorPath    string
	RecognitionPath string
	InputSize       int
	ScoreThreshold  float32
	NMSThreshold    float32
}

// Analyzer detects faces and attaches an identity embedding to each, the way
// a face analysis pack does. It is safe for concurrent use; model calls are
// serialized.
type Analyzer struct {
	mu      sync.Mutex
	scrfd   *SCRFD
	arcface *ArcFace
	logger  *zap.Logger
}

// NewAnalyzer loads both models. inference.Initialize must have been called.
func NewAnalyzer(opts Options, logger *zap.Logger) (*Analyzer, error) {
	if opts.InputSize <= 0 || opts.InputSize%32 != 0 {
		return nil, fmt.Errorf("detector input size %d must be a positive multiple of 32", opts.InputSize)
	}
	scrfd, err := NewSCRFD(opts.DetectorPath, opts.InputSize, opts.ScoreThreshold, opts.NMSThreshold)
	if err != nil {
		return nil, err
	}
	arcface, err := NewArcFace(opts.RecognitionPath)
	if err != nil {
		scrfd.Close()
		return nil, err
	}
	return &Analyzer{
		scrfd:   scrfd,
		arcface: arcface,
		logger:  logger.Named("detector"),
	}, nil
}

// Detect implements faces.Detector.
func (a *Analyzer) Detect(ctx context.Context, img image.Image) ([]faces.Face, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mat, err := raster.FromImage(img)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	a.mu.Lock()
	defer a.mu.Unlock()

	found, err := a.scrfd.Detect(mat)
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}

	template := alignment.Template(ArcFaceSize)
	for i := range found {
		m, err := alignment.Estimate(found[i].Landmarks, template)
		if errors.Is(err, alignment.ErrDegenerate) {
			a.logger.Debug("skipping embedding for degenerate landmarks", zap.Int("face", i))
			continue
		}
		if err != nil {
			return nil, err
		}
		crop := raster.Crop(mat, m, ArcFaceSize)
		embedding, err := a.arcface.Embed(crop)
		crop.Close()
		if err != nil {
			return nil, fmt.Errorf("face embedding failed: %w", err)
		}
		found[i].Embedding = embedding
	}

	a.logger.Debug("faces detected", zap.Int("count", len(found)))
	return found, nil
}

// Close releases both sessions.
func (a *Analyzer) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return errors.Join(a.scrfd.Close(), a.arcface.Close())
}
