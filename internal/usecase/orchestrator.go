package usecase

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/example/face-swap/internal/faces"
	"github.com/example/face-swap/internal/imagecodec"
	"github.com/example/face-swap/internal/logging"
)

const (
	msgDecodeSource      = "Failed to decode source_face_b64 image."
	msgDecodeTarget      = "Failed to decode target_image_b64 image."
	msgNoSourceFace      = "No face detected in source image."
	msgNoTargetFace      = "No face detected in target image above min_confidence."
	msgEncodeFailed      = "Failed to encode output image."
	msgLowConfidenceTmpl = "Low confidence for source face (%.2f < %s)."
	msgSwapFailedTmpl    = "Face swap failed: %v"
)

// Outcome is what one orchestration produced: the response plus the details
// callers log or persist.
type Outcome struct {
	Response     Response
	Err          *SwapError
	FacesSwapped int
	Duration     time.Duration
}

// Orchestrator runs the detect, select, swap and encode pipeline for one
// request against the shared models. It keeps no per-request state and is
// safe for concurrent use.
type Orchestrator struct {
	models *faces.Models
	codec  *imagecodec.Codec
	logger *zap.Logger
}

// NewOrchestrator wires the pipeline to the cold-started models.
func NewOrchestrator(models *faces.Models, codec *imagecodec.Codec, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		models: models,
		codec:  codec,
		logger: logger.Named("swap_orchestrator"),
	}
}

// Handle validates the raw input and runs the pipeline. It never panics and
// never returns without a response.
func (o *Orchestrator) Handle(ctx context.Context, requestID string, input map[string]any) Outcome {
	req, swapErr := ParseRequest(input)
	if swapErr != nil {
		return o.finish(requestID, time.Now(), 0, swapErr, "")
	}
	return o.Execute(ctx, requestID, req)
}

// Execute runs steps 2-9 of the pipeline for an already validated request.
func (o *Orchestrator) Execute(ctx context.Context, requestID string, req *SwapRequest) (outcome Outcome) {
	start := time.Now()
	swapped := 0

	defer func() {
		if r := recover(); r != nil {
			outcome = o.finish(requestID, start, swapped, newSwapError(KindUnexpected, fmt.Sprint(r), fmt.Errorf("panic: %v", r)), "")
		}
	}()

	imageB64, n, swapErr := o.run(ctx, req)
	swapped = n
	return o.finish(requestID, start, swapped, swapErr, imageB64)
}

func (o *Orchestrator) run(ctx context.Context, req *SwapRequest) (string, int, *SwapError) {
	sourceImg, err := o.codec.Decode(req.SourceFace)
	if err != nil {
		return "", 0, newSwapError(KindDecode, msgDecodeSource, err)
	}
	targetImg, targetSize, err := o.codec.DecodeSized(req.TargetImage)
	if err != nil {
		return "", 0, newSwapError(KindDecode, msgDecodeTarget, err)
	}

	sourceFace, swapErr := o.sourceFace(ctx, sourceImg, req.MinConfidence)
	if swapErr != nil {
		return "", 0, swapErr
	}

	targets, swapErr := o.targetFaces(ctx, targetImg, req)
	if swapErr != nil {
		return "", 0, swapErr
	}

	current := targetImg
	for i, target := range targets {
		out, err := o.models.Swapper().Swap(ctx, current, target, sourceFace)
		if err != nil {
			return "", i, newSwapError(KindSwap, fmt.Sprintf(msgSwapFailedTmpl, err), err)
		}
		if out == nil {
			return "", i, newSwapError(KindSwap, fmt.Sprintf(msgSwapFailedTmpl, "empty result"), nil)
		}
		current = out
	}

	// The caller gets the target back at the size it was sent.
	encoded, err := o.codec.Encode(o.codec.Restore(current, targetSize))
	if err != nil {
		return "", len(targets), newSwapError(KindEncode, msgEncodeFailed, err)
	}
	return encoded, len(targets), nil
}

// sourceFace picks the most confident source face, independent of face_pick.
func (o *Orchestrator) sourceFace(ctx context.Context, img image.Image, minConfidence float64) (faces.Face, *SwapError) {
	detected, err := o.models.Detector().Detect(ctx, img)
	if err != nil {
		return faces.Face{}, newSwapError(KindUnexpected, err.Error(), err)
	}
	best, ok := faces.MostConfident(detected)
	if !ok {
		return faces.Face{}, newSwapError(KindNoFace, msgNoSourceFace, nil)
	}
	if best.Score < minConfidence {
		return faces.Face{}, newSwapError(KindLowConfidence, fmt.Sprintf(msgLowConfidenceTmpl, best.Score, strconv.FormatFloat(minConfidence, 'f', -1, 64)), nil)
	}
	return best, nil
}

func (o *Orchestrator) targetFaces(ctx context.Context, img image.Image, req *SwapRequest) ([]faces.Face, *SwapError) {
	detected, err := o.models.Detector().Detect(ctx, img)
	if err != nil {
		return nil, newSwapError(KindUnexpected, err.Error(), err)
	}
	eligible := faces.AboveConfidence(detected, req.MinConfidence)
	if len(eligible) == 0 {
		return nil, newSwapError(KindNoFace, msgNoTargetFace, nil)
	}
	if !req.FacePick.Known() {
		o.logger.Debug("unrecognised face_pick, using largest", zap.String("face_pick", string(req.FacePick)))
	}
	return faces.Select(eligible, req.FacePick), nil
}

func (o *Orchestrator) finish(requestID string, start time.Time, swapped int, swapErr *SwapError, imageB64 string) Outcome {
	elapsed := time.Since(start)
	opLogger := logging.WithOperation(o.logger, "usecase.swap", requestID)

	if swapErr != nil {
		fields := []zap.Field{
			zap.String("kind", string(swapErr.Kind)),
			zap.String("message", swapErr.Message),
			zap.Duration("elapsed", elapsed),
		}
		if swapErr.Err != nil {
			fields = append(fields, zap.Error(swapErr.Err))
		}
		if swapErr.Kind.ClientCaused() {
			opLogger.Warn("swap rejected", fields...)
		} else {
			opLogger.Error("swap failed", fields...)
		}
		return Outcome{Response: ErrorResponse(swapErr.Message), Err: swapErr, FacesSwapped: swapped, Duration: elapsed}
	}

	opLogger.Info("swap completed", zap.Int("faces_swapped", swapped), zap.Duration("elapsed", elapsed))
	return Outcome{Response: SuccessResponse(imageB64), FacesSwapped: swapped, Duration: elapsed}
}
