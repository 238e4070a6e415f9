package usecase

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/example/face-swap/internal/faces"
)

// Input field names of the invocation payload.
const (
	FieldSourceFace    = "source_face_b64"
	FieldTargetImage   = "target_image_b64"
	FieldFacePick      = "face_pick"
	FieldMinConfidence = "min_confidence"
)

// DefaultMinConfidence applies when min_confidence is omitted.
const DefaultMinConfidence = 0.35

const (
	msgMissingImages     = "source_face_b64 and target_image_b64 are required."
	msgInvalidConfidence = "min_confidence must be a number."
)

// SwapRequest is the validated invocation input.
type SwapRequest struct {
	SourceFace    string
	TargetImage   string
	FacePick      faces.PickMode
	MinConfidence float64
}

// ParseRequest validates the raw input mapping and applies defaults.
func ParseRequest(input map[string]any) (*SwapRequest, *SwapError) {
	source, _ := input[FieldSourceFace].(string)
	target, _ := input[FieldTargetImage].(string)
	if source == "" || target == "" {
		return nil, newSwapError(KindValidation, msgMissingImages, nil)
	}

	req := &SwapRequest{
		SourceFace:    source,
		TargetImage:   target,
		FacePick:      faces.PickLargest,
		MinConfidence: DefaultMinConfidence,
	}

	if raw, ok := input[FieldFacePick].(string); ok {
		req.FacePick = faces.ParsePickMode(raw)
	}

	if raw, present := input[FieldMinConfidence]; present {
		value, err := parseConfidence(raw)
		if err != nil {
			return nil, newSwapError(KindValidation, msgInvalidConfidence, err)
		}
		req.MinConfidence = value
	}

	return req, nil
}

func parseConfidence(raw any) (float64, error) {
	var (
		value float64
		err   error
	)
	switch v := raw.(type) {
	case float64:
		value = v
	case float32:
		value = float64(v)
	case int:
		value = float64(v)
	case int64:
		value = float64(v)
	case json.Number:
		value, err = v.Float64()
	case string:
		value, err = strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return 0, strconv.ErrSyntax
	}
	if err != nil {
		return 0, err
	}
	if math.IsNaN(value) {
		return 0, strconv.ErrSyntax
	}
	return value, nil
}
