package usecase

import (
	"encoding/json"
	"testing"

	"github.com/example/face-swap/internal/faces"
)

func TestParseRequestRequiresBothImages(t *testing.T) {
	cases := []map[string]any{
		nil,
		{},
		{FieldSourceFace: "abc"},
		{FieldTargetImage: "abc"},
		{FieldSourceFace: "", FieldTargetImage: "abc"},
		{FieldSourceFace: 12, FieldTargetImage: "abc"},
	}
	for i, input := range cases {
		_, err := ParseRequest(input)
		if err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
		if err.Kind != KindValidation || err.Message != "source_face_b64 and target_image_b64 are required." {
			t.Fatalf("case %d: unexpected error %+v", i, err)
		}
	}
}

func TestParseRequestDefaults(t *testing.T) {
	req, err := ParseRequest(map[string]any{FieldSourceFace: "a", FieldTargetImage: "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.FacePick != faces.PickLargest {
		t.Fatalf("expected largest, got %q", req.FacePick)
	}
	if req.MinConfidence != DefaultMinConfidence {
		t.Fatalf("expected %v, got %v", DefaultMinConfidence, req.MinConfidence)
	}
}

func TestParseRequestNormalisesFacePick(t *testing.T) {
	req, err := ParseRequest(map[string]any{FieldSourceFace: "a", FieldTargetImage: "b", FieldFacePick: "ALL"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.FacePick != faces.PickAll {
		t.Fatalf("expected all, got %q", req.FacePick)
	}

	req, err = ParseRequest(map[string]any{FieldSourceFace: "a", FieldTargetImage: "b", FieldFacePick: "Nearest"})
	if err != nil {
		t.Fatalf("unknown modes must be accepted: %v", err)
	}
	if req.FacePick != "nearest" {
		t.Fatalf("expected lowercased mode, got %q", req.FacePick)
	}
}

func TestParseRequestMinConfidence(t *testing.T) {
	accepted := map[string]any{
		"float":       0.5,
		"json number": json.Number("0.5"),
		"string":      " 0.5 ",
		"int":         0,
	}
	for name, raw := range accepted {
		req, err := ParseRequest(map[string]any{FieldSourceFace: "a", FieldTargetImage: "b", FieldMinConfidence: raw})
		if err != nil {
			t.Fatalf("%s: unexpected error %v", name, err)
		}
		if name != "int" && req.MinConfidence != 0.5 {
			t.Fatalf("%s: expected 0.5, got %v", name, req.MinConfidence)
		}
	}

	for _, raw := range []any{nil, "high", true, map[string]any{}, "NaN"} {
		_, err := ParseRequest(map[string]any{FieldSourceFace: "a", FieldTargetImage: "b", FieldMinConfidence: raw})
		if err == nil || err.Kind != KindValidation || err.Message != "min_confidence must be a number." {
			t.Fatalf("%v: expected validation error, got %+v", raw, err)
		}
	}
}

func TestParseRequestBlankImagesReachDecode(t *testing.T) {
	req, err := ParseRequest(map[string]any{FieldSourceFace: "abc", FieldTargetImage: "   "})
	if err != nil {
		t.Fatalf("whitespace is present and non-empty, got %+v", err)
	}
	if req.TargetImage != "   " {
		t.Fatalf("payload must pass through unchanged, got %q", req.TargetImage)
	}
}

func TestParseRequestKeepsPaddedPickMode(t *testing.T) {
	req, err := ParseRequest(map[string]any{FieldSourceFace: "a", FieldTargetImage: "b", FieldFacePick: " all "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.FacePick == faces.PickAll || req.FacePick.Known() {
		t.Fatalf("padded mode should be unknown, got %q", req.FacePick)
	}
}
