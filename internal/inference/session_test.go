package inference

import (
	"errors"
	"testing"

	ort "github.com/yalue/onnxruntime_go"
)

func TestNewSessionRequiresInitialize(t *testing.T) {
	if _, err := NewSession("missing.onnx"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestShutdownWithoutInitialize(t *testing.T) {
	if err := Shutdown(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNames(t *testing.T) {
	got := names([]ort.InputOutputInfo{{Name: "target"}, {Name: "source"}})
	if len(got) != 2 || got[0] != "target" || got[1] != "source" {
		t.Fatalf("unexpected names %v", got)
	}
}

func TestDestroyAllSkipsNil(t *testing.T) {
	DestroyAll([]ort.Value{nil, nil})
}
