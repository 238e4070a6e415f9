package swapper

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
)

// LatentSize is the identity vector length consumed by inswapper.
const LatentSize = 512

// ErrNoIdentity is returned when a source face carries no usable embedding.
var ErrNoIdentity = errors.New("source face has no identity embedding")

// Emap projects ArcFace embeddings into the inswapper latent space.
type Emap struct {
	m []float32 // row-major LatentSize x LatentSize
}

// LoadEmap reads a little-endian float32 512x512 matrix.
func LoadEmap(path string) (*Emap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read emap file: %w", err)
	}
	return ParseEmap(data)
}

// ParseEmap decodes the raw matrix bytes.
func ParseEmap(data []byte) (*Emap, error) {
	expected := LatentSize * LatentSize * 4
	if len(data) != expected {
		return nil, fmt.Errorf("emap size mismatch: expected %d bytes, got %d", expected, len(data))
	}
	m := make([]float32, LatentSize*LatentSize)
	for i := range m {
		m[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return &Emap{m: m}, nil
}

// Project computes normalize(embedding @ emap).
func (e *Emap) Project(embedding []float32) ([]float32, error) {
	if len(embedding) != LatentSize {
		return nil, ErrNoIdentity
	}
	latent := make([]float32, LatentSize)
	for j := 0; j < LatentSize; j++ {
		var sum float64
		for i := 0; i < LatentSize; i++ {
			sum += float64(embedding[i]) * float64(e.m[i*LatentSize+j])
		}
		latent[j] = float32(sum)
	}

	var norm float64
	for _, v := range latent {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm < 1e-10 {
		return nil, ErrNoIdentity
	}
	for i := range latent {
		latent[i] = float32(float64(latent[i]) / norm)
	}
	return latent, nil
}
