package faces

import "strings"

// PickMode selects which target faces take part in a swap.
type PickMode string

const (
	PickLargest PickMode = "largest"
	PickFirst   PickMode = "first"
	PickAll     PickMode = "all"
)

// ParsePickMode lowercases the requested mode; surrounding whitespace is kept,
// so " all " is an unknown mode. Modes Select does not recognise behave like
// PickLargest. An empty value means PickLargest.
func ParsePickMode(raw string) PickMode {
	mode := PickMode(strings.ToLower(raw))
	if mode == "" {
		return PickLargest
	}
	return mode
}

// Known reports whether m is one of the documented modes.
func (m PickMode) Known() bool {
	switch m {
	case PickLargest, PickFirst, PickAll:
		return true
	}
	return false
}

// Select applies the face selection policy. It never fails: an empty input
// yields an empty result for every mode.
func Select(candidates []Face, mode PickMode) []Face {
	if len(candidates) == 0 {
		return nil
	}
	switch PickMode(strings.ToLower(string(mode))) {
	case PickFirst:
		return candidates[:1:1]
	case PickAll:
		return candidates
	default:
		return []Face{largest(candidates)}
	}
}

// largest returns the face with the biggest box area; the first one wins ties.
func largest(candidates []Face) Face {
	best := candidates[0]
	bestArea := best.BoundingBox.Area()
	for _, f := range candidates[1:] {
		if area := f.BoundingBox.Area(); area > bestArea {
			best, bestArea = f, area
		}
	}
	return best
}

// MostConfident returns the face with the highest score, keeping the first
// one on ties. ok is false for an empty input.
func MostConfident(candidates []Face) (face Face, ok bool) {
	if len(candidates) == 0 {
		return Face{}, false
	}
	face = candidates[0]
	for _, f := range candidates[1:] {
		if f.Score > face.Score {
			face = f
		}
	}
	return face, true
}

// AboveConfidence keeps faces whose score is >= minConfidence, preserving order.
func AboveConfidence(candidates []Face, minConfidence float64) []Face {
	kept := make([]Face, 0, len(candidates))
	for _, f := range candidates {
		if f.Score >= minConfidence {
			kept = append(kept, f)
		}
	}
	return kept
}
