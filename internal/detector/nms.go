package detector

import (
	"sort"

	"github.com/example/face-swap/internal/faces"
)

// nms performs greedy Non-Maximum Suppression; the result is score descending.
func nms(candidates []faces.Face, iouThreshold float32) []faces.Face {
	if len(candidates) == 0 {
		return nil
	}

	sorted := make([]faces.Face, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	keep := make([]bool, len(sorted))
	for i := range keep {
		keep[i] = true
	}

	for i := 0; i < len(sorted); i++ {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(sorted); j++ {
			if keep[j] && iou(sorted[i].BoundingBox, sorted[j].BoundingBox) > iouThreshold {
				keep[j] = false
			}
		}
	}

	result := make([]faces.Face, 0, len(sorted))
	for i, face := range sorted {
		if keep[i] {
			result = append(result, face)
		}
	}
	return result
}

// iou calculates Intersection over Union of two bounding boxes
func iou(a, b faces.BoundingBox) float32 {
	x1 := max(a.X1, b.X1)
	y1 := max(a.Y1, b.Y1)
	x2 := min(a.X2, b.X2)
	y2 := min(a.Y2, b.Y2)

	if x1 >= x2 || y1 >= y2 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)
	union := a.Area() + b.Area() - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}
