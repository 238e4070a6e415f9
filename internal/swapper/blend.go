package swapper

import (
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/example/face-swap/internal/alignment"
	"github.com/example/face-swap/internal/faces"
	"github.com/example/face-swap/internal/raster"
)

// pasteBack warps the generated crop back into a copy of frame and blends it
// through an eroded, blurred mask of the crop's footprint. m maps frame
// coordinates to crop coordinates.
func pasteBack(frame, generated gocv.Mat, m alignment.Affine) (gocv.Mat, error) {
	inv, err := m.Invert()
	if err != nil {
		return gocv.NewMat(), err
	}
	size := image.Pt(frame.Cols(), frame.Rows())

	warpedFace := raster.Warp(generated, inv, size)
	defer warpedFace.Close()

	white := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 0, 0, 0), FaceSize, FaceSize, gocv.MatTypeCV8U)
	defer white.Close()
	mask := raster.Warp(white, inv, size)
	defer mask.Close()
	gocv.Threshold(mask, &mask, 20, 255, gocv.ThresholdBinary)

	w, h := footprint(inv, FaceSize, size.X, size.Y)
	erodeK, blurK := kernelSizes(w, h)

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(erodeK, erodeK))
	defer kernel.Close()
	eroded := gocv.NewMat()
	defer eroded.Close()
	gocv.Erode(mask, &eroded, kernel)

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(eroded, &blurred, image.Pt(2*blurK+1, 2*blurK+1), 0, 0, gocv.BorderDefault)

	alpha := gocv.NewMat()
	defer alpha.Close()
	blurred.ConvertToWithParams(&alpha, gocv.MatTypeCV32F, 1.0/255.0, 0)
	alpha3 := gocv.NewMat()
	defer alpha3.Close()
	gocv.Merge([]gocv.Mat{alpha, alpha, alpha}, &alpha3)

	faceF := gocv.NewMat()
	defer faceF.Close()
	warpedFace.ConvertTo(&faceF, gocv.MatTypeCV32FC3)
	frameF := gocv.NewMat()
	defer frameF.Close()
	frame.ConvertTo(&frameF, gocv.MatTypeCV32FC3)

	// frame + alpha*(face - frame)
	diff := gocv.NewMat()
	defer diff.Close()
	gocv.Subtract(faceF, frameF, &diff)
	weighted := gocv.NewMat()
	defer weighted.Close()
	gocv.Multiply(diff, alpha3, &weighted)
	sum := gocv.NewMat()
	defer sum.Close()
	gocv.Add(frameF, weighted, &sum)

	out := gocv.NewMat()
	sum.ConvertTo(&out, gocv.MatTypeCV8UC3)
	return out, nil
}

// footprint returns the width and height of the crop square mapped into the
// frame by inv, clipped to the frame.
func footprint(inv alignment.Affine, side, frameW, frameH int) (int, int) {
	s := float32(side)
	corners := [4][2]float32{{0, 0}, {s, 0}, {0, s}, {s, s}}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range corners {
		p := inv.Apply(faces.Point{X: c[0], Y: c[1]})
		minX = math.Min(minX, float64(p.X))
		maxX = math.Max(maxX, float64(p.X))
		minY = math.Min(minY, float64(p.Y))
		maxY = math.Max(maxY, float64(p.Y))
	}
	minX = math.Max(minX, 0)
	minY = math.Max(minY, 0)
	maxX = math.Min(maxX, float64(frameW))
	maxY = math.Min(maxY, float64(frameH))
	if maxX <= minX || maxY <= minY {
		return 0, 0
	}
	return int(maxX - minX), int(maxY - minY)
}

// kernelSizes derives the erosion kernel and the blur radius from the mask
// extent: max(size/10, 10) and max(size/20, 5).
func kernelSizes(w, h int) (int, int) {
	size := int(math.Sqrt(float64(w) * float64(h)))
	return max(size/10, 10), max(size/20, 5)
}
