package detector

import (
	"fmt"
	"image"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/example/face-swap/internal/faces"
	"github.com/example/face-swap/internal/inference"
	"github.com/example/face-swap/internal/raster"
)

// SCRFD implements the SCRFD face detector
type SCRFD struct {
	session        *inference.Session
	inputSize      int
	confThreshold  float32
	nmsThreshold   float32
	featureStrides []int
	numAnchors     int
}

// NewSCRFD loads det_10g style weights: one input and, per stride, a score,
// a box and a keypoint output.
func NewSCRFD(modelPath string, inputSize int, confThreshold, nmsThreshold float32) (*SCRFD, error) {
	session, err := inference.NewSession(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create SCRFD session: %w", err)
	}
	strides := []int{8, 16, 32}
	if n := len(session.OutputNames()); n != 3*len(strides) {
		session.Destroy()
		return nil, fmt.Errorf("SCRFD model %s has %d outputs, want %d", modelPath, n, 3*len(strides))
	}

	return &SCRFD{
		session:        session,
		inputSize:      inputSize,
		confThreshold:  confThreshold,
		nmsThreshold:   nmsThreshold,
		featureStrides: strides,
		numAnchors:     2,
	}, nil
}

// Detect finds faces in a BGR image. The result is in NMS keep order.
func (s *SCRFD) Detect(img gocv.Mat) ([]faces.Face, error) {
	blob, scale := s.preprocess(img)
	defer blob.Close()

	inputTensor, err := inference.CreateTensor([]int64{1, 3, int64(s.inputSize), int64(s.inputSize)}, raster.Bytes(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	// Output shapes depend on the input size and on whether the export is
	// batched, so onnxruntime allocates them.
	outputs := make([]ort.Value, len(s.session.OutputNames()))
	if err := s.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		inference.DestroyAll(outputs)
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	defer inference.DestroyAll(outputs)

	levels := len(s.featureStrides)
	var candidates []faces.Face
	for level, stride := range s.featureStrides {
		scores, err := inference.Float32Data(outputs[level])
		if err != nil {
			return nil, err
		}
		boxes, err := inference.Float32Data(outputs[level+levels])
		if err != nil {
			return nil, err
		}
		kps, err := inference.Float32Data(outputs[level+2*levels])
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, decodeLevel(levelOutput{
			scores:     scores,
			boxes:      boxes,
			keypoints:  kps,
			stride:     stride,
			inputSize:  s.inputSize,
			numAnchors: s.numAnchors,
		}, s.confThreshold, scale, img.Cols(), img.Rows())...)
	}

	return nms(candidates, s.nmsThreshold), nil
}

// preprocess letterboxes the image into the top-left corner of the square
// input and builds the normalized RGB blob.
func (s *SCRFD) preprocess(img gocv.Mat) (gocv.Mat, float32) {
	height := img.Rows()
	width := img.Cols()

	scale := float32(s.inputSize) / float32(max(height, width))
	newWidth := max(1, int(float32(width)*scale))
	newHeight := max(1, int(float32(height)*scale))

	resized := gocv.NewMat()
	gocv.Resize(img, &resized, image.Pt(newWidth, newHeight), 0, 0, gocv.InterpolationLinear)
	defer resized.Close()

	padded := gocv.NewMatWithSize(s.inputSize, s.inputSize, gocv.MatTypeCV8UC3)
	defer padded.Close()
	padded.SetTo(gocv.NewScalar(0, 0, 0, 0))
	roi := padded.Region(image.Rect(0, 0, newWidth, newHeight))
	resized.CopyTo(&roi)
	roi.Close()

	// (x - 127.5) / 128, BGR to RGB, HWC to NCHW
	blob := gocv.BlobFromImage(padded, 1.0/128.0, image.Pt(s.inputSize, s.inputSize),
		gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	return blob, scale
}

// Close releases detector resources
func (s *SCRFD) Close() error {
	return s.session.Destroy()
}

type levelOutput struct {
	scores     []float32
	boxes      []float32
	keypoints  []float32
	stride     int
	inputSize  int
	numAnchors int
}

// decodeLevel turns one stride's distance predictions into faces in original
// image coordinates. Scores are already probabilities.
func decodeLevel(out levelOutput, threshold, scale float32, origWidth, origHeight int) []faces.Face {
	fm := out.inputSize / out.stride
	stride := float32(out.stride)
	var found []faces.Face

	anchorIdx := 0
	for y := 0; y < fm; y++ {
		for x := 0; x < fm; x++ {
			for a := 0; a < out.numAnchors; a++ {
				if anchorIdx >= len(out.scores) {
					return found
				}
				score := out.scores[anchorIdx]
				if score >= threshold && (anchorIdx+1)*4 <= len(out.boxes) && (anchorIdx+1)*10 <= len(out.keypoints) {
					cx := float32(x) * stride
					cy := float32(y) * stride

					b := out.boxes[anchorIdx*4 : anchorIdx*4+4]
					box := faces.BoundingBox{
						X1: clamp((cx-b[0]*stride)/scale, 0, float32(origWidth)),
						Y1: clamp((cy-b[1]*stride)/scale, 0, float32(origHeight)),
						X2: clamp((cx+b[2]*stride)/scale, 0, float32(origWidth)),
						Y2: clamp((cy+b[3]*stride)/scale, 0, float32(origHeight)),
					}

					k := out.keypoints[anchorIdx*10 : anchorIdx*10+10]
					var landmarks faces.Landmarks
					for p := range landmarks {
						landmarks[p] = faces.Point{
							X: (cx + k[p*2]*stride) / scale,
							Y: (cy + k[p*2+1]*stride) / scale,
						}
					}

					found = append(found, faces.Face{
						BoundingBox: box,
						Landmarks:   landmarks,
						Score:       float64(score),
					})
				}
				anchorIdx++
			}
		}
	}
	return found
}

func clamp(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
