// Package imagecodec converts base64-wrapped compressed images to in-memory
// rasters and back.
package imagecodec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"strings"

	// Registered decoders for the input formats clients send.
	_ "image/gif"
	_ "image/png"

	"github.com/nfnt/resize"
)

// DefaultQuality matches the worker's JPEG_QUALITY default.
const DefaultQuality = 95

var (
	// ErrDecode marks malformed base64 or unrecognised image data.
	ErrDecode = errors.New("imagecodec: decode failed")
	// ErrEncode marks a failure producing the output image.
	ErrEncode = errors.New("imagecodec: encode failed")
)

// Codec decodes request payloads and encodes results. It is immutable and
// safe for concurrent use.
type Codec struct {
	quality int
	maxSide uint
}

// New builds a codec. quality is clamped to [1,100]; maxSide > 0 downscales
// decoded images whose longest side exceeds it.
func New(quality, maxSide int) *Codec {
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}
	if maxSide < 0 {
		maxSide = 0
	}
	return &Codec{quality: quality, maxSide: uint(maxSide)}
}

// Quality returns the JPEG quality used by Encode.
func (c *Codec) Quality() int {
	return c.quality
}

// Decode turns a base64 payload (optionally a data URI) into a raster.
func (c *Codec) Decode(payload string) (image.Image, error) {
	img, _, err := c.DecodeSized(payload)
	return img, err
}

// DecodeSized is Decode that also reports the size of the image as sent,
// before any downscale, so callers can Restore it.
func (c *Codec) DecodeSized(payload string) (image.Image, image.Point, error) {
	data, err := decodeBase64(payload)
	if err != nil {
		return nil, image.Point{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, image.Point{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	original := img.Bounds().Size()
	if original.X <= 0 || original.Y <= 0 {
		return nil, image.Point{}, fmt.Errorf("%w: empty image", ErrDecode)
	}
	if c.maxSide > 0 && (uint(original.X) > c.maxSide || uint(original.Y) > c.maxSide) {
		img = resize.Thumbnail(c.maxSide, c.maxSide, img, resize.Lanczos3)
	}
	return img, original, nil
}

// Restore scales img back to size when a downscale changed it.
func (c *Codec) Restore(img image.Image, size image.Point) image.Image {
	if img == nil || size.X <= 0 || size.Y <= 0 || img.Bounds().Size() == size {
		return img
	}
	return resize.Resize(uint(size.X), uint(size.Y), img, resize.Lanczos3)
}

// Encode compresses img as JPEG and wraps it in standard base64.
func (c *Codec) Encode(img image.Image) (string, error) {
	if img == nil {
		return "", fmt.Errorf("%w: nil image", ErrEncode)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: c.quality}); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func decodeBase64(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 {
			return nil, errors.New("malformed data URI")
		}
		payload = payload[comma+1:]
	}
	payload = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, payload)
	if payload == "" {
		return nil, errors.New("empty payload")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err == nil {
		return data, nil
	}
	if raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "=")); rawErr == nil {
		return raw, nil
	}
	return nil, err
}
