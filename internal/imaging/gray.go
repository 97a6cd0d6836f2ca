// Package imaging decodes uploaded micrographs into grayscale pixel buffers
// and enforces the input limits of the analysis pipeline.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder

	"github.com/disintegration/imaging"
)

// ErrInvalidImage marks an upload that cannot be decoded or has no pixels.
var ErrInvalidImage = errors.New("invalid image")

// ErrImageTooLarge marks an upload above the configured resolution cap.
// Oversized images are rejected before any pixel work so memory use stays
// proportional to the cap, not to whatever the client sent.
var ErrImageTooLarge = errors.New("image too large")

// DecodeGray decodes an uploaded image and converts it to an 8-bit grayscale
// buffer.
//
// Parameters:
//   - data: Raw upload bytes. Supported formats are PNG, JPEG, and GIF.
//   - maxPixels: Upper bound on width*height. Zero disables the check.
//
// Returns ErrInvalidImage (wrapped) for undecodable or zero-size input and
// ErrImageTooLarge for input above maxPixels. Color images are reduced to
// luminance; already-grayscale images pass through unchanged values.
func DecodeGray(data []byte, maxPixels int) (*image.Gray, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrInvalidImage)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	bounds := src.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("%w: zero-size image", ErrInvalidImage)
	}
	if maxPixels > 0 && width*height > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixel limit",
			ErrImageTooLarge, width, height, maxPixels)
	}

	return ToGray(src), nil
}

// ToGray converts any image to a tightly packed *image.Gray with origin (0,0).
func ToGray(src image.Image) *image.Gray {
	if g, ok := src.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) && g.Stride == g.Bounds().Dx() {
		return g
	}

	// imaging.Grayscale produces an NRGBA with R=G=B; copy one channel out.
	flat := imaging.Grayscale(src)
	w := flat.Bounds().Dx()
	h := flat.Bounds().Dy()
	gray := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		src := flat.Pix[y*flat.Stride:]
		dst := gray.Pix[y*gray.Stride:]
		for x := 0; x < w; x++ {
			dst[x] = src[x*4]
		}
	}
	return gray
}
