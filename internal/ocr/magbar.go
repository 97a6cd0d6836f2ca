// Package ocr reads the magnification printed on the SEM info bar.
//
// Micrographs from the reference device carry a text banner along the bottom
// edge with the capture settings, including a magnification token such as
// "x300" or "x1.00k". When a client omits the magnification field, the server
// can recover it from this banner instead of rejecting the upload outright.
// OCR output is advisory only: the parsed value still has to pass the
// calibration table like any caller-supplied magnification.
package ocr

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// ErrNoMagnification is returned when the info bar yields no parseable
// magnification token.
var ErrNoMagnification = errors.New("no magnification found on info bar")

// bannerFraction is how much of the image height, measured from the bottom,
// is cropped and fed to OCR. The reference device draws its info bar inside
// the bottom tenth; a margin is added for off-spec exports.
const bannerFraction = 0.15

// ReadMagnification crops the info-bar strip from a micrograph and OCRs the
// magnification out of it.
func ReadMagnification(img image.Image) (int, error) {
	bounds := img.Bounds()
	height := bounds.Dy()
	stripTop := bounds.Max.Y - int(float64(height)*bannerFraction)
	if stripTop <= bounds.Min.Y {
		stripTop = bounds.Min.Y
	}
	strip := imaging.Crop(img, image.Rect(bounds.Min.X, stripTop, bounds.Max.X, bounds.Max.Y))

	var buf bytes.Buffer
	if err := png.Encode(&buf, strip); err != nil {
		return 0, fmt.Errorf("failed to encode info bar strip: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return 0, fmt.Errorf("failed to load strip into OCR: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return 0, fmt.Errorf("OCR failed: %w", err)
	}

	return ParseMagnification(text)
}

// magPattern matches "x300", "x 300", "300x", "x1.00k" and similar tokens.
var magPattern = regexp.MustCompile(`(?i)(?:x\s*([0-9]+(?:\.[0-9]+)?)(k?)|([0-9]+(?:\.[0-9]+)?)(k?)\s*x)`)

// ParseMagnification extracts a magnification from OCR text.
//
// A trailing "k" multiplies by 1000 ("x1.00k" -> 1000). Fractional values are
// rounded to the nearest integer; non-positive results are rejected.
func ParseMagnification(text string) (int, error) {
	m := magPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, ErrNoMagnification
	}

	num, suffix := m[1], m[2]
	if num == "" {
		num, suffix = m[3], m[4]
	}
	value, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad number %q", ErrNoMagnification, num)
	}
	if strings.EqualFold(suffix, "k") {
		value *= 1000
	}

	mag := int(math.Round(value))
	if mag <= 0 {
		return 0, fmt.Errorf("%w: non-positive value %q", ErrNoMagnification, num)
	}
	return mag, nil
}
