// Package segment classifies micrograph pixels as pore or solid.
//
// The polarity convention is fixed: pores image darker than the solid matrix,
// so pixels strictly below the corrected threshold are pore. Auto-detecting
// polarity would make results depend on image content in a way operators
// cannot reproduce, so it is a documented constant instead.
package segment

import (
	"fmt"
	"image"

	"github.com/anthonynsimon/bild/blur"

	"github.com/poromet/poromet/internal/imaging"
)

// Options control one segmentation pass.
type Options struct {
	// ThresholdCorrection multiplies the raw Otsu threshold before
	// binarization. Must be > 0. Values above 1 compensate for the
	// systematic brightness bias of the pore phase in SEM imaging.
	ThresholdCorrection float64

	// DenoiseSigma is the Gaussian blur radius applied before thresholding
	// to suppress sensor noise. Zero disables denoising. The blur is fully
	// deterministic; identical input always yields an identical mask.
	DenoiseSigma float64
}

// Mask is the binary pore/solid classification of every pixel.
type Mask struct {
	Width  int
	Height int

	// Pore is indexed [y][x]; true means the pixel is classified as pore.
	Pore [][]bool
}

// Result bundles the mask with the intermediates a caller may want to render
// or log.
type Result struct {
	Mask *Mask

	// Filtered is the post-denoise, pre-threshold image (the visual QA aid).
	// When denoising is disabled this is the input image itself.
	Filtered *image.Gray

	// RawThreshold is the uncorrected Otsu level on the 0-255 intensity axis.
	RawThreshold float64

	// Threshold is RawThreshold * ThresholdCorrection, the level actually
	// used for binarization.
	Threshold float64
}

// Segment computes a pore mask from a grayscale micrograph.
//
// The threshold is chosen by Otsu's method (the level maximizing between-class
// intensity variance), scaled by opts.ThresholdCorrection, and applied with
// the dark-pore convention: intensity < threshold means pore. Image border
// pixels are always classified solid, so partial pores touching the frame do
// not leak into the mask as open regions.
func Segment(img *image.Gray, opts Options) (*Result, error) {
	if opts.ThresholdCorrection <= 0 {
		return nil, fmt.Errorf("threshold correction must be positive, got %g", opts.ThresholdCorrection)
	}
	if opts.DenoiseSigma < 0 {
		return nil, fmt.Errorf("denoise sigma must be non-negative, got %g", opts.DenoiseSigma)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("cannot segment zero-size image")
	}

	filtered := img
	if opts.DenoiseSigma > 0 {
		filtered = imaging.ToGray(blur.Gaussian(img, opts.DenoiseSigma))
	}

	raw := otsuThreshold(filtered)
	threshold := raw * opts.ThresholdCorrection

	mask := &Mask{
		Width:  width,
		Height: height,
		Pore:   make([][]bool, height),
	}
	for y := 0; y < height; y++ {
		mask.Pore[y] = make([]bool, width)
		if y == 0 || y == height-1 {
			continue // border rows stay solid
		}
		row := filtered.Pix[y*filtered.Stride:]
		for x := 1; x < width-1; x++ {
			mask.Pore[y][x] = float64(row[x]) < threshold
		}
	}

	return &Result{
		Mask:         mask,
		Filtered:     filtered,
		RawThreshold: raw,
		Threshold:    threshold,
	}, nil
}

// otsuThreshold finds the intensity level maximizing between-class variance
// over the 256-bin histogram of the image.
//
// Returns the level as a float on the 0-255 axis. For a uniform image every
// split has zero between-class variance and the lowest level (0) is returned,
// which classifies nothing as pore under the strict < comparison.
func otsuThreshold(img *image.Gray) float64 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	var hist [256]int
	for y := 0; y < height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+width]
		for _, v := range row {
			hist[v]++
		}
	}

	total := width * height
	var sumAll float64
	for v, n := range hist {
		sumAll += float64(v) * float64(n)
	}

	var (
		sumBelow   float64
		countBelow int
		bestVar    float64
		bestLevel  int
	)
	for level := 0; level < 256; level++ {
		countBelow += hist[level]
		if countBelow == 0 {
			continue
		}
		countAbove := total - countBelow
		if countAbove == 0 {
			break
		}
		sumBelow += float64(level) * float64(hist[level])

		wBelow := float64(countBelow)
		wAbove := float64(countAbove)
		meanBelow := sumBelow / wBelow
		meanAbove := (sumAll - sumBelow) / wAbove

		diff := meanBelow - meanAbove
		betweenVar := wBelow * wAbove * diff * diff
		if betweenVar > bestVar {
			bestVar = betweenVar
			bestLevel = level
		}
	}

	// The best split puts levels <= bestLevel in the dark class; the
	// threshold sits just above that level.
	if bestVar == 0 {
		return 0
	}
	return float64(bestLevel) + 1
}

// PoreCount returns the number of pore-classified pixels.
func (m *Mask) PoreCount() int {
	n := 0
	for _, row := range m.Pore {
		for _, p := range row {
			if p {
				n++
			}
		}
	}
	return n
}

// PoreFraction returns the ratio of pore-classified pixels to total pixels,
// always in [0, 1].
func (m *Mask) PoreFraction() float64 {
	if m.Width == 0 || m.Height == 0 {
		return 0
	}
	return float64(m.PoreCount()) / float64(m.Width*m.Height)
}
