// Package pores extracts individual pore regions from a binary mask.
//
// Labeling is 8-connected: diagonal neighbors belong to the same pore, which
// avoids splitting a single pore whose pixels only touch corner-to-corner.
package pores

import (
	"fmt"
	"math"

	"github.com/poromet/poromet/internal/calib"
	"github.com/poromet/poromet/internal/segment"
)

// Pore is one connected pore region. Immutable after extraction.
type Pore struct {
	// ID is the 1-based label in discovery (scan) order.
	ID int `json:"id"`

	// PixelArea is the number of mask pixels in the region.
	PixelArea int `json:"pixel_area"`

	// EquivalentDiameterNm is the diameter of a circle with the same
	// physical area as the region: 2*sqrt(area_px * s^2 / pi) for pixel
	// size s. It is derived only from PixelArea and the calibration scale.
	EquivalentDiameterNm float64 `json:"equivalent_diameter_nm"`

	// CentroidX and CentroidY are the mean pixel coordinates of the region.
	CentroidX float64 `json:"centroid_x"`
	CentroidY float64 `json:"centroid_y"`
}

// Options control extraction policy.
type Options struct {
	// IncludeBorderPores keeps components that touch the image border.
	// They are excluded by default: a pore cut by the frame has lost an
	// unknown part of its area, so its equivalent diameter is biased low.
	IncludeBorderPores bool
}

// Result holds the extracted pores and the label map they came from.
type Result struct {
	// Pores is ordered by ascending discovery order of the row-major scan.
	// Downstream aggregation must not depend on this order for correctness.
	Pores []Pore

	// Labels is indexed [y][x]: 0 for solid, the pore ID for pore pixels,
	// and -1 for pixels of border-excluded components.
	Labels [][]int32

	Width  int
	Height int
}

// Extract labels the connected pore regions of a mask and computes each
// region's equivalent circular diameter under the given calibration scale.
//
// The scan is row-major top-to-bottom, so the output order is deterministic
// for a given mask. Components touching the image border are dropped unless
// opts.IncludeBorderPores is set; dropped components never become Pore
// entities and are marked -1 in the label map.
func Extract(mask *segment.Mask, scale calib.Scale, opts Options) (*Result, error) {
	if scale.NmPerPixel <= 0 {
		return nil, fmt.Errorf("calibration scale must be positive, got %g", scale.NmPerPixel)
	}
	if mask == nil || mask.Width == 0 || mask.Height == 0 {
		return nil, fmt.Errorf("cannot extract from empty mask")
	}

	width := mask.Width
	height := mask.Height
	labels := make([][]int32, height)
	for y := range labels {
		labels[y] = make([]int32, width)
	}

	res := &Result{
		Labels: labels,
		Width:  width,
		Height: height,
	}

	areaNmSq := scale.NmPerPixel * scale.NmPerPixel
	stack := make([][2]int, 0, 256)
	component := make([][2]int, 0, 256)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if !mask.Pore[y][x] || labels[y][x] != 0 {
				continue
			}

			// Flood-fill the component, stack-based to stay safe on
			// large regions.
			component = component[:0]
			stack = append(stack[:0], [2]int{x, y})
			touchesBorder := false
			var sumX, sumY int64

			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				px, py := p[0], p[1]

				if px < 0 || px >= width || py < 0 || py >= height {
					continue
				}
				if !mask.Pore[py][px] || labels[py][px] != 0 {
					continue
				}

				labels[py][px] = -1 // provisional; relabeled below when kept
				component = append(component, p)
				sumX += int64(px)
				sumY += int64(py)
				if px == 0 || px == width-1 || py == 0 || py == height-1 {
					touchesBorder = true
				}

				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						if dx == 0 && dy == 0 {
							continue
						}
						stack = append(stack, [2]int{px + dx, py + dy})
					}
				}
			}

			if touchesBorder && !opts.IncludeBorderPores {
				continue // pixels keep the -1 marker
			}

			id := len(res.Pores) + 1
			for _, p := range component {
				labels[p[1]][p[0]] = int32(id)
			}

			area := len(component)
			res.Pores = append(res.Pores, Pore{
				ID:                   id,
				PixelArea:            area,
				EquivalentDiameterNm: 2 * math.Sqrt(float64(area)*areaNmSq/math.Pi),
				CentroidX:            float64(sumX) / float64(area),
				CentroidY:            float64(sumY) / float64(area),
			})
		}
	}

	return res, nil
}
