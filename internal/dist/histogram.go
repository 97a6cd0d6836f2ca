// Package dist aggregates per-pore diameters into a calibrated
// probability-density histogram.
package dist

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/poromet/poromet/internal/pores"
)

// ErrEmptyDistribution is returned when no pore falls inside the diameter
// range. It marks a valid-but-empty result — an image can legitimately
// contain no detectable pores within range — and must not abort an analysis.
var ErrEmptyDistribution = errors.New("no pores within diameter range")

// Bin is one sample point of the distribution.
type Bin struct {
	// DiameterNm is the bin center.
	DiameterNm float64 `json:"diameter"`

	// Density is the probability density at this bin, normalized so that
	// the sum of Density*BinWidth over all bins is 1.
	Density float64 `json:"pdf"`
}

// Distribution is the aggregated pore-size distribution of one analysis.
type Distribution struct {
	// Bins is ordered by ascending diameter.
	Bins []Bin `json:"bins"`

	// BinWidthNm is the constant width of every bin.
	BinWidthNm float64 `json:"bin_width_nm"`

	// AvgDiameterNm is the count-weighted mean diameter of included pores.
	AvgDiameterNm float64 `json:"avg_diam_nm"`

	// ModeDiameterNm is the center of the highest-density bin; ties go to
	// the smallest diameter.
	ModeDiameterNm float64 `json:"mode_diam_nm"`

	// IncludedCount is the number of pores inside the diameter cap.
	IncludedCount int `json:"included_count"`

	// TotalCount counts every extracted pore, including those the cap
	// excluded from the histogram and statistics.
	TotalCount int `json:"total_count"`
}

// Aggregate bins the pore diameters into binCount even bins over
// [0, maxDiameterNm].
//
// Pores with diameter above maxDiameterNm are truncated away: they appear in
// TotalCount but contribute nothing to the bins, the mean, or the mode. A
// diameter exactly at the cap lands in the last bin. The bin origin is fixed
// at zero rather than at the smallest observed diameter so bin geometry does
// not depend on the sample and runs stay comparable across images.
//
// Returns ErrEmptyDistribution when zero pores survive truncation.
func Aggregate(poreList []pores.Pore, maxDiameterNm float64, binCount int) (*Distribution, error) {
	if maxDiameterNm <= 0 {
		return nil, fmt.Errorf("max diameter must be positive, got %g", maxDiameterNm)
	}
	if binCount <= 0 {
		return nil, fmt.Errorf("bin count must be positive, got %d", binCount)
	}

	binWidth := maxDiameterNm / float64(binCount)
	counts := make([]int, binCount)
	included := make([]float64, 0, len(poreList))

	for _, p := range poreList {
		d := p.EquivalentDiameterNm
		if d > maxDiameterNm {
			continue
		}
		idx := int(d / binWidth)
		if idx == binCount { // d == maxDiameterNm
			idx = binCount - 1
		}
		counts[idx]++
		included = append(included, d)
	}

	if len(included) == 0 {
		return nil, fmt.Errorf("%w (total pores: %d)", ErrEmptyDistribution, len(poreList))
	}

	d := &Distribution{
		Bins:          make([]Bin, binCount),
		BinWidthNm:    binWidth,
		AvgDiameterNm: stat.Mean(included, nil),
		IncludedCount: len(included),
		TotalCount:    len(poreList),
	}

	norm := float64(len(included)) * binWidth
	bestDensity := -1.0
	for i := 0; i < binCount; i++ {
		density := float64(counts[i]) / norm
		d.Bins[i] = Bin{
			DiameterNm: (float64(i) + 0.5) * binWidth,
			Density:    density,
		}
		if density > bestDensity {
			bestDensity = density
			d.ModeDiameterNm = d.Bins[i].DiameterNm
		}
	}

	return d, nil
}
