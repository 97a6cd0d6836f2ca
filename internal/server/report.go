package server

import (
	"bytes"
	"fmt"
)

// buildReport renders the text report included in the download bundle.
// Layout follows the established report format so downstream tooling keeps
// parsing it.
func buildReport(r *StoredResult) []byte {
	var buf bytes.Buffer
	res := r.Result

	fmt.Fprintf(&buf, "Pore Size Analysis (all nm units)\n")
	fmt.Fprintf(&buf, "Image : %dx%dpx , %dx\n", r.Width, r.Height, r.Magnification)
	fmt.Fprintf(&buf, "Pixel  : %.4f nm / px\n\n", res.PixelSizeNm)

	if res.Empty {
		fmt.Fprintf(&buf, "No pores detected within the diameter range.\n")
		fmt.Fprintf(&buf, "Total pores (all sizes): %d\n", res.TotalPoreCount)
		return buf.Bytes()
	}

	fmt.Fprintf(&buf, "Average Diameter : %.3f nm\n", res.AvgDiameterNm)
	fmt.Fprintf(&buf, "Mode    Diameter : %.3f nm\n", res.ModeDiameterNm)
	fmt.Fprintf(&buf, "Pore Count       : %d (%d within range)\n", res.TotalPoreCount, res.IncludedPoreCount)
	fmt.Fprintf(&buf, "Pore Area Fraction : %.4f\n\n", res.PoreAreaFraction)

	fmt.Fprintf(&buf, "Diameter_center(nm)\tBin_width(nm)\tPDF_diameter\n")
	for _, b := range res.Histogram {
		fmt.Fprintf(&buf, "%.3f\t%.3f\t%.6f\n", b.DiameterNm, res.BinWidthNm, b.Density)
	}
	return buf.Bytes()
}

// buildRawHistogram renders the bare two-column histogram data file.
func buildRawHistogram(r *StoredResult) []byte {
	var buf bytes.Buffer
	res := r.Result

	fmt.Fprintf(&buf, "Diameter_center(nm)\tPDF_diameter\n")
	for _, b := range res.Histogram {
		fmt.Fprintf(&buf, "%.3f\t%.6f\n", b.DiameterNm, b.Density)
	}
	if !res.Empty {
		fmt.Fprintf(&buf, "\nWeighted Mean Diameter: %.3f nm\n", res.AvgDiameterNm)
	}
	return buf.Bytes()
}
