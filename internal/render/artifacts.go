// Package render produces the visual artifacts of an analysis: the filtered
// image, the labeled pore map, and the histogram plot, each as PNG bytes.
//
// Rendering is a presentation concern: a failure here never invalidates the
// numeric results, so every renderer is independent and returns its own error.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/poromet/poromet/internal/dist"
	"github.com/poromet/poromet/internal/pores"
)

// FilteredImage encodes the post-denoise, pre-threshold grayscale image.
func FilteredImage(filtered *image.Gray) ([]byte, error) {
	if filtered == nil {
		return nil, fmt.Errorf("no filtered image to render")
	}
	return encodePNG(filtered)
}

// PoreMap overlays every extracted pore on the source image, tinted by pore
// id from an HSV palette. Pixels of border-excluded components are left
// untinted so the map shows exactly the pores that entered the statistics.
func PoreMap(src *image.Gray, res *pores.Result) ([]byte, error) {
	if src == nil || res == nil {
		return nil, fmt.Errorf("no extraction result to render")
	}
	bounds := src.Bounds()
	if bounds.Dx() != res.Width || bounds.Dy() != res.Height {
		return nil, fmt.Errorf("label map %dx%d does not match image %dx%d",
			res.Width, res.Height, bounds.Dx(), bounds.Dy())
	}

	out := image.NewRGBA(image.Rect(0, 0, res.Width, res.Height))
	draw.Draw(out, out.Bounds(), src, bounds.Min, draw.Src)

	palette := porePalette(len(res.Pores))
	for y := 0; y < res.Height; y++ {
		for x := 0; x < res.Width; x++ {
			label := res.Labels[y][x]
			if label <= 0 {
				continue
			}
			tint := palette[(int(label)-1)%len(palette)]
			g := src.GrayAt(x+bounds.Min.X, y+bounds.Min.Y).Y
			out.SetRGBA(x, y, blend(g, tint))
		}
	}

	return encodePNG(out)
}

// porePalette spaces hues by the golden angle so neighboring ids get visually
// distinct tints.
func porePalette(n int) []colorful.Color {
	if n < 1 {
		n = 1
	}
	out := make([]colorful.Color, n)
	for i := range out {
		hue := math.Mod(float64(i)*137.508, 360)
		out[i] = colorful.Hsv(hue, 0.85, 0.95)
	}
	return out
}

// blend mixes the source gray value with the tint at half strength, keeping
// the underlying texture visible through the overlay.
func blend(gray uint8, tint colorful.Color) color.RGBA {
	g := float64(gray) / 255.0
	r, gg, b := tint.RGB255()
	return color.RGBA{
		R: uint8((g*0.5 + float64(r)/255.0*0.5) * 255),
		G: uint8((g*0.5 + float64(gg)/255.0*0.5) * 255),
		B: uint8((g*0.5 + float64(b)/255.0*0.5) * 255),
		A: 255,
	}
}

// Plot geometry for the histogram chart.
const (
	plotWidth    = 800
	plotHeight   = 500
	marginLeft   = 70
	marginRight  = 25
	marginTop    = 45
	marginBottom = 55
)

// HistogramPlot renders the distribution as a bar chart: diameter on the
// x-axis, probability density on the y-axis.
func HistogramPlot(d *dist.Distribution) ([]byte, error) {
	if d == nil || len(d.Bins) == 0 {
		return nil, fmt.Errorf("no distribution to render")
	}

	img := image.NewRGBA(image.Rect(0, 0, plotWidth, plotHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	axisColor := color.RGBA{0, 0, 0, 255}
	barFill := color.RGBA{70, 120, 180, 255}
	barEdge := color.RGBA{20, 20, 20, 255}

	innerW := plotWidth - marginLeft - marginRight
	innerH := plotHeight - marginTop - marginBottom

	maxDensity := 0.0
	for _, b := range d.Bins {
		if b.Density > maxDensity {
			maxDensity = b.Density
		}
	}
	if maxDensity == 0 {
		maxDensity = 1 // flat zero histogram still gets axes
	}
	maxDiameter := d.BinWidthNm * float64(len(d.Bins))

	// Bars.
	for i, b := range d.Bins {
		x0 := marginLeft + i*innerW/len(d.Bins)
		x1 := marginLeft + (i+1)*innerW/len(d.Bins)
		barH := int(b.Density / maxDensity * float64(innerH))
		if barH == 0 {
			continue
		}
		y0 := marginTop + innerH - barH
		y1 := marginTop + innerH
		fillRect(img, x0+1, y0, x1-1, y1, barFill)
		strokeRect(img, x0, y0, x1, y1, barEdge)
	}

	// Axes.
	drawHLine(img, marginLeft, plotWidth-marginRight, marginTop+innerH, axisColor)
	drawVLine(img, marginLeft, marginTop, marginTop+innerH, axisColor)

	// X ticks at quarters of the diameter range.
	for i := 0; i <= 4; i++ {
		x := marginLeft + i*innerW/4
		drawVLine(img, x, marginTop+innerH, marginTop+innerH+4, axisColor)
		label := fmt.Sprintf("%.0f", float64(i)/4*maxDiameter)
		drawText(img, x-len(label)*7/2, marginTop+innerH+18, label, axisColor)
	}

	// Y ticks at 0, half, and max density.
	for i := 0; i <= 2; i++ {
		y := marginTop + innerH - i*innerH/2
		drawHLine(img, marginLeft-4, marginLeft, y, axisColor)
		label := fmt.Sprintf("%.4g", float64(i)/2*maxDensity)
		drawText(img, marginLeft-8-len(label)*7, y+4, label, axisColor)
	}

	drawText(img, plotWidth/2-80, 22, "Pore Size Distribution", axisColor)
	drawText(img, plotWidth/2-70, plotHeight-14, "Pore Diameter (nm)", axisColor)
	drawText(img, 6, marginTop-10, "Probability Density", axisColor)

	return encodePNG(img)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func fillRect(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

func strokeRect(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	drawHLine(img, x0, x1, y0, c)
	drawHLine(img, x0, x1, y1, c)
	drawVLine(img, x0, y0, y1, c)
	drawVLine(img, x1, y0, y1, c)
}

func drawHLine(img *image.RGBA, x0, x1, y int, c color.RGBA) {
	for x := x0; x <= x1; x++ {
		img.SetRGBA(x, y, c)
	}
}

func drawVLine(img *image.RGBA, x, y0, y1 int, c color.RGBA) {
	for y := y0; y <= y1; y++ {
		img.SetRGBA(x, y, c)
	}
}

func drawText(img *image.RGBA, x, y int, s string, c color.RGBA) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}
