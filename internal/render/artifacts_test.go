package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/poromet/poromet/internal/calib"
	"github.com/poromet/poromet/internal/dist"
	"github.com/poromet/poromet/internal/pores"
	"github.com/poromet/poromet/internal/segment"
)

func decodePNG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("artifact is not a valid PNG: %v", err)
	}
	return img
}

func TestFilteredImage(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 30, 20))
	src.SetGray(5, 5, color.Gray{77})

	data, err := FilteredImage(src)
	if err != nil {
		t.Fatalf("FilteredImage failed: %v", err)
	}
	img := decodePNG(t, data)
	if img.Bounds().Dx() != 30 || img.Bounds().Dy() != 20 {
		t.Errorf("dimensions: got %dx%d, want 30x20", img.Bounds().Dx(), img.Bounds().Dy())
	}
	r, _, _, _ := img.At(5, 5).RGBA()
	if uint8(r>>8) != 77 {
		t.Errorf("pixel (5,5): got %d, want 77", r>>8)
	}
}

func TestFilteredImage_Nil(t *testing.T) {
	if _, err := FilteredImage(nil); err == nil {
		t.Error("nil input should fail")
	}
}

func extractOneSquare(t *testing.T) (*image.Gray, *pores.Result) {
	t.Helper()
	src := image.NewGray(image.Rect(0, 0, 40, 40))
	mask := &segment.Mask{Width: 40, Height: 40, Pore: make([][]bool, 40)}
	for y := range mask.Pore {
		mask.Pore[y] = make([]bool, 40)
	}
	for y := 10; y < 20; y++ {
		for x := 10; x < 20; x++ {
			mask.Pore[y][x] = true
		}
	}
	res, err := pores.Extract(mask, calib.Scale{NmPerPixel: 1}, pores.Options{})
	if err != nil {
		t.Fatal(err)
	}
	return src, res
}

func TestPoreMap(t *testing.T) {
	src, res := extractOneSquare(t)

	data, err := PoreMap(src, res)
	if err != nil {
		t.Fatalf("PoreMap failed: %v", err)
	}
	img := decodePNG(t, data)

	// Pore pixels carry a tint (not gray), background stays gray.
	r, g, b, _ := img.At(15, 15).RGBA()
	if r == g && g == b {
		t.Error("pore pixel should be tinted, got pure gray")
	}
	r, g, b, _ = img.At(2, 2).RGBA()
	if r != g || g != b {
		t.Errorf("background pixel should stay gray, got (%d,%d,%d)", r>>8, g>>8, b>>8)
	}
}

func TestPoreMap_SizeMismatch(t *testing.T) {
	_, res := extractOneSquare(t)
	wrong := image.NewGray(image.Rect(0, 0, 10, 10))
	if _, err := PoreMap(wrong, res); err == nil {
		t.Error("mismatched dimensions should fail")
	}
}

func TestHistogramPlot(t *testing.T) {
	d, err := dist.Aggregate([]pores.Pore{
		{ID: 1, EquivalentDiameterNm: 20},
		{ID: 2, EquivalentDiameterNm: 25},
		{ID: 3, EquivalentDiameterNm: 70},
	}, 100, 10)
	if err != nil {
		t.Fatal(err)
	}

	data, err := HistogramPlot(d)
	if err != nil {
		t.Fatalf("HistogramPlot failed: %v", err)
	}
	img := decodePNG(t, data)
	if img.Bounds().Dx() != plotWidth || img.Bounds().Dy() != plotHeight {
		t.Errorf("plot dimensions: got %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}

	// The tallest bar region must contain non-white pixels.
	foundBar := false
	for y := marginTop; y < plotHeight-marginBottom && !foundBar; y++ {
		for x := marginLeft; x < plotWidth-marginRight; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			if r>>8 != 255 || g>>8 != 255 || b>>8 != 255 {
				foundBar = true
				break
			}
		}
	}
	if !foundBar {
		t.Error("plot area contains no drawing")
	}
}

func TestHistogramPlot_NoBins(t *testing.T) {
	if _, err := HistogramPlot(&dist.Distribution{}); err == nil {
		t.Error("empty distribution should fail to render")
	}
	if _, err := HistogramPlot(nil); err == nil {
		t.Error("nil distribution should fail to render")
	}
}

func TestPorePalette_Distinct(t *testing.T) {
	p := porePalette(8)
	if len(p) != 8 {
		t.Fatalf("palette size: got %d, want 8", len(p))
	}
	for i := 1; i < len(p); i++ {
		if p[i] == p[i-1] {
			t.Errorf("adjacent palette entries %d and %d identical", i-1, i)
		}
	}
}
