package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeGray(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.RGBA{100, 100, 100, 255})
		}
	}

	gray, err := DecodeGray(encodePNG(t, img), 0)
	if err != nil {
		t.Fatalf("DecodeGray failed: %v", err)
	}
	if gray.Bounds().Dx() != 40 || gray.Bounds().Dy() != 30 {
		t.Errorf("dimensions: got %dx%d, want 40x30", gray.Bounds().Dx(), gray.Bounds().Dy())
	}
	if got := gray.GrayAt(10, 10).Y; got != 100 {
		t.Errorf("gray value: got %d, want 100", got)
	}
}

func TestDecodeGray_EmptyInput(t *testing.T) {
	_, err := DecodeGray(nil, 0)
	if !errors.Is(err, ErrInvalidImage) {
		t.Errorf("expected ErrInvalidImage, got %v", err)
	}
}

func TestDecodeGray_Garbage(t *testing.T) {
	_, err := DecodeGray([]byte("not an image"), 0)
	if !errors.Is(err, ErrInvalidImage) {
		t.Errorf("expected ErrInvalidImage, got %v", err)
	}
}

func TestDecodeGray_TooLarge(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 100, 100))
	_, err := DecodeGray(encodePNG(t, img), 100*100-1)
	if !errors.Is(err, ErrImageTooLarge) {
		t.Errorf("expected ErrImageTooLarge, got %v", err)
	}

	// Exactly at the cap is allowed.
	if _, err := DecodeGray(encodePNG(t, img), 100*100); err != nil {
		t.Errorf("image at cap rejected: %v", err)
	}
}

func TestToGray_PassThrough(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	img.SetGray(3, 3, color.Gray{200})

	out := ToGray(img)
	if out != img {
		t.Error("tightly packed grayscale input should pass through without copy")
	}
}

func TestToGray_Luminance(t *testing.T) {
	// Pure green converts to its BT.601-ish luminance, not to 0 or 255.
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{0, 255, 0, 255})
		}
	}

	out := ToGray(img)
	got := out.GrayAt(2, 2).Y
	if got < 120 || got > 200 {
		t.Errorf("green luminance out of range: got %d", got)
	}
}
