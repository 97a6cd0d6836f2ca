package ocr

import (
	"errors"
	"testing"
)

func TestParseMagnification(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"x prefix", "SEM 15kV x300 10um", 300},
		{"x prefix with space", "WD 8.2mm  x 200", 200},
		{"x suffix", "mag 300x wd 10", 300},
		{"kilo suffix", "x1.00k 10um", 1000},
		{"kilo suffix uppercase", "X2.5K", 2500},
		{"suffix kilo on trailing x", "1.2k x", 1200},
		{"uppercase X", "X50", 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMagnification(tt.text)
			if err != nil {
				t.Fatalf("ParseMagnification(%q): %v", tt.text, err)
			}
			if got != tt.want {
				t.Errorf("ParseMagnification(%q): got %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestParseMagnification_NoToken(t *testing.T) {
	for _, text := range []string{"", "15kV WD 8.2mm", "no numbers here"} {
		if _, err := ParseMagnification(text); !errors.Is(err, ErrNoMagnification) {
			t.Errorf("ParseMagnification(%q): expected ErrNoMagnification, got %v", text, err)
		}
	}
}
