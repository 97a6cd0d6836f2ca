// Package calib converts microscope magnification into a physical pixel size.
//
// SEM micrographs carry no embedded scale; the nm-per-pixel value depends on
// the capture device's field of view at each magnification step and on the
// output resolution it was saved at. The mapping is therefore a fixed,
// versioned lookup table keyed by (resolution, magnification) — never an
// interpolation, since an interpolated value would silently fabricate
// calibration data for a setting the device was never measured at.
package calib

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrUnsupportedMagnification is returned when no table entry matches the
// requested (resolution, magnification) pair.
type ErrUnsupportedMagnification struct {
	Width, Height int
	Magnification int
	Available     map[string][]int
}

func (e *ErrUnsupportedMagnification) Error() string {
	return fmt.Sprintf("unsupported resolution (%dx%d) or magnification (%dx); available: %v",
		e.Width, e.Height, e.Magnification, e.Available)
}

// Scale is the physical size of one pixel, derived once per request and
// immutable afterwards.
type Scale struct {
	// NmPerPixel is the edge length of one pixel in nanometers. Always > 0.
	NmPerPixel float64

	// Magnification is the microscope magnification the scale was derived from.
	Magnification int
}

// Resolution holds the calibrated magnifications for one output resolution.
type Resolution struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	// Magnifications maps magnification (e.g. 300 for 300x) to nm per pixel.
	Magnifications map[int]float64 `yaml:"magnifications"`
}

// Table is the versioned magnification-to-pixel-size lookup for one capture
// device. A table is immutable after construction and safe for concurrent use.
type Table struct {
	Version     string       `yaml:"version"`
	Resolutions []Resolution `yaml:"resolutions"`
}

// DefaultTable returns the built-in calibration for the reference SEM.
//
// The values reproduce the bench measurements of the original capture device:
// a counted number of pixels spanning a known physical distance on the info
// bar ruler, expressed here as nm per pixel.
func DefaultTable() *Table {
	return &Table{
		Version: "reference-sem-v1",
		Resolutions: []Resolution{
			{
				Width: 2560, Height: 1920,
				Magnifications: map[int]float64{
					10:  5000.0 / 1008.0,
					20:  2000.0 / 807.0,
					50:  1000.0 / 1022.0,
					100: 500.0 / 1018.0,
				},
			},
			{
				Width: 1280, Height: 960,
				Magnifications: map[int]float64{
					200: 200.0 / 406.0,
					300: 100.0 / 303.0,
				},
			},
			{
				Width: 554, Height: 416,
				Magnifications: map[int]float64{
					200: 200.0 / 174.0,
				},
			},
		},
	}
}

// LoadTable reads a calibration table from a YAML file, replacing the built-in
// table wholesale. Entries are validated: every nm-per-pixel value must be
// positive.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read calibration table: %w", err)
	}
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse calibration table: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks that the table is usable: at least one entry, and every
// pixel size strictly positive.
func (t *Table) Validate() error {
	if len(t.Resolutions) == 0 {
		return fmt.Errorf("calibration table %q has no resolutions", t.Version)
	}
	for _, res := range t.Resolutions {
		if res.Width <= 0 || res.Height <= 0 {
			return fmt.Errorf("calibration table %q: invalid resolution %dx%d",
				t.Version, res.Width, res.Height)
		}
		if len(res.Magnifications) == 0 {
			return fmt.Errorf("calibration table %q: resolution %dx%d has no magnifications",
				t.Version, res.Width, res.Height)
		}
		for mag, nm := range res.Magnifications {
			if mag <= 0 {
				return fmt.Errorf("calibration table %q: invalid magnification %d", t.Version, mag)
			}
			if nm <= 0 {
				return fmt.Errorf("calibration table %q: non-positive pixel size %g at %dx",
					t.Version, nm, mag)
			}
		}
	}
	return nil
}

// Scale resolves the physical pixel size for an image of the given resolution
// captured at the given magnification.
//
// Returns *ErrUnsupportedMagnification when the pair is not in the table. The
// error lists the supported combinations so the caller can report them
// verbatim.
func (t *Table) Scale(width, height, magnification int) (Scale, error) {
	for _, res := range t.Resolutions {
		if res.Width != width || res.Height != height {
			continue
		}
		if nm, ok := res.Magnifications[magnification]; ok {
			return Scale{NmPerPixel: nm, Magnification: magnification}, nil
		}
	}
	return Scale{}, &ErrUnsupportedMagnification{
		Width:         width,
		Height:        height,
		Magnification: magnification,
		Available:     t.available(),
	}
}

// Supported reports whether any resolution in the table carries the given
// magnification. It lets callers reject an unsupported magnification before
// decoding a single pixel; the resolution-specific check happens in Scale.
func (t *Table) Supported(magnification int) bool {
	for _, res := range t.Resolutions {
		if _, ok := res.Magnifications[magnification]; ok {
			return true
		}
	}
	return false
}

// available summarizes the table as resolution -> sorted magnifications, for
// error messages.
func (t *Table) available() map[string][]int {
	out := make(map[string][]int, len(t.Resolutions))
	for _, res := range t.Resolutions {
		mags := make([]int, 0, len(res.Magnifications))
		for mag := range res.Magnifications {
			mags = append(mags, mag)
		}
		sort.Ints(mags)
		out[fmt.Sprintf("%dx%d", res.Width, res.Height)] = mags
	}
	return out
}
