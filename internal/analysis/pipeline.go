// Package analysis sequences the pore-analysis pipeline for one request:
// calibration, segmentation, pore extraction, distribution aggregation, and
// artifact rendering.
//
// Every stage is pure and deterministic; a failure reflects bad input, not a
// transient condition, so the orchestrator fails fast with a stage tag and
// never retries. All state is request-scoped — concurrent analyses share
// nothing but the immutable calibration table.
package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/poromet/poromet/internal/calib"
	"github.com/poromet/poromet/internal/dist"
	"github.com/poromet/poromet/internal/imaging"
	"github.com/poromet/poromet/internal/pores"
	"github.com/poromet/poromet/internal/render"
	"github.com/poromet/poromet/internal/segment"
)

// Stage identifies where in the pipeline an analysis is, or where it failed.
type Stage string

const (
	StageReceived    Stage = "received"
	StageCalibrating Stage = "calibrating"
	StageSegmenting  Stage = "segmenting"
	StageExtracting  Stage = "extracting"
	StageAggregating Stage = "aggregating"
	StageRendering   Stage = "rendering"
	StageCompleted   Stage = "completed"
)

// Error tags a pipeline failure with the stage it happened in.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("analysis failed at %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Params are the caller-supplied knobs of one analysis request.
type Params struct {
	// Magnification the micrograph was captured at. Must be in the
	// calibration table.
	Magnification int

	// MaxDiameterNm caps the histogram range; larger pores are counted but
	// excluded from the distribution.
	MaxDiameterNm float64

	// ThresholdCorrection biases the Otsu threshold (see segment.Options).
	ThresholdCorrection float64
}

// Config carries the deployment-level pipeline settings.
type Config struct {
	// MaxPixels bounds accepted image resolution; 0 disables the check.
	MaxPixels int

	// BinCount is the number of histogram bins.
	BinCount int

	// DenoiseSigma is the Gaussian denoise radius before thresholding.
	DenoiseSigma float64

	// IncludeBorderPores keeps pores cut by the image frame.
	IncludeBorderPores bool
}

// DefaultConfig mirrors the reference analysis settings.
func DefaultConfig() Config {
	return Config{
		MaxPixels:    2560 * 1920,
		BinCount:     100,
		DenoiseSigma: 1.0,
	}
}

// Artifacts are the rendered PNGs of one analysis. A nil field means that
// artifact failed to render; numeric results are unaffected.
type Artifacts struct {
	Filtered      []byte
	PoreMap       []byte
	HistogramPlot []byte
}

// Result is the immutable outcome of one completed analysis.
type Result struct {
	// PixelSizeNm is the calibrated physical pixel size.
	PixelSizeNm float64 `json:"pixel_size"`

	// Threshold is the corrected intensity threshold used for segmentation.
	Threshold float64 `json:"threshold"`

	// PoreAreaFraction is the ratio of pore pixels to all pixels, in [0,1].
	PoreAreaFraction float64 `json:"pore_area_fraction"`

	// TotalPoreCount counts every extracted pore, including those the
	// diameter cap kept out of the histogram.
	TotalPoreCount int `json:"total_pore_count"`

	// IncludedPoreCount counts pores inside the diameter cap.
	IncludedPoreCount int `json:"included_pore_count"`

	AvgDiameterNm  float64    `json:"avg_diam_nm"`
	ModeDiameterNm float64    `json:"mode_diam_nm"`
	BinWidthNm     float64    `json:"bin_width_nm"`
	Histogram      []dist.Bin `json:"histogram_data"`

	// Empty marks a valid analysis in which no pore fell inside the
	// diameter range. Histogram and statistics are zero-valued.
	Empty bool `json:"empty"`

	Pores []pores.Pore `json:"pores"`

	Artifacts Artifacts `json:"-"`
}

// Analyzer runs the pipeline. Safe for concurrent use; each Analyze call is
// an independent computation over its own buffers.
type Analyzer struct {
	table *calib.Table
	cfg   Config
	log   *logrus.Logger
}

// New builds an Analyzer over a calibration table.
func New(table *calib.Table, cfg Config, log *logrus.Logger) *Analyzer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.BinCount <= 0 {
		cfg.BinCount = DefaultConfig().BinCount
	}
	return &Analyzer{table: table, cfg: cfg, log: log}
}

// Analyze runs the full pipeline over raw upload bytes.
//
// Input validation happens before any pixel work: parameters are checked
// first (an unsupported magnification is rejected without decoding), then the
// image is decoded and size-capped. Stage failures come back as *Error with
// the stage tag; an in-range-empty distribution is not a failure and yields a
// Result with Empty set.
//
// The context is only consulted between stages — individual stages run in
// bounded time for capped image sizes, so cancellation is coarse-grained.
func (a *Analyzer) Analyze(ctx context.Context, data []byte, p Params) (*Result, error) {
	log := a.log.WithFields(logrus.Fields{
		"magnification": p.Magnification,
		"max_diam_nm":   p.MaxDiameterNm,
		"thresh_mag":    p.ThresholdCorrection,
	})

	// Received: validate before touching pixels.
	if p.MaxDiameterNm <= 0 {
		return nil, &Error{StageReceived, fmt.Errorf("max diameter must be positive, got %g", p.MaxDiameterNm)}
	}
	if p.ThresholdCorrection <= 0 {
		return nil, &Error{StageReceived, fmt.Errorf("threshold correction must be positive, got %g", p.ThresholdCorrection)}
	}
	if !a.table.Supported(p.Magnification) {
		_, err := a.table.Scale(0, 0, p.Magnification)
		return nil, &Error{StageReceived, err}
	}

	img, err := imaging.DecodeGray(data, a.cfg.MaxPixels)
	if err != nil {
		return nil, &Error{StageReceived, err}
	}
	width := img.Bounds().Dx()
	height := img.Bounds().Dy()
	log = log.WithField("resolution", fmt.Sprintf("%dx%d", width, height))

	// Calibrating.
	if err := ctx.Err(); err != nil {
		return nil, &Error{StageCalibrating, err}
	}
	scale, err := a.table.Scale(width, height, p.Magnification)
	if err != nil {
		return nil, &Error{StageCalibrating, err}
	}
	log.WithField("nm_per_px", scale.NmPerPixel).Debug("calibrated")

	// Segmenting.
	if err := ctx.Err(); err != nil {
		return nil, &Error{StageSegmenting, err}
	}
	seg, err := segment.Segment(img, segment.Options{
		ThresholdCorrection: p.ThresholdCorrection,
		DenoiseSigma:        a.cfg.DenoiseSigma,
	})
	if err != nil {
		return nil, &Error{StageSegmenting, err}
	}
	fraction := seg.Mask.PoreFraction()
	log.WithFields(logrus.Fields{
		"threshold":     seg.Threshold,
		"pore_fraction": fraction,
	}).Debug("segmented")
	if fraction < 0.001 {
		log.Warn("very low pore fraction; check threshold settings")
	} else if fraction > 0.9 {
		log.Warn("very high pore fraction; check threshold settings")
	}

	// Extracting.
	if err := ctx.Err(); err != nil {
		return nil, &Error{StageExtracting, err}
	}
	extracted, err := pores.Extract(seg.Mask, scale, pores.Options{
		IncludeBorderPores: a.cfg.IncludeBorderPores,
	})
	if err != nil {
		return nil, &Error{StageExtracting, err}
	}
	log.WithField("pores", len(extracted.Pores)).Debug("extracted")

	result := &Result{
		PixelSizeNm:      scale.NmPerPixel,
		Threshold:        seg.Threshold,
		PoreAreaFraction: fraction,
		TotalPoreCount:   len(extracted.Pores),
		Pores:            extracted.Pores,
	}

	// Aggregating. An empty distribution is a valid result, not an abort.
	if err := ctx.Err(); err != nil {
		return nil, &Error{StageAggregating, err}
	}
	distribution, err := dist.Aggregate(extracted.Pores, p.MaxDiameterNm, a.cfg.BinCount)
	switch {
	case err == nil:
		result.AvgDiameterNm = distribution.AvgDiameterNm
		result.ModeDiameterNm = distribution.ModeDiameterNm
		result.BinWidthNm = distribution.BinWidthNm
		result.Histogram = distribution.Bins
		result.IncludedPoreCount = distribution.IncludedCount
	case errors.Is(err, dist.ErrEmptyDistribution):
		result.Empty = true
		log.Info("no pores within diameter range")
	default:
		return nil, &Error{StageAggregating, err}
	}

	// Rendering. Failures are isolated per artifact.
	if err := ctx.Err(); err != nil {
		return nil, &Error{StageRendering, err}
	}
	if data, err := render.FilteredImage(seg.Filtered); err != nil {
		log.WithError(err).Warn("filtered image render failed")
	} else {
		result.Artifacts.Filtered = data
	}
	if data, err := render.PoreMap(img, extracted); err != nil {
		log.WithError(err).Warn("pore map render failed")
	} else {
		result.Artifacts.PoreMap = data
	}
	if !result.Empty {
		if data, err := render.HistogramPlot(distribution); err != nil {
			log.WithError(err).Warn("histogram plot render failed")
		} else {
			result.Artifacts.HistogramPlot = data
		}
	}

	log.WithFields(logrus.Fields{
		"avg_diam_nm":  result.AvgDiameterNm,
		"mode_diam_nm": result.ModeDiameterNm,
		"total_pores":  result.TotalPoreCount,
	}).Info("analysis completed")

	return result, nil
}
