package server

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/poromet/poromet/internal/analysis"
	"github.com/poromet/poromet/internal/calib"
	"github.com/poromet/poromet/internal/dist"
	"github.com/poromet/poromet/internal/imaging"
	"github.com/poromet/poromet/internal/ocr"
)

var errResultNotFound = errors.New("results not found")

type handlerFunc func(http.ResponseWriter, *http.Request) error

// wrap maps handler errors onto HTTP status codes. Input-validation errors
// are the client's fault and come back verbatim as 400s, per the error
// taxonomy of the pipeline.
func (s *Server) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err == nil {
			return
		}

		var unsupported *calib.ErrUnsupportedMagnification
		switch {
		case errors.Is(err, errResultNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, imaging.ErrImageTooLarge):
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		case errors.Is(err, imaging.ErrInvalidImage),
			errors.As(err, &unsupported),
			isValidationError(err):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			s.log.WithError(err).Error("request failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// isValidationError reports whether a pipeline error happened before any
// pixel work, i.e. while the input was being checked.
func isValidationError(err error) bool {
	var stageErr *analysis.Error
	return errors.As(err, &stageErr) && stageErr.Stage == analysis.StageReceived
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "healthy",
		"message":   "Poromet API is running",
		"timestamp": time.Now().UTC(),
	})
}

// analyzeResponse is the JSON envelope of one analysis. Artifact fields are
// omitted when rendering failed; the numeric results are always present.
type analyzeResponse struct {
	ResultID         string     `json:"result_id"`
	AvgDiamNm        float64    `json:"avg_diam_nm"`
	ModeDiamNm       float64    `json:"mode_diam_nm"`
	HistogramData    []dist.Bin `json:"histogram_data"`
	PixelSize        float64    `json:"pixel_size"`
	PoreAreaFraction float64    `json:"pore_area_fraction"`
	TotalPoreCount   int        `json:"total_pore_count"`
	Empty            bool       `json:"empty"`

	Artifacts struct {
		FilteredImage string `json:"filtered_image,omitempty"`
		PoreMap       string `json:"pore_map,omitempty"`
		HistogramPlot string `json:"histogram_plot,omitempty"`
	} `json:"artifacts"`
}

// POST /api/analyze
//
// Multipart form: file (image), magnification (int, optional when the info
// bar is readable), max_diam_nm (float), thresh_mag (float).
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		return fmt.Errorf("%w: %v", imaging.ErrInvalidImage, err)
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		return fmt.Errorf("%w: no file provided", imaging.ErrInvalidImage)
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("%w: %v", imaging.ErrInvalidImage, err)
	}

	maxDiam, err := formFloat(r, "max_diam_nm")
	if err != nil {
		return err
	}
	threshMag, err := formFloat(r, "thresh_mag")
	if err != nil {
		return err
	}

	magnification, err := s.resolveMagnification(r, data)
	if err != nil {
		return err
	}

	result, err := s.analyzer.Analyze(r.Context(), data, analysis.Params{
		Magnification:       magnification,
		MaxDiameterNm:       maxDiam,
		ThresholdCorrection: threshMag,
	})
	if err != nil {
		return err
	}

	stored := &StoredResult{
		ID:            uuid.NewString(),
		CreatedAt:     time.Now().UTC(),
		Magnification: magnification,
		Result:        result,
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		stored.Width = cfg.Width
		stored.Height = cfg.Height
	}
	s.store.Put(stored)

	resp := analyzeResponse{
		ResultID:         stored.ID,
		AvgDiamNm:        result.AvgDiameterNm,
		ModeDiamNm:       result.ModeDiameterNm,
		HistogramData:    result.Histogram,
		PixelSize:        result.PixelSizeNm,
		PoreAreaFraction: result.PoreAreaFraction,
		TotalPoreCount:   result.TotalPoreCount,
		Empty:            result.Empty,
	}
	resp.Artifacts.FilteredImage = base64.StdEncoding.EncodeToString(result.Artifacts.Filtered)
	resp.Artifacts.PoreMap = base64.StdEncoding.EncodeToString(result.Artifacts.PoreMap)
	resp.Artifacts.HistogramPlot = base64.StdEncoding.EncodeToString(result.Artifacts.HistogramPlot)

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(resp)
}

// resolveMagnification takes the form field when present, otherwise tries to
// read the magnification off the SEM info bar.
func (s *Server) resolveMagnification(r *http.Request, data []byte) (int, error) {
	if v := r.FormValue("magnification"); v != "" {
		mag, err := strconv.Atoi(v)
		if err != nil {
			return 0, &analysis.Error{Stage: analysis.StageReceived,
				Err: fmt.Errorf("invalid magnification %q", v)}
		}
		return mag, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", imaging.ErrInvalidImage, err)
	}
	mag, err := ocr.ReadMagnification(img)
	if err != nil {
		return 0, &analysis.Error{Stage: analysis.StageReceived,
			Err: fmt.Errorf("magnification not provided and not readable from info bar: %w", err)}
	}
	s.log.WithField("magnification", mag).Info("magnification read from info bar")
	return mag, nil
}

func formFloat(r *http.Request, field string) (float64, error) {
	v := r.FormValue(field)
	if v == "" {
		return 0, &analysis.Error{Stage: analysis.StageReceived,
			Err: fmt.Errorf("%s is required", field)}
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, &analysis.Error{Stage: analysis.StageReceived,
			Err: fmt.Errorf("invalid %s %q", field, v)}
	}
	return f, nil
}

// GET /api/download/{id}
//
// Streams a ZIP bundle with the text report, the raw histogram data, and the
// artifact PNGs of a retained result.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "id")
	stored, ok := s.store.Get(id)
	if !ok {
		return errResultNotFound
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	files := []struct {
		name string
		data []byte
	}{
		{"pore_size_analysis.txt", buildReport(stored)},
		{"raw_histogram_data.txt", buildRawHistogram(stored)},
		{"filtered_image.png", stored.Result.Artifacts.Filtered},
		{"pore_map.png", stored.Result.Artifacts.PoreMap},
		{"pore_size_distribution.png", stored.Result.Artifacts.HistogramPlot},
	}
	for _, f := range files {
		if len(f.data) == 0 {
			continue // artifact unavailable
		}
		fw, err := zw.Create(f.name)
		if err != nil {
			return fmt.Errorf("failed to build archive: %w", err)
		}
		if _, err := fw.Write(f.data); err != nil {
			return fmt.Errorf("failed to build archive: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=poromet_results_%s.zip", id))
	_, err := w.Write(buf.Bytes())
	return err
}
