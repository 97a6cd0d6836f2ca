package server

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/poromet/poromet/internal/analysis"
	"github.com/poromet/poromet/internal/calib"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	table := &calib.Table{
		Version: "test",
		Resolutions: []calib.Resolution{
			{Width: 200, Height: 150, Magnifications: map[int]float64{300: 2.0}},
		},
	}
	log := logrus.New()
	log.SetOutput(io.Discard)
	analyzer := analysis.New(table, analysis.Config{BinCount: 50, DenoiseSigma: 0}, log)
	return New(analyzer, Options{ResultCapacity: 4}, log)
}

func diskPNG(t *testing.T, w, h int, withDisk bool) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{220})
		}
	}
	if withDisk {
		for y := 60; y < 90; y++ {
			for x := 85; x < 115; x++ {
				img.SetGray(x, y, color.Gray{20})
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func analyzeRequest(t *testing.T, imgData []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "micrograph.png")
	require.NoError(t, err)
	_, err = fw.Write(imgData)
	require.NoError(t, err)

	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func defaultFields() map[string]string {
	return map[string]string{
		"magnification": "300",
		"max_diam_nm":   "200",
		"thresh_mag":    "1.0",
	}
}

func TestHealth(t *testing.T) {
	srv := testServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "healthy", body["status"])
}

func TestAnalyze(t *testing.T) {
	srv := testServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, analyzeRequest(t, diskPNG(t, 200, 150, true), defaultFields()))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp analyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ResultID)
	require.False(t, resp.Empty)
	require.Equal(t, 1, resp.TotalPoreCount)
	require.Equal(t, 2.0, resp.PixelSize)
	require.Greater(t, resp.AvgDiamNm, 0.0)
	require.NotEmpty(t, resp.HistogramData)
	require.NotEmpty(t, resp.Artifacts.FilteredImage)
	require.NotEmpty(t, resp.Artifacts.PoreMap)
	require.NotEmpty(t, resp.Artifacts.HistogramPlot)
}

func TestAnalyze_EmptyResult(t *testing.T) {
	srv := testServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, analyzeRequest(t, diskPNG(t, 200, 150, false), defaultFields()))

	require.Equal(t, http.StatusOK, rec.Code, "a pore-free image is a valid result")

	var resp analyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Empty)
	require.Zero(t, resp.TotalPoreCount)
	require.Empty(t, resp.Artifacts.HistogramPlot)
	require.NotEmpty(t, resp.Artifacts.FilteredImage)
}

func TestAnalyze_BadRequests(t *testing.T) {
	srv := testServer(t)

	tests := []struct {
		name   string
		img    []byte
		fields map[string]string
		status int
	}{
		{"unsupported magnification", diskPNG(t, 200, 150, true),
			map[string]string{"magnification": "37", "max_diam_nm": "200", "thresh_mag": "1.0"},
			http.StatusBadRequest},
		{"garbage image", []byte("not a png"), defaultFields(), http.StatusBadRequest},
		{"missing max_diam_nm", diskPNG(t, 200, 150, true),
			map[string]string{"magnification": "300", "thresh_mag": "1.0"},
			http.StatusBadRequest},
		{"non-numeric thresh_mag", diskPNG(t, 200, 150, true),
			map[string]string{"magnification": "300", "max_diam_nm": "200", "thresh_mag": "abc"},
			http.StatusBadRequest},
		{"negative thresh_mag", diskPNG(t, 200, 150, true),
			map[string]string{"magnification": "300", "max_diam_nm": "200", "thresh_mag": "-1"},
			http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Router().ServeHTTP(rec, analyzeRequest(t, tt.img, tt.fields))
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestAnalyze_NoFile(t *testing.T) {
	srv := testServer(t)
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("magnification", "300"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownload(t *testing.T) {
	srv := testServer(t)
	router := srv.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, analyzeRequest(t, diskPNG(t, 200, 150, true), defaultFields()))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp analyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/download/"+resp.ResultID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/zip", rec.Header().Get("Content-Type"))

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range zr.File {
		names[f.Name] = true
	}
	require.True(t, names["pore_size_analysis.txt"])
	require.True(t, names["raw_histogram_data.txt"])
	require.True(t, names["filtered_image.png"])
	require.True(t, names["pore_map.png"])
	require.True(t, names["pore_size_distribution.png"])

	// The report mentions the resolution and magnification.
	for _, f := range zr.File {
		if f.Name != "pore_size_analysis.txt" {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		content, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		require.Contains(t, string(content), "200x150px")
		require.Contains(t, string(content), "300x")
	}
}

func TestDownload_NotFound(t *testing.T) {
	srv := testServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/download/no-such-id", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResultStore_Eviction(t *testing.T) {
	store := NewResultStore(2)
	for i := 0; i < 3; i++ {
		store.Put(&StoredResult{ID: fmt.Sprintf("id-%d", i), Result: &analysis.Result{}})
	}
	require.Equal(t, 2, store.Len())

	_, ok := store.Get("id-0")
	require.False(t, ok, "oldest entry should be evicted")
	_, ok = store.Get("id-2")
	require.True(t, ok)
}
