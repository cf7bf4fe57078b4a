package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MeKo-Tech/platex/internal/pipeline"
	"github.com/MeKo-Tech/platex/internal/recognizer"
	"github.com/MeKo-Tech/platex/internal/testutil"
	"github.com/MeKo-Tech/platex/internal/testutil/fixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServer(t *testing.T) {
	_, err := NewServer(nil, Config{})
	assert.Error(t, err)

	srv := newTestServer(t, nil, Config{})
	assert.Equal(t, int64(50), srv.maxUploadMB)
	assert.Equal(t, 30*time.Second, srv.timeout)
	assert.Equal(t, "*", srv.corsOrigin)
	assert.Nil(t, srv.rateLimiter)

	srv = newTestServer(t, nil, Config{RateLimit: &RateLimitConfig{RequestsPerMinute: 1}})
	assert.NotNil(t, srv.rateLimiter)
}

func TestServer_HealthHandler(t *testing.T) {
	srv := newTestServer(t, nil, Config{})

	tests := []struct {
		name           string
		method         string
		expectedStatus int
	}{
		{"GET request success", http.MethodGet, http.StatusOK},
		{"POST request not allowed", http.MethodPost, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			srv.healthHandler(w, httptest.NewRequest(tt.method, "/health", nil))
			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus != http.StatusOK {
				return
			}
			var resp HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "healthy", resp.Status)
			assert.True(t, resp.Plate)
			assert.True(t, resp.Document)
			assert.Equal(t, 2, resp.Workers)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		})
	}
}

func TestServer_ModelsHandler(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "localizer.onnx", []byte("x"))
	srv := newTestServer(t, nil, Config{ModelsDir: dir})

	w := httptest.NewRecorder()
	srv.modelsHandler(w, httptest.NewRequest(http.MethodGet, "/models", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp ModelsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, len(resp.Models), resp.Count)
	var found bool
	for _, m := range resp.Models {
		if m.Filename == "localizer.onnx" {
			found = true
			assert.True(t, m.Available)
		}
		if m.Filename == "fields.onnx" {
			assert.False(t, m.Available)
		}
	}
	assert.True(t, found)

	w = httptest.NewRecorder()
	srv.modelsHandler(w, httptest.NewRequest(http.MethodDelete, "/models", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestPlateHandler_Multipart(t *testing.T) {
	srv := newTestServer(t, nil, Config{})
	h := srv.Handler()

	req := multipartRequest(t, "/v1/plates", plateFrame(t), map[string]string{"filename": "cam-1.png"})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp PlateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "RS 1234", resp.PlateNumber)
	assert.InDelta(t, 0.855, resp.Confidence, 1e-9)
	assert.Empty(t, resp.ErrorMessage)
	assert.Equal(t, "success", resp.Outcome)
	assert.Equal(t, []string{"num", "tun"}, resp.RawSequence)
	assert.Equal(t, "cam-1.png", resp.Filename)
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, resp.RequestID, w.Header().Get(HeaderRequestID))
}

func TestPlateHandler_RawBody(t *testing.T) {
	srv := newTestServer(t, nil, Config{})
	req := httptest.NewRequest(http.MethodPost, "/v1/plates?filename=raw.png", bytes.NewReader(plateFrame(t)))
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set(HeaderRequestID, "req-42")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp PlateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "RS 1234", resp.PlateNumber)
	assert.Equal(t, "raw.png", resp.Filename)
	assert.Equal(t, "req-42", resp.RequestID)
}

func TestPlateHandler_FailureOutcomeIsOK(t *testing.T) {
	srv := newTestServer(t, fixtures.ScriptedOCR("", "", 0), Config{})
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, multipartRequest(t, "/v1/plates", plateFrame(t), nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp PlateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "assembly_incomplete", resp.Outcome)
	assert.Contains(t, resp.PlateNumber, "OCR Error")
	assert.Equal(t, "OCR failed on number part for RS-style plate", resp.ErrorMessage)
}

func TestExtractHandler_Errors(t *testing.T) {
	srv := newTestServer(t, nil, Config{MaxUploadMB: 1})
	h := srv.Handler()

	tests := []struct {
		name    string
		req     func() *http.Request
		status  int
		message string
	}{
		{
			name:    "method",
			req:     func() *http.Request { return httptest.NewRequest(http.MethodGet, "/v1/plates", nil) },
			status:  http.StatusMethodNotAllowed,
			message: "Method not allowed",
		},
		{
			name:    "no image part",
			req:     func() *http.Request { return multipartRequest(t, "/v1/plates", nil, map[string]string{"filename": "x"}) },
			status:  http.StatusBadRequest,
			message: "No image file provided",
		},
		{
			name: "empty body",
			req: func() *http.Request {
				return httptest.NewRequest(http.MethodPost, "/v1/documents", http.NoBody)
			},
			status:  http.StatusBadRequest,
			message: "No image file provided",
		},
		{
			name:    "undecodable",
			req:     func() *http.Request { return multipartRequest(t, "/v1/plates", []byte("not an image"), nil) },
			status:  http.StatusBadRequest,
			message: pipeline.MsgDecodeFailed,
		},
		{
			name: "too large",
			req: func() *http.Request {
				return httptest.NewRequest(http.MethodPost, "/v1/plates", bytes.NewReader(make([]byte, 2<<20)))
			},
			status:  http.StatusRequestEntityTooLarge,
			message: "File too large",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, tt.req())
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.message)
			if tt.status != http.StatusMethodNotAllowed {
				var resp ErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.False(t, resp.Success)
			}
		})
	}
}

func TestDocumentHandler(t *testing.T) {
	srv := newTestServer(t, nil, Config{})
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, multipartRequest(t, "/v1/documents", documentFrame(t), nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp DocumentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "1234", resp.IDNumber)
	assert.Equal(t, "Ben", resp.Name)
	assert.Equal(t, "Ben", resp.LastName)
	assert.InDelta(t, 0.9, resp.ConfidenceID, 1e-9)
	assert.InDelta(t, 0.9, resp.ConfidenceLastName, 1e-9)
	assert.Empty(t, resp.ErrorMessage)
	assert.Equal(t, "upload.png", resp.Filename)
}

func TestDocumentHandler_NotEnabled(t *testing.T) {
	pc := fixtures.Context(t, fixtures.PlateScene(), testutil.Scene{}, fixtures.ScriptedOCR("1", "", 1))
	srv, err := NewServer(pipeline.NewPool(pc, pipeline.PoolConfig{MaxWorkers: 1}), Config{})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, multipartRequest(t, "/v1/documents", documentFrame(t), nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "not enabled")
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{&pipeline.StageError{Stage: pipeline.StateRawFrame, Err: pipeline.ErrImageDecode}, http.StatusBadRequest},
		{pipeline.ErrInvalidImageDimensions, http.StatusBadRequest},
		{pipeline.ErrNotConfigured, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{context.Canceled, http.StatusServiceUnavailable},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, msg := errorStatus(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.NotEmpty(t, msg)
	}
}

func TestExtract_Timeout(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{}, 1)
	ocr := recognizer.EngineFunc(func(context.Context, image.Image, recognizer.Options) ([]recognizer.Token, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil, nil
	})
	pc := fixtures.Context(t, fixtures.PlateScene(), testutil.Scene{}, ocr)
	pool := pipeline.NewPool(pc, pipeline.PoolConfig{MaxWorkers: 1})
	srv, err := NewServer(pool, Config{})
	require.NoError(t, err)
	srv.timeout = 20 * time.Millisecond

	// The first job holds the only worker; the request times out waiting.
	done := make(chan struct{})
	go func() {
		defer close(done)
		pool.Submit(context.Background(), pipeline.Job{Kind: pipeline.KindPlate, Image: fixtures.PlateScene().Frame()})
	}()
	<-started

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, multipartRequest(t, "/v1/plates", plateFrame(t), nil))
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Contains(t, w.Body.String(), "timed out")

	close(block)
	<-done
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil, Config{})
	h := srv.Handler()
	h.ServeHTTP(httptest.NewRecorder(), multipartRequest(t, "/v1/plates", plateFrame(t), nil))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "platex_http_requests_total")
	assert.Contains(t, w.Body.String(), "platex_extractions_total")
}
