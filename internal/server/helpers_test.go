package server

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MeKo-Tech/platex/internal/pipeline"
	"github.com/MeKo-Tech/platex/internal/recognizer"
	"github.com/MeKo-Tech/platex/internal/testutil"
	"github.com/MeKo-Tech/platex/internal/testutil/fixtures"
	"github.com/stretchr/testify/require"
)

// newTestServer serves both deployments over scripted models.
func newTestServer(t *testing.T, ocr recognizer.Engine, cfg Config) *Server {
	t.Helper()
	if ocr == nil {
		ocr = fixtures.ScriptedOCR("1234", "Ben", 0.9)
	}
	pc := fixtures.Context(t, fixtures.PlateScene(), fixtures.DocumentScene(), ocr)
	srv, err := NewServer(pipeline.NewPool(pc, pipeline.PoolConfig{MaxWorkers: 2}), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func plateFrame(t *testing.T) []byte {
	t.Helper()
	return testutil.EncodePNG(t, fixtures.PlateScene().Frame())
}

func documentFrame(t *testing.T) []byte {
	t.Helper()
	return testutil.EncodePNG(t, fixtures.DocumentScene().Frame())
}

// multipartRequest builds a POST with an "image" file part and extra fields.
func multipartRequest(t *testing.T, target string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if data != nil {
		part, err := mw.CreateFormFile("image", "upload.png")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}
