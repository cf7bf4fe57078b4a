// Package support holds the state and step definitions of the HTTP API
// feature suite.
package support

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MeKo-Tech/platex/internal/pipeline"
	"github.com/MeKo-Tech/platex/internal/recognizer"
	"github.com/MeKo-Tech/platex/internal/server"
	"github.com/MeKo-Tech/platex/internal/testutil/fixtures"
)

// TestContext holds the state of one scenario.
type TestContext struct {
	t *testing.T

	Server     *httptest.Server
	TestServer *server.Server

	// HTTP response state
	LastStatusCode int
	LastBody       []byte
	LastHeaders    http.Header
	LastJSON       map[string]interface{}
}

// NewTestContext creates a scenario context. Fixture contexts are released
// through t.
func NewTestContext(t *testing.T) *TestContext {
	return &TestContext{t: t}
}

// StartServer serves a fixture pipeline reading text with ocr.
func (tc *TestContext) StartServer(ocr recognizer.Engine, cfg server.Config) error {
	if err := tc.StopServer(); err != nil {
		return err
	}
	pc := fixtures.Context(tc.t, fixtures.PlateScene(), fixtures.DocumentScene(), ocr)
	pool := pipeline.NewPool(pc, pipeline.PoolConfig{MaxWorkers: 2})
	srv, err := server.NewServer(pool, cfg)
	if err != nil {
		return err
	}
	tc.TestServer = srv
	tc.Server = httptest.NewServer(srv.Handler())
	return nil
}

// StopServer shuts the running server down.
func (tc *TestContext) StopServer() error {
	if tc.Server == nil {
		return nil
	}
	tc.Server.Close()
	err := tc.TestServer.Close()
	tc.Server, tc.TestServer = nil, nil
	return err
}

// Cleanup resets the scenario state.
func (tc *TestContext) Cleanup() error {
	tc.LastStatusCode = 0
	tc.LastBody = nil
	tc.LastHeaders = nil
	tc.LastJSON = nil
	return tc.StopServer()
}
