package server

import (
	"time"

	"github.com/MeKo-Tech/platex/internal/pipeline"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	pool        *pipeline.Pool
	corsOrigin  string
	maxUploadMB int64
	timeout     time.Duration
	modelsDir   string
	rateLimiter *RateLimiter
}

// Config holds server configuration.
type Config struct {
	Host        string
	Port        int
	CORSOrigin  string
	MaxUploadMB int64
	TimeoutSec  int
	// ShutdownTimeout bounds graceful shutdown in ListenAndServe.
	ShutdownTimeout time.Duration
	ModelsDir       string
	// RateLimit enables per-client limits when non-nil.
	RateLimit *RateLimitConfig
}

// RateLimitConfig holds per-client request limits. Zero disables a limit.
type RateLimitConfig struct {
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int
	MaxDataPerDay     int64
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Time     string `json:"time"`
	Plate    bool   `json:"plate"`
	Document bool   `json:"document"`
	Workers  int    `json:"workers"`
}

// ModelInfo describes one model file.
type ModelInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Filename    string `json:"filename"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Available   bool   `json:"available"`
}

// ModelsResponse is returned by /models.
type ModelsResponse struct {
	Models []ModelInfo             `json:"models"`
	Count  int                     `json:"count"`
	Loaded map[string]interface{} `json:"loaded,omitempty"`
}

// PlateResponse is the answer to a plate extraction.
type PlateResponse struct {
	Success      bool     `json:"success"`
	PlateNumber  string   `json:"plate_number"`
	Confidence   float64  `json:"confidence"`
	ErrorMessage string   `json:"error_message"`
	Outcome      string   `json:"outcome,omitempty"`
	RawSequence  []string `json:"raw_sequence,omitempty"`
	Filename     string   `json:"filename,omitempty"`
	RequestID    string   `json:"request_id,omitempty"`
}

// DocumentResponse is the answer to an identity document extraction.
type DocumentResponse struct {
	Success            bool    `json:"success"`
	IDNumber           string  `json:"id_number"`
	Name               string  `json:"name"`
	LastName           string  `json:"lastname"`
	ConfidenceID       float64 `json:"confidence_id"`
	ConfidenceName     float64 `json:"confidence_name"`
	ConfidenceLastName float64 `json:"confidence_lastname"`
	ErrorMessage       string  `json:"error_message"`
	Outcome            string  `json:"outcome,omitempty"`
	Filename           string  `json:"filename,omitempty"`
	RequestID          string  `json:"request_id,omitempty"`
}

// ErrorResponse is returned when a request cannot be processed at all.
type ErrorResponse struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message"`
	RequestID    string `json:"request_id,omitempty"`
}
