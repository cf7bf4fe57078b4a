package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/MeKo-Tech/platex/internal/labels"
	"github.com/MeKo-Tech/platex/internal/models"
	"github.com/MeKo-Tech/platex/internal/pipeline"
	"github.com/MeKo-Tech/platex/internal/version"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	pc := s.pool.Context()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "healthy",
		Version:  version.Version,
		Time:     time.Now().UTC().Format(time.RFC3339),
		Plate:    pc.HasPlate(),
		Document: pc.HasDocument(),
		Workers:  s.pool.Workers(),
	})
}

// modelsHandler lists the model files and which of them are present.
func (s *Server) modelsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := models.Status(s.modelsDir)
	infos := models.ListAvailableModels()
	list := make([]ModelInfo, len(infos))
	for i, info := range infos {
		list[i] = ModelInfo{
			Name:        info.Name,
			Type:        info.Type,
			Filename:    info.Filename,
			Description: info.Description,
			Required:    info.Required,
			Available:   status[info.Name],
		}
	}
	writeJSON(w, http.StatusOK, ModelsResponse{Models: list, Count: len(list), Loaded: s.pool.Context().Info()})
}

// plateHandler extracts a plate number from an uploaded frame.
func (s *Server) plateHandler(w http.ResponseWriter, r *http.Request) {
	s.extractHandler(w, r, pipeline.KindPlate)
}

// documentHandler extracts identity document fields from an uploaded image.
func (s *Server) documentHandler(w http.ResponseWriter, r *http.Request) {
	s.extractHandler(w, r, pipeline.KindDocument)
}

func (s *Server) extractHandler(w http.ResponseWriter, r *http.Request, kind pipeline.Kind) {
	requestID := requestIDFrom(r.Context())
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data, filename, err := s.readUpload(w, r)
	if err != nil {
		var ue *uploadError
		status := http.StatusBadRequest
		if errors.As(err, &ue) {
			status = ue.status
		}
		writeError(w, status, err.Error(), requestID)
		return
	}
	uploadSizeBytes.WithLabelValues(string(kind)).Observe(float64(len(data)))

	jr := s.extract(r.Context(), kind, filename, data)
	if jr.Err != nil {
		status, msg := errorStatus(jr.Err)
		slog.Warn("Extraction failed", "kind", kind, "filename", filename, "request_id", requestID, "error", jr.Err)
		writeError(w, status, msg, requestID)
		return
	}

	slog.Info("Extraction complete", "kind", kind, "filename", filename, "request_id", requestID,
		"success", jr.Result.Success, "outcome", jr.Result.Outcome, "duration", jr.Duration)
	writeJSON(w, http.StatusOK, buildResponse(jr.Result, filename, requestID))
}

// extract runs one job on the pool within the request timeout.
func (s *Server) extract(ctx context.Context, kind pipeline.Kind, filename string, data []byte) pipeline.JobResult {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.pool.Submit(ctx, pipeline.Job{Name: filename, Kind: kind, Data: data})
}

type uploadError struct {
	status int
	msg    string
}

func (e *uploadError) Error() string { return e.msg }

// readUpload accepts a multipart form with an "image" file and optional
// "filename" field, or a raw image body with the filename in the query.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	limit := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, "", tooLargeOr(err, "Failed to read request body")
		}
		if len(data) == 0 {
			return nil, "", &uploadError{http.StatusBadRequest, "No image file provided"}
		}
		return data, r.URL.Query().Get("filename"), nil
	}

	if err := r.ParseMultipartForm(limit); err != nil {
		return nil, "", tooLargeOr(err, "Failed to parse form data")
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		return nil, "", &uploadError{http.StatusBadRequest, "No image file provided"}
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", &uploadError{http.StatusInternalServerError, "Failed to read image data"}
	}
	filename := r.FormValue("filename")
	if filename == "" {
		filename = header.Filename
	}
	return data, filename, nil
}

func tooLargeOr(err error, msg string) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) || strings.Contains(strings.ToLower(err.Error()), "request body too large") {
		return &uploadError{http.StatusRequestEntityTooLarge, "File too large"}
	}
	return &uploadError{http.StatusBadRequest, msg}
}

// errorStatus maps an invocation error to an HTTP status and message.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, pipeline.ErrImageDecode):
		return http.StatusBadRequest, pipeline.MsgDecodeFailed
	case errors.Is(err, pipeline.ErrInvalidImageDimensions):
		return http.StatusBadRequest, "Invalid image dimensions."
	case errors.Is(err, pipeline.ErrNotConfigured):
		return http.StatusServiceUnavailable, "This extraction is not enabled on the server."
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Extraction timed out."
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "Request cancelled."
	default:
		return http.StatusInternalServerError, fmt.Sprintf("Extraction failed: %v", err)
	}
}

// buildResponse converts a result into the response schema of its kind.
func buildResponse(res *pipeline.Result, filename, requestID string) interface{} {
	if res.Kind == pipeline.KindDocument {
		f := func(role labels.Role) pipeline.FieldResult { return res.Fields[string(role)] }
		return DocumentResponse{
			Success:            res.Success,
			IDNumber:           f(labels.RoleIDNumber).Text,
			Name:               f(labels.RoleName).Text,
			LastName:           f(labels.RoleLastName).Text,
			ConfidenceID:       f(labels.RoleIDNumber).Confidence,
			ConfidenceName:     f(labels.RoleName).Confidence,
			ConfidenceLastName: f(labels.RoleLastName).Confidence,
			ErrorMessage:       res.ErrorReason,
			Outcome:            string(res.Outcome),
			Filename:           filename,
			RequestID:          requestID,
		}
	}
	return PlateResponse{
		Success:      res.Success,
		PlateNumber:  res.Text,
		Confidence:   res.Confidence,
		ErrorMessage: res.ErrorReason,
		Outcome:      string(res.Outcome),
		RawSequence:  res.RawSequence,
		Filename:     filename,
		RequestID:    requestID,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message, requestID string) {
	writeJSON(w, status, ErrorResponse{Success: false, ErrorMessage: message, RequestID: requestID})
}
