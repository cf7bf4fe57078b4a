package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Tech/platex/internal/pipeline"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// WSRequest is one extraction request over the WebSocket. Image holds the
// encoded frame, base64 in JSON.
type WSRequest struct {
	Type      string `json:"type"` // "plate" or "document"
	Image     []byte `json:"image"`
	Filename  string `json:"filename,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// wsConn is the subset of *websocket.Conn used to answer requests.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
}

// wsHandler upgrades the connection and serves extraction requests until
// the client goes away.
func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()
	slog.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)

	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
					return
				}
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("WebSocket closed unexpectedly", "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()
		if messageType != websocket.TextMessage {
			continue
		}
		s.handleWSMessage(ctx, conn, data)
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	}
}

// handleWSMessage answers one request with the response schema of its kind.
func (s *Server) handleWSMessage(ctx context.Context, conn wsConn, data []byte) {
	var req WSRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendWS(conn, ErrorResponse{ErrorMessage: fmt.Sprintf("Failed to parse request: %v", err)})
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	kind, err := pipeline.ParseKind(req.Type)
	if err != nil {
		s.sendWS(conn, ErrorResponse{ErrorMessage: "Unsupported request type: " + req.Type, RequestID: req.RequestID})
		return
	}
	if len(req.Image) == 0 {
		s.sendWS(conn, ErrorResponse{ErrorMessage: "No image data provided", RequestID: req.RequestID})
		return
	}
	uploadSizeBytes.WithLabelValues(string(kind)).Observe(float64(len(req.Image)))

	jr := s.extract(ctx, kind, req.Filename, req.Image)
	if jr.Err != nil {
		_, msg := errorStatus(jr.Err)
		s.sendWS(conn, ErrorResponse{ErrorMessage: msg, RequestID: req.RequestID})
		return
	}
	s.sendWS(conn, buildResponse(jr.Result, req.Filename, req.RequestID))
}

func (s *Server) sendWS(conn wsConn, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to marshal WebSocket response", "error", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Error("Failed to send WebSocket message", "error", err)
		return
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
}
