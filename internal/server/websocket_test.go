package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingConn struct {
	messages [][]byte
}

func (c *recordingConn) WriteMessage(_ int, data []byte) error {
	c.messages = append(c.messages, data)
	return nil
}

func TestHandleWSMessage(t *testing.T) {
	srv := newTestServer(t, nil, Config{})

	t.Run("plate", func(t *testing.T) {
		conn := &recordingConn{}
		data, err := json.Marshal(WSRequest{Type: "plate", Image: plateFrame(t), Filename: "f.png", RequestID: "r1"})
		require.NoError(t, err)
		srv.handleWSMessage(context.Background(), conn, data)

		require.Len(t, conn.messages, 1)
		var resp PlateResponse
		require.NoError(t, json.Unmarshal(conn.messages[0], &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, "RS 1234", resp.PlateNumber)
		assert.Equal(t, "f.png", resp.Filename)
		assert.Equal(t, "r1", resp.RequestID)
	})

	t.Run("document", func(t *testing.T) {
		conn := &recordingConn{}
		data, err := json.Marshal(WSRequest{Type: "Document", Image: documentFrame(t)})
		require.NoError(t, err)
		srv.handleWSMessage(context.Background(), conn, data)

		require.Len(t, conn.messages, 1)
		var resp DocumentResponse
		require.NoError(t, json.Unmarshal(conn.messages[0], &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, "1234", resp.IDNumber)
		assert.NotEmpty(t, resp.RequestID)
	})

	errorCases := []struct {
		name    string
		payload string
		message string
	}{
		{"malformed", "{", "Failed to parse request"},
		{"unknown type", `{"type":"passport","image":"AAAA"}`, "Unsupported request type: passport"},
		{"no image", `{"type":"plate"}`, "No image data provided"},
		{"undecodable", `{"type":"plate","image":"AAAA"}`, "Failed to decode image bytes."},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			conn := &recordingConn{}
			srv.handleWSMessage(context.Background(), conn, []byte(tt.payload))
			require.Len(t, conn.messages, 1)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(conn.messages[0], &resp))
			assert.False(t, resp.Success)
			assert.Equal(t, tt.message, resp.ErrorMessage)
		})
	}
}

func TestWSHandler_RoundTrip(t *testing.T) {
	srv := newTestServer(t, nil, Config{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	defer func() { _ = resp.Body.Close() }()

	require.NoError(t, conn.WriteJSON(WSRequest{Type: "plate", Image: plateFrame(t), RequestID: "ws-1"}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var out PlateResponse
	require.NoError(t, conn.ReadJSON(&out))
	assert.True(t, out.Success)
	assert.Equal(t, "RS 1234", out.PlateNumber)
	assert.Equal(t, "ws-1", out.RequestID)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
}
