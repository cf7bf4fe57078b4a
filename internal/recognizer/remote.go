package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/MeKo-Tech/platex/internal/geometry"
	"github.com/MeKo-Tech/platex/internal/version"
	"github.com/avast/retry-go/v4"
)

// RemoteConfig points the remote engine at an OCR sidecar.
type RemoteConfig struct {
	URL     string
	Timeout time.Duration
	// Retries is the number of attempts after the first one.
	Retries int
	Delay   time.Duration
}

// RemoteEngine sends crops to an HTTP OCR sidecar. The sidecar accepts a
// multipart form with an "image" PNG and an optional "allowlist" field and
// answers {"results":[{"box":[[x,y],...],"text":"...","confidence":0.9}]}.
type RemoteEngine struct {
	cfg    RemoteConfig
	client *http.Client
}

type remoteResponse struct {
	Results []struct {
		Box        [][2]float64 `json:"box"`
		Text       string       `json:"text"`
		Confidence float64      `json:"confidence"`
	} `json:"results"`
	Error string `json:"error,omitempty"`
}

// NewRemoteEngine validates cfg and builds an engine.
func NewRemoteEngine(cfg RemoteConfig) (*RemoteEngine, error) {
	if cfg.URL == "" {
		return nil, errors.New("remote OCR URL cannot be empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.Delay <= 0 {
		cfg.Delay = 200 * time.Millisecond
	}
	return &RemoteEngine{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

// Read uploads img and converts the sidecar results into tokens. Transport
// errors and 5xx answers are retried; 4xx answers are not.
func (e *RemoteEngine) Read(ctx context.Context, img image.Image, opts Options) ([]Token, error) {
	if img == nil {
		return nil, errors.New("input image is nil")
	}
	body, contentType, err := encodeForm(img, opts)
	if err != nil {
		return nil, err
	}

	var parsed remoteResponse
	err = retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.URL, bytes.NewReader(body))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Content-Type", contentType)
			req.Header.Set("User-Agent", version.UserAgent())
			resp, err := e.client.Do(req)
			if err != nil {
				return err
			}
			defer func() { _ = resp.Body.Close() }()

			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			switch {
			case resp.StatusCode >= 500:
				return fmt.Errorf("OCR sidecar status %d", resp.StatusCode)
			case resp.StatusCode != http.StatusOK:
				return retry.Unrecoverable(fmt.Errorf("OCR sidecar status %d: %s", resp.StatusCode, bytes.TrimSpace(data)))
			}
			parsed = remoteResponse{}
			if err := json.Unmarshal(data, &parsed); err != nil {
				return retry.Unrecoverable(fmt.Errorf("invalid OCR response: %w", err))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(e.cfg.Retries+1)),
		retry.Delay(e.cfg.Delay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("remote OCR failed: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("remote OCR failed: %s", parsed.Error)
	}

	clean := DefaultCleanOptions()
	tokens := make([]Token, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		text := FilterAllowed(CleanText(r.Text, clean), opts.AllowList)
		if text == "" {
			continue
		}
		tokens = append(tokens, Token{Box: polygonBox(r.Box), Text: text, Confidence: r.Confidence})
	}
	return tokens, nil
}

func encodeForm(img image.Image, opts Options) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", "crop.png")
	if err != nil {
		return nil, "", err
	}
	if err := png.Encode(fw, img); err != nil {
		return nil, "", fmt.Errorf("failed to encode crop: %w", err)
	}
	if opts.AllowList != "" {
		if err := mw.WriteField("allowlist", opts.AllowList); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

func polygonBox(pts [][2]float64) geometry.Box {
	if len(pts) == 0 {
		return geometry.Box{}
	}
	b := geometry.Box{MinX: pts[0][0], MinY: pts[0][1], MaxX: pts[0][0], MaxY: pts[0][1]}
	for _, p := range pts[1:] {
		b.MinX = min(b.MinX, p[0])
		b.MinY = min(b.MinY, p[1])
		b.MaxX = max(b.MaxX, p[0])
		b.MaxY = max(b.MaxY, p[1])
	}
	return b
}
