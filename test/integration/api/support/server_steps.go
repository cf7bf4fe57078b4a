package support

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/platex/internal/recognizer"
	"github.com/MeKo-Tech/platex/internal/server"
	"github.com/MeKo-Tech/platex/internal/testutil/fixtures"
	"github.com/cucumber/godog"
	"golang.org/x/image/bmp"
)

// RegisterServerSteps registers the HTTP API step definitions.
func (tc *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the extraction server is running$`, tc.theExtractionServerIsRunning)
	sc.Step(`^the extraction server is running with an OCR engine that reads nothing$`, tc.theServerReadsNothing)
	sc.Step(`^the extraction server is running with a limit of (\d+) requests per minute$`, tc.theServerIsRateLimited)
	sc.Step(`^I upload the (plate|document) frame to "([^"]*)"$`, tc.iUploadTheFrame)
	sc.Step(`^I upload the (plate|document) frame as BMP to "([^"]*)"$`, tc.iUploadTheFrameAsBMP)
	sc.Step(`^I upload the bytes "([^"]*)" to "([^"]*)"$`, tc.iUploadBytes)
	sc.Step(`^I send a (GET|POST|DELETE) request to "([^"]*)"$`, tc.iSendARequest)
	sc.Step(`^the response status should be (\d+)$`, tc.theResponseStatusShouldBe)
	sc.Step(`^the JSON field "([^"]*)" should be "([^"]*)"$`, tc.theJSONFieldShouldBe)
	sc.Step(`^the JSON field "([^"]*)" should be (true|false)$`, tc.theJSONFieldShouldBeBool)
	sc.Step(`^the JSON field "([^"]*)" should be close to ([0-9.]+)$`, tc.theJSONFieldShouldBeCloseTo)
	sc.Step(`^the JSON field "([^"]*)" should contain "([^"]*)"$`, tc.theJSONFieldShouldContain)
	sc.Step(`^the response header "([^"]*)" should not be empty$`, tc.theResponseHeaderShouldNotBeEmpty)
	sc.Step(`^the response should contain "([^"]*)"$`, tc.theResponseShouldContain)
}

func (tc *TestContext) theExtractionServerIsRunning() error {
	return tc.StartServer(fixtures.ScriptedOCR("1234", "Ben", 0.9), server.Config{})
}

func (tc *TestContext) theServerReadsNothing() error {
	return tc.StartServer(recognizer.EngineFunc(func(context.Context, image.Image, recognizer.Options) ([]recognizer.Token, error) {
		return nil, nil
	}), server.Config{})
}

func (tc *TestContext) theServerIsRateLimited(perMinute int) error {
	return tc.StartServer(fixtures.ScriptedOCR("1234", "Ben", 0.9), server.Config{
		RateLimit: &server.RateLimitConfig{RequestsPerMinute: perMinute},
	})
}

func frameFor(kind string) image.Image {
	if kind == "document" {
		return fixtures.DocumentScene().Frame()
	}
	return fixtures.PlateScene().Frame()
}

func (tc *TestContext) iUploadTheFrame(kind, path string) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, frameFor(kind)); err != nil {
		return err
	}
	return tc.upload(path, kind+".png", buf.Bytes())
}

func (tc *TestContext) iUploadTheFrameAsBMP(kind, path string) error {
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, frameFor(kind)); err != nil {
		return err
	}
	return tc.upload(path, kind+".bmp", buf.Bytes())
}

func (tc *TestContext) iUploadBytes(data, path string) error {
	return tc.upload(path, "upload.bin", []byte(data))
}

// upload posts data as the "image" part of a multipart form.
func (tc *TestContext) upload(path, filename string, data []byte) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("image", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, tc.url(path), &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return tc.do(req)
}

func (tc *TestContext) iSendARequest(method, path string) error {
	req, err := http.NewRequestWithContext(context.Background(), method, tc.url(path), nil)
	if err != nil {
		return err
	}
	return tc.do(req)
}

func (tc *TestContext) url(path string) string {
	if tc.Server == nil {
		return path
	}
	return tc.Server.URL + path
}

func (tc *TestContext) do(req *http.Request) error {
	if tc.Server == nil {
		return fmt.Errorf("server is not running")
	}
	resp, err := tc.Server.Client().Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	tc.LastStatusCode = resp.StatusCode
	tc.LastHeaders = resp.Header
	tc.LastBody = body
	tc.LastJSON = nil
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var m map[string]interface{}
		if err := json.Unmarshal(body, &m); err == nil {
			tc.LastJSON = m
		}
	}
	return nil
}

func (tc *TestContext) theResponseStatusShouldBe(code int) error {
	if tc.LastStatusCode != code {
		return fmt.Errorf("expected status %d, got %d: %s", code, tc.LastStatusCode, tc.LastBody)
	}
	return nil
}

// field resolves a dotted path such as "fields.id_number.text" in the last
// JSON body. Numeric segments index arrays.
func (tc *TestContext) field(path string) (interface{}, error) {
	if tc.LastJSON == nil {
		return nil, fmt.Errorf("last response is not JSON: %s", tc.LastBody)
	}
	var cur interface{} = tc.LastJSON
	for _, seg := range strings.Split(path, ".") {
		switch v := cur.(type) {
		case map[string]interface{}:
			next, ok := v[seg]
			if !ok {
				return nil, fmt.Errorf("field %q not found in %s", path, tc.LastBody)
			}
			cur = next
		case []interface{}:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(v) {
				return nil, fmt.Errorf("bad index %q in %q", seg, path)
			}
			cur = v[i]
		default:
			return nil, fmt.Errorf("field %q does not resolve in %s", path, tc.LastBody)
		}
	}
	return cur, nil
}

func (tc *TestContext) theJSONFieldShouldBe(path, want string) error {
	v, err := tc.field(path)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(v); got != want {
		return fmt.Errorf("field %q: expected %q, got %q", path, want, got)
	}
	return nil
}

func (tc *TestContext) theJSONFieldShouldBeBool(path, want string) error {
	v, err := tc.field(path)
	if err != nil {
		return err
	}
	b, ok := v.(bool)
	if !ok || strconv.FormatBool(b) != want {
		return fmt.Errorf("field %q: expected %s, got %v", path, want, v)
	}
	return nil
}

func (tc *TestContext) theJSONFieldShouldBeCloseTo(path string, want float64) error {
	v, err := tc.field(path)
	if err != nil {
		return err
	}
	f, ok := v.(float64)
	if !ok || f < want-1e-6 || f > want+1e-6 {
		return fmt.Errorf("field %q: expected %v, got %v", path, want, v)
	}
	return nil
}

func (tc *TestContext) theJSONFieldShouldContain(path, want string) error {
	v, err := tc.field(path)
	if err != nil {
		return err
	}
	if !strings.Contains(fmt.Sprint(v), want) {
		return fmt.Errorf("field %q: expected to contain %q, got %v", path, want, v)
	}
	return nil
}

func (tc *TestContext) theResponseHeaderShouldNotBeEmpty(name string) error {
	if tc.LastHeaders.Get(name) == "" {
		return fmt.Errorf("header %s is empty", name)
	}
	return nil
}

func (tc *TestContext) theResponseShouldContain(s string) error {
	if !bytes.Contains(tc.LastBody, []byte(s)) {
		return fmt.Errorf("response does not contain %q: %s", s, tc.LastBody)
	}
	return nil
}
