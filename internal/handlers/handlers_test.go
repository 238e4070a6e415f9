package handlers

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/example/face-swap/internal/auth"
	"github.com/example/face-swap/internal/usecase"
)

const testJWTSecret = "test-secret"

type stubRunner struct {
	inputs []map[string]any
	resp   usecase.Response
}

func (s *stubRunner) Run(ctx context.Context, input map[string]any) (string, usecase.Response) {
	s.inputs = append(s.inputs, input)
	return "req-1", s.resp
}

type stubMetrics struct {
	summary *usecase.MetricsSummary
	err     error
}

func (s stubMetrics) GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error) {
	return s.summary, s.err
}

func newTestRouter(runner SwapRunner, metrics MetricsReader, opts Options) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(runner, metrics, opts)
}

func postRun(router *gin.Engine, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/runsync", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestRunSyncWrapsOutput(t *testing.T) {
	runner := &stubRunner{resp: usecase.ErrorResponse("No face detected in source image.")}
	router := newTestRouter(runner, stubMetrics{}, Options{})

	resp := postRun(router, `{"input":{"source_face_b64":"a","target_image_b64":"b","min_confidence":0.5}}`, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("domain errors are not HTTP errors, got %d", resp.Code)
	}

	var body struct {
		ID     string           `json:"id"`
		Status string           `json:"status"`
		Output map[string]string `json:"output"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.ID != "req-1" || body.Status != "COMPLETED" {
		t.Fatalf("unexpected envelope %+v", body)
	}
	if len(body.Output) != 2 || body.Output["status"] != "error" || body.Output["message"] != "No face detected in source image." {
		t.Fatalf("unexpected output %+v", body.Output)
	}
	if _, ok := runner.inputs[0]["min_confidence"].(json.Number); !ok {
		t.Fatalf("numbers should reach the validator as json.Number, got %T", runner.inputs[0]["min_confidence"])
	}
	if resp.Header().Get("X-Request-ID") != "req-1" {
		t.Fatal("expected request id header")
	}
}

func TestRunSyncKeepsCallerID(t *testing.T) {
	runner := &stubRunner{resp: usecase.SuccessResponse("aW1n")}
	router := newTestRouter(runner, stubMetrics{}, Options{})

	resp := postRun(router, `{"id":"job-42","input":{}}`, nil)
	if !strings.Contains(resp.Body.String(), `"id":"job-42"`) {
		t.Fatalf("expected caller id, got %s", resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), `"image_b64":"aW1n"`) || strings.Contains(resp.Body.String(), `"message"`) {
		t.Fatalf("success output must only carry the image, got %s", resp.Body.String())
	}
}

func TestRunSyncRejectsMalformedJSON(t *testing.T) {
	runner := &stubRunner{}
	router := newTestRouter(runner, stubMetrics{}, Options{})

	resp := postRun(router, `{"input":`, nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if len(runner.inputs) != 0 {
		t.Fatal("runner must not be called")
	}
}

func TestRunSyncRejectsOversizedBody(t *testing.T) {
	router := newTestRouter(&stubRunner{}, stubMetrics{}, Options{MaxBodyBytes: 64})

	body := `{"input":{"source_face_b64":"` + strings.Repeat("a", 128) + `"}}`
	resp := postRun(router, body, nil)
	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status %d, got %d", http.StatusRequestEntityTooLarge, resp.Code)
	}
}

func TestRunSyncRequiresTokenWhenAuthEnabled(t *testing.T) {
	runner := &stubRunner{resp: usecase.SuccessResponse("aW1n")}
	router := newTestRouter(runner, stubMetrics{}, Options{Auth: auth.JWTMiddleware(testJWTSecret, "")})

	if resp := postRun(router, `{"input":{}}`, nil); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}

	token := buildTestToken(t, "client-1")
	resp := postRun(router, `{"input":{}}`, map[string]string{"Authorization": "Bearer " + token})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestHealthIsPublic(t *testing.T) {
	router := newTestRouter(&stubRunner{}, stubMetrics{}, Options{Auth: auth.JWTMiddleware(testJWTSecret, "")})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	cases := []struct {
		name    string
		metrics stubMetrics
		status  int
	}{
		{"disabled", stubMetrics{err: usecase.ErrMetricsDisabled}, http.StatusServiceUnavailable},
		{"failure", stubMetrics{err: errors.New("db down")}, http.StatusInternalServerError},
		{"ok", stubMetrics{summary: &usecase.MetricsSummary{TotalRequests: 3}}, http.StatusOK},
	}
	for _, tc := range cases {
		router := newTestRouter(&stubRunner{}, tc.metrics, Options{})
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.status, resp.Code)
		}
	}
}

func TestResponsesAreCompressed(t *testing.T) {
	runner := &stubRunner{resp: usecase.SuccessResponse(strings.Repeat("QUJD", 512))}
	router := newTestRouter(runner, stubMetrics{}, Options{})

	resp := postRun(router, `{"input":{}}`, map[string]string{"Accept-Encoding": "gzip"})
	if resp.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected gzip encoding, got %q", resp.Header().Get("Content-Encoding"))
	}
	zr, err := gzip.NewReader(bytes.NewReader(resp.Body.Bytes()))
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	plain, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("gunzip: %v", err)
	}
	if !bytes.Contains(plain, []byte(`"status":"success"`)) {
		t.Fatalf("unexpected body %s", plain)
	}
}

func buildTestToken(t *testing.T, subject string) string {
	t.Helper()

	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}
