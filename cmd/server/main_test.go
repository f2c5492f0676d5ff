package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/janisto/hello-bench/internal/http/health"
	"github.com/janisto/hello-bench/internal/platform/config"
	"github.com/janisto/hello-bench/internal/platform/respond"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:            "0",
		ShutdownTimeout: time.Second,
		LogLevel:        "info",
		MetricsEnabled:  true,
		DocsEnabled:     true,
	}
}

func testServer(cfg *config.Config) http.Handler {
	return newRouter(cfg, prometheus.NewRegistry())
}

func TestHelloEndToEnd(t *testing.T) {
	srv := testServer(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/hello", nil)
	req.Header.Set(chimiddleware.RequestIDHeader, "test-hello-req")
	resp := httptest.NewRecorder()
	srv.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "text/plain" {
		t.Fatalf("expected text/plain content type, got %q", ct)
	}
	if body := resp.Body.String(); body != "Hello Java - Quarkus" {
		t.Fatalf("unexpected body %q", body)
	}
	if got := resp.Header().Get(chimiddleware.RequestIDHeader); got != "test-hello-req" {
		t.Fatalf("expected request id to be echoed, got %q", got)
	}
	if got := resp.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected security headers, got X-Content-Type-Options=%q", got)
	}
}

func TestHealth(t *testing.T) {
	srv := testServer(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Accept", "application/json")
	resp := httptest.NewRecorder()
	srv.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", resp.Code)
	}

	var data health.Data
	if err := json.Unmarshal(resp.Body.Bytes(), &data); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if data.Message != "healthy" {
		t.Fatalf("expected message 'healthy', got %s", data.Message)
	}
}

func TestNotFoundReturnsProblemDetails(t *testing.T) {
	srv := testServer(testConfig())

	for _, path := range []string{"/missing", "/api/missing", "/hello"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp := httptest.NewRecorder()
		srv.ServeHTTP(resp, req)

		if resp.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404 got %d", path, resp.Code)
		}
		if ct := resp.Header().Get("Content-Type"); ct != respond.ContentTypeProblemJSON {
			t.Fatalf("%s: expected problem+json content type, got %q", path, ct)
		}
		var problem huma.ErrorModel
		if err := json.Unmarshal(resp.Body.Bytes(), &problem); err != nil {
			t.Fatalf("%s: failed to unmarshal problem: %v", path, err)
		}
		if problem.Instance != path {
			t.Fatalf("%s: unexpected instance %q", path, problem.Instance)
		}
	}
}

func TestProblemCorrelatesWithRequestID(t *testing.T) {
	srv := testServer(testConfig())
	req := httptest.NewRequest(http.MethodPost, "/api/hello", nil)
	resp := httptest.NewRecorder()
	srv.ServeHTTP(resp, req)

	var problem respond.Problem
	if err := json.Unmarshal(resp.Body.Bytes(), &problem); err != nil {
		t.Fatalf("failed to unmarshal problem: %v", err)
	}
	reqID := resp.Header().Get(chimiddleware.RequestIDHeader)
	if reqID == "" || problem.CorrelationID != reqID {
		t.Fatalf("expected correlationId %q to match request id %q", problem.CorrelationID, reqID)
	}
}

func TestHelloRejectsOtherMethods(t *testing.T) {
	srv := testServer(testConfig())

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodHead} {
		req := httptest.NewRequest(method, "/api/hello", nil)
		resp := httptest.NewRecorder()
		srv.ServeHTTP(resp, req)

		if resp.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s: expected 405 got %d", method, resp.Code)
		}
		if allow := resp.Header().Get("Allow"); allow != http.MethodGet {
			t.Fatalf("%s: expected Allow: GET, got %q", method, allow)
		}
	}
}

func TestMetricsExposeRequestCounts(t *testing.T) {
	srv := testServer(testConfig())

	for range 3 {
		srv.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/hello", nil))
	}

	resp := httptest.NewRecorder()
	srv.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", resp.Code)
	}
	want := `http_requests_total{code="200",method="GET",route="/api/hello"} 3`
	if !strings.Contains(resp.Body.String(), want) {
		t.Fatalf("expected %q in metrics output", want)
	}
}

func TestMetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.MetricsEnabled = false
	srv := testServer(cfg)

	resp := httptest.NewRecorder()
	srv.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with metrics disabled, got %d", resp.Code)
	}
}

func TestThrottleReturnsTooManyRequests(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitRPS = 1
	cfg.RateLimitBurst = 1
	srv := testServer(cfg)

	first := httptest.NewRecorder()
	srv.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/hello", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	srv.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/hello", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestOpenAPIDocument(t *testing.T) {
	srv := testServer(testConfig())

	resp := httptest.NewRecorder()
	srv.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/openapi.json", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 from openapi.json, got %d", resp.Code)
	}
	var doc struct {
		Servers []struct {
			URL string `json:"url"`
		} `json:"servers"`
		Paths map[string]any `json:"paths"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &doc); err != nil {
		t.Fatalf("failed to unmarshal openapi: %v", err)
	}
	if len(doc.Servers) != 1 || doc.Servers[0].URL != "/api" {
		t.Fatalf("expected server url /api, got %+v", doc.Servers)
	}
	if _, ok := doc.Paths["/hello"]; !ok {
		t.Fatalf("expected /hello path, got %v", doc.Paths)
	}
}

func TestDocsSkipSecurityHeaders(t *testing.T) {
	srv := testServer(testConfig())

	resp := httptest.NewRecorder()
	srv.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/docs", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 from docs, got %d", resp.Code)
	}
	if got := resp.Header().Get("Content-Security-Policy"); got != "" {
		t.Fatalf("expected docs page without CSP, got %q", got)
	}
}

func TestDocsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.DocsEnabled = false
	srv := testServer(cfg)

	for _, path := range []string{"/api/docs", "/api/openapi.json", "/api/openapi.yaml"} {
		resp := httptest.NewRecorder()
		srv.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404 with docs disabled, got %d", path, resp.Code)
		}
	}

	resp := httptest.NewRecorder()
	srv.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/hello", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected hello to stay available, got %d", resp.Code)
	}
}

func TestConcurrentClientsOverHTTP(t *testing.T) {
	ts := httptest.NewServer(testServer(testConfig()))
	defer ts.Close()

	const clients = 32
	var wg sync.WaitGroup
	errs := make(chan error, clients)
	for range clients {
		wg.Go(func() {
			resp, err := ts.Client().Get(ts.URL + "/api/hello")
			if err != nil {
				errs <- err
				return
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				errs <- err
				return
			}
			if resp.StatusCode != http.StatusOK || string(body) != "Hello Java - Quarkus" {
				errs <- errors.New("unexpected response: " + resp.Status + " " + string(body))
			}
		})
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatal(err)
	}
}

func TestServeShutsDownGracefully(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: testServer(testConfig()), ReadHeaderTimeout: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, srv, ln, time.Second)
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/api/hello")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancellation")
	}
}

func TestServeReturnsListenerError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	_ = ln.Close()

	srv := &http.Server{Handler: http.NotFoundHandler(), ReadHeaderTimeout: time.Second}
	if err := serve(context.Background(), srv, ln, time.Second); err == nil {
		t.Fatal("expected error from closed listener")
	}
}

func TestRunFailsOnInvalidConfig(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	if code := run(); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
}

func TestRunFailsOnInvalidLogLevel(t *testing.T) {
	t.Setenv("PORT", "0")
	t.Setenv("LOG_LEVEL", "loud")
	if code := run(); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
}
