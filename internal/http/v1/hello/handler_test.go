package hello

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	applog "github.com/janisto/hello-bench/internal/platform/logging"
	appmiddleware "github.com/janisto/hello-bench/internal/platform/middleware"
	"github.com/janisto/hello-bench/internal/platform/respond"
)

func newTestRouter() (chi.Router, huma.API) {
	router := chi.NewRouter()
	router.NotFound(respond.NotFoundHandler())
	router.MethodNotAllowed(respond.MethodNotAllowedHandler())
	router.Use(
		appmiddleware.RequestID(),
		chimiddleware.RealIP,
		applog.RequestLogger(),
		respond.Recoverer(),
	)
	var api huma.API
	router.Route("/api", func(r chi.Router) {
		cfg := huma.DefaultConfig("HelloTest", "test")
		cfg.Servers = []*huma.Server{{URL: "/api"}}
		api = humachi.New(r, cfg)
		Register(api)
	})
	return router, api
}

func get(t *testing.T, router http.Handler, reqID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/hello", nil)
	req.Header.Set(chimiddleware.RequestIDHeader, reqID)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestGetReturnsPlaintextGreeting(t *testing.T) {
	router, _ := newTestRouter()

	resp := get(t, router, "hello-get")

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "text/plain" {
		t.Errorf("expected text/plain, got %s", ct)
	}
	if got := resp.Body.String(); got != "Hello Java - Quarkus" {
		t.Errorf("expected 'Hello Java - Quarkus', got %q", got)
	}
}

func TestGetIgnoresAcceptAndQuery(t *testing.T) {
	router, _ := newTestRouter()

	for _, accept := range []string{"", "*/*", "application/json", "application/cbor", "text/html"} {
		req := httptest.NewRequest(http.MethodGet, "/api/hello?name=World&debug=1", nil)
		if accept != "" {
			req.Header.Set("Accept", accept)
		}
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		if resp.Code != http.StatusOK {
			t.Fatalf("Accept %q: expected 200, got %d", accept, resp.Code)
		}
		if ct := resp.Header().Get("Content-Type"); ct != ContentType {
			t.Fatalf("Accept %q: expected %s, got %s", accept, ContentType, ct)
		}
		if got := resp.Body.String(); got != Message {
			t.Fatalf("Accept %q: unexpected body %q", accept, got)
		}
	}
}

func TestGetIsIdempotent(t *testing.T) {
	router, _ := newTestRouter()

	first := get(t, router, "hello-idem-0")
	for i := range 25 {
		resp := get(t, router, "hello-idem")
		if resp.Code != first.Code || resp.Body.String() != first.Body.String() {
			t.Fatalf("call %d differed: %d %q vs %d %q", i, resp.Code, resp.Body.String(), first.Code, first.Body.String())
		}
	}
	if string(body) != Message {
		t.Fatalf("shared body was modified: %q", body)
	}
}

func TestGetConcurrentCallersSeeSameResponse(t *testing.T) {
	router, _ := newTestRouter()

	const callers = 64
	var wg sync.WaitGroup
	errs := make(chan string, callers)
	for range callers {
		wg.Go(func() {
			req := httptest.NewRequest(http.MethodGet, "/api/hello", nil)
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)
			if resp.Code != http.StatusOK || resp.Body.String() != Message {
				errs <- resp.Body.String()
			}
		})
	}
	wg.Wait()
	close(errs)

	for bad := range errs {
		t.Fatalf("unexpected concurrent response body %q", bad)
	}
}

func TestPostIsMethodNotAllowed(t *testing.T) {
	router, _ := newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/hello", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.Code)
	}
	if allow := resp.Header().Get("Allow"); allow != http.MethodGet {
		t.Fatalf("expected Allow: GET, got %q", allow)
	}
	if ct := resp.Header().Get("Content-Type"); ct != respond.ContentTypeProblemJSON {
		t.Fatalf("expected problem+json, got %s", ct)
	}
}

func TestUnknownPathIsNotFound(t *testing.T) {
	router, _ := newTestRouter()

	for _, path := range []string{"/api/hellos", "/api/Hello", "/hello"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		if resp.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, resp.Code)
		}
	}
}

func TestOpenAPIDocumentsPlaintext(t *testing.T) {
	_, api := newTestRouter()

	op := api.OpenAPI().Paths["/hello"].Get
	if op == nil {
		t.Fatal("expected GET /hello operation in OpenAPI")
	}
	if op.OperationID != "get-hello" {
		t.Fatalf("unexpected operation id %q", op.OperationID)
	}
	resp := op.Responses["200"]
	if resp == nil || resp.Content[ContentType] == nil {
		t.Fatalf("expected 200 response with %s content, got %+v", ContentType, resp)
	}
	if resp.Content[ContentType].Schema.Type != huma.TypeString {
		t.Fatalf("expected string schema, got %q", resp.Content[ContentType].Schema.Type)
	}
}

func TestGetLogsOperation(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	ctx := applog.WithLogger(context.Background(), zap.New(core))

	out, err := getHandler(ctx, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out.Body) != Message {
		t.Fatalf("unexpected body %q", out.Body)
	}

	entries := recorded.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["operation"] != "get-hello" {
		t.Fatalf("expected operation field get-hello, got %v", fields)
	}
	if _, ok := fields["path"]; ok {
		t.Fatalf("expected no path field, got %v", fields)
	}
}
