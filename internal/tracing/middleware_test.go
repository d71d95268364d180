package tracing

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/codes"
)

func TestHTTPMiddleware_UsesRoutePattern(t *testing.T) {
	exporter := setupTestTracer(t)

	r := chi.NewRouter()
	r.Use(HTTPMiddleware)
	r.Get("/reports/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/reports/abc", nil))

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans: got %d, want 1", len(spans))
	}
	if spans[0].Name != "GET /reports/{id}" {
		t.Errorf("span name: got %q", spans[0].Name)
	}
	if spans[0].Status.Code == codes.Error {
		t.Error("404 should not mark the span as an error")
	}
}

func TestHTTPMiddleware_ServerErrorMarksSpan(t *testing.T) {
	exporter := setupTestTracer(t)

	handler := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/summarize", nil))

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans: got %d, want 1", len(spans))
	}
	if spans[0].Name != "POST /summarize" {
		t.Errorf("span name: got %q", spans[0].Name)
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("status: got %v, want Error", spans[0].Status.Code)
	}
}
