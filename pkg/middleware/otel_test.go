package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestOpenTelemetryPassesThrough(t *testing.T) {
	mw := OpenTelemetry()
	called := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))

	if !called {
		t.Fatal("handler was not invoked")
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}

func TestOpenTelemetryFilter(t *testing.T) {
	mw := OpenTelemetry(WithRequestFilter(func(r *http.Request) bool {
		return r.URL.Path != "/metrics"
	}))
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Filtered and unfiltered paths both reach the handler.
	for _, path := range []string{"/metrics", "/api/stats"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("path %s: status = %d, want 200", path, rec.Code)
		}
	}
}

func TestOpenTelemetryCustomAttributes(t *testing.T) {
	extracted := false
	mw := OpenTelemetry(
		WithTracerName("algoviz-test"),
		WithAttributeExtractor(func(r *http.Request) []attribute.KeyValue {
			extracted = true
			return []attribute.KeyValue{attribute.String("test.path", r.URL.Path)}
		}),
	)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))

	if !extracted {
		t.Error("attribute extractor was not called")
	}
}
