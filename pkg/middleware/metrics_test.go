package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// The instruments are process-global, so one registry serves every test
// in this package. The first Prometheus call binds it.
var testRegistry = prometheus.NewRegistry()

func testHandler() http.Handler {
	mw := Prometheus(WithRegistry(testRegistry))
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/boom" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
}

func gatherCount(t *testing.T, name string) int {
	t.Helper()
	families, err := testRegistry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return len(mf.GetMetric())
		}
	}
	return 0
}

func TestPrometheusMiddlewareRecordsRequests(t *testing.T) {
	handler := testHandler()

	for _, path := range []string{"/healthz", "/healthz", "/boom"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	if n := gatherCount(t, "algoviz_http_requests_total"); n < 2 {
		t.Errorf("request counter has %d series, want at least 2", n)
	}
	if n := gatherCount(t, "algoviz_http_request_duration_seconds"); n < 1 {
		t.Errorf("duration histogram has %d series, want at least 1", n)
	}
}

func TestStatusRecorderCapturesCode(t *testing.T) {
	handler := testHandler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestRecordHooks(t *testing.T) {
	// Initialize the instruments through the middleware path.
	testHandler()

	RecordEvent("cursor-move", nil, time.Millisecond)
	RecordEvent("cursor-move", errors.New("boom"), time.Millisecond)
	RecordBroadcast(3)
	RecordEvictions(2)
	SetActiveSessions(7)
	RecordConnectionOpen()
	RecordConnectionClose()

	if n := gatherCount(t, "algoviz_events_total"); n != 2 {
		t.Errorf("events counter has %d series, want 2 (success and error)", n)
	}
	if n := gatherCount(t, "algoviz_broadcasts_total"); n != 1 {
		t.Errorf("broadcast counter has %d series, want 1", n)
	}
	if n := gatherCount(t, "algoviz_session_evictions_total"); n != 1 {
		t.Errorf("eviction counter has %d series, want 1", n)
	}
}

func TestRecordHooksNilSafe(t *testing.T) {
	// Hooks must be callable before any middleware initialized the
	// instruments. The singleton may already exist from other tests, so
	// this only asserts there is no panic.
	RecordEvent("join-session", nil, 0)
	RecordBroadcast(1)
	RecordEvictions(0)
	SetActiveSessions(0)
}
