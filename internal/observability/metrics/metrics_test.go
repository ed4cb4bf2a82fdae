package metrics

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestObserveRequestAccumulates(t *testing.T) {
	recorder := New()

	recorder.ObserveRequest("get", "/", 200, 50*time.Millisecond)
	recorder.ObserveRequest("GET", "", 200, 25*time.Millisecond)
	recorder.ObserveRequest("POST", "/hello/", 429, 10*time.Millisecond)

	var buf bytes.Buffer
	recorder.Write(&buf)
	output := buf.String()

	if !strings.Contains(output, `rategate_http_requests_total{method="GET",path="/",status="200"} 2`) {
		t.Fatalf("expected merged GET / count, got:\n%s", output)
	}
	if !strings.Contains(output, `rategate_http_requests_total{method="POST",path="/hello",status="429"} 1`) {
		t.Fatalf("expected trailing slash trimmed, got:\n%s", output)
	}
	if !strings.Contains(output, `rategate_http_request_duration_seconds_count{method="GET",path="/",status="200"} 2`) {
		t.Fatalf("expected duration count, got:\n%s", output)
	}
}

func TestObserveLimiterDecision(t *testing.T) {
	recorder := New()

	recorder.ObserveLimiterDecision("ip", OutcomeAllowed)
	recorder.ObserveLimiterDecision("IP", OutcomeAllowed)
	recorder.ObserveLimiterDecision("url", OutcomeThrottled)
	recorder.ObserveLimiterDecision("", OutcomeError)

	if got := recorder.LimiterDecisionCount("ip", OutcomeAllowed); got != 2 {
		t.Fatalf("expected 2 allowed ip decisions, got %d", got)
	}
	if got := recorder.LimiterDecisionCount("url", OutcomeThrottled); got != 1 {
		t.Fatalf("expected 1 throttled url decision, got %d", got)
	}
	if got := recorder.LimiterDecisionCount("unknown", OutcomeError); got != 1 {
		t.Fatalf("expected empty strategy to normalize to unknown, got %d", got)
	}

	var buf bytes.Buffer
	recorder.Write(&buf)
	if !strings.Contains(buf.String(), `rategate_limiter_decisions_total{strategy="ip",outcome="allowed"} 2`) {
		t.Fatalf("expected decision counter in output, got:\n%s", buf.String())
	}
}

func TestProxyErrorCounter(t *testing.T) {
	recorder := New()
	recorder.ObserveProxyError()
	recorder.ObserveProxyError()

	if got := recorder.ProxyErrorCount(); got != 2 {
		t.Fatalf("expected 2 proxy errors, got %d", got)
	}

	var buf bytes.Buffer
	recorder.Write(&buf)
	if !strings.Contains(buf.String(), "rategate_proxy_errors_total 2") {
		t.Fatalf("expected proxy error counter in output, got:\n%s", buf.String())
	}
}

func TestHandlerWritesPrometheusText(t *testing.T) {
	recorder := New()
	recorder.ObserveRequest("GET", "/hello", 200, time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if contentType := rec.Header().Get("Content-Type"); !strings.HasPrefix(contentType, "text/plain") {
		t.Fatalf("unexpected content type %q", contentType)
	}
	if !strings.Contains(rec.Body.String(), "rategate_http_requests_total") {
		t.Fatalf("expected request counter in exposition, got:\n%s", rec.Body.String())
	}
}

func TestRecorderConcurrentWriters(t *testing.T) {
	recorder := New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				recorder.ObserveRequest("GET", "/", 200, time.Microsecond)
				recorder.ObserveLimiterDecision("ip", OutcomeAllowed)
			}
		}()
	}
	wg.Wait()

	if got := recorder.LimiterDecisionCount("ip", OutcomeAllowed); got != 800 {
		t.Fatalf("expected 800 decisions, got %d", got)
	}
}

func TestHTTPMiddlewareRecordsStatus(t *testing.T) {
	recorder := New()
	handler := HTTPMiddleware(recorder, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/brew", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var buf bytes.Buffer
	recorder.Write(&buf)
	if !strings.Contains(buf.String(), `rategate_http_requests_total{method="GET",path="/brew",status="418"} 1`) {
		t.Fatalf("expected middleware observation, got:\n%s", buf.String())
	}
}

func TestResetClearsCounters(t *testing.T) {
	recorder := New()
	recorder.ObserveRequest("GET", "/", 200, time.Millisecond)
	recorder.ObserveProxyError()
	recorder.Reset()

	if got := recorder.ProxyErrorCount(); got != 0 {
		t.Fatalf("expected reset proxy errors, got %d", got)
	}
	var buf bytes.Buffer
	recorder.Write(&buf)
	if strings.Contains(buf.String(), `status="200"`) {
		t.Fatalf("expected request counters cleared, got:\n%s", buf.String())
	}
}
