package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

type decisionLabel struct {
	strategy string
	outcome  string
}

// Limiter decision outcomes recorded by the gateway.
const (
	OutcomeAllowed   = "allowed"
	OutcomeThrottled = "throttled"
	OutcomeSkipped   = "skipped"
	OutcomeError     = "error"
)

// Recorder aggregates in-memory counters for HTTP requests, rate limiter
// decisions, and proxy failures. Writers are coordinated via a RWMutex so the
// recorder can be shared across middleware and the limiter.
type Recorder struct {
	mu              sync.RWMutex
	requestCount    map[requestLabel]uint64
	requestDuration map[requestLabel]time.Duration
	decisions       map[decisionLabel]uint64
	proxyErrors     uint64
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps so callers
// can immediately record metrics without additional setup.
func New() *Recorder {
	return &Recorder{
		requestCount:    make(map[requestLabel]uint64),
		requestDuration: make(map[requestLabel]time.Duration),
		decisions:       make(map[decisionLabel]uint64),
	}
}

// Default returns the singleton Recorder instance shared across helper
// functions for packages that do not require custom instrumentation pipelines.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest normalizes the request label set and accumulates totals for
// request count and cumulative duration by HTTP method, path, and status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// ObserveLimiterDecision records the outcome of a single limiter check keyed
// by the limiter strategy ("ip", "url", "header").
func (r *Recorder) ObserveLimiterDecision(strategy, outcome string) {
	label := decisionLabel{
		strategy: normalizeName(strategy),
		outcome:  normalizeName(outcome),
	}
	r.mu.Lock()
	r.decisions[label]++
	r.mu.Unlock()
}

// ObserveProxyError counts a failed upstream round trip.
func (r *Recorder) ObserveProxyError() {
	r.mu.Lock()
	r.proxyErrors++
	r.mu.Unlock()
}

// LimiterDecisionCount returns the recorded count for a strategy/outcome pair.
func (r *Recorder) LimiterDecisionCount(strategy, outcome string) uint64 {
	label := decisionLabel{strategy: normalizeName(strategy), outcome: normalizeName(outcome)}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.decisions[label]
}

// ProxyErrorCount returns the number of proxy failures observed so far.
func (r *Recorder) ProxyErrorCount() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.proxyErrors
}

// Reset clears all recorded values. Intended for tests.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.decisions = make(map[decisionLabel]uint64)
	r.proxyErrors = 0
	r.mu.Unlock()
}

// Handler exposes the Recorder as an http.Handler that writes Prometheus text
// exposition data with the appropriate content type.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the Recorder's metrics in Prometheus text format, sorting
// label sets to provide stable output for scrapes and tests.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()
	decisionLabels := r.sortedDecisionLabels()

	fmt.Fprintln(w, "# HELP rategate_http_requests_total Total number of HTTP requests processed by the gateway")
	fmt.Fprintln(w, "# TYPE rategate_http_requests_total counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "rategate_http_requests_total{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP rategate_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE rategate_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		duration := r.requestDuration[label].Seconds()
		fmt.Fprintf(w, "rategate_http_request_duration_seconds_sum{method=\"%s\",path=\"%s\",status=\"%s\"} %f\n", label.method, label.path, label.status, duration)
	}

	fmt.Fprintln(w, "# HELP rategate_http_request_duration_seconds_count Total number of observations for request durations")
	fmt.Fprintln(w, "# TYPE rategate_http_request_duration_seconds_count counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "rategate_http_request_duration_seconds_count{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP rategate_limiter_decisions_total Rate limiter check outcomes by strategy")
	fmt.Fprintln(w, "# TYPE rategate_limiter_decisions_total counter")
	for _, label := range decisionLabels {
		count := r.decisions[label]
		fmt.Fprintf(w, "rategate_limiter_decisions_total{strategy=\"%s\",outcome=\"%s\"} %d\n", label.strategy, label.outcome, count)
	}

	fmt.Fprintln(w, "# HELP rategate_proxy_errors_total Failed upstream round trips")
	fmt.Fprintln(w, "# TYPE rategate_proxy_errors_total counter")
	fmt.Fprintf(w, "rategate_proxy_errors_total %d\n", r.proxyErrors)
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func (r *Recorder) sortedDecisionLabels() []decisionLabel {
	labels := make([]decisionLabel, 0, len(r.decisions))
	for label := range r.decisions {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].strategy != labels[j].strategy {
			return labels[i].strategy < labels[j].strategy
		}
		return labels[i].outcome < labels[j].outcome
	})
	return labels
}

func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if strings.HasSuffix(path, "/") && len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// ObserveRequest is a helper on the default recorder.
func ObserveRequest(method, path string, status int, duration time.Duration) {
	defaultRecorder.ObserveRequest(method, path, status, duration)
}

// Handler exposes the default recorder as an HTTP handler.
func Handler() http.Handler {
	return defaultRecorder.Handler()
}
