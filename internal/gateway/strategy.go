package gateway

import (
	"fmt"
	"hash/fnv"
	"net"
	"net/http"
	"sort"
	"strings"

	"rategate/internal/config"
)

// limitKey is one resolved limiter check: the counter key to consume from and
// the bucket that bounds it.
type limitKey struct {
	counterKey string
	bucket     config.Bucket
}

// resolveKey maps a request onto a counter for the given limiter. The second
// return is false when the check does not apply, e.g. a header limiter whose
// headers are absent or a value with no bucket configured.
func resolveKey(limiter config.LimiterSettings, r *http.Request, clientIP string) (limitKey, bool) {
	switch strings.ToLower(strings.TrimSpace(limiter.Strategy)) {
	case config.StrategyIP:
		return resolveValueKey(limiter, config.StrategyIP, clientIP)
	case config.StrategyURL:
		return resolveValueKey(limiter, config.StrategyURL, r.URL.Path)
	case config.StrategyHeader:
		return resolveHeaderKey(limiter, r)
	default:
		return limitKey{}, false
	}
}

func resolveValueKey(limiter config.LimiterSettings, strategy, value string) (limitKey, bool) {
	if value == "" {
		return limitKey{}, false
	}
	bucket, ok := bucketFor(limiter, value)
	if !ok {
		return limitKey{}, false
	}
	return limitKey{counterKey: counterKey(strategy, value), bucket: bucket}, true
}

// resolveHeaderKey treats the per-value keys as header names: the first
// configured header present on the request selects both the counted value and
// its bucket. Without per-value matches the Authorization header is counted
// against the global bucket.
func resolveHeaderKey(limiter config.LimiterSettings, r *http.Request) (limitKey, bool) {
	names := make([]string, 0, len(limiter.BucketsPerValue))
	for name := range limiter.BucketsPerValue {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if value := r.Header.Get(name); value != "" {
			return limitKey{
				counterKey: counterKey(config.StrategyHeader, value),
				bucket:     limiter.BucketsPerValue[name],
			}, true
		}
	}

	if limiter.Bucket != nil {
		if value := r.Header.Get("Authorization"); value != "" {
			return limitKey{
				counterKey: counterKey(config.StrategyHeader, value),
				bucket:     *limiter.Bucket,
			}, true
		}
	}

	return limitKey{}, false
}

func bucketFor(limiter config.LimiterSettings, value string) (config.Bucket, bool) {
	if bucket, ok := limiter.BucketsPerValue[value]; ok {
		return bucket, true
	}
	if limiter.Bucket != nil {
		return *limiter.Bucket, true
	}
	return config.Bucket{}, false
}

func counterKey(strategy, value string) string {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(value))
	return fmt.Sprintf("rategate:%s:%d", strategy, hasher.Sum64())
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return strings.TrimSpace(xrip)
	}
	return clientIP(r.RemoteAddr)
}

func clientIP(remoteAddr string) string {
	if remoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
