package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeSettings(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Settings.toml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	return path
}

const validSettings = `
[api_gateway]
target_url        = "http://127.0.0.1:5000"
proxy_server_addr = "0.0.0.0:8080"
admin_addr        = "127.0.0.1:8081"

[redis]
addr    = "127.0.0.1:6379"
timeout = "2s"

[[rate_limiter]]
strategy = "ip"
bucket   = { tokens = 100, refill_every = "60s" }

[[rate_limiter]]
strategy = "url"
bucket   = { tokens = 50, refill_every = "30s" }
[rate_limiter.buckets_per_value]
"/hello" = { tokens = 5, refill_every = "10s" }
`

func TestLoadValidSettings(t *testing.T) {
	settings, err := Load(writeSettings(t, validSettings))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if settings.APIGateway.ProxyServerAddr != "0.0.0.0:8080" {
		t.Fatalf("unexpected proxy addr %q", settings.APIGateway.ProxyServerAddr)
	}
	if settings.APIGateway.AdminAddr != "127.0.0.1:8081" {
		t.Fatalf("unexpected admin addr %q", settings.APIGateway.AdminAddr)
	}
	if !settings.Redis.Enabled() {
		t.Fatal("expected redis to be enabled")
	}
	if settings.Redis.Timeout.Std() != 2*time.Second {
		t.Fatalf("unexpected redis timeout %s", settings.Redis.Timeout.Std())
	}

	target, err := settings.Target()
	if err != nil {
		t.Fatalf("Target: %v", err)
	}
	if target.Host != "127.0.0.1:5000" {
		t.Fatalf("unexpected target host %q", target.Host)
	}

	if len(settings.RateLimiters) != 2 {
		t.Fatalf("expected 2 limiters, got %d", len(settings.RateLimiters))
	}
	first := settings.RateLimiters[0]
	if first.Strategy != StrategyIP || first.Bucket == nil || first.Bucket.Tokens != 100 {
		t.Fatalf("unexpected first limiter %+v", first)
	}
	second := settings.RateLimiters[1]
	override, ok := second.BucketsPerValue["/hello"]
	if !ok || override.Tokens != 5 || override.RefillEvery.Std() != 10*time.Second {
		t.Fatalf("unexpected override %+v", second.BucketsPerValue)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateRejectsMalformedSettings(t *testing.T) {
	cases := []struct {
		name     string
		contents string
		fragment string
	}{
		{
			name: "missing proxy addr",
			contents: `
[api_gateway]
target_url = "http://127.0.0.1:5000"
`,
			fragment: "proxy_server_addr",
		},
		{
			name: "missing target url",
			contents: `
[api_gateway]
proxy_server_addr = "0.0.0.0:8080"
`,
			fragment: "target_url",
		},
		{
			name: "bad target scheme",
			contents: `
[api_gateway]
target_url        = "ftp://127.0.0.1:5000"
proxy_server_addr = "0.0.0.0:8080"
`,
			fragment: "unsupported scheme",
		},
		{
			name: "unknown strategy",
			contents: `
[api_gateway]
target_url        = "http://127.0.0.1:5000"
proxy_server_addr = "0.0.0.0:8080"

[[rate_limiter]]
strategy = "user"
bucket   = { tokens = 1, refill_every = "1s" }
`,
			fragment: "unknown strategy",
		},
		{
			name: "limiter without buckets",
			contents: `
[api_gateway]
target_url        = "http://127.0.0.1:5000"
proxy_server_addr = "0.0.0.0:8080"

[[rate_limiter]]
strategy = "ip"
`,
			fragment: "bucket or buckets_per_value",
		},
		{
			name: "non-positive tokens",
			contents: `
[api_gateway]
target_url        = "http://127.0.0.1:5000"
proxy_server_addr = "0.0.0.0:8080"

[[rate_limiter]]
strategy = "ip"
bucket   = { tokens = 0, refill_every = "1s" }
`,
			fragment: "tokens must be positive",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeSettings(t, tc.contents))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.fragment) {
				t.Fatalf("expected error mentioning %q, got %v", tc.fragment, err)
			}
		})
	}
}

func TestDurationUnmarshalText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte(" 90s ")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if d.Std() != 90*time.Second {
		t.Fatalf("expected 90s, got %s", d.Std())
	}
	if err := d.UnmarshalText([]byte("not-a-duration")); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}
