// Package config loads and validates the gateway settings file.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultPath is the settings file consulted when no override is provided.
const DefaultPath = "Settings.toml"

// Duration wraps time.Duration so settings can spell windows as "60s" or "2m".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts the wrapper back to a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Settings is the root of the gateway configuration file.
type Settings struct {
	APIGateway   GatewaySettings   `toml:"api_gateway"`
	Redis        RedisSettings     `toml:"redis"`
	RateLimiters []LimiterSettings `toml:"rate_limiter"`
}

// GatewaySettings locates the upstream target and the listeners.
type GatewaySettings struct {
	TargetURL       string `toml:"target_url"`
	ProxyServerAddr string `toml:"proxy_server_addr"`
	AdminAddr       string `toml:"admin_addr"`
}

// RedisSettings configures the shared counter store. An empty Addr selects the
// in-process memory store instead.
type RedisSettings struct {
	Addr     string   `toml:"addr"`
	Username string   `toml:"username"`
	Password string   `toml:"password"`
	PoolSize int      `toml:"pool_size"`
	Timeout  Duration `toml:"timeout"`
}

// Enabled reports whether a Redis counter store is configured.
func (r RedisSettings) Enabled() bool {
	return strings.TrimSpace(r.Addr) != ""
}

// Bucket is a fixed window: Tokens requests are admitted per RefillEvery.
type Bucket struct {
	Tokens      int      `toml:"tokens"`
	RefillEvery Duration `toml:"refill_every"`
}

func (b Bucket) validate() error {
	if b.Tokens <= 0 {
		return fmt.Errorf("tokens must be positive, got %d", b.Tokens)
	}
	if b.RefillEvery <= 0 {
		return fmt.Errorf("refill_every must be positive, got %s", b.RefillEvery.Std())
	}
	return nil
}

// Limiter strategies supported by the gateway.
const (
	StrategyIP     = "ip"
	StrategyURL    = "url"
	StrategyHeader = "header"
)

// LimiterSettings describes one limiter: the value each request is keyed by
// and the buckets applied to it. Bucket is the fallback for values without an
// entry in BucketsPerValue.
type LimiterSettings struct {
	Strategy        string            `toml:"strategy"`
	Bucket          *Bucket           `toml:"bucket"`
	BucketsPerValue map[string]Bucket `toml:"buckets_per_value"`
}

// Load reads and validates a settings file.
func Load(path string) (*Settings, error) {
	var settings Settings
	if _, err := toml.DecodeFile(path, &settings); err != nil {
		return nil, fmt.Errorf("decode settings %s: %w", path, err)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("settings %s: %w", path, err)
	}
	return &settings, nil
}

// Validate checks the settings for the malformed shapes the gateway cannot
// start with.
func (s *Settings) Validate() error {
	if strings.TrimSpace(s.APIGateway.ProxyServerAddr) == "" {
		return fmt.Errorf("api_gateway.proxy_server_addr is required")
	}
	if _, err := s.Target(); err != nil {
		return err
	}
	for i, limiter := range s.RateLimiters {
		if err := limiter.validate(); err != nil {
			return fmt.Errorf("rate_limiter[%d]: %w", i, err)
		}
	}
	return nil
}

func (l LimiterSettings) validate() error {
	switch strings.ToLower(strings.TrimSpace(l.Strategy)) {
	case StrategyIP, StrategyURL, StrategyHeader:
	case "":
		return fmt.Errorf("strategy is required")
	default:
		return fmt.Errorf("unknown strategy %q", l.Strategy)
	}
	if l.Bucket == nil && len(l.BucketsPerValue) == 0 {
		return fmt.Errorf("a bucket or buckets_per_value is required")
	}
	if l.Bucket != nil {
		if err := l.Bucket.validate(); err != nil {
			return fmt.Errorf("bucket: %w", err)
		}
	}
	for value, bucket := range l.BucketsPerValue {
		if err := bucket.validate(); err != nil {
			return fmt.Errorf("buckets_per_value[%q]: %w", value, err)
		}
	}
	return nil
}

// Target parses the upstream URL the proxy forwards to.
func (s *Settings) Target() (*url.URL, error) {
	raw := strings.TrimSpace(s.APIGateway.TargetURL)
	if raw == "" {
		return nil, fmt.Errorf("api_gateway.target_url is required")
	}
	target, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("api_gateway.target_url: %w", err)
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, fmt.Errorf("api_gateway.target_url: unsupported scheme %q", target.Scheme)
	}
	if target.Host == "" {
		return nil, fmt.Errorf("api_gateway.target_url: host is required")
	}
	return target, nil
}
