package httpclient

import (
	"fmt"
	"runtime"
	"time"

	"github.com/kbukum/httpkit/config"
	"github.com/kbukum/httpkit/resilience"
	"github.com/kbukum/httpkit/security"
	"github.com/kbukum/httpkit/validation"
	"github.com/kbukum/httpkit/version"
)

const (
	defaultConnectTimeout   = 60 * time.Second
	defaultIdleTimeout      = 60 * time.Second
	defaultStaleAfter       = 90 * time.Second
	defaultMaxContentLength = 16 << 20
	defaultPoolSize         = 8
)

// Config configures a Client. It is read once by New; changing it later
// has no effect.
type Config struct {
	// Name labels the client in logs and component output.
	Name string `yaml:"name" mapstructure:"name"`

	// EnableCompression advertises gzip and deflate and decodes them.
	EnableCompression bool `yaml:"enable_compression" mapstructure:"enable_compression"`
	// EnableBrotli also advertises and decodes br. Needs EnableCompression.
	EnableBrotli bool `yaml:"enable_brotli" mapstructure:"enable_brotli"`
	// EnableZstd also advertises and decodes zstd. Needs EnableCompression.
	EnableZstd bool `yaml:"enable_zstd" mapstructure:"enable_zstd"`

	// MaxCachedSizeEachDomain caps idle connections per authority. Zero
	// disables reuse: every request gets a fresh connection.
	MaxCachedSizeEachDomain int `yaml:"max_cached_size_each_domain" mapstructure:"max_cached_size_each_domain" validate:"gte=0"`

	// ConnectTimeout bounds dial, proxy and TLS negotiation. Defaults to 60s.
	ConnectTimeout time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout" validate:"gte=0"`
	// IdleTimeout fails a request whose connection moves no bytes for this
	// long. Defaults to 60s.
	IdleTimeout time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" validate:"gte=0"`
	// RequestTimeout bounds a synchronous Send's wait. Zero waits until the
	// request completes.
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout" validate:"gte=0"`
	// StaleAfter drops cached connections idle longer than this. Defaults to 90s.
	StaleAfter time.Duration `yaml:"stale_after" mapstructure:"stale_after" validate:"gte=0"`
	// PruneInterval closes stale cached connections in the background. Zero
	// prunes only on acquire.
	PruneInterval time.Duration `yaml:"prune_interval" mapstructure:"prune_interval" validate:"gte=0"`

	// MaxContentLength caps response bodies, compressed and decoded. Defaults to 16 MiB.
	MaxContentLength int64 `yaml:"max_content_length" mapstructure:"max_content_length" validate:"gte=0"`
	// IOWorkers bounds concurrently running requests. Defaults to 4 x GOMAXPROCS.
	IOWorkers int `yaml:"io_workers" mapstructure:"io_workers" validate:"gte=0"`

	// UserAgent defaults to httpkit/<version>.
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent"`
	// Headers are sent on every request unless the request sets them.
	Headers map[string]string `yaml:"headers" mapstructure:"headers"`

	// Proxy routes every request through one proxy. WithProxyFactory overrides it.
	Proxy *ProxyConfig `yaml:"proxy" mapstructure:"proxy"`
	// TLS configures the default TLS provider. WithTLSProvider overrides it.
	TLS *security.TLSConfig `yaml:"tls" mapstructure:"tls"`

	// CircuitBreaker gates connection attempts per authority. Nil disables it.
	CircuitBreaker *resilience.CircuitBreakerConfig `yaml:"circuit_breaker" mapstructure:"circuit_breaker"`
	// RateLimiter paces requests client-wide. Nil disables it.
	RateLimiter *resilience.RateLimiterConfig `yaml:"rate_limiter" mapstructure:"rate_limiter"`
}

// DefaultConfig returns a pooled configuration with compression enabled.
func DefaultConfig() Config {
	cfg := Config{
		EnableCompression:       true,
		MaxCachedSizeEachDomain: defaultPoolSize,
	}
	cfg.ApplyDefaults()
	return cfg
}

// SimpleConfig returns a configuration that opens one connection per request.
func SimpleConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxCachedSizeEachDomain = 0
	return cfg
}

// LoadConfig reads the named configuration over DefaultConfig from YAML,
// .env and environment variables, then validates it. With name "payments"
// the environment overrides look like PAYMENTS_IDLE_TIMEOUT=30s.
func LoadConfig(name string, opts ...config.LoaderOption) (Config, error) {
	cfg := DefaultConfig()
	cfg.Name = name
	if err := config.Load(name, &cfg, opts...); err != nil {
		return Config{}, &Error{Code: ErrCodeValidation, Message: err.Error(), Err: err}
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyDefaults fills in zero-value fields. MaxCachedSizeEachDomain is left
// alone because zero is meaningful.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "httpclient"
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = defaultIdleTimeout
	}
	if c.StaleAfter == 0 {
		c.StaleAfter = defaultStaleAfter
	}
	if c.MaxContentLength == 0 {
		c.MaxContentLength = defaultMaxContentLength
	}
	if c.IOWorkers == 0 {
		c.IOWorkers = 4 * runtime.GOMAXPROCS(0)
	}
	if c.UserAgent == "" {
		c.UserAgent = version.UserAgent()
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return &Error{Code: ErrCodeValidation, Message: err.Error(), Err: err}
	}
	if (c.EnableBrotli || c.EnableZstd) && !c.EnableCompression {
		return newErrorf(ErrCodeValidation, "enable_brotli and enable_zstd require enable_compression")
	}
	if c.Proxy != nil {
		if err := c.Proxy.Validate(); err != nil {
			return err
		}
	}
	if err := c.TLS.Validate(); err != nil {
		return &Error{Code: ErrCodeValidation, Message: err.Error(), Err: err}
	}
	return nil
}

// Simple reports whether the configuration disables connection reuse.
func (c *Config) Simple() bool { return c.MaxCachedSizeEachDomain == 0 }

func (c *Config) summary() string {
	s := fmt.Sprintf("pool=%d/authority idle=%s", c.MaxCachedSizeEachDomain, c.IdleTimeout)
	if c.Simple() {
		s = fmt.Sprintf("simple idle=%s", c.IdleTimeout)
	}
	if c.Proxy != nil {
		s += " proxy=" + c.Proxy.String()
	}
	return s
}
