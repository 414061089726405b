package security

import (
	"crypto/tls"
	"sync"
)

// TLSProvider supplies the TLS context used for a handshake. A provider
// may return one shared config or mint a new one on every call; callers
// must not mutate the returned value.
type TLSProvider interface {
	TLSConfig() (*tls.Config, error)
}

// ProviderFunc adapts a function to TLSProvider.
type ProviderFunc func() (*tls.Config, error)

// TLSConfig calls f.
func (f ProviderFunc) TLSConfig() (*tls.Config, error) { return f() }

// SystemTrust verifies peers against the operating system trust store.
func SystemTrust() TLSProvider {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	return Static(cfg)
}

// Insecure accepts any server certificate.
func Insecure() TLSProvider {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: true, //nolint:gosec // opt-in
	}
	return Static(cfg)
}

// Static serves cfg to every caller.
func Static(cfg *tls.Config) TLSProvider {
	return ProviderFunc(func() (*tls.Config, error) { return cfg, nil })
}

// FromConfig builds c on first use and serves the result afterwards.
// A build failure is returned on every call.
func FromConfig(c *TLSConfig) TLSProvider {
	var (
		once  sync.Once
		built *tls.Config
		err   error
	)
	return ProviderFunc(func() (*tls.Config, error) {
		once.Do(func() {
			built, err = c.Build()
			if built == nil && err == nil {
				built = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		})
		return built, err
	})
}
