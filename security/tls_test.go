package security_test

import (
	"crypto/tls"
	"strings"
	"testing"

	"github.com/kbukum/httpkit/security"
	"github.com/kbukum/httpkit/security/tlstest"
)

func TestTLSConfig_Build_Nil(t *testing.T) {
	var cfg *security.TLSConfig
	result, err := cfg.Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Fatal("expected nil for nil config")
	}
}

func TestTLSConfig_Build_ZeroValueUsesSystemRoots(t *testing.T) {
	result, err := (&security.TLSConfig{}).Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.RootCAs != nil {
		t.Error("expected system roots (nil RootCAs)")
	}
	if result.MinVersion != tls.VersionTLS12 {
		t.Errorf("expected MinVersion=TLS12, got %d", result.MinVersion)
	}
}

func TestTLSConfig_Build(t *testing.T) {
	certs := tlstest.GenerateTLSCerts(t)

	tests := []struct {
		name    string
		cfg     security.TLSConfig
		wantErr string
		check   func(t *testing.T, c *tls.Config)
	}{
		{
			name: "skip verify",
			cfg:  security.TLSConfig{SkipVerify: true, ServerName: "example.com"},
			check: func(t *testing.T, c *tls.Config) {
				if !c.InsecureSkipVerify || c.ServerName != "example.com" {
					t.Errorf("unexpected config: skip=%v sni=%q", c.InsecureSkipVerify, c.ServerName)
				}
			},
		},
		{
			name: "min version 1.3",
			cfg:  security.TLSConfig{MinVersion: "1.3"},
			check: func(t *testing.T, c *tls.Config) {
				if c.MinVersion != tls.VersionTLS13 {
					t.Errorf("expected TLS13, got %d", c.MinVersion)
				}
			},
		},
		{
			name: "full",
			cfg:  security.TLSConfig{CAFile: certs.CAFile, CertFile: certs.CertFile, KeyFile: certs.KeyFile},
			check: func(t *testing.T, c *tls.Config) {
				if c.RootCAs == nil {
					t.Error("expected RootCAs")
				}
				if len(c.Certificates) != 1 {
					t.Errorf("expected 1 client certificate, got %d", len(c.Certificates))
				}
			},
		},
		{name: "missing CA", cfg: security.TLSConfig{CAFile: "/nonexistent/ca.pem"}, wantErr: "read CA file"},
		{name: "garbage CA", cfg: security.TLSConfig{CAFile: tlstest.WriteInvalidPEM(t, "bad.pem")}, wantErr: "no certificates"},
		{name: "cert without key", cfg: security.TLSConfig{CertFile: certs.CertFile}, wantErr: "together"},
		{name: "bad min version", cfg: security.TLSConfig{MinVersion: "1.0"}, wantErr: "min_version"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, err := tc.cfg.Build()
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tc.check(t, c)
		})
	}
}

func TestTLSConfig_Files(t *testing.T) {
	cfg := security.TLSConfig{CAFile: "ca.pem", KeyFile: "k.pem", CertFile: "c.pem"}
	if got := cfg.Files(); len(got) != 3 || got[0] != "ca.pem" {
		t.Errorf("Files() = %v", got)
	}
	if got := (&security.TLSConfig{}).Files(); len(got) != 0 {
		t.Errorf("expected no files, got %v", got)
	}
}
