// Package tlstest writes throwaway TLS material for tests.
//
//	certs := tlstest.GenerateTLSCerts(t)
//	srv := httptest.NewUnstartedServer(h)
//	srv.TLS = certs.ServerConfig()
//	srv.StartTLS()
//
// Files live in t.TempDir() and are removed when the test ends.
package tlstest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kbukum/httpkit/security"
)

// TLSCerts holds generated material and the paths it was written to.
type TLSCerts struct {
	*security.SelfSigned

	CAFile   string
	CertFile string
	KeyFile  string
}

// GenerateTLSCerts creates a CA and a leaf valid for localhost, 127.0.0.1 and ::1.
func GenerateTLSCerts(t testing.TB) *TLSCerts {
	t.Helper()
	s, err := security.NewSelfSigned()
	if err != nil {
		t.Fatalf("tlstest: %v", err)
	}
	dir := t.TempDir()
	return &TLSCerts{
		SelfSigned: s,
		CAFile:     write(t, dir, "ca.pem", s.CAPEM),
		CertFile:   write(t, dir, "cert.pem", s.CertPEM),
		KeyFile:    write(t, dir, "key.pem", s.KeyPEM),
	}
}

// WriteInvalidPEM writes a file that looks like PEM but holds no certificate.
func WriteInvalidPEM(t testing.TB, filename string) string {
	t.Helper()
	return write(t, t.TempDir(), filename,
		[]byte("-----BEGIN CERTIFICATE-----\nnot-valid-base64-data\n-----END CERTIFICATE-----\n"))
}

func write(t testing.TB, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0o600); err != nil {
		t.Fatalf("tlstest: write %s: %v", name, err)
	}
	return p
}
