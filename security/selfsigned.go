package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"time"
)

// SelfSigned is a throwaway CA together with one leaf certificate it issued.
type SelfSigned struct {
	CA      *x509.Certificate
	CAKey   *ecdsa.PrivateKey
	CAPEM   []byte
	CertPEM []byte
	KeyPEM  []byte
	Leaf    tls.Certificate
	Pool    *x509.CertPool
}

// NewSelfSigned creates a CA and a leaf certificate valid for hosts (DNS
// names or IP literals). With no hosts the leaf covers localhost and the
// loopback addresses.
func NewSelfSigned(hosts ...string) (*SelfSigned, error) {
	if len(hosts) == 0 {
		hosts = []string{"localhost", "127.0.0.1", "::1"}
	}

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("security/selfsigned: generate CA key: %w", err)
	}
	now := time.Now()
	caTmpl := &x509.Certificate{
		SerialNumber:          serial(),
		Subject:               pkix.Name{Organization: []string{"httpkit self-signed CA"}},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTmpl, caTmpl, &caKey.PublicKey, caKey)
	if err != nil {
		return nil, fmt.Errorf("security/selfsigned: create CA: %w", err)
	}
	ca, err := x509.ParseCertificate(caDER)
	if err != nil {
		return nil, fmt.Errorf("security/selfsigned: parse CA: %w", err)
	}

	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("security/selfsigned: generate leaf key: %w", err)
	}
	leafTmpl := &x509.Certificate{
		SerialNumber: serial(),
		Subject:      pkix.Name{Organization: []string{"httpkit"}, CommonName: hosts[0]},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			leafTmpl.IPAddresses = append(leafTmpl.IPAddresses, ip)
		} else {
			leafTmpl.DNSNames = append(leafTmpl.DNSNames, h)
		}
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTmpl, ca, &leafKey.PublicKey, caKey)
	if err != nil {
		return nil, fmt.Errorf("security/selfsigned: create leaf: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(leafKey)
	if err != nil {
		return nil, fmt.Errorf("security/selfsigned: marshal leaf key: %w", err)
	}

	s := &SelfSigned{
		CA:      ca,
		CAKey:   caKey,
		CAPEM:   pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: caDER}),
		CertPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: leafDER}),
		KeyPEM:  pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}),
		Pool:    x509.NewCertPool(),
	}
	s.Pool.AddCert(ca)
	if s.Leaf, err = tls.X509KeyPair(s.CertPEM, s.KeyPEM); err != nil {
		return nil, fmt.Errorf("security/selfsigned: key pair: %w", err)
	}
	return s, nil
}

// ServerConfig returns a server-side config presenting the leaf.
func (s *SelfSigned) ServerConfig() *tls.Config {
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{s.Leaf},
		NextProtos:   []string{"http/1.1"},
	}
}

// ClientProvider trusts only this CA.
func (s *SelfSigned) ClientProvider() TLSProvider {
	return Static(&tls.Config{MinVersion: tls.VersionTLS12, RootCAs: s.Pool})
}

// ServerProvider serves ServerConfig to every caller.
func (s *SelfSigned) ServerProvider() TLSProvider {
	return Static(s.ServerConfig())
}

// SelfSignedForServer mints a fresh self-signed server config on every call.
func SelfSignedForServer(hosts ...string) TLSProvider {
	return ProviderFunc(func() (*tls.Config, error) {
		s, err := NewSelfSigned(hosts...)
		if err != nil {
			return nil, err
		}
		return s.ServerConfig(), nil
	})
}

func serial() *big.Int {
	n, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return big.NewInt(time.Now().UnixNano())
	}
	return n
}
