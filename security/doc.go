// Package security provides the TLS contexts used by httpkit clients.
//
// TLSConfig describes file-based settings and builds a *tls.Config.
// TLSProvider is what the transport consults on each handshake; variants
// cover the system trust store, insecure testing, shared static configs,
// file-backed configs that rebuild when the files change, and self-signed
// material for local servers.
//
//	p := security.FromConfig(&security.TLSConfig{CAFile: "/etc/ssl/internal-ca.pem"})
//	client, err := httpclient.New(cfg, httpclient.WithTLSProvider(p))
package security
