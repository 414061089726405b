package httpclient

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/http/httpproxy"
	"golang.org/x/net/proxy"

	"github.com/kbukum/httpkit/validation"
)

// ProxyType selects the tunnel protocol.
type ProxyType string

const (
	// ProxyHTTP tunnels with an HTTP CONNECT request, for http and https targets alike.
	ProxyHTTP ProxyType = "http"
	// ProxySOCKS5 tunnels through a SOCKS5 proxy.
	ProxySOCKS5 ProxyType = "socks5"
	// ProxySOCKS4 tunnels through a SOCKS4a proxy.
	ProxySOCKS4 ProxyType = "socks4"
)

// ProxyConfig describes one forward proxy.
type ProxyConfig struct {
	Type     ProxyType `yaml:"type" mapstructure:"type" validate:"required,oneof=http socks5 socks4"`
	Address  string    `yaml:"address" mapstructure:"address" validate:"required,hostname_port"`
	Username string    `yaml:"username" mapstructure:"username"`
	Password string    `yaml:"password" mapstructure:"password"`
}

// Validate checks the proxy settings.
func (p *ProxyConfig) Validate() error {
	if err := validation.Validate(p); err != nil {
		return &Error{Code: ErrCodeValidation, Message: "proxy: " + err.Error(), Err: err}
	}
	return nil
}

func (p *ProxyConfig) String() string {
	return string(p.Type) + "://" + p.Address
}

// ProxyFactory picks the proxy for an authority. A nil result connects
// directly.
type ProxyFactory func(Authority) *ProxyConfig

// NoProxy always connects directly.
func NoProxy(Authority) *ProxyConfig { return nil }

// StaticProxy routes every authority through cfg.
func StaticProxy(cfg ProxyConfig) ProxyFactory {
	return func(Authority) *ProxyConfig { return &cfg }
}

// ForHTTP tunnels through an HTTP proxy at addr.
func ForHTTP(addr string) ProxyFactory {
	return StaticProxy(ProxyConfig{Type: ProxyHTTP, Address: addr})
}

// ForHTTPAuth tunnels through an HTTP proxy that requires Basic credentials.
func ForHTTPAuth(addr, username, password string) ProxyFactory {
	return StaticProxy(ProxyConfig{Type: ProxyHTTP, Address: addr, Username: username, Password: password})
}

// ForSOCKS5 tunnels through a SOCKS5 proxy at addr.
func ForSOCKS5(addr string) ProxyFactory {
	return StaticProxy(ProxyConfig{Type: ProxySOCKS5, Address: addr})
}

// ForSOCKS5Auth tunnels through a SOCKS5 proxy with username/password auth.
func ForSOCKS5Auth(addr, username, password string) ProxyFactory {
	return StaticProxy(ProxyConfig{Type: ProxySOCKS5, Address: addr, Username: username, Password: password})
}

// ForSOCKS4 tunnels through a SOCKS4a proxy. userID may be empty.
func ForSOCKS4(addr, userID string) ProxyFactory {
	return StaticProxy(ProxyConfig{Type: ProxySOCKS4, Address: addr, Username: userID})
}

// ProxyFromEnvironment reads HTTP_PROXY, HTTPS_PROXY and NO_PROXY (and
// their lower-case forms) once and routes accordingly. http and https
// proxy URLs become CONNECT tunnels; socks5 and socks4 URLs are honored.
func ProxyFromEnvironment() ProxyFactory {
	return proxyFromHTTPProxy(httpproxy.FromEnvironment())
}

func proxyFromHTTPProxy(cfg *httpproxy.Config) ProxyFactory {
	resolve := cfg.ProxyFunc()
	return func(a Authority) *ProxyConfig {
		u, err := resolve(&url.URL{Scheme: a.Scheme, Host: a.Address()})
		if err != nil || u == nil {
			return nil
		}
		pc := &ProxyConfig{Address: u.Host}
		switch strings.ToLower(u.Scheme) {
		case "http", "https", "":
			pc.Type = ProxyHTTP
		case "socks5", "socks5h":
			pc.Type = ProxySOCKS5
		case "socks4", "socks4a":
			pc.Type = ProxySOCKS4
		default:
			return nil
		}
		if u.Port() == "" {
			port := "1080"
			if pc.Type == ProxyHTTP {
				port = "80"
			}
			pc.Address = net.JoinHostPort(u.Hostname(), port)
		}
		if u.User != nil {
			pc.Username = u.User.Username()
			pc.Password, _ = u.User.Password()
		}
		return pc
	}
}

// handshake turns conn, already connected to the proxy, into a tunnel to
// target (host:port).
func (p *ProxyConfig) handshake(ctx context.Context, conn net.Conn, target string) (net.Conn, error) {
	switch p.Type {
	case ProxyHTTP:
		return httpConnect(ctx, conn, target, p.Username, p.Password)
	case ProxySOCKS5:
		var auth *proxy.Auth
		if p.Username != "" {
			auth = &proxy.Auth{User: p.Username, Password: p.Password}
		}
		d, err := proxy.SOCKS5("tcp", p.Address, auth, connectedDialer{conn: conn})
		if err != nil {
			return nil, err
		}
		return d.(proxy.ContextDialer).DialContext(ctx, "tcp", target)
	case ProxySOCKS4:
		return socks4Connect(ctx, conn, target, p.Username)
	default:
		return nil, fmt.Errorf("unsupported proxy type %q", p.Type)
	}
}

// connectedDialer hands out a connection that is already open, so the
// SOCKS5 dialer handshakes over it instead of dialing again.
type connectedDialer struct {
	conn net.Conn
}

func (d connectedDialer) Dial(_, _ string) (net.Conn, error) { return d.conn, nil }

func (d connectedDialer) DialContext(_ context.Context, _, _ string) (net.Conn, error) {
	return d.conn, nil
}

// withDeadline bounds a blocking handshake on conn by ctx.
func withDeadline(ctx context.Context, conn net.Conn) func() {
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	return func() {
		stop()
		_ = conn.SetDeadline(time.Time{})
	}
}

func httpConnect(ctx context.Context, conn net.Conn, target, username, password string) (net.Conn, error) {
	defer withDeadline(ctx, conn)()

	bw := bufio.NewWriter(conn)
	fmt.Fprintf(bw, "CONNECT %s HTTP/1.1\r\nHost: %s\r\n", target, target)
	if username != "" {
		token := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		fmt.Fprintf(bw, "Proxy-Authorization: Basic %s\r\n", token)
	}
	bw.WriteString("\r\n")
	if err := bw.Flush(); err != nil {
		return nil, err
	}

	br := bufio.NewReader(conn)
	_, code, reason, err := readStatusLine(br)
	if err != nil {
		return nil, err
	}
	if _, err := readHeaders(br); err != nil {
		return nil, err
	}
	if code != 200 {
		return nil, fmt.Errorf("proxy CONNECT %s: %d %s", target, code, reason)
	}
	if br.Buffered() > 0 {
		return &bufferedConn{Conn: conn, r: br}, nil
	}
	return conn, nil
}

// bufferedConn keeps bytes the proxy sent after its CONNECT response.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) { return c.r.Read(p) }

var errSOCKS4Rejected = errors.New("socks4: request rejected")

func socks4Connect(ctx context.Context, conn net.Conn, target, userID string) (net.Conn, error) {
	defer withDeadline(ctx, conn)()

	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("socks4: bad port %q", portStr)
	}

	req := []byte{0x04, 0x01, 0, 0}
	binary.BigEndian.PutUint16(req[2:], uint16(port))
	ip := net.ParseIP(host).To4()
	if ip != nil {
		req = append(req, ip...)
	} else {
		// SOCKS4a: an invalid address 0.0.0.x asks the proxy to resolve the name.
		req = append(req, 0, 0, 0, 1)
	}
	req = append(req, userID...)
	req = append(req, 0)
	if ip == nil {
		req = append(req, host...)
		req = append(req, 0)
	}
	if _, err := conn.Write(req); err != nil {
		return nil, err
	}

	var resp [8]byte
	if _, err := io.ReadFull(conn, resp[:]); err != nil {
		return nil, err
	}
	if resp[0] != 0x00 {
		return nil, fmt.Errorf("socks4: bad reply version %d", resp[0])
	}
	if resp[1] != 0x5a {
		return nil, fmt.Errorf("%w (code %#x)", errSOCKS4Rejected, resp[1])
	}
	return conn, nil
}
