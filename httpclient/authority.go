package httpclient

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

const (
	schemeHTTP  = "http"
	schemeHTTPS = "https"
)

// Authority identifies a remote endpoint: scheme, host and port. Values
// built by NewAuthority or ParseAuthority are normalized, so == compares
// them as cache buckets. Literals are normalized by every cache and client
// method that takes one.
type Authority struct {
	Scheme string
	Host   string
	Port   int
}

// NewAuthority normalizes scheme and host to lower case, converts
// internationalized hosts to their ASCII form, and fills a zero port with
// the scheme default (80 or 443).
func NewAuthority(scheme, host string, port int) Authority {
	scheme = strings.ToLower(scheme)
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if ascii, err := idna.Lookup.ToASCII(host); err == nil && ascii != "" {
		host = ascii
	} else {
		host = strings.ToLower(host)
	}
	if port == 0 {
		port = defaultPort(scheme)
	}
	return Authority{Scheme: scheme, Host: host, Port: port}
}

// Normalize returns a in the form NewAuthority produces. It is idempotent.
func (a Authority) Normalize() Authority {
	return NewAuthority(a.Scheme, a.Host, a.Port)
}

// ParseAuthority extracts the authority from an absolute http or https URL.
func ParseAuthority(u *url.URL) (Authority, error) {
	if u == nil {
		return Authority{}, newErrorf(ErrCodeValidation, "nil url")
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != schemeHTTP && scheme != schemeHTTPS {
		return Authority{}, newErrorf(ErrCodeValidation, "unsupported scheme %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return Authority{}, newErrorf(ErrCodeValidation, "missing host in %q", u.String())
	}
	port := 0
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 || n > 65535 {
			return Authority{}, newErrorf(ErrCodeValidation, "invalid port %q", p)
		}
		port = n
	}
	return NewAuthority(scheme, host, port), nil
}

func defaultPort(scheme string) int {
	if scheme == schemeHTTPS {
		return 443
	}
	return 80
}

// Secure reports whether the scheme requires TLS.
func (a Authority) Secure() bool { return a.Scheme == schemeHTTPS }

// Address returns host:port for dialing.
func (a Authority) Address() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// HostHeader returns the Host header value, omitting a default port.
func (a Authority) HostHeader() string {
	if a.Port == defaultPort(a.Scheme) {
		if strings.Contains(a.Host, ":") {
			return "[" + a.Host + "]"
		}
		return a.Host
	}
	return a.Address()
}

// Key returns the canonical scheme://host:port form.
func (a Authority) Key() string {
	return a.Scheme + "://" + a.Address()
}

func (a Authority) String() string {
	if a.Host == "" {
		return ""
	}
	return a.Key()
}
