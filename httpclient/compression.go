package httpclient

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Content codings.
const (
	EncodingGzip    = "gzip"
	EncodingDeflate = "deflate"
	EncodingBrotli  = "br"
	EncodingZstd    = "zstd"
)

// codecs is the set of content codings a client advertises and decodes.
type codecs struct {
	enabled bool
	brotli  bool
	zstd    bool
}

func (c codecs) acceptEncoding() string {
	if !c.enabled {
		return ""
	}
	list := []string{EncodingGzip, EncodingDeflate}
	if c.brotli {
		list = append(list, EncodingBrotli)
	}
	if c.zstd {
		list = append(list, EncodingZstd)
	}
	return strings.Join(list, ", ")
}

func (c codecs) supports(coding string) bool {
	switch coding {
	case EncodingGzip, "x-gzip", EncodingDeflate:
		return c.enabled
	case EncodingBrotli:
		return c.enabled && c.brotli
	case EncodingZstd:
		return c.enabled && c.zstd
	}
	return false
}

// decode undoes a single Content-Encoding. It reports false for codings
// it does not handle, leaving the body as received.
func (c codecs) decode(coding string, body []byte, limit int64) ([]byte, bool, error) {
	coding = strings.ToLower(strings.TrimSpace(coding))
	if coding == "" || coding == "identity" {
		return body, false, nil
	}
	if !c.supports(coding) {
		return body, false, nil
	}

	var r io.Reader
	switch coding {
	case EncodingGzip, "x-gzip":
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, true, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		r = zr
	case EncodingDeflate:
		// RFC 9110 deflate is zlib-wrapped; some servers send raw deflate.
		if zr, err := zlib.NewReader(bytes.NewReader(body)); err == nil {
			defer zr.Close()
			r = zr
		} else {
			fr := flate.NewReader(bytes.NewReader(body))
			defer fr.Close()
			r = fr
		}
	case EncodingBrotli:
		r = brotli.NewReader(bytes.NewReader(body))
	case EncodingZstd:
		zr, err := zstd.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, true, fmt.Errorf("zstd: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	out, err := readLimited(r, limit)
	if err != nil {
		return nil, true, err
	}
	return out, true, nil
}

// encode compresses a request body with coding.
func encode(coding string, body []byte) ([]byte, error) {
	var buf bytes.Buffer
	var w io.WriteCloser
	switch coding {
	case EncodingGzip:
		w = gzip.NewWriter(&buf)
	case EncodingDeflate:
		w = zlib.NewWriter(&buf)
	case EncodingBrotli:
		w = brotli.NewWriter(&buf)
	case EncodingZstd:
		zw, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
		w = zw
	default:
		return nil, fmt.Errorf("unsupported content coding %q", coding)
	}
	if _, err := w.Write(body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decompress applies decode to resp in place. A decoded body loses its
// Content-Encoding and Content-Length headers.
func (c codecs) decompress(resp *rawResponse, limit int64) error {
	coding := resp.headers.Get("Content-Encoding")
	if coding == "" || len(resp.body) == 0 || strings.Contains(coding, ",") {
		return nil
	}
	body, decoded, err := c.decode(coding, resp.body, limit)
	if err != nil {
		return err
	}
	if decoded {
		resp.body = body
		resp.headers.Del("Content-Encoding")
		resp.headers.Del("Content-Length")
	}
	return nil
}
