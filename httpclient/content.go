package httpclient

import (
	"bytes"
	"io"
	"mime"
	"net/url"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

// Content types used as defaults.
const (
	ContentTypeForm        = "application/x-www-form-urlencoded"
	ContentTypeText        = "text/plain; charset=utf-8"
	ContentTypeOctetStream = "application/octet-stream"
)

// ContentHolder produces an outbound request body.
type ContentHolder interface {
	// ContentType is the declared media type. Empty leaves the choice to
	// the request headers or the client default.
	ContentType() string
	// Content returns the body and its length. A negative length sends the
	// body chunked.
	Content() (io.Reader, int64, error)
}

// ResponseInfo is what a ContentHandler sees besides the body.
type ResponseInfo struct {
	StatusCode int
	Status     string
	Proto      string
	Headers    *Headers
}

// ContentHandler decodes a response body into a T.
type ContentHandler[T any] interface {
	Handle(info ResponseInfo, body io.Reader) (T, error)
}

// ContentHandlerFunc adapts a function to ContentHandler.
type ContentHandlerFunc[T any] func(info ResponseInfo, body io.Reader) (T, error)

// Handle calls f.
func (f ContentHandlerFunc[T]) Handle(info ResponseInfo, body io.Reader) (T, error) {
	return f(info, body)
}

type bytesHolder struct {
	contentType string
	data        []byte
}

func (b bytesHolder) ContentType() string { return b.contentType }

func (b bytesHolder) Content() (io.Reader, int64, error) {
	return bytes.NewReader(b.data), int64(len(b.data)), nil
}

// Bytes sends b with an explicit content type.
func Bytes(contentType string, b []byte) ContentHolder {
	return bytesHolder{contentType: contentType, data: b}
}

// UTF8 sends s as UTF-8 with no declared type, so the request's
// Content-Type header or the form default applies.
func UTF8(s string) ContentHolder {
	return bytesHolder{data: []byte(s)}
}

// Text sends s as text/plain; charset=utf-8.
func Text(s string) ContentHolder {
	return bytesHolder{contentType: ContentTypeText, data: []byte(s)}
}

// Form sends url-encoded form values.
func Form(values url.Values) ContentHolder {
	return bytesHolder{contentType: ContentTypeForm, data: []byte(values.Encode())}
}

// Empty sends a zero-length body.
func Empty() ContentHolder {
	return bytesHolder{}
}

type encodedHolder struct {
	s       string
	name    string
	encoder *encoding.Encoder
}

func (e encodedHolder) ContentType() string { return "text/plain; charset=" + e.name }

func (e encodedHolder) Content() (io.Reader, int64, error) {
	out, err := e.encoder.String(e.s)
	if err != nil {
		return nil, 0, err
	}
	return strings.NewReader(out), int64(len(out)), nil
}

// ASCII sends s as US-ASCII text. Characters outside ASCII fail encoding.
func ASCII(s string) ContentHolder {
	return Charset(s, "US-ASCII")
}

// Latin1 sends s as ISO-8859-1 text.
func Latin1(s string) ContentHolder {
	return encodedHolder{s: s, name: "ISO-8859-1", encoder: charmap.ISO8859_1.NewEncoder()}
}

// Charset sends s as text/plain in the named IANA charset. An unknown
// charset fails when the body is produced.
func Charset(s, name string) ContentHolder {
	enc, err := lookupCharset(name)
	if err != nil {
		return errHolder{err: err}
	}
	return encodedHolder{s: s, name: name, encoder: enc.NewEncoder()}
}

type errHolder struct{ err error }

func (e errHolder) ContentType() string { return "" }

func (e errHolder) Content() (io.Reader, int64, error) { return nil, 0, e.err }

type streamHolder struct {
	contentType string
	r           io.Reader
	n           int64
}

func (s streamHolder) ContentType() string { return s.contentType }

func (s streamHolder) Content() (io.Reader, int64, error) { return s.r, s.n, nil }

// Stream sends r. With n < 0 the body is sent chunked; otherwise exactly
// n bytes are read from r.
func Stream(contentType string, r io.Reader, n int64) ContentHolder {
	return streamHolder{contentType: contentType, r: r, n: n}
}

func lookupCharset(name string) (encoding.Encoding, error) {
	switch strings.ToLower(name) {
	case "utf-8", "utf8":
		return unicode.UTF8, nil
	case "ascii":
		name = "US-ASCII"
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nil, &Error{Code: ErrCodeValidation, Message: "unsupported charset " + name}
	}
	return enc, nil
}

// String decodes the body as UTF-8.
func String() ContentHandler[string] {
	return ContentHandlerFunc[string](func(_ ResponseInfo, body io.Reader) (string, error) {
		b, err := io.ReadAll(body)
		return string(b), err
	})
}

// StringCharset decodes the body from the named charset into a UTF-8 string.
func StringCharset(name string) ContentHandler[string] {
	return ContentHandlerFunc[string](func(_ ResponseInfo, body io.Reader) (string, error) {
		enc, err := lookupCharset(name)
		if err != nil {
			return "", err
		}
		b, err := io.ReadAll(enc.NewDecoder().Reader(body))
		return string(b), err
	})
}

// StringAuto decodes the body using the charset declared in Content-Type,
// falling back to content sniffing.
func StringAuto() ContentHandler[string] {
	return ContentHandlerFunc[string](func(info ResponseInfo, body io.Reader) (string, error) {
		r, err := charset.NewReader(body, info.Headers.Get("Content-Type"))
		if err != nil {
			return "", err
		}
		b, err := io.ReadAll(r)
		return string(b), err
	})
}

// BytesHandler returns the raw body.
func BytesHandler() ContentHandler[[]byte] {
	return ContentHandlerFunc[[]byte](func(_ ResponseInfo, body io.Reader) ([]byte, error) {
		return io.ReadAll(body)
	})
}

// Discard drops the body.
func Discard() ContentHandler[struct{}] {
	return ContentHandlerFunc[struct{}](func(_ ResponseInfo, body io.Reader) (struct{}, error) {
		_, err := io.Copy(io.Discard, body)
		return struct{}{}, err
	})
}

// MediaType returns the media type of a Content-Type value without parameters.
func MediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}
	return mt
}
