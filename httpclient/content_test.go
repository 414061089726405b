package httpclient

import (
	"io"
	"net/url"
	"strings"
	"testing"
)

func readHolder(t *testing.T, h ContentHolder) ([]byte, int64) {
	t.Helper()
	r, n, err := h.Content()
	if err != nil {
		t.Fatalf("Content: %v", err)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return b, n
}

func TestHolders(t *testing.T) {
	tests := []struct {
		name string
		h    ContentHolder
		ct   string
		body string
	}{
		{"bytes", Bytes("application/x-thing", []byte{1, 2}), "application/x-thing", "\x01\x02"},
		{"utf8", UTF8("p1=abc&p2=12345"), "", "p1=abc&p2=12345"},
		{"text", Text("héllo"), ContentTypeText, "héllo"},
		{"form", Form(url.Values{"b": {"2"}, "a": {"1 x"}}), ContentTypeForm, "a=1+x&b=2"},
		{"empty", Empty(), "", ""},
		{"ascii", ASCII("plain"), "text/plain; charset=US-ASCII", "plain"},
		{"latin1", Latin1("café"), "text/plain; charset=ISO-8859-1", "caf\xe9"},
		{"charset", Charset("ü", "windows-1252"), "text/plain; charset=windows-1252", "\xfc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.h.ContentType(); got != tt.ct {
				t.Errorf("ContentType = %q, want %q", got, tt.ct)
			}
			b, n := readHolder(t, tt.h)
			if string(b) != tt.body {
				t.Errorf("body = %q, want %q", b, tt.body)
			}
			if n != int64(len(b)) {
				t.Errorf("length = %d, body has %d", n, len(b))
			}
		})
	}
}

func TestHolders_EncodingFailures(t *testing.T) {
	if _, _, err := ASCII("naïve").Content(); err == nil {
		t.Error("ASCII should reject non-ASCII input")
	}
	if _, _, err := Charset("x", "no-such-charset").Content(); err == nil {
		t.Error("unknown charset should fail")
	}
}

func TestStreamHolder(t *testing.T) {
	h := Stream("text/csv", strings.NewReader("a,b\n"), -1)
	r, n, err := h.Content()
	if err != nil || n != -1 || h.ContentType() != "text/csv" {
		t.Fatalf("Stream: %v %d %q", err, n, h.ContentType())
	}
	b, _ := io.ReadAll(r)
	if string(b) != "a,b\n" {
		t.Errorf("got %q", b)
	}
}

func TestHandlers(t *testing.T) {
	info := ResponseInfo{StatusCode: 200, Headers: NewHeaders("Content-Type", "text/html; charset=ISO-8859-1")}

	s, err := String().Handle(info, strings.NewReader("héllo"))
	if err != nil || s != "héllo" {
		t.Errorf("String = %q, %v", s, err)
	}

	s, err = StringCharset("ISO-8859-1").Handle(info, strings.NewReader("caf\xe9"))
	if err != nil || s != "café" {
		t.Errorf("StringCharset = %q, %v", s, err)
	}

	s, err = StringAuto().Handle(info, strings.NewReader("caf\xe9"))
	if err != nil || s != "café" {
		t.Errorf("StringAuto = %q, %v", s, err)
	}

	b, err := BytesHandler().Handle(info, strings.NewReader("raw"))
	if err != nil || string(b) != "raw" {
		t.Errorf("BytesHandler = %q, %v", b, err)
	}

	if _, err := Discard().Handle(info, strings.NewReader("ignored")); err != nil {
		t.Errorf("Discard: %v", err)
	}

	if _, err := StringCharset("bogus").Handle(info, strings.NewReader("x")); err == nil {
		t.Error("unknown charset should fail")
	}
}

func TestMediaType(t *testing.T) {
	tests := map[string]string{
		"application/json; charset=utf-8": "application/json",
		"Text/HTML":                       "text/html",
		"broken;;=":                       "broken",
	}
	for in, want := range tests {
		if got := MediaType(in); got != want {
			t.Errorf("MediaType(%q) = %q, want %q", in, got, want)
		}
	}
}
