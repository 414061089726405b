package httpclient

import (
	"testing"
	"time"
)

func TestRequestBuilder(t *testing.T) {
	req, err := builder(t, "http://example.com/a").
		Post(Text("hi")).
		Header("X-Multi", "1").
		Header("X-Multi", "2").
		SetHeader("X-One", "a").
		SetHeader("X-One", "b").
		Query("q", "go lang").
		Timeout(3 * time.Second).
		CompressBody().
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if req.Method != "POST" || req.Body == nil {
		t.Errorf("method/body = %q / %v", req.Method, req.Body)
	}
	if got := req.Headers.Values("X-Multi"); len(got) != 2 {
		t.Errorf("X-Multi = %v", got)
	}
	if got := req.Headers.Get("X-One"); got != "b" {
		t.Errorf("X-One = %q", got)
	}
	if req.URL.RawQuery != "q=go+lang" {
		t.Errorf("query = %q", req.URL.RawQuery)
	}
	if req.Timeout != 3*time.Second || !req.CompressBody {
		t.Errorf("timeout/compress = %v / %v", req.Timeout, req.CompressBody)
	}
}

func TestRequestBuilder_Methods(t *testing.T) {
	tests := []struct {
		build func(*RequestBuilder) *RequestBuilder
		want  string
	}{
		{func(b *RequestBuilder) *RequestBuilder { return b }, "GET"},
		{(*RequestBuilder).Head, "HEAD"},
		{(*RequestBuilder).Options, "OPTIONS"},
		{(*RequestBuilder).Delete, "DELETE"},
		{func(b *RequestBuilder) *RequestBuilder { return b.Put(Empty()) }, "PUT"},
		{func(b *RequestBuilder) *RequestBuilder { return b.Patch(Empty()) }, "PATCH"},
		{func(b *RequestBuilder) *RequestBuilder { return b.Method("propfind") }, "PROPFIND"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			req, err := tt.build(builder(t, "http://example.com/")).Build()
			if err != nil {
				t.Fatal(err)
			}
			if req.Method != tt.want {
				t.Errorf("Method = %q, want %q", req.Method, tt.want)
			}
		})
	}
}

func TestRequestBuilder_InvalidURL(t *testing.T) {
	_, err := builder(t, "http://[::1").Build()
	if !IsValidation(err) {
		t.Fatalf("Build() = %v, want validation error", err)
	}
}

func TestResponse_StatusHelpers(t *testing.T) {
	tests := []struct {
		code             int
		success, isError bool
	}{
		{200, true, false},
		{204, true, false},
		{301, false, false},
		{404, false, true},
		{503, false, true},
	}
	for _, tt := range tests {
		r := &Response[string]{StatusCode: tt.code}
		if r.IsSuccess() != tt.success || r.IsError() != tt.isError {
			t.Errorf("%d: IsSuccess=%v IsError=%v", tt.code, r.IsSuccess(), r.IsError())
		}
	}
}
