package httpclient

import (
	"testing"
)

func builder(t *testing.T, uri string) *RequestBuilder {
	t.Helper()
	return (*Client)(nil).Request(uri)
}

func TestAuth_Apply(t *testing.T) {
	tests := []struct {
		name       string
		auth       *AuthConfig
		wantHeader string
		wantValue  string
		wantQuery  string
	}{
		{"bearer", BearerAuth("tok"), "Authorization", "Bearer tok", ""},
		{"basic", BasicAuth("user", "pass"), "Authorization", "Basic dXNlcjpwYXNz", ""},
		{"api key", APIKeyAuth("k1"), "X-API-Key", "k1", ""},
		{"api key header", APIKeyAuthHeader("k2", "X-Token"), "X-Token", "k2", ""},
		{"api key query", APIKeyAuthQuery("k3", "api_key"), "", "", "api_key=k3&page=2"},
		{"custom", CustomAuth(func(r *Request) { r.Headers.Set("X-Signed", "yes") }), "X-Signed", "yes", ""},
		{"none", &AuthConfig{Type: AuthNone}, "Authorization", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := builder(t, "http://example.com/items?page=2").Auth(tt.auth).Build()
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if tt.wantHeader != "" {
				if got := req.Headers.Get(tt.wantHeader); got != tt.wantValue {
					t.Errorf("%s = %q, want %q", tt.wantHeader, got, tt.wantValue)
				}
			}
			if tt.wantQuery != "" && req.URL.RawQuery != tt.wantQuery {
				t.Errorf("query = %q, want %q", req.URL.RawQuery, tt.wantQuery)
			}
		})
	}
}

func TestAuth_BuildDoesNotMutateBuilder(t *testing.T) {
	b := builder(t, "http://example.com/").Auth(APIKeyAuthQuery("secret", "key"))
	first, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	second, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	if first.URL.RawQuery != "key=secret" || second.URL.RawQuery != "key=secret" {
		t.Errorf("queries = %q / %q", first.URL.RawQuery, second.URL.RawQuery)
	}
	first.Headers.Set("X-Later", "1")
	if second.Headers.Has("X-Later") {
		t.Error("built requests share headers")
	}
}
