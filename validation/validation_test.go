package validation

import (
	"errors"
	"strings"
	"testing"
)

type upstream struct {
	Address string `yaml:"address" validate:"required,hostname_port"`
	Kind    string `yaml:"kind" validate:"oneof=http socks4 socks5"`
}

type settings struct {
	MaxIdle  int       `yaml:"max_idle" validate:"gte=0"`
	Workers  int       `yaml:"workers" validate:"gt=0"`
	Upstream *upstream `yaml:"upstream" validate:"omitnil"`
	NoTag    int       `validate:"lte=3"`
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		in     settings
		fields []string
	}{
		{"valid", settings{Workers: 1}, nil},
		{"negative max idle", settings{MaxIdle: -1, Workers: 1}, []string{"max_idle"}},
		{"zero workers", settings{}, []string{"workers"}},
		{"nested upstream", settings{Workers: 1, Upstream: &upstream{Address: "nope", Kind: "ftp"}}, []string{"upstream.address", "upstream.kind"}},
		{"untagged name is snake cased", settings{Workers: 1, NoTag: 9}, []string{"no_tag"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.in)
			if len(tc.fields) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var verr *Error
			if !errors.As(err, &verr) {
				t.Fatalf("expected *Error, got %T (%v)", err, err)
			}
			for _, f := range tc.fields {
				if !verr.Has(f) {
					t.Errorf("expected failure for %q in %v", f, verr.Fields)
				}
			}
			if len(verr.Fields) != len(tc.fields) {
				t.Errorf("expected %d failures, got %v", len(tc.fields), verr.Fields)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := Validate(settings{Workers: 0, MaxIdle: -2})
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	if !strings.HasPrefix(msg, "validation failed: ") {
		t.Errorf("unexpected prefix: %q", msg)
	}
	if !strings.Contains(msg, "workers: must be > 0") {
		t.Errorf("missing workers message: %q", msg)
	}
	if !strings.Contains(msg, "max_idle: must be >= 0") {
		t.Errorf("missing max_idle message: %q", msg)
	}
}
