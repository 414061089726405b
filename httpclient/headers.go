package httpclient

import (
	"strings"
)

// Header is one name/value pair as it appears on the wire.
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered header list. Insertion order is preserved and names
// compare case-insensitively. The zero value is ready to use.
type Headers struct {
	list []Header
}

// NewHeaders builds Headers from alternating name/value pairs.
func NewHeaders(kv ...string) *Headers {
	h := &Headers{}
	for i := 0; i+1 < len(kv); i += 2 {
		h.Add(kv[i], kv[i+1])
	}
	return h
}

// Add appends a value, keeping any existing ones.
func (h *Headers) Add(name, value string) {
	h.list = append(h.list, Header{Name: name, Value: value})
}

// Set replaces every value of name with value. The first existing
// occurrence keeps its position.
func (h *Headers) Set(name, value string) {
	idx := -1
	out := h.list[:0]
	for _, f := range h.list {
		if strings.EqualFold(f.Name, name) {
			if idx >= 0 {
				continue
			}
			idx = len(out)
			f.Value = value
		}
		out = append(out, f)
	}
	h.list = out
	if idx < 0 {
		h.Add(name, value)
	}
}

// SetDefault sets name only if it is absent.
func (h *Headers) SetDefault(name, value string) {
	if !h.Has(name) {
		h.Add(name, value)
	}
}

// Get returns the first value of name.
func (h *Headers) Get(name string) string {
	if h == nil {
		return ""
	}
	for _, f := range h.list {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

// Values returns every value of name in order.
func (h *Headers) Values(name string) []string {
	if h == nil {
		return nil
	}
	var vs []string
	for _, f := range h.list {
		if strings.EqualFold(f.Name, name) {
			vs = append(vs, f.Value)
		}
	}
	return vs
}

// Has reports whether name is present.
func (h *Headers) Has(name string) bool {
	if h == nil {
		return false
	}
	for _, f := range h.list {
		if strings.EqualFold(f.Name, name) {
			return true
		}
	}
	return false
}

// Del removes every value of name.
func (h *Headers) Del(name string) {
	out := h.list[:0]
	for _, f := range h.list {
		if !strings.EqualFold(f.Name, name) {
			out = append(out, f)
		}
	}
	clear(h.list[len(out):])
	h.list = out
}

// Len returns the number of fields.
func (h *Headers) Len() int {
	if h == nil {
		return 0
	}
	return len(h.list)
}

// All returns a copy of the fields in order.
func (h *Headers) All() []Header {
	if h == nil {
		return nil
	}
	return append([]Header(nil), h.list...)
}

// Clone returns an independent copy. Cloning nil yields empty Headers.
func (h *Headers) Clone() *Headers {
	if h == nil {
		return &Headers{}
	}
	return &Headers{list: append([]Header(nil), h.list...)}
}

// hasToken reports whether a comma-separated header contains token.
func (h *Headers) hasToken(name, token string) bool {
	for _, v := range h.Values(name) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}
