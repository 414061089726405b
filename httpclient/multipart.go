package httpclient

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/textproto"
	"sort"
	"sync"
)

// MultipartBody is a multipart/form-data ContentHolder.
type MultipartBody struct {
	// Fields are simple key-value form fields, written in key order.
	Fields map[string]string
	// Files are file upload fields.
	Files []FileField

	once     sync.Once
	boundary string
}

// FileField is one file part.
type FileField struct {
	// FieldName is the form field name (e.g., "file").
	FieldName string
	// FileName is the file name sent to the server.
	FileName string
	// ContentType defaults to application/octet-stream.
	ContentType string
	// Data is the file content. Used if Reader is nil.
	Data []byte
	// Reader is read to EOF when Data is nil.
	Reader io.Reader
}

var _ ContentHolder = (*MultipartBody)(nil)

func (m *MultipartBody) boundaryValue() string {
	m.once.Do(func() {
		m.boundary = multipart.NewWriter(io.Discard).Boundary()
	})
	return m.boundary
}

// ContentType returns multipart/form-data with the body's boundary.
func (m *MultipartBody) ContentType() string {
	return "multipart/form-data; boundary=" + m.boundaryValue()
}

// Content encodes the parts.
func (m *MultipartBody) Content() (io.Reader, int64, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.SetBoundary(m.boundaryValue()); err != nil {
		return nil, 0, err
	}

	keys := make([]string, 0, len(m.Fields))
	for k := range m.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, m.Fields[k]); err != nil {
			return nil, 0, err
		}
	}

	for _, f := range m.Files {
		var part io.Writer
		var err error
		if f.ContentType != "" {
			header := make(textproto.MIMEHeader)
			header.Set("Content-Disposition",
				`form-data; name="`+escapeQuotes(f.FieldName)+`"; filename="`+escapeQuotes(f.FileName)+`"`)
			header.Set("Content-Type", f.ContentType)
			part, err = w.CreatePart(header)
		} else {
			part, err = w.CreateFormFile(f.FieldName, f.FileName)
		}
		if err != nil {
			return nil, 0, err
		}

		switch {
		case f.Data != nil:
			_, err = part.Write(f.Data)
		case f.Reader != nil:
			_, err = io.Copy(part, f.Reader)
		}
		if err != nil {
			return nil, 0, err
		}
	}

	if err := w.Close(); err != nil {
		return nil, 0, err
	}
	return &buf, int64(buf.Len()), nil
}

func escapeQuotes(s string) string {
	var buf bytes.Buffer
	for _, b := range []byte(s) {
		if b == '"' || b == '\\' {
			buf.WriteByte('\\')
		}
		buf.WriteByte(b)
	}
	return buf.String()
}
