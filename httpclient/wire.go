package httpclient

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http/httputil"
	"strconv"
	"strings"
)

const maxLineLength = 8 << 10

var (
	errLineTooLong   = errors.New("header line too long")
	errMalformedLine = errors.New("malformed status line")
	errMalformedHdr  = errors.New("malformed header line")
)

// writeRequest writes the request head and body. n is the body length;
// negative means chunked.
func writeRequest(bw *bufio.Writer, method, target string, h *Headers, body io.Reader, n int64) error {
	if _, err := fmt.Fprintf(bw, "%s %s HTTP/1.1\r\n", method, target); err != nil {
		return err
	}
	for _, f := range h.list {
		if _, err := fmt.Fprintf(bw, "%s: %s\r\n", f.Name, f.Value); err != nil {
			return err
		}
	}
	if _, err := bw.WriteString("\r\n"); err != nil {
		return err
	}
	if body != nil {
		if err := writeBody(bw, body, n); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// bodyError marks a failure reading the outbound body, as opposed to
// writing it to the peer.
type bodyError struct{ err error }

func (e *bodyError) Error() string { return e.err.Error() }
func (e *bodyError) Unwrap() error { return e.err }

func writeBody(bw *bufio.Writer, body io.Reader, n int64) error {
	if n < 0 {
		cw := httputil.NewChunkedWriter(bw)
		if _, err := io.Copy(cw, readerOnly{body}); err != nil {
			return err
		}
		if err := cw.Close(); err != nil {
			return err
		}
		_, err := bw.WriteString("\r\n")
		return err
	}
	copied, err := io.Copy(bw, io.LimitReader(readerOnly{body}, n))
	if err != nil {
		return err
	}
	if copied != n {
		return &bodyError{fmt.Errorf("body declared %d bytes, produced %d", n, copied)}
	}
	return nil
}

// readerOnly tags read errors from the body so they are not mistaken for
// connection failures.
type readerOnly struct{ r io.Reader }

func (r readerOnly) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if err != nil && err != io.EOF {
		err = &bodyError{err}
	}
	return n, err
}

// rawResponse is a fully read response before decompression and decoding.
type rawResponse struct {
	proto      string
	statusCode int
	status     string
	headers    *Headers
	body       []byte
	// reusable is false when the framing or the peer rules out another request.
	reusable bool
}

// protocolError marks malformed HTTP from the peer.
type protocolError struct{ err error }

func (e *protocolError) Error() string { return e.err.Error() }
func (e *protocolError) Unwrap() error { return e.err }

// tooLargeError marks a body over the configured limit.
type tooLargeError struct{ limit int64 }

func (e *tooLargeError) Error() string {
	return fmt.Sprintf("response body exceeds %d bytes", e.limit)
}

// readResponse reads one final response, skipping interim 1xx responses.
func readResponse(br *bufio.Reader, method string, maxBody int64) (*rawResponse, error) {
	for {
		proto, code, reason, err := readStatusLine(br)
		if err != nil {
			return nil, err
		}
		h, err := readHeaders(br)
		if err != nil {
			return nil, err
		}
		if code >= 100 && code < 200 && code != 101 {
			continue
		}
		resp := &rawResponse{
			proto:      proto,
			statusCode: code,
			status:     strings.TrimSpace(strconv.Itoa(code) + " " + reason),
			headers:    h,
		}
		if err := readBody(br, method, resp, maxBody); err != nil {
			return nil, err
		}
		return resp, nil
	}
}

func readBody(br *bufio.Reader, method string, resp *rawResponse, maxBody int64) error {
	resp.reusable = keepAlive(resp.proto, resp.headers)

	if method == "HEAD" || resp.statusCode == 204 || resp.statusCode == 304 || resp.statusCode == 101 {
		if resp.statusCode == 101 {
			resp.reusable = false
		}
		return nil
	}

	if resp.headers.hasToken("Transfer-Encoding", "chunked") {
		body, err := readLimited(httputil.NewChunkedReader(br), maxBody)
		if err != nil {
			return err
		}
		// Trailer section after the last chunk.
		if _, err := readHeaders(br); err != nil {
			return err
		}
		resp.body = body
		return nil
	}

	if cl := resp.headers.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
		if err != nil || n < 0 {
			return &protocolError{fmt.Errorf("invalid Content-Length %q", cl)}
		}
		if maxBody > 0 && n > maxBody {
			return &tooLargeError{limit: maxBody}
		}
		body := make([]byte, n)
		if _, err := io.ReadFull(br, body); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return err
		}
		resp.body = body
		return nil
	}

	// No framing: the body runs until the peer closes.
	resp.reusable = false
	body, err := readLimited(br, maxBody)
	if err != nil {
		return err
	}
	resp.body = body
	return nil
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, &tooLargeError{limit: limit}
	}
	return body, nil
}

// keepAlive applies HTTP/1.0 and HTTP/1.1 persistence defaults.
func keepAlive(proto string, h *Headers) bool {
	if h.hasToken("Connection", "close") {
		return false
	}
	if proto == "HTTP/1.0" {
		return h.hasToken("Connection", "keep-alive")
	}
	return true
}

func readStatusLine(br *bufio.Reader) (proto string, code int, reason string, err error) {
	line, err := readLine(br)
	if err != nil {
		return "", 0, "", err
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "HTTP/1.") {
		return "", 0, "", &protocolError{fmt.Errorf("%w: %q", errMalformedLine, line)}
	}
	code, err = strconv.Atoi(parts[1])
	if err != nil || code < 100 || code > 999 {
		return "", 0, "", &protocolError{fmt.Errorf("%w: %q", errMalformedLine, line)}
	}
	if len(parts) == 3 {
		reason = parts[2]
	}
	return parts[0], code, reason, nil
}

func readHeaders(br *bufio.Reader) (*Headers, error) {
	h := &Headers{}
	for {
		line, err := readLine(br)
		if err != nil {
			return nil, err
		}
		if line == "" {
			return h, nil
		}
		i := strings.IndexByte(line, ':')
		if i <= 0 {
			return nil, &protocolError{fmt.Errorf("%w: %q", errMalformedHdr, line)}
		}
		h.Add(strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:]))
	}
}

func readLine(br *bufio.Reader) (string, error) {
	var sb strings.Builder
	for {
		frag, isPrefix, err := br.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) && sb.Len() > 0 {
				err = io.ErrUnexpectedEOF
			}
			return "", err
		}
		sb.Write(frag)
		if sb.Len() > maxLineLength {
			return "", &protocolError{errLineTooLong}
		}
		if !isPrefix {
			return sb.String(), nil
		}
	}
}
