package wire

import (
	"bytes"
	"strconv"
	"strings"
)

// MaxHeaderBytes is the default cap on a request's header block (request
// line + header lines, not counting the body). Exceeding it is a 400.
const MaxHeaderBytes = 8 * 1024

// MaxBodyBytes is the implementation-defined maximum request body size.
// A Content-Length beyond this is rejected immediately, before any body
// bytes are read, so a read or allocation is never sized off an
// unchecked Content-Length.
const MaxBodyBytes = 64 * 1024 * 1024

// Request is a fully-parsed, fully-buffered HTTP/1.1 request. It is only
// constructed once its body has been read in its entirety; the callable
// never blocks reading wsgi.input.
type Request struct {
	Method        string
	Target        string // raw, byte-preserved request-target
	Path          string
	RawQuery      string
	HasQuery      bool
	Headers       Headers
	ContentLength int64
	Body          []byte
	KeepAlive     bool
}

func isTChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	switch c {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
		return true
	}
	return false
}

func validToken(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if !isTChar(c) {
			return false
		}
	}
	return true
}

func validFieldValue(b []byte) bool {
	for _, c := range b {
		if c == '\r' || c == '\n' {
			return false
		}
	}
	return true
}

// Parse attempts to parse a single request from the front of raw. On
// success it returns the request and the number of bytes consumed. On
// ErrIncomplete the caller should read more bytes; raw must be retried
// unmodified (Parse does not mutate its input). Any other error is a
// malformed request the caller should turn into a 400 (or, if returned
// from before the request line is found at all, a silent close).
func Parse(raw []byte) (*Request, int, error) {
	crs := 0
	find := func(start int, sep byte) int {
		idx := bytes.IndexByte(raw[start:], sep)
		if idx == -1 {
			return -1
		}
		return start + idx
	}

	if lf := bytes.IndexByte(raw, '\n'); lf > MaxHeaderBytes || (lf == -1 && len(raw) > MaxHeaderBytes) {
		return nil, 0, newParseError("header block too large")
	}

	sep := find(crs, ' ')
	if sep == -1 {
		return nil, 0, ErrIncomplete
	}
	methodRaw := raw[crs:sep]
	if !validToken(methodRaw) {
		return nil, 0, newParseError("invalid method")
	}
	crs = sep + 1

	sep = find(crs, ' ')
	if sep == -1 {
		return nil, 0, ErrIncomplete
	}
	targetRaw := raw[crs:sep]
	if len(targetRaw) == 0 {
		return nil, 0, newParseError("invalid request-target")
	}
	crs = sep + 1

	sep = find(crs, '\n')
	if sep == -1 {
		return nil, 0, ErrIncomplete
	}
	if sep == crs || raw[sep-1] != '\r' {
		return nil, 0, newParseError("invalid request line")
	}
	protoRaw := raw[crs : sep-1]
	if !bytes.Equal(protoRaw, []byte("HTTP/1.1")) && !bytes.Equal(protoRaw, []byte("HTTP/1.0")) {
		return nil, 0, newParseError("unsupported protocol version")
	}
	crs = sep + 1

	var headers Headers
	var contentLength int64 = -1
	sawTransferEncoding := false
	sawConnectionClose := false
	sawConnectionKeepAlive := false

	for {
		if crs+1 > len(raw) {
			return nil, 0, ErrIncomplete
		}
		if crs+1 < len(raw) && raw[crs] == '\r' && raw[crs+1] == '\n' {
			crs += 2
			break
		}
		if raw[crs] == '\n' {
			// bare LF line terminator tolerated only for the blank line
			crs++
			break
		}

		lf := find(crs, '\n')
		if lf == -1 {
			if len(raw) > MaxHeaderBytes {
				return nil, 0, newParseError("header block too large")
			}
			return nil, 0, ErrIncomplete
		}
		if lf == crs || raw[lf-1] != '\r' {
			return nil, 0, newParseError("malformed header line")
		}
		lineEnd := lf - 1

		colon := find(crs, ':')
		if colon == -1 || colon > lineEnd {
			return nil, 0, newParseError("malformed header line")
		}

		name := raw[crs:colon]
		if !validToken(name) {
			return nil, 0, newParseError("malformed header name")
		}

		vs := colon + 1
		for vs < lineEnd && raw[vs] == ' ' {
			vs++
		}
		ve := lineEnd
		for ve > vs && raw[ve-1] == ' ' {
			ve--
		}
		value := raw[vs:ve]
		if !validFieldValue(value) {
			return nil, 0, newParseError("malformed header value")
		}

		nameStr := string(name)
		valueStr := string(value)
		headers.Add(nameStr, valueStr)

		if strings.EqualFold(nameStr, "Content-Length") {
			n, err := strconv.ParseInt(valueStr, 10, 64)
			if err != nil || n < 0 {
				return nil, 0, newParseError("Content-Length not uint")
			}
			if contentLength >= 0 && contentLength != n {
				return nil, 0, newParseError("conflicting Content-Length headers")
			}
			contentLength = n
		}
		if strings.EqualFold(nameStr, "Transfer-Encoding") {
			sawTransferEncoding = true
			if !strings.EqualFold(strings.TrimSpace(valueStr), "identity") {
				return nil, 0, newParseError("unsupported Transfer-Encoding")
			}
		}
		if strings.EqualFold(nameStr, "Connection") {
			switch strings.ToLower(strings.TrimSpace(valueStr)) {
			case "close":
				sawConnectionClose = true
			case "keep-alive":
				sawConnectionKeepAlive = true
			}
		}

		if lf+1 > MaxHeaderBytes {
			return nil, 0, newParseError("header block too large")
		}

		crs = lf + 1
	}

	_ = sawTransferEncoding

	if contentLength < 0 {
		contentLength = 0
	}
	if contentLength > MaxBodyBytes {
		return nil, 0, newParseError("Content-Length too large")
	}

	if crs+int(contentLength) > len(raw) {
		return nil, 0, ErrIncomplete
	}

	body := raw[crs : crs+int(contentLength)]
	crs += int(contentLength)

	method := strings.ToUpper(string(methodRaw))
	target := string(targetRaw)
	path := target
	rawQuery := ""
	hasQuery := false
	if i := strings.IndexByte(target, '?'); i != -1 {
		path = target[:i]
		rawQuery = target[i+1:]
		hasQuery = true
	}

	keepAlive := true
	if bytes.Equal(protoRaw, []byte("HTTP/1.0")) {
		keepAlive = sawConnectionKeepAlive
	} else if sawConnectionClose {
		keepAlive = false
	}

	req := &Request{
		Method:        method,
		Target:        target,
		Path:          path,
		RawQuery:      rawQuery,
		HasQuery:      hasQuery,
		Headers:       headers,
		ContentLength: contentLength,
		Body:          append([]byte(nil), body...),
		KeepAlive:     keepAlive,
	}
	return req, crs, nil
}
