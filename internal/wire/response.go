package wire

import (
	"bytes"
	"strconv"
)

// reasonTable gives the default reason phrase for well-known status codes,
// used only when the application didn't supply its own.
var reasonTable = map[int]string{
	100: "Continue",
	101: "Switching Protocols",
	200: "OK",
	201: "Created",
	202: "Accepted",
	204: "No Content",
	301: "Moved Permanently",
	302: "Found",
	304: "Not Modified",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	408: "Request Timeout",
	413: "Payload Too Large",
	500: "Internal Server Error",
	501: "Not Implemented",
	502: "Bad Gateway",
	503: "Service Unavailable",
	504: "Gateway Timeout",
}

// Response is an HTTP/1.1 response the codec serializes onto the wire.
// Headers is the application's own header list in the order it was built;
// Casket's injected headers (Server, X-TraceId, Connection, X-Error) are
// appended separately by the caller via Inject, always last.
type Response struct {
	StatusCode int
	Reason     string
	Headers    Headers
	Body       []byte
}

// NewResponse builds a Response defaulting the reason phrase from the
// status table when reason is empty. code is used exactly as given,
// even for a code the table doesn't know about: a WSGI callable is free
// to return any status it likes.
func NewResponse(code int, reason string) *Response {
	if reason == "" {
		reason = reasonTable[code]
	}
	return &Response{StatusCode: code, Reason: reason}
}

// AddHeader appends an application header, preserving insertion order.
func (r *Response) AddHeader(name, value string) {
	r.Headers.Add(name, value)
}

var (
	crlf  = []byte("\r\n")
	colon = []byte(": ")
	sp    = []byte(" ")
	proto = []byte("HTTP/1.1 ")
)

// Encode serializes the status line, headers in insertion order, a blank
// line, and the body into a single buffer, writing into dst if it has
// enough capacity and allocating a fresh buffer otherwise.
func (r *Response) Encode(dst []byte) []byte {
	buf := bytes.NewBuffer(dst[:0])
	buf.Write(proto)
	buf.WriteString(strconv.Itoa(r.StatusCode))
	buf.Write(sp)
	buf.WriteString(r.Reason)
	buf.Write(crlf)

	for _, f := range r.Headers.Fields() {
		buf.WriteString(f.Name)
		buf.Write(colon)
		buf.WriteString(f.Value)
		buf.Write(crlf)
	}

	buf.Write(crlf)
	if len(r.Body) > 0 {
		buf.Write(r.Body)
	}
	return buf.Bytes()
}
