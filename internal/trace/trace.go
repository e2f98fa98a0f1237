// Package trace implements W3C Trace Context propagation: parsing an
// inbound traceparent header, minting fresh identifiers when absent or
// malformed, and rendering the result back onto responses and log lines.
package trace

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// Context is an immutable, read-only record of a request's trace
// identifiers. It is created once per request, before the first log line
// for that request, and lives exactly as long as the request.
type Context struct {
	TraceID  string // 32 lowercase hex chars
	SpanID   string // 16 lowercase hex chars
	ParentID string // 16 lowercase hex chars, or "" if there was none
}

// New mints a fresh trace context with no parent: a random 128-bit
// trace_id and a random 64-bit span_id.
func New() Context {
	return Context{
		TraceID: newTraceID(),
		SpanID:  newSpanID(),
	}
}

// FromHeader inspects an inbound traceparent header value (already
// extracted case-insensitively by the caller) and returns the context to
// use for the request. A well-formed header per W3C Trace Context v1
// (00-<32hex>-<16hex>-<2hex>) causes the trace_id to be adopted and its
// span_id recorded as parent_id; a fresh span_id is always minted. A
// missing or malformed header is treated identically to "absent": no
// error is surfaced to the client, the request simply gets a brand new
// trace context.
func FromHeader(traceparent string, present bool) Context {
	if !present {
		return New()
	}
	traceID, parentSpanID, ok := parseTraceparent(traceparent)
	if !ok {
		return New()
	}
	return Context{
		TraceID:  traceID,
		SpanID:   newSpanID(),
		ParentID: parentSpanID,
	}
}

// parseTraceparent validates the 00-<32hex>-<16hex>-<2hex> shape and
// returns the trace_id and parent span_id on success.
func parseTraceparent(v string) (traceID, parentSpanID string, ok bool) {
	parts := strings.Split(v, "-")
	if len(parts) != 4 {
		return "", "", false
	}
	version, tid, sid, flags := parts[0], parts[1], parts[2], parts[3]
	if version != "00" {
		return "", "", false
	}
	if !isHex(tid, 32) || !isHex(sid, 16) || !isHex(flags, 2) {
		return "", "", false
	}
	if tid == strings.Repeat("0", 32) || sid == strings.Repeat("0", 16) {
		return "", "", false
	}
	return strings.ToLower(tid), strings.ToLower(sid), true
}

func isHex(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

func newTraceID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

func newSpanID() string {
	var b [8]byte
	// crypto/rand never fails on supported platforms; a failure here
	// would mean the kernel RNG is unusable, which is unrecoverable.
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}
