// Package pyexec defines the gateway's side of the callable-executor
// contract: the WSGI environ shape, and the length-prefixed msgpack
// envelopes exchanged with a worker process over its IPC pipe. The
// worker's own interpreter and callable-invocation loop are an opaque
// collaborator; this package only frames the conversation with it.
package pyexec

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack"
)

// RequestEnvelope is gateway -> worker: a fully-buffered request plus the
// trace context and any environ extras the worker needs to construct
// WSGI's environ mapping.
type RequestEnvelope struct {
	Seq           uint64            `msgpack:"seq"`
	Method        string            `msgpack:"method"`
	Path          string            `msgpack:"path"`
	RawQuery      string            `msgpack:"raw_query"`
	HasQuery      bool              `msgpack:"has_query"`
	Headers       map[string]string `msgpack:"headers"`
	ContentType   string            `msgpack:"content_type"`
	ContentLength int64             `msgpack:"content_length"`
	HasBody       bool              `msgpack:"has_body"`
	Body          []byte            `msgpack:"body"`
	ServerName    string            `msgpack:"server_name"`
	ServerPort    int               `msgpack:"server_port"`
	TraceID       string            `msgpack:"trace_id"`
	SpanID        string            `msgpack:"span_id"`
	ParentID      string            `msgpack:"parent_id"`
}

// MsgKind tags the worker -> gateway frame union, since msgpack does not
// carry Go's type information across the wire.
type MsgKind uint8

const (
	KindResponseChunk MsgKind = iota + 1
	KindResponseDone
	KindApplicationError
	KindLogEvent
)

// ResponseChunk is worker -> gateway: the status line and headers arrive
// on the first chunk of a given Seq; subsequent chunks carry only body
// bytes, mirroring start_response firing once and yield streaming after.
type ResponseChunk struct {
	Seq     uint64   `msgpack:"seq"`
	First   bool     `msgpack:"first"`
	Status  string   `msgpack:"status,omitempty"`
	Headers [][2]string `msgpack:"headers,omitempty"`
	Body    []byte   `msgpack:"body"`
}

// ResponseDone is worker -> gateway: terminates a Seq's chunk stream.
type ResponseDone struct {
	Seq uint64 `msgpack:"seq"`
}

// ApplicationError is worker -> gateway: the callable raised. ExcType is
// a short human string (e.g. "ZeroDivisionError: division by zero");
// Traceback is the formatted stack trace, used for the optional 500 body.
type ApplicationError struct {
	Seq       uint64 `msgpack:"seq"`
	ExcType   string `msgpack:"exc_type"`
	Traceback string `msgpack:"traceback"`
}

// LogEvent is worker -> gateway: a wsgi.errors.write/writelines call,
// routed to a structured log line at error level rather than a raw
// stream write.
type LogEvent struct {
	Seq     uint64 `msgpack:"seq"`
	Message string `msgpack:"message"`
}

// Frame is the decoded, kind-tagged union of every worker -> gateway
// message; exactly one of the typed fields is non-nil.
type Frame struct {
	Kind    MsgKind
	Chunk   *ResponseChunk
	Done    *ResponseDone
	AppErr  *ApplicationError
	LogLine *LogEvent
}

// maxFrameBytes bounds a single IPC frame so a corrupt length prefix
// cannot drive an unbounded allocation.
const maxFrameBytes = 32 * 1024 * 1024

// WriteEnvelope writes a length-prefixed msgpack-encoded RequestEnvelope:
// a big-endian uint32 byte count followed by the payload.
func WriteEnvelope(w io.Writer, env *RequestEnvelope) error {
	payload, err := msgpack.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return writeFrame(w, payload)
}

// WriteFrame encodes and writes a single worker -> gateway message, tagged
// with its kind byte ahead of the msgpack payload.
func WriteFrame(w io.Writer, kind MsgKind, v any) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	buf := make([]byte, 1+len(payload))
	buf[0] = byte(kind)
	copy(buf[1:], payload)
	return writeFrame(w, buf)
}

func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) > maxFrameBytes {
		return fmt.Errorf("frame too large: %d bytes", len(payload))
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadEnvelope reads one length-prefixed RequestEnvelope from the worker
// side of the pipe.
func ReadEnvelope(r *bufio.Reader) (*RequestEnvelope, error) {
	payload, err := readFrame(r)
	if err != nil {
		return nil, err
	}
	var env RequestEnvelope
	if err := msgpack.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return &env, nil
}

// ReadFrame reads and decodes one worker -> gateway message.
func ReadFrame(r *bufio.Reader) (*Frame, error) {
	payload, err := readFrame(r)
	if err != nil {
		return nil, err
	}
	if len(payload) < 1 {
		return nil, fmt.Errorf("empty frame")
	}
	kind := MsgKind(payload[0])
	body := payload[1:]

	f := &Frame{Kind: kind}
	switch kind {
	case KindResponseChunk:
		f.Chunk = &ResponseChunk{}
		err = msgpack.Unmarshal(body, f.Chunk)
	case KindResponseDone:
		f.Done = &ResponseDone{}
		err = msgpack.Unmarshal(body, f.Done)
	case KindApplicationError:
		f.AppErr = &ApplicationError{}
		err = msgpack.Unmarshal(body, f.AppErr)
	case KindLogEvent:
		f.LogLine = &LogEvent{}
		err = msgpack.Unmarshal(body, f.LogLine)
	default:
		return nil, fmt.Errorf("unknown frame kind %d", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("unmarshal frame kind %d: %w", kind, err)
	}
	return f, nil
}

func readFrame(r *bufio.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameBytes {
		return nil, fmt.Errorf("frame too large: %d bytes", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
