package pyexec

import (
	"bufio"
	"fmt"
	"io"
	"runtime/debug"
	"sync"
)

// Callable is the Go-side shape of a WSGI entry point, invoked by
// RunWorkerLoop inside a worker process. Loading the user's
// `module:callable` Python target is a one-line bootstrap this type is
// the seam for; the real embedded-interpreter binding fills it in.
// RunWorkerLoop and the envelope framing around it are what this
// repository owns.
type Callable func(env *Environ, start StartResponse) (chunks [][]byte, err error)

// StartResponse mirrors PEP 3333's start_response: the application calls
// it exactly once with the status line and header list before returning
// its iterable of body chunks. The optional write-callable return value
// is not supported.
type StartResponse func(status string, headers [][2]string)

// Environ is the Go-native rendering of WSGI's environ mapping:
// everything the callable needs, reconstructed fresh per request with no
// cross-request mutable state.
type Environ struct {
	Method, Path, RawQuery string
	HasQuery                bool
	Headers                 map[string]string
	ContentType             string
	ContentLength           int64
	Body                    []byte
	ServerName              string
	ServerPort              int
	TraceID, SpanID, ParentID string

	// Errors is wsgi.errors.write/writelines: every call is routed to
	// the gateway as a log event at error level.
	Errors func(msg string)
}

// RunWorkerLoop is the worker process's side of the IPC protocol: a
// fixed-size pool of `capacity` goroutines, sized to equal the gateway's
// per-worker queue capacity, each pulling envelopes off a shared channel
// and invoking callable under a single mutex that plays the role of the
// interpreter's own global lock. It returns when in is exhausted (the
// gateway closed its end of the pipe or exited).
func RunWorkerLoop(in io.Reader, out io.Writer, callable Callable, capacity int) error {
	r := bufio.NewReader(in)
	var writeMu sync.Mutex
	var gil sync.Mutex

	envelopes := make(chan *RequestEnvelope, capacity)
	var wg sync.WaitGroup
	for i := 0; i < capacity; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for env := range envelopes {
				handleEnvelope(out, &writeMu, &gil, env, callable)
			}
		}()
	}

	for {
		env, err := ReadEnvelope(r)
		if err != nil {
			close(envelopes)
			wg.Wait()
			if err == io.EOF {
				return nil
			}
			return err
		}
		envelopes <- env
	}
}

func handleEnvelope(out io.Writer, writeMu, gil *sync.Mutex, env *RequestEnvelope, callable Callable) {
	wenv := &Environ{
		Method:        env.Method,
		Path:          env.Path,
		RawQuery:      env.RawQuery,
		HasQuery:      env.HasQuery,
		Headers:       env.Headers,
		ContentType:   env.ContentType,
		ContentLength: env.ContentLength,
		Body:          env.Body,
		ServerName:    env.ServerName,
		ServerPort:    env.ServerPort,
		TraceID:       env.TraceID,
		SpanID:        env.SpanID,
		ParentID:      env.ParentID,
		Errors: func(msg string) {
			writeMu.Lock()
			_ = WriteFrame(out, KindLogEvent, &LogEvent{Seq: env.Seq, Message: msg})
			writeMu.Unlock()
		},
	}

	var status string
	var headers [][2]string
	var startCalled bool
	start := func(s string, h [][2]string) {
		status, headers = s, h
		startCalled = true
	}

	chunks, err := invoke(gil, callable, wenv, start)

	writeMu.Lock()
	defer writeMu.Unlock()

	if err != nil {
		short := fmt.Sprintf("%T: %v", err, err)
		_ = WriteFrame(out, KindApplicationError, &ApplicationError{
			Seq:       env.Seq,
			ExcType:   short,
			Traceback: string(debug.Stack()),
		})
		return
	}
	if !startCalled {
		_ = WriteFrame(out, KindApplicationError, &ApplicationError{
			Seq:       env.Seq,
			ExcType:   "RuntimeError: start_response was never called",
			Traceback: "",
		})
		return
	}

	first := true
	for _, c := range chunks {
		_ = WriteFrame(out, KindResponseChunk, &ResponseChunk{
			Seq:     env.Seq,
			First:   first,
			Status:  status,
			Headers: headers,
			Body:    c,
		})
		first = false
		status, headers = "", nil
	}
	if first {
		// No chunks at all: still need one frame carrying the status
		// line, per PEP 3333's "empty iterable is valid".
		_ = WriteFrame(out, KindResponseChunk, &ResponseChunk{
			Seq: env.Seq, First: true, Status: status, Headers: headers,
		})
	}
	_ = WriteFrame(out, KindResponseDone, &ResponseDone{Seq: env.Seq})
}

// invoke serializes callable execution under gil (the interpreter's own
// lock) and turns a callable panic into an error, standing in for a
// Python exception propagating out of the interpreter call.
func invoke(gil *sync.Mutex, callable Callable, env *Environ, start StartResponse) (chunks [][]byte, err error) {
	gil.Lock()
	defer gil.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return callable(env, start)
}
