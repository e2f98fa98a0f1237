// Package connmgr owns the network side of a single bind address: the
// listener, the global open-stream cap, and the per-connection read
// loop, state machine, and keep-alive policy. An epoll-based reactor
// would drive one fixed-size worker pool pulling ready file descriptors
// off a single epoll instance, but that design is Linux-only and couples
// session lifetime to raw syscalls. The same invariants, one mutator of
// the streams counter, a deadline that starts on first byte, a
// buffer-pooled per-connection arena, are expressed here with
// net.Listener and one goroutine per accepted connection, letting the Go
// runtime's own multiplexer play the role a hand-rolled epoll loop would.
package connmgr

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flickpp/casket/internal/casketlog"
	"github.com/flickpp/casket/internal/config"
	"github.com/flickpp/casket/internal/dispatch"
	"github.com/flickpp/casket/internal/pyexec"
	"github.com/flickpp/casket/internal/trace"
	"github.com/flickpp/casket/internal/wire"
)

// bufPool hands out reusable read buffers: a growable buffer rather than
// a fixed-size slab, since a net.Conn read loop doesn't know the
// request size in advance.
var bufPool = sync.Pool{
	New: func() any { return make([]byte, 0, 4096) },
}

// Manager is the connection manager's runtime value: the listener, the
// process-wide streams counter, and the configuration and collaborators
// every accepted connection needs.
type Manager struct {
	cfg  *config.Config
	pool *dispatch.Pool
	log  casketlog.Logger

	listener net.Listener
	streams  atomic.Int64
	connSeq  atomic.Uint64

	draining atomic.Bool
	wg       sync.WaitGroup
}

// New binds the listener and constructs a Manager ready for Serve.
func New(cfg *config.Config, pool *dispatch.Pool, log casketlog.Logger) (*Manager, error) {
	ln, err := net.Listen("tcp", cfg.BindAddr)
	if err != nil {
		return nil, err
	}
	return &Manager{cfg: cfg, pool: pool, log: log, listener: ln}, nil
}

// Addr returns the listener's bound address.
func (m *Manager) Addr() net.Addr { return m.listener.Addr() }

// Serve runs the accept loop until the listener is closed (by Shutdown
// or an accept error), dispatching each connection to its own goroutine.
// It returns once every in-flight connection goroutine it started has
// also returned, matching Shutdown's drain contract.
func (m *Manager) Serve() error {
	defer m.wg.Wait()
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			if m.draining.Load() {
				return nil
			}
			return err
		}
		m.handleAccept(conn)
	}
}

// StopAccepting closes the listener so Accept unblocks with an error;
// Serve treats that as a clean stop once draining has been requested.
// This is the first half of the shutdown coordinator's drain protocol:
// in-flight connections started before this call keep running.
func (m *Manager) StopAccepting() error {
	m.draining.Store(true)
	return m.listener.Close()
}

// Wait blocks until every connection goroutine started before
// StopAccepting has returned.
func (m *Manager) Wait() { m.wg.Wait() }

func (m *Manager) handleAccept(conn net.Conn) {
	n := m.streams.Add(1)
	if int(n) > m.cfg.MaxConnections {
		m.streams.Add(-1)
		m.log.Warn("maximum number of tcp streams exceeded", casketlog.Fields{
			"peer": conn.RemoteAddr().String(),
		})
		_ = conn.Close()
		return
	}

	seq := m.connSeq.Add(1)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.streams.Add(-1)
		defer conn.Close()
		m.serveConn(conn, seq)
	}()
}

// serveConn owns one TCP connection start-to-close: it alternates
// between reading a request and writing its response, strictly in
// arrival order, until the connection closes, times out, or either
// side asks to stop.
func (m *Manager) serveConn(conn net.Conn, connSeq uint64) {
	buf := bufPool.Get().([]byte)[:0]
	defer func() {
		bufPool.Put(buf[:0]) //nolint:staticcheck // intentional zero-length reuse
	}()

	for {
		req, attempted, ok := m.readRequest(conn, &buf, connSeq)
		if !ok {
			return
		}
		if !attempted {
			continue
		}

		keepAlive := m.handleRequest(conn, req, connSeq)
		if !keepAlive {
			return
		}
	}
}

// readRequest reads and parses exactly one request from conn, reusing
// and growing buf across calls (the leftover bytes of a pipelined next
// request, if any, stay in buf for the following call). attempted
// reports whether at least one byte was received, so the caller logs
// exactly one line per attempt; ok is false once the connection must
// close.
func (m *Manager) readRequest(conn net.Conn, buf *[]byte, connSeq uint64) (*wire.Request, bool, bool) {
	var deadlineSet bool
	attempted := len(*buf) > 0
	chunk := make([]byte, 4096)

	for {
		if req, n, err := wire.Parse(*buf); err == nil {
			*buf = (*buf)[n:]
			return req, true, true
		} else if err != wire.ErrIncomplete {
			m.respondParseError(conn, err, connSeq, attempted)
			return nil, attempted, false
		}

		if !deadlineSet {
			if attempted {
				_ = conn.SetReadDeadline(time.Now().Add(m.cfg.RequestReadTimeout))
				deadlineSet = true
			} else {
				// Idle: no read deadline until the first byte arrives.
				_ = conn.SetReadDeadline(time.Time{})
			}
		}

		n, err := conn.Read(chunk)
		if n > 0 {
			attempted = true
			*buf = append(*buf, chunk[:n]...)
			continue
		}
		if err == nil {
			continue
		}

		if ne, isTimeout := err.(net.Error); isTimeout && ne.Timeout() {
			m.log.Info("request read timeout", casketlog.Fields{"conn_seq": int64(connSeq)})
			m.writeRaw(conn, "HTTP/1.1 408 Request Timeout\r\nServer: Casket\r\nConnection: Close\r\n\r\n")
			return nil, attempted, false
		}

		// EOF or any other I/O error.
		if !attempted {
			// Nothing arrived at all: close silently, no log line.
			return nil, false, false
		}
		m.log.InfoErr("stream eof before complete header", "stream eof before complete header", casketlog.Fields{
			"conn_seq": int64(connSeq),
		})
		return nil, attempted, false
	}
}

func (m *Manager) respondParseError(conn net.Conn, err error, connSeq uint64, attempted bool) {
	tc := trace.New()
	m.log.WithTrace(tc.TraceID, tc.SpanID).InfoErr("request parse error", err.Error(), casketlog.Fields{"conn_seq": int64(connSeq)})
	resp := wire.NewResponse(400, "Bad Request")
	resp.Inject(tc.TraceID, false, "")
	m.writeResponse(conn, resp)
}

func (m *Manager) writeRaw(conn net.Conn, s string) {
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_, _ = conn.Write([]byte(s))
}

func (m *Manager) writeResponse(conn net.Conn, resp *wire.Response) {
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_, _ = conn.Write(resp.Encode(nil))
}

// handleRequest runs one parsed request through trace-context
// attachment, dispatch, response injection, and the write back to the
// client, and reports whether the connection should be kept alive.
func (m *Manager) handleRequest(conn net.Conn, req *wire.Request, connSeq uint64) bool {
	traceparent, present := req.Headers.Get("traceparent")
	tc := trace.FromHeader(traceparent, present)
	reqLog := m.log.WithTrace(tc.TraceID, tc.SpanID)

	seq := m.pool.NextSeq()
	env := pyexec.BuildEnvelope(seq, req, tc, m.cfg.ServerName, m.cfg.ServerPort)

	result := m.pool.Dispatch(context.Background(), env)

	keepAlive := req.KeepAlive && result.Outcome != dispatch.OutcomeGatewayTimeout
	result.Response.Inject(tc.TraceID, keepAlive, xErrorFor(result))

	m.writeResponse(conn, result.Response)

	if m.cfg.LogHTTPResponse {
		logResult(reqLog, req, result, connSeq)
	}

	return keepAlive
}

func xErrorFor(result *dispatch.Result) string {
	if result.Outcome == dispatch.OutcomeApplicationError {
		return result.ExcType
	}
	return ""
}

func logResult(log casketlog.Logger, req *wire.Request, result *dispatch.Result, connSeq uint64) {
	fields := casketlog.Fields{
		"method":   req.Method,
		"path":     req.Path,
		"status":   result.Response.StatusCode,
		"conn_seq": int64(connSeq),
	}
	switch result.Outcome {
	case dispatch.OutcomeSaturated:
		log.InfoErr("request handled", "worker pool saturated", fields)
	case dispatch.OutcomeGatewayTimeout:
		log.Info("request handled", fields)
	case dispatch.OutcomeApplicationError:
		log.ErrorErr("request handled", result.ExcType, fields)
	default:
		log.Info("request handled", fields)
	}
}
