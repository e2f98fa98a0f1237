package connmgr

import (
	"bufio"
	"bytes"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flickpp/casket/internal/casketlog"
	"github.com/flickpp/casket/internal/config"
	"github.com/flickpp/casket/internal/dispatch"
	"github.com/flickpp/casket/internal/pyexec"
)

type fakeExecutor struct {
	pid      int
	dead     bool
	behavior func(env *pyexec.RequestEnvelope) <-chan *pyexec.Frame
}

func (f *fakeExecutor) Pid() int    { return f.pid }
func (f *fakeExecutor) Dead() bool  { return f.dead }
func (f *fakeExecutor) Kill() error { f.dead = true; return nil }
func (f *fakeExecutor) Wait() error { return nil }
func (f *fakeExecutor) Submit(env *pyexec.RequestEnvelope) (<-chan *pyexec.Frame, error) {
	return f.behavior(env), nil
}

func echoPool(t *testing.T) *dispatch.Pool {
	spawn := func() (pyexec.Executor, error) {
		return &fakeExecutor{pid: 1, behavior: func(env *pyexec.RequestEnvelope) <-chan *pyexec.Frame {
			ch := make(chan *pyexec.Frame, 2)
			ch <- &pyexec.Frame{Kind: pyexec.KindResponseChunk, Chunk: &pyexec.ResponseChunk{
				First:  true,
				Status: "200 Ok",
				Body:   []byte(env.Method + " " + env.Path),
			}}
			ch <- &pyexec.Frame{Kind: pyexec.KindResponseDone}
			close(ch)
			return ch
		}}, nil
	}
	p, err := dispatch.New(1, 4, spawn, casketlog.New(&bytes.Buffer{}), time.Second, true)
	require.NoError(t, err)
	return p
}

func TestManager_happyPathRoundTrip(t *testing.T) {
	cfg := &config.Config{
		BindAddr:           "127.0.0.1:0",
		MaxConnections:     8,
		RequestReadTimeout: time.Second,
		LogHTTPResponse:    true,
		ServerName:         "casket-test",
	}
	pool := echoPool(t)
	mgr, err := New(cfg, pool, casketlog.New(&bytes.Buffer{}))
	require.NoError(t, err)

	go mgr.Serve()
	defer func() {
		_ = mgr.StopAccepting()
		mgr.Wait()
	}()

	conn, err := net.Dial("tcp", mgr.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET /hello HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n"))
	require.NoError(t, err)

	r := bufio.NewReader(conn)
	statusLine, err := r.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(statusLine, "HTTP/1.1 200"))

	var headers []string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		headers = append(headers, line)
	}
	joined := strings.Join(headers, "\n")
	require.Contains(t, joined, "Server: Casket")
	require.Contains(t, joined, "X-TraceId:")
	require.Contains(t, joined, "Connection: Close")

	body := make([]byte, len("GET /hello"))
	_, err = r.Read(body)
	require.NoError(t, err)
	require.Equal(t, "GET /hello", string(body))
}

func TestManager_admissionOverflow(t *testing.T) {
	cfg := &config.Config{
		BindAddr:           "127.0.0.1:0",
		MaxConnections:     0,
		RequestReadTimeout: time.Second,
	}
	pool := echoPool(t)
	mgr, err := New(cfg, pool, casketlog.New(&bytes.Buffer{}))
	require.NoError(t, err)

	go mgr.Serve()
	defer func() {
		_ = mgr.StopAccepting()
		mgr.Wait()
	}()

	conn, err := net.Dial("tcp", mgr.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	buf := make([]byte, 1)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, err = conn.Read(buf)
	require.Error(t, err) // connection closed immediately, no bytes
}
