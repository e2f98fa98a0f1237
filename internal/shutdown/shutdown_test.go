package shutdown

import (
	"bytes"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flickpp/casket/internal/casketlog"
)

type fakeDrainable struct {
	mu        sync.Mutex
	stopped   bool
	drainTime time.Duration
}

func (f *fakeDrainable) StopAccepting() error {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
	return nil
}

func (f *fakeDrainable) Wait() {
	time.Sleep(f.drainTime)
}

func TestCoordinator_normalDrain(t *testing.T) {
	d := &fakeDrainable{drainTime: 10 * time.Millisecond}
	log := casketlog.New(&bytes.Buffer{})
	c := New(log, time.Second, nil, d)

	go func() {
		time.Sleep(5 * time.Millisecond)
		_ = syscall.Kill(os.Getpid(), syscall.SIGINT)
	}()

	code := c.Run()
	require.Equal(t, ExitNormal, code)
	d.mu.Lock()
	defer d.mu.Unlock()
	require.True(t, d.stopped)
}

func TestCoordinator_gracePeriodExpiryKillsAll(t *testing.T) {
	d := &fakeDrainable{drainTime: time.Hour} // never finishes in time
	killed := false
	log := casketlog.New(&bytes.Buffer{})
	c := New(log, 20*time.Millisecond, func() { killed = true }, d)

	go func() {
		time.Sleep(5 * time.Millisecond)
		_ = syscall.Kill(os.Getpid(), syscall.SIGINT)
	}()

	code := c.Run()
	require.Equal(t, ExitNormal, code)
	require.True(t, killed)
}
