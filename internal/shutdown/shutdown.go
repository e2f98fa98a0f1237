// Package shutdown implements the SIGINT drain protocol: on the first
// interrupt, stop accepting new connections, let in-flight work finish
// up to a bounded grace period, then force-exit; a second interrupt
// before the grace period elapses exits immediately with 130.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flickpp/casket/internal/casketlog"
)

// Drainable is anything the coordinator must stop and wait for. The
// connection manager and the dispatch pool both satisfy it.
type Drainable interface {
	// StopAccepting rejects new work immediately.
	StopAccepting() error
	// Wait blocks until all work admitted before StopAccepting finishes.
	Wait()
}

// Coordinator installs a single SIGINT handler and runs the drain
// protocol once triggered. It is the one place signal.Notify is called;
// its channel is the only mutable state it carries.
type Coordinator struct {
	log        casketlog.Logger
	ctrlCWait  time.Duration
	drainables []Drainable
	killAll    func()

	sigs chan os.Signal
}

// New builds a Coordinator that will drain every given Drainable, in
// order, when triggered. killAll, if non-nil, is invoked once the grace
// period expires with work still outstanding, to SIGKILL any surviving
// worker processes before the process exits.
func New(log casketlog.Logger, ctrlCWait time.Duration, killAll func(), drainables ...Drainable) *Coordinator {
	return &Coordinator{
		log:        log,
		ctrlCWait:  ctrlCWait,
		drainables: drainables,
		killAll:    killAll,
		sigs:       make(chan os.Signal, 2),
	}
}

// ExitCode is returned by Run once the process should terminate.
type ExitCode int

const (
	ExitNormal       ExitCode = 0
	ExitDoubleSignal ExitCode = 130
)

// Run installs the SIGINT handler and blocks until a shutdown sequence
// completes, returning the process exit code to use.
func (c *Coordinator) Run() ExitCode {
	signal.Notify(c.sigs, syscall.SIGINT)
	defer signal.Stop(c.sigs)

	<-c.sigs
	c.log.Info("received SIGINT, draining", nil)

	for _, d := range c.drainables {
		if err := d.StopAccepting(); err != nil {
			c.log.ErrorErr("stop accepting failed", err.Error(), nil)
		}
	}

	done := make(chan struct{})
	go func() {
		for _, d := range c.drainables {
			d.Wait()
		}
		close(done)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), c.ctrlCWait)
	defer cancel()

	select {
	case <-done:
		c.log.Info("drain complete, exiting", nil)
		return ExitNormal
	case <-c.sigs:
		c.log.Info("second SIGINT received, forcing exit", nil)
		return ExitDoubleSignal
	case <-ctx.Done():
		c.log.Warn("drain grace period expired, forcing exit", nil)
		if c.killAll != nil {
			c.killAll()
		}
		return ExitNormal
	}
}
