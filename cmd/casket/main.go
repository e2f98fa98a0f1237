// Command casket is the gateway's CLI entry point: one positional
// argument, `module:callable`, loaded in Casket's embedded-interpreter
// worker processes. Argument parsing is deliberately thin; resolving
// module:callable into a real interpreter binding is generated tooling
// outside this repository.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/flickpp/casket/internal/casketlog"
	"github.com/flickpp/casket/internal/config"
	"github.com/flickpp/casket/internal/connmgr"
	"github.com/flickpp/casket/internal/dispatch"
	"github.com/flickpp/casket/internal/pyexec"
	"github.com/flickpp/casket/internal/shutdown"
)

// version is logged once at startup so operators can correlate deployed
// builds against incident reports.
const version = "0.1.0"

// workerModeFlag is the hidden re-exec switch: the gateway process
// spawns `os.Args[0] workerModeFlag <module:callable>` as each worker,
// the Go equivalent of forking into the same binary image.
const workerModeFlag = "--casket-worker"

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	if len(args) >= 3 && args[1] == workerModeFlag {
		return runWorker(args[2])
	}

	if len(args) != 2 || !strings.Contains(args[1], ":") {
		fmt.Fprintln(os.Stderr, "usage: casket <module>:<callable>")
		return 2
	}
	target := args[1]

	log := casketlog.New(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		log.ErrorErr("fatal startup error", err.Error(), nil)
		return 2
	}

	log.Info("starting casket", casketlog.Fields{"callable": target, "version": version})

	spawn := func() (pyexec.Executor, error) {
		ex, err := pyexec.NewProcessExecutor(context.Background(), args[0], workerModeFlag, target)
		if err != nil {
			return nil, err
		}
		go func() {
			for ev := range ex.LogEvents {
				log.ErrorErr("wsgi.errors", ev.Message, nil)
			}
		}()
		return ex, nil
	}

	pool, err := dispatch.New(cfg.NumWorkers, cfg.MaxRequests, spawn, log, cfg.PythonCodeGatewayTimeout, cfg.ReturnStacktraceInBody)
	if err != nil {
		log.ErrorErr("fatal startup error", err.Error(), nil)
		return 2
	}

	mgr, err := connmgr.New(cfg, pool, log)
	if err != nil {
		log.ErrorErr("fatal startup error", err.Error(), nil)
		return 2
	}
	log.Info("listening", casketlog.Fields{"addr": mgr.Addr().String()})

	go func() {
		if err := mgr.Serve(); err != nil {
			log.ErrorErr("listener stopped unexpectedly", err.Error(), nil)
		}
	}()

	coord := shutdown.New(log, cfg.CtrlCWaitTime, pool.KillAll, mgr, pool)
	return int(coord.Run())
}
