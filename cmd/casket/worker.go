package main

import (
	"os"

	"github.com/flickpp/casket/internal/config"
	"github.com/flickpp/casket/internal/pyexec"
)

// runWorker is the worker-process side of the re-exec: it speaks the
// envelope protocol over stdin/stdout and invokes a Callable per
// request. loadCallable resolves `target` to the user's actual Python
// entry point via the embedded-interpreter binding; that binding is
// generated tooling outside this repository, so loadCallable here
// resolves to a fixed reference Callable suitable for exercising the
// gateway end to end without it.
func runWorker(target string) int {
	cfg, err := config.Load()
	if err != nil {
		os.Exit(2)
	}

	callable, err := loadCallable(target)
	if err != nil {
		os.Exit(2)
	}

	if err := pyexec.RunWorkerLoop(os.Stdin, os.Stdout, callable, cfg.MaxRequests); err != nil {
		os.Exit(1)
	}
	return 0
}

// loadCallable resolves a module:callable target to an invokable
// Callable. The reference implementation below ignores target and
// always returns echoCallable; a real deployment replaces this function
// with one that loads `target` through the interpreter binding and
// returns a Callable that invokes it.
func loadCallable(target string) (pyexec.Callable, error) {
	_ = target
	return echoCallable, nil
}

// echoCallable is the reference Callable used when no real interpreter
// binding is wired in: it reflects the request method and path back as
// a 200 with a plain-text body, enough to exercise dispatch, streaming,
// and the wire codec end to end.
func echoCallable(env *pyexec.Environ, start pyexec.StartResponse) ([][]byte, error) {
	body := []byte(env.Method + " " + env.Path + "\n")
	start("200 OK", [][2]string{{"Content-Type", "text/plain; charset=UTF-8"}})
	return [][]byte{body}, nil
}
