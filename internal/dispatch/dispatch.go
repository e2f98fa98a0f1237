package dispatch

import (
	"context"
	"strconv"
	"strings"

	"github.com/flickpp/casket/internal/pyexec"
	"github.com/flickpp/casket/internal/wire"
)

// Dispatch hands one envelope to the least-loaded worker with spare
// queue capacity, waits for its response frames (or the gateway timeout,
// whichever comes first), and returns the Result the connection manager
// writes to the client. Dispatch never blocks past gatewayTimeout: on
// expiry it returns immediately and leaves the worker's goroutine
// draining the eventual ResponseDone/ApplicationError into the void,
// so an abandoned call never interrupts the worker's own interpreter
// state.
func (p *Pool) Dispatch(ctx context.Context, env *pyexec.RequestEnvelope) *Result {
	w := p.acquire()
	if w == nil {
		return &Result{
			Response: errorResponse(503, "Service Busy"),
			Outcome:  OutcomeSaturated,
		}
	}

	frames, err := w.Executor.Submit(env)
	if err != nil {
		p.release(w)
		go p.Respawn(w)
		return &Result{
			Response: errorResponse(500, "Internal Server Error"),
			Outcome:  OutcomeIPCFailure,
		}
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, p.gatewayTimeout)
	defer cancel()

	resp, outcome, excType := p.collect(timeoutCtx, frames, w)
	return &Result{Response: resp, Outcome: outcome, ExcType: excType}
}

// collect drains frames for one request, assembling the response body
// from ResponseChunk frames until ResponseDone, ApplicationError, or the
// context's deadline fires.
func (p *Pool) collect(ctx context.Context, frames <-chan *pyexec.Frame, w *Worker) (*wire.Response, Outcome, string) {
	var resp *wire.Response
	var body []byte

	for {
		select {
		case <-ctx.Done():
			// Nothing is freed here: the worker stays charged against
			// the pool until its ResponseDone eventually arrives, which
			// drain discards before releasing the slot.
			go p.drain(frames, w)
			return errorResponse(504, "Gateway Timeout"), OutcomeGatewayTimeout, ""

		case f, ok := <-frames:
			if !ok {
				p.release(w)
				if resp == nil {
					return errorResponse(500, "Internal Server Error"), OutcomeIPCFailure, ""
				}
				resp.Body = body
				resp.EnsureContentLength()
				return resp, OutcomeOK, ""
			}

			switch f.Kind {
			case pyexec.KindResponseChunk:
				if f.Chunk.First {
					resp = statusResponse(f.Chunk.Status, f.Chunk.Headers)
				}
				body = append(body, f.Chunk.Body...)

			case pyexec.KindResponseDone:
				p.release(w)
				if resp == nil {
					return errorResponse(500, "Internal Server Error"), OutcomeApplicationError, "empty response"
				}
				resp.Body = body
				resp.EnsureContentLength()
				return resp, OutcomeOK, ""

			case pyexec.KindApplicationError:
				p.release(w)
				short := shortExcString(f.AppErr.ExcType)
				r := errorResponse(500, "Internal Server Error")
				if p.returnStacktrace {
					r.AddHeader("Content-Type", "text/plain; charset=UTF-8")
					r.Body = []byte(f.AppErr.Traceback)
				}
				return r, OutcomeApplicationError, short
			}
		}
	}
}

// drain absorbs a worker's eventual ResponseDone for a request the
// gateway has already abandoned to a 504, then frees its pool slot.
func (p *Pool) drain(frames <-chan *pyexec.Frame, w *Worker) {
	for range frames {
	}
	p.release(w)
}

func statusResponse(status string, headers [][2]string) *wire.Response {
	code, reason := parseStatus(status)
	r := wire.NewResponse(code, reason)
	for _, h := range headers {
		r.AddHeader(h[0], h[1])
	}
	return r
}

// parseStatus splits the WSGI status string ("200 Ok") into its numeric
// code and reason phrase.
func parseStatus(status string) (int, string) {
	parts := strings.SplitN(status, " ", 2)
	code, err := strconv.Atoi(parts[0])
	if err != nil {
		return 500, "Internal Server Error"
	}
	reason := ""
	if len(parts) == 2 {
		reason = parts[1]
	}
	return code, reason
}

func errorResponse(code int, reason string) *wire.Response {
	return wire.NewResponse(code, reason)
}

// shortExcString takes "ZeroDivisionError: division by zero" style input
// and returns the message half, for the X-Error response header;
// falls back to the whole string if there's no ": " separator.
func shortExcString(excType string) string {
	if i := strings.Index(excType, ": "); i >= 0 {
		return excType[i+2:]
	}
	return excType
}
