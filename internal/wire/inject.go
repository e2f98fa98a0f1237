package wire

import "strconv"

// Inject appends the headers Casket always adds to a response, always
// last: Server, X-TraceId, Connection, and, on a 500, X-Error. keepAlive
// reflects the connection state the manager has decided on, which may
// differ from what the application's own headers implied.
func (r *Response) Inject(traceID string, keepAlive bool, errShort string) {
	r.AddHeader("Server", "Casket")
	r.AddHeader("X-TraceId", traceID)
	if errShort != "" {
		r.AddHeader("X-Error", errShort)
	}
	if keepAlive {
		r.AddHeader("Connection", "Keep-Alive")
	} else {
		r.AddHeader("Connection", "Close")
	}
}

// EnsureContentLength buffers-and-sets Content-Length when the
// application omitted it; Casket never emits chunked encoding.
func (r *Response) EnsureContentLength() {
	if _, ok := r.Headers.Get("Content-Length"); ok {
		return
	}
	r.AddHeader("Content-Length", strconv.Itoa(len(r.Body)))
}
