package pyexec

import (
	"github.com/flickpp/casket/internal/trace"
	"github.com/flickpp/casket/internal/wire"
)

// BuildEnvelope translates a fully-parsed Request into the wire shape the
// worker needs to assemble WSGI's environ mapping. SCRIPT_NAME and
// PATH_INFO collapse to the same value here, so only Path crosses the
// wire once.
func BuildEnvelope(seq uint64, req *wire.Request, tc trace.Context, serverName string, serverPort int) *RequestEnvelope {
	headers := make(map[string]string, req.Headers.Len())
	var contentType string
	for _, f := range req.Headers.Fields() {
		headers[f.Name] = f.Value
	}
	if ct, ok := req.Headers.Get("Content-Type"); ok {
		contentType = ct
	}

	return &RequestEnvelope{
		Seq:           seq,
		Method:        req.Method,
		Path:          req.Path,
		RawQuery:      req.RawQuery,
		HasQuery:      req.HasQuery,
		Headers:       headers,
		ContentType:   contentType,
		ContentLength: req.ContentLength,
		HasBody:       req.ContentLength > 0,
		Body:          req.Body,
		ServerName:    serverName,
		ServerPort:    serverPort,
		TraceID:       tc.TraceID,
		SpanID:        tc.SpanID,
		ParentID:      tc.ParentID,
	}
}
