// Package casketlog wraps zerolog to emit the newline-delimited JSON line
// shape the gateway's wire contract requires: a "ts" field in UTC with
// microsecond precision, a lower-cased "level", and a fixed set of six
// reserved top-level keys that a caller-supplied tag dictionary can never
// shadow.
package casketlog

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// reserved holds the six keys every log line may carry with meaning
// defined by the gateway itself; a Fields map can never override them.
var reserved = map[string]struct{}{
	"level":    {},
	"ts":       {},
	"msg":      {},
	"trace_id": {},
	"span_id":  {},
	"error":    {},
}

func init() {
	zerolog.TimestampFieldName = "ts"
	zerolog.MessageFieldName = "msg"
	zerolog.LevelFieldName = "level"
	zerolog.TimeFieldFormat = "2006-01-02T15:04:05.000000Z"
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
}

// Fields is a caller-supplied tag dictionary attached to a single log
// line. Values must be strings, booleans, or finite numbers.
type Fields map[string]any

// Logger is an immutable handle producing NDJSON lines on an underlying
// writer. The zero value is not usable; construct with New.
type Logger struct {
	z zerolog.Logger
}

// New builds a root Logger writing to w.
func New(w io.Writer) Logger {
	return Logger{z: zerolog.New(w).With().Timestamp().Logger()}
}

// WithTrace returns a derived Logger that binds trace_id and span_id as
// default fields on every subsequent line. Constructed once per request,
// before the first log line for that request is emitted.
func (l Logger) WithTrace(traceID, spanID string) Logger {
	return Logger{z: l.z.With().Str("trace_id", traceID).Str("span_id", spanID).Logger()}
}

// Info emits an info-level line.
func (l Logger) Info(msg string, fields Fields) { l.emit(l.z.Info(), msg, fields) }

// Warn emits a warn-level line.
func (l Logger) Warn(msg string, fields Fields) { l.emit(l.z.Warn(), msg, fields) }

// Error emits an error-level line.
func (l Logger) Error(msg string, fields Fields) { l.emit(l.z.Error(), msg, fields) }

// InfoErr, WarnErr and ErrorErr are the only way to set the reserved
// "error" key. Fields maps can never touch a reserved key at all.
func (l Logger) InfoErr(msg, errMsg string, fields Fields)  { l.emitErr(l.z.Info(), msg, errMsg, fields) }
func (l Logger) WarnErr(msg, errMsg string, fields Fields)  { l.emitErr(l.z.Warn(), msg, errMsg, fields) }
func (l Logger) ErrorErr(msg, errMsg string, fields Fields) { l.emitErr(l.z.Error(), msg, errMsg, fields) }

func (l Logger) emitErr(ev *zerolog.Event, msg, errMsg string, fields Fields) {
	ev.Str("error", errMsg)
	l.emit(ev, msg, fields)
}

func (l Logger) emit(ev *zerolog.Event, msg string, fields Fields) {
	for k, v := range fields {
		if _, isReserved := reserved[k]; isReserved {
			continue
		}
		switch val := v.(type) {
		case string:
			ev.Str(k, val)
		case bool:
			ev.Bool(k, val)
		case int:
			ev.Int(k, val)
		case int64:
			ev.Int64(k, val)
		case float64:
			ev.Float64(k, val)
		case error:
			ev.Str(k, val.Error())
		default:
			ev.Interface(k, val)
		}
	}
	ev.Msg(msg)
}
