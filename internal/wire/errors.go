package wire

import "errors"

// ErrIncomplete signals the buffer does not yet hold a full request;
// the caller should read more bytes and retry.
var ErrIncomplete = errors.New("incomplete request")

// ParseError is a malformed-request condition that the caller should
// turn into a 400 response (or a silent close, for EOF-before-request-line).
type ParseError struct {
	Msg string
}

func (e *ParseError) Error() string { return e.Msg }

func newParseError(msg string) error { return &ParseError{Msg: msg} }
