package wire

import (
	"errors"
	"testing"
)

func Test_Inject_keepAlive(t *testing.T) {
	resp := NewResponse(200, "OK")
	resp.Inject("a"+"b", true, "")

	if v, ok := resp.Headers.Get("Connection"); !ok || v != "Keep-Alive" {
		t.Errorf("Connection = %q, %v", v, ok)
	}
	if v, ok := resp.Headers.Get("Server"); !ok || v != "Casket" {
		t.Errorf("Server = %q, %v", v, ok)
	}
	if _, ok := resp.Headers.Get("X-Error"); ok {
		t.Error("X-Error should be absent without an error short string")
	}
}

func Test_Inject_closeAndError(t *testing.T) {
	resp := NewResponse(500, "Internal Server Error")
	resp.Inject("deadbeef", false, "division by zero")

	if v, _ := resp.Headers.Get("Connection"); v != "Close" {
		t.Errorf("Connection = %q", v)
	}
	if v, _ := resp.Headers.Get("X-Error"); v != "division by zero" {
		t.Errorf("X-Error = %q", v)
	}
}

func Test_EnsureContentLength(t *testing.T) {
	resp := NewResponse(200, "OK")
	resp.Body = []byte("hello")
	resp.EnsureContentLength()

	if v, ok := resp.Headers.Get("Content-Length"); !ok || v != "5" {
		t.Errorf("Content-Length = %q, %v", v, ok)
	}
}

func Test_EnsureContentLength_respectsExisting(t *testing.T) {
	resp := NewResponse(200, "OK")
	resp.AddHeader("Content-Length", "999")
	resp.Body = []byte("hello")
	resp.EnsureContentLength()

	if v, _ := resp.Headers.Get("Content-Length"); v != "999" {
		t.Errorf("Content-Length = %q, want unchanged", v)
	}
}

func Test_Parse_bodyTooLargeRejectedWithoutReading(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nContent-Length: 999999999999\r\n\r\n"
	_, _, err := Parse([]byte(raw))
	var pe *ParseError
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
}
