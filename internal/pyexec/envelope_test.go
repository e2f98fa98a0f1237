package pyexec

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvelope_roundTrip(t *testing.T) {
	var buf bytes.Buffer
	env := &RequestEnvelope{
		Seq:           7,
		Method:        "GET",
		Path:          "/hello",
		Headers:       map[string]string{"Host": "example.com"},
		ContentLength: 0,
		TraceID:       "4bf92f3577b34da6a3ce929d0e0e4736",
		SpanID:        "00f067aa0ba902b7",
	}
	require.NoError(t, WriteEnvelope(&buf, env))

	got, err := ReadEnvelope(bufio.NewReader(&buf))
	require.NoError(t, err)
	require.Equal(t, env.Seq, got.Seq)
	require.Equal(t, env.Method, got.Method)
	require.Equal(t, env.Path, got.Path)
	require.Equal(t, env.TraceID, got.TraceID)
}

func TestFrame_roundTrip_responseChunkAndDone(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, KindResponseChunk, &ResponseChunk{
		Seq: 3, First: true, Status: "200 Ok", Headers: [][2]string{{"X-Foo", "bar"}}, Body: []byte("hello"),
	}))
	require.NoError(t, WriteFrame(&buf, KindResponseDone, &ResponseDone{Seq: 3}))

	r := bufio.NewReader(&buf)

	f1, err := ReadFrame(r)
	require.NoError(t, err)
	require.Equal(t, KindResponseChunk, f1.Kind)
	require.Equal(t, "200 Ok", f1.Chunk.Status)
	require.Equal(t, []byte("hello"), f1.Chunk.Body)

	f2, err := ReadFrame(r)
	require.NoError(t, err)
	require.Equal(t, KindResponseDone, f2.Kind)
	require.EqualValues(t, 3, f2.Done.Seq)
}

func TestFrame_applicationError(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, KindApplicationError, &ApplicationError{
		Seq: 9, ExcType: "ZeroDivisionError: division by zero", Traceback: "Traceback...",
	}))

	f, err := ReadFrame(bufio.NewReader(&buf))
	require.NoError(t, err)
	require.Equal(t, KindApplicationError, f.Kind)
	require.Equal(t, "ZeroDivisionError: division by zero", f.AppErr.ExcType)
}
