package trace

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	ctx := New()
	require.Len(t, ctx.TraceID, 32)
	require.Len(t, ctx.SpanID, 16)
	require.Empty(t, ctx.ParentID)
}

func TestFromHeader_absent(t *testing.T) {
	ctx := FromHeader("", false)
	require.Len(t, ctx.TraceID, 32)
	require.Empty(t, ctx.ParentID)
}

func TestFromHeader_wellFormed(t *testing.T) {
	const tp = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	ctx := FromHeader(tp, true)
	require.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", ctx.TraceID)
	require.Equal(t, "00f067aa0ba902b7", ctx.ParentID)
	require.Len(t, ctx.SpanID, 16)
	require.NotEqual(t, ctx.ParentID, ctx.SpanID)
}

func TestFromHeader_malformedIsIgnored(t *testing.T) {
	cases := []string{
		"garbage",
		"01-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
		"00-short-00f067aa0ba902b7-01",
		"00-00000000000000000000000000000000-00f067aa0ba902b7-01",
	}
	for _, c := range cases {
		ctx := FromHeader(c, true)
		require.Len(t, ctx.TraceID, 32)
		require.Empty(t, ctx.ParentID)
	}
}
