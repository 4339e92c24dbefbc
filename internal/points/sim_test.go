package points

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimClientReadWrite(t *testing.T) {
	c := NewSimClient()
	ctx := context.Background()

	require.NoError(t, c.WriteValue(ctx, "ns=2;s=Tank.Level", 42.5, "Double"))

	got, err := c.ReadValue(ctx, "ns=2;s=Tank.Level")
	require.NoError(t, err)
	assert.Equal(t, 42.5, got)
}

func TestSimClientStrictMode(t *testing.T) {
	c := NewSimClient()
	c.Strict = true
	ctx := context.Background()

	_, err := c.ReadValue(ctx, "missing")
	require.Error(t, err)

	err = c.WriteValue(ctx, "missing", 1, "")
	require.Error(t, err)

	c.Seed("present", 0)
	require.NoError(t, c.WriteValue(ctx, "present", 1, ""))
}

func TestSimClientCallMethod(t *testing.T) {
	c := NewSimClient()
	ctx := context.Background()

	c.RegisterMethod("ns=2;s=Pump", "Start", func(ctx context.Context, args ...any) ([]any, error) {
		require.Len(t, args, 1)
		return []any{"started"}, nil
	})

	out, err := c.CallMethod(ctx, "ns=2;s=Pump", "Start", "fast")
	require.NoError(t, err)
	assert.Equal(t, []any{"started"}, out)

	_, err = c.CallMethod(ctx, "ns=2;s=Pump", "Stop")
	require.Error(t, err)
}

func TestSimClientHonorsContextCancellation(t *testing.T) {
	c := NewSimClient()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ReadValue(ctx, "x")
	require.Error(t, err)
	require.Error(t, c.WriteValue(ctx, "x", 1, ""))
}
