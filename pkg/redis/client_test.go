package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewClientAndHealth(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	c, err := NewClient(ctx, Options{Addr: mr.Addr()}, zap.NewNop())
	require.NoError(t, err)
	defer c.Close()
	assert.True(t, c.Healthy(ctx))

	mr.Close()
	assert.False(t, c.Healthy(ctx))
}

func TestNewClientUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err := NewClient(context.Background(), Options{Addr: addr}, zap.NewNop())
	assert.Error(t, err)
}
