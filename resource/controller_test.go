package resource

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Memory(t *testing.T) {
	t.Run("tracks usage", func(t *testing.T) {
		c := NewController(Config{MemoryLimitBytes: 1 << 20})
		ctx := context.Background()

		require.NoError(t, c.AcquireMemory(ctx, 1<<19))
		assert.Equal(t, int64(1<<19), c.MemoryUsage())

		c.ReleaseMemory(1 << 19)
		assert.Equal(t, int64(0), c.MemoryUsage())
	})

	t.Run("blocks past the limit", func(t *testing.T) {
		c := NewController(Config{MemoryLimitBytes: 1024})
		ctx := context.Background()
		require.NoError(t, c.AcquireMemory(ctx, 1024))

		short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		err := c.AcquireMemory(short, 1)
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		c.ReleaseMemory(1024)
		require.NoError(t, c.AcquireMemory(ctx, 1024))
		c.ReleaseMemory(1024)
	})

	t.Run("no limit only tracks", func(t *testing.T) {
		c := NewController(Config{})
		require.NoError(t, c.AcquireMemory(context.Background(), 1<<40))
		assert.Equal(t, int64(1<<40), c.MemoryUsage())
		c.ReleaseMemory(1 << 40)
	})

	t.Run("nil controller enforces nothing", func(t *testing.T) {
		var c *Controller
		require.NoError(t, c.AcquireMemory(context.Background(), 1<<30))
		c.ReleaseMemory(1 << 30)
		assert.Equal(t, int64(0), c.MemoryUsage())
	})
}

func TestController_IO(t *testing.T) {
	t.Run("unlimited passes writer through", func(t *testing.T) {
		c := NewController(Config{})
		var buf bytes.Buffer
		w := c.ThrottleWriter(context.Background(), &buf)
		assert.Equal(t, &buf, w)
	})

	t.Run("throttled writer writes", func(t *testing.T) {
		c := NewController(Config{IOLimitBytesPerSec: 1 << 20})
		var buf bytes.Buffer
		w := c.ThrottleWriter(context.Background(), &buf)
		n, err := w.Write([]byte("save data"))
		require.NoError(t, err)
		assert.Equal(t, 9, n)
		assert.Equal(t, "save data", buf.String())
	})

	t.Run("oversized write is chunked, not rejected", func(t *testing.T) {
		c := NewController(Config{IOLimitBytesPerSec: 64})
		err := c.WaitIO(context.Background(), 65)
		require.NoError(t, err)
	})

	t.Run("canceled context stops the wait", func(t *testing.T) {
		c := NewController(Config{IOLimitBytesPerSec: 1})
		require.NoError(t, c.WaitIO(context.Background(), 1))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		err := c.WaitIO(ctx, 1)
		assert.Error(t, err)
	})
}
