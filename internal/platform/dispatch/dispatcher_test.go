package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherRunsTasks(t *testing.T) {
	d := New(2, 10, time.Second, nil)

	var count atomic.Int32
	for i := 0; i < 5; i++ {
		ok := d.Submit(Task{Name: "count", Run: func(ctx context.Context) error {
			count.Add(1)
			return nil
		}})
		require.True(t, ok)
	}
	d.Submit(Task{Name: "fail", Run: func(ctx context.Context) error { return errors.New("boom") }})
	d.Submit(Task{Name: "panic", Run: func(ctx context.Context) error { panic("boom") }})

	require.NoError(t, d.Shutdown(context.Background()))
	assert.Equal(t, int32(5), count.Load())
	_, failures := d.Stats()
	assert.Equal(t, uint64(1), failures)

	assert.False(t, d.Submit(Task{Name: "late", Run: func(ctx context.Context) error { return nil }}))
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	d := New(1, 1, time.Second, nil)
	release := make(chan struct{})
	started := make(chan struct{})

	require.True(t, d.Submit(Task{Name: "block", Run: func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}}))
	<-started
	require.True(t, d.Submit(Task{Name: "queued", Run: func(ctx context.Context) error { return nil }}))

	begin := time.Now()
	assert.False(t, d.Submit(Task{Name: "dropped", Run: func(ctx context.Context) error { return nil }}))
	assert.Less(t, time.Since(begin), 100*time.Millisecond)

	close(release)
	require.NoError(t, d.Shutdown(context.Background()))
	dropped, _ := d.Stats()
	assert.Equal(t, uint64(1), dropped)
}

func TestDispatcherTaskTimeout(t *testing.T) {
	d := New(1, 1, 20*time.Millisecond, nil)
	var expired atomic.Bool
	d.Submit(Task{Name: "slow", Run: func(ctx context.Context) error {
		<-ctx.Done()
		expired.Store(true)
		return ctx.Err()
	}})
	require.NoError(t, d.Shutdown(context.Background()))
	assert.True(t, expired.Load())
}
