package workerpool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_PreservesOrder(t *testing.T) {
	d := New(16, time.Second, nil, nil)

	var mu sync.Mutex
	var order []int
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, d.Submit(Task{Name: "cmd", Run: func(ctx context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}}))
	}
	d.Shutdown()

	require.Len(t, order, 100)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
	executed, failed := d.Stats()
	assert.Equal(t, int64(100), executed)
	assert.Equal(t, int64(0), failed)
}

func TestDispatcher_ReportsFailuresAndPanics(t *testing.T) {
	var mu sync.Mutex
	var names []string
	d := New(4, time.Second, nil, func(name string, err error) {
		mu.Lock()
		names = append(names, name)
		mu.Unlock()
	})

	d.Submit(Task{Name: "send", Run: func(ctx context.Context) error { return errors.New("boom") }})
	d.Submit(Task{Name: "mark_seen", Run: func(ctx context.Context) error { panic("bad") }})
	d.Submit(Task{Name: "ok", Run: func(ctx context.Context) error { return nil }})
	d.Shutdown()

	assert.Equal(t, []string{"send", "mark_seen"}, names)
	_, failed := d.Stats()
	assert.Equal(t, int64(2), failed)
}

func TestDispatcher_TaskTimeout(t *testing.T) {
	var got error
	d := New(1, 20*time.Millisecond, nil, func(name string, err error) { got = err })

	d.Submit(Task{Name: "slow", Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	d.Shutdown()

	assert.ErrorIs(t, got, context.DeadlineExceeded)
}

func TestDispatcher_SubmitAfterShutdown(t *testing.T) {
	d := New(1, time.Second, nil, nil)
	d.Shutdown()
	d.Shutdown()

	assert.False(t, d.Submit(Task{Name: "late", Run: func(ctx context.Context) error { return nil }}))
	assert.False(t, d.TrySubmit(Task{Name: "late", Run: func(ctx context.Context) error { return nil }}))
}

func TestDispatcher_TrySubmitFull(t *testing.T) {
	block := make(chan struct{})
	d := New(1, time.Second, nil, nil)
	defer d.Shutdown()

	started := make(chan struct{})
	d.Submit(Task{Name: "block", Run: func(ctx context.Context) error {
		close(started)
		<-block
		return nil
	}})
	<-started
	assert.True(t, d.TrySubmit(Task{Name: "queued", Run: func(ctx context.Context) error { return nil }}))
	assert.False(t, d.TrySubmit(Task{Name: "overflow", Run: func(ctx context.Context) error { return nil }}))
	assert.Equal(t, 1, d.Pending())
	close(block)
}
