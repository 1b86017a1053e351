package sandbox

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestLoopRunsJobsInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := NewLoop(nil)
	defer l.Close()

	var (
		mu  sync.Mutex
		got []int
	)
	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		i := i
		require.True(t, l.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			if i == 19 {
				close(done)
			}
		}))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not drain")
	}
	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLoopSurvivesPanickingJob(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := NewLoop(nil)
	defer l.Close()

	ran := make(chan struct{})
	l.Post(func() { panic("component exploded") })
	l.Post(func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("loop died after a panic")
	}
}

func TestLoopHaltWaitsForRunningJob(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := NewLoop(nil)
	defer l.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	var skipped atomic.Bool

	l.Post(func() {
		close(started)
		<-release
		finished.Store(true)
	})
	l.Post(func() { skipped.Store(true) })
	<-started

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	require.NoError(t, l.Halt(context.Background()))
	assert.True(t, finished.Load(), "halt returns after the running job")
	assert.True(t, l.Halted())
	assert.False(t, l.Post(func() {}), "halted loop refuses new jobs")
	assert.Equal(t, 0, l.Pending())
	assert.False(t, skipped.Load(), "queued jobs are discarded")
}

func TestLoopHaltGivesUpOnStuckJob(t *testing.T) {
	l := NewLoop(nil)
	started := make(chan struct{})
	release := make(chan struct{})
	l.Post(func() {
		close(started)
		<-release
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := l.Halt(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	l.Close()
	<-l.Done()
}

func TestLoopCloseStopsGoroutine(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := NewLoop(nil)
	l.Close()
	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("loop goroutine did not exit")
	}
	assert.False(t, l.Post(func() {}))
}
