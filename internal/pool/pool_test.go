package pool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunsSubmittedTasks(t *testing.T) {
	p := New(Config{MinWorkers: 2, MaxWorkers: 4, QueueDepth: 8}, nil)
	defer p.Close()

	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func() {
			ran.Add(1)
			wg.Done()
		}))
	}
	wg.Wait()
	assert.Equal(t, int32(20), ran.Load())
}

func TestGrowsUnderLoad(t *testing.T) {
	p := New(Config{MinWorkers: 1, MaxWorkers: 4, QueueDepth: 1, ShrinkIdle: time.Minute}, nil)
	defer p.Close()

	release := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func() {
			defer wg.Done()
			<-release
		}))
	}

	assert.Eventually(t, func() bool { return p.Size() == 4 }, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()
}

func TestShrinksWhenIdle(t *testing.T) {
	p := New(Config{MinWorkers: 1, MaxWorkers: 4, QueueDepth: 1, ShrinkIdle: 20 * time.Millisecond}, nil)
	defer p.Close()

	release := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func() {
			defer wg.Done()
			<-release
		}))
	}
	assert.Eventually(t, func() bool { return p.Size() == 4 }, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	assert.Eventually(t, func() bool { return p.Size() == 1 }, time.Second, 10*time.Millisecond)
}

func TestSubmitBlocksWhenSaturated(t *testing.T) {
	p := New(Config{MinWorkers: 1, MaxWorkers: 1, QueueDepth: 1, ShrinkIdle: time.Minute}, nil)
	defer p.Close()

	release := make(chan struct{})
	require.NoError(t, p.Submit(func() { <-release })) // occupies the worker
	require.NoError(t, p.Submit(func() {}))            // fills the queue

	submitted := make(chan struct{})
	go func() {
		_ = p.Submit(func() {})
		close(submitted)
	}()

	select {
	case <-submitted:
		t.Fatal("Submit should block while pool is saturated")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-submitted:
	case <-time.After(time.Second):
		t.Fatal("Submit should unblock once a worker frees up")
	}
}

func TestSubmitAfterClose(t *testing.T) {
	p := New(Config{MinWorkers: 1, MaxWorkers: 1, QueueDepth: 1}, nil)
	p.Close()

	assert.ErrorIs(t, p.Submit(func() {}), ErrPoolClosed)
	assert.Eventually(t, func() bool { return p.Size() == 0 }, time.Second, 5*time.Millisecond)

	// Close is idempotent.
	p.Close()
}

func TestCloseReturnsWithTaskInFlight(t *testing.T) {
	// A task can run arbitrarily long; shutdown must not wait for it.
	p := New(Config{MinWorkers: 1, MaxWorkers: 1, QueueDepth: 1, ShrinkIdle: time.Minute}, nil)

	entered := make(chan struct{})
	gate := make(chan struct{})
	require.NoError(t, p.Submit(func() {
		close(entered)
		<-gate
	}))
	<-entered

	closed := make(chan struct{})
	go func() {
		p.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on a running task")
	}

	// The pinned worker retires once its task finally returns.
	close(gate)
	assert.Eventually(t, func() bool { return p.Size() == 0 }, time.Second, 5*time.Millisecond)
}

func TestInlineServicingFromTasksChannel(t *testing.T) {
	// A caller parked on a reply must be able to drain its own queue.
	p := New(Config{MinWorkers: 1, MaxWorkers: 1, QueueDepth: 4, ShrinkIdle: time.Minute}, nil)
	defer p.Close()

	entered := make(chan struct{})
	block := make(chan struct{})
	require.NoError(t, p.Submit(func() {
		close(entered)
		<-block
	}))
	defer close(block)
	<-entered // the only worker is pinned; nothing else can take the queue

	done := make(chan struct{})
	require.NoError(t, p.Submit(func() { close(done) }))

	select {
	case task := <-p.Tasks():
		task()
	case <-time.After(time.Second):
		t.Fatal("queued task should be visible on Tasks()")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("inline-serviced task did not run")
	}
}

func TestOnResizeObservesWorkerDeltas(t *testing.T) {
	var delta atomic.Int32
	p := New(Config{MinWorkers: 1, MaxWorkers: 2, QueueDepth: 1, ShrinkIdle: time.Minute}, nil)
	p.OnResize(func(d int) { delta.Add(int32(d)) })

	release := make(chan struct{})
	require.NoError(t, p.Submit(func() { <-release }))
	require.NoError(t, p.Submit(func() { <-release }))
	assert.Eventually(t, func() bool { return delta.Load() == 1 }, time.Second, 5*time.Millisecond)

	// The initial worker predates the observer, so shutdown lands at the
	// growth delta minus both worker exits.
	close(release)
	p.Close()
	assert.Eventually(t, func() bool { return delta.Load() == -1 }, time.Second, 5*time.Millisecond)
}

func TestNormalize(t *testing.T) {
	cfg := Config{}.Normalize()
	assert.Equal(t, 1, cfg.MinWorkers)
	assert.Equal(t, 1, cfg.MaxWorkers)
	assert.Equal(t, 1, cfg.QueueDepth)
	assert.Equal(t, 30*time.Second, cfg.ShrinkIdle)

	cfg = Config{MinWorkers: 8, MaxWorkers: 2}.Normalize()
	assert.Equal(t, 8, cfg.MaxWorkers)
}
