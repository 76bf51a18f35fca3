package eventloop

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	customlog "github.com/open-teleop/simview/pkg/log"
)

func TestTasksRunInPostOrder(t *testing.T) {
	l := New("test", 4, customlog.Discard())
	l.Start()
	defer l.Stop()

	var (
		mu    sync.Mutex
		order []int
	)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		i := i
		wg.Add(1)
		require.NoError(t, l.Post(func() {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}
	wg.Wait()

	require.Len(t, order, 100)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestDoWaitsForCompletion(t *testing.T) {
	l := New("test", 1, customlog.Discard())
	l.Start()
	defer l.Stop()

	value := 0
	require.NoError(t, l.Do(context.Background(), func() { value = 42 }))
	assert.Equal(t, 42, value)
}

func TestDoHonorsContext(t *testing.T) {
	l := New("test", 1, customlog.Discard())
	l.Start()
	defer l.Stop()

	release := make(chan struct{})
	require.NoError(t, l.Post(func() { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Do(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestStopDrainsQueuedTasks(t *testing.T) {
	l := New("test", 8, customlog.Discard())
	l.Start()

	count := 0
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Post(func() { count++ }))
	}
	l.Stop()
	l.Stop()

	assert.Equal(t, 5, count)
	assert.ErrorIs(t, l.Post(func() {}), ErrLoopStopped)
	assert.ErrorIs(t, l.Do(context.Background(), func() {}), ErrLoopStopped)
	assert.Equal(t, int64(5), l.GetMetrics().ProcessedCount)
}

func TestPanickingTaskDoesNotStopLoop(t *testing.T) {
	l := New("test", 2, customlog.Discard())
	l.Start()
	defer l.Stop()

	require.NoError(t, l.Do(context.Background(), func() { panic("boom") }))
	ran := false
	require.NoError(t, l.Do(context.Background(), func() { ran = true }))
	assert.True(t, ran)
	assert.Equal(t, int64(1), l.GetMetrics().PanicCount)
}

func TestPostBeforeStart(t *testing.T) {
	l := New("test", 1, customlog.Discard())
	assert.ErrorIs(t, l.Post(func() {}), ErrLoopStopped)
}

func TestPostBlocksWhileQueueFull(t *testing.T) {
	l := New("test", 1, customlog.Discard())
	l.Start()
	defer l.Stop()

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, l.Post(func() {
		close(started)
		<-release
	}))
	<-started
	require.NoError(t, l.Post(func() {}))

	posted := make(chan error, 1)
	go func() { posted <- l.Post(func() {}) }()
	select {
	case <-posted:
		t.Fatal("Post returned while the queue was full")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-posted:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Post still blocked after the queue drained")
	}
}

func TestStopLogsMetrics(t *testing.T) {
	var buf bytes.Buffer
	l := New("metrics", 4, customlog.NewWriterLogger("info", &buf))
	l.Start()
	require.NoError(t, l.Do(context.Background(), func() {}))
	assert.NotContains(t, buf.String(), "event loop metrics")

	l.Stop()
	assert.Contains(t, buf.String(), "metrics event loop metrics: processed=1")
}
