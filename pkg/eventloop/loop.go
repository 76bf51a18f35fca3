// Package eventloop runs tasks one at a time, in the order they were posted.
//
// Every piece of view state is owned by a single Loop. Socket readers, tickers
// and API handlers never touch that state themselves: they post tasks.
package eventloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	customlog "github.com/open-teleop/simview/pkg/log"
)

// ErrLoopStopped is returned when posting to a loop that is not running.
var ErrLoopStopped = errors.New("eventloop: loop stopped")

// Task is a unit of work run on the loop goroutine.
type Task func()

// Loop is a single-consumer ordered task queue.
type Loop struct {
	name    string
	logger  customlog.Logger
	tasks   chan Task
	quit    chan struct{}
	done    chan struct{}
	running bool
	mu      sync.Mutex
	metrics *LoopMetrics
}

// LoopMetrics tracks metrics for a loop
type LoopMetrics struct {
	ProcessedCount    int64
	PanicCount        int64
	QueuedCount       int64
	LastProcessedTime int64
	TaskTimeAvg       int64 // in microseconds
	TaskTimeMax       int64 // in microseconds
	mu                sync.Mutex
}

// New creates a loop. queueSize bounds how many tasks may wait before Post blocks.
func New(name string, queueSize int, logger customlog.Logger) *Loop {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Loop{
		name:    name,
		logger:  logger,
		tasks:   make(chan Task, queueSize),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		metrics: &LoopMetrics{},
	}
}

// Start launches the loop goroutine. Calling Start twice has no effect.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return
	}
	select {
	case <-l.done:
		return
	default:
	}

	l.running = true
	l.logger.Debugf("Starting %s event loop", l.name)
	go l.run()
}

// Stop runs the tasks already queued, then stops the loop and waits for it.
// It is safe to call Stop more than once.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	close(l.quit)
	l.mu.Unlock()

	<-l.done
	l.logMetrics()
}

// Done is closed once the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Post queues a task, blocking while the queue is full. It must not be
// called from a task when the queue may be full.
func (l *Loop) Post(task Task) error {
	l.mu.Lock()
	running := l.running
	l.mu.Unlock()
	if !running {
		return ErrLoopStopped
	}

	select {
	case l.tasks <- task:
		l.metrics.mu.Lock()
		l.metrics.QueuedCount++
		l.metrics.mu.Unlock()
		return nil
	case <-l.quit:
		return ErrLoopStopped
	}
}

// Do posts a task and waits for it to finish. It must never be called from
// a task running on the same loop.
func (l *Loop) Do(ctx context.Context, task Task) error {
	finished := make(chan struct{})
	if err := l.Post(func() {
		defer close(finished)
		task()
	}); err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrLoopStopped
		}
	}
}

func (l *Loop) run() {
	defer close(l.done)
	l.logger.Debugf("%s event loop started", l.name)

	for {
		select {
		case task := <-l.tasks:
			l.execute(task)
		case <-l.quit:
			for {
				select {
				case task := <-l.tasks:
					l.execute(task)
				default:
					l.logger.Debugf("%s event loop stopped", l.name)
					return
				}
			}
		}
	}
}

func (l *Loop) execute(task Task) {
	start := time.Now()
	panicked := false
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicked = true
				l.logger.Errorf("Task panicked in %s event loop: %v", l.name, fmt.Sprint(r))
			}
		}()
		task()
	}()
	elapsed := time.Since(start).Microseconds()

	l.metrics.mu.Lock()
	defer l.metrics.mu.Unlock()
	l.metrics.ProcessedCount++
	l.metrics.LastProcessedTime = time.Now().UnixNano()
	if l.metrics.TaskTimeAvg == 0 {
		l.metrics.TaskTimeAvg = elapsed
	} else {
		// Simple moving average
		l.metrics.TaskTimeAvg = (l.metrics.TaskTimeAvg + elapsed) / 2
	}
	if elapsed > l.metrics.TaskTimeMax {
		l.metrics.TaskTimeMax = elapsed
	}
	if panicked {
		l.metrics.PanicCount++
	}
}

// GetMetrics returns a copy of the current metrics
func (l *Loop) GetMetrics() LoopMetrics {
	l.metrics.mu.Lock()
	defer l.metrics.mu.Unlock()

	return LoopMetrics{
		ProcessedCount:    l.metrics.ProcessedCount,
		PanicCount:        l.metrics.PanicCount,
		QueuedCount:       l.metrics.QueuedCount,
		LastProcessedTime: l.metrics.LastProcessedTime,
		TaskTimeAvg:       l.metrics.TaskTimeAvg,
		TaskTimeMax:       l.metrics.TaskTimeMax,
	}
}

func (l *Loop) logMetrics() {
	metrics := l.GetMetrics()

	l.logger.Infof("%s event loop metrics: processed=%d, panics=%d, avg_time=%dµs, max_time=%dµs",
		l.name, metrics.ProcessedCount, metrics.PanicCount,
		metrics.TaskTimeAvg, metrics.TaskTimeMax)
}
