package scheduler

import (
	"context"
	"sync"
	"time"
)

// TaskFunc runs once per tick. Returning false ends the task.
type TaskFunc func(ctx context.Context) bool

// Task is a repeating job bound to a single timer. The handle is the only way
// to stop it, so whoever stores the handle owns the loop.
type Task struct {
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// StartTask runs fn every interval (first run after one interval) until fn
// returns false, parent is cancelled, or Stop is called.
func StartTask(parent context.Context, interval time.Duration, fn TaskFunc) *Task {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	t := &Task{cancel: cancel, done: make(chan struct{})}
	if fn == nil || interval <= 0 {
		cancel()
		close(t.done)
		return t
	}
	go func() {
		defer close(t.done)
		defer cancel()
		timer := time.NewTimer(interval)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
			if !fn(ctx) || ctx.Err() != nil {
				return
			}
			timer.Reset(interval)
		}
	}()
	return t
}

// Stop cancels the task and waits for an in-flight tick to return.
// It must not be called from inside the task's own TaskFunc.
func (t *Task) Stop() {
	if t == nil {
		return
	}
	t.stopOnce.Do(t.cancel)
	<-t.done
}

// Done is closed once the loop has exited.
func (t *Task) Done() <-chan struct{} {
	if t == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return t.done
}
