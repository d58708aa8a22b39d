// Package concurrency bounds how many tasks run at once.
//
// A [Limiter] admits at most n tasks concurrently. Callers beyond that wait
// in a FIFO queue and start in the order they called [Limiter.Do]. Providers
// use one to keep per-advisory lookups from flooding an API:
//
//	lim, _ := concurrency.NewLimiter(10)
//	vuln, err := concurrency.Run(ctx, lim, func(ctx context.Context) (*Vuln, error) {
//	    return client.Fetch(ctx, id)
//	})
package concurrency

import (
	"container/list"
	"context"
	"errors"
	"sync"

	pserrors "github.com/matzehuels/pastoralist/pkg/errors"
)

// ErrCleared is returned to queued callers when [Limiter.Clear] runs.
var ErrCleared = errors.New("concurrency: queue cleared")

// Limiter runs tasks with bounded concurrency.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	active  int
	waiters *list.List // of *waiter
}

type waiter struct {
	// ready receives nil when a slot is handed over, or ErrCleared.
	ready chan error
}

// NewLimiter returns a Limiter that allows n concurrent tasks.
// n must be at least 1.
func NewLimiter(n int) (*Limiter, error) {
	if n < 1 {
		return nil, pserrors.New(pserrors.ErrCodeInvalidInput, "concurrency limit must be at least 1, got %d", n)
	}
	return &Limiter{limit: n, waiters: list.New()}, nil
}

// Do runs task once a slot is free and returns its error. The slot is
// released when task returns, whether it failed or not. If ctx is done while
// waiting, Do returns ctx.Err() without running task.
func (l *Limiter) Do(ctx context.Context, task func(context.Context) error) error {
	if err := l.acquire(ctx); err != nil {
		return err
	}
	defer l.release()
	return task(ctx)
}

// Run is [Limiter.Do] for tasks that produce a value.
func Run[T any](ctx context.Context, l *Limiter, task func(context.Context) (T, error)) (T, error) {
	var v T
	err := l.Do(ctx, func(ctx context.Context) error {
		var err error
		v, err = task(ctx)
		return err
	})
	return v, err
}

// QueueSize returns the number of callers waiting for a slot.
func (l *Limiter) QueueSize() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.waiters.Len()
}

// ActiveCount returns the number of tasks currently running.
func (l *Limiter) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Clear rejects every queued caller with [ErrCleared]. Running tasks are
// not affected.
func (l *Limiter) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for e := l.waiters.Front(); e != nil; e = e.Next() {
		e.Value.(*waiter).ready <- ErrCleared
	}
	l.waiters.Init()
}

func (l *Limiter) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	if l.active < l.limit && l.waiters.Len() == 0 {
		l.active++
		l.mu.Unlock()
		return nil
	}
	w := &waiter{ready: make(chan error, 1)}
	elem := l.waiters.PushBack(w)
	l.mu.Unlock()

	select {
	case err := <-w.ready:
		return err
	case <-ctx.Done():
		l.mu.Lock()
		select {
		case err := <-w.ready:
			// Handed a slot (or cleared) just as ctx finished.
			l.mu.Unlock()
			if err == nil {
				l.release()
			}
		default:
			l.waiters.Remove(elem)
			l.mu.Unlock()
		}
		return ctx.Err()
	}
}

// release hands the slot to the oldest waiter, or frees it.
func (l *Limiter) release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if front := l.waiters.Front(); front != nil {
		l.waiters.Remove(front)
		front.Value.(*waiter).ready <- nil
		return
	}
	l.active--
}
