// Package workpool runs CPU-bound jobs (password hashing) on a bounded set of
// goroutines, separate from the request goroutines that wait on them.
package workpool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrNotStarted marks a Do failure where fn never ran; the caller still owns
// everything it meant to hand to fn.
var ErrNotStarted = errors.New("workpool: job not started")

// Pool bounds how many jobs run at once.
// A nil *Pool runs jobs inline on the caller's goroutine.
type Pool struct {
	sem      *semaphore.Weighted
	size     int64
	inFlight atomic.Int64
	waiting  atomic.Int64
}

// New returns a Pool that runs at most size jobs concurrently.
// size <= 0 falls back to runtime.NumCPU().
func New(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &Pool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: int64(size),
	}
}

// Size returns the configured concurrency limit.
func (p *Pool) Size() int {
	if p == nil {
		return 0
	}
	return int(p.size)
}

// InFlight returns the number of jobs currently running.
func (p *Pool) InFlight() int64 {
	if p == nil {
		return 0
	}
	return p.inFlight.Load()
}

// Waiting returns the number of callers blocked on a free slot.
func (p *Pool) Waiting() int64 {
	if p == nil {
		return 0
	}
	return p.waiting.Load()
}

// Do waits for a slot, runs fn on a pool goroutine and returns when fn finishes.
//
// If ctx ends before a slot is acquired, fn never runs and the returned error
// matches both ErrNotStarted and ctx.Err().
// If ctx ends while fn is running, Do returns ctx.Err() immediately; fn still
// runs to completion and its slot is released afterwards.
func (p *Pool) Do(ctx context.Context, fn func()) error {
	if p == nil {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrNotStarted, err)
		}
		fn()
		return nil
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrNotStarted, err)
	}

	p.waiting.Add(1)
	err := p.sem.Acquire(ctx, 1)
	p.waiting.Add(-1)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotStarted, err)
	}

	done := make(chan struct{})
	p.inFlight.Add(1)
	go func() {
		defer func() {
			p.inFlight.Add(-1)
			p.sem.Release(1)
			close(done)
		}()
		fn()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
