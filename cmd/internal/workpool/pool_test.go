package workpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDo_RunsJob(t *testing.T) {
	p := New(2)

	ran := false
	if err := p.Do(context.Background(), func() { ran = true }); err != nil {
		t.Fatalf("Do error: %v", err)
	}
	if !ran {
		t.Fatalf("expected job to run")
	}
}

func TestDo_BoundsConcurrency(t *testing.T) {
	const size = 3
	p := New(size)

	var cur, peak atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Do(context.Background(), func() {
				n := cur.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				cur.Add(-1)
			})
		}()
	}
	wg.Wait()

	if got := peak.Load(); got > size {
		t.Fatalf("peak concurrency %d exceeds size %d", got, size)
	}
	if p.InFlight() != 0 || p.Waiting() != 0 {
		t.Fatalf("expected idle pool, in_flight=%d waiting=%d", p.InFlight(), p.Waiting())
	}
}

func TestDo_CanceledBeforeSlot(t *testing.T) {
	p := New(1)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = p.Do(context.Background(), func() {
			close(started)
			<-release
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	ran := false
	err := p.Do(ctx, func() { ran = true })
	if !errors.Is(err, context.DeadlineExceeded) || !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected not-started deadline error, got %v", err)
	}
	close(release)
	if ran {
		t.Fatalf("job must not run after its context ended")
	}
}

func TestDo_NilPoolRunsInline(t *testing.T) {
	var p *Pool

	ran := false
	if err := p.Do(context.Background(), func() { ran = true }); err != nil {
		t.Fatalf("Do error: %v", err)
	}
	if !ran {
		t.Fatalf("expected job to run")
	}
}
