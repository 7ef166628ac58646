package mail

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"pastr/cmd/internal/ids"
)

var (
	// ErrQueueFull is returned by Enqueue when the buffer is full; the notice is dropped.
	ErrQueueFull = errors.New("mail: delivery queue full")
	// ErrClosed is returned by Enqueue after Close.
	ErrClosed = errors.New("mail: dispatcher closed")
)

// Observer receives delivery outcomes ("sent", "failed", "dropped").
// *metrics.Metrics satisfies it.
type Observer interface {
	ObserveDelivery(outcome string)
}

// DispatcherConfig controls buffering and concurrency.
type DispatcherConfig struct {
	Workers   int
	QueueSize int
	// Timeout bounds a single delivery attempt.
	Timeout time.Duration
}

type job struct {
	id     string
	notice Notice
}

// Dispatcher delivers notices asynchronously on a fixed set of workers.
// Enqueue never blocks the caller.
type Dispatcher struct {
	cfg    DispatcherConfig
	sender Sender
	log    *slog.Logger
	obs    Observer

	mu     sync.RWMutex
	closed bool
	ch     chan job
	wg     sync.WaitGroup
}

// NewDispatcher starts cfg.Workers delivery goroutines.
func NewDispatcher(cfg DispatcherConfig, sender Sender, log *slog.Logger, obs Observer) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if sender == nil {
		sender = NoopSender{}
	}
	if log == nil {
		log = slog.Default()
	}

	d := &Dispatcher{
		cfg:    cfg,
		sender: sender,
		log:    log,
		obs:    obs,
		ch:     make(chan job, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	return d
}

// Enqueue schedules n for delivery and returns the job id used in logs.
func (d *Dispatcher) Enqueue(n Notice) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return "", ErrClosed
	}

	j := job{id: ids.MustULID(), notice: n}
	select {
	case d.ch <- j:
		return j.id, nil
	default:
		d.observe("dropped")
		d.log.Warn("mail.activation.dropped", "job_id", j.id, "principal_id", n.PrincipalID, "reason", "queue_full")
		return "", ErrQueueFull
	}
}

// Close stops accepting notices and waits for queued ones to be delivered,
// or until ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.ch)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for j := range d.ch {
		d.deliver(j)
	}
}

func (d *Dispatcher) deliver(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
	defer cancel()

	start := time.Now()
	if err := d.sender.SendActivation(ctx, j.notice); err != nil {
		d.observe("failed")
		d.log.Error("mail.activation.send.fail",
			"err", err,
			"job_id", j.id,
			"principal_id", j.notice.PrincipalID,
		)
		return
	}
	d.observe("sent")
	d.log.Info("mail.activation.sent",
		"job_id", j.id,
		"principal_id", j.notice.PrincipalID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func (d *Dispatcher) observe(outcome string) {
	if d.obs != nil {
		d.obs.ObserveDelivery(outcome)
	}
}
