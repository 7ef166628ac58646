package mail

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingSender struct {
	mu    sync.Mutex
	sent  []Notice
	err   error
	block chan struct{}
}

func (s *recordingSender) SendActivation(ctx context.Context, n Notice) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, n)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type countingObserver struct {
	mu sync.Mutex
	m  map[string]int
}

func (o *countingObserver) ObserveDelivery(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.m == nil {
		o.m = map[string]int{}
	}
	o.m[outcome]++
}

func (o *countingObserver) get(outcome string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.m[outcome]
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestActivationLink(t *testing.T) {
	got := ActivationLink("https://pastr.example/", "3b8f0c1e-0000-4000-8000-000000000001")
	want := "https://pastr.example/register/activate/3b8f0c1e-0000-4000-8000-000000000001"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestRenderActivation_EscapesHandle(t *testing.T) {
	body, err := renderActivation(Notice{Handle: "<script>x</script>", Link: "https://pastr.example/register/activate/id"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if bytes.Contains(body, []byte("<script>")) {
		t.Fatalf("handle not escaped: %s", body)
	}
	if !bytes.Contains(body, []byte("https://pastr.example/register/activate/id")) {
		t.Fatalf("link missing: %s", body)
	}
}

func TestBuildMessage_Headers(t *testing.T) {
	s, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", From: "noreply@pastr.example", SenderName: "Pastr"})
	if err != nil {
		t.Fatalf("NewSMTPSender: %v", err)
	}
	msg := string(s.buildMessage("bob@example.com", activationSubject, []byte("<p>hi</p>")))

	for _, want := range []string{
		"To: bob@example.com\r\n",
		"From: Pastr <noreply@pastr.example>\r\n",
		"Content-Type: text/html; charset=\"utf-8\"\r\n",
		"@pastr.example>\r\n",
		"\r\n\r\n<p>hi</p>",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestNewSMTPSender_RequiresHost(t *testing.T) {
	if _, err := NewSMTPSender(SMTPConfig{From: "a@b.c"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDispatcher_DeliversAndDrains(t *testing.T) {
	sender := &recordingSender{}
	obs := &countingObserver{}
	d := NewDispatcher(DispatcherConfig{Workers: 2, QueueSize: 16}, sender, quietLogger(), obs)

	for i := 0; i < 10; i++ {
		if _, err := d.Enqueue(Notice{PrincipalID: "p", Contact: "c@example.com"}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	if sender.count() != 10 || obs.get("sent") != 10 {
		t.Fatalf("expected 10 sent, got sender=%d observed=%d", sender.count(), obs.get("sent"))
	}
	if _, err := d.Enqueue(Notice{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestDispatcher_FailureIsCountedNotPropagated(t *testing.T) {
	sender := &recordingSender{err: errors.New("smtp 451")}
	obs := &countingObserver{}
	d := NewDispatcher(DispatcherConfig{Workers: 1, QueueSize: 4}, sender, quietLogger(), obs)

	if _, err := d.Enqueue(Notice{PrincipalID: "p"}); err != nil {
		t.Fatalf("enqueue must not surface delivery errors: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if obs.get("failed") != 1 {
		t.Fatalf("expected one failed delivery, got %d", obs.get("failed"))
	}
}

func TestDispatcher_QueueFull(t *testing.T) {
	sender := &recordingSender{block: make(chan struct{})}
	obs := &countingObserver{}
	d := NewDispatcher(DispatcherConfig{Workers: 1, QueueSize: 1, Timeout: time.Second}, sender, quietLogger(), obs)

	var full bool
	for i := 0; i < 4; i++ {
		if _, err := d.Enqueue(Notice{PrincipalID: "p"}); errors.Is(err, ErrQueueFull) {
			full = true
		}
	}
	close(sender.block)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = d.Close(ctx)

	if !full || obs.get("dropped") == 0 {
		t.Fatalf("expected a queue-full drop, full=%v dropped=%d", full, obs.get("dropped"))
	}
}
