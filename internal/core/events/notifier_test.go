package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestEmitDeliversToSubscriber(t *testing.T) {
	n := NewNotifier(8)
	rec := &recorder{}
	n.Subscribe(DocumentChunked, rec.handle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n.Start(ctx)

	n.Emit(DocumentChunked, map[string]string{"document_id": "d1"})

	waitFor(t, func() bool { return rec.count() == 1 })
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, "d1", rec.events[0].Payload["document_id"])
}

func TestEmitNeverBlocksWhenQueueFull(t *testing.T) {
	n := NewNotifier(1) // not started: queue drains nowhere

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			n.Emit(DocumentChunked, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full queue")
	}
}

func TestFailedHandlerRetriedOnce(t *testing.T) {
	n := NewNotifier(8)

	var mu sync.Mutex
	calls := 0
	n.Subscribe(DocumentFailed, func(context.Context, Event) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n.Start(ctx)

	n.Emit(DocumentFailed, nil)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2
	})
}

func TestUnsubscribedEventIsDiscarded(t *testing.T) {
	n := NewNotifier(8)
	rec := &recorder{}
	n.Subscribe(DocumentChunked, rec.handle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n.Start(ctx)

	n.Emit(ReportCompleted, nil)
	n.Emit(DocumentChunked, nil)

	waitFor(t, func() bool { return rec.count() == 1 })
	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Equal(t, DocumentChunked, rec.events[0].Name)
}
