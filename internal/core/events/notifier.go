// Package events provides an in-process, at-least-once notifier for
// downstream triggers (e.g. kicking off embedding after chunking). Emission
// is decoupled from the triggering operation: Emit never blocks the caller
// and never fails it. The channel-backed queue is deliberately shaped so a
// broker can replace it without touching emitters or handlers.
package events

import (
	"context"
	"log"
	"sync"
)

// Event names used across the pipeline.
const (
	DocumentChunked = "document.chunked"
	DocumentFailed  = "document.failed"
	ReportCompleted = "report.completed"
)

// Event is one emitted notification.
type Event struct {
	Name    string
	Payload map[string]string
}

// Handler processes one event. Handlers run sequentially per notifier; a
// handler error requeues the event once before it is dropped with a log line.
type Handler func(ctx context.Context, e Event) error

// Notifier dispatches events to registered handlers on a background
// goroutine.
type Notifier struct {
	mu       sync.RWMutex
	handlers map[string][]Handler

	queue chan queued
	wg    sync.WaitGroup
}

type queued struct {
	event   Event
	retried bool
}

func NewNotifier(buffer int) *Notifier {
	if buffer <= 0 {
		buffer = 256
	}
	return &Notifier{
		handlers: make(map[string][]Handler),
		queue:    make(chan queued, buffer),
	}
}

// Subscribe registers a handler for an event name. Must be called before
// Start.
func (n *Notifier) Subscribe(event string, h Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[event] = append(n.handlers[event], h)
}

// Emit enqueues the event. If the queue is full the event is dropped with a
// log line rather than blocking the emitter: notification failure must never
// fail the triggering operation.
func (n *Notifier) Emit(event string, payload map[string]string) {
	select {
	case n.queue <- queued{event: Event{Name: event, Payload: payload}}:
	default:
		log.Printf("events: queue full, dropping %s", event)
	}
}

// Start runs the dispatch loop until ctx is cancelled.
func (n *Notifier) Start(ctx context.Context) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case q := <-n.queue:
				n.dispatch(ctx, q)
			}
		}
	}()
}

// Wait blocks until the dispatch loop has exited.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) dispatch(ctx context.Context, q queued) {
	n.mu.RLock()
	hs := n.handlers[q.event.Name]
	n.mu.RUnlock()

	for _, h := range hs {
		if err := h(ctx, q.event); err != nil {
			if !q.retried {
				log.Printf("events: handler for %s failed, requeueing: %v", q.event.Name, err)
				select {
				case n.queue <- queued{event: q.event, retried: true}:
				default:
					log.Printf("events: queue full, dropping retry of %s", q.event.Name)
				}
			} else {
				log.Printf("events: handler for %s failed twice, dropping: %v", q.event.Name, err)
			}
			return
		}
	}
}
