package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kmoreland/leasepulse/internal/logger"
)

// ErrTransportClosed is returned by a transport whose receiver has gone away.
var ErrTransportClosed = errors.New("transport closed")

// DefaultSendTimeout bounds a single delivery attempt so one slow observer
// cannot stall the rest of a broadcast.
const DefaultSendTimeout = 5 * time.Second

// Transport delivers events to a single observer.
type Transport interface {
	Send(ctx context.Context, event Event) error
}

// Hub maintains the live set of observers and fans out events to all of
// them. Membership mutations and broadcast iteration are serialized by a
// mutex; actual deliveries happen outside the lock against a snapshot of
// the membership, in parallel. An observer whose delivery fails or times
// out is deregistered as a side effect, so membership is self-healing
// without a separate liveness probe.
type Hub struct {
	mu          sync.Mutex
	observers   map[string]Transport
	sendTimeout time.Duration
	log         *logger.Logger
}

// NewHub creates a hub with the given per-delivery timeout. A zero timeout
// falls back to DefaultSendTimeout.
func NewHub(sendTimeout time.Duration, log *logger.Logger) *Hub {
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	return &Hub{
		observers:   make(map[string]Transport),
		sendTimeout: sendTimeout,
		log:         log,
	}
}

// Register adds an observer to the live set. The observer receives every
// event broadcast after this call; nothing is replayed.
func (h *Hub) Register(id string, transport Transport) {
	h.mu.Lock()
	h.observers[id] = transport
	count := len(h.observers)
	h.mu.Unlock()

	h.log.Info("Observer connected", map[string]interface{}{
		"observer_id": id,
		"total":       count,
	})
}

// Deregister removes an observer from the live set. It is a no-op when the
// observer is not registered.
func (h *Hub) Deregister(id string) {
	h.mu.Lock()
	_, found := h.observers[id]
	delete(h.observers, id)
	count := len(h.observers)
	h.mu.Unlock()

	if found {
		h.log.Info("Observer disconnected", map[string]interface{}{
			"observer_id": id,
			"total":       count,
		})
	}
}

// Count returns the number of currently registered observers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

// Broadcast delivers the event to every currently registered observer,
// at most once each. Deliveries are attempted independently and in
// parallel; a failure for one observer never blocks the others and never
// surfaces to the caller. Failed observers are deregistered once all
// attempts have settled.
func (h *Hub) Broadcast(ctx context.Context, event Event) {
	type target struct {
		id        string
		transport Transport
	}

	h.mu.Lock()
	targets := make([]target, 0, len(h.observers))
	for id, transport := range h.observers {
		targets = append(targets, target{id: id, transport: transport})
	}
	h.mu.Unlock()

	if len(targets) == 0 {
		return
	}

	failed := make(chan string, len(targets))
	var wg sync.WaitGroup
	for _, t := range targets {
		wg.Add(1)
		go func(t target) {
			defer wg.Done()

			sendCtx, cancel := context.WithTimeout(ctx, h.sendTimeout)
			defer cancel()

			if err := t.transport.Send(sendCtx, event); err != nil {
				h.log.Warn("Delivery failed, evicting observer", map[string]interface{}{
					"observer_id": t.id,
					"event_type":  event.Type,
					"error":       err.Error(),
				})
				failed <- t.id
			}
		}(t)
	}
	wg.Wait()
	close(failed)

	for id := range failed {
		h.Deregister(id)
	}
}

// ChannelTransport is a Transport backed by a buffered channel, consumed by
// a streaming handler. Send blocks until the buffer accepts the event, the
// transport is closed, or the context expires.
type ChannelTransport struct {
	events chan Event
	done   chan struct{}
	once   sync.Once
}

// NewChannelTransport creates a channel transport with the given buffer size.
func NewChannelTransport(buffer int) *ChannelTransport {
	return &ChannelTransport{
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
}

// Send queues the event for the consumer.
func (t *ChannelTransport) Send(ctx context.Context, event Event) error {
	select {
	case <-t.done:
		return ErrTransportClosed
	default:
	}

	select {
	case t.events <- event:
		return nil
	case <-t.done:
		return ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events exposes the consumer side of the transport.
func (t *ChannelTransport) Events() <-chan Event {
	return t.events
}

// Close marks the transport dead. Safe to call more than once.
func (t *ChannelTransport) Close() {
	t.once.Do(func() { close(t.done) })
}
