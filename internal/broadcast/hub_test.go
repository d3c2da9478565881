package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmoreland/leasepulse/internal/logger"
	"github.com/kmoreland/leasepulse/internal/models"
)

// recordingTransport captures every delivered event; it can be configured to
// fail or to block past the delivery timeout.
type recordingTransport struct {
	mu       sync.Mutex
	received []Event
	failWith error
	block    bool
}

func (t *recordingTransport) Send(ctx context.Context, event Event) error {
	if t.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if t.failWith != nil {
		return t.failWith
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.received = append(t.received, event)
	return nil
}

func (t *recordingTransport) events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Event(nil), t.received...)
}

func testHub(t *testing.T) *Hub {
	t.Helper()
	return NewHub(100*time.Millisecond, logger.New("test"))
}

func TestHub_RegisterAndCount(t *testing.T) {
	hub := testHub(t)

	hub.Register("a", &recordingTransport{})
	hub.Register("b", &recordingTransport{})

	assert.Equal(t, 2, hub.Count())

	hub.Deregister("a")
	assert.Equal(t, 1, hub.Count())
}

func TestHub_DeregisterUnknownIsNoOp(t *testing.T) {
	hub := testHub(t)
	hub.Register("a", &recordingTransport{})

	hub.Deregister("never-registered")

	assert.Equal(t, 1, hub.Count())
}

func TestHub_BroadcastDeliversToAllObservers(t *testing.T) {
	hub := testHub(t)
	transports := make([]*recordingTransport, 5)
	for i := range transports {
		transports[i] = &recordingTransport{}
		hub.Register(fmt.Sprintf("observer-%d", i), transports[i])
	}

	event := UnitDeleted("unit-1")
	hub.Broadcast(context.Background(), event)

	for i, transport := range transports {
		received := transport.events()
		require.Lenf(t, received, 1, "observer %d", i)
		assert.Equal(t, event, received[0])
	}
}

// One failing observer must not block delivery to the healthy ones, and the
// failing observer is evicted from the membership.
func TestHub_FailedObserverIsIsolatedAndEvicted(t *testing.T) {
	hub := testHub(t)
	healthy := make([]*recordingTransport, 0, 4)
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("observer-%d", i)
		if i == 2 {
			hub.Register(id, &recordingTransport{failWith: errors.New("connection reset")})
			continue
		}
		transport := &recordingTransport{}
		healthy = append(healthy, transport)
		hub.Register(id, transport)
	}

	hub.Broadcast(context.Background(), UnitDeleted("unit-1"))

	for i, transport := range healthy {
		assert.Lenf(t, transport.events(), 1, "healthy observer %d", i)
	}
	assert.Equal(t, 4, hub.Count())
}

func TestHub_SlowObserverIsEvictedAfterTimeout(t *testing.T) {
	hub := testHub(t)
	slow := &recordingTransport{block: true}
	fast := &recordingTransport{}
	hub.Register("slow", slow)
	hub.Register("fast", fast)

	start := time.Now()
	hub.Broadcast(context.Background(), UnitDeleted("unit-1"))

	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, fast.events(), 1)
	assert.Equal(t, 1, hub.Count())
}

func TestHub_BroadcastWithNoObservers(t *testing.T) {
	hub := testHub(t)

	// Must not panic or block
	hub.Broadcast(context.Background(), UnitDeleted("unit-1"))

	assert.Equal(t, 0, hub.Count())
}

// An evicted observer receives nothing on subsequent broadcasts.
func TestHub_EvictedObserverReceivesNoFurtherEvents(t *testing.T) {
	hub := testHub(t)
	flaky := &recordingTransport{failWith: errors.New("gone")}
	hub.Register("flaky", flaky)

	hub.Broadcast(context.Background(), UnitDeleted("unit-1"))
	require.Equal(t, 0, hub.Count())

	flaky.failWith = nil
	hub.Broadcast(context.Background(), UnitDeleted("unit-2"))

	assert.Empty(t, flaky.events())
}

func TestHub_ConcurrentRegisterAndBroadcast(t *testing.T) {
	hub := testHub(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("observer-%d", i)
			hub.Register(id, &recordingTransport{})
			hub.Broadcast(context.Background(), UnitDeleted(id))
			hub.Deregister(id)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, hub.Count())
}

func TestChannelTransport_SendAndReceive(t *testing.T) {
	transport := NewChannelTransport(4)
	event := UnitUpdate(models.Unit{ID: "unit-1"})

	err := transport.Send(context.Background(), event)

	require.NoError(t, err)
	select {
	case received := <-transport.Events():
		assert.Equal(t, event, received)
	default:
		t.Fatal("expected a buffered event")
	}
}

func TestChannelTransport_SendAfterClose(t *testing.T) {
	transport := NewChannelTransport(4)
	transport.Close()
	transport.Close() // idempotent

	err := transport.Send(context.Background(), UnitDeleted("unit-1"))

	assert.ErrorIs(t, err, ErrTransportClosed)
}

func TestChannelTransport_SendHonorsContextWhenFull(t *testing.T) {
	transport := NewChannelTransport(1)
	require.NoError(t, transport.Send(context.Background(), UnitDeleted("fill")))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := transport.Send(ctx, UnitDeleted("overflow"))

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEventConstructors(t *testing.T) {
	unit := models.Unit{ID: "unit-1"}

	assert.Equal(t, Event{Type: EventUnitUpdate, Data: unit}, UnitUpdate(unit))
	assert.Equal(t, Event{Type: EventUnitDeleted, Data: DeletedPayload{ID: "unit-1"}}, UnitDeleted("unit-1"))
	assert.Equal(t, Event{Type: EventAnalyticsUpdate, Data: "payload"}, AnalyticsUpdate("payload"))
}
