package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/listenupapp/listenup-sync/internal/id"
)

// Subscription receives events of the types it asked for. An empty type set receives all.
type Subscription struct {
	ID    string
	C     <-chan Event
	Done  <-chan struct{}
	ch    chan Event
	done  chan struct{}
	types map[EventType]bool
}

func (s *Subscription) wants(t EventType) bool {
	return len(s.types) == 0 || s.types[t]
}

// Bus fans published events out to subscribers from a single loop, so every
// subscriber sees events in publish order.
type Bus struct {
	subscribers map[string]*Subscription
	events      chan Event
	logger      *slog.Logger
	wg          sync.WaitGroup
	mu          sync.RWMutex

	shutdownMu sync.RWMutex
	shutdown   bool
}

// NewBus creates a bus with a buffered publish queue.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subscribers: make(map[string]*Subscription),
		events:      make(chan Event, 256),
		logger:      logger,
	}
}

// Start runs the broadcast loop until ctx is done. Call once, in its own goroutine.
func (b *Bus) Start(ctx context.Context) {
	b.wg.Add(1)
	defer b.wg.Done()

	b.logger.Debug("event bus starting")

	for {
		select {
		case event, ok := <-b.events:
			if !ok {
				return
			}
			b.broadcast(event)

		case <-ctx.Done():
			b.logger.Debug("event bus stopping")
			return
		}
	}
}

// Shutdown stops accepting events, drains what is queued, and closes every subscription.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.shutdownMu.Lock()
	if b.shutdown {
		b.shutdownMu.Unlock()
		return nil
	}
	b.shutdown = true
	close(b.events)
	b.shutdownMu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		for event := range b.events {
			b.broadcast(event)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		b.logger.Warn("event drain timeout, some events may be lost")
	}

	b.closeAll()
	return nil
}

// Publish queues an event. It never blocks; events are dropped when the queue is full
// or after shutdown.
func (b *Bus) Publish(event Event) {
	b.shutdownMu.RLock()
	defer b.shutdownMu.RUnlock()

	if b.shutdown {
		return
	}

	select {
	case b.events <- event:
	default:
		b.logger.Error("event queue full, dropping event", slog.String("event_type", string(event.Type)))
	}
}

// Subscribe registers a subscriber for the given types (all types when none are given).
func (b *Bus) Subscribe(types ...EventType) (*Subscription, error) {
	subID, err := id.Generate("sub")
	if err != nil {
		return nil, err
	}

	ch := make(chan Event, 64)
	done := make(chan struct{})
	sub := &Subscription{
		ID:    subID,
		C:     ch,
		Done:  done,
		ch:    ch,
		done:  done,
		types: make(map[EventType]bool, len(types)),
	}
	for _, t := range types {
		sub.types[t] = true
	}

	b.mu.Lock()
	b.subscribers[sub.ID] = sub
	b.mu.Unlock()

	return sub, nil
}

// Unsubscribe removes a subscriber and closes its channels.
func (b *Bus) Unsubscribe(subID string) {
	b.mu.Lock()
	sub, ok := b.subscribers[subID]
	if ok {
		delete(b.subscribers, subID)
	}
	b.mu.Unlock()

	if ok {
		close(sub.done)
		close(sub.ch)
	}
}

// SubscriberCount returns the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (b *Bus) broadcast(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if !sub.wants(event.Type) {
			continue
		}
		// Non-blocking send; a stuck subscriber loses events rather than stalling the bus.
		select {
		case sub.ch <- event:
		default:
			b.logger.Warn("dropped event for slow subscriber",
				slog.String("subscriber_id", sub.ID),
				slog.String("event_type", string(event.Type)))
		}
	}
}

func (b *Bus) closeAll() {
	b.mu.Lock()
	subs := b.subscribers
	b.subscribers = make(map[string]*Subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		close(sub.done)
		close(sub.ch)
	}
}
