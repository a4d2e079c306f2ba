// Package eventbus provides an in-process asynchronous event bus. The engine
// publishes alert and action lifecycle events; subscribers such as the
// notification dispatcher consume them on worker goroutines, outside the unit
// of work that produced them.
package eventbus

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Event is a domain event flowing through the bus.
type Event interface {
	Type() string
	Domain() string
	Payload() any
	Timestamp() time.Time
}

type SubscriptionID string

type EventHandler func(event Event)

type EventFilter func(event Event) bool

type Bus struct {
	mu          sync.RWMutex
	subscribers map[SubscriptionID]*subscription
	eventChan   chan Event
	workerCount int
	wg          sync.WaitGroup
	closed      bool
}

type subscription struct {
	id      SubscriptionID
	handler EventHandler
	filters []EventFilter
}

type config struct {
	bufferSize  int
	workerCount int
}

type Option func(*config)

func WithBufferSize(size int) Option {
	return func(c *config) {
		if size > 0 {
			c.bufferSize = size
		}
	}
}

func WithWorkerCount(count int) Option {
	return func(c *config) {
		if count > 0 {
			c.workerCount = count
		}
	}
}

func New(opts ...Option) *Bus {
	cfg := &config{
		bufferSize:  1000,
		workerCount: 4,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	bus := &Bus{
		subscribers: make(map[SubscriptionID]*subscription),
		eventChan:   make(chan Event, cfg.bufferSize),
		workerCount: cfg.workerCount,
	}

	for i := 0; i < bus.workerCount; i++ {
		bus.wg.Add(1)
		go bus.worker()
	}

	return bus
}

// Publish enqueues an event for asynchronous delivery. When the buffer is
// full the event is dropped with an error rather than blocking the caller.
func (b *Bus) Publish(event Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}

	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return fmt.Errorf("event bus is closed")
	}

	select {
	case b.eventChan <- event:
		return nil
	default:
		return fmt.Errorf("event bus buffer full, dropping %s", event.Type())
	}
}

func (b *Bus) Subscribe(handler EventHandler, filters ...EventFilter) (SubscriptionID, error) {
	if handler == nil {
		return "", fmt.Errorf("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return "", fmt.Errorf("event bus is closed")
	}

	id := SubscriptionID(generateID())
	b.subscribers[id] = &subscription{
		id:      id,
		handler: handler,
		filters: filters,
	}
	return id, nil
}

func (b *Bus) Unsubscribe(id SubscriptionID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[id]; !exists {
		return fmt.Errorf("subscription %s not found", id)
	}
	delete(b.subscribers, id)
	return nil
}

// Close stops the workers after draining buffered events.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	close(b.eventChan)
	b.wg.Wait()
	return nil
}

func (b *Bus) worker() {
	defer b.wg.Done()

	for event := range b.eventChan {
		b.dispatch(event)
	}
}

func (b *Bus) dispatch(event Event) {
	b.mu.RLock()
	subs := make([]*subscription, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		if !matches(sub.filters, event) {
			continue
		}
		sub.handler(event)
	}
}

func matches(filters []EventFilter, event Event) bool {
	for _, f := range filters {
		if !f(event) {
			return false
		}
	}
	return true
}

// DomainFilter matches events from a single domain.
func DomainFilter(domain string) EventFilter {
	return func(event Event) bool {
		return event.Domain() == domain
	}
}

// TypeFilter matches events of a single type.
func TypeFilter(eventType string) EventFilter {
	return func(event Event) bool {
		return event.Type() == eventType
	}
}

func generateID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Basic is a plain value implementation of Event.
type Basic struct {
	EventType   string
	EventDomain string
	EventData   any
	At          time.Time
}

func NewEvent(domain, eventType string, payload any) *Basic {
	return &Basic{
		EventType:   eventType,
		EventDomain: domain,
		EventData:   payload,
		At:          time.Now(),
	}
}

func (e *Basic) Type() string         { return e.EventType }
func (e *Basic) Domain() string       { return e.EventDomain }
func (e *Basic) Payload() any         { return e.EventData }
func (e *Basic) Timestamp() time.Time { return e.At }
