// Package bus implements the in-process, topic-based publish/subscribe
// Message Bus described in spec §4.2: selectors of the form
// "receiver:<role>", "type:<message-type>" and the wildcard "type:*",
// per-subscriber FIFO delivery, and callback failures that are logged
// without disrupting delivery to other subscribers.
//
// Grounded on the dispatch shape of
// kadirpekel-hector/pkg/agent/workflowagent/parallel.go (goroutine per
// consumer, channel-mediated handoff, context-aware teardown) generalized
// from a one-shot fan-out to a standing pub/sub registry.
package bus

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const selectorWildcard = "type:*"

// Handle is an opaque subscription handle returned by Subscribe and
// consumed by Unsubscribe.
type Handle string

type selectorKind int

const (
	kindReceiver selectorKind = iota
	kindType
	kindWildcard
)

type subscription struct {
	handle Handle
	kind   selectorKind
	value  string // role name or message type; unused for wildcard
	ch     chan Message
}

// Bus is a concurrency-safe, in-process message bus. The zero value is not
// usable; construct with New.
type Bus struct {
	mu   sync.Mutex
	subs map[Handle]*subscription
	log  *slog.Logger

	queueCapacity int
	wg            sync.WaitGroup
}

// Option configures a Bus.
type Option func(*Bus)

// WithQueueCapacity sets the per-subscriber buffered channel capacity.
// Once a subscriber's queue is full, Publish blocks until space frees up
// (§5 backpressure). Default is 64.
func WithQueueCapacity(n int) Option {
	return func(b *Bus) { b.queueCapacity = n }
}

// WithLogger overrides the logger used for callback failures.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) { b.log = l }
}

// New constructs an empty Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:          make(map[Handle]*subscription),
		log:           slog.Default(),
		queueCapacity: 64,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

func parseSelector(selector string) (selectorKind, string, error) {
	if selector == selectorWildcard {
		return kindWildcard, "", nil
	}
	if v, ok := strings.CutPrefix(selector, "receiver:"); ok && v != "" {
		return kindReceiver, v, nil
	}
	if v, ok := strings.CutPrefix(selector, "type:"); ok && v != "" {
		return kindType, v, nil
	}
	return 0, "", fmt.Errorf("bus: invalid selector %q", selector)
}

// Subscribe registers callback for messages matching selector. callback is
// invoked on a dedicated goroutine, once per matching message, in publish
// order; a panic inside callback is recovered and logged, and does not
// affect delivery to any other subscriber.
func (b *Bus) Subscribe(selector string, callback func(Message)) (Handle, error) {
	kind, value, err := parseSelector(selector)
	if err != nil {
		return "", err
	}

	sub := &subscription{
		handle: Handle(uuid.New().String()),
		kind:   kind,
		value:  value,
		ch:     make(chan Message, b.queueCapacity),
	}

	b.mu.Lock()
	b.subs[sub.handle] = sub
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for msg := range sub.ch {
			b.dispatch(sub.handle, callback, msg)
		}
	}()

	return sub.handle, nil
}

func (b *Bus) dispatch(handle Handle, callback func(Message), msg Message) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("bus: subscriber callback panicked",
				"subscription", handle, "message_type", msg.Type, "message_id", msg.ID, "panic", r)
		}
	}()
	callback(msg)
}

// Unsubscribe removes a subscription. Messages already queued for it are
// still delivered before its worker goroutine exits.
func (b *Bus) Unsubscribe(handle Handle) {
	b.mu.Lock()
	sub, ok := b.subs[handle]
	if ok {
		delete(b.subs, handle)
	}
	b.mu.Unlock()
	if ok {
		close(sub.ch)
	}
}

// Publish delivers msg to every subscription whose selector matches it.
// Matching subscriber queues are written to while holding the bus's
// internal lock, which is what gives concurrent publishers a single,
// consistent serialization (§5): messages from different publisher
// goroutines are never interleaved into a subscriber's queue out of the
// order Publish was called in.
func (b *Bus) Publish(msg Message) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}

	b.mu.Lock()
	matched := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if matches(sub, msg) {
			matched = append(matched, sub)
		}
	}
	for _, sub := range matched {
		sub.ch <- msg
	}
	b.mu.Unlock()
}

func matches(sub *subscription, msg Message) bool {
	switch sub.kind {
	case kindWildcard:
		return true
	case kindType:
		return string(msg.Type) == sub.value
	case kindReceiver:
		return msg.Receiver == sub.value
	default:
		return false
	}
}

// Close unsubscribes everyone and waits for all subscriber goroutines to
// drain and exit. Publish must not be called concurrently with or after
// Close.
func (b *Bus) Close() {
	b.mu.Lock()
	handles := make([]Handle, 0, len(b.subs))
	for h := range b.subs {
		handles = append(handles, h)
	}
	b.mu.Unlock()

	for _, h := range handles {
		b.Unsubscribe(h)
	}
	b.wg.Wait()
}
