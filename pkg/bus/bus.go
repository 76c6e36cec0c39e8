// Package bus implements tinycrab's message bus: a single-consumer inbound
// FIFO with waiter handoff, and a fan-out outbound publish/subscribe
// mechanism keyed by channel name.
//
// The inbound side mirrors the teacher's commandqueue taskRecord pattern: a
// waiter is a one-shot channel that either receives a message directly (if
// one is already queued when it registers) or blocks until publishInbound
// hands one to it. The outbound side mirrors the event-handler map used by
// the subagent coordinator: synchronous, in registration-order fan-out with
// no buffering for late subscribers.
package bus

import "sync"

// Message is the unit of exchange on the bus.
type Message struct {
	Channel string
	ChatID  string
	Text    string
	Meta    map[string]interface{}
}

// Subscriber receives outbound messages published on its channel.
type Subscriber func(Message)

// Bus is the inbound FIFO / outbound pub-sub hub for one agent process.
type Bus struct {
	mu      sync.Mutex
	queue   []Message
	waiters []chan Message

	subMu sync.RWMutex
	subs  map[string][]Subscriber
}

// New constructs an empty bus.
func New() *Bus {
	return &Bus{
		subs: make(map[string][]Subscriber),
	}
}

// PublishInbound delivers m to the head waiter if one is registered,
// otherwise enqueues it. Exactly one waiter receives each message.
func (b *Bus) PublishInbound(m Message) {
	b.mu.Lock()
	if len(b.waiters) > 0 {
		w := b.waiters[0]
		b.waiters = b.waiters[1:]
		b.mu.Unlock()
		w <- m
		return
	}
	b.queue = append(b.queue, m)
	b.mu.Unlock()
}

// ConsumeInbound returns the head of the queue if non-empty, otherwise
// blocks until a message arrives or ctx is done. FIFO order is preserved
// among enqueued messages and among waiters.
func (b *Bus) ConsumeInbound(done <-chan struct{}) (Message, bool) {
	b.mu.Lock()
	if len(b.queue) > 0 {
		m := b.queue[0]
		b.queue = b.queue[1:]
		b.mu.Unlock()
		return m, true
	}
	w := make(chan Message, 1)
	b.waiters = append(b.waiters, w)
	b.mu.Unlock()

	select {
	case m := <-w:
		return m, true
	case <-done:
		b.removeWaiter(w)
		return Message{}, false
	}
}

func (b *Bus) removeWaiter(w chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, c := range b.waiters {
		if c == w {
			b.waiters = append(b.waiters[:i], b.waiters[i+1:]...)
			return
		}
	}
}

// PublishOutbound delivers m synchronously to every subscriber of
// m.Channel, in registration order. No subscribers means the message is
// silently dropped; it is never buffered for subscribers that register
// later. Subscribers must not block.
func (b *Bus) PublishOutbound(m Message) {
	b.subMu.RLock()
	subs := append([]Subscriber(nil), b.subs[m.Channel]...)
	b.subMu.RUnlock()

	for _, sub := range subs {
		sub(m)
	}
}

// Subscribe appends cb to the list of subscribers for channel.
func (b *Bus) Subscribe(channel string, cb Subscriber) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	b.subs[channel] = append(b.subs[channel], cb)
}

// PendingInbound reports the number of queued (undelivered) inbound
// messages; exposed for diagnostics and tests.
func (b *Bus) PendingInbound() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// PendingWaiters reports the number of registered inbound waiters.
func (b *Bus) PendingWaiters() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.waiters)
}
