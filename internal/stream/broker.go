package stream

import (
	"sync"
	"sync/atomic"

	"github.com/mahidalhan/axon/internal/eeg"
)

type subscription struct {
	id int
	h  Handler
}

// Broker delivers every published sample to each subscriber synchronously,
// in subscription order. Unsubscribe waits for an in-flight delivery, so a
// handler is never called after its unsubscribe func returns. Handlers must
// not unsubscribe from inside a delivery.
type Broker struct {
	mu     sync.RWMutex
	nextID int
	subs   []subscription
	closed bool
}

func NewBroker() *Broker {
	return &Broker{}
}

// Subscribe registers h. Subscribing to a closed broker returns a no-op
// unsubscribe and h is never called.
func (b *Broker) Subscribe(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, h: h})

	var once sync.Once
	return func() { once.Do(func() { b.remove(id) }) }
}

func (b *Broker) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers s to every current subscriber.
func (b *Broker) Publish(s eeg.Sample) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		sub.h(s)
	}
}

// Close drops every subscriber; later publishes are ignored.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = nil
}

func (b *Broker) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// pump is the bounded hand-off between a producer and the single goroutine
// that publishes to the broker. A full queue drops the incoming sample
// rather than stalling the producer.
type pump struct {
	mu      sync.RWMutex
	ch      chan eeg.Sample
	closed  bool
	done    chan struct{}
	dropped atomic.Uint64
	onDrop  func()
}

func newPump(capacity int, b *Broker, onDrop func()) *pump {
	if capacity < 1 {
		capacity = 1
	}
	p := &pump{
		ch:     make(chan eeg.Sample, capacity),
		done:   make(chan struct{}),
		onDrop: onDrop,
	}
	go func() {
		defer close(p.done)
		for s := range p.ch {
			b.Publish(s)
		}
	}()
	return p
}

// offer never blocks. It reports false when the sample was dropped.
func (p *pump) offer(s eeg.Sample) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.ch <- s:
		return true
	default:
		p.dropped.Add(1)
		if p.onDrop != nil {
			p.onDrop()
		}
		return false
	}
}

// send blocks until the sample is queued or done is closed.
func (p *pump) send(done <-chan struct{}, s eeg.Sample) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.ch <- s:
		return true
	case <-done:
		return false
	}
}

// close stops intake, lets the dispatcher drain what is queued and waits for
// it to exit.
func (p *pump) close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.ch)
	}
	p.mu.Unlock()
	<-p.done
}

func (p *pump) Dropped() uint64 { return p.dropped.Load() }
