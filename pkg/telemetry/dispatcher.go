package telemetry

import (
	"sync"
	"sync/atomic"

	"assetbridge/pkg/logger"
)

// DefaultQueueCapacity is used when NewDispatcher gets a non-positive size.
const DefaultQueueCapacity = 1024

// Dispatcher queues events and delivers them to an Observer on a background
// goroutine. Observe never blocks: when the queue is full the event is
// dropped and counted.
type Dispatcher struct {
	obs     Observer
	ch      chan Event
	done    chan struct{}
	dropped atomic.Uint64

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewDispatcher starts a dispatcher delivering to obs.
func NewDispatcher(obs Observer, capacity int) *Dispatcher {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	d := &Dispatcher{
		obs:  obs,
		ch:   make(chan Event, capacity),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for ev := range d.ch {
		d.deliver(ev)
	}
}

func (d *Dispatcher) deliver(ev Event) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("observer_panic", "id", ev.ID, "panic", p)
		}
	}()
	d.obs.Observe(ev)
}

// Observe enqueues ev. It is safe to call after Close; the event is dropped.
func (d *Dispatcher) Observe(ev Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		return
	}
	select {
	case d.ch <- ev:
	default:
		// drop if channel full to avoid blocking
		d.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Close stops accepting events and waits until queued ones are delivered.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.ch)
		d.mu.Unlock()
	})
	<-d.done
}
