package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// defaultCriticalWait bounds how long a critical event may wait for buffer space when
// DropIfFull is set.
const defaultCriticalWait = 250 * time.Millisecond

// Config controls dispatcher buffering.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull discards info and warning events when the buffer is full. Critical
	// events still wait up to CriticalWait for space.
	DropIfFull   bool
	CriticalWait time.Duration
}

// Dispatcher moves events off the request path onto one goroutine that feeds the sink.
// A nil *Dispatcher is valid and discards everything.
type Dispatcher struct {
	cfg  Config
	sink Sink

	mu     sync.RWMutex
	closed bool
	ch     chan Event
	done   chan struct{}

	dropped    atomic.Uint64
	sinkPanics atomic.Uint64
}

// NewDispatcher starts the delivery goroutine. It returns nil when cfg.Enabled is false.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.CriticalWait <= 0 {
		cfg.CriticalWait = defaultCriticalWait
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:  cfg,
		sink: sink,
		ch:   make(chan Event, cfg.BufferSize),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for event := range d.ch {
		d.deliver(event)
	}
}

// deliver isolates the dispatcher from a panicking sink; the event is lost and counted.
func (d *Dispatcher) deliver(event Event) {
	defer func() {
		if recover() != nil {
			d.sinkPanics.Add(1)
		}
	}()
	d.sink.Emit(context.Background(), event)
}

// Emit queues event. With DropIfFull it never blocks for non-critical events; otherwise
// it waits for buffer space until ctx is done. Events emitted after Close are discarded.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	select {
	case d.ch <- event:
		return
	default:
	}

	if d.cfg.DropIfFull {
		if event.Severity != SeverityCritical {
			d.dropped.Add(1)
			return
		}
		timer := time.NewTimer(d.cfg.CriticalWait)
		defer timer.Stop()
		select {
		case d.ch <- event:
		case <-timer.C:
			d.dropped.Add(1)
		case <-ctx.Done():
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	}
}

// Close stops accepting events and waits until every queued event has been delivered.
// It is safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}

	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.ch)
	}
	d.mu.Unlock()

	<-d.done
}

// Dropped reports events discarded because the buffer was full or the caller gave up.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// SinkPanics reports events lost to a panicking sink.
func (d *Dispatcher) SinkPanics() uint64 {
	if d == nil {
		return 0
	}
	return d.sinkPanics.Load()
}

// Pending reports events queued but not yet handed to the sink.
func (d *Dispatcher) Pending() int {
	if d == nil {
		return 0
	}
	return len(d.ch)
}
