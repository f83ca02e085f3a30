package hrdesk

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// auditDispatcher delivers audit events to the sink on one goroutine.
//
// Under DropIfFull a full buffer drops session lifecycle events and counts
// them per event type. Sign-in failures and throttle decisions are never
// dropped: they wait for room until the caller's context ends.
type auditDispatcher struct {
	cfg    AuditConfig
	sink   AuditSink
	logger *slog.Logger
	ch     chan AuditEvent
	done   chan struct{}
	wg     sync.WaitGroup

	dropped atomic.Uint64
	// byType is guarded by mu. A type is logged the first time it drops.
	mu     sync.Mutex
	byType map[string]uint64

	closed    atomic.Bool
	closeOnce sync.Once
}

// newAuditDispatcher returns nil when auditing is disabled; a nil dispatcher
// accepts and discards events.
func newAuditDispatcher(cfg AuditConfig, sink AuditSink, logger *slog.Logger) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &auditDispatcher{
		cfg:    cfg,
		sink:   sink,
		logger: logger,
		ch:     make(chan AuditEvent, cfg.BufferSize),
		done:   make(chan struct{}),
		byType: make(map[string]uint64),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *auditDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.sink.Emit(context.Background(), event)
		case <-d.done:
			// Drain what was accepted before Close.
			for {
				select {
				case event := <-d.ch:
					d.sink.Emit(context.Background(), event)
				default:
					return
				}
			}
		}
	}
}

// retained reports whether events of this type must reach the sink even when
// the buffer is full.
func retained(eventType string) bool {
	switch eventType {
	case AuditSignInFailure, AuditSignInRateLimited:
		return true
	default:
		return false
	}
}

// Emit queues event. With DropIfFull a full buffer drops lifecycle events;
// otherwise, and always for retained types, Emit blocks until there is room,
// ctx ends, or the dispatcher closes.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull && !retained(event.EventType) {
		select {
		case d.ch <- event:
		case <-d.done:
		default:
			d.drop(event)
		}
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
		d.drop(event)
	case <-d.done:
	}
}

func (d *auditDispatcher) drop(event AuditEvent) {
	d.dropped.Add(1)

	d.mu.Lock()
	d.byType[event.EventType]++
	first := d.byType[event.EventType] == 1
	d.mu.Unlock()

	if first {
		d.logger.Warn("audit buffer full, dropping events", "event_type", event.EventType, "client", event.ClientID)
	}
}

// Close stops accepting events and waits for queued ones to reach the sink.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// DroppedByType returns a copy of the drop counts keyed by event type.
func (d *auditDispatcher) DroppedByType() map[string]uint64 {
	out := make(map[string]uint64)
	if d == nil {
		return out
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for t, n := range d.byType {
		out[t] = n
	}
	return out
}
