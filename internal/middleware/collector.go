// Package middleware batches bursts of events before they reach a handler, so a script can react
// to "pressed three times" instead of three separate presses.
package middleware

import "sync"

// FlushFunc receives a batch of collected events.
type FlushFunc func(events []map[string]any)

// Collector accumulates events and flushes them in batches.
type Collector interface {
	AddEvent(event map[string]any)
	Close()
}

// Options selects a collector. Count wins over WindowMs; the zero Options collects nothing.
type Options struct {
	Count    int // flush after this many events
	WindowMs int // flush this long after the first event
}

// IsZero reports whether no collection is configured.
func (o Options) IsZero() bool {
	return o.Count <= 0 && o.WindowMs <= 0
}

// New returns the collector for opts, or nil for the zero Options.
func New(opts Options, onFlush FlushFunc) Collector {
	switch {
	case opts.Count > 0:
		return NewCountCollector(opts.Count, onFlush)
	case opts.WindowMs > 0:
		return NewIntervalCollector(opts.WindowMs, onFlush)
	}
	return nil
}

// Batch merges a batch into one handler argument: the fields of the last event, "previous" from
// the first one, "count" and the raw "events".
func Batch(events []map[string]any) map[string]any {
	out := make(map[string]any)
	if len(events) == 0 {
		out["count"] = 0
		return out
	}

	for k, v := range events[len(events)-1] {
		out[k] = v
	}
	if prev, ok := events[0]["previous"]; ok {
		out["previous"] = prev
	}

	raw := make([]any, len(events))
	for i, e := range events {
		raw[i] = e
	}
	out["events"] = raw
	out["count"] = len(events)
	return out
}

// CountCollector flushes every time the target number of events has arrived.
type CountCollector struct {
	mu      sync.Mutex
	pending []map[string]any
	target  int
	closed  bool
	onFlush FlushFunc
}

// NewCountCollector flushes every count events. count below 1 is treated as 1.
func NewCountCollector(count int, onFlush FlushFunc) *CountCollector {
	if count < 1 {
		count = 1
	}
	return &CountCollector{target: count, onFlush: onFlush}
}

// AddEvent queues event. onFlush runs on the caller's goroutine once the batch is full.
func (c *CountCollector) AddEvent(event map[string]any) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.pending = append(c.pending, event)
	if len(c.pending) < c.target {
		c.mu.Unlock()
		return
	}
	batch := c.pending
	c.pending = nil
	c.mu.Unlock()

	c.onFlush(batch)
}

// Close drops pending events and ignores later ones.
func (c *CountCollector) Close() {
	c.mu.Lock()
	c.closed = true
	c.pending = nil
	c.mu.Unlock()
}
