package middleware

import (
	"sync"
	"time"
)

// IntervalCollector flushes a fixed window after the first event of a burst.
type IntervalCollector struct {
	mu      sync.Mutex
	events  []map[string]any
	window  time.Duration
	timer   *time.Timer
	closed  bool
	onFlush FlushFunc
}

// NewIntervalCollector creates a new IntervalCollector
func NewIntervalCollector(windowMs int, onFlush FlushFunc) *IntervalCollector {
	return &IntervalCollector{
		window:  time.Duration(windowMs) * time.Millisecond,
		onFlush: onFlush,
	}
}

// AddEvent adds an event and starts the window if it is not running.
func (c *IntervalCollector) AddEvent(event map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.events = append(c.events, event)
	if c.timer == nil {
		c.timer = time.AfterFunc(c.window, c.flush)
	}
}

func (c *IntervalCollector) flush() {
	c.mu.Lock()
	events := c.events
	c.events = nil
	c.timer = nil
	c.mu.Unlock()

	if len(events) > 0 {
		c.onFlush(events)
	}
}

// Close stops the timer and drops pending events.
func (c *IntervalCollector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.events = nil
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
