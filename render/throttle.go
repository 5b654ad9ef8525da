// Package render turns workflow results into views and decides when to draw.
package render

import (
	"sync"
	"time"

	"github.com/richinex/aecheck/workflow"
)

// DefaultInterval is the minimum time between draws while a run is loading.
const DefaultInterval = 100 * time.Millisecond

// Clock returns the current time.
type Clock func() time.Time

// Throttle bounds how often a loading view is redrawn.
// A request is skipped only when loading, not forced, and within the interval
// of the previous draw. The first request and every non-loading request draw.
type Throttle struct {
	mu       sync.Mutex
	interval time.Duration
	now      Clock
	last     time.Time
	drawn    bool
}

// NewThrottle creates a throttle. A non-positive interval uses DefaultInterval.
func NewThrottle(interval time.Duration) *Throttle {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Throttle{interval: interval, now: time.Now}
}

// WithClock replaces the time source.
func (t *Throttle) WithClock(c Clock) *Throttle {
	t.now = c
	return t
}

// Allow reports whether a draw should happen now and, if so, records it.
func (t *Throttle) Allow(loading, force bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if loading && !force && t.drawn && now.Sub(t.last) < t.interval {
		return false
	}
	t.last = now
	t.drawn = true
	return true
}

// Renderer builds a view for every update the throttle lets through and
// hands it to draw. It implements workflow.Renderer.
type Renderer struct {
	layout   *Layout
	throttle *Throttle
	draw     func(View)
}

// NewRenderer creates a throttled renderer.
func NewRenderer(layout *Layout, throttle *Throttle, draw func(View)) *Renderer {
	return &Renderer{layout: layout, throttle: throttle, draw: draw}
}

// Request draws the update unless throttled.
func (r *Renderer) Request(u workflow.Update) {
	if !r.throttle.Allow(u.Loading, u.Force) {
		return
	}
	r.draw(r.layout.Build(u))
}

var _ workflow.Renderer = (*Renderer)(nil)
