// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package viewability decides when a rendered ad counts as viewed: enough of
// it must be on screen, and it must stay there long enough.
package viewability

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/luxfi/adsdk/pkg/dom"
	"github.com/luxfi/adsdk/pkg/log"
)

// Thresholds are the ratios the observer reports crossings at
var Thresholds = []float64{0, 0.25, 0.5, 0.75, 1.0}

const (
	DefaultThreshold = 0.5
	DefaultDuration  = time.Second
)

// Viewport creates intersection observers
type Viewport interface {
	NewIntersectionObserver(thresholds []float64, cb dom.IntersectionCallback) *dom.IntersectionObserver
}

// Config holds the ratio and dwell time an element needs
type Config struct {
	Threshold float64
	Duration  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.Duration <= 0 {
		c.Duration = DefaultDuration
	}
	return c
}

// Tracker watches one element. Every continuous stretch above the
// threshold that lasts the full duration produces one callback; leaving
// early cancels it. Re-entry starts over and may fire again.
type Tracker struct {
	vp    Viewport
	clock clock.Clock
	cfg   Config
	log   log.Logger

	mu         sync.Mutex
	observer   *dom.IntersectionObserver
	onViewable func()
	inView     bool
	timer      *clock.Timer
	gen        uint64
	fired      int
	closed     bool
}

// New creates a tracker. A nil clock uses the wall clock.
func New(vp Viewport, clk clock.Clock, cfg Config, logger log.Logger) *Tracker {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = log.NoOp()
	}
	return &Tracker{
		vp:    vp,
		clock: clk,
		cfg:   cfg.withDefaults(),
		log:   logger,
	}
}

// Observe starts tracking el. It may be called once per tracker.
func (t *Tracker) Observe(el *dom.Element, onViewable func()) {
	t.mu.Lock()
	if t.closed || t.observer != nil {
		t.mu.Unlock()
		return
	}
	t.onViewable = onViewable
	obs := t.vp.NewIntersectionObserver(Thresholds, t.handle)
	t.observer = obs
	t.mu.Unlock()

	obs.Observe(el)
}

func (t *Tracker) handle(entries []dom.IntersectionEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	for _, e := range entries {
		visible := e.Intersecting && e.Ratio >= t.cfg.Threshold
		switch {
		case visible && !t.inView:
			t.inView = true
			t.gen++
			gen := t.gen
			t.timer = t.clock.AfterFunc(t.cfg.Duration, func() { t.fire(gen) })
		case !visible && t.inView:
			t.inView = false
			t.gen++
			t.stopTimer()
		}
	}
}

// fire runs on the timer goroutine. A generation mismatch means the element
// left view, or the tracker closed, after the timer was armed.
func (t *Tracker) fire(gen uint64) {
	t.mu.Lock()
	if t.closed || gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	t.fired++
	count := t.fired
	cb := t.onViewable
	t.mu.Unlock()

	t.log.Debug("viewable", log.Int("count", count))
	if cb != nil {
		cb()
	}
}

func (t *Tracker) stopTimer() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// Viewable reports whether the element is currently above the threshold
func (t *Tracker) Viewable() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inView
}

// Fired returns how many viewable callbacks have run
func (t *Tracker) Fired() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

// Disconnect stops observation and cancels any pending timer. Idempotent.
func (t *Tracker) Disconnect() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.gen++
	t.stopTimer()
	obs := t.observer
	t.mu.Unlock()

	if obs != nil {
		obs.Disconnect()
	}
}
