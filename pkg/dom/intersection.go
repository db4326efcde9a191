// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dom

import (
	"sort"
	"sync"

	"golang.org/x/net/html"
)

// IntersectionEntry reports how much of a target is inside the viewport
type IntersectionEntry struct {
	Target       *Element
	Ratio        float64
	Intersecting bool
}

// IntersectionCallback receives entries whose threshold bucket changed
type IntersectionCallback func([]IntersectionEntry)

// IntersectionObserver mirrors the browser observer: the callback runs
// whenever a target's ratio crosses one of the thresholds.
type IntersectionObserver struct {
	win        *Window
	thresholds []float64
	cb         IntersectionCallback

	mu      sync.Mutex
	targets map[*html.Node]int
	closed  bool
}

// NewIntersectionObserver creates an observer. Empty thresholds means [0].
func (w *Window) NewIntersectionObserver(thresholds []float64, cb IntersectionCallback) *IntersectionObserver {
	ts := append([]float64(nil), thresholds...)
	if len(ts) == 0 {
		ts = []float64{0}
	}
	sort.Float64s(ts)

	o := &IntersectionObserver{
		win:        w,
		thresholds: ts,
		cb:         cb,
		targets:    make(map[*html.Node]int),
	}
	w.mu.Lock()
	w.observers = append(w.observers, o)
	w.mu.Unlock()
	return o
}

// Observe starts watching el. A target already in view is reported at once.
func (o *IntersectionObserver) Observe(el *Element) {
	ratio := o.win.ratio(el.node)

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	bucket := o.bucket(ratio)
	o.targets[el.node] = bucket
	o.mu.Unlock()

	if ratio > 0 {
		o.cb([]IntersectionEntry{{Target: el, Ratio: ratio, Intersecting: true}})
	}
}

// Unobserve stops watching el
func (o *IntersectionObserver) Unobserve(el *Element) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.targets, el.node)
}

// Disconnect stops watching every target. Safe to call more than once.
func (o *IntersectionObserver) Disconnect() {
	o.mu.Lock()
	o.closed = true
	o.targets = make(map[*html.Node]int)
	o.mu.Unlock()

	o.win.mu.Lock()
	defer o.win.mu.Unlock()
	for i, obs := range o.win.observers {
		if obs == o {
			o.win.observers = append(o.win.observers[:i], o.win.observers[i+1:]...)
			break
		}
	}
}

// bucket counts the thresholds ratio has reached. Threshold 0 is reached by
// any positive intersection.
func (o *IntersectionObserver) bucket(ratio float64) int {
	n := 0
	for _, t := range o.thresholds {
		if (t == 0 && ratio > 0) || (t > 0 && ratio >= t) {
			n++
		}
	}
	return n
}

func (o *IntersectionObserver) update(el *Element, ratio float64) {
	o.mu.Lock()
	prev, ok := o.targets[el.node]
	if !ok || o.closed {
		o.mu.Unlock()
		return
	}
	next := o.bucket(ratio)
	o.targets[el.node] = next
	o.mu.Unlock()

	if prev != next {
		o.cb([]IntersectionEntry{{Target: el, Ratio: ratio, Intersecting: ratio > 0}})
	}
}

// SetIntersection moves el so that ratio of it is inside the viewport and
// notifies observers watching it.
func (w *Window) SetIntersection(el *Element, ratio float64) {
	w.mu.Lock()
	w.ratios[el.node] = ratio
	observers := append([]*IntersectionObserver(nil), w.observers...)
	w.mu.Unlock()

	for _, o := range observers {
		o.update(el, ratio)
	}
}

func (w *Window) ratio(n *html.Node) float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ratios[n]
}
