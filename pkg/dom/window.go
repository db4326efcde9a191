// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dom

import (
	"sync"

	"golang.org/x/net/html"
)

// Window event types
const (
	EventOnline           = "online"
	EventOffline          = "offline"
	EventVisibilityChange = "visibilitychange"
	EventBeforeUnload     = "beforeunload"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Options describe the page a Window is loaded with
type Options struct {
	URL       string
	Referrer  string
	UserAgent string
	Language  string
	Width     int
	Height    int
}

// Window is the headless browsing context: one document plus the
// environment an ad SDK reads from it.
type Window struct {
	doc *Document

	mu        sync.RWMutex
	opts      Options
	online    bool
	hidden    bool
	listeners map[string][]listenerEntry
	nextID    int
	opened    []string
	ratios    map[*html.Node]float64
	observers []*IntersectionObserver
}

// NewWindow creates a visible, online window with an empty document
func NewWindow(opts Options) *Window {
	if opts.URL == "" {
		opts.URL = "https://example.com/"
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Language == "" {
		opts.Language = "en-US"
	}
	if opts.Width == 0 {
		opts.Width = 1280
	}
	if opts.Height == 0 {
		opts.Height = 800
	}
	return &Window{
		doc:       NewDocument(),
		opts:      opts,
		online:    true,
		listeners: make(map[string][]listenerEntry),
		ratios:    make(map[*html.Node]float64),
	}
}

func (w *Window) Document() *Document { return w.doc }

func (w *Window) URL() string       { return w.opts.URL }
func (w *Window) Referrer() string  { return w.opts.Referrer }
func (w *Window) UserAgent() string { return w.opts.UserAgent }
func (w *Window) Language() string  { return w.opts.Language }

// Viewport returns the inner width and height
func (w *Window) Viewport() (int, int) {
	return w.opts.Width, w.opts.Height
}

func (w *Window) Online() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.online
}

// Hidden reports whether the page visibility state is hidden
func (w *Window) Hidden() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.hidden
}

// AddEventListener registers a window level listener
func (w *Window) AddEventListener(typ string, fn Listener) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextID++
	id := w.nextID
	w.listeners[typ] = append(w.listeners[typ], listenerEntry{id: id, fn: fn})
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		entries := w.listeners[typ]
		for i, e := range entries {
			if e.id == id {
				w.listeners[typ] = append(entries[:i:i], entries[i+1:]...)
				return
			}
		}
	}
}

// Dispatch fires a window event
func (w *Window) Dispatch(typ string) {
	w.mu.RLock()
	fns := make([]Listener, 0, len(w.listeners[typ]))
	for _, e := range w.listeners[typ] {
		fns = append(fns, e.fn)
	}
	w.mu.RUnlock()

	for _, fn := range fns {
		fn(Event{Type: typ})
	}
}

// SetOnline changes connectivity and fires online or offline on change
func (w *Window) SetOnline(online bool) {
	w.mu.Lock()
	changed := w.online != online
	w.online = online
	w.mu.Unlock()

	if !changed {
		return
	}
	if online {
		w.Dispatch(EventOnline)
	} else {
		w.Dispatch(EventOffline)
	}
}

// SetHidden changes visibility and fires visibilitychange on change
func (w *Window) SetHidden(hidden bool) {
	w.mu.Lock()
	changed := w.hidden != hidden
	w.hidden = hidden
	w.mu.Unlock()

	if changed {
		w.Dispatch(EventVisibilityChange)
	}
}

// Unload fires beforeunload
func (w *Window) Unload() {
	w.Dispatch(EventBeforeUnload)
}

// Open records a navigation in a new browsing context
func (w *Window) Open(url string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.opened = append(w.opened, url)
}

// Opened returns every url passed to Open, oldest first
func (w *Window) Opened() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]string(nil), w.opened...)
}
