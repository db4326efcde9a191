// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sdk

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/adsdk/pkg/ad"
	"github.com/luxfi/adsdk/pkg/adclient"
	"github.com/luxfi/adsdk/pkg/analytics"
	"github.com/luxfi/adsdk/pkg/dom"
	"github.com/luxfi/adsdk/pkg/log"
	"github.com/luxfi/adsdk/pkg/render"
	"github.com/luxfi/adsdk/pkg/viewability"
)

var ErrInvalidState = errors.New("invalid ad unit state")

// State of an ad unit
type State int

const (
	StateUnloaded State = iota
	StateLoaded
	StateRendered
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoaded:
		return "loaded"
	case StateRendered:
		return "rendered"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// AdUnit is one ad slot: unloaded -> loaded -> rendered, and destroyed
// from anywhere.
type AdUnit struct {
	sdk *SDK
	id  string
	el  *dom.Element
	cfg ad.Config
	log log.Logger

	mu       sync.Mutex
	state    State
	loading  bool
	ad       *ad.Ad
	result   render.Result
	tracker  *viewability.Tracker
	lazy     *dom.IntersectionObserver
	removers []func()
}

func newAdUnit(s *SDK, id string, el *dom.Element, cfg ad.Config) *AdUnit {
	return &AdUnit{
		sdk: s,
		id:  id,
		el:  el,
		cfg: cfg,
		log: s.log.With(log.String("adUnitId", id)),
	}
}

func (u *AdUnit) ID() string            { return u.id }
func (u *AdUnit) Element() *dom.Element { return u.el }
func (u *AdUnit) Format() ad.Format     { return u.cfg.Format }
func (u *AdUnit) AdConfig() ad.Config   { return u.cfg }

func (u *AdUnit) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// Ad returns the loaded ad or nil
func (u *AdUnit) Ad() *ad.Ad {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.ad
}

// Viewable reports whether the rendered creative is currently in view
func (u *AdUnit) Viewable() bool {
	u.mu.Lock()
	t := u.tracker
	u.mu.Unlock()
	return t != nil && t.Viewable()
}

// Load requests an ad. It is only valid from unloaded and does not render.
func (u *AdUnit) Load(ctx context.Context, targeting map[string]any) error {
	u.mu.Lock()
	if u.state != StateUnloaded || u.loading {
		st := u.state
		u.mu.Unlock()
		return fmt.Errorf("%w: load from %s", ErrInvalidState, st)
	}
	u.loading = true
	client := u.sdk.Client()
	u.mu.Unlock()

	a, ok := client.RequestAd(ctx, u.id, u.cfg.Format, targeting)

	u.mu.Lock()
	defer u.mu.Unlock()
	u.loading = false
	if !ok {
		return adclient.ErrNoFill
	}
	if u.state != StateUnloaded {
		return fmt.Errorf("%w: destroyed while loading", ErrInvalidState)
	}
	u.ad = a
	u.state = StateLoaded
	return nil
}

// Render draws the loaded ad. Without an ad, or once rendered, it does
// nothing. With lazy loading on, drawing waits until the target first
// enters the viewport.
func (u *AdUnit) Render() error {
	u.mu.Lock()
	if u.ad == nil || u.state != StateLoaded || u.lazy != nil {
		u.mu.Unlock()
		return nil
	}

	if u.sdk.Config().EnableLazyLoad {
		obs := u.sdk.host.NewIntersectionObserver([]float64{0}, func(entries []dom.IntersectionEntry) {
			for _, e := range entries {
				if e.Intersecting {
					u.sdk.guard("lazy-render", u.renderLazy)
					return
				}
			}
		})
		u.lazy = obs
		u.mu.Unlock()
		obs.Observe(u.el)
		return nil
	}

	tracker, err := u.renderLocked()
	u.mu.Unlock()
	if err != nil {
		return err
	}
	u.observe(tracker)
	return nil
}

func (u *AdUnit) renderLazy() {
	u.mu.Lock()
	if u.state != StateLoaded {
		u.mu.Unlock()
		return
	}
	tracker, err := u.renderLocked()
	lazy := u.lazy
	u.mu.Unlock()

	if lazy != nil {
		lazy.Disconnect()
	}
	if err != nil {
		u.log.Warn("lazy render failed", log.Error(err))
		return
	}
	u.observe(tracker)
}

// renderLocked draws the creative and wires its handlers. The returned
// tracker still has to be started, outside the lock.
func (u *AdUnit) renderLocked() (*viewability.Tracker, error) {
	res, err := render.Render(u.sdk.host.Document(), u.el, u.cfg, u.ad)
	if err != nil {
		return nil, err
	}
	u.result = res
	u.state = StateRendered

	u.track(analytics.EventImpression, map[string]any{"format": string(u.cfg.Format)})
	if m := u.sdk.opts.metrics; m != nil {
		m.Impressions.Inc()
	}

	u.removers = append(u.removers, res.Root.AddEventListener("click", func(dom.Event) {
		u.sdk.guard("click", u.onClick)
	}))
	if res.Dismiss != nil {
		u.removers = append(u.removers, res.Dismiss.AddEventListener("click", func(dom.Event) {
			u.sdk.guard("dismiss", u.onDismiss)
		}))
	}
	if video := videoOf(res.Root); video != nil {
		u.removers = append(u.removers, video.AddEventListener("ended", func(dom.Event) {
			u.sdk.guard("complete", func() { u.track(analytics.EventComplete, nil) })
		}))
	}

	cfg := u.sdk.Config()
	if cfg.DisableViewability {
		return nil, nil
	}
	u.tracker = viewability.New(u.sdk.host, u.sdk.opts.clock, viewability.Config{
		Threshold: cfg.ViewabilityThreshold,
		Duration:  cfg.ViewabilityDuration,
	}, u.log)
	return u.tracker, nil
}

func (u *AdUnit) observe(tracker *viewability.Tracker) {
	if tracker == nil {
		return
	}
	u.mu.Lock()
	root := u.result.Root
	u.mu.Unlock()
	if root == nil {
		return
	}
	tracker.Observe(root, func() {
		u.sdk.guard("viewable", u.onViewable)
	})
}

func (u *AdUnit) onClick() {
	u.mu.Lock()
	a := u.ad
	live := u.state == StateRendered
	u.mu.Unlock()
	if !live || a == nil {
		return
	}

	u.track(analytics.EventClick, nil)
	if m := u.sdk.opts.metrics; m != nil {
		m.Clicks.Inc()
	}
	if a.ClickURL != "" {
		u.sdk.host.Open(a.ClickURL)
	}
}

func (u *AdUnit) onDismiss() {
	u.mu.Lock()
	overlay := u.result.Overlay
	u.result.Overlay = nil
	u.mu.Unlock()
	if overlay == nil {
		return
	}

	u.track(analytics.EventDismiss, nil)
	overlay.Remove()
}

func (u *AdUnit) onViewable() {
	if u.State() != StateRendered {
		return
	}
	u.track(analytics.EventViewable, nil)
	if m := u.sdk.opts.metrics; m != nil {
		m.Viewable.Inc()
	}
}

// Destroy tears the unit down and unregisters it. Safe to call twice.
func (u *AdUnit) Destroy() {
	u.mu.Lock()
	if u.state == StateDestroyed {
		u.mu.Unlock()
		return
	}
	u.state = StateDestroyed
	tracker, lazy, removers, overlay := u.tracker, u.lazy, u.removers, u.result.Overlay
	u.tracker, u.lazy, u.removers = nil, nil, nil
	u.result = render.Result{}
	u.mu.Unlock()

	if tracker != nil {
		tracker.Disconnect()
	}
	if lazy != nil {
		lazy.Disconnect()
	}
	for _, remove := range removers {
		remove()
	}
	if overlay != nil {
		overlay.Remove()
	}
	u.el.Clear()
	u.sdk.unregister(u.id, u)
}

func (u *AdUnit) track(typ analytics.EventType, data map[string]any) {
	ev := analytics.Event{Type: typ, AdUnitID: u.id, Data: data}
	if a := u.ad; a != nil {
		ev.AdID = a.ID
	}
	u.sdk.track(ev)
}

func videoOf(root *dom.Element) *dom.Element {
	if root.Tag() == "video" {
		return root
	}
	return root.Find("video")
}
