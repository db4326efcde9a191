// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package sdk is the publisher facing entry point: initialise once, create
// ad units on page elements, load them and let the SDK report what
// happened.
package sdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"github.com/luxfi/adsdk/pkg/ad"
	"github.com/luxfi/adsdk/pkg/adclient"
	"github.com/luxfi/adsdk/pkg/analytics"
	"github.com/luxfi/adsdk/pkg/device"
	"github.com/luxfi/adsdk/pkg/dom"
	"github.com/luxfi/adsdk/pkg/ids"
	"github.com/luxfi/adsdk/pkg/log"
	"github.com/luxfi/adsdk/pkg/metric"
)

// Version is stamped on every event
const Version = "2.0.0"

var (
	ErrNotInitialized  = errors.New("sdk not initialized")
	ErrMissingAppID    = errors.New("app id is required")
	ErrElementNotFound = errors.New("target element not found")
	ErrUnitExists      = errors.New("ad unit already exists")
)

type options struct {
	clock      clock.Clock
	logger     log.Logger
	metrics    *metric.Metrics
	httpClient *http.Client
	adBlock    device.AdBlockDetector
	transport  analytics.Transport
}

// Option customises an SDK instance
type Option func(*options)

func WithClock(c clock.Clock) Option        { return func(o *options) { o.clock = c } }
func WithLogger(l log.Logger) Option        { return func(o *options) { o.logger = l } }
func WithMetrics(m *metric.Metrics) Option  { return func(o *options) { o.metrics = m } }
func WithHTTPClient(hc *http.Client) Option { return func(o *options) { o.httpClient = hc } }
func WithTransport(t analytics.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithAdBlockDetector replaces the bait probe
func WithAdBlockDetector(d device.AdBlockDetector) Option {
	return func(o *options) { o.adBlock = d }
}

// SDK owns all state of one page integration
type SDK struct {
	host     Host
	opts     options
	log      log.Logger
	detector *device.Detector

	mu          sync.Mutex
	initialized bool
	cfg         Config
	sessionID   string
	units       map[string]*AdUnit
	batcher     *analytics.Batcher
	client      *adclient.Client
	removers    []func()
	cancel      context.CancelFunc

	adBlocked atomic.Bool
	probeDone chan struct{}
}

// New creates an uninitialised SDK bound to host
func New(host Host, opts ...Option) *SDK {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = clock.New()
	}
	if o.logger == nil {
		o.logger = log.NoOp()
	}
	return &SDK{
		host:      host,
		opts:      o,
		log:       o.logger,
		detector:  device.NewDetector(host),
		units:     make(map[string]*AdUnit),
		probeDone: make(chan struct{}),
	}
}

// Init sets the SDK up. Only the first call has an effect; later calls
// log a warning and return nil.
func (s *SDK) Init(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		s.log.Warn("sdk already initialized", log.String("appId", s.cfg.AppID))
		return nil
	}
	if cfg.AppID == "" {
		return ErrMissingAppID
	}

	s.cfg = cfg.withDefaults()
	s.sessionID = ids.NewSessionID()
	s.log = s.opts.logger.With(log.String("appId", s.cfg.AppID), log.String("sessionId", s.sessionID))

	info := s.detector.Detect()

	clientOpts := []adclient.Option{adclient.WithLogger(s.log), adclient.WithClock(s.opts.clock)}
	if s.opts.httpClient != nil {
		clientOpts = append(clientOpts, adclient.WithHTTPClient(s.opts.httpClient))
	}
	if s.opts.metrics != nil {
		clientOpts = append(clientOpts, adclient.WithMetrics(s.opts.metrics))
	}
	s.client = adclient.New(adclient.Config{
		AppID:             s.cfg.AppID,
		SessionID:         s.sessionID,
		SDKVersion:        Version,
		APIEndpoint:       s.cfg.APIEndpoint,
		AdServingEndpoint: s.cfg.AdServingEndpoint,
		EventsEndpoint:    s.cfg.EventsEndpoint,
		Timeout:           s.cfg.Timeout,
		RetryAttempts:     s.cfg.RetryAttempts,
	}, s, clientOpts...)

	transport := s.opts.transport
	if transport == nil {
		transport = s.client
	}
	s.batcher = analytics.NewBatcher(s.cfg.AppID, transport, analytics.Options{
		BatchSize:     s.cfg.BatchSize,
		FlushInterval: s.cfg.FlushInterval,
		SendTimeout:   s.cfg.Timeout,
		Clock:         s.opts.clock,
		Logger:        s.log,
		Metrics:       s.opts.metrics,
	})
	s.client.SetRecorder(s.batcher)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.batcher.SetOnline(s.host.Online())
	s.batcher.Start(ctx)
	s.registerListeners()

	if s.cfg.DisableAdBlockerDetection {
		close(s.probeDone)
	} else {
		go s.probeAdBlock(ctx)
	}

	s.initialized = true
	s.log.Info("sdk initialized",
		log.String("device", string(info.Type)),
		log.String("endpoint", s.cfg.APIEndpoint),
	)
	return nil
}

// registerListeners wires page lifecycle events to flushing. Called with
// s.mu held.
func (s *SDK) registerListeners() {
	b := s.batcher
	on := func(typ string, fn func()) {
		remove := s.host.AddEventListener(typ, func(dom.Event) { s.guard(typ, fn) })
		s.removers = append(s.removers, remove)
	}
	on(dom.EventOnline, func() { b.SetOnline(true) })
	on(dom.EventOffline, func() { b.SetOnline(false) })
	on(dom.EventVisibilityChange, func() {
		if s.host.Hidden() {
			b.FlushAsync("hidden")
		}
	})
	on(dom.EventBeforeUnload, func() { b.FlushAsync("unload") })
}

func (s *SDK) probeAdBlock(ctx context.Context) {
	defer close(s.probeDone)

	s.guard("adblock", func() {
		detector := s.opts.adBlock
		if detector == nil {
			detector = device.NewBaitProbe(s.host.Document(), s.opts.clock)
		}
		blocked, err := detector.Detect(ctx)
		if err != nil {
			s.log.Debug("ad blocker probe failed", log.Error(err))
			return
		}
		s.adBlocked.Store(blocked)
		if blocked {
			s.track(analytics.Event{
				Type: analytics.EventAdBlocker,
				Data: map[string]any{"detected": true},
			})
		}
	})
}

// guard runs fn and turns a panic into a log line so a broken component
// cannot take the page down
func (s *SDK) guard(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("recovered from panic", log.String("component", name), log.String("panic", fmt.Sprint(r)))
		}
	}()
	fn()
}

// CreateAdUnit registers a unit rendering into target. Missing
// initialisation and missing elements are integration errors and are
// returned as such.
func (s *SDK) CreateAdUnit(id string, target Target, cfg ad.Config) (*AdUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}
	if _, ok := s.units[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrUnitExists, id)
	}
	if target == nil {
		return nil, ErrElementNotFound
	}
	el := target.resolve(s.host.Document())
	if el == nil {
		return nil, fmt.Errorf("%w: ad unit %s", ErrElementNotFound, id)
	}
	if cfg.Format == "" {
		cfg = ad.NewConfig(ad.FormatBanner)
	}
	if _, err := ad.ParseFormat(string(cfg.Format)); err != nil {
		return nil, err
	}

	unit := newAdUnit(s, id, el, cfg)
	s.units[id] = unit
	return unit, nil
}

// AdUnit returns a registered unit or nil
func (s *SDK) AdUnit(id string) *AdUnit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.units[id]
}

// LoadAd loads and renders unit id. Any failure, no-fill included, is
// reported as false.
func (s *SDK) LoadAd(ctx context.Context, id string, targeting map[string]any) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("recovered from panic", log.String("adUnitId", id), log.String("panic", fmt.Sprint(r)))
			ok = false
		}
	}()

	unit := s.AdUnit(id)
	if unit == nil {
		s.log.Warn("unknown ad unit", log.String("adUnitId", id))
		return false
	}
	if s.blockedTraffic() {
		s.log.Debug("ad request suppressed for automated agent", log.String("adUnitId", id))
		return false
	}
	if err := unit.Load(ctx, targeting); err != nil {
		s.log.Debug("ad load failed", log.String("adUnitId", id), log.Error(err))
		return false
	}
	if err := unit.Render(); err != nil {
		s.log.Warn("ad render failed", log.String("adUnitId", id), log.Error(err))
		return false
	}
	return true
}

// DestroyAdUnit tears unit id down. Unknown ids are ignored.
func (s *SDK) DestroyAdUnit(id string) {
	if unit := s.AdUnit(id); unit != nil {
		unit.Destroy()
	}
}

func (s *SDK) unregister(id string, unit *AdUnit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.units[id] == unit {
		delete(s.units, id)
	}
}

// ShowAdOptions configure the legacy interstitial path
type ShowAdOptions struct {
	Targeting map[string]any
}

// ShowAd is the legacy entry point kept for old embed snippets: it renders
// an interstitial through a throwaway unit.
func (s *SDK) ShowAd(ctx context.Context, opts ShowAdOptions) bool {
	doc := s.host.Document()
	holder := doc.CreateElement("div")
	holder.SetStyle("display", "none")
	doc.Body().AppendChild(holder)

	id := "legacy_" + ids.NewRequestID()
	if _, err := s.CreateAdUnit(id, Element(holder), ad.NewConfig(ad.FormatInterstitial)); err != nil {
		s.log.Warn("show ad failed", log.Error(err))
		holder.Remove()
		return false
	}
	if !s.LoadAd(ctx, id, opts.Targeting) {
		s.DestroyAdUnit(id)
		holder.Remove()
		return false
	}
	return true
}

// Environment for the ad client

func (s *SDK) Device() device.Info { return s.detector.Detect() }
func (s *SDK) URL() string         { return s.host.URL() }
func (s *SDK) Referrer() string    { return s.host.Referrer() }

// DeviceInfo returns the memoised device classification
func (s *SDK) DeviceInfo() device.Info { return s.detector.Detect() }

// AdBlockerDetected reports the probe result. It is false until the probe
// finishes and purely informational.
func (s *SDK) AdBlockerDetected() bool { return s.adBlocked.Load() }

// SessionID is generated once by Init
func (s *SDK) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func (s *SDK) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Config returns the merged configuration
func (s *SDK) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Client exposes the ad request client for the auxiliary endpoints
func (s *SDK) Client() *adclient.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// Flush sends queued events now
func (s *SDK) Flush(ctx context.Context) error {
	b := s.eventBatcher()
	if b == nil {
		return ErrNotInitialized
	}
	return b.Flush(ctx)
}

// PendingEvents returns the queued, unsent events
func (s *SDK) PendingEvents() []analytics.Event {
	b := s.eventBatcher()
	if b == nil {
		return nil
	}
	return b.Pending()
}

// Shutdown destroys every unit, stops the flush worker, removes the page
// listeners and makes a final flush.
func (s *SDK) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return nil
	}
	units := make([]*AdUnit, 0, len(s.units))
	for _, u := range s.units {
		units = append(units, u)
	}
	removers := s.removers
	s.removers = nil
	cancel := s.cancel
	b := s.batcher
	s.mu.Unlock()

	for _, u := range units {
		u.Destroy()
	}
	for _, remove := range removers {
		remove()
	}
	cancel()
	<-s.probeDone
	b.Stop()
	return b.Flush(ctx)
}

func (s *SDK) eventBatcher() *analytics.Batcher {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batcher
}

func (s *SDK) blockedTraffic() bool {
	s.mu.Lock()
	check := !s.cfg.DisableFraudDetection
	s.mu.Unlock()
	return check && s.detector.Detect().Bot
}

// track stamps ev with session and page context and queues it
func (s *SDK) track(ev analytics.Event) {
	b := s.eventBatcher()
	if b == nil {
		return
	}
	info := s.detector.Detect()
	ev.SessionID = s.SessionID()
	ev.Timestamp = s.opts.clock.Now()
	ev.SDKVersion = Version
	ev.Page = analytics.PageContext{
		URL:      s.host.URL(),
		Referrer: s.host.Referrer(),
		Viewport: analytics.Viewport{Width: info.ViewportWidth, Height: info.ViewportHeight},
		Device:   &info,
	}
	b.Track(ev)
}
