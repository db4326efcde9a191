// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package paywall drives the ad-then-pay unlock of premium resources:
// list -> ad -> payment -> content, with error reachable from every step.
package paywall

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/luxfi/adsdk/pkg/ad"
	"github.com/luxfi/adsdk/pkg/adclient"
	"github.com/luxfi/adsdk/pkg/dom"
	"github.com/luxfi/adsdk/pkg/log"
	"github.com/luxfi/adsdk/pkg/mcp"
	"github.com/luxfi/adsdk/pkg/render"
	"github.com/luxfi/adsdk/pkg/settlement"
	"github.com/luxfi/adsdk/pkg/wallet"
	"github.com/luxfi/adsdk/pkg/x402"
)

var (
	ErrBusy          = errors.New("another step is in flight")
	ErrAdNotFinished = errors.New("ad countdown still running")
	ErrNoPayment     = errors.New("no payment requirements for this session")
)

// AdFrameSize is the embedded ad frame
var AdFrameSize = ad.Size{W: 640, H: 360}

// Backend is the tool server the flow talks to
type Backend interface {
	ListResources(ctx context.Context) ([]mcp.Resource, error)
	RequestResource(ctx context.Context, resourceID, userID string) (*mcp.Grant, error)
	CompleteAdAndPay(ctx context.Context, args mcp.CompleteArgs) (*mcp.CompleteResult, error)
}

// PlaybackReporter receives the completed-ad report
type PlaybackReporter interface {
	ReportPlayback(ctx context.Context, r adclient.PlaybackReport)
}

// View is a snapshot of what the UI shows
type View struct {
	State     State
	Resources []mcp.Resource
	Selected  *mcp.Resource

	// ad
	Session     *mcp.AdSession
	AdFrame     *dom.Element
	Remaining   time.Duration
	CanContinue bool

	// payment
	Requirements *x402.PaymentRequirements
	Amount       string
	Network      string
	Description  string
	PayStatus    PayStatus
	PayEnabled   bool

	// content
	Content  string
	MimeType string
	Receipt  *settlement.Receipt

	Error string
}

// Flow is one user's unlock state machine
type Flow struct {
	backend  Backend
	wallet   wallet.Wallet
	reporter PlaybackReporter
	clock    clock.Clock
	log      log.Logger
	userID   string
	doc      *dom.Document
	frameIn  *dom.Element

	mu        sync.Mutex
	state     State
	busy      bool
	resources []mcp.Resource
	selected  *mcp.Resource
	grant     *mcp.Grant
	frame     *dom.Element
	adStart   time.Time
	adDone    bool
	timer     *clock.Timer
	payStatus PayStatus
	errMsg    string
	content   string
	mimeType  string
	receipt   *settlement.Receipt
	listeners []Listener

	// notifyMu serialises listener delivery across the caller and the
	// countdown timer
	notifyMu sync.Mutex
}

// Listener receives a View after every change. Calls are never concurrent.
// A listener must not call back into the Flow.
type Listener func(View)

// Option customises a Flow
type Option func(*Flow)

func WithClock(clk clock.Clock) Option               { return func(f *Flow) { f.clock = clk } }
func WithLogger(l log.Logger) Option                 { return func(f *Flow) { f.log = l } }
func WithUserID(id string) Option                    { return func(f *Flow) { f.userID = id } }
func WithPlaybackReporter(r PlaybackReporter) Option { return func(f *Flow) { f.reporter = r } }

// WithFrameHost renders the ad into a sandboxed iframe appended to container
func WithFrameHost(doc *dom.Document, container *dom.Element) Option {
	return func(f *Flow) { f.doc, f.frameIn = doc, container }
}

// New creates a flow in the list state
func New(backend Backend, w wallet.Wallet, opts ...Option) *Flow {
	f := &Flow{
		backend: backend,
		wallet:  w,
		clock:   clock.New(),
		log:     log.NoOp(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// OnChange registers fn to receive a View after every change
func (f *Flow) OnChange(fn Listener) {
	f.mu.Lock()
	f.listeners = append(f.listeners, fn)
	f.mu.Unlock()
}

// State is the current state
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Load fetches the catalog. Only valid in the list state.
func (f *Flow) Load(ctx context.Context) error {
	if err := f.begin(StateList); err != nil {
		return err
	}
	resources, err := f.backend.ListResources(ctx)

	f.mu.Lock()
	f.busy = false
	if err != nil {
		f.failLocked(err)
	} else {
		f.resources = resources
		f.errMsg = ""
	}
	f.mu.Unlock()
	f.notify()
	return err
}

// Select requests a resource. Free ones go straight to content; paid ones
// start the ad countdown.
func (f *Flow) Select(ctx context.Context, resourceID string) error {
	if err := f.begin(StateList); err != nil {
		return err
	}
	grant, err := f.backend.RequestResource(ctx, resourceID, f.userID)

	f.mu.Lock()
	f.busy = false
	if err == nil && !grant.Free {
		switch {
		case grant.Session == nil:
			err = fmt.Errorf("resource %s: paid grant without an ad session", resourceID)
		case grant.PaymentRequirements == nil:
			err = fmt.Errorf("resource %s: %w", resourceID, ErrNoPayment)
		}
	}
	if err != nil {
		f.failLocked(err)
		f.mu.Unlock()
		f.notify()
		return err
	}

	for i := range f.resources {
		if f.resources[i].ID == resourceID {
			r := f.resources[i]
			f.selected = &r
		}
	}
	f.grant = grant
	f.errMsg = ""

	if grant.Free {
		f.state, _ = Transition(f.state, EventSelectFree)
		f.content, f.mimeType, f.receipt = grant.Content, grant.MimeType, nil
		f.mu.Unlock()
		f.notify()
		return nil
	}

	f.state, _ = Transition(f.state, EventSelectPaid)
	f.startAdLocked(grant.Session)
	f.mu.Unlock()
	f.notify()
	return nil
}

// startAdLocked shows the ad and arms the countdown
func (f *Flow) startAdLocked(s *mcp.AdSession) {
	f.adStart = f.clock.Now()
	f.adDone = false
	if f.doc != nil && f.frameIn != nil {
		f.frame = render.SandboxedFrame(f.doc, s.AdURL, AdFrameSize)
		f.frameIn.AppendChild(f.frame)
	}
	sessionID := s.SessionID
	f.timer = f.clock.AfterFunc(s.DurationTime(), func() { f.adFinished(sessionID) })
	f.log.Debug("ad started", log.String("sessionId", sessionID), log.Int("duration", s.Duration))
}

func (f *Flow) adFinished(sessionID string) {
	f.mu.Lock()
	if f.state != StateAd || f.grant == nil || f.grant.Session == nil || f.grant.Session.SessionID != sessionID {
		f.mu.Unlock()
		return
	}
	f.adDone = true
	f.timer = nil
	s := *f.grant.Session
	reporter := f.reporter
	f.mu.Unlock()

	if reporter != nil && s.PlaybackID != "" {
		go reporter.ReportPlayback(context.Background(), adclient.PlaybackReport{
			PlaybackID:   s.PlaybackID,
			Status:       adclient.PlaybackCompleted,
			ViewDuration: float64(s.Duration),
			Metadata:     map[string]any{"sessionId": s.SessionID, "resourceId": s.ResourceID},
		})
	}
	f.notify()
}

// Continue moves from the finished ad to payment
func (f *Flow) Continue() error {
	f.mu.Lock()
	if f.state != StateAd {
		st := f.state
		f.mu.Unlock()
		return fmt.Errorf("%w: continue in %s", ErrIllegalTransition, st)
	}
	if !f.adDone {
		f.mu.Unlock()
		return ErrAdNotFinished
	}
	if f.grant.PaymentRequirements == nil {
		f.mu.Unlock()
		return ErrNoPayment
	}
	f.state, _ = Transition(f.state, EventAdComplete)
	f.payStatus = PayIdle
	f.removeFrameLocked()
	f.mu.Unlock()
	f.notify()
	return nil
}

// Pay runs connect, switch chain, sign and the server round trip. Wallet
// failures and refused payments come back as *PaymentError and leave the
// flow in payment, idle and retryable. Any other server error moves the
// flow to error.
func (f *Flow) Pay(ctx context.Context) error {
	if err := f.begin(StatePayment); err != nil {
		return err
	}
	f.mu.Lock()
	req := *f.grant.PaymentRequirements
	session := *f.grant.Session
	f.errMsg = ""
	f.mu.Unlock()

	header, err := f.authorize(ctx, req)
	if err != nil {
		return f.retryable(err)
	}

	f.setStatus(PayProcessing)
	res, err := f.backend.CompleteAdAndPay(ctx, mcp.CompleteArgs{
		SessionID:     session.SessionID,
		ResourceID:    session.ResourceID,
		UserID:        f.userID,
		PaymentHeader: header,
	})
	if err != nil {
		f.mu.Lock()
		f.busy = false
		f.payStatus = PayIdle
		f.failLocked(err)
		f.mu.Unlock()
		f.notify()
		return err
	}
	if !res.Success {
		return f.retryable(&PaymentError{Step: string(res.Stage), Reason: res.Reason})
	}

	f.mu.Lock()
	f.busy = false
	f.payStatus = PayIdle
	f.state, _ = Transition(f.state, EventPaid)
	f.content, f.mimeType, f.receipt = res.Content, res.MimeType, res.Receipt
	f.mu.Unlock()

	f.log.Info("resource unlocked", log.String("resourceId", session.ResourceID))
	f.notify()
	return nil
}

// authorize produces the signed PaymentHeader. Nothing is broadcast.
func (f *Flow) authorize(ctx context.Context, req x402.PaymentRequirements) (string, error) {
	network, err := x402.LookupNetwork(req.Network)
	if err != nil {
		return "", &PaymentError{Step: "network", Err: err}
	}

	f.setStatus(PayConnecting)
	account, err := f.wallet.Connect(ctx)
	if err != nil {
		return "", &PaymentError{Step: "connect", Err: err}
	}

	f.setStatus(PaySwitching)
	if err := f.ensureChain(ctx, network); err != nil {
		return "", &PaymentError{Step: "switch_chain", Err: err}
	}

	f.setStatus(PaySigning)
	auth, err := x402.NewAuthorization(account, req, f.clock.Now())
	if err != nil {
		return "", &PaymentError{Step: "sign", Err: err}
	}
	domain, err := x402.DomainFor(req)
	if err != nil {
		return "", &PaymentError{Step: "sign", Err: err}
	}
	sig, err := f.wallet.SignTypedData(ctx, account, x402.TypedData{Domain: domain, Message: auth})
	if err != nil {
		return "", &PaymentError{Step: "sign", Err: err}
	}

	header, err := x402.PaymentHeader{
		X402Version: x402.Version,
		Scheme:      req.Scheme,
		Network:     req.Network,
		Payload:     x402.ExactPayload{Signature: sig, Authorization: auth, Asset: req.Asset},
	}.Encode()
	if err != nil {
		return "", &PaymentError{Step: "sign", Err: err}
	}
	return header, nil
}

func (f *Flow) ensureChain(ctx context.Context, n x402.Network) error {
	current, err := f.wallet.ChainID(ctx)
	if err != nil {
		return err
	}
	if current == n.ChainID {
		return nil
	}
	err = f.wallet.SwitchChain(ctx, n.ChainID)
	if !errors.Is(err, wallet.ErrChainNotAdded) {
		return err
	}
	if err := f.wallet.AddChain(ctx, wallet.ParamsFor(n)); err != nil {
		return err
	}
	return f.wallet.SwitchChain(ctx, n.ChainID)
}

// retryable returns the flow to idle payment with err shown
func (f *Flow) retryable(err error) error {
	f.mu.Lock()
	f.busy = false
	f.payStatus = PayIdle
	f.errMsg = err.Error()
	f.mu.Unlock()

	f.log.Info("payment not completed", log.Error(err))
	f.notify()
	return err
}

// BackToList leaves content or error for the catalog
func (f *Flow) BackToList() error {
	f.mu.Lock()
	next, err := Transition(f.state, EventBack)
	if err != nil {
		f.mu.Unlock()
		return err
	}
	f.state = next
	f.resetLocked()
	f.mu.Unlock()
	f.notify()
	return nil
}

// Close stops the countdown and removes the ad frame
func (f *Flow) Close() {
	f.mu.Lock()
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	f.removeFrameLocked()
	f.mu.Unlock()
}

// View snapshots the flow
func (f *Flow) View() View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.viewLocked()
}

func (f *Flow) viewLocked() View {
	v := View{
		State:     f.state,
		Resources: append([]mcp.Resource(nil), f.resources...),
		Selected:  f.selected,
		PayStatus: f.payStatus,
		Error:     f.errMsg,
	}

	switch f.state {
	case StateAd:
		v.Session = f.grant.Session
		v.AdFrame = f.frame
		v.CanContinue = f.adDone && f.grant.PaymentRequirements != nil
		if !f.adDone {
			left := f.grant.Session.DurationTime() - f.clock.Since(f.adStart)
			v.Remaining = max(left, 0)
		}
	case StatePayment:
		req := f.grant.PaymentRequirements
		v.Session = f.grant.Session
		v.Requirements = req
		v.Description = req.Description
		v.Network = req.Network
		v.PayEnabled = !f.busy
		if n, err := x402.LookupNetwork(req.Network); err == nil {
			v.Network = n.DisplayName
			v.Amount, _ = x402.FormatAmount(req.MaxAmountRequired, n.Decimals)
		}
	case StateContent:
		v.Content = f.content
		v.MimeType = f.mimeType
		v.Receipt = f.receipt
	}
	return v
}

// begin claims the flow for one network step in state want
func (f *Flow) begin(want State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != want {
		return fmt.Errorf("%w: expected %s, in %s", ErrIllegalTransition, want, f.state)
	}
	if f.busy {
		return ErrBusy
	}
	f.busy = true
	return nil
}

func (f *Flow) setStatus(p PayStatus) {
	f.mu.Lock()
	f.payStatus = p
	f.mu.Unlock()
	f.notify()
}

// failLocked moves to error for an unexpected failure
func (f *Flow) failLocked(err error) {
	if next, terr := Transition(f.state, EventFail); terr == nil {
		f.state = next
	}
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	f.removeFrameLocked()
	f.errMsg = err.Error()
	f.log.Warn("unlock flow failed", log.Error(err))
}

func (f *Flow) resetLocked() {
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	f.removeFrameLocked()
	f.selected, f.grant = nil, nil
	f.adDone = false
	f.payStatus = PayIdle
	f.errMsg = ""
	f.content, f.mimeType, f.receipt = "", "", nil
}

func (f *Flow) removeFrameLocked() {
	if f.frame != nil {
		f.frame.Remove()
		f.frame = nil
	}
}

func (f *Flow) notify() {
	f.notifyMu.Lock()
	defer f.notifyMu.Unlock()

	f.mu.Lock()
	if len(f.listeners) == 0 {
		f.mu.Unlock()
		return
	}
	v := f.viewLocked()
	listeners := append([]Listener(nil), f.listeners...)
	f.mu.Unlock()

	for _, fn := range listeners {
		fn(v)
	}
}
