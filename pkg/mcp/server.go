// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/luxfi/adsdk/pkg/adclient"
	"github.com/luxfi/adsdk/pkg/ids"
	"github.com/luxfi/adsdk/pkg/log"
	"github.com/luxfi/adsdk/pkg/metric"
	"github.com/luxfi/adsdk/pkg/settlement"
	"github.com/luxfi/adsdk/pkg/x402"
)

const (
	DefaultAdDuration        = 15 * time.Second
	DefaultSessionTTL        = 10 * time.Minute
	DefaultMaxTimeoutSeconds = 300
	DefaultAdType            = "video"
)

// AdSource supplies the ad shown before a paid resource
type AdSource interface {
	FetchAd(ctx context.Context, adType string) (*adclient.FetchResponse, error)
}

// Config for the tool server
type Config struct {
	Network           string
	PayTo             string
	MaxTimeoutSeconds int
	AdDuration        time.Duration
	SessionTTL        time.Duration
	// FallbackAdURL is used when no AdSource is set or it fails
	FallbackAdURL string
}

type session struct {
	AdSession
	createdAt time.Time
	consumed  bool
	paying    bool
}

// Server answers tools/list and tools/call
type Server struct {
	cfg     Config
	network x402.Network
	settler *settlement.Settler
	ads     AdSource
	clock   clock.Clock
	log     log.Logger
	metrics *metric.Metrics
	order   []string
	catalog map[string]Resource

	mu       sync.Mutex
	sessions map[string]*session
}

// Option customises a Server
type Option func(*Server)

func WithAdSource(src AdSource) Option { return func(s *Server) { s.ads = src } }
func WithClock(clk clock.Clock) Option { return func(s *Server) { s.clock = clk } }
func WithLogger(l log.Logger) Option   { return func(s *Server) { s.log = l } }

// WithMetrics counts completion outcomes in adsdk_payments_total
func WithMetrics(m *metric.Metrics) Option { return func(s *Server) { s.metrics = m } }

// NewServer builds a server over resources, settling payments with settler
func NewServer(cfg Config, resources []Resource, settler *settlement.Settler, opts ...Option) (*Server, error) {
	network, err := x402.LookupNetwork(cfg.Network)
	if err != nil {
		return nil, err
	}
	if cfg.MaxTimeoutSeconds <= 0 {
		cfg.MaxTimeoutSeconds = DefaultMaxTimeoutSeconds
	}
	if cfg.AdDuration <= 0 {
		cfg.AdDuration = DefaultAdDuration
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}

	s := &Server{
		cfg:      cfg,
		network:  network,
		settler:  settler,
		clock:    clock.New(),
		log:      log.NoOp(),
		catalog:  make(map[string]Resource, len(resources)),
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, r := range resources {
		price := decimal.Zero
		if r.Price != "" {
			if price, err = decimal.NewFromString(r.Price); err != nil {
				return nil, fmt.Errorf("resource %s: %w", r.ID, x402.ErrInvalidAmount)
			}
		}
		r.Free = price.IsZero()
		if !r.Free {
			r.DisplayPrice, _ = x402.FormatAmount(price.String(), network.Decimals)
		}
		s.catalog[r.ID] = r
		s.order = append(s.order, r.ID)
	}
	return s, nil
}

// Tools lists the callable tools
func (s *Server) Tools() []ToolInfo {
	return []ToolInfo{
		{Name: ToolListResources, Description: "List the resource catalog with prices"},
		{Name: ToolRequestResource, Description: "Request a resource; paid resources return an ad session and payment requirements"},
		{Name: ToolCompleteAdAndPay, Description: "Submit a signed payment after the ad finished and receive the resource"},
	}
}

// Call runs a tool. Errors are protocol level; refused payments are results.
func (s *Server) Call(ctx context.Context, name string, args json.RawMessage) (any, error) {
	switch name {
	case ToolListResources:
		return s.ListResources(), nil
	case ToolRequestResource:
		var a RequestArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return s.RequestResource(ctx, a)
	case ToolCompleteAdAndPay:
		var a CompleteArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return s.CompleteAdAndPay(ctx, a)
	default:
		return nil, &RPCError{Code: CodeMethodNotFound, Message: "unknown tool " + name}
	}
}

// ListResources returns the catalog in registration order
func (s *Server) ListResources() ListResult {
	out := ListResult{Resources: make([]Resource, 0, len(s.order))}
	for _, id := range s.order {
		out.Resources = append(out.Resources, s.catalog[id])
	}
	return out
}

// RequestResource releases free content directly and opens an ad session
// for paid content
func (s *Server) RequestResource(ctx context.Context, a RequestArgs) (*Grant, error) {
	r, ok := s.catalog[a.ResourceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResource, a.ResourceID)
	}
	if r.Free {
		return &Grant{ResourceID: r.ID, Free: true, Content: r.Content, MimeType: r.MimeType}, nil
	}

	adURL, playbackID := s.fetchAd(ctx)
	now := s.clock.Now()
	sess := &session{
		AdSession: AdSession{
			SessionID:  ids.NewAdSessionID(),
			AdURL:      adURL,
			Duration:   int(s.cfg.AdDuration / time.Second),
			ResourceID: r.ID,
			PlaybackID: playbackID,
			ExpiresAt:  now.Add(s.cfg.AdDuration + s.cfg.SessionTTL),
		},
		createdAt: now,
	}

	s.mu.Lock()
	s.sessions[sess.SessionID] = sess
	s.mu.Unlock()

	s.log.Info("ad session opened",
		log.String("sessionId", sess.SessionID),
		log.String("resourceId", r.ID),
		log.String("userId", a.UserID),
	)
	req := s.requirements(r)
	view := sess.AdSession
	return &Grant{ResourceID: r.ID, Session: &view, PaymentRequirements: &req}, nil
}

// CompleteAdAndPay checks the session, then verifies and settles the
// payment. The session is consumed only once settlement succeeds.
func (s *Server) CompleteAdAndPay(ctx context.Context, a CompleteArgs) (*CompleteResult, error) {
	r, ok := s.catalog[a.ResourceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResource, a.ResourceID)
	}

	s.mu.Lock()
	sess, err := s.claim(a)
	s.mu.Unlock()
	if err != nil {
		s.log.Info("session rejected", log.String("sessionId", a.SessionID), log.Error(err))
		s.count("rejected")
		return nil, err
	}

	out, err := s.settler.Process(ctx, a.PaymentHeader, s.requirements(r))

	s.mu.Lock()
	sess.paying = false
	if err == nil && out.Success {
		sess.consumed = true
	}
	s.mu.Unlock()

	if err != nil {
		s.count("error")
		return nil, err
	}
	if !out.Success {
		s.count(string(out.Stage) + "_failed")
		return &CompleteResult{Stage: out.Stage, Reason: out.Reason}, nil
	}
	s.count("settled")
	return &CompleteResult{
		Success:  true,
		Content:  r.Content,
		MimeType: r.MimeType,
		Receipt:  out.Receipt,
	}, nil
}

func (s *Server) count(outcome string) {
	if s.metrics != nil {
		s.metrics.Payments.WithLabelValues(outcome).Inc()
	}
}

// claim validates a session for completion and marks it in flight.
// Called with s.mu held.
func (s *Server) claim(a CompleteArgs) (*session, error) {
	sess, ok := s.sessions[a.SessionID]
	switch {
	case !ok:
		return nil, ErrSessionNotFound
	case sess.consumed:
		return nil, ErrSessionConsumed
	case sess.paying:
		return nil, fmt.Errorf("%w: payment in flight", ErrSessionConsumed)
	case sess.ResourceID != a.ResourceID:
		return nil, ErrResourceMismatch
	}
	now := s.clock.Now()
	if now.After(sess.ExpiresAt) {
		return nil, ErrSessionExpired
	}
	if now.Before(sess.createdAt.Add(sess.DurationTime())) {
		return nil, ErrAdNotFinished
	}
	sess.paying = true
	return sess, nil
}

func (s *Server) requirements(r Resource) x402.PaymentRequirements {
	return x402.PaymentRequirements{
		Scheme:            x402.SchemeExact,
		Network:           s.network.Name,
		MaxAmountRequired: r.Price,
		Resource:          "mcp://resource/" + r.ID,
		Description:       r.Title,
		MimeType:          r.MimeType,
		PayTo:             s.cfg.PayTo,
		MaxTimeoutSeconds: s.cfg.MaxTimeoutSeconds,
		Asset:             s.network.USDC,
		Extra: map[string]any{
			"name":    s.network.TokenName,
			"version": s.network.TokenVersion,
		},
	}
}

func (s *Server) fetchAd(ctx context.Context) (string, string) {
	if s.ads == nil {
		return s.cfg.FallbackAdURL, ""
	}
	resp, err := s.ads.FetchAd(ctx, DefaultAdType)
	if err != nil || resp.Ad.AssetURL == "" {
		s.log.Warn("ad fetch failed, using fallback", log.Error(err))
		return s.cfg.FallbackAdURL, ""
	}
	return resp.Ad.AssetURL, resp.PlaybackID
}

// Handler serves JSON-RPC on POST /mcp
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/mcp", s.handleRPC).Methods(http.MethodPost)
	return r
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPC(w, Response{Error: &RPCError{Code: CodeParseError, Message: "parse error"}})
		return
	}
	resp := Response{ID: req.ID}
	if req.JSONRPC != JSONRPCVersion {
		resp.Error = &RPCError{Code: CodeInvalidRequest, Message: "jsonrpc must be 2.0"}
		writeRPC(w, resp)
		return
	}

	result, err := s.dispatch(r.Context(), req)
	if err != nil {
		resp.Error = toRPCError(err)
	} else if resp.Result, err = json.Marshal(result); err != nil {
		resp.Error = &RPCError{Code: CodeInternalError, Message: err.Error()}
	}
	writeRPC(w, resp)
}

func (s *Server) dispatch(ctx context.Context, req Request) (any, error) {
	switch req.Method {
	case "tools/list":
		return map[string]any{"tools": s.Tools()}, nil
	case "tools/call":
		var p CallParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, &RPCError{Code: CodeInvalidParams, Message: "invalid params"}
		}
		out, err := s.Call(ctx, p.Name, p.Arguments)
		if err != nil {
			return nil, err
		}
		structured, err := json.Marshal(out)
		if err != nil {
			return nil, err
		}
		return ToolResult{
			Content:           []Content{{Type: "text", Text: string(structured)}},
			StructuredContent: structured,
		}, nil
	default:
		return nil, &RPCError{Code: CodeMethodNotFound, Message: "method not found: " + req.Method}
	}
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return &RPCError{Code: CodeInvalidParams, Message: "missing arguments"}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &RPCError{Code: CodeInvalidParams, Message: "invalid arguments: " + err.Error()}
	}
	return nil
}

func toRPCError(err error) *RPCError {
	var rpcErr *RPCError
	switch {
	case errors.As(err, &rpcErr):
		return rpcErr
	case errors.Is(err, ErrUnknownResource), errors.Is(err, ErrResourceMismatch):
		return &RPCError{Code: CodeResourceError, Message: err.Error()}
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSessionExpired),
		errors.Is(err, ErrSessionConsumed), errors.Is(err, ErrAdNotFinished):
		return &RPCError{Code: CodeSessionError, Message: err.Error()}
	default:
		return &RPCError{Code: CodeInternalError, Message: err.Error()}
	}
}

func writeRPC(w http.ResponseWriter, resp Response) {
	resp.JSONRPC = JSONRPCVersion
	if resp.ID == nil {
		resp.ID = json.RawMessage("null")
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
