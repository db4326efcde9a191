// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package adclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/luxfi/adsdk/pkg/ad"
	"github.com/luxfi/adsdk/pkg/analytics"
	"github.com/luxfi/adsdk/pkg/device"
	"github.com/luxfi/adsdk/pkg/ids"
	"github.com/luxfi/adsdk/pkg/log"
	"github.com/luxfi/adsdk/pkg/metric"
)

const DefaultTimeout = 10 * time.Second

var ErrNoFill = errors.New("no ad in response")

// Environment supplies the request context the client merges into targeting
type Environment interface {
	Device() device.Info
	URL() string
	Referrer() string
}

// Recorder receives ad_request events
type Recorder interface {
	Track(ev analytics.Event)
}

// Config for the ad request client
type Config struct {
	AppID             string
	SessionID         string
	SDKVersion        string
	APIEndpoint       string
	AdServingEndpoint string
	EventsEndpoint    string
	Timeout           time.Duration
	RetryAttempts     int
}

// Client talks to the ad serving backend
type Client struct {
	cfg        Config
	env        Environment
	recorder   Recorder
	httpClient *http.Client
	clock      clock.Clock
	log        log.Logger
	metrics    *metric.Metrics
}

// Option customises a Client
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }
func WithClock(clk clock.Clock) Option      { return func(c *Client) { c.clock = clk } }
func WithLogger(l log.Logger) Option        { return func(c *Client) { c.log = l } }
func WithMetrics(m *metric.Metrics) Option  { return func(c *Client) { c.metrics = m } }
func WithRecorder(r Recorder) Option        { return func(c *Client) { c.recorder = r } }

// New creates a client. The timeout bounds each request through its
// context rather than the http.Client.
func New(cfg Config, env Environment, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	cfg.APIEndpoint = strings.TrimRight(cfg.APIEndpoint, "/")
	if cfg.AdServingEndpoint == "" {
		cfg.AdServingEndpoint = cfg.APIEndpoint + "/ads/serve"
	}
	if cfg.EventsEndpoint == "" {
		cfg.EventsEndpoint = cfg.APIEndpoint + "/events"
	}
	c := &Client{
		cfg:        cfg,
		env:        env,
		httpClient: &http.Client{},
		clock:      clock.New(),
		log:        log.NoOp(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetRecorder attaches the event sink after construction
func (c *Client) SetRecorder(r Recorder) { c.recorder = r }

// Request is the ad serving request body
type Request struct {
	AppID     string         `json:"appId"`
	AdUnitID  string         `json:"adUnitId"`
	Format    ad.Format      `json:"format"`
	Targeting map[string]any `json:"targeting"`
	RequestID string         `json:"requestId"`
	SessionID string         `json:"sessionId"`
}

// Response is the ad serving response body. A missing ad is a no-fill.
type Response struct {
	Ad *ad.Payload `json:"ad,omitempty"`
}

// RequestAd asks for an ad. Every failure, including timeouts and
// no-fill, comes back as (nil, false); the reason is recorded as an
// ad_request event.
func (c *Client) RequestAd(ctx context.Context, unitID string, format ad.Format, targeting map[string]any) (*ad.Ad, bool) {
	req := c.BuildRequest(unitID, format, targeting)

	a, err := c.requestAd(ctx, req)
	if err != nil {
		c.log.Debug("ad request failed",
			log.String("adUnitId", unitID),
			log.String("requestId", req.RequestID),
			log.Error(err),
		)
		c.record(unitID, "", map[string]any{
			"success": false,
			"error":   err.Error(),
			"format":  string(format),
		})
		c.count("no_fill")
		return nil, false
	}

	c.record(unitID, a.ID, map[string]any{
		"success": true,
		"format":  string(format),
	})
	c.count("filled")
	return a, true
}

// BuildRequest merges caller targeting with the detected environment. The
// detected device, url and referrer win over caller keys of the same name.
func (c *Client) BuildRequest(unitID string, format ad.Format, targeting map[string]any) Request {
	merged := make(map[string]any, len(targeting)+3)
	for k, v := range targeting {
		merged[k] = v
	}
	if c.env != nil {
		merged["device"] = c.env.Device()
		merged["url"] = c.env.URL()
		merged["referrer"] = c.env.Referrer()
	}
	return Request{
		AppID:     c.cfg.AppID,
		AdUnitID:  unitID,
		Format:    format,
		Targeting: merged,
		RequestID: ids.NewRequestID(),
		SessionID: c.cfg.SessionID,
	}
}

func (c *Client) requestAd(ctx context.Context, body Request) (*ad.Ad, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var resp Response
	if err := c.postJSON(ctx, c.cfg.AdServingEndpoint, body, &resp); err != nil {
		return nil, err
	}
	if resp.Ad == nil {
		return nil, ErrNoFill
	}
	return ad.Decode(body.Format, *resp.Ad)
}

func (c *Client) record(unitID, adID string, data map[string]any) {
	if c.recorder == nil {
		return
	}
	ev := analytics.Event{
		Type:       analytics.EventAdRequest,
		AdUnitID:   unitID,
		AdID:       adID,
		SessionID:  c.cfg.SessionID,
		Timestamp:  c.clock.Now(),
		SDKVersion: c.cfg.SDKVersion,
		Data:       data,
	}
	if c.env != nil {
		info := c.env.Device()
		ev.Page = analytics.PageContext{
			URL:      c.env.URL(),
			Referrer: c.env.Referrer(),
			Viewport: analytics.Viewport{Width: info.ViewportWidth, Height: info.ViewportHeight},
			Device:   &info,
		}
	}
	c.recorder.Track(ev)
}

func (c *Client) count(result string) {
	if c.metrics != nil {
		c.metrics.AdRequests.WithLabelValues(result).Inc()
	}
}

// postJSON posts body and decodes a 2xx response into out when non-nil
func (c *Client) postJSON(ctx context.Context, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-App-Id", c.cfg.AppID)

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// StatusError is a non-2xx answer from the backend
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}
