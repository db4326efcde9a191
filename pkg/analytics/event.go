// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package analytics

import (
	"context"
	"time"

	"github.com/luxfi/adsdk/pkg/device"
)

// EventType is the kind of ad lifecycle event
type EventType string

const (
	EventAdRequest  EventType = "ad_request"
	EventImpression EventType = "impression"
	EventViewable   EventType = "viewable"
	EventClick      EventType = "click"
	EventDismiss    EventType = "dismiss"
	EventComplete   EventType = "complete"
	EventAdBlocker  EventType = "ad_blocker"
)

// Viewport is the page viewport at event time
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// PageContext is stamped on every event
type PageContext struct {
	URL      string       `json:"url"`
	Referrer string       `json:"referrer,omitempty"`
	Viewport Viewport     `json:"viewport"`
	Device   *device.Info `json:"device,omitempty"`
}

// Event is one telemetry record
type Event struct {
	Type       EventType      `json:"type"`
	AdUnitID   string         `json:"adUnitId,omitempty"`
	AdID       string         `json:"adId,omitempty"`
	SessionID  string         `json:"sessionId"`
	Timestamp  time.Time      `json:"timestamp"`
	Page       PageContext    `json:"page"`
	SDKVersion string         `json:"sdkVersion"`
	Data       map[string]any `json:"data,omitempty"`
}

// Batch is the body posted to the events endpoint
type Batch struct {
	AppID  string  `json:"appId"`
	Events []Event `json:"events"`
}

// Transport delivers a batch. A non-nil error means nothing was stored.
type Transport interface {
	Send(ctx context.Context, batch Batch) error
}

// TransportFunc adapts a function to Transport
type TransportFunc func(ctx context.Context, batch Batch) error

func (f TransportFunc) Send(ctx context.Context, batch Batch) error {
	return f(ctx, batch)
}
