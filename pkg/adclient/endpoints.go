// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package adclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/luxfi/adsdk/pkg/analytics"
	"github.com/luxfi/adsdk/pkg/log"
	"github.com/luxfi/adsdk/pkg/vast"
)

// RetryBackoff is the pause before the n-th retry of an events post
var RetryBackoff = 200 * time.Millisecond

var _ analytics.Transport = (*Client)(nil)

// Send posts an event batch to the events endpoint. Server errors and
// network failures are retried up to RetryAttempts times; 4xx answers
// are not.
func (c *Client) Send(ctx context.Context, batch analytics.Batch) error {
	attempts := c.cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("send events: %w", ctx.Err())
			case <-time.After(time.Duration(i) * RetryBackoff):
			}
		}
		err = c.postJSON(ctx, c.cfg.EventsEndpoint, batch, nil)
		if err == nil {
			return nil
		}
		var se *StatusError
		if errors.As(err, &se) && se.Code < 500 {
			break
		}
	}
	return fmt.Errorf("send events: %w", err)
}

// FetchedAd is the demo ad returned by the fetch endpoint
type FetchedAd struct {
	Type       string `json:"type"`
	AssetURL   string `json:"assetUrl"`
	ClickURL   string `json:"clickUrl,omitempty"`
	Name       string `json:"name"`
	Advertiser string `json:"advertiser"`
}

// FetchResponse pairs the ad with the playback id later reports refer to
type FetchResponse struct {
	PlaybackID string    `json:"playbackId"`
	Ad         FetchedAd `json:"ad"`
}

// FetchAd gets an ad of adType for the paywall and demo flows
func (c *Client) FetchAd(ctx context.Context, adType string) (*FetchResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	u := c.cfg.APIEndpoint + "/ads/fetch?type=" + url.QueryEscape(adType)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-App-Id", c.cfg.AppID)

	var out FetchResponse
	if err := c.do(req, &out); err != nil {
		return nil, fmt.Errorf("fetch ad: %w", err)
	}
	return &out, nil
}

// FetchVAST gets a video ad as a VAST document. A document without a
// linear creative is a no-fill.
func (c *Client) FetchVAST(ctx context.Context) (*vast.VAST, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIEndpoint+"/ads/vast", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/xml")
	req.Header.Set("X-App-Id", c.cfg.AppID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch vast: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("fetch vast: %w", err)
	}
	doc, err := vast.Parse(data)
	if err != nil {
		return nil, err
	}
	if _, _, err := doc.Linear(); err != nil {
		return nil, ErrNoFill
	}
	return doc, nil
}

// Playback statuses
const (
	PlaybackStarted   = "started"
	PlaybackCompleted = "completed"
	PlaybackSkipped   = "skipped"
	PlaybackError     = "error"
)

// PlaybackReport tells the backend how a fetched ad played
type PlaybackReport struct {
	PlaybackID   string         `json:"playbackId"`
	Status       string         `json:"status"`
	ViewDuration float64        `json:"viewDuration"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// ReportPlayback posts r. Failures are logged and otherwise ignored.
func (c *Client) ReportPlayback(ctx context.Context, r PlaybackReport) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if err := c.postJSON(ctx, c.cfg.APIEndpoint+"/ads/playback", r, nil); err != nil {
		c.log.Warn("playback report failed",
			log.String("playbackId", r.PlaybackID),
			log.String("status", r.Status),
			log.Error(err),
		)
	}
}

// QueryResult is the answer of the query processing endpoint
type QueryResult struct {
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Message string `json:"message,omitempty"`
}

// ProcessQuery forwards a user query to the backend service named apiType
func (c *Client) ProcessQuery(ctx context.Context, apiType, input string) (*QueryResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body := map[string]string{"apiType": apiType, "userInput": input}
	var out QueryResult
	if err := c.postJSON(ctx, c.cfg.APIEndpoint+"/process-query", body, &out); err != nil {
		return nil, fmt.Errorf("process query: %w", err)
	}
	return &out, nil
}
