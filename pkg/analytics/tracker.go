// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package analytics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prebid/openrtb/v20/adcom1"
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/shopspring/decimal"
)

var ErrUnknownApp = errors.New("app not found")

// Tracker aggregates delivery telemetry on the serving side. It counts ad
// requests as they are served and folds in the event batches the SDK
// posts back.
type Tracker struct {
	// Real-time counters
	TotalRequests    atomic.Uint64
	TotalFilled      atomic.Uint64
	TotalImpressions atomic.Uint64
	TotalViewable    atomic.Uint64
	TotalClicks      atomic.Uint64
	TotalDismissals  atomic.Uint64
	TotalCompletions atomic.Uint64
	TotalRevenue     atomic.Uint64 // In micro USD

	// Average serve latency in microseconds
	AverageLatency atomic.Uint64

	TimeSeries *TimeSeriesData

	mu       sync.RWMutex
	AppStats map[string]*AppStats

	storage EventStore
}

// TimeSeriesData stores time-bucketed counts
type TimeSeriesData struct {
	Buckets    map[int64]*MetricBucket
	BucketSize time.Duration
	mu         sync.RWMutex
}

// MetricBucket holds the counts for one time period
type MetricBucket struct {
	Timestamp   time.Time
	Requests    uint64
	Events      map[EventType]uint64
	UniqueUsers map[string]bool
	TopDomains  map[string]uint64
}

// AppStats tracks per-app delivery
type AppStats struct {
	AppID       string
	Requests    uint64
	Filled      uint64
	Impressions uint64
	Viewable    uint64
	Clicks      uint64
	Revenue     decimal.Decimal
	Units       map[string]*UnitStats
}

// UnitStats tracks one ad unit
type UnitStats struct {
	AdUnitID    string
	Impressions uint64
	Clicks      uint64
}

// CTR is clicks over impressions
func (u *UnitStats) CTR() float64 {
	if u.Impressions == 0 {
		return 0
	}
	return float64(u.Clicks) / float64(u.Impressions)
}

// EventStore persists received events
type EventStore interface {
	Append(ctx context.Context, batch Batch) error
	Query(ctx context.Context, filter QueryFilter) ([]Event, error)
}

// QueryFilter for retrieving events. Zero fields match everything.
type QueryFilter struct {
	AppID      string
	StartTime  time.Time
	EndTime    time.Time
	EventTypes []EventType
	AdUnitIDs  []string
	Limit      int
}

// Matches reports whether ev passes the filter
func (f QueryFilter) Matches(appID string, ev Event) bool {
	if f.AppID != "" && f.AppID != appID {
		return false
	}
	if !f.StartTime.IsZero() && ev.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && !ev.Timestamp.Before(f.EndTime) {
		return false
	}
	if len(f.EventTypes) > 0 && !contains(f.EventTypes, ev.Type) {
		return false
	}
	if len(f.AdUnitIDs) > 0 && !contains(f.AdUnitIDs, ev.AdUnitID) {
		return false
	}
	return true
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// NewTracker creates a tracker that persists into store
func NewTracker(store EventStore) *Tracker {
	return &Tracker{
		TimeSeries: &TimeSeriesData{
			Buckets:    make(map[int64]*MetricBucket),
			BucketSize: time.Minute,
		},
		AppStats: make(map[string]*AppStats),
		storage:  store,
	}
}

// TrackRequest counts an ad request in its OpenRTB form
func (a *Tracker) TrackRequest(appID string, request *openrtb2.BidRequest) {
	a.TotalRequests.Add(1)

	a.mu.Lock()
	a.app(appID).Requests++
	a.mu.Unlock()

	a.updateTimeSeries(func(b *MetricBucket) {
		b.Requests++
		if request.User != nil && request.User.ID != "" {
			b.UniqueUsers[request.User.ID] = true
		}
		if request.Site != nil && request.Site.Domain != "" {
			b.TopDomains[request.Site.Domain]++
		}
	})
}

// TrackResponse records the fill outcome, the winning price and latency
func (a *Tracker) TrackResponse(appID string, filled bool, price decimal.Decimal, latency time.Duration) {
	if filled {
		a.TotalFilled.Add(1)
		a.TotalRevenue.Add(uint64(price.Shift(6).IntPart()))

		a.mu.Lock()
		s := a.app(appID)
		s.Filled++
		s.Revenue = s.Revenue.Add(price)
		a.mu.Unlock()
	}
	a.updateLatency(uint64(latency.Microseconds()))
}

// TrackBatch folds a posted event batch into the counters and persists it
func (a *Tracker) TrackBatch(ctx context.Context, batch Batch) error {
	a.mu.Lock()
	s := a.app(batch.AppID)
	for _, ev := range batch.Events {
		unit := s.unit(ev.AdUnitID)
		switch ev.Type {
		case EventImpression:
			a.TotalImpressions.Add(1)
			s.Impressions++
			unit.Impressions++
		case EventViewable:
			a.TotalViewable.Add(1)
			s.Viewable++
		case EventClick:
			a.TotalClicks.Add(1)
			s.Clicks++
			unit.Clicks++
		case EventDismiss:
			a.TotalDismissals.Add(1)
		case EventComplete:
			a.TotalCompletions.Add(1)
		}
	}
	a.mu.Unlock()

	a.updateTimeSeries(func(b *MetricBucket) {
		for _, ev := range batch.Events {
			b.Events[ev.Type]++
			if ev.SessionID != "" {
				b.UniqueUsers[ev.SessionID] = true
			}
		}
	})

	if a.storage == nil {
		return nil
	}
	if err := a.storage.Append(ctx, batch); err != nil {
		return fmt.Errorf("store batch: %w", err)
	}
	return nil
}

// GetRealTimeMetrics returns current real-time metrics
func (a *Tracker) GetRealTimeMetrics() map[string]interface{} {
	requests := a.TotalRequests.Load()
	impressions := a.TotalImpressions.Load()
	return map[string]interface{}{
		"total_requests":    requests,
		"total_filled":      a.TotalFilled.Load(),
		"total_impressions": impressions,
		"total_viewable":    a.TotalViewable.Load(),
		"total_clicks":      a.TotalClicks.Load(),
		"total_completions": a.TotalCompletions.Load(),
		"total_revenue":     decimal.New(int64(a.TotalRevenue.Load()), -6).StringFixed(2),
		"fill_rate":         ratio(a.TotalFilled.Load(), requests),
		"viewability_rate":  ratio(a.TotalViewable.Load(), impressions),
		"ctr":               ratio(a.TotalClicks.Load(), impressions),
		"avg_latency_ms":    float64(a.AverageLatency.Load()) / 1000.0,
	}
}

// AppReport summarises one app over a time range
type AppReport struct {
	AppID       string
	Start, End  time.Time
	Requests    uint64
	FillRate    float64
	Impressions uint64
	Clicks      uint64
	Revenue     decimal.Decimal
	Events      []Event
}

// GetAppReport combines live counters with the stored events of the range
func (a *Tracker) GetAppReport(ctx context.Context, appID string, start, end time.Time) (*AppReport, error) {
	a.mu.RLock()
	stats, ok := a.AppStats[appID]
	var report AppReport
	if ok {
		report = AppReport{
			AppID:       appID,
			Start:       start,
			End:         end,
			Requests:    stats.Requests,
			FillRate:    ratio(stats.Filled, stats.Requests),
			Impressions: stats.Impressions,
			Clicks:      stats.Clicks,
			Revenue:     stats.Revenue,
		}
	}
	a.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownApp, appID)
	}
	if a.storage == nil {
		return &report, nil
	}

	events, err := a.storage.Query(ctx, QueryFilter{AppID: appID, StartTime: start, EndTime: end})
	if err != nil {
		return nil, err
	}
	report.Events = events
	return &report, nil
}

// DeviceClass names the OpenRTB device type for reporting
func DeviceClass(request *openrtb2.BidRequest) string {
	if request.Device == nil {
		return "unknown"
	}
	switch request.Device.DeviceType {
	case adcom1.DeviceTV, adcom1.DeviceConnected, adcom1.DeviceSetTopBox:
		return "ctv"
	case adcom1.DeviceMobile, adcom1.DevicePhone:
		return "mobile"
	case adcom1.DeviceTablet:
		return "tablet"
	default:
		return "desktop"
	}
}

func (a *Tracker) app(appID string) *AppStats {
	s, ok := a.AppStats[appID]
	if !ok {
		s = &AppStats{AppID: appID, Units: make(map[string]*UnitStats)}
		a.AppStats[appID] = s
	}
	return s
}

func (s *AppStats) unit(id string) *UnitStats {
	u, ok := s.Units[id]
	if !ok {
		u = &UnitStats{AdUnitID: id}
		s.Units[id] = u
	}
	return u
}

func (a *Tracker) updateTimeSeries(fn func(*MetricBucket)) {
	size := int64(a.TimeSeries.BucketSize.Seconds())
	bucket := time.Now().Unix() / size

	a.TimeSeries.mu.Lock()
	defer a.TimeSeries.mu.Unlock()

	b, ok := a.TimeSeries.Buckets[bucket]
	if !ok {
		b = &MetricBucket{
			Timestamp:   time.Unix(bucket*size, 0),
			Events:      make(map[EventType]uint64),
			UniqueUsers: make(map[string]bool),
			TopDomains:  make(map[string]uint64),
		}
		a.TimeSeries.Buckets[bucket] = b
	}
	fn(b)
}

func (a *Tracker) updateLatency(latencyMicros uint64) {
	// Simple moving average over requests
	current := a.AverageLatency.Load()
	count := a.TotalRequests.Load()
	if count > 0 {
		a.AverageLatency.Store(((current * (count - 1)) + latencyMicros) / count)
	}
}

func ratio(n, d uint64) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
