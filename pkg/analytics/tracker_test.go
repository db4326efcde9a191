// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package analytics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prebid/openrtb/v20/adcom1"
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu     sync.Mutex
	events map[string][]Event
}

func (m *memStore) Append(_ context.Context, batch Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.events == nil {
		m.events = make(map[string][]Event)
	}
	m.events[batch.AppID] = append(m.events[batch.AppID], batch.Events...)
	return nil
}

func (m *memStore) Query(_ context.Context, f QueryFilter) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, ev := range m.events[f.AppID] {
		if f.Matches(f.AppID, ev) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func TestTrackerCounts(t *testing.T) {
	require := require.New(t)
	store := &memStore{}
	tr := NewTracker(store)

	req := &openrtb2.BidRequest{
		ID:     "req_1",
		Site:   &openrtb2.Site{Domain: "example.com"},
		Device: &openrtb2.Device{DeviceType: adcom1.DevicePhone},
	}
	tr.TrackRequest("app_1", req)
	tr.TrackRequest("app_1", req)
	tr.TrackResponse("app_1", true, decimal.RequireFromString("1.25"), 2*time.Millisecond)
	tr.TrackResponse("app_1", false, decimal.Zero, time.Millisecond)

	now := time.Now()
	err := tr.TrackBatch(context.Background(), Batch{AppID: "app_1", Events: []Event{
		{Type: EventImpression, AdUnitID: "slot1", Timestamp: now},
		{Type: EventViewable, AdUnitID: "slot1", Timestamp: now},
		{Type: EventClick, AdUnitID: "slot1", Timestamp: now},
	}})
	require.NoError(err)

	m := tr.GetRealTimeMetrics()
	require.Equal(uint64(2), m["total_requests"])
	require.Equal(0.5, m["fill_rate"])
	require.Equal(1.0, m["ctr"])
	require.Equal("1.25", m["total_revenue"])

	require.Equal("mobile", DeviceClass(req))
	require.Equal(1.0, tr.AppStats["app_1"].Units["slot1"].CTR())

	report, err := tr.GetAppReport(context.Background(), "app_1", now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(err)
	require.Len(report.Events, 3)
	require.True(decimal.RequireFromString("1.25").Equal(report.Revenue))

	_, err = tr.GetAppReport(context.Background(), "missing", now, now)
	require.Error(err)
}

func TestQueryFilter(t *testing.T) {
	require := require.New(t)
	now := time.Now()
	ev := Event{Type: EventClick, AdUnitID: "slot1", Timestamp: now}

	require.True(QueryFilter{}.Matches("app_1", ev))
	require.False(QueryFilter{AppID: "other"}.Matches("app_1", ev))
	require.False(QueryFilter{EventTypes: []EventType{EventImpression}}.Matches("app_1", ev))
	require.True(QueryFilter{AdUnitIDs: []string{"slot1"}}.Matches("app_1", ev))
	require.False(QueryFilter{StartTime: now.Add(time.Second)}.Matches("app_1", ev))
	require.False(QueryFilter{EndTime: now}.Matches("app_1", ev))
}
