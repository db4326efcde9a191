// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/luxfi/adsdk/pkg/analytics"
)

// EventRecord is an event as persisted: the envelope in columns, page
// context and payload as JSON.
type EventRecord struct {
	ID         int64
	AppID      string
	Type       string
	AdUnitID   string
	AdID       string
	SessionID  string
	SDKVersion string
	Timestamp  time.Time
	Page       []byte
	Data       []byte
	ReceivedAt time.Time
}

func toRecord(appID string, ev analytics.Event, received time.Time) (EventRecord, error) {
	page, err := json.Marshal(ev.Page)
	if err != nil {
		return EventRecord{}, fmt.Errorf("encode page: %w", err)
	}
	var data []byte
	if len(ev.Data) > 0 {
		if data, err = json.Marshal(ev.Data); err != nil {
			return EventRecord{}, fmt.Errorf("encode data: %w", err)
		}
	}
	return EventRecord{
		AppID:      appID,
		Type:       string(ev.Type),
		AdUnitID:   ev.AdUnitID,
		AdID:       ev.AdID,
		SessionID:  ev.SessionID,
		SDKVersion: ev.SDKVersion,
		Timestamp:  ev.Timestamp.UTC(),
		Page:       page,
		Data:       data,
		ReceivedAt: received.UTC(),
	}, nil
}

func (r EventRecord) event() (analytics.Event, error) {
	ev := analytics.Event{
		Type:       analytics.EventType(r.Type),
		AdUnitID:   r.AdUnitID,
		AdID:       r.AdID,
		SessionID:  r.SessionID,
		SDKVersion: r.SDKVersion,
		Timestamp:  r.Timestamp,
	}
	if len(r.Page) > 0 {
		if err := json.Unmarshal(r.Page, &ev.Page); err != nil {
			return ev, fmt.Errorf("decode page of event %d: %w", r.ID, err)
		}
	}
	if len(r.Data) > 0 {
		if err := json.Unmarshal(r.Data, &ev.Data); err != nil {
			return ev, fmt.Errorf("decode data of event %d: %w", r.ID, err)
		}
	}
	return ev, nil
}
