// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package storage persists analytics events, in memory or in Postgres.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/luxfi/adsdk/pkg/analytics"
	"github.com/luxfi/adsdk/pkg/log"
)

// Store is an event store that owns resources
type Store interface {
	analytics.EventStore
	Close() error
}

// Kinds accepted by New
const (
	KindMemory   = "memory"
	KindPostgres = "postgres"
)

// New opens a store of the given kind. Postgres stores are migrated before
// they are returned.
func New(ctx context.Context, kind, dsn string, logger log.Logger) (Store, error) {
	switch kind {
	case "", KindMemory:
		return NewMemoryStore(), nil
	case KindPostgres:
		s, err := OpenSQL(dsn, logger)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store kind %q", kind)
	}
}

// MemoryStore keeps events in process, in arrival order
type MemoryStore struct {
	mu      sync.RWMutex
	records []EventRecord
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (m *MemoryStore) Append(ctx context.Context, batch analytics.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	recs := make([]EventRecord, 0, len(batch.Events))
	received := m.now()
	for _, ev := range batch.Events {
		r, err := toRecord(batch.AppID, ev, received)
		if err != nil {
			return err
		}
		recs = append(recs, r)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range recs {
		recs[i].ID = int64(len(m.records) + 1)
		m.records = append(m.records, recs[i])
	}
	return nil
}

// Query returns matching events ordered by event time
func (m *MemoryStore) Query(ctx context.Context, f analytics.QueryFilter) ([]analytics.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	recs := append([]EventRecord(nil), m.records...)
	m.mu.RUnlock()

	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Timestamp.Before(recs[j].Timestamp) })

	var out []analytics.Event
	for _, r := range recs {
		ev, err := r.event()
		if err != nil {
			return nil, err
		}
		if !f.Matches(r.AppID, ev) {
			continue
		}
		out = append(out, ev)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// Len is the number of stored events
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *MemoryStore) Close() error { return nil }
