// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/adsdk/pkg/analytics"
	"github.com/luxfi/adsdk/pkg/log"
)

func sampleBatch(base time.Time) analytics.Batch {
	return analytics.Batch{
		AppID: "app_1",
		Events: []analytics.Event{
			{Type: analytics.EventClick, AdUnitID: "slot2", AdID: "ad_2", SessionID: "s1", Timestamp: base.Add(2 * time.Second)},
			{Type: analytics.EventImpression, AdUnitID: "slot1", AdID: "ad_1", SessionID: "s1", Timestamp: base,
				Page: analytics.PageContext{URL: "https://pub.example", Viewport: analytics.Viewport{Width: 1280, Height: 800}},
				Data: map[string]any{"format": "banner"}},
			{Type: analytics.EventViewable, AdUnitID: "slot1", AdID: "ad_1", SessionID: "s1", Timestamp: base.Add(time.Second)},
		},
	}
}

func TestMemoryStoreQuery(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	s := NewMemoryStore()
	require.NoError(s.Append(ctx, sampleBatch(base)))
	require.NoError(s.Append(ctx, analytics.Batch{AppID: "app_2", Events: []analytics.Event{{Type: analytics.EventClick, Timestamp: base}}}))
	require.Equal(4, s.Len())

	all, err := s.Query(ctx, analytics.QueryFilter{AppID: "app_1"})
	require.NoError(err)
	require.Len(all, 3)
	require.Equal(analytics.EventImpression, all[0].Type, "ordered by event time")
	require.Equal(analytics.EventClick, all[2].Type)
	require.Equal("https://pub.example", all[0].Page.URL)
	require.Equal("banner", all[0].Data["format"])

	slot1, err := s.Query(ctx, analytics.QueryFilter{AdUnitIDs: []string{"slot1"}, Limit: 1})
	require.NoError(err)
	require.Len(slot1, 1)
	require.Equal("ad_1", slot1[0].AdID)

	clicks, err := s.Query(ctx, analytics.QueryFilter{EventTypes: []analytics.EventType{analytics.EventClick}})
	require.NoError(err)
	require.Len(clicks, 2)

	window, err := s.Query(ctx, analytics.QueryFilter{AppID: "app_1", StartTime: base.Add(time.Second), EndTime: base.Add(2 * time.Second)})
	require.NoError(err)
	require.Len(window, 1)
	require.Equal(analytics.EventViewable, window[0].Type)
}

func TestMemoryStoreCancelled(t *testing.T) {
	require := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewMemoryStore()
	require.ErrorIs(s.Append(ctx, sampleBatch(time.Now())), context.Canceled)
	_, err := s.Query(ctx, analytics.QueryFilter{})
	require.ErrorIs(err, context.Canceled)
}

func TestNewUnknownKind(t *testing.T) {
	_, err := New(context.Background(), "fdb", "", log.NoOp())
	require.Error(t, err)

	s, err := New(context.Background(), "", "", log.NoOp())
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, s)
}

func newMock(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLStore(db, log.NoOp()), mock
}

func TestSQLStoreMigrate(t *testing.T) {
	require := require.New(t)
	s, mock := newMock(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS ad_events").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(s.Migrate(context.Background()))

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))
	require.ErrorContains(s.Migrate(context.Background()), "permission denied")
	require.NoError(mock.ExpectationsWereMet())
}

func TestSQLStoreAppend(t *testing.T) {
	require := require.New(t)
	s, mock := newMock(t)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	received := base.Add(time.Minute)
	s.now = func() time.Time { return received }

	batch := sampleBatch(base)
	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO ad_events"))
	for _, ev := range batch.Events {
		prep.ExpectExec().
			WithArgs("app_1", string(ev.Type), ev.AdUnitID, ev.AdID, "s1", "", ev.Timestamp, sqlmock.AnyArg(), sqlmock.AnyArg(), received).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	require.NoError(s.Append(context.Background(), batch))
	require.NoError(mock.ExpectationsWereMet())
}

func TestSQLStoreAppendRollsBack(t *testing.T) {
	require := require.New(t)
	s, mock := newMock(t)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO ad_events")
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.Append(context.Background(), sampleBatch(time.Now()))
	require.ErrorContains(err, "disk full")
	require.NoError(mock.ExpectationsWereMet())
}

func TestSQLStoreAppendEmpty(t *testing.T) {
	s, mock := newMock(t)
	require.NoError(t, s.Append(context.Background(), analytics.Batch{AppID: "app_1"}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreQuery(t *testing.T) {
	require := require.New(t)
	s, mock := newMock(t)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	cols := []string{"id", "app_id", "type", "ad_unit_id", "ad_id", "session_id", "sdk_version", "ts", "page", "data", "received_at"}
	rows := sqlmock.NewRows(cols).
		AddRow(1, "app_1", "impression", "slot1", "ad_1", "s1", "2.0.0", base, []byte(`{"url":"https://pub.example","viewport":{"width":1,"height":2}}`), []byte(`{"format":"banner"}`), base).
		AddRow(2, "app_1", "click", "slot1", "ad_1", "s1", "2.0.0", base.Add(time.Second), []byte(`{"url":""}`), nil, base)

	mock.ExpectQuery(regexp.QuoteMeta("FROM ad_events WHERE app_id = $1 AND ts >= $2 AND type IN ($3, $4) ORDER BY ts, id LIMIT $5")).
		WithArgs("app_1", base, "impression", "click", 10).
		WillReturnRows(rows)

	evs, err := s.Query(context.Background(), analytics.QueryFilter{
		AppID:      "app_1",
		StartTime:  base,
		EventTypes: []analytics.EventType{analytics.EventImpression, analytics.EventClick},
		Limit:      10,
	})
	require.NoError(err)
	require.Len(evs, 2)
	require.Equal("https://pub.example", evs[0].Page.URL)
	require.Equal(2, evs[0].Page.Viewport.Height)
	require.Equal("banner", evs[0].Data["format"])
	require.Nil(evs[1].Data)
	require.NoError(mock.ExpectationsWereMet())
}

func TestBuildQueryNoFilter(t *testing.T) {
	q, args := buildQuery(analytics.QueryFilter{})
	require.NotContains(t, q, "WHERE")
	require.Contains(t, q, "ORDER BY ts, id")
	require.Empty(t, args)
}
