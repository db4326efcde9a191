// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/luxfi/adsdk/pkg/analytics"
	"github.com/luxfi/adsdk/pkg/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS ad_events (
	id          BIGSERIAL PRIMARY KEY,
	app_id      TEXT        NOT NULL,
	type        TEXT        NOT NULL,
	ad_unit_id  TEXT        NOT NULL DEFAULT '',
	ad_id       TEXT        NOT NULL DEFAULT '',
	session_id  TEXT        NOT NULL DEFAULT '',
	sdk_version TEXT        NOT NULL DEFAULT '',
	ts          TIMESTAMPTZ NOT NULL,
	page        JSONB,
	data        JSONB,
	received_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS ad_events_app_ts ON ad_events (app_id, ts);`

const insertEvent = `INSERT INTO ad_events
	(app_id, type, ad_unit_id, ad_id, session_id, sdk_version, ts, page, data, received_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

const selectEvents = `SELECT id, app_id, type, ad_unit_id, ad_id, session_id, sdk_version, ts, page, data, received_at
	FROM ad_events`

// QueryTimeout bounds each statement
var QueryTimeout = 5 * time.Second

// SQLStore keeps events in Postgres through database/sql and the pgx driver
type SQLStore struct {
	db  *sql.DB
	log log.Logger
	now func() time.Time
}

var _ Store = (*SQLStore)(nil)

// OpenSQL connects with the pgx driver
func OpenSQL(dsn string, logger log.Logger) (*SQLStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(time.Minute)
	return NewSQLStore(db, logger), nil
}

// NewSQLStore wraps an open handle
func NewSQLStore(db *sql.DB, logger log.Logger) *SQLStore {
	return &SQLStore{db: db, log: logger, now: time.Now}
}

// Migrate creates the table and index when missing
func (s *SQLStore) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Append writes the batch in one transaction
func (s *SQLStore) Append(ctx context.Context, batch analytics.Batch) error {
	if len(batch.Events) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertEvent)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	received := s.now()
	for _, ev := range batch.Events {
		r, err := toRecord(batch.AppID, ev, received)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			r.AppID, r.Type, r.AdUnitID, r.AdID, r.SessionID, r.SDKVersion,
			r.Timestamp, r.Page, nullJSON(r.Data), r.ReceivedAt,
		); err != nil {
			return fmt.Errorf("insert %s event: %w", r.Type, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.log.Debug("events stored", log.String("appId", batch.AppID), log.Int("count", len(batch.Events)))
	return nil
}

// Query returns matching events ordered by event time
func (s *SQLStore) Query(ctx context.Context, f analytics.QueryFilter) ([]analytics.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	query, args := buildQuery(f)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []analytics.Event
	for rows.Next() {
		var r EventRecord
		if err := rows.Scan(&r.ID, &r.AppID, &r.Type, &r.AdUnitID, &r.AdID, &r.SessionID,
			&r.SDKVersion, &r.Timestamp, &r.Page, &r.Data, &r.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev, err := r.event()
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SQLStore) Close() error { return s.db.Close() }

func buildQuery(f analytics.QueryFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.AppID != "" {
		where = append(where, "app_id = "+arg(f.AppID))
	}
	if !f.StartTime.IsZero() {
		where = append(where, "ts >= "+arg(f.StartTime.UTC()))
	}
	if !f.EndTime.IsZero() {
		where = append(where, "ts < "+arg(f.EndTime.UTC()))
	}
	if len(f.EventTypes) > 0 {
		ph := make([]string, len(f.EventTypes))
		for i, t := range f.EventTypes {
			ph[i] = arg(string(t))
		}
		where = append(where, "type IN ("+strings.Join(ph, ", ")+")")
	}
	if len(f.AdUnitIDs) > 0 {
		ph := make([]string, len(f.AdUnitIDs))
		for i, id := range f.AdUnitIDs {
			ph[i] = arg(id)
		}
		where = append(where, "ad_unit_id IN ("+strings.Join(ph, ", ")+")")
	}

	q := selectEvents
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY ts, id"
	if f.Limit > 0 {
		q += " LIMIT " + arg(f.Limit)
	}
	return q, args
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
