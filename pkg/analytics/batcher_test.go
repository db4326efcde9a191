// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package analytics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/adsdk/pkg/log"
	"github.com/luxfi/adsdk/pkg/metric"
)

var errNetwork = errors.New("network down")

// recorder is a Transport that keeps every delivered batch
type recorder struct {
	mu      sync.Mutex
	batches []Batch
	fail    bool
}

func (r *recorder) Send(_ context.Context, batch Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errNetwork
	}
	r.batches = append(r.batches, batch)
	return nil
}

func (r *recorder) setFail(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = fail
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func (r *recorder) ids() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out [][]string
	for _, b := range r.batches {
		var ids []string
		for _, ev := range b.Events {
			ids = append(ids, ev.AdID)
		}
		out = append(out, ids)
	}
	return out
}

func event(typ EventType, id string) Event {
	return Event{Type: typ, AdID: id, SessionID: "sess_1", Timestamp: time.Unix(1700000000, 0)}
}

func newTestBatcher(tr Transport) (*Batcher, *clock.Mock) {
	mock := clock.NewMock()
	return NewBatcher("app_1", tr, Options{Clock: mock, Logger: log.NoOp()}), mock
}

func TestNoEarlyFlush(t *testing.T) {
	require := require.New(t)
	rec := &recorder{}
	b, _ := newTestBatcher(rec)

	for i := 0; i < 9; i++ {
		b.Track(event(EventImpression, fmt.Sprint(i)))
	}
	require.Never(func() bool { return rec.count() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	require.Equal(9, b.Len())

	b.Track(event(EventViewable, "9"))
	require.Eventually(func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	require.Equal([][]string{{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"}}, rec.ids())
	require.Equal("app_1", rec.batches[0].AppID)
	require.Zero(b.Len())
}

func TestClickFlushesImmediately(t *testing.T) {
	require := require.New(t)
	rec := &recorder{}
	b, _ := newTestBatcher(rec)

	b.Track(event(EventImpression, "a"))
	b.Track(event(EventViewable, "b"))
	b.Track(event(EventClick, "c"))

	require.Eventually(func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	require.Equal([][]string{{"a", "b", "c"}}, rec.ids())
}

func TestFailedFlushRequeuesAtFront(t *testing.T) {
	require := require.New(t)
	rec := &recorder{fail: true}
	b, _ := newTestBatcher(rec)

	b.Track(event(EventImpression, "a"))
	b.Track(event(EventImpression, "b"))
	err := b.Flush(context.Background())
	require.ErrorIs(err, errNetwork)

	b.Track(event(EventImpression, "c"))
	pending := b.Pending()
	require.Len(pending, 3)
	require.Equal("a", pending[0].AdID)
	require.Equal("b", pending[1].AdID)
	require.Equal("c", pending[2].AdID)

	rec.setFail(false)
	require.NoError(b.Flush(context.Background()))
	require.Equal([][]string{{"a", "b", "c"}}, rec.ids())
}

func TestConcurrentTrackDuringFailure(t *testing.T) {
	require := require.New(t)

	release := make(chan struct{})
	entered := make(chan struct{})
	tr := TransportFunc(func(ctx context.Context, batch Batch) error {
		close(entered)
		<-release
		return errNetwork
	})
	b, _ := newTestBatcher(tr)
	b.Track(event(EventImpression, "a"))

	errc := make(chan error, 1)
	go func() { errc <- b.Flush(context.Background()) }()
	<-entered

	b.Track(event(EventImpression, "late"))
	close(release)
	require.Error(<-errc)

	pending := b.Pending()
	require.Len(pending, 2)
	require.Equal("a", pending[0].AdID)
	require.Equal("late", pending[1].AdID)
}

func TestPeriodicFlush(t *testing.T) {
	require := require.New(t)
	rec := &recorder{}
	b, mock := newTestBatcher(rec)
	b.Start(context.Background())
	defer b.Stop()

	b.Track(event(EventImpression, "a"))
	mock.Add(4 * time.Second)
	require.Never(func() bool { return rec.count() > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	mock.Add(time.Second)
	require.Eventually(func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestOfflinePausesInterval(t *testing.T) {
	require := require.New(t)
	rec := &recorder{}
	b, mock := newTestBatcher(rec)
	b.Start(context.Background())
	defer b.Stop()

	b.SetOnline(false)
	b.Track(event(EventImpression, "a"))
	mock.Add(10 * time.Second)
	require.Never(func() bool { return rec.count() > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	b.SetOnline(true)
	require.Eventually(func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestStopWaitsAndKeepsQueue(t *testing.T) {
	require := require.New(t)
	rec := &recorder{}
	b, _ := newTestBatcher(rec)
	b.Start(context.Background())

	b.Track(event(EventImpression, "a"))
	b.Stop()
	b.Stop()

	// no background flushes after stop
	for i := 0; i < 10; i++ {
		b.Track(event(EventImpression, fmt.Sprint(i)))
	}
	require.Equal(11, b.Len())
	require.Zero(rec.count())

	require.NoError(b.Flush(context.Background()))
	require.Equal(1, rec.count())
}

func TestBatcherMetrics(t *testing.T) {
	require := require.New(t)
	m, err := metric.NewMetrics()
	require.NoError(err)

	rec := &recorder{}
	b := NewBatcher("app_1", rec, Options{Clock: clock.NewMock(), Metrics: m})
	b.Track(event(EventImpression, "a"))
	b.Track(event(EventImpression, "b"))
	require.NoError(b.Flush(context.Background()))

	rec.setFail(true)
	b.Track(event(EventViewable, "c"))
	require.Error(b.Flush(context.Background()))

	require.Equal(2.0, testutil.ToFloat64(m.EventsTracked.WithLabelValues("impression")))
	require.Equal(2.0, testutil.ToFloat64(m.EventsFlushed))
	require.Equal(1.0, testutil.ToFloat64(m.FlushFailures))
}
