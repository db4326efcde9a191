// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/luxfi/adsdk/pkg/log"
	"github.com/luxfi/adsdk/pkg/metric"
)

const (
	DefaultBatchSize     = 10
	DefaultFlushInterval = 5 * time.Second
	DefaultSendTimeout   = 10 * time.Second
)

// Options configure a Batcher
type Options struct {
	BatchSize     int
	FlushInterval time.Duration
	SendTimeout   time.Duration
	Clock         clock.Clock
	Logger        log.Logger
	Metrics       *metric.Metrics
}

// Batcher queues events and ships them in order. Clicks and a full batch
// flush right away; everything else waits for the periodic tick or a page
// lifecycle trigger. A failed batch goes back to the front of the queue.
type Batcher struct {
	appID     string
	transport Transport
	opts      Options
	log       log.Logger

	mu      sync.Mutex
	queue   []Event
	online  bool
	running bool
	closed  bool
	stop    chan struct{}
	done    chan struct{}

	// sendMu keeps one batch in flight so a requeue cannot reorder events
	sendMu sync.Mutex
	wg     sync.WaitGroup
}

// NewBatcher creates an online batcher that is not yet ticking
func NewBatcher(appID string, transport Transport, opts Options) *Batcher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = log.NoOp()
	}
	return &Batcher{
		appID:     appID,
		transport: transport,
		opts:      opts,
		log:       opts.Logger,
		online:    true,
	}
}

// Track appends ev to the queue
func (b *Batcher) Track(ev Event) {
	b.mu.Lock()
	b.queue = append(b.queue, ev)
	n := len(b.queue)
	b.mu.Unlock()

	if m := b.opts.Metrics; m != nil {
		m.EventsTracked.WithLabelValues(string(ev.Type)).Inc()
	}

	switch {
	case ev.Type == EventClick:
		b.FlushAsync("click")
	case n >= b.opts.BatchSize:
		b.FlushAsync("batch_full")
	}
}

// Flush takes the whole queue and sends it. On failure the batch is put
// back ahead of anything tracked meanwhile.
func (b *Batcher) Flush(ctx context.Context) error {
	b.sendMu.Lock()
	defer b.sendMu.Unlock()

	b.mu.Lock()
	events := b.queue
	b.queue = nil
	b.mu.Unlock()

	if len(events) == 0 {
		return nil
	}

	err := b.transport.Send(ctx, Batch{AppID: b.appID, Events: events})
	if err != nil {
		b.mu.Lock()
		b.queue = append(events, b.queue...)
		b.mu.Unlock()

		if m := b.opts.Metrics; m != nil {
			m.FlushFailures.Inc()
		}
		return fmt.Errorf("flush %d events: %w", len(events), err)
	}

	if m := b.opts.Metrics; m != nil {
		m.EventsFlushed.Add(float64(len(events)))
	}
	b.log.Debug("events flushed", log.Int("count", len(events)))
	return nil
}

// FlushAsync flushes in the background and logs the outcome. It is a no-op
// once the batcher has been stopped.
func (b *Batcher) FlushAsync(reason string) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), b.opts.SendTimeout)
		defer cancel()
		if err := b.Flush(ctx); err != nil {
			b.log.Warn("event flush failed", log.String("reason", reason), log.Error(err))
		}
	}()
}

// SetOnline records connectivity. While offline the periodic tick is
// skipped; coming back online flushes.
func (b *Batcher) SetOnline(online bool) {
	b.mu.Lock()
	recovered := online && !b.online
	b.online = online
	b.mu.Unlock()

	if recovered {
		b.FlushAsync("online")
	}
}

// Start runs the periodic flush worker until ctx ends or Stop is called
func (b *Batcher) Start(ctx context.Context) {
	b.mu.Lock()
	if b.running || b.closed {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.stop = make(chan struct{})
	b.done = make(chan struct{})
	stop, done := b.stop, b.done
	b.mu.Unlock()

	ticker := b.opts.Clock.Ticker(b.opts.FlushInterval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				b.mu.Lock()
				online := b.online
				b.mu.Unlock()
				if online {
					b.FlushAsync("interval")
				}
			}
		}
	}()
}

// Stop ends the worker and waits for background flushes. Events left in
// the queue stay there for a final Flush.
func (b *Batcher) Stop() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	running := b.running
	stop, done := b.stop, b.done
	b.mu.Unlock()

	if running {
		close(stop)
		<-done
	}
	b.wg.Wait()
}

// Pending returns a copy of the queue
func (b *Batcher) Pending() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.queue...)
}

// Len returns the queue length
func (b *Batcher) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
