// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metric

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors shared by the SDK and the reference backend
type Metrics struct {
	registry *prometheus.Registry

	// Event pipeline
	EventsTracked *prometheus.CounterVec
	EventsFlushed prometheus.Counter
	FlushFailures prometheus.Counter

	// Ad delivery
	AdRequests  *prometheus.CounterVec
	Impressions prometheus.Counter
	Clicks      prometheus.Counter
	Viewable    prometheus.Counter

	// Payment unlock
	Payments *prometheus.CounterVec

	// HTTP surface of the reference backend
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec
}

// NewMetrics creates the collectors on a private registry
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithRegistry(prometheus.NewRegistry())
}

// NewMetricsWithRegistry creates the collectors and registers them on reg
func NewMetricsWithRegistry(reg *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		registry: reg,
		EventsTracked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adsdk",
			Name:      "events_tracked_total",
			Help:      "Total number of telemetry events queued by type",
		}, []string{"type"}),
		EventsFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adsdk",
			Name:      "events_flushed_total",
			Help:      "Total number of telemetry events delivered to the events endpoint",
		}),
		FlushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adsdk",
			Name:      "event_flush_failures_total",
			Help:      "Total number of failed event flushes",
		}),
		AdRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adsdk",
			Name:      "ad_requests_total",
			Help:      "Total number of ad requests by result",
		}, []string{"result"}),
		Impressions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adsdk",
			Name:      "impressions_total",
			Help:      "Total number of rendered ads",
		}),
		Clicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adsdk",
			Name:      "clicks_total",
			Help:      "Total number of ad clicks",
		}),
		Viewable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adsdk",
			Name:      "viewable_impressions_total",
			Help:      "Total number of viewable events",
		}),
		Payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adsdk",
			Name:      "payments_total",
			Help:      "Total number of payment unlock attempts by outcome",
		}, []string{"outcome"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adsdk",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		HTTPLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "adsdk",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	for _, c := range []prometheus.Collector{
		m.EventsTracked, m.EventsFlushed, m.FlushFailures,
		m.AdRequests, m.Impressions, m.Clicks, m.Viewable,
		m.Payments, m.HTTPRequests, m.HTTPLatency,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return m, nil
}

// MustNew is NewMetrics for call sites that cannot fail
func MustNew() *Metrics {
	m, err := NewMetrics()
	if err != nil {
		panic(err)
	}
	return m
}

// GetGatherer returns the prometheus gatherer for metrics export
func (m *Metrics) GetGatherer() prometheus.Gatherer {
	return m.registry
}

// GetRegisterer returns the prometheus registerer
func (m *Metrics) GetRegisterer() prometheus.Registerer {
	return m.registry
}
