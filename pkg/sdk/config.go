// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sdk

import (
	"strings"
	"time"

	"github.com/luxfi/adsdk/pkg/adclient"
	"github.com/luxfi/adsdk/pkg/analytics"
	"github.com/luxfi/adsdk/pkg/viewability"
)

// DefaultAPIEndpoint is used when neither the config nor the embed tag
// names a backend
const DefaultAPIEndpoint = "http://localhost:3000/api"

// Config is merged over DefaultConfig: zero fields take the default.
// Feature switches are phrased so that their zero value is the default.
type Config struct {
	AppID string

	APIEndpoint       string
	EventsEndpoint    string
	AdServingEndpoint string

	RetryAttempts int
	Timeout       time.Duration

	ViewabilityThreshold float64
	ViewabilityDuration  time.Duration

	BatchSize     int
	FlushInterval time.Duration

	DisableFraudDetection     bool
	DisableViewability        bool
	DisableAdBlockerDetection bool
	EnableLazyLoad            bool
}

// DefaultConfig returns the documented defaults
func DefaultConfig() Config {
	return Config{
		APIEndpoint:          DefaultAPIEndpoint,
		EventsEndpoint:       DefaultAPIEndpoint + "/events",
		AdServingEndpoint:    DefaultAPIEndpoint + "/ads/serve",
		RetryAttempts:        3,
		Timeout:              adclient.DefaultTimeout,
		ViewabilityThreshold: viewability.DefaultThreshold,
		ViewabilityDuration:  viewability.DefaultDuration,
		BatchSize:            analytics.DefaultBatchSize,
		FlushInterval:        analytics.DefaultFlushInterval,
	}
}

// withDefaults fills zero fields. Endpoints derive from APIEndpoint when
// only the base is overridden.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.APIEndpoint == "" {
		c.APIEndpoint = def.APIEndpoint
	}
	c.APIEndpoint = strings.TrimRight(c.APIEndpoint, "/")
	if c.EventsEndpoint == "" {
		c.EventsEndpoint = c.APIEndpoint + "/events"
	}
	if c.AdServingEndpoint == "" {
		c.AdServingEndpoint = c.APIEndpoint + "/ads/serve"
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = def.RetryAttempts
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.ViewabilityThreshold <= 0 || c.ViewabilityThreshold > 1 {
		c.ViewabilityThreshold = def.ViewabilityThreshold
	}
	if c.ViewabilityDuration <= 0 {
		c.ViewabilityDuration = def.ViewabilityDuration
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = def.FlushInterval
	}
	return c
}
