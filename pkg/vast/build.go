// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vast

import (
	"time"

	"github.com/shopspring/decimal"
)

// AdSystemName is stamped on every document
const AdSystemName = "adsdk"

// Spec is what goes into a single linear ad
type Spec struct {
	AdID       string
	Title      string
	Advertiser string
	VideoURL   string
	ClickURL   string
	Duration   time.Duration
	CPM        decimal.Decimal

	// Track returns the pixel URL for an event, "impression" included
	Track func(event string) string
}

// TrackedEvents are the linear events every built document reports
var TrackedEvents = []string{EventStart, EventFirstQuartile, EventMidpoint, EventThirdQuartile, EventComplete, EventSkip}

// Build turns spec into a one ad VAST document
func Build(spec Spec) *VAST {
	linear := &Linear{
		Duration: FormatDuration(spec.Duration),
		MediaFiles: MediaFiles{MediaFile: []MediaFile{{
			Delivery: "progressive",
			Type:     "video/mp4",
			Width:    1280,
			Height:   720,
			URL:      spec.VideoURL,
		}}},
	}
	if spec.ClickURL != "" {
		linear.VideoClicks = &VideoClicks{ClickThrough: &ClickThrough{URL: spec.ClickURL}}
	}

	inline := &InLine{
		AdSystem:   AdSystem{Name: AdSystemName, Version: Version},
		AdTitle:    spec.Title,
		Advertiser: spec.Advertiser,
		Creatives:  Creatives{Creative: []Creative{{ID: spec.AdID + "-1", AdID: spec.AdID, Linear: linear}}},
	}
	if !spec.CPM.IsZero() {
		inline.Pricing = &Pricing{Model: "CPM", Currency: "USD", Value: spec.CPM.StringFixed(2)}
	}
	if spec.Track != nil {
		inline.Impression = []Impression{{ID: spec.AdID, URL: spec.Track("impression")}}
		inline.Error = []string{spec.Track("error")}
		events := &TrackingEvents{}
		for _, ev := range TrackedEvents {
			events.Tracking = append(events.Tracking, Tracking{Event: ev, URL: spec.Track(ev)})
		}
		linear.TrackingEvents = events
		if linear.VideoClicks != nil {
			linear.VideoClicks.ClickTracking = []ClickTracking{{URL: spec.Track("click")}}
		}
	}

	return &VAST{Version: Version, Ads: []Ad{{ID: spec.AdID, InLine: inline}}}
}
