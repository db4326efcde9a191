// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package device

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/luxfi/adsdk/pkg/dom"
)

// BaitClasses are the class names filter lists hide on sight
var BaitClasses = []string{"adsbox", "ad-banner", "ad-placement", "pub_300x250"}

// DefaultProbeDelay is how long the bait stays in the page before measuring
const DefaultProbeDelay = 100 * time.Millisecond

// AdBlockDetector reports whether content blocking is active. Results are
// informational and never gate ad delivery.
type AdBlockDetector interface {
	Detect(ctx context.Context) (bool, error)
}

// BaitProbe inserts an off-screen element that blockers target and checks
// whether it was collapsed. False negatives are expected.
type BaitProbe struct {
	doc   *dom.Document
	clock clock.Clock
	delay time.Duration
}

var _ AdBlockDetector = (*BaitProbe)(nil)

// NewBaitProbe creates a probe on doc. A nil clock uses the wall clock.
func NewBaitProbe(doc *dom.Document, clk clock.Clock) *BaitProbe {
	if clk == nil {
		clk = clock.New()
	}
	return &BaitProbe{doc: doc, clock: clk, delay: DefaultProbeDelay}
}

// Detect runs one probe
func (p *BaitProbe) Detect(ctx context.Context) (bool, error) {
	bait := p.doc.CreateElement("div")
	bait.AddClass(BaitClasses...)
	bait.SetStyle("position", "absolute")
	bait.SetStyle("top", "-10px")
	bait.SetStyle("left", "-10px")
	bait.SetStyle("width", "1px")
	bait.SetStyle("height", "1px")
	bait.SetText(" ")
	p.doc.Body().AppendChild(bait)
	defer bait.Remove()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-p.clock.After(p.delay):
	}
	return bait.OffsetHeight() == 0, nil
}

// StaticDetector always reports the same answer
type StaticDetector bool

func (s StaticDetector) Detect(context.Context) (bool, error) {
	return bool(s), nil
}
