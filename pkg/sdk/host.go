// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sdk

import (
	"github.com/luxfi/adsdk/pkg/dom"
)

// Host is the page the SDK runs in. dom.Window is the reference
// implementation; embedders adapt their own runtime to it.
type Host interface {
	Document() *dom.Document
	URL() string
	Referrer() string
	UserAgent() string
	Language() string
	Viewport() (int, int)
	Online() bool
	Hidden() bool
	AddEventListener(typ string, fn dom.Listener) func()
	Open(url string)
	NewIntersectionObserver(thresholds []float64, cb dom.IntersectionCallback) *dom.IntersectionObserver
}

var _ Host = (*dom.Window)(nil)

// Target names the element an ad unit renders into
type Target interface {
	resolve(doc *dom.Document) *dom.Element
}

type elementTarget struct{ el *dom.Element }

func (t elementTarget) resolve(*dom.Document) *dom.Element { return t.el }

type selectorTarget string

func (t selectorTarget) resolve(doc *dom.Document) *dom.Element {
	return doc.QuerySelector(string(t))
}

// Element targets el directly
func Element(el *dom.Element) Target { return elementTarget{el: el} }

// Selector targets the first element matching sel at creation time
func Selector(sel string) Target { return selectorTarget(sel) }
