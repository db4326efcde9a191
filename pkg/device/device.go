// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package device

import (
	"strings"
	"sync"

	"github.com/prebid/openrtb/v20/adcom1"
)

// Type is the coarse device class used for targeting
type Type string

const (
	Mobile  Type = "mobile"
	Tablet  Type = "tablet"
	Desktop Type = "desktop"
)

// Info describes the environment a page runs in
type Info struct {
	Type           Type   `json:"type"`
	OS             string `json:"os"`
	Browser        string `json:"browser"`
	ViewportWidth  int    `json:"viewportWidth"`
	ViewportHeight int    `json:"viewportHeight"`
	Language       string `json:"language"`
	UserAgent      string `json:"userAgent"`
	Bot            bool   `json:"bot,omitempty"`
}

// AdcomType maps the device class onto the OpenRTB device type list
func (i Info) AdcomType() adcom1.DeviceType {
	switch i.Type {
	case Mobile:
		return adcom1.DevicePhone
	case Tablet:
		return adcom1.DeviceTablet
	default:
		return adcom1.DevicePC
	}
}

// Environment is the part of the host the detector reads
type Environment interface {
	UserAgent() string
	Language() string
	Viewport() (int, int)
}

// Detector classifies the environment once and serves the cached result
// for the lifetime of the page. Resizes are not tracked.
type Detector struct {
	env  Environment
	once sync.Once
	info Info
}

func NewDetector(env Environment) *Detector {
	return &Detector{env: env}
}

// Detect returns the memoised device info
func (d *Detector) Detect() Info {
	d.once.Do(func() {
		w, h := d.env.Viewport()
		ua := d.env.UserAgent()
		d.info = Info{
			Type:           Classify(ua, w),
			OS:             DetectOS(ua),
			Browser:        DetectBrowser(ua),
			ViewportWidth:  w,
			ViewportHeight: h,
			Language:       d.env.Language(),
			UserAgent:      ua,
			Bot:            IsBot(ua),
		}
	})
	return d.info
}

// Classify derives the device class. User agent hints win over the
// viewport width, which only breaks ties for generic agents.
func Classify(ua string, width int) Type {
	switch {
	case containsAny(ua, "iPad", "Tablet"):
		return Tablet
	case containsAny(ua, "Mobile", "iPhone", "iPod", "Android"):
		return Mobile
	case width > 0 && width < 768:
		return Mobile
	case width > 0 && width < 1024:
		return Tablet
	default:
		return Desktop
	}
}

// DetectOS returns the operating system family
func DetectOS(ua string) string {
	switch {
	case strings.Contains(ua, "Windows"):
		return "Windows"
	case containsAny(ua, "iPhone", "iPad", "iPod"):
		return "iOS"
	case strings.Contains(ua, "Mac"):
		return "macOS"
	case strings.Contains(ua, "Android"):
		return "Android"
	case strings.Contains(ua, "Linux"):
		return "Linux"
	default:
		return "Unknown"
	}
}

// DetectBrowser returns the browser family. Edge and Opera carry the
// Chrome token and Chrome carries the Safari token, so order matters.
func DetectBrowser(ua string) string {
	switch {
	case strings.Contains(ua, "Edg"):
		return "Edge"
	case containsAny(ua, "OPR", "Opera"):
		return "Opera"
	case strings.Contains(ua, "Firefox"):
		return "Firefox"
	case strings.Contains(ua, "Chrome"):
		return "Chrome"
	case strings.Contains(ua, "Safari"):
		return "Safari"
	default:
		return "Unknown"
	}
}

// IsBot flags headless browsers and automation agents
func IsBot(ua string) bool {
	lower := strings.ToLower(ua)
	return ua == "" || containsAny(lower, "headless", "bot", "crawler", "spider", "phantomjs", "selenium", "puppeteer")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
