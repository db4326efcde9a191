// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package vast builds and reads the VAST 4 documents the backend serves
// for video ads.
package vast

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const Version = "4.2"

var (
	ErrNoLinear      = errors.New("vast: no linear creative")
	ErrInvalidFormat = errors.New("vast: invalid duration")
)

// Tracking event names the backend emits
const (
	EventStart         = "start"
	EventFirstQuartile = "firstQuartile"
	EventMidpoint      = "midpoint"
	EventThirdQuartile = "thirdQuartile"
	EventComplete      = "complete"
	EventSkip          = "skip"
)

// VAST 4.x Video Ad Serving Template
type VAST struct {
	XMLName xml.Name `xml:"VAST"`
	Version string   `xml:"version,attr"`
	Ads     []Ad     `xml:"Ad"`
	Error   string   `xml:"Error,omitempty"`
}

// Ad represents a VAST advertisement
type Ad struct {
	ID     string  `xml:"id,attr"`
	InLine *InLine `xml:"InLine,omitempty"`
}

// InLine contains all data to display the ad
type InLine struct {
	AdSystem    AdSystem     `xml:"AdSystem"`
	AdTitle     string       `xml:"AdTitle"`
	Description string       `xml:"Description,omitempty"`
	Advertiser  string       `xml:"Advertiser,omitempty"`
	Pricing     *Pricing     `xml:"Pricing,omitempty"`
	Error       []string     `xml:"Error,omitempty"`
	Impression  []Impression `xml:"Impression"`
	Creatives   Creatives    `xml:"Creatives"`
}

// AdSystem info
type AdSystem struct {
	Version string `xml:"version,attr,omitempty"`
	Name    string `xml:",chardata"`
}

// Pricing information
type Pricing struct {
	Model    string `xml:"model,attr"`
	Currency string `xml:"currency,attr"`
	Value    string `xml:",chardata"`
}

// Impression tracking pixel
type Impression struct {
	ID  string `xml:"id,attr,omitempty"`
	URL string `xml:",cdata"`
}

// Creatives container
type Creatives struct {
	Creative []Creative `xml:"Creative"`
}

// Creative element
type Creative struct {
	ID     string  `xml:"id,attr,omitempty"`
	AdID   string  `xml:"adId,attr,omitempty"`
	Linear *Linear `xml:"Linear,omitempty"`
}

// Linear video ad
type Linear struct {
	SkipOffset     string          `xml:"skipoffset,attr,omitempty"`
	Duration       string          `xml:"Duration"`
	MediaFiles     MediaFiles      `xml:"MediaFiles"`
	VideoClicks    *VideoClicks    `xml:"VideoClicks,omitempty"`
	TrackingEvents *TrackingEvents `xml:"TrackingEvents,omitempty"`
}

// MediaFiles container
type MediaFiles struct {
	MediaFile []MediaFile `xml:"MediaFile"`
}

// MediaFile represents a video file
type MediaFile struct {
	Delivery string `xml:"delivery,attr"`
	Type     string `xml:"type,attr"`
	Width    int    `xml:"width,attr"`
	Height   int    `xml:"height,attr"`
	URL      string `xml:",cdata"`
}

// VideoClicks for clickthrough and tracking
type VideoClicks struct {
	ClickThrough  *ClickThrough   `xml:"ClickThrough,omitempty"`
	ClickTracking []ClickTracking `xml:"ClickTracking,omitempty"`
}

// ClickThrough URL
type ClickThrough struct {
	URL string `xml:",cdata"`
}

// ClickTracking URL
type ClickTracking struct {
	URL string `xml:",cdata"`
}

// TrackingEvents container
type TrackingEvents struct {
	Tracking []Tracking `xml:"Tracking"`
}

// Tracking event
type Tracking struct {
	Event string `xml:"event,attr"`
	URL   string `xml:",cdata"`
}

// Marshal renders v with the XML header
func (v *VAST) Marshal() ([]byte, error) {
	out, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

// Parse reads a VAST document
func Parse(data []byte) (*VAST, error) {
	var v VAST
	if err := xml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("vast: %w", err)
	}
	return &v, nil
}

// Empty is the no-fill answer: a VAST without ads
func Empty(reason string) *VAST {
	return &VAST{Version: Version, Error: reason}
}

// Linear returns the first linear creative of the first inline ad
func (v *VAST) Linear() (*InLine, *Linear, error) {
	for _, a := range v.Ads {
		if a.InLine == nil {
			continue
		}
		for _, c := range a.InLine.Creatives.Creative {
			if c.Linear != nil {
				return a.InLine, c.Linear, nil
			}
		}
	}
	return nil, nil, ErrNoLinear
}

// MediaURL picks the first media file of type mime, or any when mime is empty
func (l *Linear) MediaURL(mime string) string {
	for _, m := range l.MediaFiles.MediaFile {
		if mime == "" || m.Type == mime {
			return strings.TrimSpace(m.URL)
		}
	}
	return ""
}

// TrackingURLs returns every URL registered for event
func (l *Linear) TrackingURLs(event string) []string {
	if l.TrackingEvents == nil {
		return nil
	}
	var out []string
	for _, t := range l.TrackingEvents.Tracking {
		if t.Event == event {
			out = append(out, strings.TrimSpace(t.URL))
		}
	}
	return out
}

// FormatDuration renders d as HH:MM:SS
func FormatDuration(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}

// ParseDuration reads HH:MM:SS with optional .mmm
func ParseDuration(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	sec, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil || m >= 60 || sec >= 60 || h < 0 || m < 0 || sec < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec*float64(time.Second)), nil
}
