// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ad holds the ad model: what the serving endpoint returns and the
// format specific creatives the renderer draws.
package ad

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrUnknownFormat = errors.New("unknown ad format")
	ErrEmptyCreative = errors.New("creative has no renderable content")
	ErrInvalidSize   = errors.New("invalid size")
)

// Format is the ad unit format
type Format string

const (
	FormatBanner       Format = "banner"
	FormatVideo        Format = "video"
	FormatNative       Format = "native"
	FormatInterstitial Format = "interstitial"
)

// Formats lists every supported format
var Formats = []Format{FormatBanner, FormatVideo, FormatNative, FormatInterstitial}

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Size is a creative size in CSS pixels
type Size struct {
	W int `json:"w"`
	H int `json:"h"`
}

// IsZero reports whether no size was set
func (s Size) IsZero() bool { return s.W == 0 && s.H == 0 }

func (s Size) String() string { return fmt.Sprintf("%dx%d", s.W, s.H) }

// ParseSize parses the "300x250" form
func ParseSize(s string) (Size, error) {
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return Size{}, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}
	width, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil || width <= 0 {
		return Size{}, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}
	height, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil || height <= 0 {
		return Size{}, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}
	return Size{W: width, H: height}, nil
}

// DefaultBannerSize is the medium rectangle
var DefaultBannerSize = Size{W: 300, H: 250}

// Advertiser describes who bought the slot
type Advertiser struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
	Domain string `json:"domain,omitempty"`
}

// Payload is the ad object as the serving endpoint sends it. Which fields
// are set depends on the format of the requesting unit.
type Payload struct {
	ID          string      `json:"id"`
	ImageURL    string      `json:"imageUrl,omitempty"`
	HTML        string      `json:"html,omitempty"`
	VideoURL    string      `json:"videoUrl,omitempty"`
	PosterURL   string      `json:"posterUrl,omitempty"`
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description,omitempty"`
	CTA         string      `json:"cta,omitempty"`
	ClickURL    string      `json:"clickUrl,omitempty"`
	Width       int         `json:"width,omitempty"`
	Height      int         `json:"height,omitempty"`
	Advertiser  *Advertiser `json:"advertiser,omitempty"`
}

// Ad is a decoded ad owned by the unit that requested it. A new load
// replaces it; it is never mutated.
type Ad struct {
	ID         string
	ClickURL   string
	Advertiser Advertiser
	Creative   Creative
}

// Decode builds the creative for format out of p
func Decode(format Format, p Payload) (*Ad, error) {
	var (
		c   Creative
		err error
	)
	switch format {
	case FormatBanner:
		c, err = decodeBanner(p)
	case FormatVideo:
		c, err = decodeVideo(p)
	case FormatNative:
		c, err = decodeNative(p)
	case FormatInterstitial:
		c, err = decodeInterstitial(p)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s ad %q: %w", format, p.ID, err)
	}

	a := &Ad{ID: p.ID, ClickURL: p.ClickURL, Creative: c}
	if p.Advertiser != nil {
		a.Advertiser = *p.Advertiser
	}
	return a, nil
}

// Config is the per unit format configuration. Use NewConfig for the
// documented defaults; a literal Config has every flag off.
type Config struct {
	Format      Format
	Size        Size
	Autoplay    bool
	Muted       bool
	Controls    bool
	Dismissible bool
}

// NewConfig returns the defaults for format
func NewConfig(format Format) Config {
	cfg := Config{
		Format:      format,
		Autoplay:    true,
		Muted:       true,
		Controls:    true,
		Dismissible: true,
	}
	if format == FormatBanner {
		cfg.Size = DefaultBannerSize
	}
	return cfg
}
