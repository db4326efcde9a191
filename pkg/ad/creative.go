// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ad

// Creative is one of Banner, Video, Native or Interstitial. The set is
// closed: a new format has to implement isCreative here and gain a Visitor
// method, so every renderer fails to compile until it handles it.
type Creative interface {
	Format() Format
	Accept(v Visitor) error
	isCreative()
}

// Visitor dispatches on the concrete creative
type Visitor interface {
	VisitBanner(*Banner) error
	VisitVideo(*Video) error
	VisitNative(*Native) error
	VisitInterstitial(*Interstitial) error
}

// Banner is an image or an HTML snippet in a fixed box
type Banner struct {
	ImageURL string
	HTML     string
	Size     Size
}

// Video is an inline video
type Video struct {
	VideoURL  string
	PosterURL string
}

// Native is assembled from structured fields. Empty fields are left out.
type Native struct {
	Title       string
	Description string
	ImageURL    string
	CTA         string
}

// Interstitial covers the whole viewport
type Interstitial struct {
	ImageURL string
	HTML     string
	VideoURL string
}

func (*Banner) Format() Format       { return FormatBanner }
func (*Video) Format() Format        { return FormatVideo }
func (*Native) Format() Format       { return FormatNative }
func (*Interstitial) Format() Format { return FormatInterstitial }

func (c *Banner) Accept(v Visitor) error       { return v.VisitBanner(c) }
func (c *Video) Accept(v Visitor) error        { return v.VisitVideo(c) }
func (c *Native) Accept(v Visitor) error       { return v.VisitNative(c) }
func (c *Interstitial) Accept(v Visitor) error { return v.VisitInterstitial(c) }

func (*Banner) isCreative()       {}
func (*Video) isCreative()        {}
func (*Native) isCreative()       {}
func (*Interstitial) isCreative() {}

func decodeBanner(p Payload) (Creative, error) {
	if p.ImageURL == "" && p.HTML == "" {
		return nil, ErrEmptyCreative
	}
	return &Banner{
		ImageURL: p.ImageURL,
		HTML:     p.HTML,
		Size:     Size{W: p.Width, H: p.Height},
	}, nil
}

func decodeVideo(p Payload) (Creative, error) {
	if p.VideoURL == "" {
		return nil, ErrEmptyCreative
	}
	return &Video{VideoURL: p.VideoURL, PosterURL: p.PosterURL}, nil
}

func decodeNative(p Payload) (Creative, error) {
	n := &Native{
		Title:       p.Title,
		Description: p.Description,
		ImageURL:    p.ImageURL,
		CTA:         p.CTA,
	}
	if *n == (Native{}) {
		return nil, ErrEmptyCreative
	}
	return n, nil
}

func decodeInterstitial(p Payload) (Creative, error) {
	if p.ImageURL == "" && p.HTML == "" && p.VideoURL == "" {
		return nil, ErrEmptyCreative
	}
	return &Interstitial{ImageURL: p.ImageURL, HTML: p.HTML, VideoURL: p.VideoURL}, nil
}
