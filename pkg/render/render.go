// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package render draws creatives into a page
package render

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/luxfi/adsdk/pkg/ad"
	"github.com/luxfi/adsdk/pkg/dom"
)

var ErrNoTarget = errors.New("render target is nil")

// Class names applied to rendered nodes
const (
	ClassBanner       = "adsdk-banner"
	ClassVideo        = "adsdk-video"
	ClassNative       = "adsdk-native"
	ClassInterstitial = "adsdk-interstitial"
	ClassDismiss      = "adsdk-dismiss"
)

// Result points at the nodes a render produced
type Result struct {
	// Root receives click handling and viewability tracking
	Root *dom.Element
	// Overlay is set for interstitials; it lives under <body>
	Overlay *dom.Element
	// Dismiss is the close control of a dismissible interstitial
	Dismiss *dom.Element
}

// Render draws a into target. Interstitials go to the document body
// instead since they cover the page.
func Render(doc *dom.Document, target *dom.Element, cfg ad.Config, a *ad.Ad) (Result, error) {
	if target == nil {
		return Result{}, ErrNoTarget
	}
	r := &renderer{doc: doc, target: target, cfg: cfg, ad: a}
	if err := a.Creative.Accept(r); err != nil {
		return Result{}, fmt.Errorf("render %s: %w", a.Creative.Format(), err)
	}
	return r.result, nil
}

type renderer struct {
	doc    *dom.Document
	target *dom.Element
	cfg    ad.Config
	ad     *ad.Ad
	result Result
}

var _ ad.Visitor = (*renderer)(nil)

func (r *renderer) VisitBanner(b *ad.Banner) error {
	size := r.cfg.Size
	if size.IsZero() {
		size = b.Size
	}
	if size.IsZero() {
		size = ad.DefaultBannerSize
	}

	box := r.doc.CreateElement("div")
	box.AddClass(ClassBanner)
	box.SetStyle("width", px(size.W))
	box.SetStyle("height", px(size.H))
	box.SetStyle("overflow", "hidden")
	box.SetStyle("cursor", "pointer")

	if b.ImageURL != "" {
		box.AppendChild(r.image(b.ImageURL, size))
	} else if err := r.appendHTML(box, b.HTML); err != nil {
		return err
	}

	r.target.AppendChild(box)
	r.result.Root = box
	return nil
}

func (r *renderer) VisitVideo(v *ad.Video) error {
	video := r.video(v.VideoURL, v.PosterURL)
	r.target.AppendChild(video)
	r.result.Root = video
	return nil
}

func (r *renderer) VisitNative(n *ad.Native) error {
	box := r.doc.CreateElement("div")
	box.AddClass(ClassNative)
	box.SetStyle("cursor", "pointer")

	if n.ImageURL != "" {
		img := r.doc.CreateElement("img")
		img.SetAttr("src", n.ImageURL)
		img.SetAttr("alt", n.Title)
		img.AddClass(ClassNative + "-image")
		box.AppendChild(img)
	}
	if n.Title != "" {
		h := r.doc.CreateElement("h3")
		h.AddClass(ClassNative + "-title")
		h.SetText(n.Title)
		box.AppendChild(h)
	}
	if n.Description != "" {
		p := r.doc.CreateElement("p")
		p.AddClass(ClassNative + "-description")
		p.SetText(n.Description)
		box.AppendChild(p)
	}
	if n.CTA != "" {
		btn := r.doc.CreateElement("button")
		btn.AddClass(ClassNative + "-cta")
		btn.SetText(n.CTA)
		box.AppendChild(btn)
	}

	r.target.AppendChild(box)
	r.result.Root = box
	return nil
}

func (r *renderer) VisitInterstitial(i *ad.Interstitial) error {
	overlay := r.doc.CreateElement("div")
	overlay.AddClass(ClassInterstitial)
	overlay.SetStyle("position", "fixed")
	overlay.SetStyle("inset", "0")
	overlay.SetStyle("z-index", "2147483647")
	overlay.SetStyle("background", "rgba(0, 0, 0, 0.85)")
	overlay.SetStyle("display", "flex")
	overlay.SetStyle("align-items", "center")
	overlay.SetStyle("justify-content", "center")

	content := r.doc.CreateElement("div")
	content.AddClass(ClassInterstitial + "-content")
	content.SetStyle("cursor", "pointer")
	switch {
	case i.VideoURL != "":
		content.AppendChild(r.video(i.VideoURL, ""))
	case i.ImageURL != "":
		img := r.doc.CreateElement("img")
		img.SetAttr("src", i.ImageURL)
		img.SetStyle("max-width", "90vw")
		img.SetStyle("max-height", "90vh")
		content.AppendChild(img)
	default:
		if err := r.appendHTML(content, i.HTML); err != nil {
			return err
		}
	}
	overlay.AppendChild(content)

	if r.cfg.Dismissible {
		btn := r.doc.CreateElement("button")
		btn.AddClass(ClassDismiss)
		btn.SetAttr("aria-label", "Close ad")
		btn.SetStyle("position", "absolute")
		btn.SetStyle("top", "16px")
		btn.SetStyle("right", "16px")
		btn.SetText("×")
		overlay.AppendChild(btn)
		r.result.Dismiss = btn
	}

	r.doc.Body().AppendChild(overlay)
	r.result.Root = content
	r.result.Overlay = overlay
	return nil
}

func (r *renderer) image(src string, size ad.Size) *dom.Element {
	img := r.doc.CreateElement("img")
	img.SetAttr("src", src)
	img.SetAttr("width", strconv.Itoa(size.W))
	img.SetAttr("height", strconv.Itoa(size.H))
	if r.ad.Advertiser.Name != "" {
		img.SetAttr("alt", r.ad.Advertiser.Name)
	}
	img.SetStyle("display", "block")
	return img
}

func (r *renderer) video(src, poster string) *dom.Element {
	v := r.doc.CreateElement("video")
	v.AddClass(ClassVideo)
	v.SetAttr("src", src)
	v.SetAttr("playsinline", "")
	if poster != "" {
		v.SetAttr("poster", poster)
	}
	if r.cfg.Autoplay {
		v.SetAttr("autoplay", "")
	}
	if r.cfg.Muted {
		v.SetAttr("muted", "")
	}
	if r.cfg.Controls {
		v.SetAttr("controls", "")
	}
	v.SetStyle("width", "100%")
	return v
}

func (r *renderer) appendHTML(parent *dom.Element, markup string) error {
	nodes, err := r.doc.ParseFragment(markup, parent)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		parent.AppendChild(n)
	}
	return nil
}

// SandboxedFrame builds an iframe for third party ad pages. Scripts may run
// but the frame cannot navigate the top window.
func SandboxedFrame(doc *dom.Document, src string, size ad.Size) *dom.Element {
	frame := doc.CreateElement("iframe")
	frame.SetAttr("src", src)
	frame.SetAttr("sandbox", "allow-scripts allow-same-origin allow-popups")
	frame.SetAttr("referrerpolicy", "no-referrer")
	frame.SetAttr("loading", "eager")
	if !size.IsZero() {
		frame.SetAttr("width", strconv.Itoa(size.W))
		frame.SetAttr("height", strconv.Itoa(size.H))
	}
	frame.SetStyle("border", "0")
	return frame
}

func px(n int) string {
	return strconv.Itoa(n) + "px"
}
