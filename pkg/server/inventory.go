// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package server

import (
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prebid/openrtb/v20/adcom1"
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/shopspring/decimal"

	"github.com/luxfi/adsdk/pkg/ad"
	"github.com/luxfi/adsdk/pkg/adclient"
	"github.com/luxfi/adsdk/pkg/device"
)

var ErrNoInventory = errors.New("no inventory for format")

// Creative is one servable ad with its price per impression
type Creative struct {
	Format  ad.Format
	Payload ad.Payload
	Price   decimal.Decimal

	// Duration of video creatives
	Duration time.Duration
}

// Inventory hands out creatives per format in rotation
type Inventory struct {
	mu    sync.RWMutex
	items map[ad.Format][]Creative
	next  atomic.Uint64
	floor decimal.Decimal
}

func NewInventory(floor decimal.Decimal) *Inventory {
	return &Inventory{items: make(map[ad.Format][]Creative), floor: floor}
}

// Add stocks c. Creatives priced under the floor are ignored.
func (inv *Inventory) Add(c Creative) bool {
	if c.Price.LessThan(inv.floor) {
		return false
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.items[c.Format] = append(inv.items[c.Format], c)
	return true
}

// Fill picks the next creative for format
func (inv *Inventory) Fill(format ad.Format) (Creative, error) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	list := inv.items[format]
	if len(list) == 0 {
		return Creative{}, ErrNoInventory
	}
	n := inv.next.Add(1) - 1
	return list[n%uint64(len(list))], nil
}

// Len counts stocked creatives
func (inv *Inventory) Len() int {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	n := 0
	for _, list := range inv.items {
		n += len(list)
	}
	return n
}

// DemoInventory stocks one creative per format
func DemoInventory() *Inventory {
	inv := NewInventory(decimal.RequireFromString("0.10"))
	acme := &ad.Advertiser{ID: "adv_acme", Name: "Acme", Domain: "acme.example"}
	inv.Add(Creative{Format: ad.FormatBanner, Price: decimal.RequireFromString("1.25"), Payload: ad.Payload{
		ID: "demo_banner", ImageURL: "https://cdn.adsdk.dev/demo/banner.png", ClickURL: "https://acme.example",
		Width: 300, Height: 250, Advertiser: acme,
	}})
	inv.Add(Creative{Format: ad.FormatVideo, Price: decimal.RequireFromString("8.00"), Duration: 15 * time.Second, Payload: ad.Payload{
		ID: "demo_video", VideoURL: "https://cdn.adsdk.dev/demo/spot.mp4", PosterURL: "https://cdn.adsdk.dev/demo/spot.jpg",
		ClickURL: "https://acme.example", Advertiser: acme,
	}})
	inv.Add(Creative{Format: ad.FormatNative, Price: decimal.RequireFromString("2.40"), Payload: ad.Payload{
		ID: "demo_native", ImageURL: "https://cdn.adsdk.dev/demo/native.jpg", Title: "Build faster",
		Description: "Ship ads without the bloat.", CTA: "Learn more", ClickURL: "https://acme.example", Advertiser: acme,
	}})
	inv.Add(Creative{Format: ad.FormatInterstitial, Price: decimal.RequireFromString("4.75"), Payload: ad.Payload{
		ID: "demo_interstitial", HTML: `<div class="promo">Spring sale</div>`, ClickURL: "https://acme.example", Advertiser: acme,
	}})
	return inv
}

// BidRequest describes an SDK ad request in OpenRTB terms for the tracker
func BidRequest(req adclient.Request, floor decimal.Decimal) *openrtb2.BidRequest {
	imp := openrtb2.Imp{
		ID:          "1",
		TagID:       req.AdUnitID,
		BidFloor:    floor.InexactFloat64(),
		BidFloorCur: "USD",
	}
	switch req.Format {
	case ad.FormatVideo:
		imp.Video = &openrtb2.Video{MIMEs: []string{"video/mp4"}}
	case ad.FormatNative:
		imp.Native = &openrtb2.Native{Request: "{}"}
	case ad.FormatInterstitial:
		imp.Instl = 1
		imp.Banner = &openrtb2.Banner{}
	default:
		w, h := int64(ad.DefaultBannerSize.W), int64(ad.DefaultBannerSize.H)
		imp.Banner = &openrtb2.Banner{W: &w, H: &h}
	}

	br := &openrtb2.BidRequest{
		ID:   req.RequestID,
		Imp:  []openrtb2.Imp{imp},
		TMax: 1000,
		Cur:  []string{"USD"},
		User: &openrtb2.User{ID: req.SessionID},
	}
	if page, _ := req.Targeting["url"].(string); page != "" {
		br.Site = &openrtb2.Site{Page: page, Domain: hostOf(page)}
		if ref, _ := req.Targeting["referrer"].(string); ref != "" {
			br.Site.Ref = ref
		}
	}
	if info, ok := deviceOf(req.Targeting["device"]); ok {
		br.Device = &openrtb2.Device{
			UA:         info.UserAgent,
			OS:         info.OS,
			Language:   info.Language,
			DeviceType: info.AdcomType(),
			W:          int64(info.ViewportWidth),
			H:          int64(info.ViewportHeight),
		}
	} else {
		br.Device = &openrtb2.Device{DeviceType: adcom1.DevicePC}
	}
	return br
}

// deviceOf reads the device block, which arrives decoded as a JSON object
func deviceOf(v any) (device.Info, bool) {
	switch d := v.(type) {
	case device.Info:
		return d, true
	case map[string]any:
		info := device.Info{}
		info.Type, _ = typeOf(d["type"])
		info.OS, _ = d["os"].(string)
		info.Browser, _ = d["browser"].(string)
		info.Language, _ = d["language"].(string)
		info.UserAgent, _ = d["userAgent"].(string)
		if w, ok := d["viewportWidth"].(float64); ok {
			info.ViewportWidth = int(w)
		}
		if h, ok := d["viewportHeight"].(float64); ok {
			info.ViewportHeight = int(h)
		}
		return info, true
	}
	return device.Info{}, false
}

func typeOf(v any) (device.Type, bool) {
	s, ok := v.(string)
	return device.Type(s), ok
}

func hostOf(page string) string {
	u, err := url.Parse(page)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
