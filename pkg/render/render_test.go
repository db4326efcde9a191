// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package render

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/adsdk/pkg/ad"
	"github.com/luxfi/adsdk/pkg/dom"
)

func setup() (*dom.Document, *dom.Element) {
	doc := dom.NewDocument()
	slot := doc.CreateElement("div")
	slot.SetAttr("id", "slot1")
	doc.Body().AppendChild(slot)
	return doc, slot
}

func TestBannerImage(t *testing.T) {
	require := require.New(t)
	doc, slot := setup()

	a, err := ad.Decode(ad.FormatBanner, ad.Payload{ID: "a1", ImageURL: "https://x/y.png"})
	require.NoError(err)

	res, err := Render(doc, slot, ad.NewConfig(ad.FormatBanner), a)
	require.NoError(err)
	require.True(res.Root.HasClass(ClassBanner))
	require.Nil(res.Overlay)
	require.Equal("300px", res.Root.Style("width"))

	img := slot.Find("img")
	require.NotNil(img)
	src, _ := img.Attr("src")
	require.Equal("https://x/y.png", src)
	require.Equal(250, img.OffsetHeight())
}

func TestBannerHTML(t *testing.T) {
	require := require.New(t)
	doc, slot := setup()

	a, err := ad.Decode(ad.FormatBanner, ad.Payload{ID: "a1", HTML: `<a class="cta" href="#">Buy</a>`})
	require.NoError(err)
	_, err = Render(doc, slot, ad.Config{Format: ad.FormatBanner, Size: ad.Size{W: 728, H: 90}}, a)
	require.NoError(err)

	require.NotNil(slot.Find(".cta"))
	require.Equal("Buy", slot.Text())
	require.Equal("90px", slot.Find("div").Style("height"))
}

func TestVideoFlags(t *testing.T) {
	require := require.New(t)
	doc, slot := setup()

	a, err := ad.Decode(ad.FormatVideo, ad.Payload{ID: "v1", VideoURL: "https://x/v.mp4"})
	require.NoError(err)
	cfg := ad.NewConfig(ad.FormatVideo)
	cfg.Autoplay = false
	_, err = Render(doc, slot, cfg, a)
	require.NoError(err)

	v := slot.Find("video")
	require.NotNil(v)
	_, autoplay := v.Attr("autoplay")
	_, muted := v.Attr("muted")
	_, controls := v.Attr("controls")
	require.False(autoplay)
	require.True(muted)
	require.True(controls)
}

func TestNativeOmitsMissingFields(t *testing.T) {
	require := require.New(t)
	doc, slot := setup()

	a, err := ad.Decode(ad.FormatNative, ad.Payload{ID: "n1", Title: "Fast VPN", CTA: "Install"})
	require.NoError(err)
	_, err = Render(doc, slot, ad.NewConfig(ad.FormatNative), a)
	require.NoError(err)

	require.NotNil(slot.Find(".adsdk-native-title"))
	require.NotNil(slot.Find(".adsdk-native-cta"))
	require.Nil(slot.Find("img"))
	require.Nil(slot.Find(".adsdk-native-description"))
}

func TestInterstitialGoesToBody(t *testing.T) {
	require := require.New(t)
	doc, slot := setup()

	a, err := ad.Decode(ad.FormatInterstitial, ad.Payload{ID: "i1", ImageURL: "https://x/i.png"})
	require.NoError(err)
	res, err := Render(doc, slot, ad.NewConfig(ad.FormatInterstitial), a)
	require.NoError(err)

	require.Empty(slot.Children())
	require.NotNil(res.Overlay)
	require.NotNil(res.Dismiss)
	require.True(res.Overlay.Parent().Is(doc.Body()))
	require.Equal("fixed", res.Overlay.Style("position"))

	cfg := ad.NewConfig(ad.FormatInterstitial)
	cfg.Dismissible = false
	res, err = Render(doc, slot, cfg, a)
	require.NoError(err)
	require.Nil(res.Dismiss)
}

func TestSandboxedFrame(t *testing.T) {
	require := require.New(t)
	frame := SandboxedFrame(dom.NewDocument(), "https://ads.example/watch", ad.Size{W: 640, H: 360})

	require.Equal("iframe", frame.Tag())
	sandbox, ok := frame.Attr("sandbox")
	require.True(ok)
	require.NotContains(sandbox, "allow-top-navigation")
	require.Contains(frame.OuterHTML(), `src="https://ads.example/watch"`)
}

func TestNilTarget(t *testing.T) {
	_, err := Render(dom.NewDocument(), nil, ad.NewConfig(ad.FormatBanner), &ad.Ad{Creative: &ad.Banner{ImageURL: "x"}})
	require.ErrorIs(t, err, ErrNoTarget)
}
