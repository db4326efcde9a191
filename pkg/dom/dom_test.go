// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dom

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQuerySelector(t *testing.T) {
	require := require.New(t)
	doc := NewDocument()

	div := doc.CreateElement("div")
	div.SetAttr("id", "slot1")
	div.AddClass("ad", "slot")
	doc.Body().AppendChild(div)

	require.True(doc.QuerySelector("#slot1").Is(div))
	require.True(doc.QuerySelector(".slot").Is(div))
	require.True(doc.QuerySelector("div.ad").Is(div))
	require.True(doc.GetElementByID("slot1").Is(div))
	require.Nil(doc.QuerySelector("#missing"))
	require.Nil(doc.QuerySelector(""))
}

func TestOffsetHeight(t *testing.T) {
	require := require.New(t)
	doc := NewDocument()

	el := doc.CreateElement("div")
	el.SetStyle("height", "10px")
	require.Zero(el.OffsetHeight(), "detached")

	doc.Body().AppendChild(el)
	require.Equal(10, el.OffsetHeight())

	el.AddClass("adsbox")
	doc.InstallCosmeticFilter("adsbox")
	require.Zero(el.OffsetHeight())

	other := doc.CreateElement("div")
	other.SetStyle("height", "5px")
	other.SetStyle("display", "none")
	doc.Body().AppendChild(other)
	require.Zero(other.OffsetHeight())
}

func TestListenersBubble(t *testing.T) {
	require := require.New(t)
	doc := NewDocument()

	parent := doc.CreateElement("div")
	child := doc.CreateElement("img")
	parent.AppendChild(child)
	doc.Body().AppendChild(parent)

	var got []string
	remove := parent.AddEventListener("click", func(ev Event) {
		require.True(ev.Target.Is(child))
		got = append(got, "parent")
	})
	child.AddEventListener("click", func(Event) { got = append(got, "child") })

	child.Click()
	require.Equal([]string{"child", "parent"}, got)

	remove()
	child.Click()
	require.Equal([]string{"child", "parent", "child"}, got)
}

func TestClearAndRemove(t *testing.T) {
	require := require.New(t)
	doc := NewDocument()

	slot := doc.CreateElement("div")
	doc.Body().AppendChild(slot)
	nodes, err := doc.ParseFragment(`<p>one</p><p>two</p>`, slot)
	require.NoError(err)
	for _, n := range nodes {
		slot.AppendChild(n)
	}
	require.Len(slot.Children(), 2)
	require.Equal("onetwo", slot.Text())

	slot.Clear()
	require.Empty(slot.Children())
	require.Empty(slot.InnerHTML())

	slot.Remove()
	require.False(slot.Connected())
}

func TestStyle(t *testing.T) {
	require := require.New(t)
	el := NewDocument().CreateElement("div")

	el.SetStyle("width", "300px")
	el.SetStyle("height", "250px")
	el.SetStyle("width", "320px")

	require.Equal("320px", el.Style("width"))
	v, ok := el.Attr("style")
	require.True(ok)
	require.Equal("width: 320px; height: 250px", v)
}

func TestWindowEvents(t *testing.T) {
	require := require.New(t)
	w := NewWindow(Options{})

	var events []string
	for _, typ := range []string{EventOnline, EventOffline, EventVisibilityChange, EventBeforeUnload} {
		typ := typ
		w.AddEventListener(typ, func(Event) { events = append(events, typ) })
	}

	w.SetOnline(true) // unchanged
	w.SetOnline(false)
	w.SetOnline(true)
	w.SetHidden(true)
	w.Unload()

	require.Equal([]string{EventOffline, EventOnline, EventVisibilityChange, EventBeforeUnload}, events)
	require.True(w.Hidden())

	w.Open("https://z")
	require.Equal([]string{"https://z"}, w.Opened())
}

func TestIntersectionObserver(t *testing.T) {
	require := require.New(t)
	w := NewWindow(Options{})
	el := w.Document().CreateElement("div")
	w.Document().Body().AppendChild(el)

	var ratios []float64
	obs := w.NewIntersectionObserver([]float64{0, 0.25, 0.5, 0.75, 1}, func(entries []IntersectionEntry) {
		for _, e := range entries {
			ratios = append(ratios, e.Ratio)
		}
	})
	obs.Observe(el)
	require.Empty(ratios, "not in view yet")

	w.SetIntersection(el, 0.6)
	w.SetIntersection(el, 0.7) // same bucket
	w.SetIntersection(el, 0.2)
	w.SetIntersection(el, 0)
	require.Equal([]float64{0.6, 0.2, 0}, ratios)

	obs.Disconnect()
	obs.Disconnect()
	w.SetIntersection(el, 1)
	require.Len(ratios, 3)
}
