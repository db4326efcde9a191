// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prebid/openrtb/v20/adcom1"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/adsdk/pkg/ad"
	"github.com/luxfi/adsdk/pkg/adclient"
	"github.com/luxfi/adsdk/pkg/analytics"
	"github.com/luxfi/adsdk/pkg/device"
	"github.com/luxfi/adsdk/pkg/facilitator"
	"github.com/luxfi/adsdk/pkg/log"
	"github.com/luxfi/adsdk/pkg/metric"
	"github.com/luxfi/adsdk/pkg/settlement"
	"github.com/luxfi/adsdk/pkg/storage"
	"github.com/luxfi/adsdk/pkg/vast"
)

type testEnv struct{}

func (testEnv) Device() device.Info {
	return device.Info{Type: device.Mobile, OS: "Android", ViewportWidth: 412, ViewportHeight: 915, UserAgent: "Mozilla/5.0 (Linux; Android 14)"}
}
func (testEnv) URL() string      { return "https://news.example/story?id=1" }
func (testEnv) Referrer() string { return "https://search.example" }

type fixture struct {
	srv    *Server
	http   *httptest.Server
	store  *storage.MemoryStore
	client *adclient.Client
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	store := storage.NewMemoryStore()
	s := New(Config{Mode: gin.TestMode}, store, opts...)
	hs := httptest.NewServer(s.Handler())
	t.Cleanup(hs.Close)
	t.Cleanup(s.Hub().Close)

	c := adclient.New(adclient.Config{
		AppID:       "app_1",
		SessionID:   "sess_1",
		APIEndpoint: hs.URL + "/api",
		Timeout:     2 * time.Second,
	}, testEnv{})
	return &fixture{srv: s, http: hs, store: store, client: c}
}

func TestHealth(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)

	resp, err := http.Get(f.http.URL + "/health")
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(json.NewDecoder(resp.Body).Decode(&body))
	require.Equal("healthy", body["status"])
}

func TestServeFillsEveryFormat(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	for _, format := range ad.Formats {
		a, ok := f.client.RequestAd(ctx, "slot_"+string(format), format, map[string]any{"topic": "tech"})
		require.True(ok, format)
		require.Equal("demo_"+string(format), a.ID)
	}
	require.Equal(uint64(4), f.srv.Tracker().TotalRequests.Load())
	require.Equal(uint64(4), f.srv.Tracker().TotalFilled.Load())
}

func TestServeNoFill(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, WithInventory(NewInventory(decimal.Zero)))

	_, ok := f.client.RequestAd(context.Background(), "slot1", ad.FormatBanner, nil)
	require.False(ok)
	require.Equal(uint64(1), f.srv.Tracker().TotalRequests.Load())
	require.Zero(f.srv.Tracker().TotalFilled.Load())
}

func TestServeRejectsUnknownFormat(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)

	resp, err := http.Post(f.http.URL+"/api/ads/serve", "application/json", strings.NewReader(`{"appId":"app_1","format":"popunder"}`))
	require.NoError(err)
	resp.Body.Close()
	require.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestEventsStoredAndReported(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	_, ok := f.client.RequestAd(ctx, "slot1", ad.FormatBanner, nil)
	require.True(ok)

	now := time.Now()
	require.NoError(f.client.Send(ctx, analytics.Batch{AppID: "app_1", Events: []analytics.Event{
		{Type: analytics.EventImpression, AdUnitID: "slot1", AdID: "demo_banner", SessionID: "sess_1", Timestamp: now},
		{Type: analytics.EventClick, AdUnitID: "slot1", AdID: "demo_banner", SessionID: "sess_1", Timestamp: now},
	}}))
	require.Equal(2, f.store.Len())
	require.Equal(uint64(1), f.srv.Tracker().TotalClicks.Load())

	resp, err := http.Get(f.http.URL + "/api/reports/app_1")
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusOK, resp.StatusCode)
	var report struct {
		Requests    uint64            `json:"requests"`
		Impressions uint64            `json:"impressions"`
		Clicks      uint64            `json:"clicks"`
		Revenue     string            `json:"revenue"`
		Events      []analytics.Event `json:"events"`
	}
	require.NoError(json.NewDecoder(resp.Body).Decode(&report))
	require.Equal(uint64(1), report.Requests)
	require.Equal(uint64(1), report.Impressions)
	require.Equal(uint64(1), report.Clicks)
	require.Equal("1.25", report.Revenue)
	require.Len(report.Events, 2)

	missing, err := http.Get(f.http.URL + "/api/reports/nobody")
	require.NoError(err)
	missing.Body.Close()
	require.Equal(http.StatusNotFound, missing.StatusCode)
}

func TestEventsRequireAppID(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)

	resp, err := http.Post(f.http.URL+"/api/events", "application/json", strings.NewReader(`{"events":[]}`))
	require.NoError(err)
	resp.Body.Close()
	require.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestFetchAndPlayback(t *testing.T) {
	require := require.New(t)
	mock := clock.NewMock()
	mock.Set(time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC))
	f := newFixture(t, WithClock(mock.Now))
	ctx := context.Background()

	resp, err := f.client.FetchAd(ctx, "video")
	require.NoError(err)
	require.Equal("https://cdn.adsdk.dev/demo/spot.mp4", resp.Ad.AssetURL)
	require.Equal("Acme", resp.Ad.Advertiser)
	require.True(strings.HasPrefix(resp.PlaybackID, "pb_"))

	mock.Add(15 * time.Second)
	f.client.ReportPlayback(ctx, adclient.PlaybackReport{PlaybackID: resp.PlaybackID, Status: adclient.PlaybackCompleted, ViewDuration: 15})

	pb, ok := f.srv.Playback(resp.PlaybackID)
	require.True(ok)
	require.Equal(adclient.PlaybackCompleted, pb.Status)
	require.Equal(15.0, pb.ViewDuration)
	require.Equal(15*time.Second, pb.UpdatedAt.Sub(pb.IssuedAt))

	image, err := f.client.FetchAd(ctx, "image")
	require.NoError(err)
	require.Equal("https://cdn.adsdk.dev/demo/banner.png", image.Ad.AssetURL)

	unknown, err := http.Post(f.http.URL+"/api/ads/playback", "application/json",
		strings.NewReader(`{"playbackId":"pb_missing","status":"completed"}`))
	require.NoError(err)
	unknown.Body.Close()
	require.Equal(http.StatusNotFound, unknown.StatusCode)

	bad, err := http.Post(f.http.URL+"/api/ads/playback", "application/json",
		strings.NewReader(`{"playbackId":"`+resp.PlaybackID+`","status":"paused"}`))
	require.NoError(err)
	bad.Body.Close()
	require.Equal(http.StatusBadRequest, bad.StatusCode)
}

func TestProcessQuery(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, WithQueryService("reverse", func(_ context.Context, in string) (any, error) {
		r := []rune(in)
		for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
			r[i], r[j] = r[j], r[i]
		}
		return string(r), nil
	}))
	ctx := context.Background()

	q, err := f.client.ProcessQuery(ctx, "wordcount", "one two three")
	require.NoError(err)
	require.True(q.Success)
	require.Equal(3.0, q.Result)

	q, err = f.client.ProcessQuery(ctx, "reverse", "abc")
	require.NoError(err)
	require.Equal("cba", q.Result)

	q, err = f.client.ProcessQuery(ctx, "weather", "paris")
	require.NoError(err)
	require.False(q.Success)
	require.Contains(q.Message, "weather")
}

func TestEventFeed(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)

	wsURL := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws/events?appId=app_1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(err)
	defer conn.Close()
	require.Eventually(func() bool { return f.srv.Hub().Len() == 1 }, time.Second, 5*time.Millisecond)

	ctx := context.Background()
	require.NoError(f.client.Send(ctx, analytics.Batch{AppID: "app_2", Events: []analytics.Event{{Type: analytics.EventClick}}}))
	require.NoError(f.client.Send(ctx, analytics.Batch{AppID: "app_1", Events: []analytics.Event{{Type: analytics.EventViewable, AdUnitID: "slot1"}}}))

	require.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	var got analytics.Batch
	require.NoError(conn.ReadJSON(&got))
	require.Equal("app_1", got.AppID, "other apps are filtered out")
	require.Equal(analytics.EventViewable, got.Events[0].Type)
}

func TestMetricsEndpoint(t *testing.T) {
	require := require.New(t)
	m, err := metric.NewMetrics()
	require.NoError(err)
	f := newFixture(t, WithMetrics(m))

	_, ok := f.client.RequestAd(context.Background(), "slot1", ad.FormatVideo, nil)
	require.True(ok)

	resp, err := http.Get(f.http.URL + "/metrics")
	require.NoError(err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(err)
	require.Contains(string(body), `adsdk_ad_requests_total{result="filled"} 1`)
	require.Contains(string(body), `route="/api/ads/serve"`)
}

func TestFacilitatorMount(t *testing.T) {
	require := require.New(t)
	clk := clock.NewMock()
	ledger := settlement.NewLedger(clk, log.NoOp())
	local := facilitator.NewLocal(ledger, clk, log.NoOp())
	f := newFixture(t, WithFacilitator(facilitator.NewRouter(local, log.NoOp())))

	client := facilitator.NewClient(f.http.URL+"/facilitator", f.http.Client())
	supported, err := client.Supported(context.Background())
	require.NoError(err)
	require.NotEmpty(supported.Kinds)
}

func TestBidRequestTranslation(t *testing.T) {
	require := require.New(t)
	c := adclient.New(adclient.Config{AppID: "app_1", SessionID: "sess_9"}, testEnv{})
	req := c.BuildRequest("slot1", ad.FormatBanner, nil)

	// the device block crosses the wire as a JSON object
	raw, err := json.Marshal(req)
	require.NoError(err)
	var decoded adclient.Request
	require.NoError(json.Unmarshal(raw, &decoded))

	br := BidRequest(decoded, decimal.RequireFromString("0.10"))
	require.Equal(req.RequestID, br.ID)
	require.Equal("slot1", br.Imp[0].TagID)
	require.NotNil(br.Imp[0].Banner)
	require.Equal(int64(300), *br.Imp[0].Banner.W)
	require.Equal(0.1, br.Imp[0].BidFloor)
	require.Equal("news.example", br.Site.Domain)
	require.Equal("https://search.example", br.Site.Ref)
	require.Equal("sess_9", br.User.ID)
	require.Equal(adcom1.DevicePhone, br.Device.DeviceType)
	require.Equal("Android", br.Device.OS)
	require.Equal(int64(412), br.Device.W)
	require.Equal("mobile", analytics.DeviceClass(br))

	video := BidRequest(adclient.Request{Format: ad.FormatVideo}, decimal.Zero)
	require.NotNil(video.Imp[0].Video)
	require.Nil(video.Site)
	require.Equal(adcom1.DevicePC, video.Device.DeviceType)
}

func TestInventoryFloor(t *testing.T) {
	require := require.New(t)
	inv := NewInventory(decimal.RequireFromString("1.00"))
	require.False(inv.Add(Creative{Format: ad.FormatBanner, Price: decimal.RequireFromString("0.50")}))
	require.True(inv.Add(Creative{Format: ad.FormatBanner, Price: decimal.RequireFromString("1.00"), Payload: ad.Payload{ID: "a"}}))
	require.True(inv.Add(Creative{Format: ad.FormatBanner, Price: decimal.RequireFromString("2.00"), Payload: ad.Payload{ID: "b"}}))
	require.Equal(2, inv.Len())

	first, err := inv.Fill(ad.FormatBanner)
	require.NoError(err)
	second, err := inv.Fill(ad.FormatBanner)
	require.NoError(err)
	require.NotEqual(first.Payload.ID, second.Payload.ID, "rotates")

	_, err = inv.Fill(ad.FormatVideo)
	require.ErrorIs(err, ErrNoInventory)
}

func TestServeShutsDown(t *testing.T) {
	require := require.New(t)
	s := New(Config{Mode: gin.TestMode}, storage.NewMemoryStore())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(err)
	resp.Body.Close()
	require.Equal(http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(err)
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("server did not stop")
	}
}

func TestVASTAndTracking(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	doc, err := f.client.FetchVAST(ctx)
	require.NoError(err)
	inline, linear, err := doc.Linear()
	require.NoError(err)
	require.Equal("Acme", inline.Advertiser)
	require.Equal("00:00:15", linear.Duration)
	require.Equal("https://cdn.adsdk.dev/demo/spot.mp4", linear.MediaURL("video/mp4"))

	pixels := linear.TrackingURLs(vast.EventStart)
	require.Len(pixels, 1)
	u, err := url.Parse(pixels[0])
	require.NoError(err)
	id := u.Query().Get("playbackId")

	for _, pixel := range []string{inline.Impression[0].URL, pixels[0], linear.TrackingURLs(vast.EventComplete)[0]} {
		resp, err := http.Get(pixel)
		require.NoError(err)
		resp.Body.Close()
		require.Equal(http.StatusNoContent, resp.StatusCode)
	}

	pb, ok := f.srv.Playback(id)
	require.True(ok)
	require.Equal(adclient.PlaybackCompleted, pb.Status)
	require.Equal([]string{"impression", vast.EventStart, vast.EventComplete}, pb.Events)

	resp, err := http.Get(f.http.URL + "/api/ads/track?playbackId=pb_nope&event=start")
	require.NoError(err)
	resp.Body.Close()
	require.Equal(http.StatusNotFound, resp.StatusCode)
}

func TestVASTNoFill(t *testing.T) {
	f := newFixture(t, WithInventory(NewInventory(decimal.Zero)))
	_, err := f.client.FetchVAST(context.Background())
	require.ErrorIs(t, err, adclient.ErrNoFill)
}
