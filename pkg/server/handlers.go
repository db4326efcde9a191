// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package server

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/luxfi/adsdk/pkg/ad"
	"github.com/luxfi/adsdk/pkg/adclient"
	"github.com/luxfi/adsdk/pkg/analytics"
	"github.com/luxfi/adsdk/pkg/ids"
	"github.com/luxfi/adsdk/pkg/log"
	"github.com/luxfi/adsdk/pkg/vast"
)

// Playback is the server side record of a fetched ad
type Playback struct {
	ID           string
	AdID         string
	Type         string
	Status       string
	ViewDuration float64
	Metadata     map[string]any
	Events       []string
	IssuedAt     time.Time
	UpdatedAt    time.Time
}

// QueryFunc answers one kind of user query
type QueryFunc func(ctx context.Context, input string) (any, error)

func defaultQueries() map[string]QueryFunc {
	return map[string]QueryFunc{
		"echo": func(_ context.Context, in string) (any, error) { return in, nil },
		"uppercase": func(_ context.Context, in string) (any, error) {
			return strings.ToUpper(in), nil
		},
		"wordcount": func(_ context.Context, in string) (any, error) {
			return len(strings.Fields(in)), nil
		},
	}
}

func (s *Server) handleEvents(c *gin.Context) {
	var batch analytics.Batch
	if err := c.ShouldBindJSON(&batch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if batch.AppID == "" {
		batch.AppID = c.GetHeader("X-App-Id")
	}
	if batch.AppID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "appId is required"})
		return
	}

	if err := s.tracker.TrackBatch(c.Request.Context(), batch); err != nil {
		s.log.Error("event batch not stored", log.String("appId", batch.AppID), log.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
		return
	}
	if s.metrics != nil {
		for _, ev := range batch.Events {
			s.metrics.EventsTracked.WithLabelValues(string(ev.Type)).Inc()
		}
	}
	s.hub.Broadcast(batch)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleServe(c *gin.Context) {
	start := time.Now()
	var req adclient.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	format, err := ad.ParseFormat(string(req.Format))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Format = format

	s.tracker.TrackRequest(req.AppID, BidRequest(req, s.inventory.floor))

	creative, err := s.inventory.Fill(format)
	if err != nil {
		s.tracker.TrackResponse(req.AppID, false, creative.Price, time.Since(start))
		s.countServe("no_fill")
		c.JSON(http.StatusOK, adclient.Response{})
		return
	}
	s.tracker.TrackResponse(req.AppID, true, creative.Price, time.Since(start))
	s.countServe("filled")

	payload := creative.Payload
	c.JSON(http.StatusOK, adclient.Response{Ad: &payload})
}

func (s *Server) countServe(result string) {
	if s.metrics != nil {
		s.metrics.AdRequests.WithLabelValues(result).Inc()
	}
}

// handleFetch answers the paywall ad fetch. Video is preferred for the
// "video" type; anything else gets a banner image.
func (s *Server) handleFetch(c *gin.Context) {
	adType := c.DefaultQuery("type", "video")
	format := ad.FormatBanner
	if adType == "video" {
		format = ad.FormatVideo
	}
	creative, err := s.inventory.Fill(format)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	p := creative.Payload
	fetched := adclient.FetchedAd{Type: adType, AssetURL: p.VideoURL, ClickURL: p.ClickURL, Name: p.Title}
	if fetched.AssetURL == "" {
		fetched.AssetURL = p.ImageURL
	}
	if fetched.Name == "" {
		fetched.Name = p.ID
	}
	if p.Advertiser != nil {
		fetched.Advertiser = p.Advertiser.Name
	}

	pb := s.issuePlayback(p.ID, adType)
	c.JSON(http.StatusOK, adclient.FetchResponse{PlaybackID: pb.ID, Ad: fetched})
}

func (s *Server) issuePlayback(adID, adType string) *Playback {
	now := s.now()
	pb := &Playback{ID: ids.NewPlaybackID(), AdID: adID, Type: adType, Status: "issued", IssuedAt: now, UpdatedAt: now}
	s.mu.Lock()
	s.playbacks[pb.ID] = pb
	s.mu.Unlock()
	return pb
}

// handleVAST serves the next video creative as a VAST document whose
// pixels point back at /api/ads/track
func (s *Server) handleVAST(c *gin.Context) {
	creative, err := s.inventory.Fill(ad.FormatVideo)
	if err != nil {
		s.writeVAST(c, vast.Empty("no fill"))
		return
	}
	p := creative.Payload
	pb := s.issuePlayback(p.ID, "vast")

	base := trackBase(c)
	spec := vast.Spec{
		AdID:     p.ID,
		Title:    p.Title,
		VideoURL: p.VideoURL,
		ClickURL: p.ClickURL,
		Duration: creative.Duration,
		CPM:      creative.Price,
		Track: func(event string) string {
			q := url.Values{"playbackId": {pb.ID}, "event": {event}}
			return base + "?" + q.Encode()
		},
	}
	if spec.Title == "" {
		spec.Title = p.ID
	}
	if p.Advertiser != nil {
		spec.Advertiser = p.Advertiser.Name
	}
	s.writeVAST(c, vast.Build(spec))
}

func (s *Server) writeVAST(c *gin.Context, doc *vast.VAST) {
	data, err := doc.Marshal()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/xml; charset=utf-8", data)
}

func trackBase(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if fwd := c.GetHeader("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + c.Request.Host + "/api/ads/track"
}

// vastStatus maps tracking pixels onto playback statuses
var vastStatus = map[string]string{
	vast.EventStart:    adclient.PlaybackStarted,
	vast.EventComplete: adclient.PlaybackCompleted,
	vast.EventSkip:     adclient.PlaybackSkipped,
	"error":            adclient.PlaybackError,
}

// handleTrack records a VAST pixel hit
func (s *Server) handleTrack(c *gin.Context) {
	id, event := c.Query("playbackId"), c.Query("event")

	s.mu.Lock()
	pb, ok := s.playbacks[id]
	if ok {
		pb.Events = append(pb.Events, event)
		if st, known := vastStatus[event]; known {
			pb.Status = st
		}
		pb.UpdatedAt = s.now()
	}
	s.mu.Unlock()

	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handlePlayback(c *gin.Context) {
	var r adclient.PlaybackReport
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch r.Status {
	case adclient.PlaybackStarted, adclient.PlaybackCompleted, adclient.PlaybackSkipped, adclient.PlaybackError:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown playback status"})
		return
	}

	s.mu.Lock()
	pb, ok := s.playbacks[r.PlaybackID]
	if ok {
		pb.Status = r.Status
		pb.ViewDuration = r.ViewDuration
		pb.Metadata = r.Metadata
		pb.UpdatedAt = s.now()
	}
	s.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown playback"})
		return
	}
	s.log.Debug("playback reported",
		log.String("playbackId", r.PlaybackID),
		log.String("status", r.Status),
	)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Playback returns a copy of the playback record
func (s *Server) Playback(id string) (Playback, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pb, ok := s.playbacks[id]
	if !ok {
		return Playback{}, false
	}
	out := *pb
	out.Events = append([]string(nil), pb.Events...)
	return out, true
}

func (s *Server) handleQuery(c *gin.Context) {
	var body struct {
		APIType   string `json:"apiType" binding:"required"`
		UserInput string `json:"userInput"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, adclient.QueryResult{Message: err.Error()})
		return
	}
	fn, ok := s.queries[body.APIType]
	if !ok {
		c.JSON(http.StatusOK, adclient.QueryResult{Message: "unsupported api type " + body.APIType})
		return
	}
	result, err := fn(c.Request.Context(), body.UserInput)
	if err != nil {
		c.JSON(http.StatusOK, adclient.QueryResult{Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, adclient.QueryResult{Success: true, Result: result})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.tracker.GetRealTimeMetrics())
}

// handleReport takes optional RFC 3339 from/to bounds, defaulting to the
// last 24 hours
func (s *Server) handleReport(c *gin.Context) {
	end := s.now()
	start := end.Add(-24 * time.Hour)
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
			return
		}
		start = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
			return
		}
		end = t
	}

	report, err := s.tracker.GetAppReport(c.Request.Context(), c.Param("appId"), start, end)
	switch {
	case errors.Is(err, analytics.ErrUnknownApp):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case err != nil:
		s.log.Error("report query failed", log.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "report unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"appId":       report.AppID,
		"requests":    report.Requests,
		"fillRate":    report.FillRate,
		"impressions": report.Impressions,
		"clicks":      report.Clicks,
		"revenue":     report.Revenue.StringFixed(2),
		"events":      report.Events,
	})
}
