// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package server is the reference backend the SDK talks to: ad serving,
// event collection, playback reports and the optional payment surfaces.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/luxfi/adsdk/pkg/analytics"
	"github.com/luxfi/adsdk/pkg/log"
	"github.com/luxfi/adsdk/pkg/metric"
)

const ShutdownTimeout = 5 * time.Second

// Config for the HTTP surface
type Config struct {
	Addr         string
	Mode         string
	AllowOrigins []string
}

// Server wires the handlers onto a gin engine
type Server struct {
	cfg       Config
	tracker   *analytics.Tracker
	inventory *Inventory
	hub       *Hub
	log       log.Logger
	metrics   *metric.Metrics
	queries   map[string]QueryFunc
	mcp       http.Handler
	facil     http.Handler
	now       func() time.Time

	mu        sync.Mutex
	playbacks map[string]*Playback

	engine *gin.Engine
}

// Option customises a Server
type Option func(*Server)

func WithLogger(l log.Logger) Option        { return func(s *Server) { s.log = l } }
func WithMetrics(m *metric.Metrics) Option  { return func(s *Server) { s.metrics = m } }
func WithInventory(inv *Inventory) Option   { return func(s *Server) { s.inventory = inv } }
func WithMCP(h http.Handler) Option         { return func(s *Server) { s.mcp = h } }
func WithFacilitator(h http.Handler) Option { return func(s *Server) { s.facil = h } }
func WithClock(now func() time.Time) Option { return func(s *Server) { s.now = now } }

// WithQueryService registers fn under apiType for /api/process-query
func WithQueryService(apiType string, fn QueryFunc) Option {
	return func(s *Server) { s.queries[apiType] = fn }
}

// New builds the server around the event store
func New(cfg Config, store analytics.EventStore, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg,
		tracker:   analytics.NewTracker(store),
		log:       log.NoOp(),
		queries:   defaultQueries(),
		now:       time.Now,
		playbacks: make(map[string]*Playback),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.inventory == nil {
		s.inventory = DemoInventory()
	}
	s.hub = NewHub(s.log)
	s.engine = s.router()
	return s
}

// Tracker exposes the analytics aggregate
func (s *Server) Tracker() *analytics.Tracker { return s.tracker }

// Hub exposes the live event feed
func (s *Server) Hub() *Hub { return s.hub }

// Handler is the complete HTTP surface
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) router() *gin.Engine {
	if s.cfg.Mode != "" {
		gin.SetMode(s.cfg.Mode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog(), s.instrument())

	corsCfg := cors.DefaultConfig()
	if len(s.cfg.AllowOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.cfg.AllowOrigins
	}
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-App-Id"}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": s.now().Unix()})
	})

	api := r.Group("/api")
	{
		api.POST("/events", s.handleEvents)
		api.POST("/ads/serve", s.handleServe)
		api.GET("/ads/fetch", s.handleFetch)
		api.GET("/ads/vast", s.handleVAST)
		api.GET("/ads/track", s.handleTrack)
		api.POST("/ads/playback", s.handlePlayback)
		api.POST("/process-query", s.handleQuery)
		api.GET("/stats", s.handleStats)
		api.GET("/reports/:appId", s.handleReport)
	}
	r.GET("/ws/events", gin.WrapH(s.hub))

	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.GetGatherer(), promhttp.HandlerOpts{})))
	}
	if s.mcp != nil {
		r.POST("/mcp", gin.WrapH(s.mcp))
	}
	if s.facil != nil {
		r.Any("/facilitator/*path", gin.WrapH(http.StripPrefix("/facilitator", s.facil)))
	}
	return r
}

// Run listens on the configured address and serves until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts on ln until ctx is cancelled, then shuts down gracefully
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", log.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			log.String("method", c.Request.Method),
			log.String("path", c.Request.URL.Path),
			log.Int("status", c.Writer.Status()),
			log.Duration("latency", time.Since(start)),
		)
	}
}

// instrument counts requests per matched route
func (s *Server) instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.metrics == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		s.metrics.HTTPLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}
