// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"

	"github.com/luxfi/adsdk/pkg/adclient"
	"github.com/luxfi/adsdk/pkg/config"
	"github.com/luxfi/adsdk/pkg/crypto"
	"github.com/luxfi/adsdk/pkg/facilitator"
	"github.com/luxfi/adsdk/pkg/log"
	"github.com/luxfi/adsdk/pkg/mcp"
	"github.com/luxfi/adsdk/pkg/metric"
	"github.com/luxfi/adsdk/pkg/server"
	"github.com/luxfi/adsdk/pkg/settlement"
	"github.com/luxfi/adsdk/pkg/storage"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reference ad backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync()

			b, err := buildBackend(cmd.Context(), cfg, selfURL(cfg.Server.Addr), logger)
			if err != nil {
				return err
			}
			defer b.Close()
			return b.server.Run(cmd.Context())
		},
	}
	f := cmd.Flags()
	f.String("addr", "", "listen address")
	f.String("mode", "", "gin mode: debug, release or test")
	f.String("store", "", "event store: memory or postgres")
	f.String("dsn", "", "postgres connection string")
	f.String("network", "", "payment network")
	f.String("pay-to", "", "address receiving payments")
	f.String("facilitator-url", "", "remote facilitator; empty runs one in process")
	f.Duration("ad-duration", 0, "ad length before payment is accepted")
	return cmd
}

func loadConfig(cmd *cobra.Command) (config.Config, log.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return cfg, nil, err
	}
	return cfg, log.NewWithLevel(cfg.LogLevel), nil
}

// backend is the assembled server with the pieces callers may need
type backend struct {
	server *server.Server
	mcp    *mcp.Server
	ledger *settlement.Ledger
	store  storage.Store
	payTo  string
}

func (b *backend) Close() error { return b.store.Close() }

// buildBackend wires storage, payment and the tool server into one HTTP
// surface. Without a facilitator URL payments settle against an in-process
// ledger, which is also served under /facilitator.
func buildBackend(ctx context.Context, cfg config.Config, self string, logger log.Logger) (*backend, error) {
	store, err := storage.New(ctx, cfg.Storage.Kind, cfg.Storage.DSN, logger.With(log.String("component", "storage")))
	if err != nil {
		return nil, err
	}
	b := &backend{store: store, payTo: cfg.Payment.PayTo}

	metrics, err := metric.NewMetrics()
	if err != nil {
		store.Close()
		return nil, err
	}

	var (
		fac   settlement.Facilitator
		mount http.Handler
	)
	if cfg.Payment.FacilitatorURL != "" {
		fac = facilitator.NewClient(cfg.Payment.FacilitatorURL, &http.Client{Timeout: 30 * time.Second})
	} else {
		b.ledger = settlement.NewLedger(clock.New(), logger.With(log.String("component", "ledger")))
		local := facilitator.NewLocal(b.ledger, clock.New(), logger.With(log.String("component", "facilitator")))
		fac, mount = local, facilitator.NewRouter(local, logger)
	}

	if b.payTo == "" {
		key, err := crypto.GenerateKey()
		if err != nil {
			store.Close()
			return nil, err
		}
		b.payTo = key.Address()
		logger.Warn("no pay-to address configured, using a throwaway one", log.String("payTo", b.payTo))
	}

	catalog, err := cfg.Catalog()
	if err != nil {
		store.Close()
		return nil, err
	}
	mcpCfg := cfg.MCPConfig()
	mcpCfg.PayTo = b.payTo
	ads := adclient.New(adclient.Config{APIEndpoint: self + "/api"}, nil, adclient.WithLogger(logger))
	b.mcp, err = mcp.NewServer(mcpCfg, catalog, settlement.NewSettler(fac, logger),
		mcp.WithAdSource(ads),
		mcp.WithLogger(logger.With(log.String("component", "mcp"))),
		mcp.WithMetrics(metrics),
	)
	if err != nil {
		store.Close()
		return nil, err
	}

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithMetrics(metrics),
		server.WithMCP(b.mcp.Handler()),
	}
	if mount != nil {
		opts = append(opts, server.WithFacilitator(mount))
	}
	b.server = server.New(server.Config{
		Addr:         cfg.Server.Addr,
		Mode:         cfg.Server.Mode,
		AllowOrigins: cfg.Server.AllowOrigins,
	}, store, opts...)
	return b, nil
}

// selfURL is how the backend reaches its own API
func selfURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return fmt.Sprintf("http://%s", addr)
}
