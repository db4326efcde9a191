// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/luxfi/adsdk/pkg/crypto"
	"github.com/luxfi/adsdk/pkg/facilitator"
	"github.com/luxfi/adsdk/pkg/log"
	"github.com/luxfi/adsdk/pkg/settlement"
	"github.com/luxfi/adsdk/pkg/x402"
)

func newFacilitatorCmd() *cobra.Command {
	var (
		addr  string
		funds []string
	)
	cmd := &cobra.Command{
		Use:   "facilitator",
		Short: "Run a standalone payment facilitator over an in-memory ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync()
			if addr == "" {
				addr = cfg.Facilitator.Addr
			}

			network, err := x402.LookupNetwork(cfg.Payment.Network)
			if err != nil {
				return err
			}
			ledger := settlement.NewLedger(clock.New(), logger)
			if err := fundAccounts(ledger, network, funds); err != nil {
				return err
			}
			local := facilitator.NewLocal(ledger, clock.New(), logger)
			return serveHTTP(cmd.Context(), addr, facilitator.NewRouter(local, logger), logger)
		},
	}
	cmd.Flags().StringVar(&addr, "listen", "", "listen address")
	cmd.Flags().StringArrayVar(&funds, "fund", nil, "pre-fund an account, ADDRESS=AMOUNT in whole tokens (repeatable)")
	return cmd
}

// fundAccounts parses ADDRESS=AMOUNT entries and credits the network's token
func fundAccounts(ledger *settlement.Ledger, network x402.Network, entries []string) error {
	for _, entry := range entries {
		addr, amount, ok := strings.Cut(entry, "=")
		if !ok {
			return fmt.Errorf("fund %q: want ADDRESS=AMOUNT", entry)
		}
		account, err := crypto.NormalizeAddress(strings.TrimSpace(addr))
		if err != nil {
			return fmt.Errorf("fund %q: %w", entry, err)
		}
		atomic, err := x402.ToAtomic(strings.TrimSpace(amount), network.Decimals)
		if err != nil {
			return fmt.Errorf("fund %q: %w", entry, err)
		}
		if err := ledger.Fund(network.USDC, account, decimal.RequireFromString(atomic)); err != nil {
			return fmt.Errorf("fund %q: %w", entry, err)
		}
	}
	return nil
}

func serveHTTP(ctx context.Context, addr string, h http.Handler, logger log.Logger) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("facilitator listening", log.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
