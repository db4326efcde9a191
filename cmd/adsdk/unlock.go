// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/luxfi/adsdk/pkg/adclient"
	"github.com/luxfi/adsdk/pkg/config"
	"github.com/luxfi/adsdk/pkg/crypto"
	"github.com/luxfi/adsdk/pkg/log"
	"github.com/luxfi/adsdk/pkg/mcp"
	"github.com/luxfi/adsdk/pkg/paywall"
	"github.com/luxfi/adsdk/pkg/storage"
	"github.com/luxfi/adsdk/pkg/wallet"
	"github.com/luxfi/adsdk/pkg/x402"
)

type unlockOptions struct {
	endpoint string
	keyHex   string
	resource string
	fund     string
}

func newUnlockCmd() *cobra.Command {
	var opts unlockOptions
	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Watch an ad, pay and unlock a resource from the terminal",
		Long: "Runs the pay-to-unlock flow with a local key wallet. Without --endpoint an\n" +
			"in-process backend and ledger are started and the wallet is funded first.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync()
			return runUnlock(cmd.Context(), cmd.OutOrStdout(), cfg, opts, logger)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.endpoint, "endpoint", "", "backend base URL; empty starts one in process")
	f.StringVar(&opts.keyHex, "key", "", "hex private key of the paying wallet; empty generates one")
	f.StringVar(&opts.resource, "resource", "", "resource id; empty picks the first paid one")
	f.StringVar(&opts.fund, "fund", "10", "tokens credited to the wallet by the in-process ledger")
	f.String("network", "", "payment network")
	f.Duration("ad-duration", 0, "ad length before payment is accepted")
	return cmd
}

func runUnlock(ctx context.Context, out io.Writer, cfg config.Config, opts unlockOptions, logger log.Logger) error {
	out = &lockedWriter{w: out}
	key, err := loadKey(opts.keyHex)
	if err != nil {
		return err
	}

	base := strings.TrimRight(opts.endpoint, "/")
	if base == "" {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return err
		}
		base = "http://" + ln.Addr().String()

		cfg.Storage.Kind = storage.KindMemory
		cfg.Payment.FacilitatorURL = ""
		b, err := buildBackend(ctx, cfg, base, logger)
		if err != nil {
			ln.Close()
			return err
		}
		defer b.Close()

		network, err := x402.LookupNetwork(cfg.Payment.Network)
		if err != nil {
			return err
		}
		if err := fundAccounts(b.ledger, network, []string{key.Address() + "=" + opts.fund}); err != nil {
			return err
		}

		srvCtx, stop := context.WithCancel(ctx)
		defer stop()
		go func() {
			if err := b.server.Serve(srvCtx, ln); err != nil {
				logger.Error("in-process backend stopped", log.Error(err))
			}
		}()
		fmt.Fprintf(out, "backend   %s (pay to %s)\n", base, b.payTo)
	}

	hc := &http.Client{Timeout: 30 * time.Second}
	w := wallet.NewLocal(key, 1, wallet.WithLogger(logger), wallet.WithApprover(func(_ context.Context, a wallet.Action) error {
		fmt.Fprintf(out, "wallet    approve %s\n", a)
		return nil
	}))
	fmt.Fprintf(out, "wallet    %s\n", key.Address())

	reporter := adclient.New(adclient.Config{APIEndpoint: base + "/api"}, nil, adclient.WithHTTPClient(hc), adclient.WithLogger(logger))
	flow := paywall.New(mcp.NewClient(base+"/mcp", hc), w,
		paywall.WithLogger(logger),
		paywall.WithUserID("cli"),
		paywall.WithPlaybackReporter(reporter),
	)
	defer flow.Close()

	var (
		last    string
		adReady = make(chan struct{})
		once    sync.Once
	)
	flow.OnChange(func(v paywall.View) {
		line := v.State.String()
		if v.State == paywall.StatePayment {
			line += " " + v.PayStatus.String()
		}
		if line != last {
			last = line
			fmt.Fprintf(out, "state     %s\n", line)
		}
		if v.CanContinue {
			once.Do(func() { close(adReady) })
		}
	})

	if err := flow.Load(ctx); err != nil {
		return err
	}
	id, err := pickResource(flow.View().Resources, opts.resource)
	if err != nil {
		return err
	}
	if err := flow.Select(ctx, id); err != nil {
		return err
	}

	if flow.State() == paywall.StateAd {
		v := flow.View()
		fmt.Fprintf(out, "ad        %s (%ds)\n", v.Session.AdURL, v.Session.Duration)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-adReady:
		}
		if err := flow.Continue(); err != nil {
			return err
		}
		v = flow.View()
		fmt.Fprintf(out, "price     %s USDC on %s\n", v.Amount, v.Network)
		if err := flow.Pay(ctx); err != nil {
			var pe *paywall.PaymentError
			if errors.As(err, &pe) {
				return fmt.Errorf("payment refused at %s: %w", pe.Step, err)
			}
			return err
		}
	}

	v := flow.View()
	if v.Receipt != nil {
		fmt.Fprintf(out, "receipt   tx %s block %d\n", v.Receipt.TxHash, v.Receipt.BlockNumber)
	}
	fmt.Fprintf(out, "content   (%s)\n%s\n", v.MimeType, v.Content)
	return nil
}

func loadKey(hex string) (*crypto.PrivateKey, error) {
	if hex == "" {
		return crypto.GenerateKey()
	}
	return crypto.HexToKey(hex)
}

// pickResource returns want when listed, else the first paid resource
func pickResource(resources []mcp.Resource, want string) (string, error) {
	for _, r := range resources {
		if want != "" && r.ID == want {
			return r.ID, nil
		}
	}
	if want != "" {
		return "", fmt.Errorf("resource %s is not in the catalog", want)
	}
	for _, r := range resources {
		if !r.Free {
			return r.ID, nil
		}
	}
	if len(resources) == 0 {
		return "", errors.New("empty catalog")
	}
	return resources[0].ID, nil
}

// lockedWriter serialises writes from the caller and the flow's listener
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
