// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/luxfi/adsdk/pkg/log"
	"github.com/luxfi/adsdk/pkg/settlement"
	"github.com/luxfi/adsdk/pkg/x402"
)

// Service is what the HTTP surface exposes
type Service interface {
	settlement.Facilitator
	Supported(ctx context.Context) (x402.SupportedResponse, error)
}

type handler struct {
	svc Service
	log log.Logger
}

// NewRouter serves POST /verify, POST /settle and GET /supported
func NewRouter(svc Service, logger log.Logger) *mux.Router {
	h := &handler{svc: svc, log: logger}

	r := mux.NewRouter()
	r.HandleFunc("/verify", h.handleVerify).Methods(http.MethodPost)
	r.HandleFunc("/settle", h.handleSettle).Methods(http.MethodPost)
	r.HandleFunc("/supported", h.handleSupported).Methods(http.MethodGet)
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}).Methods(http.MethodGet)
	return r
}

func (h *handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req x402.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	resp, err := h.svc.Verify(r.Context(), req.PaymentHeader, req.PaymentRequirements)
	if err != nil {
		h.log.Warn("verify failed", log.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) handleSettle(w http.ResponseWriter, r *http.Request) {
	var req x402.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	resp, err := h.svc.Settle(r.Context(), req.PaymentHeader, req.PaymentRequirements)
	if err != nil {
		h.log.Warn("settle failed", log.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) handleSupported(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Supported(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Client calls a remote facilitator
type Client struct {
	base string
	hc   *http.Client
}

var _ Service = (*Client)(nil)

// NewClient targets the facilitator at baseURL. A nil hc uses http.DefaultClient.
func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), hc: hc}
}

func (c *Client) Verify(ctx context.Context, header string, req x402.PaymentRequirements) (x402.VerifyResponse, error) {
	var out x402.VerifyResponse
	err := c.call(ctx, http.MethodPost, "/verify", x402.VerifyRequest{
		X402Version:         x402.Version,
		PaymentHeader:       header,
		PaymentRequirements: req,
	}, &out)
	return out, err
}

func (c *Client) Settle(ctx context.Context, header string, req x402.PaymentRequirements) (x402.SettleResponse, error) {
	var out x402.SettleResponse
	err := c.call(ctx, http.MethodPost, "/settle", x402.VerifyRequest{
		X402Version:         x402.Version,
		PaymentHeader:       header,
		PaymentRequirements: req,
	}, &out)
	return out, err
}

func (c *Client) Supported(ctx context.Context) (x402.SupportedResponse, error) {
	var out x402.SupportedResponse
	err := c.call(ctx, http.MethodGet, "/supported", nil, &out)
	return out, err
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("facilitator %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
