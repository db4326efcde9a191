// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads the backend and CLI configuration from an optional
// YAML file, ADSDK_ environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/luxfi/adsdk/pkg/mcp"
	"github.com/luxfi/adsdk/pkg/storage"
	"github.com/luxfi/adsdk/pkg/x402"
)

const EnvPrefix = "ADSDK"

var ErrInvalid = errors.New("invalid configuration")

// Config is the full backend configuration
type Config struct {
	LogLevel string `mapstructure:"log_level"`

	Server struct {
		Addr         string   `mapstructure:"addr"`
		Mode         string   `mapstructure:"mode"`
		AllowOrigins []string `mapstructure:"allow_origins"`
	} `mapstructure:"server"`

	Storage struct {
		Kind string `mapstructure:"kind"`
		DSN  string `mapstructure:"dsn"`
	} `mapstructure:"storage"`

	Payment struct {
		Network           string        `mapstructure:"network"`
		PayTo             string        `mapstructure:"pay_to"`
		MaxTimeoutSeconds int           `mapstructure:"max_timeout_seconds"`
		AdDuration        time.Duration `mapstructure:"ad_duration"`
		SessionTTL        time.Duration `mapstructure:"session_ttl"`
		FacilitatorURL    string        `mapstructure:"facilitator_url"`
		FallbackAdURL     string        `mapstructure:"fallback_ad_url"`
	} `mapstructure:"payment"`

	Facilitator struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"facilitator"`

	Resources []Resource `mapstructure:"resources"`
}

// Resource is a catalog entry. Price is in whole tokens, "0.05" for five
// cents of USDC; empty means free.
type Resource struct {
	ID          string `mapstructure:"id"`
	Title       string `mapstructure:"title"`
	Description string `mapstructure:"description"`
	MimeType    string `mapstructure:"mime_type"`
	Price       string `mapstructure:"price"`
	Content     string `mapstructure:"content"`
}

// Load reads path when set, then the environment, then flags. Flags win.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if len(cfg.Resources) == 0 {
		cfg.Resources = DemoResources()
	}
	return cfg, cfg.Validate()
}

// setDefaults registers every key; AutomaticEnv only reaches keys viper knows
func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.allow_origins", []string{})
	v.SetDefault("storage.kind", storage.KindMemory)
	v.SetDefault("storage.dsn", "")
	v.SetDefault("payment.network", x402.NetworkBaseSepolia)
	v.SetDefault("payment.pay_to", "")
	v.SetDefault("payment.facilitator_url", "")
	v.SetDefault("payment.fallback_ad_url", "")
	v.SetDefault("payment.max_timeout_seconds", mcp.DefaultMaxTimeoutSeconds)
	v.SetDefault("payment.ad_duration", mcp.DefaultAdDuration)
	v.SetDefault("payment.session_ttl", mcp.DefaultSessionTTL)
	v.SetDefault("facilitator.addr", ":8402")
}

// flag names map onto config keys
var flagKeys = map[string]string{
	"log-level":       "log_level",
	"addr":            "server.addr",
	"mode":            "server.mode",
	"store":           "storage.kind",
	"dsn":             "storage.dsn",
	"network":         "payment.network",
	"pay-to":          "payment.pay_to",
	"facilitator-url": "payment.facilitator_url",
	"ad-duration":     "payment.ad_duration",
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Validate checks the payment settings and the catalog
func (c Config) Validate() error {
	if _, err := x402.LookupNetwork(c.Payment.Network); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	switch c.Storage.Kind {
	case storage.KindMemory:
	case storage.KindPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("%w: postgres storage needs a dsn", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: storage kind %q", ErrInvalid, c.Storage.Kind)
	}
	seen := make(map[string]bool, len(c.Resources))
	for _, r := range c.Resources {
		if r.ID == "" {
			return fmt.Errorf("%w: resource without id", ErrInvalid)
		}
		if seen[r.ID] {
			return fmt.Errorf("%w: duplicate resource %s", ErrInvalid, r.ID)
		}
		seen[r.ID] = true
	}
	return nil
}

// MCPConfig is the payment section in the tool server's terms
func (c Config) MCPConfig() mcp.Config {
	return mcp.Config{
		Network:           c.Payment.Network,
		PayTo:             c.Payment.PayTo,
		MaxTimeoutSeconds: c.Payment.MaxTimeoutSeconds,
		AdDuration:        c.Payment.AdDuration,
		SessionTTL:        c.Payment.SessionTTL,
		FallbackAdURL:     c.Payment.FallbackAdURL,
	}
}

// Catalog converts the resources, pricing them in atomic units of the
// network's token
func (c Config) Catalog() ([]mcp.Resource, error) {
	network, err := x402.LookupNetwork(c.Payment.Network)
	if err != nil {
		return nil, err
	}
	out := make([]mcp.Resource, 0, len(c.Resources))
	for _, r := range c.Resources {
		res := mcp.Resource{
			ID:          r.ID,
			Title:       r.Title,
			Description: r.Description,
			MimeType:    r.MimeType,
			Content:     r.Content,
		}
		if res.MimeType == "" {
			res.MimeType = "text/plain"
		}
		if r.Price != "" {
			if res.Price, err = x402.ToAtomic(r.Price, network.Decimals); err != nil {
				return nil, fmt.Errorf("resource %s: %w", r.ID, err)
			}
		}
		out = append(out, res)
	}
	return out, nil
}

// DemoResources is the catalog used when none is configured
func DemoResources() []Resource {
	return []Resource{
		{ID: "daily-tip", Title: "Daily tip", Description: "A free tip of the day", Content: "Batch your event writes."},
		{ID: "market-report", Title: "Market report", Description: "This week's ad market summary",
			Price: "0.05", MimeType: "text/markdown", Content: "# Market report\n\nCPMs are up 4% week over week."},
		{ID: "premium-dataset", Title: "Premium dataset", Description: "Hourly fill rates as JSON",
			Price: "1.50", MimeType: "application/json", Content: `{"fillRate":[0.91,0.88,0.93]}`},
	}
}
