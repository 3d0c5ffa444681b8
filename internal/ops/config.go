// Package ops loads and validates the runtime configuration. Credentials
// never live in the JSON file; they come from the environment.
package ops

import (
	"encoding/json"
	"fmt"
	"os"

	"main/internal/broker"
	"main/internal/exits"
	"main/internal/journal"
	"main/internal/og"
	"main/internal/pipeline"
	"main/internal/reconcile"
	"main/internal/risk"
	"main/internal/route"
	"main/internal/sizing"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	StatePath string `json:"statePath"`
	Timezone  string `json:"timezone"`

	Risk      risk.Config        `json:"risk"`
	Route     route.Config       `json:"route"`
	Sizing    sizing.Config      `json:"sizing"`
	Orders    og.RouterConfig    `json:"orders"`
	Validator og.ValidatorConfig `json:"validator"`
	Exits     exits.Config       `json:"exits"`
	Reconcile reconcile.Config   `json:"reconcile"`
	Pipeline  pipeline.Options   `json:"pipeline"`

	Journal JournalConfig `json:"journal"`
	Brokers BrokersConfig `json:"brokers"`
	Serve   ServeConfig   `json:"serve"`
	Profile ProfileConfig `json:"profile"`
}

// JournalConfig selects the journal sinks.
type JournalConfig struct {
	File     journal.FileConfig `json:"file"`
	Postgres *journal.PGConfig  `json:"postgres,omitempty"`
}

// BrokersConfig names the primary and optional secondary broker.
type BrokersConfig struct {
	Primary   broker.Config  `json:"primary"`
	Secondary *broker.Config `json:"secondary,omitempty"`
}

// ServeConfig is the control/metrics HTTP surface.
type ServeConfig struct {
	Addr string `json:"addr"`
}

// ProfileConfig enables continuous profiling when a server address is set.
type ProfileConfig struct {
	ServerAddress string `json:"serverAddress"`
	AppName       string `json:"appName"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	FileConfig
}

// Load reads and validates a JSON config file, then resolves broker
// credentials from the environment.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return FromFileConfig(cfg)
}

// FromFileConfig resolves an in-memory config the same way Load resolves a
// file: defaults, validation, then credentials from the environment.
func FromFileConfig(cfg FileConfig) (Loaded, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return Loaded{}, err
	}

	resolveCredentials(&cfg.Brokers.Primary)
	if cfg.Brokers.Secondary != nil {
		resolveCredentials(cfg.Brokers.Secondary)
	}
	return Loaded{FileConfig: cfg}, nil
}

// LoadRiskLimits re-reads only the risk section, for hot reload.
func LoadRiskLimits(path string) (risk.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return risk.Config{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return risk.Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg.Risk, nil
}

func (c FileConfig) withDefaults() FileConfig {
	if c.StatePath == "" {
		c.StatePath = "data/state.json"
	}
	if c.Timezone == "" {
		c.Timezone = "America/New_York"
	}
	if c.Journal.File.Dir == "" {
		c.Journal.File.Dir = "data/journal"
	}
	if c.Brokers.Primary.Name == "" {
		c.Brokers.Primary.Name = "paper"
	}
	if c.Serve.Addr == "" {
		c.Serve.Addr = ":8080"
	}
	if c.Profile.AppName == "" {
		c.Profile.AppName = "trader"
	}
	return c
}

// Validate rejects configurations that cannot run.
func (c FileConfig) Validate() error {
	switch c.Brokers.Primary.Name {
	case "alpaca", "paper":
	default:
		return fmt.Errorf("unknown primary broker: %q", c.Brokers.Primary.Name)
	}
	if c.Brokers.Secondary != nil {
		switch c.Brokers.Secondary.Name {
		case "alpaca", "paper":
		default:
			return fmt.Errorf("unknown secondary broker: %q", c.Brokers.Secondary.Name)
		}
	}
	switch c.Route.Mode {
	case "", route.ModeOptions, route.ModeLeveragedETF, route.ModeBoth:
	default:
		return fmt.Errorf("unknown routing mode: %q", c.Route.Mode)
	}
	if c.Journal.File.Dir == "" {
		return fmt.Errorf("journal file dir is empty")
	}
	return nil
}

// resolveCredentials fills broker API keys from the environment. The alpaca
// SDK's own variable names are honored as a fallback.
func resolveCredentials(cfg *broker.Config) {
	if cfg.APIKey == "" {
		cfg.APIKey = firstEnv("ALPACA_API_KEY", "APCA_API_KEY_ID")
	}
	if cfg.APISecret == "" {
		cfg.APISecret = firstEnv("ALPACA_API_SECRET", "APCA_API_SECRET_KEY")
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
