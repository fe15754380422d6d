// Package config loads the cardroomd configuration: an HCL file defining the
// server, auth and wallet settings plus the tables to open at startup, with
// environment variable overrides applied on top.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/cardroomlabs/cardroom/internal/engine"
)

// Config is the complete cardroomd configuration.
type Config struct {
	Server ServerSettings `hcl:"server,block"`
	Tables []TableConfig  `hcl:"table,block"`
	Auth   *AuthConfig    `hcl:"auth,block"`
	Wallet *WalletConfig  `hcl:"wallet,block"`
}

// ServerSettings contains server-level configuration.
type ServerSettings struct {
	Address  string `hcl:"address,optional"`
	Port     int    `hcl:"port,optional"`
	LogLevel string `hcl:"log_level,optional"`

	// DisconnectGraceSeconds is how long a dropped player's seat is held
	// before the forced default action and cash-out.
	DisconnectGraceSeconds int `hcl:"disconnect_grace_seconds,optional"`

	// EmptyTableGraceSeconds is how long an empty table survives before the
	// registry retires it.
	EmptyTableGraceSeconds int `hcl:"empty_table_grace_seconds,optional"`

	// InterHandDelaySeconds is the pause between settlement and the next deal.
	InterHandDelaySeconds int `hcl:"inter_hand_delay_seconds,optional"`

	// AllowMultiTable permits one identity to sit at several tables of the
	// same game kind.
	AllowMultiTable bool `hcl:"allow_multi_table,optional"`
}

// TableConfig defines one table opened at startup.
type TableConfig struct {
	Name               string `hcl:"name,label"`
	Kind               string `hcl:"kind"`
	Seats              int    `hcl:"seats,optional"`
	SmallBlind         int    `hcl:"small_blind,optional"`
	BigBlind           int    `hcl:"big_blind,optional"`
	MinBet             int    `hcl:"min_bet,optional"`
	MaxBet             int    `hcl:"max_bet,optional"`
	BuyInMin           int    `hcl:"buy_in_min,optional"`
	BuyInMax           int    `hcl:"buy_in_max,optional"`
	TurnTimeoutSeconds int    `hcl:"turn_timeout_seconds,optional"`
	DealerHitsSoft17   bool   `hcl:"dealer_hits_soft_17,optional"`
}

// AuthConfig selects how bearer credentials are validated.
type AuthConfig struct {
	// Mode is one of "none", "static" or "http".
	Mode   string        `hcl:"mode,optional"`
	URL    string        `hcl:"url,optional"`
	Tokens []StaticToken `hcl:"token,block"`
}

// StaticToken maps one fixed token to an identity, for the static auth mode.
type StaticToken struct {
	Token    string `hcl:"token,label"`
	PlayerID string `hcl:"player_id"`
	Name     string `hcl:"name,optional"`
}

// WalletConfig points at the wallet store. An empty DSN selects the
// in-memory ledger.
type WalletConfig struct {
	DSN string `hcl:"dsn,optional"`

	// SeedBalance funds unknown accounts in the in-memory ledger, so dev
	// setups do not need a provisioning step. Ignored with a DSN.
	SeedBalance int `hcl:"seed_balance,optional"`
}

// envOverrides are applied after the file is decoded.
type envOverrides struct {
	Address   string `env:"CARDROOM_ADDRESS"`
	Port      int    `env:"CARDROOM_PORT"`
	LogLevel  string `env:"CARDROOM_LOG_LEVEL"`
	WalletDSN string `env:"CARDROOM_WALLET_DSN"`
	AuthURL   string `env:"CARDROOM_AUTH_URL"`
}

// Default returns the development configuration used when no file exists.
func Default() *Config {
	cfg := &Config{
		Server: ServerSettings{},
		Tables: []TableConfig{
			{Name: "poker-main", Kind: "poker", SmallBlind: 1, BigBlind: 2},
			{Name: "blackjack-main", Kind: "blackjack", MinBet: 1, MaxBet: 100},
		},
	}
	cfg.applyDefaults()
	return cfg
}

// Load reads the HCL file, applies defaults and environment overrides. A
// missing file yields the default configuration.
func Load(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		cfg := Default()
		if err := cfg.applyEnv(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse %s: %s", filename, diags.Error())
	}

	var cfg Config
	if diags := gohcl.DecodeBody(file.Body, nil, &cfg); diags.HasErrors() {
		return nil, fmt.Errorf("decode %s: %s", filename, diags.Error())
	}

	cfg.applyDefaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.DisconnectGraceSeconds == 0 {
		c.Server.DisconnectGraceSeconds = 30
	}
	if c.Server.EmptyTableGraceSeconds == 0 {
		c.Server.EmptyTableGraceSeconds = 300
	}
	if c.Server.InterHandDelaySeconds == 0 {
		c.Server.InterHandDelaySeconds = 3
	}

	for i := range c.Tables {
		t := &c.Tables[i]
		if t.Seats == 0 {
			if t.Kind == "blackjack" {
				t.Seats = 5
			} else {
				t.Seats = 6
			}
		}
		if t.TurnTimeoutSeconds == 0 {
			t.TurnTimeoutSeconds = 15
		}
		if t.Kind == "poker" {
			if t.BuyInMin == 0 {
				t.BuyInMin = t.BigBlind * 50
			}
			if t.BuyInMax == 0 {
				t.BuyInMax = t.BigBlind * 500
			}
		}
		if t.Kind == "blackjack" {
			if t.BuyInMin == 0 {
				t.BuyInMin = t.MinBet * 20
			}
			if t.BuyInMax == 0 {
				t.BuyInMax = t.MaxBet * 100
			}
		}
	}

	if c.Auth == nil {
		c.Auth = &AuthConfig{}
	}
	if c.Auth.Mode == "" {
		c.Auth.Mode = "none"
	}
	if c.Wallet == nil {
		c.Wallet = &WalletConfig{}
	}
	if c.Wallet.DSN == "" && c.Wallet.SeedBalance == 0 {
		c.Wallet.SeedBalance = 10000
	}
}

func (c *Config) applyEnv() error {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	if overrides.Address != "" {
		c.Server.Address = overrides.Address
	}
	if overrides.Port != 0 {
		c.Server.Port = overrides.Port
	}
	if overrides.LogLevel != "" {
		c.Server.LogLevel = overrides.LogLevel
	}
	if overrides.WalletDSN != "" {
		c.Wallet.DSN = overrides.WalletDSN
	}
	if overrides.AuthURL != "" {
		c.Auth.Mode = "http"
		c.Auth.URL = overrides.AuthURL
	}
	return nil
}

// Validate checks the configuration before the server starts.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if len(c.Tables) == 0 {
		return fmt.Errorf("at least one table must be configured")
	}

	seen := make(map[string]bool)
	for _, t := range c.Tables {
		if seen[t.Name] {
			return fmt.Errorf("table %s: duplicate name", t.Name)
		}
		seen[t.Name] = true

		kind := engine.GameKind(t.Kind)
		if !kind.Valid() {
			return fmt.Errorf("table %s: unknown kind %q", t.Name, t.Kind)
		}
		switch kind {
		case engine.KindPoker:
			if t.SmallBlind <= 0 {
				return fmt.Errorf("table %s: small blind must be positive", t.Name)
			}
			if t.BigBlind <= t.SmallBlind {
				return fmt.Errorf("table %s: big blind must exceed small blind", t.Name)
			}
			if t.Seats < 2 || t.Seats > 10 {
				return fmt.Errorf("table %s: seats must be between 2 and 10", t.Name)
			}
		case engine.KindBlackjack:
			if t.MinBet <= 0 {
				return fmt.Errorf("table %s: min bet must be positive", t.Name)
			}
			if t.MaxBet < t.MinBet {
				return fmt.Errorf("table %s: max bet must not be below min bet", t.Name)
			}
			if t.Seats < 1 || t.Seats > 8 {
				return fmt.Errorf("table %s: seats must be between 1 and 8", t.Name)
			}
		}
		if t.BuyInMin >= t.BuyInMax {
			return fmt.Errorf("table %s: buy-in minimum must be less than maximum", t.Name)
		}
		if t.TurnTimeoutSeconds <= 0 {
			return fmt.Errorf("table %s: turn timeout must be positive", t.Name)
		}
	}

	switch c.Auth.Mode {
	case "none":
	case "static":
		if len(c.Auth.Tokens) == 0 {
			return fmt.Errorf("auth mode static requires at least one token block")
		}
		for _, tok := range c.Auth.Tokens {
			if tok.PlayerID == "" {
				return fmt.Errorf("auth token %s: player_id is required", tok.Token)
			}
		}
	case "http":
		if c.Auth.URL == "" {
			return fmt.Errorf("auth mode http requires a url")
		}
	default:
		return fmt.Errorf("unknown auth mode %q", c.Auth.Mode)
	}
	return nil
}

// ListenAddress returns the host:port the server binds.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// DisconnectGrace returns the disconnect grace as a duration.
func (c *Config) DisconnectGrace() time.Duration {
	return time.Duration(c.Server.DisconnectGraceSeconds) * time.Second
}

// EmptyTableGrace returns the empty table retirement grace as a duration.
func (c *Config) EmptyTableGrace() time.Duration {
	return time.Duration(c.Server.EmptyTableGraceSeconds) * time.Second
}

// InterHandDelay returns the inter-hand pause as a duration.
func (c *Config) InterHandDelay() time.Duration {
	return time.Duration(c.Server.InterHandDelaySeconds) * time.Second
}

// EngineConfig converts a table block to the session configuration.
func (t TableConfig) EngineConfig() engine.Config {
	return engine.Config{
		Kind:             engine.GameKind(t.Kind),
		SeatCount:        t.Seats,
		SmallBlind:       t.SmallBlind,
		BigBlind:         t.BigBlind,
		MinBet:           t.MinBet,
		MaxBet:           t.MaxBet,
		MinBuyIn:         t.BuyInMin,
		MaxBuyIn:         t.BuyInMax,
		TurnTimeout:      time.Duration(t.TurnTimeoutSeconds) * time.Second,
		DealerHitsSoft17: t.DealerHitsSoft17,
	}
}
