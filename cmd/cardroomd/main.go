package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/joho/godotenv"

	"github.com/cardroomlabs/cardroom/internal/auth"
	"github.com/cardroomlabs/cardroom/internal/config"
	"github.com/cardroomlabs/cardroom/internal/hub"
	"github.com/cardroomlabs/cardroom/internal/registry"
	"github.com/cardroomlabs/cardroom/internal/server"
	"github.com/cardroomlabs/cardroom/internal/wallet"
)

var CLI struct {
	Config   string `short:"c" default:"cardroom.hcl" help:"Path to HCL configuration file"`
	Addr     string `short:"a" help:"Listen address (overrides config)"`
	LogLevel string `short:"l" help:"Log level (overrides config)"`
}

func main() {
	kctx := kong.Parse(&CLI)

	// A .env file is optional; environment overrides are read during Load.
	_ = godotenv.Load()

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		kctx.Exit(1)
	}
	if CLI.LogLevel != "" {
		cfg.Server.LogLevel = CLI.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		kctx.Exit(1)
	}

	logger := log.New(os.Stderr)
	switch cfg.Server.LogLevel {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ledger, err := openLedger(ctx, cfg, logger)
	if err != nil {
		logger.Error("wallet store unavailable", "error", err)
		kctx.Exit(1)
	}
	writer := wallet.NewWriter(ledger, quartz.NewReal(), logger)
	defer writer.Close()

	h := hub.New(hub.Options{
		GracePeriod:     cfg.DisconnectGrace(),
		InterHandDelay:  cfg.InterHandDelay(),
		AllowMultiTable: cfg.Server.AllowMultiTable,
	}, quartz.NewReal(), ledger, writer, logger)
	reg := registry.New(h, quartz.NewReal(), logger, cfg.EmptyTableGrace())
	h.SetRegistry(reg)

	for _, t := range cfg.Tables {
		if _, err := reg.GetOrCreate(t.Name, t.EngineConfig()); err != nil {
			logger.Error("failed to open table", "table", t.Name, "error", err)
			kctx.Exit(1)
		}
		// Configured tables stay joinable however long they sit empty.
		if err := reg.Pin(t.Name); err != nil {
			logger.Error("failed to pin table", "table", t.Name, "error", err)
			kctx.Exit(1)
		}
		logger.Info("table open", "table", t.Name, "kind", t.Kind, "seats", t.Seats)
	}

	validator, err := buildValidator(cfg)
	if err != nil {
		logger.Error("auth configuration invalid", "error", err)
		kctx.Exit(1)
	}

	addr := cfg.ListenAddress()
	if CLI.Addr != "" {
		addr = CLI.Addr
	}
	srv := server.New(addr, h, reg, validator, logger)
	logger.Info("starting cardroomd", "addr", addr, "tables", len(cfg.Tables), "auth", cfg.Auth.Mode)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server failed", "error", err)
		kctx.Exit(1)
	}
	logger.Info("shutdown complete")
}

// openLedger selects the postgres ledger when a DSN is configured and the
// seeded in-memory ledger otherwise.
func openLedger(ctx context.Context, cfg *config.Config, logger *log.Logger) (wallet.Ledger, error) {
	if cfg.Wallet.DSN == "" {
		logger.Warn("no wallet DSN configured, using in-memory ledger",
			"seed_balance", cfg.Wallet.SeedBalance)
		return wallet.NewMemoryLedgerWithDefault(int64(cfg.Wallet.SeedBalance)), nil
	}
	pg, err := wallet.NewPGLedger(ctx, cfg.Wallet.DSN, logger)
	if err != nil {
		return nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		return nil, err
	}
	return pg, nil
}

func buildValidator(cfg *config.Config) (auth.Validator, error) {
	switch cfg.Auth.Mode {
	case "none":
		return auth.NoopValidator{}, nil
	case "static":
		tokens := make(map[string]auth.Identity, len(cfg.Auth.Tokens))
		for _, tok := range cfg.Auth.Tokens {
			name := tok.Name
			if name == "" {
				name = tok.PlayerID
			}
			tokens[tok.Token] = auth.Identity{PlayerID: tok.PlayerID, Name: name}
		}
		return auth.NewStaticValidator(tokens), nil
	case "http":
		return auth.NewHTTPValidator(cfg.Auth.URL), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Auth.Mode)
	}
}
