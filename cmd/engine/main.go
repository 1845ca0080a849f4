package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/zonebet/engine/config"
	"github.com/zonebet/engine/internal/adapters/feed"
	"github.com/zonebet/engine/internal/adapters/notify"
	"github.com/zonebet/engine/internal/adapters/onchain"
	"github.com/zonebet/engine/internal/adapters/storage"
	"github.com/zonebet/engine/internal/adapters/venue"
	"github.com/zonebet/engine/internal/application/engine"
	"github.com/zonebet/engine/internal/application/ledger"
	"github.com/zonebet/engine/internal/application/positions"
	"github.com/zonebet/engine/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	dryRun := flag.Bool("dry-run", false, "no venue orders, no chain calls")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full report tables (default: compact 1-line)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("zonebet engine starting",
		"config", *configPath,
		"feed", cfg.Feed.URL,
		"dry_run", *dryRun,
	)

	store, err := storage.NewSQLiteStore(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	verifier, payer := chainPorts(cfg, *dryRun)

	lgr := ledger.New(store, verifier, payer)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := lgr.Load(ctx); err != nil {
		slog.Error("failed to load ledger", "err", err)
		os.Exit(1)
	}

	venueClient := venue.NewClient(cfg.Venue.BaseURL, cfg.Venue.APIKey, *dryRun)

	priceFeed := feed.NewService(cfg.Feed.URL)
	priceFeed.Start(ctx)
	defer priceFeed.Stop()

	engCfg := engine.DefaultConfig()
	engCfg.ExpirySweepInterval = cfg.ExpirySweepInterval()
	engCfg.SettlementInterval = cfg.SettlementInterval()
	engCfg.ReconcileInterval = cfg.ReconcileInterval()
	engCfg.ReportInterval = cfg.ReportInterval()

	eng := engine.New(engCfg, priceFeed, positions.NewStore(), lgr, venueClient, notify.NewConsole(*table))

	if err := eng.Run(ctx); err != nil {
		slog.Error("engine exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("zonebet engine stopped cleanly")
}

// chainPorts picks the real RPC-backed chain adapters or the dry-run
// stand-ins. A missing treasury key disables payouts but not the engine.
func chainPorts(cfg *config.Config, dryRun bool) (ports.ChainVerifier, ports.TransferExecutor) {
	if dryRun {
		return onchain.StaticVerifier{}, onchain.NullPayer{}
	}

	verifier, err := onchain.NewVerifier(cfg.Chain.RPCURL, cfg.Chain.TokenAddress)
	if err != nil {
		slog.Error("failed to connect chain verifier", "err", err, "rpc", cfg.Chain.RPCURL)
		os.Exit(1)
	}

	if cfg.Chain.PrivateKey == "" {
		slog.Warn("TREASURY_PRIVATE_KEY not set — withdrawal payouts disabled")
		return verifier, onchain.NullPayer{}
	}

	payer, err := onchain.NewPayer(cfg.Chain.RPCURL, cfg.Chain.TokenAddress, cfg.Chain.PrivateKey)
	if err != nil {
		slog.Error("failed to init treasury payer", "err", err)
		os.Exit(1)
	}
	return verifier, payer
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
