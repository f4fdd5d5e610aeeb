package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ecomledger/config"
	"ecomledger/core"
	"ecomledger/observability"
	"ecomledger/observability/logging"
	telemetry "ecomledger/observability/otel"
	"ecomledger/rpc"
	"ecomledger/rpc/middleware"
	"ecomledger/storage"
	"ecomledger/storage/audit"
)

const serviceName = "ecomd"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a YAML genesis allocation file (overrides config GenesisFile)")
	flag.Parse()

	if err := run(*configFile, *genesisFlag); err != nil {
		slog.Error("ecomd exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath, genesisOverride string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.SetupWithOptions(serviceName, cfg.Environment, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	ctx := context.Background()
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Traces:      cfg.Telemetry.Traces,
		Metrics:     cfg.Telemetry.Metrics,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(shutdownCtx)
	}()

	db, err := openDatabase(cfg.StorageEngine, cfg.DataDir)
	if err != nil {
		return err
	}
	defer db.Close()

	node, err := core.NewNode(db)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	node.SetLogger(logger)
	node.SetEmitter(observability.LogEmitter{Logger: logger})
	node.SetConflictRetries(cfg.Commerce.ConflictRetries)

	genesisPath := strings.TrimSpace(genesisOverride)
	if genesisPath == "" {
		genesisPath = cfg.GenesisFile
	}
	if err := applyGenesis(ctx, node, genesisPath, logger); err != nil {
		return err
	}

	server := rpc.NewServer(node, rpc.Config{
		MaxBodyBytes:  cfg.RPC.MaxBodyBytes,
		TimestampSkew: time.Duration(cfg.RPC.TimestampSkewSeconds) * time.Second,
		RateLimit: middleware.RateLimit{
			RequestsPerSecond: cfg.RPC.RateLimitPerSecond,
			Burst:             cfg.RPC.RateLimitBurst,
		},
		Auth: middleware.AuthConfig{
			HMACSecret: lookupSecret(cfg.RPC.JWTSecretEnv),
			Issuer:     cfg.RPC.JWTIssuer,
			ClockSkew:  time.Minute,
		},
	}, logger)

	if cfg.RPC.AuditDriver != "" {
		auditLog, err := audit.Open(cfg.RPC.AuditDriver, cfg.RPC.AuditDSN)
		if err != nil {
			return err
		}
		defer func() { _ = auditLog.Close() }()
		server.SetAuditLog(auditLog)
	}

	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		logger.Info("ecomd listening",
			slog.String("address", cfg.ListenAddress),
			slog.String("storage", cfg.StorageEngine))
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func openDatabase(engine, dataDir string) (storage.Database, error) {
	switch engine {
	case "memory":
		return storage.NewMemDB(), nil
	case "", "leveldb":
		db, err := storage.NewLevelDB(dataDir)
		if err != nil {
			return nil, fmt.Errorf("open leveldb at %s: %w", dataDir, err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported storage engine %q", engine)
	}
}

func applyGenesis(ctx context.Context, node *core.Node, path string, logger *slog.Logger) error {
	allocations, err := config.LoadGenesis(strings.TrimSpace(path))
	if err != nil {
		return fmt.Errorf("load genesis: %w", err)
	}
	err = node.ApplyGenesis(ctx, toCoreAllocations(allocations))
	if errors.Is(err, core.ErrGenesisApplied) {
		logger.Debug("genesis already applied")
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	return nil
}

func toCoreAllocations(in []config.GenesisAllocation) []core.Allocation {
	out := make([]core.Allocation, len(in))
	for i, alloc := range in {
		out[i] = core.Allocation{Account: alloc.Account, Amount: alloc.Amount}
	}
	return out
}

func lookupSecret(envVar string) string {
	envVar = strings.TrimSpace(envVar)
	if envVar == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(envVar))
}
