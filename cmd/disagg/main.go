package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/disagg/internal/config"
	"github.com/kailas-cloud/disagg/internal/db"
	dbBadger "github.com/kailas-cloud/disagg/internal/db/badger"
	dbRedis "github.com/kailas-cloud/disagg/internal/db/redis"
	"github.com/kailas-cloud/disagg/internal/gsim"
	logpkg "github.com/kailas-cloud/disagg/internal/logger"
	"github.com/kailas-cloud/disagg/internal/metrics"
	hazardrepo "github.com/kailas-cloud/disagg/internal/repository/hazard"
	resultsrepo "github.com/kailas-cloud/disagg/internal/repository/results"
	rupturerepo "github.com/kailas-cloud/disagg/internal/repository/rupture"
	chiTransport "github.com/kailas-cloud/disagg/internal/transport/chi"
	"github.com/kailas-cloud/disagg/internal/usecase/calc"
	"github.com/kailas-cloud/disagg/internal/usecase/compute"
	"github.com/kailas-cloud/disagg/internal/usecase/extract"
	"github.com/kailas-cloud/disagg/internal/usecase/intensity"
	"github.com/kailas-cloud/disagg/internal/usecase/selection"
	"github.com/kailas-cloud/disagg/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting disaggregation run",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("rupture_table", cfg.Inputs.RuptureTable),
	)

	// Create datastore based on driver
	var store db.Store
	switch cfg.Database.Driver {
	case "badger":
		store, err = dbBadger.NewStore(dbBadger.Config{Path: cfg.Database.Path})
	case "redis":
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
		})
	default:
		logger.Fatal("Unknown database driver", zap.String("driver", cfg.Database.Driver))
	}
	if err != nil {
		logger.Fatal("Failed to create datastore", zap.Error(err))
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Datastore not ready", zap.Error(err))
	}
	logger.Info("Connected to datastore")

	// Register calculation metrics explicitly (no init())
	metrics.RegisterCalcMetrics()

	// Ops endpoint: /metrics and /healthz
	ops := chiTransport.NewServer(store, logger)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      ops.Router(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}
	go func() {
		logger.Info("Starting ops server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Ops server error", zap.Error(err))
		}
	}()

	// Composition root
	table, err := rupturerepo.Open(cfg.Inputs.RuptureTable)
	if err != nil {
		logger.Fatal("Failed to open rupture table", zap.Error(err))
	}

	evaluators := make(map[string]compute.Evaluator, len(cfg.Calculation.GSIMs))
	for name, byIMT := range cfg.Calculation.GSIMs {
		params := make(map[string]gsim.Params, len(byIMT))
		for imt, p := range byIMT {
			params[imt] = gsim.Params{C0: p.C0, C1: p.C1, C2: p.C2, C3: p.C3, Sigma: p.Sigma}
		}
		model, err := gsim.New(params)
		if err != nil {
			logger.Fatal("Bad ground-motion model", zap.String("gsim", name), zap.Error(err))
		}
		evaluators[name] = model
	}

	hazard := hazardrepo.New(store)
	results := resultsrepo.New(store)
	open := func() (compute.RuptureReader, error) {
		return rupturerepo.Open(cfg.Inputs.RuptureTable)
	}

	service := calc.New(
		cfg.Calculation,
		hazard,
		results,
		table,
		selection.New(hazard, logger),
		intensity.New(hazard, logger),
		compute.New(open, evaluators, logger),
		extract.New(results, logger),
		logger,
	)

	sites, err := hazard.Sites(ctx, cfg.Calculation.MaxSitesDisagg)
	if err != nil {
		logger.Fatal("Failed to load the site collection", zap.Error(err))
	}

	start := time.Now()
	if err := service.Run(ctx, sites); err != nil {
		logger.Fatal("Disaggregation failed", zap.Error(err))
	}
	logger.Info("Disaggregation finished",
		zap.Int("sites", sites.Len()),
		zap.Duration("elapsed", time.Since(start)),
	)

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
}
