package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fhmmla/oee-be/internal/jobs"
	"github.com/fhmmla/oee-be/internal/license"
	"github.com/fhmmla/oee-be/internal/modbus"
	"github.com/fhmmla/oee-be/internal/poller"
	"github.com/fhmmla/oee-be/internal/store"
	"github.com/fhmmla/oee-be/pkg/config"
	"github.com/fhmmla/oee-be/pkg/database"
	"github.com/fhmmla/oee-be/pkg/logging"
	"github.com/fhmmla/oee-be/pkg/monitoring"
	"github.com/fhmmla/oee-be/pkg/server"
)

const (
	serviceName = "oee-worker"
	version     = "1.0.0"
)

func main() {
	// Env files must be loaded before the logger reads LOG_LEVEL.
	config.LoadEnv(nil)
	logger := logging.NewLoggerWithService(serviceName)

	dbConfig := database.DefaultConfig()
	dbConfig.URL = config.RequireEnv("DATABASE_URL")
	dbConfig.MaxOpenConns = config.GetEnvInt("DB_MAX_OPEN_CONNS", dbConfig.MaxOpenConns)
	dbConfig.MaxIdleConns = config.GetEnvInt("DB_MAX_IDLE_CONNS", dbConfig.MaxIdleConns)
	db := database.MustConnect(dbConfig, logger)
	defer db.Close()

	if config.GetEnvBool("APPLY_SCHEMA", false) {
		if err := database.ApplySchema(context.Background(), db, logger); err != nil {
			logger.WithError(err).Fatal("Failed to apply database schema")
		}
	}

	machineStore := store.NewMachineStore(db, logger)
	historyStore := store.NewLogHistoryStore(db, logger)
	conditionStore := store.NewConditionStore(db, logger)
	summaryStore := store.NewSummaryStore(db, logger)

	pool := modbus.NewPool(modbus.PoolConfig{
		ConnectAttempts: config.GetEnvInt("GATEWAY_CONNECT_ATTEMPTS", 0),
		Logger:          logger,
	})
	defer pool.CloseAll()

	registry := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(registry)

	validator := license.NewValidator(
		config.GetEnv("LICENSE_SECRET_KEY", ""),
		config.GetEnv("LICENSE_IV", ""),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dwell := poller.NewDwellTracker(historyStore, conditionStore, logger)
	if machines, err := machineStore.ListEnabledMachines(ctx); err != nil {
		logger.WithError(err).Warn("Dwell warm-up skipped: machine enumeration failed")
	} else {
		ids := make([]int64, 0, len(machines))
		for _, m := range machines {
			ids = append(ids, m.ID)
		}
		dwell.Warm(ctx, ids)
	}

	scheduler := poller.NewScheduler(
		machineStore, machineStore, validator, pool, dwell,
		conditionStore, historyStore, metrics, logger, poller.Config{},
	)

	// Machines report in western Indonesia time; daily accounting follows it.
	wib := time.FixedZone("WIB", 7*3600)
	calculator := jobs.NewCalculator(machineStore, conditionStore, summaryStore, wib, logger)
	manager := jobs.NewManager(machineStore, scheduler, calculator, metrics, wib, logger)

	health := monitoring.NewHealthChecker(serviceName, version)
	health.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	ops := server.New(
		server.DefaultConfig(serviceName, "18080"),
		server.SetupRouter(health, registry, logger),
		logger,
	)
	ops.Start()

	if err := manager.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start background jobs")
	}
	go scheduler.Run(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	cancel()
	manager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := ops.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Ops server shutdown failed")
	}

	logger.Info("Shutdown complete")
}
