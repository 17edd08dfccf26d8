package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/wfunc/thegame/config"
	"github.com/wfunc/thegame/coordinator"
	"github.com/wfunc/thegame/logger"
	"github.com/wfunc/thegame/monitor"
	"github.com/wfunc/thegame/persistence"
	"github.com/wfunc/thegame/rpc"
	"github.com/wfunc/thegame/server"
	"github.com/wfunc/thegame/services"
)

const (
	metricsNamespace = "thegame"
	memoryArchiveCap = 500
)

func openArchive(cfg *config.Config) (persistence.Database, error) {
	if cfg.Database.DSN == "" {
		logger.Log.Info("No database configured, keeping game history in memory.")
		return persistence.NewMemory(memoryArchiveCap), nil
	}
	db, err := persistence.NewGormPostgreSQL(cfg.Database.DSN, logger.Log.Desugar())
	if err != nil {
		return nil, err
	}
	logger.Log.Info("Database connection successful.")
	return db, nil
}

func main() {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Init("info")
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Server.LogLevel); err != nil {
		logger.Init("info")
		logger.Log.Fatalf("Invalid log level %q: %v", cfg.Server.LogLevel, err)
	}
	defer logger.Log.Sync()

	// Initialize game history archive
	db, err := openArchive(cfg)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	history := services.NewHistoryService(db, logger.Log)
	defer history.Close()

	opts := []server.Option{
		server.WithObserver(coordinator.NewLogObserver(logger.Log)),
		server.WithObserver(history),
		server.WithRecorder(history),
	}

	// Initialize metrics
	if cfg.Server.MetricsAddress != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		mon := monitor.NewMonitor(metricsNamespace, reg)
		opts = append(opts, server.WithObserver(mon), server.WithMetrics(mon))

		metricsServer := mon.StartServer(cfg.Server.MetricsAddress, func(err error) {
			logger.Log.Errorf("Metrics server failed: %v", err)
		})
		defer metricsServer.Close()
		logger.Log.Infof("Metrics listening on %s", cfg.Server.MetricsAddress)
	}

	// Initialize Game Server
	gameServer := server.NewGameServer(cfg, opts...)

	if cfg.Server.RPCAddress != "" {
		rpcServer, err := rpc.NewServer(cfg.Server.RPCAddress, rpc.NewAdminService(gameServer.Coordinator(), history))
		if err != nil {
			logger.Log.Fatalf("Failed to create RPC server: %v", err)
		}
		go rpcServer.Start()
		defer rpcServer.Stop()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		logger.Log.Info("Shutting down game server.")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := gameServer.Shutdown(shutdownCtx); err != nil {
			logger.Log.Errorf("Shutdown failed: %v", err)
		}
	}()

	// Start Server
	if err := gameServer.Start(); err != nil {
		logger.Log.Fatalf("Failed to start server: %v", err)
	}
}
