package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		GetLogger().Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}
	logger := InitLogger(cfg.LogLevel, cfg.LogPIIMasking)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	descriptors, err := LoadGatewayDescriptors(cfg.GatewaysFile)
	if err != nil {
		logger.Fatal("Failed to load gateway descriptors", map[string]interface{}{"error": err.Error()})
	}

	store := NewTransactionStore()
	rnd := DefaultRandom
	if cfg.RandomSeed != 0 {
		rnd = NewLockedRandom(cfg.RandomSeed)
	}

	sims := make([]*GatewaySimulator, 0, len(descriptors))
	for _, desc := range descriptors {
		sims = append(sims, NewGatewaySimulator(desc, store,
			WithRandom(rnd),
			WithLogger(logger),
			WithPaymentDelay(cfg.PaymentLatencyMin, cfg.PaymentLatencyMax),
			WithRefundDelay(cfg.RefundLatencyMin, cfg.RefundLatencyMax),
		))
	}
	registry, err := NewGatewayRegistry(sims...)
	if err != nil {
		logger.Fatal("Failed to build gateway registry", map[string]interface{}{"error": err.Error()})
	}

	metrics := NewMetricsRegistry(registry.IDs()...)
	sinks := []EventSink{metrics}
	var breakers []*CircuitBreaker
	guard := func(name string, sink EventSink) EventSink {
		b := NewCircuitBreaker(name, DefaultCircuitBreakerConfig(), logger)
		breakers = append(breakers, b)
		return GuardSink(sink, b)
	}

	var cache ResultCache = nopResultCache{}
	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb, err = NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			logger.Warn("Redis unavailable, result cache disabled", map[string]interface{}{"error": err.Error()})
		} else {
			cache = NewRedisResultCache(rdb, cfg.Redis.ResultTTL)
			sinks = append(sinks, guard("redis", cache))
			logger.Info("Result cache enabled", map[string]interface{}{"redis_addr": cfg.Redis.Addr})
		}
	}

	ws := NewWSManager(cache, logger)
	sinks = append(sinks, ws)

	var db *sql.DB
	var recorder *SQLRecorder
	if cfg.MySQL.Enabled() {
		db, err = ConnectDatabase(ctx, cfg.MySQL)
		if err == nil {
			recorder = NewSQLRecorder(db)
			err = recorder.CreateTables(ctx)
		}
		if err != nil {
			logger.Warn("MySQL unavailable, event log disabled", map[string]interface{}{"error": err.Error()})
			recorder = nil
		} else {
			sinks = append(sinks, guard("mysql", recorder))
			logger.Info("Event log enabled", map[string]interface{}{"mysql_host": cfg.MySQL.Host})
		}
	}

	handler := NewPaymentHandler(HandlerDeps{
		Registry: registry,
		Store:    store,
		Events:   NewEventPublisher(logger, sinks...),
		Metrics:  metrics,
		WS:       ws,
		Recorder: recorder,
		Breakers: breakers,
		Logger:   logger,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.Handler(cfg.MaxBodyBytes),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Payment gateway simulator listening", map[string]interface{}{
			"port":     cfg.Port,
			"gateways": len(sims),
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", map[string]interface{}{"error": err.Error()})
	}

	if rdb != nil {
		rdb.Close()
	}
	if db != nil {
		db.Close()
	}
}
