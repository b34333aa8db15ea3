package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/CrispyPorkGang/boxpacks/internal/auth"
	"github.com/CrispyPorkGang/boxpacks/internal/config"
	"github.com/CrispyPorkGang/boxpacks/internal/notify"
	"github.com/CrispyPorkGang/boxpacks/internal/orders/health"
	ordershttp "github.com/CrispyPorkGang/boxpacks/internal/orders/http"
	"github.com/CrispyPorkGang/boxpacks/internal/orders/publisher"
	"github.com/CrispyPorkGang/boxpacks/internal/orders/repository"
	"github.com/CrispyPorkGang/boxpacks/internal/orders/service"
	"github.com/CrispyPorkGang/boxpacks/pkg/logger"
	"github.com/CrispyPorkGang/boxpacks/pkg/telemetry"
)

const (
	healthInterval = 5 * time.Second
	consumerGroup  = "order-notifications"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}
	cfg, err := config.LoadOrders()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	zl, err := logger.New("orders-service", cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	if cfg.DevSecret() {
		zl.Warn("JWT_SECRET not set, signing with the development key")
	}
	zl.Info("orders-service starting")

	shutdownTracing := telemetry.InitTracing("orders-service")
	var wg sync.WaitGroup

	// Database setup
	creds := &repository.Credentials{
		Host:              cfg.DBHost,
		Port:              cfg.DBPort,
		User:              cfg.DBUser,
		Password:          cfg.DBPassword,
		DBName:            cfg.DBName,
		MigrationsDirPath: cfg.MigrationsPath,
	}
	repo, err := repository.NewRepository(creds)
	if err != nil {
		zl.Fatal("failed to connect to database", zap.Error(err))
	}
	defer repo.Close()

	if err := repo.RunMigrations(creds); err != nil {
		zl.Fatal("failed to run migrations", zap.Error(err))
	}
	zl.Info("database migrations completed")

	bgCtx, bgCancel := context.WithCancel(context.Background())

	// Outbox -> kafka
	poller := publisher.NewOutboxPoller(repo, publisher.NewKafkaWriter(cfg.OrdersTopic, cfg.KafkaBrokers...), zl)
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Run(bgCtx)
	}()

	// kafka -> confirmation emails. The service still takes orders when
	// RabbitMQ is down; the consumer is just not started.
	var consumer *notify.Consumer
	mailer, err := notify.DialMailer(cfg.RabbitMQURL, notify.EmailQueue)
	if err != nil {
		zl.Error("order emails disabled", zap.Error(err))
	} else {
		defer mailer.Close()
		consumer = notify.NewConsumer(notify.NewKafkaReader(cfg.OrdersTopic, consumerGroup, cfg.KafkaBrokers...), mailer, zl)
		wg.Add(1)
		go func() {
			defer wg.Done()
			consumer.Run(bgCtx)
		}()
	}

	// gRPC health
	healthServer := health.NewServer(repo, zl)
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		zl.Fatal("failed to listen", zap.String("port", cfg.GRPCPort), zap.Error(err))
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		healthServer.Watch(bgCtx, healthInterval)
	}()
	go func() {
		zl.Info("grpc health listening", zap.String("port", cfg.GRPCPort))
		if err := healthServer.Serve(lis); err != nil {
			zl.Error("grpc serve error", zap.Error(err))
		}
	}()

	// HTTP API
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(logger.RequestIDMiddleware)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		w.Header().Set("Content-Type", "application/json")
		if err := repo.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	ordershttp.NewOrdersHandler(service.NewOrderService(repo, zl), zl).Routes(r, auth.NewVerifier(cfg.JWTSecret))

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(r, "orders-service"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		zl.Info("orders http listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("shutting down orders service")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("http server forced to shutdown", zap.Error(err))
	}
	healthServer.GracefulStop()
	bgCancel()

	doneChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneChan)
	}()

	select {
	case <-doneChan:
		zl.Info("background workers stopped cleanly")
	case <-shutdownCtx.Done():
		zl.Warn("background workers didn't stop in time")
	}

	if err := poller.Close(); err != nil {
		zl.Warn("error closing kafka writer", zap.Error(err))
	}
	if consumer != nil {
		consumer.Close()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		zl.Warn("tracer shutdown", zap.Error(err))
	}
	zl.Info("orders service stopped")
}
