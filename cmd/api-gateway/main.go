package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/CrispyPorkGang/boxpacks/internal/auth"
	"github.com/CrispyPorkGang/boxpacks/internal/cart/cache"
	cartrepo "github.com/CrispyPorkGang/boxpacks/internal/cart/repository"
	"github.com/CrispyPorkGang/boxpacks/internal/cart/service"
	"github.com/CrispyPorkGang/boxpacks/internal/checkout/client"
	"github.com/CrispyPorkGang/boxpacks/internal/config"
	h "github.com/CrispyPorkGang/boxpacks/internal/gateway/http"
	"github.com/CrispyPorkGang/boxpacks/internal/orders/health"
	productrepo "github.com/CrispyPorkGang/boxpacks/internal/product/repository"
	"github.com/CrispyPorkGang/boxpacks/pkg/logger"
	"github.com/CrispyPorkGang/boxpacks/pkg/telemetry"
)

const (
	sessionIdleTimeout = 30 * time.Minute
	evictionInterval   = time.Minute
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}
	cfg, err := config.LoadGateway()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	zl, err := logger.New("api-gateway", cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	if cfg.DevSecret() {
		zl.Warn("JWT_SECRET not set, signing with the development key")
	}

	shutdownTracing := telemetry.InitTracing("api-gateway")

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()

	// Cart snapshots: redis in front of mongo
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()
	snapshotCache := cache.NewRedisCache(redisClient)
	if err := snapshotCache.Ping(startCtx); err != nil {
		zl.Warn("redis not reachable, carts load from mongo", zap.Error(err))
	}

	mongoDB, err := cartrepo.ConnectMongoDB(startCtx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		zl.Fatal("failed to connect to mongo", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoDB.Client().Disconnect(ctx)
	}()
	cartRepo := cartrepo.NewMongoRepository(mongoDB)
	if err := cartRepo.CreateIndexes(startCtx); err != nil {
		zl.Fatal("failed to create cart indexes", zap.Error(err))
	}

	// Catalog
	products, err := productrepo.NewRepository(cfg.ProductDBPath)
	if err != nil {
		zl.Fatal("failed to open catalog", zap.Error(err))
	}
	defer products.Close()
	if err := products.RunMigrations(cfg.ProductMigrationsPath); err != nil {
		zl.Fatal("failed to migrate catalog", zap.Error(err))
	}
	zl.Info("catalog migrations completed")

	// Orders service: HTTP for orders, gRPC for health
	ordersClient := client.NewOrdersClient(cfg.OrdersServiceURL, cfg.RequestTimeout, zl)
	healthConn, err := grpc.NewClient(
		cfg.OrdersGRPCAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		zl.Fatal("failed to create orders health client", zap.Error(err))
	}
	defer healthConn.Close()
	ordersHealth := health.NewChecker(healthConn)

	cartService := service.NewCartService(cartRepo, snapshotCache, zl)
	flows := h.NewFlows(ordersClient, cfg.OrderSubmitTimeout, zl)

	router := h.NewRouter(h.RouterConfig{
		Verifier:  auth.NewVerifier(cfg.JWTSecret),
		Cart:      h.NewCartHandler(cartService, products, flows, cfg.RequestTimeout, zl),
		Checkout:  h.NewCheckoutHandler(cartService, flows, cfg.RequestTimeout, zl),
		Products:  h.NewProductHandler(products, cfg.RequestTimeout, zl),
		Orders:    h.NewOrdersHandler(ordersClient, cfg.RequestTimeout, zl),
		Readiness: map[string]h.ReadinessCheck{
			"redis":   snapshotCache.Ping,
			"mongo":   func(ctx context.Context) error { return mongoDB.Client().Ping(ctx, readpref.Primary()) },
			"catalog": products.Ping,
			"orders":  ordersHealth.Ready,
		},
		RequestTimeout: cfg.RequestTimeout,
		SecureCookies:  cfg.SecureCookies,
		AccessLog:      true,
		Log:            zl,
	})

	bgCtx, bgCancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		cartService.RunEviction(bgCtx, evictionInterval, sessionIdleTimeout)
	}()
	go func() {
		defer wg.Done()
		flows.RunEviction(bgCtx, evictionInterval, sessionIdleTimeout)
	}()

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(http.MaxBytesHandler(router, cfg.MaxRequestBodySize), "api-gateway"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zl.Info("api gateway starting", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zl.Error("server forced to shutdown", zap.Error(err))
	}
	bgCancel()
	wg.Wait()

	if err := shutdownTracing(ctx); err != nil {
		zl.Warn("tracer shutdown", zap.Error(err))
	}
	zl.Info("server exited")
}
