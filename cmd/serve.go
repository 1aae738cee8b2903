package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"storefront-service/internal/api"
	"storefront-service/internal/cart"
	"storefront-service/internal/catalog"
	"storefront-service/internal/config"
	"storefront-service/internal/logging"
	"storefront-service/internal/render"
	"storefront-service/internal/session"
	"storefront-service/internal/store"
	"storefront-service/internal/telemetry"
)

var seedOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and gRPC servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync()
		return serve(cmd.Context(), cfg, logger)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&seedOnStart, "seed", false, "Load the catalog seed file before serving (memory store only)")
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting service")

	shutdownTracing, err := telemetry.Setup(cfg.Telemetry.Enabled, cfg.Telemetry.ServiceName, nil)
	if err != nil {
		return err
	}

	// --- Storage ---
	dataStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	if err := dataStore.Ping(ctx); err != nil {
		dataStore.Close()
		return err
	}
	logger.Info("store ready", zap.String("driver", cfg.StoreDriver))

	if seedOnStart {
		if _, ok := dataStore.(*store.MemoryStore); !ok {
			logger.Warn("--seed is ignored outside the memory store, run the seed command instead")
		} else {
			seed, err := catalog.LoadSeedFile(cfg.Catalog.SeedFile)
			if err != nil {
				return err
			}
			if err := catalog.ApplySeed(ctx, dataStore, dataStore, seed, logger); err != nil {
				return err
			}
		}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping failed, sessions will fail until it is reachable", zap.Error(err))
	}

	// --- Services & Handlers ---
	pages, err := render.New()
	if err != nil {
		return err
	}
	sessions := session.NewManager(rdb, session.Options{
		CookieName: cfg.Session.CookieName,
		TTL:        cfg.Session.TTL,
		KeyPrefix:  cfg.Session.KeyPrefix,
		JWTSecret:  cfg.Session.JWTSecret,
		Secure:     cfg.AppEnv == "production",
	}, logger)
	catalogSvc := catalog.NewService(dataStore, dataStore, cfg.Catalog.LatestPerFamily, logger)
	cartSvc := cart.NewService(dataStore, logger)

	httpAPIHandler := api.NewHTTPHandler(catalogSvc, cartSvc, sessions, pages, logger)
	grpcAPIHandler := api.NewGRPCHandler(cartSvc, logger)

	// --- Setup & Start HTTP Server ---
	httpRouter := chi.NewRouter()
	setupBaseMiddleware(httpRouter, logger, cfg.Telemetry.ServiceName)
	registerHealthCheck(httpRouter, logger, dataStore, sessions)
	httpRouter.Group(func(r chi.Router) {
		r.Use(sessions.Middleware)
		httpAPIHandler.RegisterRoutes(r)
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.HttpServer.Port,
		Handler:      httpRouter,
		ReadTimeout:  cfg.HttpServer.TimeoutRead,
		WriteTimeout: cfg.HttpServer.TimeoutWrite,
		IdleTimeout:  cfg.HttpServer.TimeoutIdle,
	}

	serverErrors := make(chan error, 2)
	go func() {
		logger.Info("HTTP server listening", zap.String("port", cfg.HttpServer.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
		logger.Info("HTTP server has stopped")
	}()

	// --- Setup & Start gRPC Server ---
	grpcServer := setupGRPCServer(logger, grpcAPIHandler)
	grpcListener, err := net.Listen("tcp", ":"+cfg.GrpcServer.Port)
	if err != nil {
		return err
	}

	go func() {
		logger.Info("gRPC server listening", zap.String("port", cfg.GrpcServer.Port))
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			serverErrors <- err
		}
		logger.Info("gRPC server has stopped")
	}()

	// --- Graceful Shutdown ---
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		logger.Info("received signal, starting graceful shutdown", zap.String("signal", sig.String()))
	case err := <-serverErrors:
		logger.Error("server failed, shutting down", zap.Error(err))
	}

	waitForShutdown(logger, httpServer, grpcServer, dataStore, rdb)
	if err := shutdownTracing(context.Background()); err != nil {
		logger.Warn("tracer shutdown failed", zap.Error(err))
	}
	logger.Info("service shutdown sequence finished")
	return nil
}

func setupBaseMiddleware(router *chi.Mux, logger *zap.Logger, serviceName string) {
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(logging.RequestLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))
	router.Use(telemetry.Middleware(serviceName))
	logger.Debug("base HTTP middleware registered")
}

type pinger interface {
	Ping(ctx context.Context) error
}

func registerHealthCheck(router *chi.Mux, logger *zap.Logger, db pinger, cache pinger) {
	healthPath := "/api/v1/healthz"
	router.Get(healthPath, func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		dbStatus := "healthy"
		if err := db.Ping(ctx); err != nil {
			dbStatus = "unhealthy"
			logger.Warn("health check DB ping failed", zap.Error(err))
		}
		cacheStatus := "healthy"
		if err := cache.Ping(ctx); err != nil {
			cacheStatus = "unhealthy"
			logger.Warn("health check redis ping failed", zap.Error(err))
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK) // Always 200, but payload indicates detailed status
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":      "healthy",
			"serviceName": defaultAppName,
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
			"database":    dbStatus,
			"redis":       cacheStatus,
		})
	})
	logger.Debug("HTTP health check registered", zap.String("path", healthPath))
}

func setupGRPCServer(logger *zap.Logger, grpcAPIHandler *api.GRPCHandler) *grpc.Server {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(api.UnaryLoggingInterceptor(logger.Named("grpc"))))

	api.RegisterCartQueryServer(s, grpcAPIHandler)
	grpc_health_v1.RegisterHealthServer(s, health.NewServer())
	// Enable gRPC server reflection (useful for tools like grpcurl).
	reflection.Register(s)
	logger.Debug("gRPC services registered", zap.String("service", api.CartQueryServiceName))

	return s
}

func waitForShutdown(
	logger *zap.Logger,
	httpServer *http.Server,
	grpcServer *grpc.Server,
	dataStore store.Store,
	rdb *redis.Client,
) {
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	// GracefulStop waits for in-flight RPCs; Stop below cuts them off on timeout.
	stoppedGrpc := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stoppedGrpc)
	}()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server graceful shutdown failed", zap.Error(err))
	} else {
		logger.Info("HTTP server gracefully shut down")
	}

	select {
	case <-stoppedGrpc:
		logger.Info("gRPC server gracefully shut down")
	case <-shutdownCtx.Done():
		logger.Warn("gRPC server graceful shutdown timed out, forcing stop", zap.Error(shutdownCtx.Err()))
		grpcServer.Stop()
	}

	if err := rdb.Close(); err != nil {
		logger.Warn("error closing redis client", zap.Error(err))
	}
	if err := dataStore.Close(); err != nil {
		logger.Warn("error closing store", zap.Error(err))
	}
}
