package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"storefront-service/internal/config"
	"storefront-service/internal/logging"
	"storefront-service/internal/store"
)

const (
	defaultAppName = "StorefrontService" // App name for logger
)

var rootCmd = &cobra.Command{
	Use:   "storefront",
	Short: "Storefront service - catalog browsing and shopping carts",
	Long: `Storefront serves the product catalog (bottomwear, topwear, bags, dresses)
and per-visitor shopping carts over HTTP, with a read-only gRPC cart query.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd, tokenCmd)
}

// bootstrap loads the optional .env file, the configuration and the logger.
func bootstrap() (*config.Config, *zap.Logger, error) {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("error loading configuration: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.AppEnv)
	if err != nil {
		return nil, nil, err
	}
	logger = logger.With(zap.String("app", defaultAppName))
	if envErr != nil {
		logger.Info(".env file not found or error loading, relying on system environment variables")
	}
	logger.Info("configuration loaded",
		zap.String("app_env", cfg.AppEnv),
		zap.String("log_level", cfg.LogLevel),
		zap.String("store_driver", cfg.StoreDriver))
	return cfg, logger, nil
}

// openPostgres connects to the database and applies the pool settings.
func openPostgres(cfg *config.Config, logger *zap.Logger) (*store.PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.Postgres.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	return store.NewPostgresStore(db, logger), nil
}

// openStore returns the store selected by STORE_DRIVER.
func openStore(cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	if cfg.StoreDriver == "memory" {
		logger.Warn("using the in-memory store, data is lost on exit")
		return store.NewMemoryStore(), nil
	}
	return openPostgres(cfg, logger)
}
