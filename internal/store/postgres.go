package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"storefront-service/internal/domain"
)

// Predefined errors for store operations
var (
	ErrCategoryNotFound   = errors.New("store: category not found")
	ErrCategorySlugExists = errors.New("store: category slug already exists")
	ErrProductNotFound    = errors.New("store: product not found")
	ErrProductSlugExists  = errors.New("store: product slug already exists")
	ErrCartNotFound       = errors.New("store: cart not found")
)

const uniqueViolation = "23505"

// variantTables maps every family to its table. Table names are never taken
// from request input, only from this fixed lookup.
var variantTables = map[domain.VariantType]string{
	domain.Bottomwear: "storefront.bottomwear",
	domain.Topwear:    "storefront.topwear",
	domain.Bags:       "storefront.bags",
	domain.Dresses:    "storefront.dresses",
}

func variantTable(t domain.VariantType) (string, error) {
	table, ok := variantTables[t]
	if !ok {
		return "", fmt.Errorf("store: %w: %q", domain.ErrUnknownVariantType, string(t))
	}
	return table, nil
}

// unionAllVariants renders one SELECT per family joined with UNION ALL.
// The format receives the family tag and the table name.
func unionAllVariants(format string) string {
	parts := make([]string, 0, len(variantTables))
	for _, t := range domain.VariantTypes() {
		parts = append(parts, fmt.Sprintf(format, string(t), variantTables[t]))
	}
	return strings.Join(parts, "\n\t\tUNION ALL\n")
}

// PostgresStore implements the storer interfaces using PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStore creates a new PostgresStore instance.
func NewPostgresStore(db *sql.DB, logger *zap.Logger) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{db: db, logger: logger.Named("store")}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// inTx runs fn inside a transaction, committing on success.
func (s *PostgresStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || strings.Contains(pqErr.Constraint, constraint)
}

func (s *PostgresStore) Close() error {
	if s.db == nil {
		return nil
	}
	s.logger.Info("closing database connection pool")
	if err := s.db.Close(); err != nil {
		s.logger.Error("failed to close database connection pool", zap.Error(err))
		return err
	}
	return nil
}
