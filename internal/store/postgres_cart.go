package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"storefront-service/internal/domain"
)

const cartColumns = `id, owner_id, session_id, total_products, final_price, created_at, updated_at`

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

var (
	cartByIDQuery        = `SELECT ` + cartColumns + ` FROM storefront.carts WHERE id = $1;`
	cartByIDForUpdate    = `SELECT ` + cartColumns + ` FROM storefront.carts WHERE id = $1 FOR UPDATE;`
	cartByOwnerQuery     = `SELECT ` + cartColumns + ` FROM storefront.carts WHERE owner_id = $1;`
	cartBySessionQuery   = `SELECT ` + cartColumns + ` FROM storefront.carts WHERE session_id = $1 AND owner_id IS NULL;`
	bindSessionCartQuery = `
		UPDATE storefront.carts
		SET owner_id = $1, updated_at = CURRENT_TIMESTAMP
		WHERE session_id = $2 AND owner_id IS NULL
		RETURNING ` + cartColumns + `;`
	insertCartQuery = `
		INSERT INTO storefront.carts (owner_id, session_id)
		VALUES ($1, $2)
		RETURNING ` + cartColumns + `;`

	// Unit prices are joined from the family tables on every load so totals
	// always reflect the current catalog.
	cartLinesQuery = `
		SELECT cp.id, cp.cart_id, cp.owner_id, cp.content_type, cp.object_id, cp.qty, p.slug, p.title, p.price
		FROM storefront.cart_products cp
		JOIN (
` + unionAllVariants("\t\tSELECT '%[1]s' AS content_type, id, slug, title, price FROM %[2]s") + `
		) p ON p.content_type = cp.content_type AND p.id = cp.object_id
		WHERE cp.cart_id = $1
		ORDER BY cp.id ASC;
	`

	insertLineQuery = `
		INSERT INTO storefront.cart_products (owner_id, cart_id, content_type, object_id, qty, final_price)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id;
	`
	updateLineQuery   = `UPDATE storefront.cart_products SET qty = $1, final_price = $2, owner_id = $3 WHERE id = $4;`
	deleteLineQuery   = `DELETE FROM storefront.cart_products WHERE id = $1;`
	updateTotalsQuery = `
		UPDATE storefront.carts
		SET total_products = $1, final_price = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3
		RETURNING updated_at;
	`
)

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func scanCart(row rowScanner) (*domain.Cart, error) {
	var c domain.Cart
	err := row.Scan(&c.ID, &c.OwnerID, &c.SessionID, &c.TotalProducts, &c.FinalPrice, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// loadLines attaches the line items to cart and recalculates the totals.
func loadLines(ctx context.Context, q queryer, cart *domain.Cart) error {
	rows, err := q.QueryContext(ctx, cartLinesQuery, cart.ID)
	if err != nil {
		return fmt.Errorf("store: failed to query cart lines: %w", err)
	}
	defer rows.Close()

	cart.Products = []domain.CartProduct{}
	for rows.Next() {
		var (
			line        domain.CartProduct
			contentType string
		)
		if err := rows.Scan(
			&line.ID, &line.CartID, &line.OwnerID, &contentType, &line.Product.ID, &line.Qty,
			&line.Slug, &line.Title, &line.UnitPrice,
		); err != nil {
			return fmt.Errorf("store: failed to scan cart line: %w", err)
		}
		line.Product.Type = domain.VariantType(contentType)
		cart.Products = append(cart.Products, line)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("store: cart lines iteration error: %w", err)
	}
	cart.Recalculate()
	return nil
}

func (s *PostgresStore) GetOrCreateCart(ctx context.Context, owner domain.Owner) (*domain.Cart, error) {
	if owner.UserID == "" && owner.SessionID == "" {
		return nil, errors.New("store: GetOrCreateCart requires a user or session id")
	}
	cart, err := s.getOrCreateCart(ctx, owner)
	// A concurrent request created the cart first; it is visible now.
	if isUniqueViolation(err, "carts_") {
		return s.getOrCreateCart(ctx, owner)
	}
	return cart, err
}

func (s *PostgresStore) getOrCreateCart(ctx context.Context, owner domain.Owner) (*domain.Cart, error) {
	var cart *domain.Cart
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		cart, err = s.findOwnedCart(ctx, tx, owner)
		if err != nil {
			return err
		}
		if cart == nil {
			cart, err = scanCart(tx.QueryRowContext(ctx, insertCartQuery,
				nullableString(owner.UserID), nullableString(owner.SessionID)))
			if err != nil {
				return fmt.Errorf("store: GetOrCreateCart failed to insert cart: %w", err)
			}
			s.logger.Debug("created cart", zap.Int64("cart_id", cart.ID),
				zap.String("user_id", owner.UserID), zap.String("session_id", owner.SessionID))
		}
		return loadLines(ctx, tx, cart)
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// findOwnedCart looks up the cart of owner, binding the anonymous session cart
// to the user when the user has none. Returns nil when no cart exists.
func (s *PostgresStore) findOwnedCart(ctx context.Context, q queryer, owner domain.Owner) (*domain.Cart, error) {
	if owner.UserID != "" {
		cart, err := scanCart(q.QueryRowContext(ctx, cartByOwnerQuery, owner.UserID))
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("store: failed to find cart by owner: %w", err)
		}
		if owner.SessionID == "" {
			return nil, nil
		}
		cart, err = scanCart(q.QueryRowContext(ctx, bindSessionCartQuery, owner.UserID, owner.SessionID))
		if err == nil {
			s.logger.Info("bound session cart to user", zap.Int64("cart_id", cart.ID), zap.String("user_id", owner.UserID))
			if _, err := q.ExecContext(ctx, `UPDATE storefront.cart_products SET owner_id = $1 WHERE cart_id = $2;`, owner.UserID, cart.ID); err != nil {
				return nil, fmt.Errorf("store: failed to bind cart lines: %w", err)
			}
			return cart, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("store: failed to bind session cart: %w", err)
		}
		return nil, nil
	}

	cart, err := scanCart(q.QueryRowContext(ctx, cartBySessionQuery, owner.SessionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: failed to find cart by session: %w", err)
	}
	return cart, nil
}

func (s *PostgresStore) GetCart(ctx context.Context, cartID int64) (*domain.Cart, error) {
	return s.getCart(ctx, cartByIDQuery, cartID)
}

func (s *PostgresStore) GetCartByUser(ctx context.Context, userID string) (*domain.Cart, error) {
	return s.getCart(ctx, cartByOwnerQuery, userID)
}

func (s *PostgresStore) getCart(ctx context.Context, query string, arg any) (*domain.Cart, error) {
	cart, err := scanCart(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("store: failed to scan cart: %w", err)
	}
	if err := loadLines(ctx, s.db, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *PostgresStore) UpdateCart(ctx context.Context, cartID int64, mutate CartMutation) (*domain.Cart, error) {
	var updated *domain.Cart
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		cart, err := scanCart(tx.QueryRowContext(ctx, cartByIDForUpdate, cartID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrCartNotFound
			}
			return fmt.Errorf("store: UpdateCart failed to lock cart: %w", err)
		}
		if err := loadLines(ctx, tx, cart); err != nil {
			return err
		}

		before := make(map[int64]struct{}, len(cart.Products))
		for _, line := range cart.Products {
			before[line.ID] = struct{}{}
		}

		if err := mutate(cart); err != nil {
			return err
		}
		cart.Recalculate()

		after := make(map[int64]struct{}, len(cart.Products))
		for _, line := range cart.Products {
			if line.ID != 0 {
				after[line.ID] = struct{}{}
			}
		}
		for id := range before {
			if _, kept := after[id]; kept {
				continue
			}
			if _, err := tx.ExecContext(ctx, deleteLineQuery, id); err != nil {
				return fmt.Errorf("store: UpdateCart failed to delete line %d: %w", id, err)
			}
		}
		for i := range cart.Products {
			line := &cart.Products[i]
			if line.ID == 0 {
				err := tx.QueryRowContext(ctx, insertLineQuery,
					cart.OwnerID, cart.ID, string(line.Product.Type), line.Product.ID, line.Qty, line.FinalPrice,
				).Scan(&line.ID)
				if err != nil {
					return fmt.Errorf("store: UpdateCart failed to insert line %s: %w", line.Product, err)
				}
				line.CartID = cart.ID
				continue
			}
			if _, err := tx.ExecContext(ctx, updateLineQuery, line.Qty, line.FinalPrice, line.OwnerID, line.ID); err != nil {
				return fmt.Errorf("store: UpdateCart failed to update line %d: %w", line.ID, err)
			}
		}

		if err := tx.QueryRowContext(ctx, updateTotalsQuery, cart.TotalProducts, cart.FinalPrice, cart.ID).Scan(&cart.UpdatedAt); err != nil {
			return fmt.Errorf("store: UpdateCart failed to update totals: %w", err)
		}
		updated = cart
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
