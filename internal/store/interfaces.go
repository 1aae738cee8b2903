package store

import (
	"context"

	"storefront-service/internal/domain"
)

// CategoryStorer defines the database operations for categories.
type CategoryStorer interface {
	CreateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error)
	GetCategoryBySlug(ctx context.Context, slug string) (*domain.Category, error)
	// ListCategoriesWithCounts returns every category ordered by name, with
	// the number of products filed under it across all families.
	ListCategoriesWithCounts(ctx context.Context) ([]domain.CategoryCount, error)
}

// ProductStorer defines the database operations for the product families.
// The variant type selects the family table; it must be one of domain.VariantTypes.
type ProductStorer interface {
	CreateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error)
	GetProductBySlug(ctx context.Context, variant domain.VariantType, slug string) (*domain.Product, error)
	ListLatestProducts(ctx context.Context, variant domain.VariantType, limit int) ([]domain.Product, error) // newest first
	ListProductsByCategory(ctx context.Context, categoryID int64) ([]domain.Product, error)
}

// CartMutation edits a loaded cart in memory. Returning an error aborts the
// whole update and leaves the stored cart untouched.
type CartMutation func(cart *domain.Cart) error

// CartStorer defines the persistence of carts and their line items.
// Every returned cart has its lines loaded with current unit prices and
// freshly recalculated totals.
type CartStorer interface {
	// GetOrCreateCart returns the single cart of owner, creating an empty one
	// when none exists. An anonymous session cart is bound to owner.UserID
	// when the user has no cart of their own.
	GetOrCreateCart(ctx context.Context, owner domain.Owner) (*domain.Cart, error)
	GetCart(ctx context.Context, cartID int64) (*domain.Cart, error)
	GetCartByUser(ctx context.Context, userID string) (*domain.Cart, error)
	// UpdateCart locks the cart, applies mutate, recalculates the totals and
	// persists line and cart changes atomically.
	UpdateCart(ctx context.Context, cartID int64, mutate CartMutation) (*domain.Cart, error)
}

// Store is the full persistence surface used by the service.
type Store interface {
	CategoryStorer
	ProductStorer
	CartStorer
	Ping(ctx context.Context) error
	Close() error
}
