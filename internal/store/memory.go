package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"storefront-service/internal/domain"
)

// MemoryStore is an in-process implementation of Store for local runs and
// tests. A single mutex serializes every operation, which also serializes
// concurrent mutations of the same cart.
type MemoryStore struct {
	mu         sync.Mutex
	now        func() time.Time
	nextID     int64
	categories []domain.Category
	products   map[domain.VariantType][]domain.Product
	carts      map[int64]*domain.Cart
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:      time.Now,
		products: make(map[domain.VariantType][]domain.Product),
		carts:    make(map[int64]*domain.Cart),
	}
}

func (m *MemoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *MemoryStore) Ping(context.Context) error { return nil }
func (m *MemoryStore) Close() error                { return nil }

// --- CategoryStorer Implementation ---

func (m *MemoryStore) CreateCategory(_ context.Context, category *domain.Category) (*domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.categories {
		if c.Slug == category.Slug {
			return nil, ErrCategorySlugExists
		}
	}
	created := domain.Category{ID: m.id(), Name: category.Name, Slug: category.Slug}
	m.categories = append(m.categories, created)
	return &created, nil
}

func (m *MemoryStore) GetCategoryBySlug(_ context.Context, slug string) (*domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.categories {
		if c.Slug == slug {
			found := c
			return &found, nil
		}
	}
	return nil, ErrCategoryNotFound
}

func (m *MemoryStore) ListCategoriesWithCounts(_ context.Context) ([]domain.CategoryCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[int64]int)
	for _, family := range m.products {
		for _, p := range family {
			counts[p.CategoryID]++
		}
	}
	out := make([]domain.CategoryCount, 0, len(m.categories))
	for _, c := range m.categories {
		out = append(out, domain.CategoryCount{Category: c, ProductCount: counts[c.ID]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// --- ProductStorer Implementation ---

func (m *MemoryStore) CreateProduct(_ context.Context, product *domain.Product) (*domain.Product, error) {
	if _, err := variantTable(product.Type); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.products[product.Type] {
		if p.Slug == product.Slug {
			return nil, ErrProductSlugExists
		}
	}
	created := *product
	created.ID = m.id()
	created.CreatedAt = m.now()
	if created.Details == nil {
		details, err := domain.DecodeDetails(created.Type, nil)
		if err != nil {
			return nil, err
		}
		created.Details = details
	}
	m.products[product.Type] = append(m.products[product.Type], created)
	return &created, nil
}

func (m *MemoryStore) GetProductBySlug(_ context.Context, variant domain.VariantType, slug string) (*domain.Product, error) {
	if _, err := variantTable(variant); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.products[variant] {
		if p.Slug == slug {
			found := p
			return &found, nil
		}
	}
	return nil, ErrProductNotFound
}

func (m *MemoryStore) ListLatestProducts(_ context.Context, variant domain.VariantType, limit int) ([]domain.Product, error) {
	if _, err := variantTable(variant); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []domain.Product{}, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	family := m.products[variant]
	out := make([]domain.Product, 0, limit)
	for i := len(family) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, family[i])
	}
	return out, nil
}

func (m *MemoryStore) ListProductsByCategory(_ context.Context, categoryID int64) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []domain.Product{}
	for _, t := range domain.VariantTypes() {
		for _, p := range m.products[t] {
			if p.CategoryID == categoryID {
				out = append(out, p)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// --- CartStorer Implementation ---

func (m *MemoryStore) findProduct(ref domain.ProductRef) (domain.Product, bool) {
	for _, p := range m.products[ref.Type] {
		if p.ID == ref.ID {
			return p, true
		}
	}
	return domain.Product{}, false
}

// snapshot copies a stored cart with current unit prices and fresh totals.
func (m *MemoryStore) snapshot(cart *domain.Cart) *domain.Cart {
	out := cart.Clone()
	lines := out.Products[:0]
	for _, line := range out.Products {
		p, ok := m.findProduct(line.Product)
		if !ok {
			continue
		}
		line.Slug, line.Title, line.UnitPrice = p.Slug, p.Title, p.Price
		lines = append(lines, line)
	}
	out.Products = lines
	out.Recalculate()
	return out
}

func (m *MemoryStore) GetOrCreateCart(_ context.Context, owner domain.Owner) (*domain.Cart, error) {
	if owner.UserID == "" && owner.SessionID == "" {
		return nil, errors.New("store: GetOrCreateCart requires a user or session id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var sessionCart *domain.Cart
	for _, c := range m.carts {
		if owner.UserID != "" && c.OwnerID != nil && *c.OwnerID == owner.UserID {
			return m.snapshot(c), nil
		}
		if owner.SessionID != "" && c.OwnerID == nil && c.SessionID != nil && *c.SessionID == owner.SessionID {
			sessionCart = c
		}
	}
	if sessionCart != nil {
		if owner.UserID != "" {
			sessionCart.OwnerID = nullableString(owner.UserID)
			for i := range sessionCart.Products {
				sessionCart.Products[i].OwnerID = sessionCart.OwnerID
			}
			sessionCart.UpdatedAt = m.now()
		}
		return m.snapshot(sessionCart), nil
	}

	now := m.now()
	cart := &domain.Cart{
		ID:        m.id(),
		OwnerID:   nullableString(owner.UserID),
		SessionID: nullableString(owner.SessionID),
		Products:  []domain.CartProduct{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.carts[cart.ID] = cart
	return m.snapshot(cart), nil
}

func (m *MemoryStore) GetCart(_ context.Context, cartID int64) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cart, ok := m.carts[cartID]
	if !ok {
		return nil, ErrCartNotFound
	}
	return m.snapshot(cart), nil
}

func (m *MemoryStore) GetCartByUser(_ context.Context, userID string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.carts {
		if c.OwnerID != nil && *c.OwnerID == userID {
			return m.snapshot(c), nil
		}
	}
	return nil, ErrCartNotFound
}

func (m *MemoryStore) UpdateCart(_ context.Context, cartID int64, mutate CartMutation) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.carts[cartID]
	if !ok {
		return nil, ErrCartNotFound
	}
	working := m.snapshot(stored)
	if err := mutate(working); err != nil {
		return nil, err
	}
	for i := range working.Products {
		line := &working.Products[i]
		if line.ID == 0 {
			if _, ok := m.findProduct(line.Product); !ok {
				return nil, fmt.Errorf("store: UpdateCart: %w: %s", ErrProductNotFound, line.Product)
			}
			line.ID = m.id()
			line.CartID = working.ID
		}
	}
	working.Recalculate()
	working.UpdatedAt = m.now()

	m.carts[cartID] = working.Clone()
	return working, nil
}
