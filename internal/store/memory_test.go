package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-service/internal/domain"
)

func seedMemory(t *testing.T) (*MemoryStore, *domain.Category, *domain.Product, *domain.Product) {
	t.Helper()
	ctx := context.Background()
	m := NewMemoryStore()

	cat, err := m.CreateCategory(ctx, &domain.Category{Name: "Clothes", Slug: "clothes"})
	require.NoError(t, err)
	shirt, err := m.CreateProduct(ctx, &domain.Product{Type: domain.Topwear, Slug: "shirt", Title: "Shirt", CategoryID: cat.ID, Price: d("20")})
	require.NoError(t, err)
	gown, err := m.CreateProduct(ctx, &domain.Product{Type: domain.Dresses, Slug: "gown", Title: "Gown", CategoryID: cat.ID, Price: d("80")})
	require.NoError(t, err)
	return m, cat, shirt, gown
}

func TestMemoryStore_Catalog(t *testing.T) {
	ctx := context.Background()
	m, cat, shirt, _ := seedMemory(t)

	_, err := m.CreateCategory(ctx, &domain.Category{Name: "Dup", Slug: "clothes"})
	assert.True(t, errors.Is(err, ErrCategorySlugExists))

	_, err = m.CreateProduct(ctx, &domain.Product{Type: domain.Topwear, Slug: "shirt"})
	assert.True(t, errors.Is(err, ErrProductSlugExists))

	// the same slug is fine in another family
	_, err = m.CreateProduct(ctx, &domain.Product{Type: domain.Bags, Slug: "shirt", CategoryID: cat.ID, Price: d("1")})
	require.NoError(t, err)

	found, err := m.GetProductBySlug(ctx, domain.Topwear, "shirt")
	require.NoError(t, err)
	assert.Equal(t, shirt.ID, found.ID)
	assert.Equal(t, domain.TopwearDetails{}, found.Details)

	_, err = m.GetProductBySlug(ctx, domain.Dresses, "shirt")
	assert.True(t, errors.Is(err, ErrProductNotFound))

	counts, err := m.ListCategoriesWithCounts(ctx)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, 3, counts[0].ProductCount)

	byCategory, err := m.ListProductsByCategory(ctx, cat.ID)
	require.NoError(t, err)
	assert.Len(t, byCategory, 3)
}

func TestMemoryStore_ListLatestProducts_NewestFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	for _, slug := range []string{"a", "b", "c"} {
		_, err := m.CreateProduct(ctx, &domain.Product{Type: domain.Bags, Slug: slug, Price: d("1")})
		require.NoError(t, err)
	}

	latest, err := m.ListLatestProducts(ctx, domain.Bags, 2)

	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "c", latest[0].Slug)
	assert.Equal(t, "b", latest[1].Slug)
}

func TestMemoryStore_GetOrCreateCart_IsIdempotentPerIdentity(t *testing.T) {
	ctx := context.Background()
	m, _, _, _ := seedMemory(t)

	first, err := m.GetOrCreateCart(ctx, domain.Owner{SessionID: "s1"})
	require.NoError(t, err)
	second, err := m.GetOrCreateCart(ctx, domain.Owner{SessionID: "s1"})
	require.NoError(t, err)
	other, err := m.GetOrCreateCart(ctx, domain.Owner{SessionID: "s2"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestMemoryStore_GetOrCreateCart_BindsSessionCartToUser(t *testing.T) {
	ctx := context.Background()
	m, _, shirt, _ := seedMemory(t)

	anon, err := m.GetOrCreateCart(ctx, domain.Owner{SessionID: "s1"})
	require.NoError(t, err)
	_, err = m.UpdateCart(ctx, anon.ID, func(c *domain.Cart) error {
		c.AddProduct(shirt)
		return nil
	})
	require.NoError(t, err)

	bound, err := m.GetOrCreateCart(ctx, domain.Owner{UserID: "u1", SessionID: "s1"})
	require.NoError(t, err)

	assert.Equal(t, anon.ID, bound.ID)
	require.NotNil(t, bound.OwnerID)
	assert.Equal(t, "u1", *bound.OwnerID)
	assert.Equal(t, 1, bound.TotalProducts)

	byUser, err := m.GetCartByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, anon.ID, byUser.ID)
}

func TestMemoryStore_UpdateCart_MutationErrorLeavesCartUntouched(t *testing.T) {
	ctx := context.Background()
	m, _, shirt, _ := seedMemory(t)
	cart, err := m.GetOrCreateCart(ctx, domain.Owner{SessionID: "s1"})
	require.NoError(t, err)
	_, err = m.UpdateCart(ctx, cart.ID, func(c *domain.Cart) error {
		c.AddProduct(shirt)
		return nil
	})
	require.NoError(t, err)

	_, err = m.UpdateCart(ctx, cart.ID, func(c *domain.Cart) error {
		c.Products[0].Qty = 40
		return c.SetQuantity(shirt.Ref(), 0)
	})
	assert.True(t, errors.Is(err, domain.ErrInvalidQuantity))

	reloaded, err := m.GetCart(ctx, cart.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Products[0].Qty)
}

func TestMemoryStore_UpdateCart_ConcurrentAddsKeepOneLine(t *testing.T) {
	ctx := context.Background()
	m, _, shirt, gown := seedMemory(t)
	cart, err := m.GetOrCreateCart(ctx, domain.Owner{SessionID: "s1"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := shirt
			if i%2 == 0 {
				p = gown
			}
			_, err := m.UpdateCart(ctx, cart.ID, func(c *domain.Cart) error {
				c.AddProduct(p)
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	final, err := m.GetCart(ctx, cart.ID)
	require.NoError(t, err)
	assert.Len(t, final.Products, 2)
	assert.Equal(t, 2, final.TotalProducts)
	assert.True(t, d("100").Equal(final.FinalPrice))
}

func TestMemoryStore_UpdateCart_UnknownCart(t *testing.T) {
	m := NewMemoryStore()
	_, err := m.UpdateCart(context.Background(), 99, func(*domain.Cart) error { return nil })
	assert.True(t, errors.Is(err, ErrCartNotFound))
}

func TestMemoryStore_ListLatestProducts_NonPositiveLimit(t *testing.T) {
	ctx := context.Background()
	m, _, _, _ := seedMemory(t)

	for _, limit := range []int{0, -1} {
		latest, err := m.ListLatestProducts(ctx, domain.Topwear, limit)
		require.NoError(t, err)
		assert.Empty(t, latest, "limit %d", limit)
	}
}
