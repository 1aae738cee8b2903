// Package catalog serves the read side of the storefront: the category
// sidebar, product and category pages and the latest products block.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"storefront-service/internal/domain"
	"storefront-service/internal/store"
)

// MainPageFamilies is the family order of the landing page block.
var MainPageFamilies = []domain.VariantType{domain.Dresses, domain.Bottomwear, domain.Topwear, domain.Bags}

type Service struct {
	categories      store.CategoryStorer
	products        store.ProductStorer
	latestPerFamily int
	logger          *zap.Logger
}

func NewService(categories store.CategoryStorer, products store.ProductStorer, latestPerFamily int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		categories:      categories,
		products:        products,
		latestPerFamily: latestPerFamily,
		logger:          logger.Named("catalog"),
	}
}

// Sidebar returns every category with its product count.
func (s *Service) Sidebar(ctx context.Context) ([]domain.CategoryCount, error) {
	categories, err := s.categories.ListCategoriesWithCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: sidebar: %w", err)
	}
	return categories, nil
}

// Product resolves a product by its variant tag and slug. Unknown tags are
// rejected before any storage access.
func (s *Service) Product(ctx context.Context, tag, slug string) (*domain.Product, error) {
	variant, err := domain.ParseVariantType(tag)
	if err != nil {
		return nil, err
	}
	product, err := s.products.GetProductBySlug(ctx, variant, slug)
	if err != nil {
		return nil, fmt.Errorf("catalog: product %s/%s: %w", tag, slug, err)
	}
	return product, nil
}

// Category returns the category with every product filed under it.
func (s *Service) Category(ctx context.Context, slug string) (*domain.Category, []domain.Product, error) {
	category, err := s.categories.GetCategoryBySlug(ctx, slug)
	if err != nil {
		return nil, nil, fmt.Errorf("catalog: category %s: %w", slug, err)
	}
	products, err := s.products.ListProductsByCategory(ctx, category.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("catalog: products of category %s: %w", slug, err)
	}
	return category, products, nil
}

// Latest collects the newest products of each family, in family order.
// Products of withRespectTo, when set, are moved to the front while every
// other product keeps its position.
func (s *Service) Latest(ctx context.Context, withRespectTo domain.VariantType, families ...domain.VariantType) ([]domain.Product, error) {
	if withRespectTo != "" && !withRespectTo.Valid() {
		return nil, fmt.Errorf("catalog: latest: %w: %q", domain.ErrUnknownVariantType, withRespectTo)
	}
	out := []domain.Product{}
	for _, family := range families {
		products, err := s.products.ListLatestProducts(ctx, family, s.latestPerFamily)
		if err != nil {
			return nil, fmt.Errorf("catalog: latest %s: %w", family, err)
		}
		out = append(out, products...)
	}
	if withRespectTo != "" {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Type == withRespectTo && out[j].Type != withRespectTo
		})
	}
	return out, nil
}

// MainPage is the catalog part of the landing page.
type MainPage struct {
	Categories []domain.CategoryCount
	Products   []domain.Product
}

func (s *Service) MainPage(ctx context.Context) (*MainPage, error) {
	categories, err := s.Sidebar(ctx)
	if err != nil {
		return nil, err
	}
	products, err := s.Latest(ctx, domain.Topwear, MainPageFamilies...)
	if err != nil {
		return nil, err
	}
	return &MainPage{Categories: categories, Products: products}, nil
}

// IsNotFound reports whether err means the requested catalog entry does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrProductNotFound) ||
		errors.Is(err, store.ErrCategoryNotFound) ||
		errors.Is(err, domain.ErrUnknownVariantType)
}
