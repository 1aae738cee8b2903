package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"storefront-service/internal/domain"
	"storefront-service/internal/store"
)

// Seed is the on-disk catalog fixture format.
type Seed struct {
	Categories []SeedCategory `yaml:"categories"`
	Products   []SeedProduct  `yaml:"products"`
}

type SeedCategory struct {
	Name string `yaml:"name"`
	Slug string `yaml:"slug"`
}

type SeedProduct struct {
	Type        string         `yaml:"type"`
	Category    string         `yaml:"category"`
	Slug        string         `yaml:"slug"`
	Title       string         `yaml:"title"`
	Description string         `yaml:"description,omitempty"`
	ImageURL    string         `yaml:"image_url,omitempty"`
	Price       string         `yaml:"price"`
	Attributes  map[string]any `yaml:"attributes,omitempty"`
}

func LoadSeedFile(path string) (*Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open seed: %w", err)
	}
	defer f.Close()
	return DecodeSeed(f)
}

func DecodeSeed(r io.Reader) (*Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		return nil, fmt.Errorf("catalog: decode seed: %w", err)
	}
	return &seed, nil
}

func (p SeedProduct) toDomain(categoryID int64) (*domain.Product, error) {
	variant, err := domain.ParseVariantType(p.Type)
	if err != nil {
		return nil, err
	}
	price, err := decimal.NewFromString(p.Price)
	if err != nil {
		return nil, fmt.Errorf("price %q: %w", p.Price, err)
	}
	raw, err := json.Marshal(p.Attributes)
	if err != nil {
		return nil, err
	}
	details, err := domain.DecodeDetails(variant, raw)
	if err != nil {
		return nil, err
	}
	product := &domain.Product{
		Type:       variant,
		Slug:       p.Slug,
		CategoryID: categoryID,
		Title:      p.Title,
		Price:      price,
		Details:    details,
	}
	if p.Description != "" {
		product.Description = &p.Description
	}
	if p.ImageURL != "" {
		product.ImageURL = &p.ImageURL
	}
	return product, nil
}

// ApplySeed creates the seed's categories and products. Entries whose slug
// already exists are skipped, so applying the same seed twice is harmless.
func ApplySeed(ctx context.Context, categories store.CategoryStorer, products store.ProductStorer, seed *Seed, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	ids := make(map[string]int64, len(seed.Categories))
	for _, c := range seed.Categories {
		created, err := categories.CreateCategory(ctx, &domain.Category{Name: c.Name, Slug: c.Slug})
		if errors.Is(err, store.ErrCategorySlugExists) {
			created, err = categories.GetCategoryBySlug(ctx, c.Slug)
		}
		if err != nil {
			return fmt.Errorf("catalog: seed category %s: %w", c.Slug, err)
		}
		ids[c.Slug] = created.ID
	}

	for _, p := range seed.Products {
		categoryID, ok := ids[p.Category]
		if !ok {
			category, err := categories.GetCategoryBySlug(ctx, p.Category)
			if err != nil {
				return fmt.Errorf("catalog: seed product %s/%s: %w", p.Type, p.Slug, err)
			}
			categoryID = category.ID
			ids[p.Category] = categoryID
		}
		product, err := p.toDomain(categoryID)
		if err != nil {
			return fmt.Errorf("catalog: seed product %s/%s: %w", p.Type, p.Slug, err)
		}
		if _, err := products.CreateProduct(ctx, product); err != nil {
			if errors.Is(err, store.ErrProductSlugExists) {
				logger.Debug("seed product exists", zap.String("type", p.Type), zap.String("slug", p.Slug))
				continue
			}
			return fmt.Errorf("catalog: seed product %s/%s: %w", p.Type, p.Slug, err)
		}
	}
	logger.Info("catalog seeded",
		zap.Int("categories", len(seed.Categories)),
		zap.Int("products", len(seed.Products)))
	return nil
}
