package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront-service/internal/domain"
)

const productColumns = `id, slug, category_id, title, description, image_url, price, attributes, created_at`

var (
	categoryCountsQuery = `
		SELECT c.id, c.name, c.slug, COUNT(p.id)
		FROM storefront.categories c
		LEFT JOIN (
` + unionAllVariants("\t\tSELECT id, category_id FROM %[2]s") + `
		) p ON p.category_id = c.id
		GROUP BY c.id, c.name, c.slug
		ORDER BY c.name ASC;
	`

	productsByCategoryQuery = `
		SELECT type, ` + productColumns + `
		FROM (
` + unionAllVariants("\t\tSELECT '%[1]s' AS type, "+productColumns+" FROM %[2]s") + `
		) p
		WHERE category_id = $1
		ORDER BY created_at DESC, id DESC;
	`
)

// --- CategoryStorer Implementation ---

func (s *PostgresStore) CreateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error) {
	query := `
		INSERT INTO storefront.categories (name, slug)
		VALUES ($1, $2)
		RETURNING id, name, slug;
	`
	var created domain.Category
	err := s.db.QueryRowContext(ctx, query, category.Name, category.Slug).Scan(&created.ID, &created.Name, &created.Slug)
	if err != nil {
		if isUniqueViolation(err, "categories_slug_key") {
			return nil, ErrCategorySlugExists
		}
		return nil, fmt.Errorf("store: CreateCategory failed to scan row: %w", err)
	}
	return &created, nil
}

func (s *PostgresStore) GetCategoryBySlug(ctx context.Context, slug string) (*domain.Category, error) {
	query := `
		SELECT id, name, slug
		FROM storefront.categories
		WHERE slug = $1;
	`
	var category domain.Category
	err := s.db.QueryRowContext(ctx, query, slug).Scan(&category.ID, &category.Name, &category.Slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("store: GetCategoryBySlug failed to scan row: %w", err)
	}
	return &category, nil
}

func (s *PostgresStore) ListCategoriesWithCounts(ctx context.Context) ([]domain.CategoryCount, error) {
	rows, err := s.db.QueryContext(ctx, categoryCountsQuery)
	if err != nil {
		return nil, fmt.Errorf("store: ListCategoriesWithCounts failed to query categories: %w", err)
	}
	defer rows.Close()

	categories := []domain.CategoryCount{}
	for rows.Next() {
		var c domain.CategoryCount
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.ProductCount); err != nil {
			return nil, fmt.Errorf("store: ListCategoriesWithCounts failed to scan row: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: ListCategoriesWithCounts iteration error: %w", err)
	}
	return categories, nil
}

// --- ProductStorer Implementation ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner, variant domain.VariantType, withType bool) (*domain.Product, error) {
	var (
		p          domain.Product
		typeTag    string
		attributes []byte
	)
	dest := []any{
		&p.ID, &p.Slug, &p.CategoryID, &p.Title, &p.Description, &p.ImageURL,
		&p.Price, &attributes, &p.CreatedAt,
	}
	if withType {
		dest = append([]any{&typeTag}, dest...)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if withType {
		variant = domain.VariantType(typeTag)
	}
	p.Type = variant
	details, err := domain.DecodeDetails(variant, attributes)
	if err != nil {
		return nil, fmt.Errorf("store: product %s/%s: %w", variant, p.Slug, err)
	}
	p.Details = details
	return &p, nil
}

func (s *PostgresStore) CreateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	table, err := variantTable(product.Type)
	if err != nil {
		return nil, err
	}
	attributes, err := domain.EncodeDetails(product.Details)
	if err != nil {
		return nil, fmt.Errorf("store: CreateProduct failed to encode details: %w", err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (slug, category_id, title, description, image_url, price, attributes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING %s;
	`, table, productColumns)

	row := s.db.QueryRowContext(ctx, query,
		product.Slug, product.CategoryID, product.Title, product.Description, product.ImageURL,
		product.Price, attributes,
	)
	created, err := scanProduct(row, product.Type, false)
	if err != nil {
		if isUniqueViolation(err, "slug_key") {
			return nil, ErrProductSlugExists
		}
		return nil, fmt.Errorf("store: CreateProduct failed to scan row: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetProductBySlug(ctx context.Context, variant domain.VariantType, slug string) (*domain.Product, error) {
	table, err := variantTable(variant)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE slug = $1;
	`, productColumns, table)

	product, err := scanProduct(s.db.QueryRowContext(ctx, query, slug), variant, false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("store: GetProductBySlug failed to scan row: %w", err)
	}
	return product, nil
}

func (s *PostgresStore) ListLatestProducts(ctx context.Context, variant domain.VariantType, limit int) ([]domain.Product, error) {
	if limit <= 0 {
		return []domain.Product{}, nil
	}
	table, err := variantTable(variant)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		ORDER BY id DESC
		LIMIT $1;
	`, productColumns, table)

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("store: ListLatestProducts failed to query %s: %w", variant, err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, limit)
	for rows.Next() {
		p, err := scanProduct(rows, variant, false)
		if err != nil {
			return nil, fmt.Errorf("store: ListLatestProducts failed to scan row: %w", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: ListLatestProducts iteration error: %w", err)
	}
	return products, nil
}

func (s *PostgresStore) ListProductsByCategory(ctx context.Context, categoryID int64) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, productsByCategoryQuery, categoryID)
	if err != nil {
		return nil, fmt.Errorf("store: ListProductsByCategory failed to query products: %w", err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows, "", true)
		if err != nil {
			return nil, fmt.Errorf("store: ListProductsByCategory failed to scan row: %w", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: ListProductsByCategory iteration error: %w", err)
	}
	return products, nil
}
