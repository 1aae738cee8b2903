// Package cart implements the cart use cases on top of store.CartStorer.
package cart

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"storefront-service/internal/domain"
	"storefront-service/internal/store"
)

const tracerName = "storefront-service/internal/cart"

// Flash messages shown after each mutation.
const (
	MsgAdded           = "Product added to cart"
	MsgRemoved         = "Product removed from cart"
	MsgQuantityChanged = "Quantity changed"
)

type Service struct {
	carts  store.CartStorer
	logger *zap.Logger
	tracer trace.Tracer
}

func NewService(carts store.CartStorer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		carts:  carts,
		logger: logger.Named("cart"),
		tracer: otel.Tracer(tracerName),
	}
}

func (s *Service) start(ctx context.Context, name string, cart *domain.Cart, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if cart != nil {
		attrs = append(attrs, attribute.Int64("cart.id", cart.ID))
	}
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Resolve returns the single cart of owner, creating an empty one on first use.
func (s *Service) Resolve(ctx context.Context, owner domain.Owner) (_ *domain.Cart, err error) {
	ctx, span := s.start(ctx, "cart.Resolve", nil, attribute.Bool("owner.anonymous", owner.Anonymous()))
	defer func() { finish(span, err) }()

	cart, err := s.carts.GetOrCreateCart(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("cart: resolve: %w", err)
	}
	return cart, nil
}

// ForUser returns the cart bound to userID.
func (s *Service) ForUser(ctx context.Context, userID string) (_ *domain.Cart, err error) {
	ctx, span := s.start(ctx, "cart.ForUser", nil)
	defer func() { finish(span, err) }()

	cart, err := s.carts.GetCartByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("cart: user %s: %w", userID, err)
	}
	return cart, nil
}

// AddToCart gets or creates the line for product. Adding a product that is
// already in the cart leaves its quantity alone. The returned flag reports
// whether a new line was created.
func (s *Service) AddToCart(ctx context.Context, cart *domain.Cart, product *domain.Product) (_ *domain.Cart, created bool, err error) {
	ctx, span := s.start(ctx, "cart.AddToCart", cart, attribute.String("product", product.Ref().String()))
	defer func() { finish(span, err) }()

	updated, err := s.carts.UpdateCart(ctx, cart.ID, func(c *domain.Cart) error {
		_, created = c.AddProduct(product)
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("cart: add %s: %w", product.Ref(), err)
	}
	s.logger.Debug("product added",
		zap.Int64("cart_id", cart.ID),
		zap.Stringer("product", product.Ref()),
		zap.Bool("created", created))
	return updated, created, nil
}

// RemoveFromCart deletes the line for ref. A missing line yields
// domain.ErrLineItemNotFound and the cart is left unchanged.
func (s *Service) RemoveFromCart(ctx context.Context, cart *domain.Cart, ref domain.ProductRef) (_ *domain.Cart, err error) {
	ctx, span := s.start(ctx, "cart.RemoveFromCart", cart, attribute.String("product", ref.String()))
	defer func() { finish(span, err) }()

	updated, err := s.carts.UpdateCart(ctx, cart.ID, func(c *domain.Cart) error {
		_, err := c.RemoveProduct(ref)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("cart: remove %s: %w", ref, err)
	}
	s.logger.Debug("product removed", zap.Int64("cart_id", cart.ID), zap.Stringer("product", ref))
	return updated, nil
}

// ChangeQuantity sets the quantity of an existing line. Quantities outside
// 1..domain.MaxQuantity are rejected before the store is touched.
func (s *Service) ChangeQuantity(ctx context.Context, cart *domain.Cart, ref domain.ProductRef, qty int) (_ *domain.Cart, err error) {
	ctx, span := s.start(ctx, "cart.ChangeQuantity", cart,
		attribute.String("product", ref.String()), attribute.Int("qty", qty))
	defer func() { finish(span, err) }()

	if !domain.ValidQuantity(qty) {
		return nil, fmt.Errorf("cart: change qty %s: %w: got %d", ref, domain.ErrInvalidQuantity, qty)
	}
	updated, err := s.carts.UpdateCart(ctx, cart.ID, func(c *domain.Cart) error {
		return c.SetQuantity(ref, qty)
	})
	if err != nil {
		return nil, fmt.Errorf("cart: change qty %s: %w", ref, err)
	}
	s.logger.Debug("quantity changed", zap.Int64("cart_id", cart.ID), zap.Stringer("product", ref), zap.Int("qty", qty))
	return updated, nil
}

// IsNotFound reports whether err means the cart or one of its lines does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrLineItemNotFound) ||
		errors.Is(err, store.ErrCartNotFound) ||
		errors.Is(err, store.ErrProductNotFound)
}

// IsValidation reports whether err was caused by invalid input.
func IsValidation(err error) bool {
	return errors.Is(err, domain.ErrInvalidQuantity)
}
