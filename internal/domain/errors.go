package domain

import "errors"

var (
	ErrUnknownVariantType = errors.New("domain: unknown product variant type")
	ErrLineItemNotFound   = errors.New("domain: product is not in the cart")
	ErrInvalidQuantity    = errors.New("domain: quantity must be between 1 and 999")
)
