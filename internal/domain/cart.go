package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Owner identifies whose cart a request operates on. UserID is set for
// authenticated visitors, SessionID for every visitor holding a session.
type Owner struct {
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

func (o Owner) Anonymous() bool { return o.UserID == "" }

// ProductRef is the polymorphic product key stored on a line item.
type ProductRef struct {
	Type VariantType `json:"type"`
	ID   int64       `json:"id"`
}

func (r ProductRef) String() string { return fmt.Sprintf("%s/%d", r.Type, r.ID) }

// CartProduct is one (cart, product) pairing with a quantity.
// UnitPrice is read from the referenced product whenever the cart is loaded;
// FinalPrice is the derived line total.
type CartProduct struct {
	ID         int64           `json:"id"`
	CartID     int64           `json:"cart_id"`
	OwnerID    *string         `json:"owner_id,omitempty"`
	Product    ProductRef      `json:"product"`
	Slug       string          `json:"slug"`
	Title      string          `json:"title"`
	Qty        int             `json:"qty"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	FinalPrice decimal.Decimal `json:"final_price"`
}

// Cart is the per-identity collection of line items. TotalProducts and
// FinalPrice are derived by Recalculate and never edited directly.
type Cart struct {
	ID            int64           `json:"id"`
	OwnerID       *string         `json:"owner_id,omitempty"`   // nil until a user binds the session cart
	SessionID     *string         `json:"session_id,omitempty"` // session that created the cart
	Products      []CartProduct   `json:"products"`
	TotalProducts int             `json:"total_products"`
	FinalPrice    decimal.Decimal `json:"final_price"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Totals is the result of a recalculation.
type Totals struct {
	Quantity int
	Cost     decimal.Decimal
}

// Recalculate derives the cart totals from scratch over the given lines:
// quantity is the sum of line quantities and cost the sum of unit price times
// quantity.
func Recalculate(lines []CartProduct) Totals {
	totals := Totals{Cost: decimal.Zero}
	for _, line := range lines {
		totals.Quantity += line.Qty
		totals.Cost = totals.Cost.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Qty))))
	}
	return totals
}

// Recalculate refreshes every line total and the cart totals.
func (c *Cart) Recalculate() {
	for i := range c.Products {
		line := &c.Products[i]
		line.FinalPrice = line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Qty)))
	}
	totals := Recalculate(c.Products)
	c.TotalProducts = totals.Quantity
	c.FinalPrice = totals.Cost
}

// Line returns the line item for ref, if present.
func (c *Cart) Line(ref ProductRef) (*CartProduct, bool) {
	for i := range c.Products {
		if c.Products[i].Product == ref {
			return &c.Products[i], true
		}
	}
	return nil, false
}

// AddProduct gets or creates the line for p. An existing line is returned
// untouched; a new line starts at quantity 1.
func (c *Cart) AddProduct(p *Product) (line *CartProduct, created bool) {
	if existing, ok := c.Line(p.Ref()); ok {
		existing.UnitPrice = p.Price
		return existing, false
	}
	c.Products = append(c.Products, CartProduct{
		CartID:    c.ID,
		OwnerID:   c.OwnerID,
		Product:   p.Ref(),
		Slug:      p.Slug,
		Title:     p.Title,
		Qty:       1,
		UnitPrice: p.Price,
	})
	return &c.Products[len(c.Products)-1], true
}

// RemoveProduct detaches the line for ref and returns it.
func (c *Cart) RemoveProduct(ref ProductRef) (CartProduct, error) {
	for i := range c.Products {
		if c.Products[i].Product == ref {
			removed := c.Products[i]
			c.Products = append(c.Products[:i], c.Products[i+1:]...)
			return removed, nil
		}
	}
	return CartProduct{}, fmt.Errorf("%w: %s", ErrLineItemNotFound, ref)
}

// MaxQuantity caps a single line so cart totals stay within int32.
const MaxQuantity = 999

// ValidQuantity reports whether qty may be stored on a cart line.
func ValidQuantity(qty int) bool {
	return qty >= 1 && qty <= MaxQuantity
}

// SetQuantity replaces the quantity of an existing line.
func (c *Cart) SetQuantity(ref ProductRef, qty int) error {
	if !ValidQuantity(qty) {
		return fmt.Errorf("%w: got %d", ErrInvalidQuantity, qty)
	}
	line, ok := c.Line(ref)
	if !ok {
		return fmt.Errorf("%w: %s", ErrLineItemNotFound, ref)
	}
	line.Qty = qty
	return nil
}

// Clone returns a deep copy so callers can mutate without aliasing storage.
func (c *Cart) Clone() *Cart {
	out := *c
	out.Products = make([]CartProduct, len(c.Products))
	copy(out.Products, c.Products)
	return &out
}
