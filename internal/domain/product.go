package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// VariantType is the tag of a product family. Every family shares the
// catalog and cart mechanics but keeps its own table and attribute schema.
type VariantType string

const (
	Bottomwear VariantType = "bottomwear"
	Topwear    VariantType = "topwear"
	Bags       VariantType = "bags"
	Dresses    VariantType = "dresses"
)

var variantTypes = []VariantType{Bottomwear, Topwear, Bags, Dresses}

// VariantTypes returns the fixed enumeration of product families in table order.
func VariantTypes() []VariantType {
	out := make([]VariantType, len(variantTypes))
	copy(out, variantTypes)
	return out
}

// ParseVariantType validates a URL tag against the known families.
func ParseVariantType(tag string) (VariantType, error) {
	t := VariantType(tag)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownVariantType, tag)
	}
	return t, nil
}

func (t VariantType) Valid() bool {
	for _, v := range variantTypes {
		if v == t {
			return true
		}
	}
	return false
}

func (t VariantType) String() string { return string(t) }

// Category groups products of any family.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// CategoryCount is a category with the number of products filed under it,
// summed over every family. Used for navigation.
type CategoryCount struct {
	Category
	ProductCount int `json:"product_count"`
}

// Product is one concrete item of a family. Identity for lookup is (Type, Slug).
type Product struct {
	ID          int64           `json:"id"`
	Type        VariantType     `json:"type"`
	Slug        string          `json:"slug"`
	CategoryID  int64           `json:"category_id"`
	Title       string          `json:"title"`
	Description *string         `json:"description,omitempty"` // nullable
	ImageURL    *string         `json:"image_url,omitempty"`   // nullable
	Price       decimal.Decimal `json:"price"`
	Details     Details         `json:"details,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Ref returns the polymorphic reference used by cart line items.
func (p *Product) Ref() ProductRef {
	return ProductRef{Type: p.Type, ID: p.ID}
}

// Details holds the attributes specific to one family. The set of
// implementations is closed: BottomwearDetails, TopwearDetails, BagDetails
// and DressDetails.
type Details interface {
	VariantType() VariantType
}

type BottomwearDetails struct {
	Size     string `json:"size,omitempty"`
	Fit      string `json:"fit,omitempty"`
	Material string `json:"material,omitempty"`
}

type TopwearDetails struct {
	Size     string `json:"size,omitempty"`
	Sleeve   string `json:"sleeve,omitempty"`
	Material string `json:"material,omitempty"`
}

type BagDetails struct {
	Material string `json:"material,omitempty"`
	Capacity string `json:"capacity,omitempty"`
	Closure  string `json:"closure,omitempty"`
}

type DressDetails struct {
	Size   string `json:"size,omitempty"`
	Length string `json:"length,omitempty"`
	Color  string `json:"color,omitempty"`
}

func (BottomwearDetails) VariantType() VariantType { return Bottomwear }
func (TopwearDetails) VariantType() VariantType    { return Topwear }
func (BagDetails) VariantType() VariantType        { return Bags }
func (DressDetails) VariantType() VariantType      { return Dresses }

// DecodeDetails unmarshals a JSON attribute document into the details type of
// the given family. An empty or null document yields zero-valued details.
func DecodeDetails(t VariantType, raw []byte) (Details, error) {
	var target Details
	switch t {
	case Bottomwear:
		d := BottomwearDetails{}
		if err := unmarshalOptional(raw, &d); err != nil {
			return nil, err
		}
		target = d
	case Topwear:
		d := TopwearDetails{}
		if err := unmarshalOptional(raw, &d); err != nil {
			return nil, err
		}
		target = d
	case Bags:
		d := BagDetails{}
		if err := unmarshalOptional(raw, &d); err != nil {
			return nil, err
		}
		target = d
	case Dresses:
		d := DressDetails{}
		if err := unmarshalOptional(raw, &d); err != nil {
			return nil, err
		}
		target = d
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariantType, string(t))
	}
	return target, nil
}

// EncodeDetails is the inverse of DecodeDetails. Nil details encode as "{}".
func EncodeDetails(d Details) ([]byte, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d)
}

func unmarshalOptional(raw []byte, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("domain: decode product details: %w", err)
	}
	return nil
}
