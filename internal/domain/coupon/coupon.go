package coupon

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Kind enumerates the supported coupon rule variants. The string values are
// the wire names used by the API and the store.
type Kind string

const (
	// KindCartWise applies a percentage discount to the whole cart above a threshold.
	KindCartWise Kind = "cart-wise"
	// KindProductWise applies a percentage discount to a single product line.
	KindProductWise Kind = "product-wise"
	// KindBuyXGetY grants free units of "get" products for bought "buy" products.
	KindBuyXGetY Kind = "bxgy"
)

// Variant is the rule-specific part of a coupon. It is sealed: the only
// implementations are CartWise, ProductWise and BuyXGetY, and every one of
// them must provide both the discount and the line-rewrite rule.
type Variant interface {
	Kind() Kind

	discount(items []Item) decimal.Decimal
	lineDiscounts(items []Item) []decimal.Decimal
}

// CartWise discounts the whole cart when its subtotal strictly exceeds Threshold.
type CartWise struct {
	Threshold       decimal.Decimal
	DiscountPercent decimal.Decimal
}

// Kind implements Variant.
func (CartWise) Kind() Kind { return KindCartWise }

// ProductWise discounts the first cart line holding ProductID.
type ProductWise struct {
	ProductID       int64
	DiscountPercent decimal.Decimal
}

// Kind implements Variant.
func (ProductWise) Kind() Kind { return KindProductWise }

// ProductQuantity pairs a product with a unit count.
type ProductQuantity struct {
	ProductID int64
	Quantity  int
}

// BuyXGetY grants free units of the Get products each time the Buy
// requirement is met, at most RepetitionLimit times.
type BuyXGetY struct {
	Buy             []ProductQuantity
	Get             []ProductQuantity
	RepetitionLimit int
}

// Kind implements Variant.
func (BuyXGetY) Kind() Kind { return KindBuyXGetY }

// Coupon is a validated discount rule. Values are snapshots: the engine only
// reads them, and storage layers hand out fresh copies.
type Coupon struct {
	ID         string
	Variant    Variant
	Expiration *time.Time
	CreatedAt  time.Time
}

// Kind returns the variant kind of the coupon.
func (c *Coupon) Kind() Kind {
	return c.Variant.Kind()
}

// Input carries raw, unvalidated coupon fields as they arrive from a client
// or a stored record. Pointer fields distinguish "absent" from zero.
type Input struct {
	Type            Kind
	Threshold       *decimal.Decimal
	Discount        *decimal.Decimal
	ProductID       *int64
	BuyProducts     []ProductQuantity
	GetProducts     []ProductQuantity
	RepetitionLimit *int
	Expiration      *time.Time
}

// Store is the read side of coupon persistence required by the engine's
// callers.
type Store interface {
	FetchByID(ctx context.Context, id string) (*Coupon, error)
	FetchAll(ctx context.Context) ([]*Coupon, error)
}

// Repository provides lookup and mutation of coupon records.
type Repository interface {
	Store
	Create(ctx context.Context, c *Coupon) error
	Update(ctx context.Context, c *Coupon) error
	Delete(ctx context.Context, id string) error
}

var hundred = decimal.NewFromInt(100)

// New validates in and builds a Coupon with the given id. Fields that belong
// to other variants are ignored. It returns a *MalformedCouponError when the
// variant's required fields are missing or out of range.
func New(id string, in Input) (*Coupon, error) {
	v, err := newVariant(in)
	if err != nil {
		return nil, err
	}
	c := &Coupon{ID: id, Variant: v}
	if in.Expiration != nil {
		exp := *in.Expiration
		c.Expiration = &exp
	}
	return c, nil
}

func newVariant(in Input) (Variant, error) {
	switch in.Type {
	case KindCartWise:
		if in.Threshold == nil {
			return nil, malformed("threshold", "required for cart-wise coupon")
		}
		if in.Threshold.IsNegative() {
			return nil, malformed("threshold", "must not be negative")
		}
		pct, err := validPercent(in.Discount)
		if err != nil {
			return nil, err
		}
		return CartWise{Threshold: *in.Threshold, DiscountPercent: pct}, nil

	case KindProductWise:
		if in.ProductID == nil {
			return nil, malformed("product_id", "required for product-wise coupon")
		}
		pct, err := validPercent(in.Discount)
		if err != nil {
			return nil, err
		}
		return ProductWise{ProductID: *in.ProductID, DiscountPercent: pct}, nil

	case KindBuyXGetY:
		buy, err := validProducts("buy_products", in.BuyProducts)
		if err != nil {
			return nil, err
		}
		get, err := validProducts("get_products", in.GetProducts)
		if err != nil {
			return nil, err
		}
		limit := 1
		if in.RepetitionLimit != nil {
			if *in.RepetitionLimit < 1 {
				return nil, malformed("repetition_limit", "must be at least 1")
			}
			limit = *in.RepetitionLimit
		}
		return BuyXGetY{Buy: buy, Get: get, RepetitionLimit: limit}, nil

	case "":
		return nil, malformed("type", "required")
	default:
		return nil, malformed("type", "unsupported coupon type "+string(in.Type))
	}
}

// validPercent checks that a discount percentage lies in (0, 100].
func validPercent(p *decimal.Decimal) (decimal.Decimal, error) {
	if p == nil {
		return decimal.Zero, malformed("discount", "required")
	}
	if !p.IsPositive() || p.GreaterThan(hundred) {
		return decimal.Zero, malformed("discount", "must be greater than 0 and at most 100")
	}
	return *p, nil
}

func validProducts(field string, in []ProductQuantity) ([]ProductQuantity, error) {
	if len(in) == 0 {
		return nil, malformed(field, "must not be empty")
	}
	for _, p := range in {
		if p.Quantity <= 0 {
			return nil, malformed(field, "quantity must be greater than 0")
		}
	}
	out := make([]ProductQuantity, len(in))
	copy(out, in)
	return out, nil
}
