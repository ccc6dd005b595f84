package coupon

import "github.com/shopspring/decimal"

// Item is a single cart line.
type Item struct {
	ProductID int64
	Quantity  int
	Price     decimal.Decimal
}

// Cart is the ordered set of lines a coupon is evaluated against. The engine
// treats it as read-only.
type Cart struct {
	Items []Item
}

// Validate reports an *InvalidCartError when the cart has no items or any line
// has a non-positive quantity or a negative price.
func (c Cart) Validate() error {
	if len(c.Items) == 0 {
		return &InvalidCartError{Index: -1, Reason: "cart must contain at least one item"}
	}
	for i, item := range c.Items {
		if item.Quantity <= 0 {
			return &InvalidCartError{Index: i, Reason: "quantity must be greater than 0"}
		}
		if item.Price.IsNegative() {
			return &InvalidCartError{Index: i, Reason: "price must not be negative"}
		}
	}
	return nil
}

// PricedItem is a cart line annotated with the discount attributed to it.
type PricedItem struct {
	Item
	DiscountAmount decimal.Decimal
}

// PricedCart is the result of applying a coupon to a cart.
// FinalPrice always equals Subtotal minus TotalDiscount.
type PricedCart struct {
	Items         []PricedItem
	Subtotal      decimal.Decimal
	TotalDiscount decimal.Decimal
	FinalPrice    decimal.Decimal
}

// Applicable is one entry of the applicable-coupons listing.
type Applicable struct {
	CouponID string
	Type     Kind
	Discount decimal.Decimal
}
