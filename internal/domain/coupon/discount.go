package coupon

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

var zero = decimal.Zero

// IsExpired reports whether c has an expiration and asOf is strictly after it.
func IsExpired(c *Coupon, asOf time.Time) bool {
	return c.Expiration != nil && asOf.After(*c.Expiration)
}

// ComputeDiscount returns the discount c yields against cart. Expiration is
// not considered; callers check IsExpired separately. The result is never
// negative.
func ComputeDiscount(c *Coupon, cart Cart) decimal.Decimal {
	return floorAtZero(c.Variant.discount(cart.Items))
}

// ApplyToCart rewrites cart with per-line discount amounts for c and the
// given total discount, normally the result of ComputeDiscount. The input
// cart is not modified.
func ApplyToCart(c *Coupon, cart Cart, discount decimal.Decimal) PricedCart {
	lines := c.Variant.lineDiscounts(cart.Items)

	items := make([]PricedItem, len(cart.Items))
	for i, item := range cart.Items {
		items[i] = PricedItem{Item: item, DiscountAmount: lines[i]}
	}

	subtotal := calcSubtotal(cart.Items)
	return PricedCart{
		Items:         items,
		Subtotal:      subtotal,
		TotalDiscount: discount,
		FinalPrice:    subtotal.Sub(discount),
	}
}

// FilterApplicable returns the coupons that are unexpired as of asOf and yield
// a positive discount for cart, in input order.
func FilterApplicable(coupons []*Coupon, cart Cart, asOf time.Time) []Applicable {
	out := make([]Applicable, 0, len(coupons))
	for _, c := range coupons {
		if IsExpired(c, asOf) {
			continue
		}
		d := ComputeDiscount(c, cart)
		if !d.IsPositive() {
			continue
		}
		out = append(out, Applicable{
			CouponID: c.ID,
			Type:     c.Kind(),
			Discount: d,
		})
	}
	return out
}

// Apply evaluates c against cart as of asOf. Expiry is checked before any
// discount computation. It returns ErrCouponExpired for an expired coupon and
// ErrCouponCondition when the coupon yields no discount.
func Apply(c *Coupon, cart Cart, asOf time.Time) (PricedCart, error) {
	if IsExpired(c, asOf) {
		return PricedCart{}, ErrCouponExpired
	}

	d := ComputeDiscount(c, cart)
	if d.IsZero() {
		return PricedCart{}, ErrCouponCondition
	}

	return ApplyToCart(c, cart, d), nil
}

func (v CartWise) discount(items []Item) decimal.Decimal {
	subtotal := calcSubtotal(items)
	if !subtotal.GreaterThan(v.Threshold) {
		return zero
	}
	return subtotal.Mul(v.DiscountPercent).Div(hundred)
}

// Cart-wise discounts are not attributed to individual lines.
func (v CartWise) lineDiscounts(items []Item) []decimal.Decimal {
	return zeroLines(len(items))
}

func (v ProductWise) discount(items []Item) decimal.Decimal {
	i := firstLine(items, v.ProductID)
	if i < 0 {
		return zero
	}
	return v.lineAmount(items[i])
}

// Only the first line holding the product is discounted; duplicate lines
// for the same product are priced at full cost.
func (v ProductWise) lineDiscounts(items []Item) []decimal.Decimal {
	lines := zeroLines(len(items))
	if i := firstLine(items, v.ProductID); i >= 0 {
		lines[i] = v.lineAmount(items[i])
	}
	return lines
}

func (v ProductWise) lineAmount(item Item) decimal.Decimal {
	return lineTotal(item).Mul(v.DiscountPercent).Div(hundred)
}

func (v BuyXGetY) discount(items []Item) decimal.Decimal {
	free := v.freeUnits(items)
	if free == 0 {
		return zero
	}

	get := v.Get[0]
	price := zero
	if i := firstLine(items, get.ProductID); i >= 0 {
		price = items[i].Price
	}
	return price.Mul(decimal.NewFromInt(int64(free))).Mul(decimal.NewFromInt(int64(get.Quantity)))
}

// Each line holding a "get" product is capped at freeUnits independently, so
// several such lines can together exceed the total discount.
func (v BuyXGetY) lineDiscounts(items []Item) []decimal.Decimal {
	lines := zeroLines(len(items))
	free := v.freeUnits(items)
	if free == 0 {
		return lines
	}
	for i, item := range items {
		if !containsProduct(v.Get, item.ProductID) {
			continue
		}
		units := min(free, item.Quantity)
		lines[i] = item.Price.Mul(decimal.NewFromInt(int64(units)))
	}
	return lines
}

// freeUnits returns min(min(buyCount / buy[0].quantity, limit), getCount).
// Only the first buy entry sets the divisor.
func (v BuyXGetY) freeUnits(items []Item) int {
	buyCount := countMatching(items, v.Buy)
	getCount := countMatching(items, v.Get)
	times := min(buyCount/v.Buy[0].Quantity, v.RepetitionLimit)
	return min(times, getCount)
}

// calcSubtotal returns the sum of price * quantity across all items.
func calcSubtotal(items []Item) decimal.Decimal {
	sum := zero
	for _, item := range items {
		sum = sum.Add(lineTotal(item))
	}
	return sum
}

func lineTotal(item Item) decimal.Decimal {
	return item.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
}

// countMatching sums the quantities of items whose product appears in
// products, saturating at math.MaxInt.
func countMatching(items []Item, products []ProductQuantity) int {
	total := 0
	for _, item := range items {
		if !containsProduct(products, item.ProductID) {
			continue
		}
		if item.Quantity > math.MaxInt-total {
			return math.MaxInt
		}
		total += item.Quantity
	}
	return total
}

func containsProduct(products []ProductQuantity, id int64) bool {
	for _, p := range products {
		if p.ProductID == id {
			return true
		}
	}
	return false
}

// firstLine returns the index of the first item holding id, or -1.
func firstLine(items []Item, id int64) int {
	for i, item := range items {
		if item.ProductID == id {
			return i
		}
	}
	return -1
}

func zeroLines(n int) []decimal.Decimal {
	lines := make([]decimal.Decimal, n)
	for i := range lines {
		lines[i] = zero
	}
	return lines
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}
