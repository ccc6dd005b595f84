package couponjson

import (
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/coupon-service/internal/domain/coupon"
)

// EncodeCoupon writes c as a coupon document.
func EncodeCoupon(e *jx.Encoder, c *coupon.Coupon) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(c.ID) })
		e.Field("type", func(e *jx.Encoder) { e.Str(string(c.Kind())) })
		e.Field("details", func(e *jx.Encoder) { EncodeDetails(e, c.Variant) })
		e.Field("expiration_date", func(e *jx.Encoder) { writeOptTime(e, c.Expiration) })
		if !c.CreatedAt.IsZero() {
			e.Field("created_at", func(e *jx.Encoder) { writeTime(e, c.CreatedAt) })
		}
	})
}

// EncodeCoupons writes a JSON array of coupon documents.
func EncodeCoupons(e *jx.Encoder, cs []*coupon.Coupon) {
	e.Arr(func(e *jx.Encoder) {
		for _, c := range cs {
			EncodeCoupon(e, c)
		}
	})
}

// MarshalCoupon returns the coupon document for c.
func MarshalCoupon(c *coupon.Coupon) []byte {
	var e jx.Encoder
	EncodeCoupon(&e, c)
	return e.Bytes()
}

// UnmarshalCoupon decodes and validates a coupon document.
func UnmarshalCoupon(data []byte) (*coupon.Coupon, error) {
	return DecodeCoupon(jx.DecodeBytes(data))
}

// EncodeDetails writes only the parameters of v's variant.
func EncodeDetails(e *jx.Encoder, v coupon.Variant) {
	e.Obj(func(e *jx.Encoder) {
		switch v := v.(type) {
		case coupon.CartWise:
			e.Field("threshold", func(e *jx.Encoder) { writeDecimal(e, v.Threshold) })
			e.Field("discount", func(e *jx.Encoder) { writeDecimal(e, v.DiscountPercent) })
		case coupon.ProductWise:
			e.Field("product_id", func(e *jx.Encoder) { e.Int64(v.ProductID) })
			e.Field("discount", func(e *jx.Encoder) { writeDecimal(e, v.DiscountPercent) })
		case coupon.BuyXGetY:
			e.Field("buy_products", func(e *jx.Encoder) { writeProducts(e, v.Buy) })
			e.Field("get_products", func(e *jx.Encoder) { writeProducts(e, v.Get) })
			e.Field("repetition_limit", func(e *jx.Encoder) { e.Int(v.RepetitionLimit) })
		}
	})
}

// MarshalDetails returns the details object for v.
func MarshalDetails(v coupon.Variant) []byte {
	var e jx.Encoder
	EncodeDetails(&e, v)
	return e.Bytes()
}

// EncodeApplicable writes the applicable-coupons list.
func EncodeApplicable(e *jx.Encoder, list []coupon.Applicable) {
	e.Arr(func(e *jx.Encoder) {
		for _, a := range list {
			e.Obj(func(e *jx.Encoder) {
				e.Field("coupon_id", func(e *jx.Encoder) { e.Str(a.CouponID) })
				e.Field("type", func(e *jx.Encoder) { e.Str(string(a.Type)) })
				e.Field("discount", func(e *jx.Encoder) { writeDecimal(e, a.Discount) })
			})
		}
	})
}

// EncodePricedCart writes the updated cart. Field names follow the public
// API: the subtotal is "total_price" and line discounts are "total_discount".
func EncodePricedCart(e *jx.Encoder, pc coupon.PricedCart) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, item := range pc.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("product_id", func(e *jx.Encoder) { e.Int64(item.ProductID) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(item.Quantity) })
						e.Field("price", func(e *jx.Encoder) { writeDecimal(e, item.Price) })
						e.Field("total_discount", func(e *jx.Encoder) { writeDecimal(e, item.DiscountAmount) })
					})
				}
			})
		})
		e.Field("total_price", func(e *jx.Encoder) { writeDecimal(e, pc.Subtotal) })
		e.Field("total_discount", func(e *jx.Encoder) { writeDecimal(e, pc.TotalDiscount) })
		e.Field("final_price", func(e *jx.Encoder) { writeDecimal(e, pc.FinalPrice) })
	})
}

func writeProducts(e *jx.Encoder, ps []coupon.ProductQuantity) {
	e.Arr(func(e *jx.Encoder) {
		for _, p := range ps {
			e.Obj(func(e *jx.Encoder) {
				e.Field("product_id", func(e *jx.Encoder) { e.Int64(p.ProductID) })
				e.Field("quantity", func(e *jx.Encoder) { e.Int(p.Quantity) })
			})
		}
	})
}

// writeDecimal emits v as a JSON number without going through float64.
func writeDecimal(e *jx.Encoder, v decimal.Decimal) {
	e.Raw([]byte(v.String()))
}

func writeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

func writeOptTime(e *jx.Encoder, t *time.Time) {
	if t == nil {
		e.Null()
		return
	}
	writeTime(e, *t)
}
