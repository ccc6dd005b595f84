// Package couponjson is the JSON wire format for coupons, carts and priced
// carts. The same shapes are used by the HTTP API, the cache, the store's
// details column and the ingest files.
package couponjson

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/coupon-service/internal/domain/coupon"
)

// Record is a decoded coupon document before validation.
type Record struct {
	ID        string
	CreatedAt time.Time
	Input     coupon.Input
}

// DecodeRecord reads a coupon document:
//
//	{"id":..., "type":..., "details":{...}, "expiration_date":..., "created_at":...}
//
// Unknown keys are skipped. The result is not validated; pass Record.Input to
// coupon.New.
func DecodeRecord(d *jx.Decoder) (Record, error) {
	var rec Record
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id", "_id":
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "id")
			}
			rec.ID = s
		case "type":
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "type")
			}
			rec.Input.Type = coupon.Kind(s)
		case "details":
			if err := DecodeDetails(d, &rec.Input); err != nil {
				return errors.Wrap(err, "details")
			}
		case "expiration_date":
			t, err := decodeOptTime(d)
			if err != nil {
				return errors.Wrap(err, "expiration_date")
			}
			rec.Input.Expiration = t
		case "created_at":
			t, err := decodeOptTime(d)
			if err != nil {
				return errors.Wrap(err, "created_at")
			}
			if t != nil {
				rec.CreatedAt = *t
			}
		default:
			return d.Skip()
		}
		return nil
	})
	return rec, err
}

// DecodeCoupon reads a coupon document and validates it.
func DecodeCoupon(d *jx.Decoder) (*coupon.Coupon, error) {
	rec, err := DecodeRecord(d)
	if err != nil {
		return nil, err
	}
	c, err := coupon.New(rec.ID, rec.Input)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = rec.CreatedAt
	return c, nil
}

// DecodeCoupons reads a JSON array of coupon documents.
func DecodeCoupons(d *jx.Decoder) ([]*coupon.Coupon, error) {
	var out []*coupon.Coupon
	err := d.Arr(func(d *jx.Decoder) error {
		c, err := DecodeCoupon(d)
		if err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	return out, err
}

// DecodeDetails reads the variant parameters object into in. All variant
// fields are accepted; coupon.New decides which ones matter.
func DecodeDetails(d *jx.Decoder, in *coupon.Input) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "threshold":
			v, err := decodeOptDecimal(d)
			if err != nil {
				return errors.Wrap(err, "threshold")
			}
			in.Threshold = v
		case "discount":
			v, err := decodeOptDecimal(d)
			if err != nil {
				return errors.Wrap(err, "discount")
			}
			in.Discount = v
		case "product_id":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v, err := d.Int64()
			if err != nil {
				return errors.Wrap(err, "product_id")
			}
			in.ProductID = &v
		case "buy_products":
			v, err := decodeProducts(d)
			if err != nil {
				return errors.Wrap(err, "buy_products")
			}
			in.BuyProducts = v
		case "get_products":
			v, err := decodeProducts(d)
			if err != nil {
				return errors.Wrap(err, "get_products")
			}
			in.GetProducts = v
		case "repetition_limit":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v, err := d.Int()
			if err != nil {
				return errors.Wrap(err, "repetition_limit")
			}
			in.RepetitionLimit = &v
		default:
			return d.Skip()
		}
		return nil
	})
}

func decodeProducts(d *jx.Decoder) ([]coupon.ProductQuantity, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	var out []coupon.ProductQuantity
	err := d.Arr(func(d *jx.Decoder) error {
		var pq coupon.ProductQuantity
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "product_id":
				v, err := d.Int64()
				if err != nil {
					return err
				}
				pq.ProductID = v
			case "quantity":
				v, err := d.Int()
				if err != nil {
					return err
				}
				pq.Quantity = v
			default:
				return d.Skip()
			}
			return nil
		}); err != nil {
			return err
		}
		out = append(out, pq)
		return nil
	})
	return out, err
}

// DecodeCart reads {"items":[{"product_id":1,"quantity":2,"price":9.5}]}.
// A missing or null items list yields an empty cart; validation is left to
// coupon.Cart.Validate.
func DecodeCart(d *jx.Decoder) (coupon.Cart, error) {
	var cart coupon.Cart
	if d.Next() == jx.Null {
		return cart, d.Null()
	}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "items" {
			return d.Skip()
		}
		if d.Next() == jx.Null {
			return d.Null()
		}
		return d.Arr(func(d *jx.Decoder) error {
			item, err := decodeItem(d)
			if err != nil {
				return err
			}
			cart.Items = append(cart.Items, item)
			return nil
		})
	})
	return cart, err
}

func decodeItem(d *jx.Decoder) (coupon.Item, error) {
	var item coupon.Item
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "product_id":
			v, err := d.Int64()
			if err != nil {
				return errors.Wrap(err, "product_id")
			}
			item.ProductID = v
		case "quantity":
			v, err := d.Int()
			if err != nil {
				return errors.Wrap(err, "quantity")
			}
			item.Quantity = v
		case "price":
			v, err := decodeDecimal(d)
			if err != nil {
				return errors.Wrap(err, "price")
			}
			item.Price = v
		default:
			return d.Skip()
		}
		return nil
	})
	return item, err
}

// decodeDecimal accepts a JSON number or a numeric string.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(string(n))
	default:
		return decimal.Zero, errors.Errorf("unexpected %s, want number", d.Next())
	}
}

func decodeOptDecimal(d *jx.Decoder) (*decimal.Decimal, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := decodeDecimal(d)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Accepted time layouts, most precise first.
var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", time.DateOnly}

func decodeOptTime(d *jx.Decoder) (*time.Time, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return nil, err
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, errors.Errorf("invalid time %q", s)
}
