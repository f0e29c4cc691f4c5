package cartsync

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ShippingMethod selects the shipping fee added to a quote.
type ShippingMethod string

const (
	ShippingStandard ShippingMethod = "standard"
	ShippingExpress  ShippingMethod = "express"
)

var (
	// TaxRate is applied to the discounted item total.
	TaxRate = decimal.RequireFromString("0.07")

	shippingFees = map[ShippingMethod]decimal.Decimal{
		ShippingStandard: decimal.Zero,
		ShippingExpress:  decimal.RequireFromString("9.99"),
	}
)

// ParseShippingMethod accepts "standard" or "express"; an empty value means standard.
func ParseShippingMethod(raw string) (ShippingMethod, error) {
	method := ShippingMethod(strings.ToLower(strings.TrimSpace(raw)))
	if method == "" {
		return ShippingStandard, nil
	}
	if _, ok := shippingFees[method]; !ok {
		return "", fmt.Errorf("cartsync: unknown shipping method %q", raw)
	}
	return method, nil
}

// Summary is the checkout breakdown for a cart.
type Summary struct {
	Items    decimal.Decimal
	Discount decimal.Decimal
	Shipping decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// Quote prices state for checkout. Members pay the discounted item total. Tax is rounded to cents.
func Quote(state State, method ShippingMethod) Summary {
	totals := state.Totals()
	shipping, ok := shippingFees[method]
	if !ok {
		shipping = decimal.Zero
	}
	items := totals.DiscountedTotal
	tax := items.Mul(TaxRate).Round(2)
	return Summary{
		Items:    items,
		Discount: totals.Discount,
		Shipping: shipping,
		Tax:      tax,
		Total:    items.Add(shipping).Add(tax),
	}
}
