package checkout

import (
	"os"
	"strconv"
)

// Pricing holds the site's shipping settings. Shipping is a step
// function: free at or above the threshold, a flat fee below it.
type Pricing struct {
	FreeShippingThreshold int64
	ShippingFee           int64
}

// PricingFromEnv reads shipping settings, falling back to the store
// defaults (free above 1000, flat 99 below).
func PricingFromEnv() Pricing {
	p := Pricing{FreeShippingThreshold: 1000, ShippingFee: 99}
	if v, err := strconv.ParseInt(os.Getenv("FREE_SHIPPING_THRESHOLD"), 10, 64); err == nil {
		p.FreeShippingThreshold = v
	}
	if v, err := strconv.ParseInt(os.Getenv("SHIPPING_FEE"), 10, 64); err == nil {
		p.ShippingFee = v
	}
	return p
}

func (p Pricing) ShippingCost(subtotal int64) int64 {
	if subtotal >= p.FreeShippingThreshold {
		return 0
	}
	return p.ShippingFee
}

type Totals struct {
	Subtotal int64 `json:"subtotal"`
	Shipping int64 `json:"shipping"`
	Discount int64 `json:"discount"`
	Total    int64 `json:"total"`
}

func (p Pricing) Compute(subtotal, discount int64) Totals {
	shipping := p.ShippingCost(subtotal)
	return Totals{
		Subtotal: subtotal,
		Shipping: shipping,
		Discount: discount,
		Total:    subtotal + shipping - discount,
	}
}
