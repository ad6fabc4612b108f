// internal/pricing/pricing.go
package pricing

import (
	"github.com/shopspring/decimal"
)

// Input is a single pricing request for one attendance tier.
type Input struct {
	BasePrice decimal.Decimal
	PromoCode string
	// PlaceholderWhenZero substitutes the engine's placeholder amount for a zero base price.
	// Only the internal (single paid tier) mode sets it.
	PlaceholderWhenZero bool
}

// Result is the outcome of pricing a tier.
type Result struct {
	OriginalPrice    decimal.Decimal `json:"original_price"`
	DiscountAmount   decimal.Decimal `json:"discount_amount"`
	FinalPrice       decimal.Decimal `json:"final_price"`
	AppliedPromoCode *string         `json:"applied_promo_code"`
	DiscountPercent  int             `json:"discount_percent"`
	Free             bool            `json:"free"`
	Placeholder      bool            `json:"placeholder"`
}

// Discounted reports whether a promo code reduced the price.
func (r Result) Discounted() bool {
	return r.AppliedPromoCode != nil && r.DiscountAmount.IsPositive()
}

// Engine computes discounted prices.
type Engine struct {
	promos      *Promos
	placeholder decimal.Decimal
}

// NewEngine creates a pricing engine. placeholder is the minimal chargeable amount used for
// zero-priced internal events.
func NewEngine(promos *Promos, placeholder decimal.Decimal) *Engine {
	return &Engine{promos: promos, placeholder: placeholder}
}

// Promos returns the table the engine resolves codes against.
func (e *Engine) Promos() *Promos {
	return e.promos
}

// Price applies an optional promo code to the base price.
func (e *Engine) Price(in Input) Result {
	original := in.BasePrice.Round(2)
	if original.IsNegative() {
		original = decimal.Zero
	}

	res := Result{
		OriginalPrice:  original,
		DiscountAmount: decimal.Zero,
		FinalPrice:     original,
	}

	if in.PlaceholderWhenZero && original.IsZero() && e.placeholder.IsPositive() {
		res.FinalPrice = e.placeholder
		res.Placeholder = true
		return res
	}

	if promo, ok := e.promos.Resolve(in.PromoCode); ok {
		code := promo.Code
		res.AppliedPromoCode = &code
		res.DiscountPercent = promo.DiscountPercent
		res.DiscountAmount = original.Mul(decimal.NewFromInt(int64(promo.DiscountPercent))).Div(decimal.NewFromInt(100)).Round(2)
		res.FinalPrice = decimal.Max(decimal.Zero, original.Sub(res.DiscountAmount))
	}

	res.Free = !res.FinalPrice.IsPositive()
	return res
}

// MinorUnits converts a dollar amount to cents, rounding half away from zero.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
