// internal/pricing/promo.go
package pricing

import (
	"strings"
)

// Promo is a known discount code.
type Promo struct {
	Code            string `json:"code"`
	DiscountPercent int    `json:"discount_percent"`
	Description     string `json:"description"`
}

// DefaultPromos is the table used when the config file does not provide one.
var DefaultPromos = []Promo{
	{Code: "605KINGDOMBUILDERS", DiscountPercent: 50, Description: "Kingdom Builders discount"},
}

// Promos is the single, read-only promo code table shared by every entry point.
type Promos struct {
	byCode map[string]Promo
}

// NewPromos builds a lookup table. Codes are stored uppercase; percentages are clamped to 0-100.
func NewPromos(codes []Promo) *Promos {
	p := &Promos{byCode: make(map[string]Promo, len(codes))}
	for _, c := range codes {
		code := normalizeCode(c.Code)
		if code == "" {
			continue
		}
		c.Code = code
		c.DiscountPercent = clampPercent(c.DiscountPercent)
		p.byCode[code] = c
	}
	return p
}

// Resolve looks up a user-supplied code. An unknown or empty code is not an error.
func (p *Promos) Resolve(code string) (Promo, bool) {
	if p == nil {
		return Promo{}, false
	}
	promo, ok := p.byCode[normalizeCode(code)]
	return promo, ok
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func clampPercent(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
