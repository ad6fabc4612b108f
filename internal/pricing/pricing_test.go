package pricing

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newTestEngine() *Engine {
	return NewEngine(NewPromos(DefaultPromos), decimal.RequireFromString("0.01"))
}

func TestKingdomBuildersHalvesPrice(t *testing.T) {
	res := newTestEngine().Price(Input{BasePrice: decimal.NewFromInt(100), PromoCode: "605KINGDOMBUILDERS"})

	assert.Equal(t, "50", res.DiscountAmount.String())
	assert.Equal(t, "50", res.FinalPrice.String())
	require.NotNil(t, res.AppliedPromoCode)
	assert.Equal(t, "605KINGDOMBUILDERS", *res.AppliedPromoCode)
	assert.Equal(t, 50, res.DiscountPercent)
	assert.True(t, res.Discounted())
	assert.False(t, res.Free)
}

func TestPromoLookupIsCaseInsensitive(t *testing.T) {
	promos := NewPromos(DefaultPromos)

	promo, ok := promos.Resolve("  605kingdombuilders ")
	require.True(t, ok)
	assert.Equal(t, 50, promo.DiscountPercent)

	_, ok = promos.Resolve("NOPE")
	assert.False(t, ok)
	_, ok = promos.Resolve("")
	assert.False(t, ok)
}

func TestUnknownCodeMatchesNoCode(t *testing.T) {
	engine := newTestEngine()
	base := decimal.RequireFromString("75.50")

	withUnknown := engine.Price(Input{BasePrice: base, PromoCode: "BOGUS"})
	withNone := engine.Price(Input{BasePrice: base})

	assert.Equal(t, withNone, withUnknown)
	assert.Nil(t, withUnknown.AppliedPromoCode)
}

func TestZeroBaseIsFree(t *testing.T) {
	res := newTestEngine().Price(Input{BasePrice: decimal.Zero})

	assert.True(t, res.Free)
	assert.False(t, res.Placeholder)
	assert.True(t, res.FinalPrice.IsZero())
}

func TestFullDiscountIsFree(t *testing.T) {
	engine := NewEngine(NewPromos([]Promo{{Code: "GRACE", DiscountPercent: 100}}), decimal.Zero)

	res := engine.Price(Input{BasePrice: decimal.NewFromInt(40), PromoCode: "grace"})

	assert.True(t, res.Free)
	assert.True(t, res.FinalPrice.IsZero())
	assert.Equal(t, "40", res.DiscountAmount.String())
}

func TestInternalZeroPriceUsesPlaceholder(t *testing.T) {
	res := newTestEngine().Price(Input{BasePrice: decimal.Zero, PlaceholderWhenZero: true})

	assert.True(t, res.Placeholder)
	assert.False(t, res.Free)
	assert.Equal(t, "0.01", res.FinalPrice.String())
	assert.Equal(t, int64(1), MinorUnits(res.FinalPrice))
}

func TestMinorUnitsRounds(t *testing.T) {
	assert.Equal(t, int64(5000), MinorUnits(decimal.NewFromInt(50)))
	assert.Equal(t, int64(1999), MinorUnits(decimal.RequireFromString("19.99")))
	assert.Equal(t, int64(1000), MinorUnits(decimal.RequireFromString("9.995")))
}

func TestPriceNeverExceedsOriginal(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cents := rapid.Int64Range(0, 10_000_000).Draw(t, "cents")
		percent := rapid.IntRange(0, 100).Draw(t, "percent")

		engine := NewEngine(NewPromos([]Promo{{Code: "PROP", DiscountPercent: percent}}), decimal.Zero)
		base := decimal.New(cents, -2)

		res := engine.Price(Input{BasePrice: base, PromoCode: "PROP"})

		discount := base.Mul(decimal.NewFromInt(int64(percent))).Div(decimal.NewFromInt(100)).Round(2)
		want := decimal.Max(decimal.Zero, base.Sub(discount))

		if !res.FinalPrice.Equal(want) {
			t.Fatalf("final price %s, want %s", res.FinalPrice, want)
		}
		if res.FinalPrice.GreaterThan(base) {
			t.Fatalf("final price %s exceeds base %s", res.FinalPrice, base)
		}
		if res.FinalPrice.IsNegative() {
			t.Fatalf("final price %s is negative", res.FinalPrice)
		}
		if !res.OriginalPrice.Sub(res.DiscountAmount).Equal(res.FinalPrice) {
			t.Fatalf("original - discount != final: %s - %s != %s", res.OriginalPrice, res.DiscountAmount, res.FinalPrice)
		}
		if res.Free != res.FinalPrice.IsZero() {
			t.Fatalf("free flag %v for final %s", res.Free, res.FinalPrice)
		}
	})
}

func TestHandleValidatePromo(t *testing.T) {
	h := NewHandler(NewPromos(DefaultPromos))

	rec := httptest.NewRecorder()
	h.HandleValidatePromo(rec, httptest.NewRequest(http.MethodPost, "/api/promo-codes/validate", strings.NewReader(`{"code":" 605kingdombuilders "}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"valid":true,"code":"605KINGDOMBUILDERS","discountPercent":50,"description":"Kingdom Builders discount"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.HandleValidatePromo(rec, httptest.NewRequest(http.MethodPost, "/api/promo-codes/validate", strings.NewReader(`{"code":"NOPE"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"valid":false}`, rec.Body.String())
}
