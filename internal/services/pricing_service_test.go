// internal/services/pricing_service_test.go
package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/greenbasket/commerce-backend/internal/models"
)

// fixedGoldPricer returns one spot rate regardless of currency.
type fixedGoldPricer struct {
	rate decimal.Decimal
}

func (p *fixedGoldPricer) CurrentPricePerGram(ctx context.Context, currency string) decimal.Decimal {
	return p.rate
}

func newTestPricing(spot string) *PricingService {
	rate, _ := decimal.NewFromString(spot)
	return NewPricingService(nil, &fixedGoldPricer{rate: rate})
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	assert.NoError(t, err)
	return d
}

func TestCurrencyForCountry(t *testing.T) {
	assert.Equal(t, "AED", CurrencyForCountry("AE"))
	assert.Equal(t, "AED", CurrencyForCountry("ae"))
	assert.Equal(t, "USD", CurrencyForCountry("US"))
	assert.Equal(t, "INR", CurrencyForCountry("IN"))
	assert.Equal(t, "INR", CurrencyForCountry("GB"))
	assert.Equal(t, "INR", CurrencyForCountry(""))
}

func TestGoldLinkedPriceAE(t *testing.T) {
	svc := newTestPricing("240.50")

	product := &models.Product{
		AEDPricingMode:    models.AEDPricingGold,
		GoldWeightG:       dec(t, "10"),
		GoldMakingCharge:  dec(t, "150"),
		GoldMarkupPercent: dec(t, "12"),
	}

	// (10 x 240.50 + 150) x 1.12 = 2861.60
	price := svc.BasePriceForCountry(context.Background(), product, "AE")
	assert.Equal(t, "2861.60", price.String())
	assert.Equal(t, "AED", price.Currency())
}

func TestGoldLinkedPriceNoMarkup(t *testing.T) {
	svc := newTestPricing("200")

	product := &models.Product{
		AEDPricingMode:   models.AEDPricingGold,
		GoldWeightG:      dec(t, "2.5"),
		GoldMakingCharge: dec(t, "75.125"),
	}

	// 2.5 x 200 + 75.125 = 575.125 -> 575.13 after quantize
	price := svc.BasePriceForCountry(context.Background(), product, "AE")
	assert.Equal(t, "575.13", price.String())
}

func TestStaticAEDPrice(t *testing.T) {
	svc := newTestPricing("240.50")

	static := dec(t, "99.90")
	product := &models.Product{
		AEDPricingMode: models.AEDPricingStatic,
		PriceAEDStatic: &static,
		PriceINR:       dec(t, "2999"),
	}

	price := svc.BasePriceForCountry(context.Background(), product, "AE")
	assert.Equal(t, "99.9", price.Amount().String())
	assert.Equal(t, "AED", price.Currency())
}

func TestAEFallsBackToINRWithoutStaticPrice(t *testing.T) {
	svc := newTestPricing("240.50")

	product := &models.Product{
		AEDPricingMode: models.AEDPricingStatic,
		PriceINR:       dec(t, "2999"),
	}

	price := svc.BasePriceForCountry(context.Background(), product, "AE")
	assert.Equal(t, "2999.00", price.String())
	assert.Equal(t, "AED", price.Currency())
}

func TestUSPriceWithLegacyFallback(t *testing.T) {
	svc := newTestPricing("240.50")

	withUSD := &models.Product{
		PriceUSD: dec(t, "49.99"),
		Price:    dec(t, "39.99"),
	}
	price := svc.BasePriceForCountry(context.Background(), withUSD, "US")
	assert.Equal(t, "49.99", price.Amount().String())
	assert.Equal(t, "USD", price.Currency())

	legacyOnly := &models.Product{Price: dec(t, "39.99")}
	price = svc.BasePriceForCountry(context.Background(), legacyOnly, "US")
	assert.Equal(t, "39.99", price.Amount().String())

	neither := &models.Product{}
	price = svc.BasePriceForCountry(context.Background(), neither, "US")
	assert.True(t, price.IsZero())
}

func TestDefaultCountryUsesINR(t *testing.T) {
	svc := newTestPricing("240.50")

	product := &models.Product{
		PriceINR: dec(t, "1250"),
		PriceUSD: dec(t, "20"),
	}

	price := svc.BasePriceForCountry(context.Background(), product, "IN")
	assert.Equal(t, "1250.00", price.String())
	assert.Equal(t, "INR", price.Currency())

	// Unknown countries take the default chain too.
	price = svc.BasePriceForCountry(context.Background(), product, "FR")
	assert.Equal(t, "INR", price.Currency())
}

func TestDiscountedPrice(t *testing.T) {
	svc := newTestPricing("240.50")

	product := &models.Product{
		PriceINR:        dec(t, "250.00"),
		DiscountPercent: 15,
	}

	price := svc.DiscountedPriceForCountry(context.Background(), product, "IN")
	assert.Equal(t, "212.50", price.String())
}

func TestVariantPriceOverride(t *testing.T) {
	svc := newTestPricing("240.50")

	override := dec(t, "180.00")
	product := &models.Product{
		PriceINR:        dec(t, "250.00"),
		DiscountPercent: 10,
	}
	variant := &models.ProductVariant{PriceOverride: &override}

	// Override base, product discount still applies: 180 x 0.90 = 162.00
	price := svc.VariantUnitPrice(context.Background(), variant, product, "IN")
	assert.Equal(t, "162.00", price.String())
}

func TestVariantDiscountOverrideZeroWins(t *testing.T) {
	svc := newTestPricing("240.50")

	zero := 0
	product := &models.Product{
		PriceINR:        dec(t, "250.00"),
		DiscountPercent: 15,
	}
	variant := &models.ProductVariant{DiscountOverride: &zero}

	// An explicit zero override disables the product discount entirely.
	price := svc.VariantUnitPrice(context.Background(), variant, product, "IN")
	assert.Equal(t, "250.00", price.String())
}

func TestVariantDiscountOverride(t *testing.T) {
	svc := newTestPricing("240.50")

	thirty := 30
	product := &models.Product{
		PriceINR:        dec(t, "100.00"),
		DiscountPercent: 15,
	}
	variant := &models.ProductVariant{DiscountOverride: &thirty}

	price := svc.VariantUnitPrice(context.Background(), variant, product, "IN")
	assert.Equal(t, "70.00", price.String())
}

func TestUnitPriceForLinePrefersVariant(t *testing.T) {
	svc := newTestPricing("240.50")

	override := dec(t, "99.00")
	variantID := uint(7)
	item := &models.CartItem{
		ProductID: 3,
		VariantID: &variantID,
		Product:   &models.Product{PriceINR: dec(t, "250.00")},
		Variant:   &models.ProductVariant{PriceOverride: &override},
	}

	price := svc.UnitPriceForLine(context.Background(), item, "IN")
	assert.Equal(t, "99.00", price.String())

	// Without a variant the product path is used.
	item.VariantID = nil
	item.Variant = nil
	price = svc.UnitPriceForLine(context.Background(), item, "IN")
	assert.Equal(t, "250.00", price.String())
}

func TestPricePerKg(t *testing.T) {
	svc := newTestPricing("240.50")

	product := &models.Product{PriceINR: dec(t, "120.00")}
	weight := dec(t, "500")
	grams := models.UnitGrams
	variant := &models.ProductVariant{
		WeightValue: &weight,
		WeightUnit:  &grams,
	}

	// 120 for 500g -> 240.00 per kg
	perKg := svc.PricePerKg(context.Background(), variant, product, "IN")
	if assert.NotNil(t, perKg) {
		assert.Equal(t, "240.00", perKg.String())
	}

	// Piece-counted variants have no per-kg price.
	pcs := models.UnitPieces
	assert.Nil(t, svc.PricePerKg(context.Background(), &models.ProductVariant{WeightUnit: &pcs}, product, "IN"))
}

func TestNegativePricesClampToZero(t *testing.T) {
	svc := newTestPricing("240.50")

	static := dec(t, "-5.00")
	product := &models.Product{
		AEDPricingMode: models.AEDPricingStatic,
		PriceAEDStatic: &static,
	}

	price := svc.BasePriceForCountry(context.Background(), product, "AE")
	assert.True(t, price.IsZero())
}
