// internal/services/pricing_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/greenbasket/commerce-backend/internal/models"
	"github.com/greenbasket/commerce-backend/internal/money"
)

// goldPricer is the slice of GoldPriceService that pricing needs; tests
// substitute a fixed-rate implementation.
type goldPricer interface {
	CurrentPricePerGram(ctx context.Context, currency string) decimal.Decimal
}

type PricingService struct {
	db   *gorm.DB
	gold goldPricer
	log  *logrus.Entry
}

// PriceQuoteResult is the price exposure for one product or variant in one
// country's currency.
type PriceQuoteResult struct {
	ProductID       uint        `json:"product_id"`
	VariantID       *uint       `json:"variant_id,omitempty"`
	CountryCode     string      `json:"country_code"`
	Currency        string      `json:"currency"`
	BasePrice       money.Money `json:"-"`
	DiscountedPrice money.Money `json:"-"`

	// String forms for serialization at the exposure boundary.
	Base       string `json:"base_price"`
	Discounted string `json:"discounted_price"`
}

func NewPricingService(db *gorm.DB, gold goldPricer) *PricingService {
	return &PricingService{
		db:   db,
		gold: gold,
		log:  logrus.WithField("component", "pricing"),
	}
}

// CurrencyForCountry maps the two-letter country code of a pricing call to
// the currency prices are denominated in.
func CurrencyForCountry(countryCode string) string {
	switch strings.ToUpper(countryCode) {
	case "AE":
		return "AED"
	case "US":
		return "USD"
	default:
		return "INR"
	}
}

// BasePriceForCountry selects the country-specific list price before
// discount. Unset or negative price fields normalize to zero via the legacy
// fallback chain.
func (s *PricingService) BasePriceForCountry(ctx context.Context, p *models.Product, countryCode string) money.Money {
	cc := strings.ToUpper(countryCode)
	currency := CurrencyForCountry(cc)

	switch cc {
	case "AE":
		if p.AEDPricingMode == models.AEDPricingGold {
			return s.goldLinkedPrice(ctx, p)
		}
		if p.PriceAEDStatic != nil {
			return money.New(nonNegative(*p.PriceAEDStatic), currency)
		}
		return money.New(firstPositive(p.PriceINR, p.Price), currency)
	case "US":
		return money.New(firstPositive(p.PriceUSD, p.Price), currency)
	default:
		return money.New(firstPositive(p.PriceINR, p.Price), currency)
	}
}

// goldLinkedPrice derives the AED price from the live spot quote:
// weight × spot + making charge, marked up by gold_markup_percent when set.
func (s *PricingService) goldLinkedPrice(ctx context.Context, p *models.Product) money.Money {
	spot := s.gold.CurrentPricePerGram(ctx, "AED")
	base := nonNegative(p.GoldWeightG).Mul(spot).Add(nonNegative(p.GoldMakingCharge))
	if !p.GoldMarkupPercent.IsZero() {
		base = base.Mul(decimal.NewFromInt(100).Add(p.GoldMarkupPercent)).
			Div(decimal.NewFromInt(100))
	}
	return money.New(base, "AED").Quantize()
}

// DiscountedPriceForCountry applies the product's discount percent to the
// country base price, quantized at the boundary.
func (s *PricingService) DiscountedPriceForCountry(ctx context.Context, p *models.Product, countryCode string) money.Money {
	price := s.BasePriceForCountry(ctx, p, countryCode)
	if p.DiscountPercent != 0 {
		price = price.ApplyPercentDiscount(decimal.NewFromInt(int64(p.DiscountPercent)))
	}
	return price.Quantize()
}

// VariantUnitPrice resolves a variant's effective unit price: the price
// override when present, else the product base for the country; then the
// variant's discount override — an explicit 0 included — else the product's
// discount percent.
func (s *PricingService) VariantUnitPrice(ctx context.Context, v *models.ProductVariant, p *models.Product, countryCode string) money.Money {
	var base money.Money
	if v.PriceOverride != nil {
		base = money.New(nonNegative(*v.PriceOverride), CurrencyForCountry(countryCode))
	} else {
		base = s.BasePriceForCountry(ctx, p, countryCode)
	}
	base = base.Quantize()

	discount := p.DiscountPercent
	if v.DiscountOverride != nil {
		discount = *v.DiscountOverride
	}
	if discount != 0 {
		base = base.ApplyPercentDiscount(decimal.NewFromInt(int64(discount)))
	}
	return base.Quantize()
}

// UnitPriceForLine prices a cart line: the variant path when the line carries
// one, else the product's discounted price. Associations must be loaded.
func (s *PricingService) UnitPriceForLine(ctx context.Context, item *models.CartItem, countryCode string) money.Money {
	if item.VariantID != nil && item.Variant != nil {
		return s.VariantUnitPrice(ctx, item.Variant, item.Product, countryCode)
	}
	return s.DiscountedPriceForCountry(ctx, item.Product, countryCode)
}

// PricePerKg derives the per-kilogram price for weighted variants, or nil
// when the variant has no convertible weight.
func (s *PricingService) PricePerKg(ctx context.Context, v *models.ProductVariant, p *models.Product, countryCode string) *money.Money {
	grams := v.GramsEquivalent()
	if grams == nil || grams.IsZero() {
		return nil
	}
	unit := s.VariantUnitPrice(ctx, v, p, countryCode)
	perKg := money.New(
		unit.Amount().Mul(decimal.NewFromInt(1000)).Div(*grams),
		unit.Currency(),
	).Quantize()
	return &perKg
}

// Quote loads the product (and variant, when requested) and computes the
// exposed base and discounted prices for the country.
func (s *PricingService) Quote(ctx context.Context, productID uint, variantID *uint, countryCode string) (*PriceQuoteResult, error) {
	var product models.Product
	if err := s.db.WithContext(ctx).First(&product, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	result := &PriceQuoteResult{
		ProductID:   productID,
		VariantID:   variantID,
		CountryCode: strings.ToUpper(countryCode),
		Currency:    CurrencyForCountry(countryCode),
	}

	if variantID != nil {
		var variant models.ProductVariant
		if err := s.db.WithContext(ctx).
			Where("id = ? AND product_id = ?", *variantID, productID).
			First(&variant).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrVariantNotFound
			}
			return nil, fmt.Errorf("database error: %w", err)
		}

		result.BasePrice = s.BasePriceForCountry(ctx, &product, countryCode).Quantize()
		if variant.PriceOverride != nil {
			result.BasePrice = money.New(nonNegative(*variant.PriceOverride), result.Currency).Quantize()
		}
		result.DiscountedPrice = s.VariantUnitPrice(ctx, &variant, &product, countryCode)
	} else {
		result.BasePrice = s.BasePriceForCountry(ctx, &product, countryCode).Quantize()
		result.DiscountedPrice = s.DiscountedPriceForCountry(ctx, &product, countryCode)
	}

	result.Base = result.BasePrice.String()
	result.Discounted = result.DiscountedPrice.String()
	return result, nil
}

// nonNegative clamps negative or garbage decimal inputs to zero; missing
// prices behave as zero everywhere in the resolver.
func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// firstPositive picks the country price, falling back to the legacy generic
// price when zero or unset.
func firstPositive(primary, fallback decimal.Decimal) decimal.Decimal {
	if primary.IsPositive() {
		return primary
	}
	if fallback.IsPositive() {
		return fallback
	}
	return decimal.Zero
}
