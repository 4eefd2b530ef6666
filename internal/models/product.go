// internal/models/product.go
package models

import (
	"errors"
	"strings"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LimitedStockThreshold is the quantity under which a product is flagged as
// limited stock.
const LimitedStockThreshold = 20

type Category struct {
	BaseModel
	Name     string `json:"name" gorm:"size:120;not null"`
	Slug     string `json:"slug" gorm:"size:140;uniqueIndex"`
	ParentID *uint  `json:"parent_id,omitempty"`
	Icon     string `json:"icon,omitempty" gorm:"size:60"`
}

type Product struct {
	BaseModel
	CategoryID uint     `json:"category_id" gorm:"index;not null"`
	Category   Category `json:"category,omitempty" gorm:"foreignKey:CategoryID"`
	Name       string   `json:"name" gorm:"size:160;index;not null"`
	Slug       string   `json:"slug" gorm:"size:180;uniqueIndex"`

	// Ownership / store attribution
	VendorID *uint   `json:"vendor_id,omitempty" gorm:"index"`
	Vendor   *Vendor `json:"vendor,omitempty" gorm:"foreignKey:VendorID"`
	StoreID  *uint   `json:"store_id,omitempty" gorm:"index"`
	Store    *Store  `json:"store,omitempty" gorm:"foreignKey:StoreID"`

	// Product-level stock pool, used when a line has no variant.
	Quantity int `json:"quantity" gorm:"not null;default:0"`

	// Country-specific base prices; Price is the legacy fallback.
	PriceINR decimal.Decimal `json:"price_inr" gorm:"type:numeric(12,2);default:0"`
	PriceUSD decimal.Decimal `json:"price_usd" gorm:"type:numeric(12,2);default:0"`
	Price    decimal.Decimal `json:"price" gorm:"type:numeric(12,2);default:0"`

	// AED pricing control
	AEDPricingMode AEDPricingMode   `json:"aed_pricing_mode" gorm:"size:12;default:'STATIC'"`
	PriceAEDStatic *decimal.Decimal `json:"price_aed_static,omitempty" gorm:"type:numeric(12,2)"`

	// GOLD mode inputs
	GoldWeightG       decimal.Decimal `json:"gold_weight_g" gorm:"type:numeric(10,3);default:0"`
	GoldMakingCharge  decimal.Decimal `json:"gold_making_charge" gorm:"type:numeric(10,2);default:0"`
	GoldMarkupPercent decimal.Decimal `json:"gold_markup_percent" gorm:"type:numeric(5,2);default:0"`

	DiscountPercent int `json:"discount_percent" gorm:"default:0"`

	// Derived from Quantity on every mutation, never set independently.
	InStock      bool `json:"in_stock" gorm:"default:true"`
	LimitedStock bool `json:"limited_stock" gorm:"default:false"`

	Featured    bool `json:"featured" gorm:"default:false"`
	NewArrival  bool `json:"new_arrival" gorm:"default:false"`
	IsPublished bool `json:"is_published" gorm:"default:true;index"`

	Description string         `json:"description,omitempty" gorm:"type:text"`
	Allergens   pq.StringArray `json:"allergens,omitempty" gorm:"type:text[]"`
	Tags        pq.StringArray `json:"tags,omitempty" gorm:"type:text[]"`

	SoldCount    int             `json:"sold_count" gorm:"default:0"`
	ReviewsCount int             `json:"reviews_count" gorm:"default:0"`
	RatingAvg    decimal.Decimal `json:"rating_avg" gorm:"type:numeric(3,2);default:0"`

	Variants []ProductVariant `json:"variants,omitempty" gorm:"foreignKey:ProductID"`
}

// RecomputeStockFlags derives in_stock / limited_stock from the quantity.
func (p *Product) RecomputeStockFlags() {
	p.InStock = p.Quantity > 0
	p.LimitedStock = p.Quantity > 0 && p.Quantity < LimitedStockThreshold
}

func (p *Product) BeforeSave(tx *gorm.DB) error {
	if p.Slug == "" {
		p.Slug = Slugify(p.Name)
	}
	if p.Quantity < 0 {
		p.Quantity = 0
	}
	p.RecomputeStockFlags()
	return nil
}

type ProductVariant struct {
	BaseModel
	ProductID  uint      `json:"product_id" gorm:"index:idx_variants_product_active;not null"`
	Product    *Product  `json:"product,omitempty" gorm:"foreignKey:ProductID"`
	SKU        string    `json:"sku" gorm:"size:64;uniqueIndex;not null"`
	Attributes StringMap `json:"attributes,omitempty" gorm:"type:jsonb"`

	// Overrides fall back to the product's values when absent. An explicit
	// discount override of 0 still wins over the product percent.
	PriceOverride    *decimal.Decimal `json:"price_override,omitempty" gorm:"type:numeric(10,2)"`
	DiscountOverride *int             `json:"discount_override,omitempty"`

	// Independent stock pool from the product's.
	Quantity int  `json:"quantity" gorm:"not null;default:0"`
	IsActive bool `json:"is_active" gorm:"index:idx_variants_product_active;default:true"`

	WeightValue *decimal.Decimal `json:"weight_value,omitempty" gorm:"type:numeric(10,3)"`
	WeightUnit  *WeightUnit      `json:"weight_unit,omitempty" gorm:"size:10;index"`

	MinOrderQty int `json:"min_order_qty" gorm:"default:1"`
	StepQty     int `json:"step_qty" gorm:"default:1"`
}

func (v *ProductVariant) BeforeSave(tx *gorm.DB) error {
	v.SKU = strings.TrimSpace(v.SKU)
	if v.WeightUnit != nil {
		upper := WeightUnit(strings.ToUpper(string(*v.WeightUnit)))
		v.WeightUnit = &upper
		if v.WeightValue == nil {
			return errors.New("weight_value is required when weight_unit is set")
		}
	}
	if v.Quantity < 0 {
		v.Quantity = 0
	}
	if v.MinOrderQty < 1 {
		v.MinOrderQty = 1
	}
	if v.StepQty < 1 {
		v.StepQty = 1
	}
	return nil
}

// GramsEquivalent converts the variant weight to grams (volume units map 1:1),
// or nil when no weight is set.
func (v *ProductVariant) GramsEquivalent() *decimal.Decimal {
	if v.WeightValue == nil || v.WeightUnit == nil {
		return nil
	}
	var grams decimal.Decimal
	switch *v.WeightUnit {
	case UnitKilograms, UnitLitre:
		grams = v.WeightValue.Mul(decimal.NewFromInt(1000))
	case UnitGrams, UnitMillilitre:
		grams = *v.WeightValue
	default:
		return nil
	}
	return &grams
}

// GoldPriceSnapshot is a timestamped external quote in currency per gram.
// Rows are append-only; the latest fresh row serves as the cache.
type GoldPriceSnapshot struct {
	BaseModel
	Source       string          `json:"source" gorm:"size:50;default:'manual'"`
	Currency     string          `json:"currency" gorm:"size:8;default:'AED'"`
	PricePerGram decimal.Decimal `json:"price_per_gram" gorm:"type:numeric(12,4);not null"`
}

type ProductReview struct {
	BaseModel
	ProductID  uint   `json:"product_id" gorm:"index;not null"`
	UserID     *uint  `json:"user_id,omitempty"`
	UserName   string `json:"user_name,omitempty" gorm:"size:150"`
	Rating     int    `json:"rating" gorm:"not null"`
	Title      string `json:"title,omitempty" gorm:"size:200"`
	Body       string `json:"body,omitempty" gorm:"type:text"`
	IsApproved bool   `json:"is_approved" gorm:"default:false"`
}

// Slugify lowercases and dash-joins a name for URL slugs.
func Slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
