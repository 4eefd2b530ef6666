// internal/services/cart_service.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/greenbasket/commerce-backend/internal/models"
	"github.com/greenbasket/commerce-backend/internal/money"
)

// SubmittedLine is a client-submitted cart line, validated against the
// catalog before it becomes a CartItem.
type SubmittedLine struct {
	ProductID uint  `json:"product_id" validate:"required"`
	VariantID *uint `json:"variant_id,omitempty"`
	Quantity  int   `json:"quantity" validate:"required,min=1"`
}

// CartTotals is the cart's money exposure. Shipping and tax are deliberate
// zero placeholders, not bugs.
type CartTotals struct {
	CartID     uint   `json:"cart_id"`
	Currency   string `json:"currency"`
	Subtotal   string `json:"subtotal"`
	Shipping   string `json:"shipping"`
	Tax        string `json:"tax"`
	GrandTotal string `json:"grand_total"`
}

type CartService struct {
	db      *gorm.DB
	pricing *PricingService
	log     *logrus.Entry
}

func NewCartService(db *gorm.DB, pricing *PricingService) *CartService {
	return &CartService{
		db:      db,
		pricing: pricing,
		log:     logrus.WithField("component", "cart"),
	}
}

// GetOrCreateActiveCart returns the user's open cart, creating one when
// every previous cart has been checked out.
func (s *CartService) GetOrCreateActiveCart(ctx context.Context, userID uint) (*models.Cart, error) {
	var cart models.Cart
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND checked_out = ?", userID, false).
		Order("created_at DESC").
		First(&cart).Error
	if err == nil {
		return &cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("database error: %w", err)
	}

	cart = models.Cart{UserID: userID}
	if err := s.db.WithContext(ctx).Create(&cart).Error; err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	return &cart, nil
}

// AddOrMergeLine validates a submitted line and either inserts it or adds its
// quantity onto the existing (cart, product, variant) row.
func (s *CartService) AddOrMergeLine(ctx context.Context, cartID uint, line SubmittedLine) (*models.CartItem, error) {
	if line.Quantity <= 0 {
		return nil, errors.New("quantity must be positive")
	}

	cart, err := s.loadOpenCart(ctx, cartID)
	if err != nil {
		return nil, err
	}

	if _, _, err := s.validateLine(ctx, line); err != nil {
		return nil, err
	}

	var item models.CartItem
	query := s.db.WithContext(ctx).Where("cart_id = ? AND product_id = ?", cart.ID, line.ProductID)
	if line.VariantID != nil {
		query = query.Where("variant_id = ?", *line.VariantID)
	} else {
		query = query.Where("variant_id IS NULL")
	}

	err = query.First(&item).Error
	switch {
	case err == nil:
		if err := s.db.WithContext(ctx).Model(&item).
			UpdateColumn("quantity", gorm.Expr("quantity + ?", line.Quantity)).Error; err != nil {
			return nil, fmt.Errorf("failed to merge cart line: %w", err)
		}
		item.Quantity += line.Quantity
	case errors.Is(err, gorm.ErrRecordNotFound):
		item = models.CartItem{
			CartID:    cart.ID,
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
		}
		if err := s.db.WithContext(ctx).Create(&item).Error; err != nil {
			return nil, fmt.Errorf("failed to add cart line: %w", err)
		}
	default:
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &item, nil
}

// SetQuantity replaces a line's quantity; zero removes the line entirely
// (zero-quantity rows are never stored).
func (s *CartService) SetQuantity(ctx context.Context, cartID uint, line SubmittedLine) error {
	cart, err := s.loadOpenCart(ctx, cartID)
	if err != nil {
		return err
	}

	if line.Quantity < 0 {
		return errors.New("quantity must not be negative")
	}
	if line.Quantity == 0 {
		return s.RemoveLine(ctx, cart.ID, line.ProductID, line.VariantID)
	}

	if _, _, err := s.validateLine(ctx, line); err != nil {
		return err
	}

	query := s.db.WithContext(ctx).Model(&models.CartItem{}).
		Where("cart_id = ? AND product_id = ?", cart.ID, line.ProductID)
	if line.VariantID != nil {
		query = query.Where("variant_id = ?", *line.VariantID)
	} else {
		query = query.Where("variant_id IS NULL")
	}

	result := query.UpdateColumn("quantity", line.Quantity)
	if result.Error != nil {
		return fmt.Errorf("failed to set quantity: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		_, err := s.AddOrMergeLine(ctx, cart.ID, line)
		return err
	}
	return nil
}

func (s *CartService) RemoveLine(ctx context.Context, cartID uint, productID uint, variantID *uint) error {
	query := s.db.WithContext(ctx).Where("cart_id = ? AND product_id = ?", cartID, productID)
	if variantID != nil {
		query = query.Where("variant_id = ?", *variantID)
	} else {
		query = query.Where("variant_id IS NULL")
	}
	if err := query.Delete(&models.CartItem{}).Error; err != nil {
		return fmt.Errorf("failed to remove cart line: %w", err)
	}
	return nil
}

// Totals prices every line through the resolver and sums at full precision,
// quantizing the grand total once at the end.
func (s *CartService) Totals(ctx context.Context, cartID uint, countryCode string) (*CartTotals, error) {
	cart, err := s.loadOpenCart(ctx, cartID)
	if err != nil {
		return nil, err
	}

	items, err := s.LoadItems(ctx, cart.ID)
	if err != nil {
		return nil, err
	}

	currency := CurrencyForCountry(countryCode)
	subtotal := decimal.Zero
	for i := range items {
		unit := s.pricing.UnitPriceForLine(ctx, &items[i], countryCode)
		subtotal = subtotal.Add(unit.Amount().Mul(decimal.NewFromInt(int64(items[i].Quantity))))
	}

	shipping := money.Zero(currency)
	tax := money.Zero(currency)
	grand := money.New(subtotal, currency).Quantize()

	return &CartTotals{
		CartID:     cartID,
		Currency:   currency,
		Subtotal:   money.New(subtotal, currency).Quantize().String(),
		Shipping:   shipping.String(),
		Tax:        tax.String(),
		GrandTotal: grand.String(),
	}, nil
}

// LoadItems returns the cart's lines with product, variant and vendor
// associations loaded, in insertion order.
func (s *CartService) LoadItems(ctx context.Context, cartID uint) ([]models.CartItem, error) {
	var items []models.CartItem
	err := s.db.WithContext(ctx).
		Preload("Product").
		Preload("Product.Vendor").
		Preload("Variant").
		Where("cart_id = ?", cartID).
		Order("id").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load cart items: %w", err)
	}
	return items, nil
}

// BuildFromSubmission creates a fresh cart from an ordered client-submitted
// line list, validating each line against the catalog.
func (s *CartService) BuildFromSubmission(ctx context.Context, userID uint, lines []SubmittedLine) (*models.Cart, error) {
	if len(lines) == 0 {
		return nil, errors.New("cart submission is empty")
	}

	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, errors.New("quantity must be positive")
		}
	}

	// A submission may repeat a (product, variant) pair; rows are unique per
	// pair, so repeated lines collapse into one before insertion.
	merged := mergeSubmittedLines(lines)

	cart := &models.Cart{UserID: userID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(cart).Error; err != nil {
			return fmt.Errorf("failed to create cart: %w", err)
		}
		for _, line := range merged {
			if _, _, err := s.validateLine(ctx, line); err != nil {
				return err
			}
			item := models.CartItem{
				CartID:    cart.ID,
				ProductID: line.ProductID,
				VariantID: line.VariantID,
				Quantity:  line.Quantity,
			}
			if err := tx.Create(&item).Error; err != nil {
				return fmt.Errorf("failed to add cart line: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// mergeSubmittedLines collapses repeated (product, variant) lines into one,
// summing quantities and keeping first-seen order.
func mergeSubmittedLines(lines []SubmittedLine) []SubmittedLine {
	type lineKey struct {
		product    uint
		variant    uint
		hasVariant bool
	}
	merged := make([]SubmittedLine, 0, len(lines))
	index := make(map[lineKey]int, len(lines))
	for _, line := range lines {
		key := lineKey{product: line.ProductID}
		if line.VariantID != nil {
			key.variant = *line.VariantID
			key.hasVariant = true
		}
		if i, ok := index[key]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[key] = len(merged)
		merged = append(merged, line)
	}
	return merged
}

func (s *CartService) loadOpenCart(ctx context.Context, cartID uint) (*models.Cart, error) {
	var cart models.Cart
	if err := s.db.WithContext(ctx).First(&cart, cartID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	if cart.CheckedOut {
		return nil, ErrCartCheckedOut
	}
	return &cart, nil
}

// validateLine checks catalog existence, variant ownership and activity, and
// the variant's minimum/step order quantities.
func (s *CartService) validateLine(ctx context.Context, line SubmittedLine) (*models.Product, *models.ProductVariant, error) {
	var product models.Product
	if err := s.db.WithContext(ctx).First(&product, line.ProductID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrProductNotFound
		}
		return nil, nil, fmt.Errorf("database error: %w", err)
	}
	if !product.IsPublished {
		return nil, nil, ErrProductNotFound
	}

	if line.VariantID == nil {
		return &product, nil, nil
	}

	var variant models.ProductVariant
	if err := s.db.WithContext(ctx).
		Where("id = ? AND product_id = ?", *line.VariantID, line.ProductID).
		First(&variant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrVariantNotFound
		}
		return nil, nil, fmt.Errorf("database error: %w", err)
	}
	if !variant.IsActive {
		return nil, nil, ErrVariantNotFound
	}

	if line.Quantity < variant.MinOrderQty {
		return nil, nil, fmt.Errorf("minimum order quantity for %s is %d", variant.SKU, variant.MinOrderQty)
	}
	if variant.StepQty > 1 && (line.Quantity-variant.MinOrderQty)%variant.StepQty != 0 {
		return nil, nil, fmt.Errorf("quantity for %s must step by %d from %d", variant.SKU, variant.StepQty, variant.MinOrderQty)
	}

	return &product, &variant, nil
}
