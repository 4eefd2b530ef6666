// internal/services/cart_service_test.go
package services

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/suite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/greenbasket/commerce-backend/internal/database"
	"github.com/greenbasket/commerce-backend/internal/models"
)

type CartTestSuite struct {
	suite.Suite
	db      *gorm.DB
	pricing *PricingService
	carts   *CartService
}

func (s *CartTestSuite) SetupSuite() {
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		s.T().Skip("TEST_DATABASE_DSN not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	s.Require().NoError(err)
	s.Require().NoError(database.RunMigrations(db))
	s.db = db

	s.pricing = NewPricingService(db, &fixedGoldPricer{rate: dec(s.T(), "240.50")})
	s.carts = NewCartService(db, s.pricing)
}

func (s *CartTestSuite) SetupTest() {
	for _, table := range []string{"cart_items", "carts", "product_variants", "products", "categories"} {
		s.Require().NoError(s.db.Exec("DELETE FROM " + table).Error)
	}
}

func (s *CartTestSuite) seedProduct(name string, priceINR string) *models.Product {
	category := &models.Category{Name: "Cat " + name}
	s.Require().NoError(s.db.Create(category).Error)

	product := &models.Product{
		CategoryID:  category.ID,
		Name:        name,
		Quantity:    100,
		PriceINR:    dec(s.T(), priceINR),
		IsPublished: true,
	}
	s.Require().NoError(s.db.Create(product).Error)
	return product
}

func (s *CartTestSuite) seedVariant(product *models.Product, sku string, minQty, stepQty int) *models.ProductVariant {
	variant := &models.ProductVariant{
		ProductID:   product.ID,
		SKU:         sku,
		Quantity:    100,
		IsActive:    true,
		MinOrderQty: minQty,
		StepQty:     stepQty,
	}
	s.Require().NoError(s.db.Create(variant).Error)
	return variant
}

func (s *CartTestSuite) TestAddMergesDuplicateLines() {
	product := s.seedProduct("Oats", "120.00")
	ctx := context.Background()

	cart, err := s.carts.GetOrCreateActiveCart(ctx, 1)
	s.Require().NoError(err)

	_, err = s.carts.AddOrMergeLine(ctx, cart.ID, SubmittedLine{ProductID: product.ID, Quantity: 2})
	s.Require().NoError(err)
	item, err := s.carts.AddOrMergeLine(ctx, cart.ID, SubmittedLine{ProductID: product.ID, Quantity: 3})
	s.Require().NoError(err)
	s.Equal(5, item.Quantity)

	items, err := s.carts.LoadItems(ctx, cart.ID)
	s.Require().NoError(err)
	s.Len(items, 1)
}

func (s *CartTestSuite) TestVariantLinesAreDistinct() {
	product := s.seedProduct("Rice", "80.00")
	variant := s.seedVariant(product, "RICE-1KG", 1, 1)
	ctx := context.Background()

	cart, err := s.carts.GetOrCreateActiveCart(ctx, 2)
	s.Require().NoError(err)

	_, err = s.carts.AddOrMergeLine(ctx, cart.ID, SubmittedLine{ProductID: product.ID, Quantity: 1})
	s.Require().NoError(err)
	_, err = s.carts.AddOrMergeLine(ctx, cart.ID, SubmittedLine{ProductID: product.ID, VariantID: &variant.ID, Quantity: 1})
	s.Require().NoError(err)

	items, err := s.carts.LoadItems(ctx, cart.ID)
	s.Require().NoError(err)
	s.Len(items, 2)
}

func (s *CartTestSuite) TestSetQuantityZeroRemovesLine() {
	product := s.seedProduct("Tea", "150.00")
	ctx := context.Background()

	cart, err := s.carts.GetOrCreateActiveCart(ctx, 3)
	s.Require().NoError(err)

	_, err = s.carts.AddOrMergeLine(ctx, cart.ID, SubmittedLine{ProductID: product.ID, Quantity: 2})
	s.Require().NoError(err)

	err = s.carts.SetQuantity(ctx, cart.ID, SubmittedLine{ProductID: product.ID, Quantity: 0})
	s.Require().NoError(err)

	items, err := s.carts.LoadItems(ctx, cart.ID)
	s.Require().NoError(err)
	s.Empty(items)
}

func (s *CartTestSuite) TestSetQuantityInsertsMissingLine() {
	product := s.seedProduct("Coffee", "450.00")
	ctx := context.Background()

	cart, err := s.carts.GetOrCreateActiveCart(ctx, 4)
	s.Require().NoError(err)

	err = s.carts.SetQuantity(ctx, cart.ID, SubmittedLine{ProductID: product.ID, Quantity: 2})
	s.Require().NoError(err)

	items, err := s.carts.LoadItems(ctx, cart.ID)
	s.Require().NoError(err)
	s.Require().Len(items, 1)
	s.Equal(2, items[0].Quantity)
}

func (s *CartTestSuite) TestUnpublishedProductRejected() {
	product := s.seedProduct("Hidden", "10.00")
	s.Require().NoError(s.db.Model(product).UpdateColumn("is_published", false).Error)
	ctx := context.Background()

	cart, err := s.carts.GetOrCreateActiveCart(ctx, 5)
	s.Require().NoError(err)

	_, err = s.carts.AddOrMergeLine(ctx, cart.ID, SubmittedLine{ProductID: product.ID, Quantity: 1})
	s.True(errors.Is(err, ErrProductNotFound))
}

func (s *CartTestSuite) TestVariantMinAndStepQuantity() {
	product := s.seedProduct("Spice Mix", "60.00")
	variant := s.seedVariant(product, "SPICE-250G", 2, 2)
	ctx := context.Background()

	cart, err := s.carts.GetOrCreateActiveCart(ctx, 6)
	s.Require().NoError(err)

	_, err = s.carts.AddOrMergeLine(ctx, cart.ID, SubmittedLine{ProductID: product.ID, VariantID: &variant.ID, Quantity: 1})
	s.Error(err, "below minimum")

	_, err = s.carts.AddOrMergeLine(ctx, cart.ID, SubmittedLine{ProductID: product.ID, VariantID: &variant.ID, Quantity: 3})
	s.Error(err, "off step")

	_, err = s.carts.AddOrMergeLine(ctx, cart.ID, SubmittedLine{ProductID: product.ID, VariantID: &variant.ID, Quantity: 4})
	s.NoError(err)
}

func (s *CartTestSuite) TestTotals() {
	// The resolver quantizes the unit price (33.335 -> 33.34) before the
	// lines are summed.
	product := s.seedProduct("Ghee", "33.335")
	ctx := context.Background()

	cart, err := s.carts.GetOrCreateActiveCart(ctx, 7)
	s.Require().NoError(err)

	_, err = s.carts.AddOrMergeLine(ctx, cart.ID, SubmittedLine{ProductID: product.ID, Quantity: 3})
	s.Require().NoError(err)

	totals, err := s.carts.Totals(ctx, cart.ID, "IN")
	s.Require().NoError(err)
	s.Equal("INR", totals.Currency)
	s.Equal("100.02", totals.Subtotal)
	s.Equal("0.00", totals.Shipping)
	s.Equal("0.00", totals.Tax)
	s.Equal(totals.Subtotal, totals.GrandTotal)
}

func (s *CartTestSuite) TestCheckedOutCartRejectsMutation() {
	product := s.seedProduct("Jaggery", "45.00")
	ctx := context.Background()

	cart, err := s.carts.GetOrCreateActiveCart(ctx, 8)
	s.Require().NoError(err)
	_, err = s.carts.AddOrMergeLine(ctx, cart.ID, SubmittedLine{ProductID: product.ID, Quantity: 1})
	s.Require().NoError(err)

	s.Require().NoError(s.db.Model(&models.Cart{}).Where("id = ?", cart.ID).
		UpdateColumn("checked_out", true).Error)

	_, err = s.carts.AddOrMergeLine(ctx, cart.ID, SubmittedLine{ProductID: product.ID, Quantity: 1})
	s.True(errors.Is(err, ErrCartCheckedOut))

	// A fresh cart is handed out for the next purchase.
	next, err := s.carts.GetOrCreateActiveCart(ctx, 8)
	s.Require().NoError(err)
	s.NotEqual(cart.ID, next.ID)
}

func (s *CartTestSuite) TestBuildFromSubmissionMergesDuplicateLines() {
	product := s.seedProduct("Millet", "90.00")
	variant := s.seedVariant(product, "MILLET-1KG", 1, 1)
	ctx := context.Background()

	// The same variant named through distinct allocations still merges.
	first, second := variant.ID, variant.ID
	cart, err := s.carts.BuildFromSubmission(ctx, 9, []SubmittedLine{
		{ProductID: product.ID, Quantity: 1},
		{ProductID: product.ID, VariantID: &first, Quantity: 2},
		{ProductID: product.ID, Quantity: 2},
		{ProductID: product.ID, VariantID: &second, Quantity: 1},
	})
	s.Require().NoError(err)

	items, err := s.carts.LoadItems(ctx, cart.ID)
	s.Require().NoError(err)
	s.Require().Len(items, 2)
	s.Nil(items[0].VariantID)
	s.Equal(3, items[0].Quantity)
	s.Require().NotNil(items[1].VariantID)
	s.Equal(variant.ID, *items[1].VariantID)
	s.Equal(3, items[1].Quantity)
}

func (s *CartTestSuite) TestTotalsRejectCheckedOutCart() {
	product := s.seedProduct("Honeycomb", "210.00")
	ctx := context.Background()

	cart, err := s.carts.GetOrCreateActiveCart(ctx, 10)
	s.Require().NoError(err)
	_, err = s.carts.AddOrMergeLine(ctx, cart.ID, SubmittedLine{ProductID: product.ID, Quantity: 1})
	s.Require().NoError(err)

	s.Require().NoError(s.db.Model(&models.Cart{}).Where("id = ?", cart.ID).
		UpdateColumn("checked_out", true).Error)

	_, err = s.carts.Totals(ctx, cart.ID, "IN")
	s.True(errors.Is(err, ErrCartCheckedOut))
}

func TestCartTestSuite(t *testing.T) {
	suite.Run(t, new(CartTestSuite))
}
