// internal/services/order_service_test.go
package services

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/greenbasket/commerce-backend/internal/database"
	"github.com/greenbasket/commerce-backend/internal/events"
	"github.com/greenbasket/commerce-backend/internal/models"
)

// okVerifier accepts every confirmation.
type okVerifier struct{}

func (okVerifier) Verify(*PaymentConfirmation) error { return nil }

// OrderWorkflowTestSuite runs against a throwaway Postgres database; set
// TEST_DATABASE_DSN to enable it.
type OrderWorkflowTestSuite struct {
	suite.Suite
	db      *gorm.DB
	pricing *PricingService
	stock   *StockService
	vendors *VendorService
	orders  *OrderService
	carts   *CartService
}

func (s *OrderWorkflowTestSuite) SetupSuite() {
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
	s.stock = NewStockService(db)
	s.vendors = NewVendorService(db)
	s.carts = NewCartService(db, s.pricing)
	s.orders = NewOrderService(db, s.pricing, s.stock, s.vendors,
		okVerifier{}, events.NewDispatcher(), 3)
}

func (s *OrderWorkflowTestSuite) SetupTest() {
	tables := []string{
		"order_payments", "order_checkout_details", "order_items", "orders",
		"cart_items", "carts", "product_variants", "products", "vendors",
		"stores", "categories", "admin_notifications",
	}
	for _, table := range tables {
		s.Require().NoError(s.db.Exec("DELETE FROM " + table).Error)
	}
}

func (s *OrderWorkflowTestSuite) seedVendor() *models.Vendor {
	vendor := &models.Vendor{UserID: 1000, DisplayName: "Fresh Farm"}
	s.Require().NoError(s.db.Create(vendor).Error)
	return vendor
}

func (s *OrderWorkflowTestSuite) seedProduct(name string, qty int, priceINR string, vendorID *uint) *models.Product {
	category := &models.Category{Name: "Test " + name}
	s.Require().NoError(s.db.Create(category).Error)

	product := &models.Product{
		CategoryID:  category.ID,
		Name:        name,
		VendorID:    vendorID,
		Quantity:    qty,
		PriceINR:    dec(s.T(), priceINR),
		IsPublished: true,
	}
	s.Require().NoError(s.db.Create(product).Error)
	return product
}

func (s *OrderWorkflowTestSuite) seedPendingOrder(userID uint, lines []SubmittedLine) *models.Order {
	cart, err := s.carts.BuildFromSubmission(context.Background(), userID, lines)
	s.Require().NoError(err)

	order, err := s.orders.CreateFromCart(context.Background(), userID, cart.ID,
		"IN", models.PaymentMethodCashOnDelivery, nil)
	s.Require().NoError(err)
	return order
}

func (s *OrderWorkflowTestSuite) codConfirmation() *PaymentConfirmation {
	return NewCODConfirmation(dec(s.T(), "0"), "INR")
}

func (s *OrderWorkflowTestSuite) TestConfirmHappyPath() {
	vendor := s.seedVendor()
	product := s.seedProduct("Almonds", 10, "250.00", &vendor.ID)

	order := s.seedPendingOrder(1, []SubmittedLine{
		{ProductID: product.ID, Quantity: 3},
	})

	result, err := s.orders.Confirm(context.Background(), order.ID, s.codConfirmation())
	s.Require().NoError(err)
	s.True(result.OK)
	s.Equal(models.OrderStatusConfirmed, result.Status)

	var reloaded models.Product
	s.Require().NoError(s.db.First(&reloaded, product.ID).Error)
	s.Equal(7, reloaded.Quantity)
	s.Equal(3, reloaded.SoldCount)
	s.True(reloaded.InStock)
	s.True(reloaded.LimitedStock)

	var items []models.OrderItem
	s.Require().NoError(s.db.Where("order_id = ?", order.ID).Find(&items).Error)
	s.Require().Len(items, 1)
	s.Equal("250.00", items[0].UnitPrice.StringFixed(2))
	s.Equal("INR", items[0].Currency)

	var payment models.OrderPayment
	s.Require().NoError(s.db.Where("order_id = ?", order.ID).First(&payment).Error)
	s.Equal(models.PaymentStatusPaid, payment.Status)

	var cart models.Cart
	s.Require().NoError(s.db.First(&cart, order.CartID).Error)
	s.True(cart.CheckedOut)

	snapshot, err := s.vendors.Snapshot(context.Background(), vendor.ID)
	s.Require().NoError(err)
	s.Equal(3, snapshot.TotalUnitsSold)
	s.Equal("750.00", snapshot.TotalRevenue)
}

func (s *OrderWorkflowTestSuite) TestConfirmInsufficientStockRollsBackEverything() {
	vendor := s.seedVendor()
	plenty := s.seedProduct("Cashews", 50, "100.00", &vendor.ID)
	scarce := s.seedProduct("Saffron", 2, "900.00", &vendor.ID)

	order := s.seedPendingOrder(2, []SubmittedLine{
		{ProductID: plenty.ID, Quantity: 5},
		{ProductID: scarce.ID, Quantity: 3},
	})

	result, err := s.orders.Confirm(context.Background(), order.ID, s.codConfirmation())
	s.Require().Error(err)

	var stockErr *InsufficientStockError
	s.Require().True(errors.As(err, &stockErr))
	s.Equal(scarce.ID, stockErr.Pool.ProductID)
	s.Equal(3, stockErr.Requested)
	s.Equal(2, stockErr.Available)

	s.Require().NotNil(result)
	s.False(result.OK)
	s.Equal(models.OrderStatusPending, result.Status)

	// The first pool must be untouched: all-or-nothing.
	var reloaded models.Product
	s.Require().NoError(s.db.First(&reloaded, plenty.ID).Error)
	s.Equal(50, reloaded.Quantity)
	s.Equal(0, reloaded.SoldCount)

	var itemCount int64
	s.Require().NoError(s.db.Model(&models.OrderItem{}).
		Where("order_id = ?", order.ID).Count(&itemCount).Error)
	s.Zero(itemCount)

	snapshot, err := s.vendors.Snapshot(context.Background(), vendor.ID)
	s.Require().NoError(err)
	s.Zero(snapshot.TotalUnitsSold)

	var reloadedOrder models.Order
	s.Require().NoError(s.db.First(&reloadedOrder, order.ID).Error)
	s.Equal(models.OrderStatusPending, reloadedOrder.Status)
}

func (s *OrderWorkflowTestSuite) TestConfirmIsIdempotent() {
	product := s.seedProduct("Dates", 10, "80.00", nil)

	order := s.seedPendingOrder(3, []SubmittedLine{
		{ProductID: product.ID, Quantity: 2},
	})

	first, err := s.orders.Confirm(context.Background(), order.ID, s.codConfirmation())
	s.Require().NoError(err)
	s.True(first.OK)

	second, err := s.orders.Confirm(context.Background(), order.ID, s.codConfirmation())
	s.Require().NoError(err)
	s.True(second.OK)
	s.Equal(models.OrderStatusConfirmed, second.Status)

	// No double decrement.
	var reloaded models.Product
	s.Require().NoError(s.db.First(&reloaded, product.ID).Error)
	s.Equal(8, reloaded.Quantity)
	s.Equal(2, reloaded.SoldCount)
}

func (s *OrderWorkflowTestSuite) TestConcurrentConfirmsOfSameOrder() {
	product := s.seedProduct("Walnuts", 10, "150.00", nil)

	order := s.seedPendingOrder(4, []SubmittedLine{
		{ProductID: product.ID, Quantity: 4},
	})

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.orders.Confirm(context.Background(), order.ID, s.codConfirmation())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		s.NoError(err, "racer %d", i)
	}

	// Exactly one transition applied the decrement.
	var reloaded models.Product
	s.Require().NoError(s.db.First(&reloaded, product.ID).Error)
	s.Equal(6, reloaded.Quantity)
	s.Equal(4, reloaded.SoldCount)
}

func (s *OrderWorkflowTestSuite) TestConcurrentOrdersOnSamePool() {
	product := s.seedProduct("Pistachios", 10, "200.00", nil)

	const racers = 4
	orders := make([]*models.Order, racers)
	for i := 0; i < racers; i++ {
		orders[i] = s.seedPendingOrder(uint(100+i), []SubmittedLine{
			{ProductID: product.ID, Quantity: 4},
		})
	}

	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.orders.Confirm(context.Background(), orders[i].ID, s.codConfirmation())
		}(i)
	}
	wg.Wait()

	confirmed, rejected := 0, 0
	for _, err := range errs {
		if err == nil {
			confirmed++
			continue
		}
		var stockErr *InsufficientStockError
		s.Require().True(errors.As(err, &stockErr), "unexpected error: %v", err)
		rejected++
	}

	// 10 units with 4 per order: exactly two confirms fit.
	s.Equal(2, confirmed)
	s.Equal(2, rejected)

	var reloaded models.Product
	s.Require().NoError(s.db.First(&reloaded, product.ID).Error)
	s.Equal(2, reloaded.Quantity)
	s.Equal(8, reloaded.SoldCount)
}

func (s *OrderWorkflowTestSuite) TestCancelPendingOrder() {
	product := s.seedProduct("Raisins", 5, "60.00", nil)

	order := s.seedPendingOrder(5, []SubmittedLine{
		{ProductID: product.ID, Quantity: 1},
	})

	result, err := s.orders.Cancel(context.Background(), order.ID)
	s.Require().NoError(err)
	s.Equal(models.OrderStatusCancelled, result.Status)

	// Cancelling never touched stock; nothing was reserved while pending.
	var reloaded models.Product
	s.Require().NoError(s.db.First(&reloaded, product.ID).Error)
	s.Equal(5, reloaded.Quantity)

	// Confirming a cancelled order is a no-op that reports the final state.
	confirmResult, err := s.orders.Confirm(context.Background(), order.ID, s.codConfirmation())
	s.Require().NoError(err)
	s.Equal(models.OrderStatusCancelled, confirmResult.Status)
}

func (s *OrderWorkflowTestSuite) TestCheckoutRejectsBoundCart() {
	product := s.seedProduct("Figs", 5, "90.00", nil)

	cart, err := s.carts.BuildFromSubmission(context.Background(), 6, []SubmittedLine{
		{ProductID: product.ID, Quantity: 1},
	})
	s.Require().NoError(err)

	_, err = s.orders.CreateFromCart(context.Background(), 6, cart.ID,
		"IN", models.PaymentMethodCard, nil)
	s.Require().NoError(err)

	// The cart is bound one-to-one; a second order must fail on the unique
	// index even though the cart is not checked out yet.
	_, err = s.orders.CreateFromCart(context.Background(), 6, cart.ID,
		"IN", models.PaymentMethodCard, nil)
	s.Error(err)
}

func (s *OrderWorkflowTestSuite) TestShipmentStatusIndependentOfOrderStatus() {
	product := s.seedProduct("Honey", 5, "300.00", nil)

	order := s.seedPendingOrder(7, []SubmittedLine{
		{ProductID: product.ID, Quantity: 1},
	})

	err := s.orders.UpdateShipmentStatus(context.Background(), order.ID, models.ShipmentStatusProcessing)
	s.Require().NoError(err)

	var reloaded models.Order
	s.Require().NoError(s.db.First(&reloaded, order.ID).Error)
	s.Equal(models.ShipmentStatusProcessing, reloaded.ShipmentStatus)
	s.Equal(models.OrderStatusPending, reloaded.Status)

	s.Error(s.orders.UpdateShipmentStatus(context.Background(), order.ID, models.ShipmentStatus("teleported")))
}

func (s *OrderWorkflowTestSuite) seedVariant(product *models.Product, sku string, qty int) *models.ProductVariant {
	variant := &models.ProductVariant{
		ProductID: product.ID,
		SKU:       sku,
		Quantity:  qty,
		IsActive:  true,
	}
	s.Require().NoError(s.db.Create(variant).Error)
	return variant
}

func (s *OrderWorkflowTestSuite) TestBatchAccumulatesDuplicateVariantLines() {
	product := s.seedProduct("Cashews", 50, "300.00", nil)
	variant := s.seedVariant(product, "CASHEW-500G", 5)
	ctx := context.Background()

	// Both lines name the same variant pool through distinct allocations.
	first, second := variant.ID, variant.ID
	lines := []StockLine{
		{Pool: PoolRef{ProductID: product.ID, VariantID: &first}, Quantity: 3},
		{Pool: PoolRef{ProductID: product.ID, VariantID: &second}, Quantity: 3},
	}

	_, err := s.stock.ReserveAndCommit(ctx, lines)
	var stockErr *InsufficientStockError
	s.Require().ErrorAs(err, &stockErr)
	s.Equal(3, stockErr.Requested)
	s.Equal(2, stockErr.Available, "second line sees what the first left")

	var fresh models.ProductVariant
	s.Require().NoError(s.db.First(&fresh, variant.ID).Error)
	s.Equal(5, fresh.Quantity, "failed batch must not decrement")

	lines[1].Quantity = 2
	movements, err := s.stock.ReserveAndCommit(ctx, lines)
	s.Require().NoError(err)
	s.Require().Len(movements, 1, "duplicate lines collapse into one movement")
	s.Equal(5, movements[0].Taken)
	s.Equal(0, movements[0].NewQuantity)

	s.Require().NoError(s.db.First(&fresh, variant.ID).Error)
	s.Equal(0, fresh.Quantity)
}

func TestOrderWorkflowTestSuite(t *testing.T) {
	suite.Run(t, new(OrderWorkflowTestSuite))
}

func TestConfirmRequiresConfirmation(t *testing.T) {
	svc := NewOrderService(nil, nil, nil, nil, okVerifier{}, nil, 3)
	_, err := svc.Confirm(context.Background(), 1, nil)
	assert.Error(t, err)
}

func TestNewCODConfirmation(t *testing.T) {
	conf := NewCODConfirmation(dec(t, "412.50"), "inr")
	assert.Equal(t, models.PaymentMethodCashOnDelivery, conf.Method)
	assert.Equal(t, "INR", conf.Currency)
	assert.Equal(t, "412.50", conf.Amount.StringFixed(2))
	assert.True(t, strings.HasPrefix(conf.TransactionID, "cod-"))
}
