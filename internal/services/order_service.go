// internal/services/order_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/greenbasket/commerce-backend/internal/events"
	"github.com/greenbasket/commerce-backend/internal/models"
)

// ConfirmResult is the outcome exposed to the checkout caller.
type ConfirmResult struct {
	OK            bool               `json:"ok"`
	OrderID       uint               `json:"order_id"`
	Number        string             `json:"number,omitempty"`
	Status        models.OrderStatus `json:"status"`
	FailureReason string             `json:"failure_reason,omitempty"`
}

// OrderConfirmedPayload rides the post-commit order.confirmed event.
type OrderConfirmedPayload struct {
	Order *models.Order
	Items []models.OrderItem
}

// StockLowPayload rides the post-commit stock.low event for product pools
// that dropped under the limited-stock threshold.
type StockLowPayload struct {
	Pool        PoolRef
	NewQuantity int
}

type OrderService struct {
	db         *gorm.DB
	pricing    *PricingService
	stock      *StockService
	vendors    *VendorService
	verifier   PaymentVerifier
	dispatcher *events.Dispatcher
	maxRetries int
	log        *logrus.Entry
}

func NewOrderService(db *gorm.DB, pricing *PricingService, stock *StockService,
	vendors *VendorService, verifier PaymentVerifier, dispatcher *events.Dispatcher,
	maxRetries int) *OrderService {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &OrderService{
		db:         db,
		pricing:    pricing,
		stock:      stock,
		vendors:    vendors,
		verifier:   verifier,
		dispatcher: dispatcher,
		maxRetries: maxRetries,
		log:        logrus.WithField("component", "orders"),
	}
}

// CreateFromCart binds a cart to a new pending order. The binding is
// one-to-one and immutable; a cart already bound or checked out is rejected.
func (s *OrderService) CreateFromCart(ctx context.Context, userID, cartID uint,
	countryCode string, method models.PaymentMethod,
	details *models.OrderCheckoutDetails) (*models.Order, error) {

	var order *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cart models.Cart
		if err := tx.First(&cart, cartID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCartNotFound
			}
			return fmt.Errorf("database error: %w", err)
		}
		if cart.UserID != userID {
			return ErrCartNotFound
		}
		if cart.CheckedOut {
			return ErrCartCheckedOut
		}

		var itemCount int64
		if err := tx.Model(&models.CartItem{}).Where("cart_id = ?", cart.ID).
			Count(&itemCount).Error; err != nil {
			return fmt.Errorf("database error: %w", err)
		}
		if itemCount == 0 {
			return errors.New("cart is empty, nothing to order")
		}

		order = &models.Order{
			Number:         uuid.NewString(),
			UserID:         userID,
			CartID:         cart.ID,
			Status:         models.OrderStatusPending,
			ShipmentStatus: models.ShipmentStatusPending,
			PaymentMethod:  string(method),
			CountryCode:    countryCode,
			Currency:       CurrencyForCountry(countryCode),
		}
		if err := tx.Create(order).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		payment := &models.OrderPayment{
			OrderID:  order.ID,
			Method:   method,
			Status:   models.PaymentStatusPending,
			Currency: order.Currency,
		}
		if method == models.PaymentMethodCashOnDelivery {
			payment.Provider = "cod"
		}
		if err := tx.Create(payment).Error; err != nil {
			return fmt.Errorf("failed to create order payment: %w", err)
		}

		if details != nil {
			details.OrderID = order.ID
			if err := tx.Create(details).Error; err != nil {
				return fmt.Errorf("failed to save checkout details: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Confirm drives pending → confirmed. The transition snapshots unit prices,
// decrements every stock pool all-or-nothing, posts vendor aggregates and
// marks COD payments paid, all inside one transaction. Serialization
// conflicts retry the whole transition so snapshots are retaken
// consistently. Confirming a non-pending order is a success no-op.
func (s *OrderService) Confirm(ctx context.Context, orderID uint, confirmation *PaymentConfirmation) (*ConfirmResult, error) {
	if confirmation == nil {
		return nil, errors.New("payment confirmation is required")
	}
	if err := s.verifier.Verify(confirmation); err != nil {
		return nil, err
	}

	var result *ConfirmResult
	var err error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		result, err = s.confirmOnce(ctx, orderID, confirmation)
		if err == nil || !isRetryableConflict(err) {
			break
		}
		s.log.WithFields(logrus.Fields{
			"order_id": orderID,
			"attempt":  attempt,
		}).Warn("confirm hit a transaction conflict, retrying")
	}

	if err != nil {
		var stockErr *InsufficientStockError
		if errors.As(err, &stockErr) {
			// Recoverable: the caller can reduce quantities or drop the
			// out-of-stock line and retry. The order stays pending.
			return &ConfirmResult{
				OK:            false,
				OrderID:       orderID,
				Status:        models.OrderStatusPending,
				FailureReason: "reduce quantity or remove out-of-stock item",
			}, err
		}
		s.log.WithError(err).WithField("order_id", orderID).Error("order confirmation failed")
		return &ConfirmResult{
			OK:            false,
			OrderID:       orderID,
			Status:        models.OrderStatusPending,
			FailureReason: "order confirmation failed, please contact support",
		}, err
	}
	return result, nil
}

func (s *OrderService) confirmOnce(ctx context.Context, orderID uint, confirmation *PaymentConfirmation) (*ConfirmResult, error) {
	var (
		result    *ConfirmResult
		snapItems []models.OrderItem
		movements []PoolMovement
		order     models.Order
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock the order row so concurrent confirms of the same order
		// serialize; the loser observes the flipped status and no-ops.
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("database error: %w", err)
		}

		if order.Status != models.OrderStatusPending {
			result = &ConfirmResult{
				OK:      true,
				OrderID: order.ID,
				Number:  order.Number,
				Status:  order.Status,
			}
			return nil
		}

		items, err := s.loadCartItems(tx, order.CartID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return errors.New("order cart is empty")
		}

		// Snapshot unit prices; they are fixed from here on.
		snapItems = make([]models.OrderItem, 0, len(items))
		lines := make([]StockLine, 0, len(items))
		for i := range items {
			item := &items[i]
			if item.Quantity <= 0 {
				continue
			}

			unit := s.pricing.UnitPriceForLine(ctx, item, order.CountryCode)
			snap := models.OrderItem{
				OrderID:   order.ID,
				ProductID: item.ProductID,
				VariantID: item.VariantID,
				Quantity:  item.Quantity,
				UnitPrice: unit.Amount(),
				Currency:  unit.Currency(),
			}
			if item.Product != nil && item.Product.VendorID != nil {
				snap.VendorID = item.Product.VendorID
			}
			snapItems = append(snapItems, snap)

			lines = append(lines, StockLine{
				Pool:     PoolRef{ProductID: item.ProductID, VariantID: item.VariantID},
				Quantity: item.Quantity,
			})
		}

		movements, err = s.stock.ReserveAndCommitTx(tx, lines)
		if err != nil {
			return err
		}

		for i := range snapItems {
			if err := tx.Create(&snapItems[i]).Error; err != nil {
				return fmt.Errorf("failed to snapshot order item: %w", err)
			}
			if err := tx.Model(&models.Product{}).
				Where("id = ?", snapItems[i].ProductID).
				UpdateColumn("sold_count", gorm.Expr("sold_count + ?", snapItems[i].Quantity)).Error; err != nil {
				return fmt.Errorf("failed to update sold count: %w", err)
			}
		}

		// Post vendor aggregates in ascending vendor order for a stable
		// write sequence across concurrent confirms.
		deltas := aggregateVendorDeltas(snapItems)
		vendorIDs := make([]uint, 0, len(deltas))
		for id := range deltas {
			vendorIDs = append(vendorIDs, id)
		}
		sort.Slice(vendorIDs, func(i, j int) bool { return vendorIDs[i] < vendorIDs[j] })
		for _, id := range vendorIDs {
			if err := s.vendors.ApplyDeltaTx(tx, id, deltas[id]); err != nil {
				return err
			}
		}

		if err := tx.Model(&order).Updates(map[string]interface{}{
			"status":          models.OrderStatusConfirmed,
			"shipment_status": models.ShipmentStatusPlaced,
		}).Error; err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}
		order.Status = models.OrderStatusConfirmed
		order.ShipmentStatus = models.ShipmentStatusPlaced

		if err := tx.Model(&models.Cart{}).Where("id = ?", order.CartID).
			UpdateColumn("checked_out", true).Error; err != nil {
			return fmt.Errorf("failed to close cart: %w", err)
		}

		if err := s.recordPayment(tx, &order, confirmation); err != nil {
			return err
		}

		result = &ConfirmResult{
			OK:      true,
			OrderID: order.ID,
			Number:  order.Number,
			Status:  models.OrderStatusConfirmed,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Post-commit side effects: receipts, notifications, low-stock alerts.
	// Best effort only; the order is already confirmed.
	if len(snapItems) > 0 && s.dispatcher != nil {
		s.dispatcher.Publish(ctx, events.Event{
			Name:    events.OrderConfirmed,
			Payload: &OrderConfirmedPayload{Order: &order, Items: snapItems},
		})
		for _, m := range movements {
			if m.Pool.VariantID == nil && m.NewQuantity < models.LimitedStockThreshold {
				s.dispatcher.Publish(ctx, events.Event{
					Name:    events.StockLow,
					Payload: &StockLowPayload{Pool: m.Pool, NewQuantity: m.NewQuantity},
				})
			}
		}
	}

	return result, nil
}

// recordPayment updates the order's payment row from the confirmation event.
// Cash-on-delivery is marked paid synchronously at confirm time.
func (s *OrderService) recordPayment(tx *gorm.DB, order *models.Order, confirmation *PaymentConfirmation) error {
	var payment models.OrderPayment
	err := tx.Where("order_id = ?", order.ID).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		payment = models.OrderPayment{
			OrderID:  order.ID,
			Method:   confirmation.Method,
			Currency: order.Currency,
		}
	} else if err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	payment.Method = confirmation.Method
	if confirmation.Provider != "" {
		payment.Provider = confirmation.Provider
	}
	if confirmation.TransactionID != "" {
		payment.TransactionID = confirmation.TransactionID
	}
	if confirmation.Amount.IsPositive() {
		payment.Amount = confirmation.Amount
	}
	if confirmation.Currency != "" {
		payment.Currency = confirmation.Currency
	}

	if confirmation.Method == models.PaymentMethodCashOnDelivery {
		if payment.Status != models.PaymentStatusPaid {
			payment.Status = models.PaymentStatusPaid
		}
	} else {
		payment.Status = models.PaymentStatusPaid
	}

	if err := tx.Save(&payment).Error; err != nil {
		return fmt.Errorf("failed to record payment: %w", err)
	}
	return nil
}

// Cancel moves a pending order to cancelled. Confirmed orders are out of
// reach: no compensating stock or vendor-ledger path exists.
func (s *OrderService) Cancel(ctx context.Context, orderID uint) (*ConfirmResult, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("database error: %w", err)
		}
		if order.Status != models.OrderStatusPending {
			return nil
		}
		if err := tx.Model(&order).
			UpdateColumn("status", models.OrderStatusCancelled).Error; err != nil {
			return fmt.Errorf("failed to cancel order: %w", err)
		}
		order.Status = models.OrderStatusCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &ConfirmResult{
		OK:      true,
		OrderID: order.ID,
		Number:  order.Number,
		Status:  order.Status,
	}, nil
}

// UpdateShipmentStatus is the fulfillment-staff path; it never touches order
// status, stock or payments.
func (s *OrderService) UpdateShipmentStatus(ctx context.Context, orderID uint, status models.ShipmentStatus) error {
	switch status {
	case models.ShipmentStatusPlaced, models.ShipmentStatusPending,
		models.ShipmentStatusProcessing, models.ShipmentStatusDelivered:
	default:
		return fmt.Errorf("unknown shipment status %q", status)
	}

	result := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", orderID).
		UpdateColumn("shipment_status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to update shipment status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// Get loads an order with its items and payment.
func (s *OrderService) Get(ctx context.Context, orderID uint) (*models.Order, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).
		Preload("Items").
		Preload("Payment").
		First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &order, nil
}

// GrandTotal recomputes an order's total from its snapshot items; exposed for
// COD confirmation synthesis and receipts.
func (s *OrderService) GrandTotal(items []models.OrderItem) decimal.Decimal {
	total := decimal.Zero
	for i := range items {
		total = total.Add(items[i].LineTotal())
	}
	return total.Round(2)
}

func (s *OrderService) loadCartItems(tx *gorm.DB, cartID uint) ([]models.CartItem, error) {
	var items []models.CartItem
	err := tx.
		Preload("Product").
		Preload("Variant").
		Where("cart_id = ?", cartID).
		Order("id").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load cart items: %w", err)
	}
	return items, nil
}
