// internal/services/notification_service.go
package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/greenbasket/commerce-backend/internal/events"
	"github.com/greenbasket/commerce-backend/internal/models"
)

// NotificationService records admin-facing notification rows from
// post-commit events: confirmed orders and product pools running low.
type NotificationService struct {
	db  *gorm.DB
	log *logrus.Entry
}

func NewNotificationService(db *gorm.DB, dispatcher *events.Dispatcher) *NotificationService {
	s := &NotificationService{
		db:  db,
		log: logrus.WithField("component", "notifications"),
	}
	if dispatcher != nil {
		dispatcher.Subscribe(events.OrderConfirmed, s.onOrderConfirmed)
		dispatcher.Subscribe(events.StockLow, s.onStockLow)
	}
	return s
}

func (s *NotificationService) onOrderConfirmed(ctx context.Context, e events.Event) {
	payload, ok := e.Payload.(*OrderConfirmedPayload)
	if !ok || payload.Order == nil {
		return
	}

	n := &models.AdminNotification{
		Type:    "order_confirmed",
		Title:   "New order confirmed",
		Message: fmt.Sprintf("Order %s confirmed with %d item(s)", payload.Order.Number, len(payload.Items)),
		Data: models.JSONB{
			"order_id": payload.Order.ID,
			"number":   payload.Order.Number,
			"currency": payload.Order.Currency,
		},
	}
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		s.log.WithError(err).WithField("order_id", payload.Order.ID).
			Warn("failed to record order notification")
	}
}

func (s *NotificationService) onStockLow(ctx context.Context, e events.Event) {
	payload, ok := e.Payload.(*StockLowPayload)
	if !ok {
		return
	}

	n := &models.AdminNotification{
		Type:     "stock_low",
		Title:    "Stock running low",
		Message:  fmt.Sprintf("Pool %s is down to %d unit(s)", payload.Pool.String(), payload.NewQuantity),
		Priority: "high",
		Data: models.JSONB{
			"product_id": payload.Pool.ProductID,
			"quantity":   payload.NewQuantity,
		},
	}
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		s.log.WithError(err).WithField("product_id", payload.Pool.ProductID).
			Warn("failed to record stock notification")
	}
}

// List returns notifications newest first, optionally filtered by status.
func (s *NotificationService) List(ctx context.Context, status models.NotificationStatus, limit int) ([]models.AdminNotification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := s.db.WithContext(ctx).Model(&models.AdminNotification{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var notifications []models.AdminNotification
	if err := query.Order("created_at DESC").Limit(limit).Find(&notifications).Error; err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return notifications, nil
}

// MarkRead flips a notification to read.
func (s *NotificationService) MarkRead(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Model(&models.AdminNotification{}).
		Where("id = ?", id).
		UpdateColumn("status", models.NotificationStatusRead)
	if result.Error != nil {
		return fmt.Errorf("database error: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("notification %d not found", id)
	}
	return nil
}
