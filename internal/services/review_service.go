// internal/services/review_service.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/greenbasket/commerce-backend/internal/events"
	"github.com/greenbasket/commerce-backend/internal/models"
)

// ReviewSavedPayload rides the review.saved event; the rating recompute
// subscriber reads the product id from it.
type ReviewSavedPayload struct {
	ProductID uint
	ReviewID  uint
}

type ReviewService struct {
	db         *gorm.DB
	dispatcher *events.Dispatcher
	log        *logrus.Entry
}

func NewReviewService(db *gorm.DB, dispatcher *events.Dispatcher) *ReviewService {
	s := &ReviewService{
		db:         db,
		dispatcher: dispatcher,
		log:        logrus.WithField("component", "reviews"),
	}
	if dispatcher != nil {
		dispatcher.Subscribe(events.ReviewSaved, s.onReviewSaved)
	}
	return s
}

// Save upserts a user's review of a product (one review per user+product)
// and schedules the product rating recompute as a post-write hook.
func (s *ReviewService) Save(ctx context.Context, userID uint, userName string, productID uint, rating int, title, body string) (*models.ProductReview, error) {
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("rating must be between 1 and 5, got %d", rating)
	}

	var exists int64
	if err := s.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ? AND is_published = ?", productID, true).
		Count(&exists).Error; err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if exists == 0 {
		return nil, ErrProductNotFound
	}

	var review models.ProductReview
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		First(&review).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		review = models.ProductReview{UserID: &userID, ProductID: productID}
	} else if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	review.UserName = userName
	review.Rating = rating
	review.Title = title
	review.Body = body
	review.IsApproved = true
	if err := s.db.WithContext(ctx).Save(&review).Error; err != nil {
		return nil, fmt.Errorf("failed to save review: %w", err)
	}

	if s.dispatcher != nil {
		s.dispatcher.Publish(ctx, events.Event{
			Name:    events.ReviewSaved,
			Payload: &ReviewSavedPayload{ProductID: productID, ReviewID: review.ID},
		})
	}
	return &review, nil
}

// ListForProduct returns a product's reviews newest first.
func (s *ReviewService) ListForProduct(ctx context.Context, productID uint, limit int) ([]models.ProductReview, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var reviews []models.ProductReview
	err := s.db.WithContext(ctx).
		Where("product_id = ? AND is_approved = ?", productID, true).
		Order("created_at DESC").
		Limit(limit).
		Find(&reviews).Error
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return reviews, nil
}

func (s *ReviewService) onReviewSaved(ctx context.Context, e events.Event) {
	payload, ok := e.Payload.(*ReviewSavedPayload)
	if !ok {
		return
	}
	if err := s.RecomputeRating(ctx, payload.ProductID); err != nil {
		s.log.WithError(err).WithField("product_id", payload.ProductID).
			Warn("rating recompute failed")
	}
}

// RecomputeRating refreshes the cached reviews_count and rating_avg columns
// from the review rows.
func (s *ReviewService) RecomputeRating(ctx context.Context, productID uint) error {
	var agg struct {
		Count int64
		Avg   float64
	}
	err := s.db.WithContext(ctx).Model(&models.ProductReview{}).
		Select("COUNT(*) AS count, COALESCE(AVG(rating), 0) AS avg").
		Where("product_id = ?", productID).
		Scan(&agg).Error
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	return s.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", productID).
		UpdateColumns(map[string]interface{}{
			"reviews_count": agg.Count,
			"rating_avg":    agg.Avg,
		}).Error
}
