// internal/services/storage_service.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/greenbasket/commerce-backend/internal/config"
	"github.com/greenbasket/commerce-backend/internal/events"
)

// StorageService archives order receipts to S3 after confirmation. Without
// AWS credentials it degrades to a no-op so local development needs no
// bucket.
type StorageService struct {
	s3Client *s3.S3
	bucket   string
	log      *logrus.Entry
}

type receiptLine struct {
	ProductID uint   `json:"product_id"`
	VariantID *uint  `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
}

type receiptDocument struct {
	Number      string        `json:"number"`
	OrderID     uint          `json:"order_id"`
	Currency    string        `json:"currency"`
	CountryCode string        `json:"country_code"`
	ConfirmedAt time.Time     `json:"confirmed_at"`
	Lines       []receiptLine `json:"lines"`
	GrandTotal  string        `json:"grand_total"`
}

func NewStorageService(cfg *config.Config, dispatcher *events.Dispatcher) (*StorageService, error) {
	svc := &StorageService{
		bucket: cfg.Storage.ReceiptBucket,
		log:    logrus.WithField("component", "storage"),
	}

	if cfg.Storage.AccessKeyID != "" {
		sess, err := session.NewSession(&aws.Config{
			Region: aws.String(cfg.Storage.Region),
			Credentials: credentials.NewStaticCredentials(
				cfg.Storage.AccessKeyID,
				cfg.Storage.SecretAccessKey,
				"",
			),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS session: %w", err)
		}
		svc.s3Client = s3.New(sess)
	}

	if dispatcher != nil {
		dispatcher.Subscribe(events.OrderConfirmed, svc.onOrderConfirmed)
	}
	return svc, nil
}

func (s *StorageService) onOrderConfirmed(ctx context.Context, e events.Event) {
	payload, ok := e.Payload.(*OrderConfirmedPayload)
	if !ok || payload.Order == nil {
		return
	}
	if err := s.ArchiveOrderReceipt(ctx, payload); err != nil {
		s.log.WithError(err).WithField("order_id", payload.Order.ID).
			Warn("receipt archival failed")
	}
}

// ArchiveOrderReceipt serializes the order snapshot as JSON and uploads it
// under receipts/<order-number>.json.
func (s *StorageService) ArchiveOrderReceipt(ctx context.Context, payload *OrderConfirmedPayload) error {
	if s.s3Client == nil || s.bucket == "" {
		return nil
	}

	doc := receiptDocument{
		Number:      payload.Order.Number,
		OrderID:     payload.Order.ID,
		Currency:    payload.Order.Currency,
		CountryCode: payload.Order.CountryCode,
		ConfirmedAt: time.Now().UTC(),
	}
	for i := range payload.Items {
		item := &payload.Items[i]
		doc.Lines = append(doc.Lines, receiptLine{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.StringFixed(2),
			LineTotal: item.LineTotal().StringFixed(2),
		})
	}
	total := decimal.Zero
	for i := range payload.Items {
		total = total.Add(payload.Items[i].LineTotal())
	}
	doc.GrandTotal = total.Round(2).StringFixed(2)

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to serialize receipt: %w", err)
	}

	key := fmt.Sprintf("receipts/%s.json", payload.Order.Number)
	_, err = s.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload receipt %s: %w", key, err)
	}

	s.log.WithFields(logrus.Fields{
		"order_id": payload.Order.ID,
		"key":      key,
	}).Info("receipt archived")
	return nil
}
