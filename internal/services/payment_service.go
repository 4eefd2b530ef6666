// internal/services/payment_service.go
package services

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"

	"github.com/greenbasket/commerce-backend/internal/config"
	"github.com/greenbasket/commerce-backend/internal/models"
)

// PaymentConfirmation is the event consumed from the payment collaborator.
// For cash-on-delivery it is synthesized locally at confirm time.
type PaymentConfirmation struct {
	Method        models.PaymentMethod `json:"method" validate:"required"`
	Provider      string               `json:"provider,omitempty"`
	TransactionID string               `json:"transaction_id,omitempty"`
	Amount        decimal.Decimal      `json:"amount"`
	Currency      string               `json:"currency,omitempty"`
}

// PaymentVerifier checks a confirmation against its provider: verify or
// fail, nothing more. Gateway protocol details live behind this boundary.
type PaymentVerifier interface {
	Verify(confirmation *PaymentConfirmation) error
}

// StripeVerifier confirms card payments by checking the referenced payment
// intent has actually succeeded.
type StripeVerifier struct {
	log *logrus.Entry
}

func NewStripeVerifier(cfg *config.Config) *StripeVerifier {
	stripe.Key = cfg.Payment.StripeSecretKey
	return &StripeVerifier{
		log: logrus.WithField("component", "payments"),
	}
}

func (v *StripeVerifier) Verify(confirmation *PaymentConfirmation) error {
	// COD confirmations are local; there is nothing to verify upstream.
	if confirmation.Method == models.PaymentMethodCashOnDelivery {
		return nil
	}

	if confirmation.TransactionID == "" {
		return fmt.Errorf("%w: missing transaction id", ErrPaymentNotVerified)
	}

	pi, err := paymentintent.Get(confirmation.TransactionID, nil)
	if err != nil {
		v.log.WithError(err).WithField("transaction_id", confirmation.TransactionID).
			Warn("payment intent lookup failed")
		return fmt.Errorf("%w: %v", ErrPaymentNotVerified, err)
	}

	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return fmt.Errorf("%w: payment intent status %s", ErrPaymentNotVerified, pi.Status)
	}

	return nil
}

// NewCODConfirmation synthesizes the confirmation event for a
// cash-on-delivery order.
func NewCODConfirmation(amount decimal.Decimal, currency string) *PaymentConfirmation {
	return &PaymentConfirmation{
		Method:        models.PaymentMethodCashOnDelivery,
		Provider:      "cod",
		TransactionID: "cod-" + uuid.NewString(),
		Amount:        amount,
		Currency:      strings.ToUpper(currency),
	}
}
