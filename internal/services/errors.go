// internal/services/errors.go
package services

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrProductNotFound = errors.New("product not found")
	ErrVariantNotFound = errors.New("variant not found")
	ErrCartNotFound    = errors.New("cart not found")
	ErrVendorNotFound  = errors.New("vendor not found")

	// ErrCartCheckedOut guards against editing a cart already bound to a
	// confirmed order.
	ErrCartCheckedOut = errors.New("cart has already been checked out")

	// ErrConcurrentModification marks a storage-layer transaction conflict
	// during confirm. The whole transition is retried a bounded number of
	// times, so price snapshots are retaken consistently.
	ErrConcurrentModification = errors.New("concurrent modification, transaction aborted")

	// ErrPaymentNotVerified is returned when the external payment
	// confirmation fails verification.
	ErrPaymentNotVerified = errors.New("payment confirmation could not be verified")
)

// PoolRef identifies a stock pool: a product's own pool or a variant's
// independent pool.
type PoolRef struct {
	ProductID uint  `json:"product_id"`
	VariantID *uint `json:"variant_id,omitempty"`
}

func (p PoolRef) String() string {
	if p.VariantID != nil {
		return fmt.Sprintf("variant/%d", *p.VariantID)
	}
	return fmt.Sprintf("product/%d", p.ProductID)
}

// InsufficientStockError reports the first failing line, in cart order.
// It is recoverable: the caller can reduce quantities or drop the line and
// retry the confirm.
type InsufficientStockError struct {
	Pool      PoolRef `json:"pool"`
	Requested int     `json:"requested"`
	Available int     `json:"available"`
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d",
		e.Pool, e.Requested, e.Available)
}

// VendorLedgerError is fatal for a confirm transition: it rolls back the
// stock decrements and price snapshots and surfaces as an opaque failure.
type VendorLedgerError struct {
	VendorID uint
	Err      error
}

func (e *VendorLedgerError) Error() string {
	return fmt.Sprintf("vendor ledger write failed for vendor %d: %v", e.VendorID, e.Err)
}

func (e *VendorLedgerError) Unwrap() error { return e.Err }

// Postgres SQLSTATEs treated as retryable conflicts.
const (
	sqlstateSerializationFailure = "40001"
	sqlstateDeadlockDetected     = "40P01"
)

// isRetryableConflict reports whether the error is a serialization failure or
// deadlock that warrants retrying the whole confirm transition.
func isRetryableConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConcurrentModification) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == sqlstateSerializationFailure || pgErr.Code == sqlstateDeadlockDetected
	}
	return false
}
