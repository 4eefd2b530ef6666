// internal/services/vendor_service.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/greenbasket/commerce-backend/internal/models"
)

// VendorDelta is one vendor's share of a confirmed order: units and revenue
// to add to the sales aggregates. Both are non-negative; the ledger only ever
// counts up.
type VendorDelta struct {
	Units   int
	Revenue decimal.Decimal
}

// VendorSalesSnapshot is the reporting exposure of a vendor's aggregates.
type VendorSalesSnapshot struct {
	VendorID       uint   `json:"vendor_id"`
	DisplayName    string `json:"display_name"`
	TotalUnitsSold int    `json:"total_units_sold"`
	TotalRevenue   string `json:"total_revenue"`
}

type VendorService struct {
	db  *gorm.DB
	log *logrus.Entry
}

func NewVendorService(db *gorm.DB) *VendorService {
	return &VendorService{
		db:  db,
		log: logrus.WithField("component", "vendors"),
	}
}

// ApplyDeltaTx posts one vendor's delta inside the caller's transaction as
// SQL-expression increments, so concurrent order completions never race a
// read-modify-write.
func (s *VendorService) ApplyDeltaTx(tx *gorm.DB, vendorID uint, delta VendorDelta) error {
	if delta.Units < 0 || delta.Revenue.IsNegative() {
		return &VendorLedgerError{VendorID: vendorID, Err: errors.New("deltas must be non-negative")}
	}
	if delta.Units == 0 && delta.Revenue.IsZero() {
		return nil
	}

	result := tx.Model(&models.Vendor{}).
		Where("id = ?", vendorID).
		UpdateColumns(map[string]interface{}{
			"total_units_sold": gorm.Expr("total_units_sold + ?", delta.Units),
			"total_revenue":    gorm.Expr("total_revenue + ?", delta.Revenue),
		})
	if result.Error != nil {
		return &VendorLedgerError{VendorID: vendorID, Err: result.Error}
	}
	if result.RowsAffected == 0 {
		return &VendorLedgerError{VendorID: vendorID, Err: ErrVendorNotFound}
	}
	return nil
}

// Snapshot returns a vendor's sales aggregates for reporting.
func (s *VendorService) Snapshot(ctx context.Context, vendorID uint) (*VendorSalesSnapshot, error) {
	var vendor models.Vendor
	if err := s.db.WithContext(ctx).First(&vendor, vendorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVendorNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &VendorSalesSnapshot{
		VendorID:       vendor.ID,
		DisplayName:    vendor.DisplayName,
		TotalUnitsSold: vendor.TotalUnitsSold,
		TotalRevenue:   vendor.TotalRevenue.StringFixed(2),
	}, nil
}

// aggregateVendorDeltas groups order-line snapshots by vendor; lines without
// a vendor are skipped. Revenue is summed at full precision.
func aggregateVendorDeltas(items []models.OrderItem) map[uint]VendorDelta {
	deltas := make(map[uint]VendorDelta)
	for i := range items {
		if items[i].VendorID == nil {
			continue
		}
		d := deltas[*items[i].VendorID]
		d.Units += items[i].Quantity
		d.Revenue = d.Revenue.Add(items[i].LineTotal())
		deltas[*items[i].VendorID] = d
	}
	return deltas
}
