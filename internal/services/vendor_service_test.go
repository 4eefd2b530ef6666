// internal/services/vendor_service_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/greenbasket/commerce-backend/internal/models"
)

func uintPtr(v uint) *uint { return &v }

func TestAggregateVendorDeltas(t *testing.T) {
	items := []models.OrderItem{
		{VendorID: uintPtr(1), Quantity: 2, UnitPrice: dec(t, "100.00")},
		{VendorID: uintPtr(2), Quantity: 1, UnitPrice: dec(t, "49.99")},
		{VendorID: uintPtr(1), Quantity: 3, UnitPrice: dec(t, "10.50")},
	}

	deltas := aggregateVendorDeltas(items)
	assert.Len(t, deltas, 2)

	assert.Equal(t, 5, deltas[1].Units)
	assert.Equal(t, "231.50", deltas[1].Revenue.StringFixed(2))

	assert.Equal(t, 1, deltas[2].Units)
	assert.Equal(t, "49.99", deltas[2].Revenue.StringFixed(2))
}

func TestAggregateVendorDeltasSkipsVendorlessLines(t *testing.T) {
	items := []models.OrderItem{
		{Quantity: 4, UnitPrice: dec(t, "25.00")},
		{VendorID: uintPtr(3), Quantity: 1, UnitPrice: dec(t, "5.00")},
	}

	deltas := aggregateVendorDeltas(items)
	assert.Len(t, deltas, 1)
	assert.Equal(t, 1, deltas[3].Units)
}

func TestAggregateVendorDeltasFullPrecision(t *testing.T) {
	// Two lines whose totals only round correctly when summed unrounded.
	items := []models.OrderItem{
		{VendorID: uintPtr(9), Quantity: 1, UnitPrice: dec(t, "0.005")},
		{VendorID: uintPtr(9), Quantity: 1, UnitPrice: dec(t, "0.005")},
	}

	deltas := aggregateVendorDeltas(items)
	assert.Equal(t, "0.01", deltas[9].Revenue.StringFixed(2))
}

func TestAggregateVendorDeltasEmpty(t *testing.T) {
	assert.Empty(t, aggregateVendorDeltas(nil))
}
