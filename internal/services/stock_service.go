// internal/services/stock_service.go
package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/greenbasket/commerce-backend/internal/models"
)

// StockLine is one batch entry: a pool and the quantity to take from it.
// Lines keep the order they appear in the cart; duplicate pools accumulate.
type StockLine struct {
	Pool     PoolRef
	Quantity int
}

// PoolMovement reports a pool's state after a successful batch commit.
type PoolMovement struct {
	Pool        PoolRef
	Taken       int
	NewQuantity int
}

// StockService owns all quantity mutations. A batch either decrements every
// pool or none: rows are locked FOR UPDATE in a deterministic order (product
// pools ascending, then variant pools ascending) so concurrent confirms on
// overlapping pools serialize instead of deadlocking.
type StockService struct {
	db  *gorm.DB
	log *logrus.Entry
}

func NewStockService(db *gorm.DB) *StockService {
	return &StockService{
		db:  db,
		log: logrus.WithField("component", "stock"),
	}
}

// ReserveAndCommit runs the batch in its own transaction.
func (s *StockService) ReserveAndCommit(ctx context.Context, lines []StockLine) ([]PoolMovement, error) {
	var movements []PoolMovement
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		movements, txErr = s.ReserveAndCommitTx(tx, lines)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return movements, nil
}

// ReserveAndCommitTx performs the batch inside the caller's transaction so a
// confirm can compose it with order-state and vendor-ledger writes.
func (s *StockService) ReserveAndCommitTx(tx *gorm.DB, lines []StockLine) ([]PoolMovement, error) {
	if len(lines) == 0 {
		return nil, nil
	}

	productPools, variantPools := collectPools(lines)

	products, err := lockProducts(tx, productPools)
	if err != nil {
		return nil, err
	}
	variants, err := lockVariants(tx, variantPools)
	if err != nil {
		return nil, err
	}

	available := func(p PoolRef) int {
		if p.VariantID != nil {
			return variants[*p.VariantID].Quantity
		}
		return products[p.ProductID].Quantity
	}

	// Verify in cart order so the reported failure is the first failing line.
	// Accumulation is keyed by pool identity, not by PoolRef: its VariantID
	// pointer would make equal pools from distinct allocations distinct keys.
	taken := make(map[poolKey]int, len(lines))
	refs := make(map[poolKey]PoolRef, len(lines))
	for _, line := range lines {
		key := line.Pool.key()
		remaining := available(line.Pool) - taken[key]
		if line.Quantity > remaining {
			return nil, &InsufficientStockError{
				Pool:      line.Pool,
				Requested: line.Quantity,
				Available: remaining,
			}
		}
		taken[key] += line.Quantity
		refs[key] = line.Pool
	}

	// All lines fit; apply every decrement.
	movements := make([]PoolMovement, 0, len(taken))
	for key, qty := range taken {
		pool := refs[key]
		newQty := available(pool) - qty

		if pool.VariantID != nil {
			err = tx.Model(&models.ProductVariant{}).
				Where("id = ?", *pool.VariantID).
				UpdateColumn("quantity", newQty).Error
		} else {
			// Product pools recompute the derived flags in the same write.
			err = tx.Model(&models.Product{}).
				Where("id = ?", pool.ProductID).
				UpdateColumns(map[string]interface{}{
					"quantity":      newQty,
					"in_stock":      newQty > 0,
					"limited_stock": newQty > 0 && newQty < models.LimitedStockThreshold,
				}).Error
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decrement %s: %w", pool, err)
		}

		movements = append(movements, PoolMovement{Pool: pool, Taken: qty, NewQuantity: newQty})
	}

	sort.Slice(movements, func(i, j int) bool {
		return poolLess(movements[i].Pool, movements[j].Pool)
	})
	return movements, nil
}

// poolKey is a value-comparable pool identity for map accumulation.
type poolKey struct {
	variant bool
	id      uint
}

func (p PoolRef) key() poolKey {
	if p.VariantID != nil {
		return poolKey{variant: true, id: *p.VariantID}
	}
	return poolKey{id: p.ProductID}
}

// collectPools splits the batch into its product and variant pool id sets,
// each sorted ascending for the lock pass.
func collectPools(lines []StockLine) (productIDs, variantIDs []uint) {
	seenProducts := make(map[uint]bool)
	seenVariants := make(map[uint]bool)
	for _, line := range lines {
		if line.Pool.VariantID != nil {
			if !seenVariants[*line.Pool.VariantID] {
				seenVariants[*line.Pool.VariantID] = true
				variantIDs = append(variantIDs, *line.Pool.VariantID)
			}
		} else if !seenProducts[line.Pool.ProductID] {
			seenProducts[line.Pool.ProductID] = true
			productIDs = append(productIDs, line.Pool.ProductID)
		}
	}
	sort.Slice(productIDs, func(i, j int) bool { return productIDs[i] < productIDs[j] })
	sort.Slice(variantIDs, func(i, j int) bool { return variantIDs[i] < variantIDs[j] })
	return productIDs, variantIDs
}

func lockProducts(tx *gorm.DB, ids []uint) (map[uint]*models.Product, error) {
	locked := make(map[uint]*models.Product, len(ids))
	if len(ids) == 0 {
		return locked, nil
	}

	var rows []models.Product
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to lock product pools: %w", err)
	}

	for i := range rows {
		locked[rows[i].ID] = &rows[i]
	}
	for _, id := range ids {
		if _, ok := locked[id]; !ok {
			return nil, ErrProductNotFound
		}
	}
	return locked, nil
}

func lockVariants(tx *gorm.DB, ids []uint) (map[uint]*models.ProductVariant, error) {
	locked := make(map[uint]*models.ProductVariant, len(ids))
	if len(ids) == 0 {
		return locked, nil
	}

	var rows []models.ProductVariant
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to lock variant pools: %w", err)
	}

	for i := range rows {
		locked[rows[i].ID] = &rows[i]
	}
	for _, id := range ids {
		if _, ok := locked[id]; !ok {
			return nil, ErrVariantNotFound
		}
	}
	return locked, nil
}

func poolLess(a, b PoolRef) bool {
	av, bv := a.VariantID != nil, b.VariantID != nil
	if av != bv {
		return !av // product pools sort before variant pools
	}
	if av {
		return *a.VariantID < *b.VariantID
	}
	return a.ProductID < b.ProductID
}
