package models

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/gasdepot_backend/config"
	"github.com/mmdatafocus/gasdepot_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockMovement is the append-only audit row behind every ledger mutation.
// current_stock on products is a cache; these rows are what reconciliation
// replays when the cache drifts.
type StockMovement struct {
	ID            int               `gorm:"primary_key" json:"id"`
	ProductId     int               `gorm:"index;not null" json:"product_id"`
	Kind          StockMutationKind `gorm:"size:20;index;not null" json:"kind"`
	CylinderState CylinderState     `gorm:"size:10" json:"cylinder_state"`
	// Qty is signed: positive for stock entering the depot view, negative
	// for stock leaving it.
	Qty           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty"`
	ReferenceType string          `gorm:"size:30" json:"reference_type"`
	ReferenceID   int             `json:"reference_id"`
	// WasClamped marks mutations that would have driven a level negative.
	// A clamp signals an upstream accounting error, never silent truncation.
	WasClamped bool      `gorm:"not null;default:false;index" json:"was_clamped"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// StockMutation describes one ledger-affecting event against one product.
type StockMutation struct {
	ProductId     int
	Kind          StockMutationKind
	Qty           decimal.Decimal
	CylinderState CylinderState
	ReferenceType string
	ReferenceID   int
}

// ApplyStockMutation mutates the canonical product stock record for one
// event. Callers must hold utils.ProductLock for the product: the
// read-then-write here is only safe under single-writer discipline per
// product. All levels clamp at zero; a clamp is logged and recorded on the
// movement row rather than letting a level go negative.
//
// Stock fields are a derived cache. When this is called after the owning
// transaction record has already been committed, a failure here is advisory:
// the caller logs it and moves on, reconciliation repairs the cache later.
func ApplyStockMutation(ctx context.Context, tx *gorm.DB, m StockMutation) error {
	if tx == nil {
		return fmt.Errorf("tx is nil")
	}
	if m.Qty.IsNegative() {
		return fmt.Errorf("mutation quantity cannot be negative")
	}

	product, err := fetchProductForUpdate(tx, m.ProductId)
	if err != nil {
		return err
	}

	clamped := false
	signedQty := m.Qty

	switch m.Kind {
	case StockMutationPurchase:
		product.CurrentStock = product.CurrentStock.Add(m.Qty)
		if product.Category == ProductCategoryCylinder {
			if m.CylinderState == CylinderStateEmpty {
				product.AvailableEmpty = product.AvailableEmpty.Add(m.Qty)
			} else {
				product.AvailableFull = product.AvailableFull.Add(m.Qty)
			}
		}

	case StockMutationSale:
		if config.StrictStockChecks() && m.Qty.GreaterThan(product.CurrentStock) {
			return utils.ErrorInsufficientStock
		}
		product.CurrentStock, clamped = subClamped(product.CurrentStock, m.Qty, clamped)
		if product.Category == ProductCategoryCylinder {
			if m.CylinderState == CylinderStateEmpty {
				product.AvailableEmpty, clamped = subClamped(product.AvailableEmpty, m.Qty, clamped)
			} else {
				product.AvailableFull, clamped = subClamped(product.AvailableFull, m.Qty, clamped)
			}
		}
		signedQty = m.Qty.Neg()

	case StockMutationDeposit:
		// customer takes a filled cylinder: the empty pool shrinks and the
		// linked gas product is drawn down by the same quantity
		product.AvailableEmpty, clamped = subClamped(product.AvailableEmpty, m.Qty, clamped)
		if product.LinkedGasProductId != nil {
			if err := drawDownLinkedGas(ctx, tx, *product.LinkedGasProductId, StockMutationDeposit, m.Qty, m.ReferenceType, m.ReferenceID); err != nil {
				return err
			}
		}
		// resynchronize the cache to the sub-counts
		product.CurrentStock = product.AvailableFull.Add(product.AvailableEmpty)
		signedQty = m.Qty.Neg()

	case StockMutationRefill:
		// refill burns gas on the linked gas product; the cylinder record
		// and its full/empty pools are untouched
		if product.Category == ProductCategoryCylinder {
			if product.LinkedGasProductId == nil {
				return fmt.Errorf("refill on cylinder %d without a linked gas product", m.ProductId)
			}
			return drawDownLinkedGas(ctx, tx, *product.LinkedGasProductId, StockMutationRefill, m.Qty, m.ReferenceType, m.ReferenceID)
		}
		product.CurrentStock, clamped = subClamped(product.CurrentStock, m.Qty, clamped)
		signedQty = m.Qty.Neg()

	case StockMutationReturn, StockMutationTransferIn:
		product.CurrentStock = product.CurrentStock.Add(m.Qty)
		if product.Category == ProductCategoryCylinder {
			if m.CylinderState == CylinderStateFull {
				product.AvailableFull = product.AvailableFull.Add(m.Qty)
			} else {
				product.AvailableEmpty = product.AvailableEmpty.Add(m.Qty)
			}
		}

	case StockMutationTransferOut:
		product.CurrentStock, clamped = subClamped(product.CurrentStock, m.Qty, clamped)
		if product.Category == ProductCategoryCylinder {
			if m.CylinderState == CylinderStateFull {
				product.AvailableFull, clamped = subClamped(product.AvailableFull, m.Qty, clamped)
			} else {
				product.AvailableEmpty, clamped = subClamped(product.AvailableEmpty, m.Qty, clamped)
			}
		}
		signedQty = m.Qty.Neg()

	default:
		return fmt.Errorf("unknown stock mutation kind: %s", m.Kind)
	}

	if clamped {
		config.LogWarn(config.GetLogger(), "stockLedger.go", "ApplyStockMutation",
			"stock level clamped at zero", map[string]interface{}{
				"product_id": m.ProductId,
				"kind":       m.Kind,
				"qty":        m.Qty.String(),
			})
	}

	if err := saveStockLevels(tx, product); err != nil {
		return err
	}

	movement := StockMovement{
		ProductId:     m.ProductId,
		Kind:          m.Kind,
		CylinderState: m.CylinderState,
		Qty:           signedQty,
		ReferenceType: m.ReferenceType,
		ReferenceID:   m.ReferenceID,
		WasClamped:    clamped,
	}
	return tx.Create(&movement).Error
}

// subClamped subtracts qty from level, clamping at zero. The second return
// is sticky: once any clamp happened it stays true.
func subClamped(level decimal.Decimal, qty decimal.Decimal, already bool) (decimal.Decimal, bool) {
	next := level.Sub(qty)
	if next.IsNegative() {
		return decimal.Zero, true
	}
	return next, already
}

// drawDownLinkedGas decreases the linked gas product's stock: a deposit
// leaves with a filled cylinder, a refill dispatch burns gas at the plant.
func drawDownLinkedGas(ctx context.Context, tx *gorm.DB, gasProductId int, kind StockMutationKind, qty decimal.Decimal, refType string, refId int) error {
	gas, err := fetchProductForUpdate(tx, gasProductId)
	if err != nil {
		return err
	}
	clamped := false
	gas.CurrentStock, clamped = subClamped(gas.CurrentStock, qty, clamped)
	if clamped {
		config.LogWarn(config.GetLogger(), "stockLedger.go", "drawDownLinkedGas",
			"linked gas stock clamped at zero", gasProductId)
	}
	if err := saveStockLevels(tx, gas); err != nil {
		return err
	}
	return tx.Create(&StockMovement{
		ProductId:     gasProductId,
		Kind:          kind,
		Qty:           qty.Neg(),
		ReferenceType: refType,
		ReferenceID:   refId,
		WasClamped:    clamped,
	}).Error
}

// ApplyStockMutationLocked wraps ApplyStockMutation in the per-product lock
// and its own transaction. This is the entry point for side-effect callers
// that run after the owning document is already committed.
func ApplyStockMutationLocked(ctx context.Context, m StockMutation) error {
	release, err := utils.ProductLock(ctx, m.ProductId, "stockLedger.go", "ApplyStockMutationLocked")
	if err != nil {
		return err
	}
	defer release()

	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return ApplyStockMutation(ctx, tx, m)
	})
}
