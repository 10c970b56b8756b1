package models

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/gasdepot_backend/config"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ReconciliationReport is one finding from a consistency sweep: a ledger
// figure that disagrees with the records it is derived from, or an
// operational flag such as a fallback invoice number. Findings are kept, not
// auto-fixed; the merge utilities below are the only writers that repair.
type ReconciliationReport struct {
	ID            int       `gorm:"primary_key" json:"id"`
	CheckType     string    `gorm:"size:50;index;not null" json:"check_type"`
	EntityType    string    `gorm:"size:50" json:"entity_type"`
	EntityId      int       `gorm:"index" json:"entity_id"`
	Details       string    `gorm:"size:500" json:"details"`
	CorrelationId string    `gorm:"size:50;index" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

const (
	CheckAssignmentConsumption = "ASSIGNMENT_CONSUMPTION_MISMATCH"
	CheckCylinderSubCounts     = "CYLINDER_SUBCOUNT_MISMATCH"
	CheckStockVsMovements      = "STOCK_MOVEMENT_MISMATCH"
)

// RunReconciliationChecks sweeps the three derived figures against their
// sources of truth and records one report row per discrepancy. Returns the
// findings of this run, all stamped with the same correlation id.
func RunReconciliationChecks(ctx context.Context) ([]ReconciliationReport, error) {
	logger := config.GetLogger()
	correlationId := uuid.NewString()

	var findings []ReconciliationReport

	assignmentFindings, err := checkAssignmentConsumption(ctx)
	if err != nil {
		return nil, err
	}
	findings = append(findings, assignmentFindings...)

	cylinderFindings, err := checkCylinderSubCounts(ctx)
	if err != nil {
		return nil, err
	}
	findings = append(findings, cylinderFindings...)

	movementFindings, err := checkStockAgainstMovements(ctx)
	if err != nil {
		return nil, err
	}
	findings = append(findings, movementFindings...)

	db := config.GetDB()
	for i := range findings {
		findings[i].CorrelationId = correlationId
		if err := db.WithContext(ctx).Create(&findings[i]).Error; err != nil {
			return nil, err
		}
	}

	logger.WithFields(logrus.Fields{
		"module":         "reconciliation.go",
		"correlation_id": correlationId,
		"findings":       len(findings),
	}).Info("reconciliation sweep completed")

	return findings, nil
}

// checkAssignmentConsumption compares what each employee's pool says was
// drawn down against the quantities on their committed sales.
func checkAssignmentConsumption(ctx context.Context) ([]ReconciliationReport, error) {
	db := config.GetDB()

	type poolRow struct {
		EmployeeId int
		ProductId  int
		Consumed   decimal.Decimal
	}
	var pools []poolRow
	if err := db.WithContext(ctx).Model(&Assignment{}).
		Select("employee_id, product_id, SUM(quantity - remaining_quantity) AS consumed").
		Where("status IN ?", []AssignmentStatus{AssignmentStatusReceived, AssignmentStatusConsumed}).
		Group("employee_id, product_id").
		Scan(&pools).Error; err != nil {
		return nil, err
	}

	var findings []ReconciliationReport
	for _, p := range pools {
		var sold decimal.NullDecimal
		err := db.WithContext(ctx).Model(&EmployeeSaleDetail{}).
			Joins("JOIN employee_sales ON employee_sales.id = employee_sale_details.employee_sale_id").
			Where("employee_sales.employee_id = ? AND employee_sale_details.product_id = ? AND employee_sales.status = ?",
				p.EmployeeId, p.ProductId, TransactionStatusConfirmed).
			Select("SUM(employee_sale_details.qty)").
			Scan(&sold).Error
		if err != nil {
			return nil, err
		}
		soldQty := decimal.Zero
		if sold.Valid {
			soldQty = sold.Decimal
		}
		if !p.Consumed.Equal(soldQty) {
			findings = append(findings, ReconciliationReport{
				CheckType:  CheckAssignmentConsumption,
				EntityType: "Employee",
				EntityId:   p.EmployeeId,
				Details: fmt.Sprintf("product %d: pool consumed %s, sales total %s",
					p.ProductId, p.Consumed.String(), soldQty.String()),
			})
		}
	}
	return findings, nil
}

// checkCylinderSubCounts verifies full + empty = current stock for every
// active cylinder product.
func checkCylinderSubCounts(ctx context.Context) ([]ReconciliationReport, error) {
	db := config.GetDB()
	var cylinders []Product
	if err := db.WithContext(ctx).
		Where("category = ? AND is_active = ?", ProductCategoryCylinder, true).
		Find(&cylinders).Error; err != nil {
		return nil, err
	}

	var findings []ReconciliationReport
	for _, p := range cylinders {
		sum := p.AvailableFull.Add(p.AvailableEmpty)
		if !sum.Equal(p.CurrentStock) {
			findings = append(findings, ReconciliationReport{
				CheckType:  CheckCylinderSubCounts,
				EntityType: "Product",
				EntityId:   p.ID,
				Details: fmt.Sprintf("full %s + empty %s = %s, current stock %s",
					p.AvailableFull.String(), p.AvailableEmpty.String(), sum.String(), p.CurrentStock.String()),
			})
		}
	}
	return findings, nil
}

// checkStockAgainstMovements replays the movement journal per product and
// compares the signed sum to the stored stock level.
func checkStockAgainstMovements(ctx context.Context) ([]ReconciliationReport, error) {
	db := config.GetDB()
	var products []Product
	if err := db.WithContext(ctx).Where("is_active = ?", true).Find(&products).Error; err != nil {
		return nil, err
	}

	var findings []ReconciliationReport
	for _, p := range products {
		var moved decimal.NullDecimal
		err := db.WithContext(ctx).Model(&StockMovement{}).
			Where("product_id = ?", p.ID).
			Select("SUM(qty)").
			Scan(&moved).Error
		if err != nil {
			return nil, err
		}
		movedQty := decimal.Zero
		if moved.Valid {
			movedQty = moved.Decimal
		}
		// clamped movements record the clamped figure, so a journal that
		// includes clamps still reconciles against the stored level
		if !movedQty.Equal(p.CurrentStock) {
			findings = append(findings, ReconciliationReport{
				CheckType:  CheckStockVsMovements,
				EntityType: "Product",
				EntityId:   p.ID,
				Details: fmt.Sprintf("movement journal sums to %s, stored stock is %s",
					movedQty.String(), p.CurrentStock.String()),
			})
		}
	}
	return findings, nil
}

// MergeResult summarizes one merge pass.
type MergeResult struct {
	Scope        string `json:"scope"`
	GroupsMerged int    `json:"groups_merged"`
	RowsRemoved  int    `json:"rows_removed"`
}

// MergeDuplicateAssignments collapses duplicate assignment rows (same
// employee, product, status, unit price and quantity) into the oldest row of
// each group, summing quantities in before the extras are removed. Running
// it twice is a no-op: after the first pass no group has more than one row.
func MergeDuplicateAssignments(ctx context.Context) (*MergeResult, error) {
	db := config.GetDB()
	logger := config.GetLogger()
	result := &MergeResult{Scope: "assignments"}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// identity signature of a grant; two rows matching on all of it are
		// taken to be the same grant written twice
		type dupGroup struct {
			EmployeeId int
			ProductId  int
			Status     AssignmentStatus
			UnitPrice  decimal.Decimal
			Quantity   decimal.Decimal
		}
		var groups []dupGroup
		if err := tx.Model(&Assignment{}).
			Select("employee_id, product_id, status, unit_price, quantity").
			Group("employee_id, product_id, status, unit_price, quantity").
			Having("COUNT(*) > 1").
			Scan(&groups).Error; err != nil {
			return err
		}

		for _, g := range groups {
			var rows []Assignment
			if err := tx.
				Where("employee_id = ? AND product_id = ? AND status = ? AND unit_price = ? AND quantity = ?",
					g.EmployeeId, g.ProductId, g.Status, g.UnitPrice, g.Quantity).
				Order("created_at, id").
				Find(&rows).Error; err != nil {
				return err
			}
			if len(rows) < 2 {
				continue
			}

			canonical := rows[0]
			for _, extra := range rows[1:] {
				canonical.Quantity = canonical.Quantity.Add(extra.Quantity)
				canonical.RemainingQuantity = canonical.RemainingQuantity.Add(extra.RemainingQuantity)
			}
			// sum in before removing: a failure between the two statements
			// rolls the whole group back
			if err := tx.Model(&Assignment{}).Where("id = ?", canonical.ID).
				Updates(map[string]interface{}{
					"quantity":           canonical.Quantity,
					"remaining_quantity": canonical.RemainingQuantity,
				}).Error; err != nil {
				return err
			}
			for _, extra := range rows[1:] {
				if err := tx.Delete(&Assignment{}, extra.ID).Error; err != nil {
					return err
				}
				result.RowsRemoved++
			}
			result.GroupsMerged++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"module":        "reconciliation.go",
		"scope":         result.Scope,
		"groups_merged": result.GroupsMerged,
		"rows_removed":  result.RowsRemoved,
	}).Info("duplicate merge completed")

	return result, nil
}

// MergeDuplicateMovements removes duplicate stock-movement journal rows:
// rows recording the same reference more than once, left behind when a
// side-effect pass was retried after a partial failure. The oldest row of
// each group is canonical and untouched; each extra row is deleted and its
// signed quantity backed out of the product's stock so the double count does
// not survive in the derived level.
func MergeDuplicateMovements(ctx context.Context) (*MergeResult, error) {
	db := config.GetDB()
	logger := config.GetLogger()
	result := &MergeResult{Scope: "stock_movements"}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		type dupGroup struct {
			ProductId     int
			Kind          StockMutationKind
			ReferenceType string
			ReferenceID   int
		}
		var groups []dupGroup
		if err := tx.Model(&StockMovement{}).
			Select("product_id, kind, reference_type, reference_id").
			Where("reference_id <> 0").
			Group("product_id, kind, reference_type, reference_id").
			Having("COUNT(*) > 1").
			Scan(&groups).Error; err != nil {
			return err
		}

		for _, g := range groups {
			var rows []StockMovement
			if err := tx.
				Where("product_id = ? AND kind = ? AND reference_type = ? AND reference_id = ?",
					g.ProductId, g.Kind, g.ReferenceType, g.ReferenceID).
				Order("created_at, id").
				Find(&rows).Error; err != nil {
				return err
			}
			if len(rows) < 2 {
				continue
			}

			var product Product
			if err := tx.First(&product, g.ProductId).Error; err != nil {
				return err
			}

			for _, extra := range rows[1:] {
				backOut := map[string]interface{}{
					"current_stock": gorm.Expr("current_stock - ?", extra.Qty),
				}
				// a duplicated cylinder movement also double-counted one of
				// the full/empty pools
				if product.Category == ProductCategoryCylinder {
					if column := movementPoolColumn(g.Kind, extra.CylinderState); column != "" {
						backOut[column] = gorm.Expr(column+" - ?", extra.Qty)
					}
				}
				if err := tx.Model(&Product{}).Where("id = ?", g.ProductId).
					Updates(backOut).Error; err != nil {
					return err
				}
				if err := tx.Delete(&StockMovement{}, extra.ID).Error; err != nil {
					return err
				}
				result.RowsRemoved++
			}
			result.GroupsMerged++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"module":        "reconciliation.go",
		"scope":         result.Scope,
		"groups_merged": result.GroupsMerged,
		"rows_removed":  result.RowsRemoved,
	}).Info("duplicate merge completed")

	return result, nil
}

// movementPoolColumn names the full/empty pool a cylinder movement touched,
// mirroring the pool selection in ApplyStockMutation. Empty string for kinds
// that leave the pools alone.
func movementPoolColumn(kind StockMutationKind, state CylinderState) string {
	switch kind {
	case StockMutationPurchase, StockMutationSale:
		if state == CylinderStateEmpty {
			return "available_empty"
		}
		return "available_full"
	case StockMutationDeposit:
		return "available_empty"
	case StockMutationReturn, StockMutationTransferIn, StockMutationTransferOut:
		if state == CylinderStateFull {
			return "available_full"
		}
		return "available_empty"
	}
	return ""
}

// MergeDuplicates dispatches a merge pass by scope name.
func MergeDuplicates(ctx context.Context, scope string) (*MergeResult, error) {
	switch scope {
	case "assignments":
		return MergeDuplicateAssignments(ctx)
	case "stock_movements":
		return MergeDuplicateMovements(ctx)
	default:
		return nil, fmt.Errorf("unknown merge scope %q", scope)
	}
}

// GetReconciliationReports lists findings, newest first, optionally filtered
// by check type.
func GetReconciliationReports(ctx context.Context, checkType string) ([]*ReconciliationReport, error) {
	db := config.GetDB()
	var reports []*ReconciliationReport
	query := db.WithContext(ctx).Order("created_at DESC, id DESC")
	if checkType != "" {
		query = query.Where("check_type = ?", checkType)
	}
	if err := query.Find(&reports).Error; err != nil {
		return nil, err
	}
	return reports, nil
}
