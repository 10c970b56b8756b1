package models

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/gasdepot_backend/config"
	"github.com/mmdatafocus/gasdepot_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DailyAggregate is the per-day per-product (optionally per-employee)
// materialized rollup used by dashboards and daily reports.
//
// Grain: (transaction_date, product_id, employee_id), employee_id 0 for
// admin-side rows. Counters are additive: applying the same event delta
// twice doubles the row, the key is what is idempotent. The table is derived
// data and can be rebuilt from the raw transaction records.
type DailyAggregate struct {
	TransactionDate time.Time `gorm:"primaryKey" json:"transaction_date"`
	ProductId       int       `gorm:"primaryKey" json:"product_id"`
	EmployeeId      int       `gorm:"primaryKey" json:"employee_id"`

	ProductName string          `gorm:"size:100" json:"product_name"`
	Category    ProductCategory `gorm:"size:10" json:"category"`

	GasSaleQty           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"gas_sale_qty"`
	GasSaleAmount        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"gas_sale_amount"`
	CylinderSaleFullQty  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cylinder_sale_full_qty"`
	CylinderSaleEmptyQty decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cylinder_sale_empty_qty"`
	CylinderSaleAmount   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cylinder_sale_amount"`
	DepositQty           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"deposit_qty"`
	ReturnQty            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"return_qty"`
	RefillQty            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"refill_qty"`
	TransferQty          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"transfer_qty"`
	ReceivedBackQty      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"received_back_qty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// AggregateDelta carries the numeric increments of one event.
type AggregateDelta struct {
	Qty    decimal.Decimal
	Amount decimal.Decimal
}

// UpsertDailyAggregate applies one event to its rollup row as a single
// atomic additive upsert. Descriptive fields are set idempotently; counters
// are incremented in the store, never read-modify-written in application
// code, because concurrent events for the same key are expected.
func UpsertDailyAggregate(ctx context.Context, tx *gorm.DB, date time.Time, productId int, employeeId int, category AggregateCategory, delta AggregateDelta) error {
	dateOnly, err := utils.ConvertToDate(date, "")
	if err != nil {
		return err
	}

	// the product lookup must ride the caller's transaction: reading it
	// through the global handle would take a second connection and see
	// state outside the transaction
	var product *Product
	if tx == nil {
		tx = config.GetDB().WithContext(ctx)
		product, err = GetProduct(ctx, productId)
	} else {
		product = &Product{}
		err = tx.First(product, productId).Error
	}
	if err != nil {
		return err
	}

	increments, err := aggregateAssignments(category, delta)
	if err != nil {
		return err
	}
	// descriptive fields are safe to re-apply on every event
	increments["product_name"] = product.Name
	increments["category"] = string(product.Category)

	row := DailyAggregate{
		TransactionDate: dateOnly,
		ProductId:       productId,
		EmployeeId:      employeeId,
		ProductName:     product.Name,
		Category:        product.Category,
	}
	applyDeltaToRow(&row, category, delta)

	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "transaction_date"}, {Name: "product_id"}, {Name: "employee_id"},
		},
		DoUpdates: clause.Assignments(increments),
	}).Create(&row).Error
}

// aggregateAssignments maps an event category to the SQL increment
// expressions of its counters.
func aggregateAssignments(category AggregateCategory, delta AggregateDelta) (map[string]interface{}, error) {
	switch category {
	case AggregateGasSale:
		return map[string]interface{}{
			"gas_sale_qty":    gorm.Expr("gas_sale_qty + ?", delta.Qty),
			"gas_sale_amount": gorm.Expr("gas_sale_amount + ?", delta.Amount),
		}, nil
	case AggregateCylinderSaleFull:
		return map[string]interface{}{
			"cylinder_sale_full_qty": gorm.Expr("cylinder_sale_full_qty + ?", delta.Qty),
			"cylinder_sale_amount":   gorm.Expr("cylinder_sale_amount + ?", delta.Amount),
		}, nil
	case AggregateCylinderSaleEmpty:
		return map[string]interface{}{
			"cylinder_sale_empty_qty": gorm.Expr("cylinder_sale_empty_qty + ?", delta.Qty),
			"cylinder_sale_amount":    gorm.Expr("cylinder_sale_amount + ?", delta.Amount),
		}, nil
	case AggregateDeposit:
		return map[string]interface{}{
			"deposit_qty": gorm.Expr("deposit_qty + ?", delta.Qty),
		}, nil
	case AggregateReturn:
		return map[string]interface{}{
			"return_qty": gorm.Expr("return_qty + ?", delta.Qty),
		}, nil
	case AggregateRefill:
		return map[string]interface{}{
			"refill_qty": gorm.Expr("refill_qty + ?", delta.Qty),
		}, nil
	case AggregateTransfer:
		return map[string]interface{}{
			"transfer_qty": gorm.Expr("transfer_qty + ?", delta.Qty),
		}, nil
	case AggregateReceivedBack:
		return map[string]interface{}{
			"received_back_qty": gorm.Expr("received_back_qty + ?", delta.Qty),
		}, nil
	default:
		return nil, fmt.Errorf("invalid aggregate category: %s", category)
	}
}

// applyDeltaToRow fills the insert-side values for a fresh row.
func applyDeltaToRow(row *DailyAggregate, category AggregateCategory, delta AggregateDelta) {
	switch category {
	case AggregateGasSale:
		row.GasSaleQty = delta.Qty
		row.GasSaleAmount = delta.Amount
	case AggregateCylinderSaleFull:
		row.CylinderSaleFullQty = delta.Qty
		row.CylinderSaleAmount = delta.Amount
	case AggregateCylinderSaleEmpty:
		row.CylinderSaleEmptyQty = delta.Qty
		row.CylinderSaleAmount = delta.Amount
	case AggregateDeposit:
		row.DepositQty = delta.Qty
	case AggregateReturn:
		row.ReturnQty = delta.Qty
	case AggregateRefill:
		row.RefillQty = delta.Qty
	case AggregateTransfer:
		row.TransferQty = delta.Qty
	case AggregateReceivedBack:
		row.ReceivedBackQty = delta.Qty
	}
}

// GetDailyAggregates lists rollup rows for a date, admin and per-employee.
func GetDailyAggregates(ctx context.Context, date time.Time) ([]*DailyAggregate, error) {
	dateOnly, err := utils.ConvertToDate(date, "")
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	var rows []*DailyAggregate
	if err := db.WithContext(ctx).
		Where("transaction_date = ?", dateOnly).
		Order("product_id, employee_id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
