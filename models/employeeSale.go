package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/gasdepot_backend/config"
	"github.com/mmdatafocus/gasdepot_backend/utils"
	"github.com/shopspring/decimal"
)

// EmployeeSale is a sale made by a delivery employee out of their assignment
// pool. The pool, not the depot stock, is decremented: the depot already gave
// the units up when the assignment transferred out.
type EmployeeSale struct {
	ID            int                  `gorm:"primary_key" json:"id"`
	InvoiceNumber string               `gorm:"size:50;uniqueIndex;not null" json:"invoice_number"`
	EmployeeId    int                  `gorm:"index;not null" json:"employee_id"`
	CustomerId    int                  `gorm:"index" json:"customer_id"`
	SaleDate      time.Time            `gorm:"not null" json:"sale_date"`
	Details       []EmployeeSaleDetail `gorm:"foreignKey:EmployeeSaleId" json:"details"`
	TotalAmount   decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	Status        TransactionStatus    `gorm:"size:20;default:Confirmed" json:"status"`
	CreatedAt     time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

type EmployeeSaleDetail struct {
	ID             int             `gorm:"primary_key" json:"id"`
	EmployeeSaleId int             `gorm:"index;not null" json:"employee_sale_id"`
	ProductId      int             `gorm:"index;not null" json:"product_id"`
	CylinderState  CylinderState   `gorm:"size:10" json:"cylinder_state"`
	Qty            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	LeastPrice     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"least_price"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
}

type NewEmployeeSale struct {
	EmployeeId int                     `json:"employee_id" binding:"required"`
	CustomerId int                     `json:"customer_id"`
	SaleDate   time.Time               `json:"sale_date"`
	Details    []NewEmployeeSaleDetail `json:"details" binding:"required,dive"`
}

type NewEmployeeSaleDetail struct {
	ProductId     int             `json:"product_id" binding:"required"`
	CylinderState CylinderState   `json:"cylinder_state"`
	Qty           decimal.Decimal `json:"qty" binding:"required"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
}

func (input *NewEmployeeSale) validate(ctx context.Context) error {
	if err := utils.ValidateResourceId[Employee](ctx, input.EmployeeId); err != nil {
		return errors.New("employee not found")
	}
	if len(input.Details) == 0 {
		return errors.New("sale has no items")
	}
	for _, d := range input.Details {
		if err := utils.ValidateResourceId[Product](ctx, d.ProductId); err != nil {
			return errors.New("product not found")
		}
		if !d.Qty.IsPositive() {
			return errors.New("quantity must be positive")
		}
	}
	return nil
}

// CreateEmployeeSale creates an employee sale and draws the sold quantity
// down from the employee's assignment pool, oldest assignment first.
//
// The floor-price lookup is the one pool precondition that is a hard error:
// an employee with no priced assignment for the product cannot sell it at
// all. Pool consumption itself runs after the record commit; a shortfall
// there is a ledger-consistency problem, not grounds to void the sale, so it
// is logged (or rejected up front when oversell is strict).
func CreateEmployeeSale(ctx context.Context, input *NewEmployeeSale) (*EmployeeSale, error) {

	if err := input.validate(ctx); err != nil {
		return nil, err
	}
	if input.SaleDate.IsZero() {
		input.SaleDate = time.Now().UTC()
	}

	total := decimal.Zero
	details := make([]EmployeeSaleDetail, 0, len(input.Details))
	for _, d := range input.Details {
		leastPrice, err := AssignmentLeastPrice(ctx, input.EmployeeId, d.ProductId)
		if err != nil {
			return nil, err
		}
		unitPrice := d.UnitPrice
		if unitPrice.IsZero() {
			unitPrice = leastPrice
		}
		if unitPrice.LessThan(leastPrice) {
			return nil, errors.New("unit price below assignment floor price")
		}
		if config.AssignmentOversellStrict() {
			remaining, err := AssignmentRemaining(ctx, input.EmployeeId, d.ProductId)
			if err != nil {
				return nil, err
			}
			if d.Qty.GreaterThan(remaining) {
				return nil, utils.ErrorInsufficientStock
			}
		}
		amount := unitPrice.Mul(d.Qty)
		total = total.Add(amount)
		details = append(details, EmployeeSaleDetail{
			ProductId:     d.ProductId,
			CylinderState: d.CylinderState,
			Qty:           d.Qty,
			UnitPrice:     unitPrice,
			LeastPrice:    leastPrice,
			Amount:        amount,
		})
	}

	invoiceNumber, err := NextInvoiceNumber(ctx)
	if err != nil {
		return nil, err
	}

	sale := EmployeeSale{
		InvoiceNumber: invoiceNumber,
		EmployeeId:    input.EmployeeId,
		CustomerId:    input.CustomerId,
		SaleDate:      input.SaleDate,
		Details:       details,
		TotalAmount:   total,
		Status:        TransactionStatusConfirmed,
	}

	db := config.GetDB()
	// db action
	if err := db.WithContext(ctx).Create(&sale).Error; err != nil {
		return nil, err
	}

	applyEmployeeSaleSideEffects(ctx, &sale)

	return &sale, nil
}

func applyEmployeeSaleSideEffects(ctx context.Context, sale *EmployeeSale) {
	logger := config.GetLogger()

	for _, d := range sale.Details {
		_, err := ConsumeAssignmentLocked(ctx, sale.EmployeeId, d.ProductId, d.Qty)
		if err != nil {
			config.LogError(logger, "employeeSale.go", "applyEmployeeSaleSideEffects", "assignment consumption failed after sale commit", sale.InvoiceNumber, err)
		}

		category := AggregateGasSale
		product, perr := GetProduct(ctx, d.ProductId)
		if perr == nil && product.Category == ProductCategoryCylinder {
			if d.CylinderState == CylinderStateEmpty {
				category = AggregateCylinderSaleEmpty
			} else {
				category = AggregateCylinderSaleFull
			}
		}
		if err := UpsertDailyAggregate(ctx, nil, sale.SaleDate, d.ProductId, sale.EmployeeId, category, AggregateDelta{Qty: d.Qty, Amount: d.Amount}); err != nil {
			config.LogError(logger, "employeeSale.go", "applyEmployeeSaleSideEffects", "rollup update failed after sale commit", sale.InvoiceNumber, err)
		}
	}
}

func GetEmployeeSale(ctx context.Context, id int) (*EmployeeSale, error) {
	return utils.FetchModel[EmployeeSale](ctx, id, "Details")
}
