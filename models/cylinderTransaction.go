package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/gasdepot_backend/config"
	"github.com/mmdatafocus/gasdepot_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CylinderTransaction covers the non-sale cylinder movements: customer
// deposits of empties, refill dispatches to the plant, returns, and
// employee transfers. Third of the three transaction types on the unified
// invoice-number space; legacy-format numbering is available for depots
// still printing the old cylinder books.
type CylinderTransaction struct {
	ID            int                     `gorm:"primary_key" json:"id"`
	InvoiceNumber string                  `gorm:"size:50;uniqueIndex;not null" json:"invoice_number"`
	Kind          CylinderTransactionKind `gorm:"size:20;not null" json:"kind"`
	CylinderState CylinderState           `gorm:"size:10" json:"cylinder_state"`
	ProductId     int                     `gorm:"index;not null" json:"product_id"`
	EmployeeId    int                     `gorm:"index" json:"employee_id"`
	CustomerId    int                     `gorm:"index" json:"customer_id"`
	Qty           decimal.Decimal         `gorm:"type:decimal(20,4);default:0" json:"qty"`
	Amount        decimal.Decimal         `gorm:"type:decimal(20,4);default:0" json:"amount"`
	TxnDate       time.Time               `gorm:"not null" json:"txn_date"`
	Status        TransactionStatus       `gorm:"size:20;default:Confirmed" json:"status"`
	CreatedAt     time.Time               `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time               `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCylinderTransaction struct {
	Kind CylinderTransactionKind `json:"kind" binding:"required"`
	// CylinderState picks the full or empty pool on returns and transfers.
	CylinderState CylinderState   `json:"cylinder_state"`
	ProductId     int             `json:"product_id" binding:"required"`
	EmployeeId    int             `json:"employee_id"`
	CustomerId    int             `json:"customer_id"`
	Qty           decimal.Decimal `json:"qty" binding:"required"`
	Amount        decimal.Decimal `json:"amount"`
	TxnDate       time.Time       `json:"txn_date"`
	// LegacyNumbering formats the invoice number from the old per-year
	// cylinder book instead of the unified counter.
	LegacyNumbering bool `json:"legacy_numbering"`
}

func (input *NewCylinderTransaction) validate(ctx context.Context) error {
	switch input.Kind {
	case CylinderTxDeposit, CylinderTxRefill, CylinderTxReturn, CylinderTxTransfer:
	default:
		return errors.New("unknown cylinder transaction kind")
	}
	product, err := utils.FetchModel[Product](ctx, input.ProductId)
	if err != nil {
		return errors.New("product not found")
	}
	if product.Category != ProductCategoryCylinder {
		return errors.New("product is not a cylinder")
	}
	if !input.Qty.IsPositive() {
		return errors.New("quantity must be positive")
	}
	if input.Kind == CylinderTxTransfer && input.EmployeeId == 0 {
		return errors.New("transfer requires an employee")
	}
	switch input.CylinderState {
	case "", CylinderStateFull, CylinderStateEmpty:
	default:
		return errors.New("unknown cylinder state")
	}
	return nil
}

// CreateCylinderTransaction writes the transaction record and then moves the
// cylinder counts. Record first, counts after: a failed count update is
// logged and left for reconciliation, never used to void the transaction.
func CreateCylinderTransaction(ctx context.Context, input *NewCylinderTransaction) (*CylinderTransaction, error) {

	if err := input.validate(ctx); err != nil {
		return nil, err
	}
	if input.TxnDate.IsZero() {
		input.TxnDate = time.Now().UTC()
	}

	release, err := utils.ProductLock(ctx, input.ProductId, "cylinderTransaction.go", "CreateCylinderTransaction")
	if err != nil {
		return nil, err
	}
	defer release()

	var invoiceNumber string
	if input.LegacyNumbering {
		invoiceNumber, err = NextCylinderInvoiceNumber(ctx)
	} else {
		invoiceNumber, err = NextInvoiceNumber(ctx)
	}
	if err != nil {
		return nil, err
	}

	txn := CylinderTransaction{
		InvoiceNumber: invoiceNumber,
		Kind:          input.Kind,
		CylinderState: input.CylinderState,
		ProductId:     input.ProductId,
		EmployeeId:    input.EmployeeId,
		CustomerId:    input.CustomerId,
		Qty:           input.Qty,
		Amount:        input.Amount,
		TxnDate:       input.TxnDate,
		Status:        TransactionStatusConfirmed,
	}

	db := config.GetDB()
	// db action
	if err := db.WithContext(ctx).Create(&txn).Error; err != nil {
		return nil, err
	}

	applyCylinderSideEffects(ctx, &txn)

	return &txn, nil
}

func applyCylinderSideEffects(ctx context.Context, txn *CylinderTransaction) {
	logger := config.GetLogger()
	db := config.GetDB()

	kind, category := cylinderMutation(txn)

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return ApplyStockMutation(ctx, tx, StockMutation{
			ProductId:     txn.ProductId,
			Kind:          kind,
			Qty:           txn.Qty,
			CylinderState: txn.CylinderState,
			ReferenceType: "CylinderTransaction",
			ReferenceID:   txn.ID,
		})
	})
	if err != nil {
		config.LogError(logger, "cylinderTransaction.go", "applyCylinderSideEffects", "cylinder count update failed after commit", txn.InvoiceNumber, err)
	}

	if err := UpsertDailyAggregate(ctx, nil, txn.TxnDate, txn.ProductId, txn.EmployeeId, category, AggregateDelta{Qty: txn.Qty, Amount: txn.Amount}); err != nil {
		config.LogError(logger, "cylinderTransaction.go", "applyCylinderSideEffects", "rollup update failed after commit", txn.InvoiceNumber, err)
	}
}

// cylinderMutation maps a transaction kind onto its stock-ledger mutation and
// daily-rollup category. Employee returns count as received-back rather than
// customer returns.
func cylinderMutation(txn *CylinderTransaction) (StockMutationKind, AggregateCategory) {
	switch txn.Kind {
	case CylinderTxDeposit:
		return StockMutationDeposit, AggregateDeposit
	case CylinderTxRefill:
		return StockMutationRefill, AggregateRefill
	case CylinderTxReturn:
		if txn.EmployeeId > 0 {
			return StockMutationReturn, AggregateReceivedBack
		}
		return StockMutationReturn, AggregateReturn
	default:
		return StockMutationTransferOut, AggregateTransfer
	}
}

// CylinderAggregateCategory exposes the rollup category mapping for replay
// paths that rebuild aggregates from stored transactions.
func CylinderAggregateCategory(txn *CylinderTransaction) AggregateCategory {
	_, category := cylinderMutation(txn)
	return category
}

func GetCylinderTransaction(ctx context.Context, id int) (*CylinderTransaction, error) {
	return utils.FetchModel[CylinderTransaction](ctx, id)
}
