package models

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/mmdatafocus/gasdepot_backend/config"
	"github.com/mmdatafocus/gasdepot_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Sale is an admin-side (walk-in / delivery) sale. One of the three
// transaction types sharing the unified invoice-number space.
type Sale struct {
	ID            int               `gorm:"primary_key" json:"id"`
	InvoiceNumber string            `gorm:"size:50;uniqueIndex;not null" json:"invoice_number"`
	CustomerId    int               `gorm:"index;not null" json:"customer_id"`
	SaleDate      time.Time         `gorm:"not null" json:"sale_date"`
	Details       []SaleDetail      `gorm:"foreignKey:SaleId" json:"details"`
	TotalAmount   decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	Status        TransactionStatus `gorm:"size:20;default:Confirmed" json:"status"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

type SaleDetail struct {
	ID            int             `gorm:"primary_key" json:"id"`
	SaleId        int             `gorm:"index;not null" json:"sale_id"`
	ProductId     int             `gorm:"index;not null" json:"product_id"`
	CylinderState CylinderState   `gorm:"size:10" json:"cylinder_state"`
	Qty           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
}

type NewSale struct {
	CustomerId int             `json:"customer_id" binding:"required"`
	SaleDate   time.Time       `json:"sale_date"`
	Details    []NewSaleDetail `json:"details" binding:"required,dive"`
}

type NewSaleDetail struct {
	ProductId     int             `json:"product_id" binding:"required"`
	CylinderState CylinderState   `json:"cylinder_state"`
	Qty           decimal.Decimal `json:"qty" binding:"required"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
}

func (input *NewSale) validate(ctx context.Context) error {
	if err := utils.ValidateResourceId[Customer](ctx, input.CustomerId); err != nil {
		return errors.New("customer not found")
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

// CreateSale creates the sale record and applies its ledger side effects.
//
// Ordering: validation first, then the invoice number (fatal on counter
// failure), then the record itself. The record is the source of truth.
// Stock and rollup updates run after the record is committed; their failures
// are logged and never unwind the sale. The product locks are held from the
// stock-level check through the decrement so two concurrent sales cannot
// both pass the check and overdraw the product.
func CreateSale(ctx context.Context, input *NewSale) (*Sale, error) {

	if err := input.validate(ctx); err != nil {
		return nil, err
	}
	if input.SaleDate.IsZero() {
		input.SaleDate = time.Now().UTC()
	}

	releases, err := lockSaleProducts(ctx, input.Details)
	if err != nil {
		return nil, err
	}
	defer releases()

	// stock-level check at read time, under the product locks
	if config.StrictStockChecks() {
		for _, d := range input.Details {
			product, err := utils.FetchModel[Product](ctx, d.ProductId)
			if err != nil {
				return nil, err
			}
			if d.Qty.GreaterThan(product.CurrentStock) {
				return nil, utils.ErrorInsufficientStock
			}
		}
	}

	invoiceNumber, err := NextInvoiceNumber(ctx)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	details := make([]SaleDetail, 0, len(input.Details))
	for _, d := range input.Details {
		amount := d.UnitPrice.Mul(d.Qty)
		total = total.Add(amount)
		details = append(details, SaleDetail{
			ProductId:     d.ProductId,
			CylinderState: d.CylinderState,
			Qty:           d.Qty,
			UnitPrice:     d.UnitPrice,
			Amount:        amount,
		})
	}

	sale := Sale{
		InvoiceNumber: invoiceNumber,
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

	applySaleSideEffects(ctx, &sale)

	return &sale, nil
}

// applySaleSideEffects updates the stock ledger and the daily rollups for an
// already-committed sale. Soft path: errors are logged, the sale stands.
func applySaleSideEffects(ctx context.Context, sale *Sale) {
	logger := config.GetLogger()
	db := config.GetDB()

	for _, d := range sale.Details {
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return ApplyStockMutation(ctx, tx, StockMutation{
				ProductId:     d.ProductId,
				Kind:          StockMutationSale,
				Qty:           d.Qty,
				CylinderState: d.CylinderState,
				ReferenceType: "Sale",
				ReferenceID:   sale.ID,
			})
		})
		if err != nil {
			config.LogError(logger, "sale.go", "applySaleSideEffects", "stock update failed after sale commit", sale.InvoiceNumber, err)
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
		if err := UpsertDailyAggregate(ctx, nil, sale.SaleDate, d.ProductId, 0, category, AggregateDelta{Qty: d.Qty, Amount: d.Amount}); err != nil {
			config.LogError(logger, "sale.go", "applySaleSideEffects", "rollup update failed after sale commit", sale.InvoiceNumber, err)
		}
	}
}

// lockSaleProducts takes the product locks for every distinct product in the
// sale, in ascending product id order so concurrent multi-line sales cannot
// deadlock. The returned func releases them all.
func lockSaleProducts(ctx context.Context, details []NewSaleDetail) (func(), error) {
	ids := make([]int, 0, len(details))
	for _, d := range details {
		ids = append(ids, d.ProductId)
	}
	ids = utils.UniqueSlice(ids)
	sort.Ints(ids)

	releases := make([]func(), 0, len(ids))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, id := range ids {
		release, err := utils.ProductLock(ctx, id, "sale.go", "lockSaleProducts")
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}

func GetSale(ctx context.Context, id int) (*Sale, error) {
	return utils.FetchModel[Sale](ctx, id, "Details")
}
