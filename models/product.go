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

// Product is the canonical stock record. CurrentStock is a derived cache over
// the stock_movements ledger; for cylinders the invariant
// current_stock = available_full + available_empty holds whenever both
// sub-counts are tracked.
type Product struct {
	ID             int             `gorm:"primary_key" json:"id"`
	Name           string          `gorm:"size:100;uniqueIndex;not null" json:"name" binding:"required"`
	Category       ProductCategory `gorm:"size:10;default:gas" json:"category"`
	SalesPrice     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sales_price"`
	CurrentStock   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"current_stock"`
	AvailableFull  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"available_full"`
	AvailableEmpty decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"available_empty"`
	// LinkedGasProductId points a cylinder product at the gas product whose
	// stock a deposit draws down (deposit implies the cylinder left filled).
	LinkedGasProductId *int      `gorm:"index" json:"linked_gas_product_id"`
	IsActive           *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProduct struct {
	Name               string          `json:"name" binding:"required"`
	Category           ProductCategory `json:"category"`
	SalesPrice         decimal.Decimal `json:"sales_price"`
	LinkedGasProductId *int            `json:"linked_gas_product_id"`
}

func (input *NewProduct) validate(ctx context.Context, id int) error {
	if err := utils.ValidateUnique[Product](ctx, "name", input.Name, id); err != nil {
		return err
	}
	if input.Category != ProductCategoryGas && input.Category != ProductCategoryCylinder {
		return errors.New("category must be gas or cylinder")
	}
	if input.LinkedGasProductId != nil {
		if input.Category != ProductCategoryCylinder {
			return errors.New("only cylinder products link a gas product")
		}
		if err := utils.ValidateResourceId[Product](ctx, *input.LinkedGasProductId); err != nil {
			return errors.New("linked gas product not found")
		}
	}
	return nil
}

func CreateProduct(ctx context.Context, input *NewProduct) (*Product, error) {

	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	product := Product{
		Name:               input.Name,
		Category:           input.Category,
		SalesPrice:         input.SalesPrice,
		LinkedGasProductId: input.LinkedGasProductId,
		IsActive:           utils.NewTrue(),
	}

	db := config.GetDB()
	// db action
	if err := db.WithContext(ctx).Create(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func GetProduct(ctx context.Context, id int) (*Product, error) {
	// redis first
	cached, err := utils.RetrieveRedis[Product](id)
	if err == nil && cached != nil {
		return cached, nil
	}
	product, err := utils.FetchModel[Product](ctx, id)
	if err != nil {
		return nil, err
	}
	_ = utils.StoreRedis[Product](product, id)
	return product, nil
}

// fetchProductForUpdate reads the product inside tx. Callers hold the product
// lock, so the read-then-write that follows is single-writer.
func fetchProductForUpdate(tx *gorm.DB, productId int) (*Product, error) {
	var product Product
	if err := tx.First(&product, productId).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &product, nil
}

// saveStockLevels writes the three stock fields in one statement and drops
// the product from cache.
func saveStockLevels(tx *gorm.DB, product *Product) error {
	if err := tx.Model(product).Updates(map[string]interface{}{
		"CurrentStock":   product.CurrentStock,
		"AvailableFull":  product.AvailableFull,
		"AvailableEmpty": product.AvailableEmpty,
	}).Error; err != nil {
		return err
	}
	_ = utils.RemoveRedisItem[Product](product.ID)
	return nil
}
