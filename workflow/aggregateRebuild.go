package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/gasdepot_backend/config"
	"github.com/mmdatafocus/gasdepot_backend/models"
	"github.com/mmdatafocus/gasdepot_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RebuildDailyAggregates regenerates the rollup rows for one employee and one
// day from the raw transaction records. employeeId 0 rebuilds the admin-level
// rows. The existing rows for the key are dropped and every confirmed
// transaction of the day is replayed through the same additive upsert the
// live flows use, inside a single transaction, so readers never observe a
// half-rebuilt day.
//
// Rollups are a derived cache; this is the recovery path when a soft
// side-effect failure or a legacy bug has left them out of step.
func RebuildDailyAggregates(ctx context.Context, employeeId int, date time.Time) error {
	logger := config.GetLogger()

	if employeeId < 0 {
		return fmt.Errorf("rebuild aggregates: invalid employee id %d", employeeId)
	}

	dayStart, err := utils.ConvertToDate(date, config.DepotTimezone())
	if err != nil {
		return err
	}
	dayEnd := dayStart.Add(24 * time.Hour)

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("transaction_date = ? AND employee_id = ?", dayStart, employeeId).
			Delete(&models.DailyAggregate{}).Error; err != nil {
			return err
		}

		if employeeId == 0 {
			if err := replayAdminSales(ctx, tx, dayStart, dayEnd); err != nil {
				return err
			}
		} else {
			if err := replayEmployeeSales(ctx, tx, employeeId, dayStart, dayEnd); err != nil {
				return err
			}
		}
		return replayCylinderTransactions(ctx, tx, employeeId, dayStart, dayEnd)
	})
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"module":      "aggregateRebuild.go",
		"employee_id": employeeId,
		"date":        dayStart.Format("2006-01-02"),
	}).Info("daily aggregates rebuilt")

	return nil
}

func replayAdminSales(ctx context.Context, tx *gorm.DB, dayStart, dayEnd time.Time) error {
	var sales []models.Sale
	if err := tx.Preload("Details").
		Where("sale_date >= ? AND sale_date < ? AND status = ?", dayStart, dayEnd, models.TransactionStatusConfirmed).
		Find(&sales).Error; err != nil {
		return err
	}
	for _, sale := range sales {
		for _, d := range sale.Details {
			category, err := saleCategory(ctx, tx, d.ProductId, d.CylinderState)
			if err != nil {
				return err
			}
			if err := models.UpsertDailyAggregate(ctx, tx, sale.SaleDate, d.ProductId, 0, category,
				models.AggregateDelta{Qty: d.Qty, Amount: d.Amount}); err != nil {
				return err
			}
		}
	}
	return nil
}

func replayEmployeeSales(ctx context.Context, tx *gorm.DB, employeeId int, dayStart, dayEnd time.Time) error {
	var sales []models.EmployeeSale
	if err := tx.Preload("Details").
		Where("employee_id = ? AND sale_date >= ? AND sale_date < ? AND status = ?",
			employeeId, dayStart, dayEnd, models.TransactionStatusConfirmed).
		Find(&sales).Error; err != nil {
		return err
	}
	for _, sale := range sales {
		for _, d := range sale.Details {
			category, err := saleCategory(ctx, tx, d.ProductId, d.CylinderState)
			if err != nil {
				return err
			}
			if err := models.UpsertDailyAggregate(ctx, tx, sale.SaleDate, d.ProductId, employeeId, category,
				models.AggregateDelta{Qty: d.Qty, Amount: d.Amount}); err != nil {
				return err
			}
		}
	}
	return nil
}

func replayCylinderTransactions(ctx context.Context, tx *gorm.DB, employeeId int, dayStart, dayEnd time.Time) error {
	var txns []models.CylinderTransaction
	if err := tx.
		Where("employee_id = ? AND txn_date >= ? AND txn_date < ? AND status = ?",
			employeeId, dayStart, dayEnd, models.TransactionStatusConfirmed).
		Find(&txns).Error; err != nil {
		return err
	}
	for i := range txns {
		category := models.CylinderAggregateCategory(&txns[i])
		if err := models.UpsertDailyAggregate(ctx, tx, txns[i].TxnDate, txns[i].ProductId, employeeId, category,
			models.AggregateDelta{Qty: txns[i].Qty, Amount: txns[i].Amount}); err != nil {
			return err
		}
	}
	return nil
}

func saleCategory(ctx context.Context, tx *gorm.DB, productId int, state models.CylinderState) (models.AggregateCategory, error) {
	var product models.Product
	if err := tx.First(&product, productId).Error; err != nil {
		return "", err
	}
	if product.Category == models.ProductCategoryCylinder {
		if state == models.CylinderStateEmpty {
			return models.AggregateCylinderSaleEmpty, nil
		}
		return models.AggregateCylinderSaleFull, nil
	}
	return models.AggregateGasSale, nil
}
