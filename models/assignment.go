package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/gasdepot_backend/config"
	"github.com/mmdatafocus/gasdepot_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Assignment is one batch of product quantity granted from admin stock to an
// employee, consumed FIFO (oldest created_at first) as that employee records
// sales.
type Assignment struct {
	ID                int              `gorm:"primary_key" json:"id"`
	EmployeeId        int              `gorm:"index;not null" json:"employee_id" binding:"required"`
	ProductId         int              `gorm:"index;not null" json:"product_id" binding:"required"`
	Quantity          decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	RemainingQuantity decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"remaining_quantity"`
	UnitPrice         decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	LeastPrice        decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"least_price"`
	Status            AssignmentStatus `gorm:"size:20;index;default:assigned" json:"status"`
	CreatedAt         time.Time        `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt         time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeSave keeps the pool invariant: 0 <= remaining <= quantity.
func (a *Assignment) BeforeSave(tx *gorm.DB) error {
	_ = tx // signature required by gorm; tx may be nil in tests
	if a == nil {
		return nil
	}
	if a.RemainingQuantity.IsNegative() {
		a.RemainingQuantity = decimal.Zero
	}
	if a.RemainingQuantity.GreaterThan(a.Quantity) {
		a.RemainingQuantity = a.Quantity
	}
	return nil
}

type NewAssignment struct {
	EmployeeId int             `json:"employee_id" binding:"required"`
	ProductId  int             `json:"product_id" binding:"required"`
	Quantity   decimal.Decimal `json:"quantity" binding:"required"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	LeastPrice decimal.Decimal `json:"least_price"`
}

func (input *NewAssignment) validate(ctx context.Context) error {
	if err := utils.ValidateResourceId[Employee](ctx, input.EmployeeId); err != nil {
		return errors.New("employee not found")
	}
	if err := utils.ValidateResourceId[Product](ctx, input.ProductId); err != nil {
		return errors.New("product not found")
	}
	if !input.Quantity.IsPositive() {
		return errors.New("quantity must be positive")
	}
	return nil
}

// CreateAssignment grants stock to an employee: the admin-side transfer-out
// and the assignment row move together under the product lock.
func CreateAssignment(ctx context.Context, input *NewAssignment) (*Assignment, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	release, err := utils.ProductLock(ctx, input.ProductId, "assignment.go", "CreateAssignment")
	if err != nil {
		return nil, err
	}
	defer release()

	assignment := Assignment{
		EmployeeId:        input.EmployeeId,
		ProductId:         input.ProductId,
		Quantity:          input.Quantity,
		RemainingQuantity: input.Quantity,
		UnitPrice:         input.UnitPrice,
		LeastPrice:        input.LeastPrice,
		Status:            AssignmentStatusAssigned,
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&assignment).Error; err != nil {
			return err
		}
		return ApplyStockMutation(ctx, tx, StockMutation{
			ProductId:     input.ProductId,
			Kind:          StockMutationTransferOut,
			Qty:           input.Quantity,
			ReferenceType: "Assignment",
			ReferenceID:   assignment.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}

// ReceiveAssignment moves an assignment into the consumable pool.
func ReceiveAssignment(ctx context.Context, id int) (*Assignment, error) {
	assignment, err := utils.FetchModel[Assignment](ctx, id)
	if err != nil {
		return nil, err
	}
	if assignment.Status != AssignmentStatusAssigned {
		return nil, fmt.Errorf("assignment %d is %s, not assigned", id, assignment.Status)
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(assignment).
		Update("Status", AssignmentStatusReceived).Error; err != nil {
		return nil, err
	}
	assignment.Status = AssignmentStatusReceived
	return assignment, nil
}

// ConsumedAssignment is one slice of a FIFO consumption breakdown.
type ConsumedAssignment struct {
	AssignmentId int             `json:"assignment_id"`
	Consumed     decimal.Decimal `json:"consumed"`
}

// AssignmentLeastPrice returns the floor price from the oldest received
// assignment with remaining quantity. Employee sales are priced from this
// before anything is written; no such assignment is a hard error regardless
// of the oversell policy.
func AssignmentLeastPrice(ctx context.Context, employeeId int, productId int) (decimal.Decimal, error) {
	db := config.GetDB()
	var oldest Assignment
	err := db.WithContext(ctx).
		Where("employee_id = ? AND product_id = ? AND status = ? AND remaining_quantity > 0",
			employeeId, productId, AssignmentStatusReceived).
		Order("created_at, id").
		First(&oldest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, utils.ErrorNoPricedAssignment
		}
		return decimal.Zero, err
	}
	return oldest.LeastPrice, nil
}

// AssignmentRemaining sums the undrawn quantity across an employee's received
// assignments for one product.
func AssignmentRemaining(ctx context.Context, employeeId int, productId int) (decimal.Decimal, error) {
	db := config.GetDB()
	var remaining decimal.NullDecimal
	err := db.WithContext(ctx).Model(&Assignment{}).
		Where("employee_id = ? AND product_id = ? AND status = ?",
			employeeId, productId, AssignmentStatusReceived).
		Select("SUM(remaining_quantity)").
		Scan(&remaining).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !remaining.Valid {
		return decimal.Zero, nil
	}
	return remaining.Decimal, nil
}

// ConsumeAssignment draws qty from the employee's pool for one product,
// oldest batch first. Each slice is taken with a guarded atomic decrement so
// a concurrent consumer cannot drive remaining_quantity negative.
//
// When the pool runs out before qty is satisfied the behavior follows
// config.AssignmentOversellStrict(): historically the sale proceeds and a
// warning is logged; strict mode returns an error instead. Callers must hold
// the product lock (or use ConsumeAssignmentLocked).
func ConsumeAssignment(ctx context.Context, tx *gorm.DB, employeeId int, productId int, qty decimal.Decimal) ([]ConsumedAssignment, error) {
	if !qty.IsPositive() {
		return nil, errors.New("consume quantity must be positive")
	}

	var pool []Assignment
	if err := tx.
		Where("employee_id = ? AND product_id = ? AND status = ? AND remaining_quantity > 0",
			employeeId, productId, AssignmentStatusReceived).
		Order("created_at, id").
		Find(&pool).Error; err != nil {
		return nil, err
	}

	breakdown := make([]ConsumedAssignment, 0, len(pool))
	needed := qty

	for _, a := range pool {
		if !needed.IsPositive() {
			break
		}
		take := decimal.Min(a.RemainingQuantity, needed)

		res := tx.Exec(
			"UPDATE assignments SET remaining_quantity = remaining_quantity - ? WHERE id = ? AND remaining_quantity >= ?",
			take, a.ID, take,
		)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			// raced with another consumer; skip this batch
			continue
		}
		if a.RemainingQuantity.Equal(take) {
			if err := tx.Model(&Assignment{}).Where("id = ?", a.ID).
				Update("status", AssignmentStatusConsumed).Error; err != nil {
				return nil, err
			}
		}

		breakdown = append(breakdown, ConsumedAssignment{AssignmentId: a.ID, Consumed: take})
		needed = needed.Sub(take)
	}

	if needed.IsPositive() {
		if config.AssignmentOversellStrict() {
			return nil, fmt.Errorf("assignment pool short by %s for employee %d product %d",
				needed.String(), employeeId, productId)
		}
		logger := config.GetLogger()
		if logger != nil {
			logger.WithFields(logrus.Fields{
				"module":      "assignment.go",
				"employee_id": employeeId,
				"product_id":  productId,
				"requested":   qty.String(),
				"short_by":    needed.String(),
			}).Warn("employee sale consumed beyond assignment pool")
		}
	}

	return breakdown, nil
}

// ConsumeAssignmentLocked is the standalone entry point: product lock plus
// its own transaction.
func ConsumeAssignmentLocked(ctx context.Context, employeeId int, productId int, qty decimal.Decimal) ([]ConsumedAssignment, error) {
	release, err := utils.ProductLock(ctx, productId, "assignment.go", "ConsumeAssignmentLocked")
	if err != nil {
		return nil, err
	}
	defer release()

	db := config.GetDB()
	var breakdown []ConsumedAssignment
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var innerErr error
		breakdown, innerErr = ConsumeAssignment(ctx, tx, employeeId, productId, qty)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return breakdown, nil
}

// ReturnAssignment hands unsold quantity back to admin stock.
func ReturnAssignment(ctx context.Context, id int) (*Assignment, error) {
	assignment, err := utils.FetchModel[Assignment](ctx, id)
	if err != nil {
		return nil, err
	}
	if assignment.Status != AssignmentStatusReceived && assignment.Status != AssignmentStatusAssigned {
		return nil, fmt.Errorf("assignment %d is %s, cannot return", id, assignment.Status)
	}

	release, err := utils.ProductLock(ctx, assignment.ProductId, "assignment.go", "ReturnAssignment")
	if err != nil {
		return nil, err
	}
	defer release()

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(assignment).Updates(map[string]interface{}{
			"Status":            AssignmentStatusReturned,
			"RemainingQuantity": decimal.Zero,
		}).Error; err != nil {
			return err
		}
		if assignment.RemainingQuantity.IsPositive() {
			return ApplyStockMutation(ctx, tx, StockMutation{
				ProductId:     assignment.ProductId,
				Kind:          StockMutationReturn,
				Qty:           assignment.RemainingQuantity,
				ReferenceType: "Assignment",
				ReferenceID:   assignment.ID,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	assignment.Status = AssignmentStatusReturned
	return assignment, nil
}
