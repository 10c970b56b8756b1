package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/gasdepot_backend/config"
	"gorm.io/gorm"
)

// Counter namespaces. The unified counter numbers all three transaction
// types; receipts and the legacy cylinder format keep their own rows and are
// never cross-checked against the unified space.
const (
	UnifiedInvoiceCounterName  = "unified_invoice_counter"
	ReceiptCounterName         = "RC-NO"
	CylinderInvoiceCounterName = "cylinder_invoice"
)

// InvoiceCounter is a durable, atomically-incrementable integer scoped by
// (name, year). Rows are created on first use and never deleted; SequenceNo
// only moves up.
type InvoiceCounter struct {
	ID         int       `gorm:"primary_key" json:"id"`
	Name       string    `gorm:"size:100;not null;uniqueIndex:idx_counter_name_year,priority:1" json:"name"`
	Year       int       `gorm:"not null;uniqueIndex:idx_counter_name_year,priority:2" json:"year"`
	SequenceNo int64     `gorm:"not null;default:0" json:"sequence_no"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// incrementAndFetchCounter bumps the (name, year) counter by one and returns
// the new value. The UPDATE holds the row lock until commit, so concurrent
// callers are totally ordered; this is the only primitive in the numbering
// path that needs true atomicity.
func incrementAndFetchCounter(ctx context.Context, name string, year int) (int64, error) {
	db := config.GetDB()
	if db == nil {
		return 0, errors.New("db is nil")
	}

	var seqNo int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		counter := InvoiceCounter{Name: name, Year: year}
		if err := tx.Where("name = ? AND year = ?", name, year).
			FirstOrCreate(&counter).Error; err != nil {
			return err
		}
		if err := tx.Exec("UPDATE invoice_counters SET sequence_no = sequence_no + 1 WHERE id = ?", counter.ID).Error; err != nil {
			return err
		}
		if err := tx.First(&counter, counter.ID).Error; err != nil {
			return err
		}
		seqNo = counter.SequenceNo
		return nil
	})
	if err != nil {
		return 0, err
	}
	return seqNo, nil
}

func counterExists(ctx context.Context, name string, year int) (bool, error) {
	db := config.GetDB()
	if db == nil {
		return false, errors.New("db is nil")
	}
	var count int64
	if err := db.WithContext(ctx).Model(&InvoiceCounter{}).
		Where("name = ? AND year = ?", name, year).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// seedCounterIfAbsent creates the (name, year) row at seed when it does not
// exist yet, so the first increment yields seed+1. Existing rows are left
// alone.
func seedCounterIfAbsent(ctx context.Context, name string, year int, seed int64) error {
	db := config.GetDB()
	if db == nil {
		return errors.New("db is nil")
	}
	counter := InvoiceCounter{Name: name, Year: year, SequenceNo: seed}
	return db.WithContext(ctx).
		Where("name = ? AND year = ?", name, year).
		FirstOrCreate(&counter).Error
}

// InitializeInvoiceCounter is the explicit admin reset: it moves the unified
// counter for the current year to startAt-1 (so the next number is startAt),
// but only when no counter exists yet or the new value is larger. It never
// moves a counter down.
func InitializeInvoiceCounter(ctx context.Context, startAt int64) (*InvoiceCounter, error) {
	if startAt <= 0 {
		return nil, errors.New("starting number must be positive")
	}
	db := config.GetDB()
	year := time.Now().Year()

	highest, err := highestNumericInvoiceNumber(ctx)
	if err != nil {
		return nil, err
	}
	if highest >= startAt {
		return nil, fmt.Errorf("starting number %d is not above the highest existing invoice number %d", startAt, highest)
	}

	var counter InvoiceCounter
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		counter = InvoiceCounter{Name: UnifiedInvoiceCounterName, Year: year, SequenceNo: startAt - 1}
		if err := tx.Where("name = ? AND year = ?", UnifiedInvoiceCounterName, year).
			FirstOrCreate(&counter).Error; err != nil {
			return err
		}
		if counter.SequenceNo >= startAt-1 {
			// already at or past the requested start; leave it
			return nil
		}
		if err := tx.Model(&counter).Update("SequenceNo", startAt-1).Error; err != nil {
			return err
		}
		counter.SequenceNo = startAt - 1
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &counter, nil
}

func GetInvoiceCounters(ctx context.Context) ([]*InvoiceCounter, error) {
	db := config.GetDB()
	var counters []*InvoiceCounter
	if err := db.WithContext(ctx).Order("name, year").Find(&counters).Error; err != nil {
		return nil, err
	}
	return counters, nil
}
