package models

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mmdatafocus/gasdepot_backend/config"
	"github.com/sirupsen/logrus"
)

// seqMutex serializes seeding + increment inside one process. Cross-process
// ordering comes from the counter row lock in incrementAndFetchCounter.
var seqMutex sync.Mutex

const invoiceNumberRetries = 3

var numericInvoiceNumber = regexp.MustCompile(`^[0-9]+$`)

// NextInvoiceNumber mints the next number in the unified space shared by
// Sale, EmployeeSale and CylinderTransaction. Numbers are zero-padded to at
// least 4 digits and grow naturally past that.
//
// The counter increment is the primary guarantee; the cross-table existence
// check after it is a safety net against legacy data and out-of-band inserts.
// A failed increment is fatal to the caller. A failed existence check is not:
// verification is skipped with a warning. After bounded collision retries the
// generator falls back to a timestamp-derived number and flags it for manual
// review.
func NextInvoiceNumber(ctx context.Context) (string, error) {
	logger := config.GetLogger()

	for attempt := 0; attempt < invoiceNumberRetries; attempt++ {
		seqNo, err := nextUnifiedSequence(ctx)
		if err != nil {
			return "", err
		}
		number := FormatInvoiceNumber(seqNo)

		taken, err := invoiceNumberExists(ctx, number)
		if err != nil {
			// the atomic increment already succeeded; do not fail the
			// transaction because the safety net could not be read
			config.LogWarn(logger, "invoiceSequence.go", "NextInvoiceNumber",
				"uniqueness check failed, proceeding without verification", number)
			return number, nil
		}
		if !taken {
			return number, nil
		}
		config.LogWarn(logger, "invoiceSequence.go", "NextInvoiceNumber",
			"invoice number collision, retrying", number)
	}

	fallback := strconv.FormatInt(time.Now().UnixMilli(), 10)
	flagInvoiceNumberFallback(ctx, fallback)
	if logger != nil {
		logger.WithFields(logrus.Fields{
			"module":   "invoiceSequence.go",
			"fallback": fallback,
		}).Warn("invoice counter exhausted retries, using timestamp-derived number")
	}
	return fallback, nil
}

// FormatInvoiceNumber renders a sequence value as the stored invoice number.
func FormatInvoiceNumber(seqNo int64) string {
	return fmt.Sprintf("%04d", seqNo)
}

// nextUnifiedSequence lazily seeds the current year's unified counter from
// the highest purely-numeric invoice number found across all three
// transaction tables, then increments it.
func nextUnifiedSequence(ctx context.Context) (int64, error) {
	seqMutex.Lock()
	defer seqMutex.Unlock()

	year := time.Now().Year()
	exists, err := counterExists(ctx, UnifiedInvoiceCounterName, year)
	if err != nil {
		return 0, err
	}
	if !exists {
		highest, err := highestNumericInvoiceNumber(ctx)
		if err != nil {
			return 0, err
		}
		seed := highest
		if seed <= 0 {
			seed = config.InvoiceCounterStart() - 1
		}
		if err := seedCounterIfAbsent(ctx, UnifiedInvoiceCounterName, year, seed); err != nil {
			return 0, err
		}
	}
	return incrementAndFetchCounter(ctx, UnifiedInvoiceCounterName, year)
}

// highestNumericInvoiceNumber scans the three transaction tables for the
// largest invoice number that is purely numeric. Prefixed legacy formats are
// ignored: they live in their own namespaces.
func highestNumericInvoiceNumber(ctx context.Context) (int64, error) {
	db := config.GetDB()

	var highest int64
	for _, table := range []string{"sales", "employee_sales", "cylinder_transactions"} {
		var numbers []string
		if err := db.WithContext(ctx).
			Table(table).
			Where("invoice_number REGEXP ?", "^[0-9]+$").
			Pluck("invoice_number", &numbers).Error; err != nil {
			// REGEXP is MySQL; fall back to scanning every number
			if err2 := db.WithContext(ctx).Table(table).
				Pluck("invoice_number", &numbers).Error; err2 != nil {
				return 0, err2
			}
		}
		for _, raw := range numbers {
			if !numericInvoiceNumber.MatchString(raw) {
				continue
			}
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				continue
			}
			if n > highest {
				highest = n
			}
		}
	}
	return highest, nil
}

// invoiceNumberExists checks the union of the three transaction tables.
func invoiceNumberExists(ctx context.Context, number string) (bool, error) {
	db := config.GetDB()
	for _, table := range []string{"sales", "employee_sales", "cylinder_transactions"} {
		var count int64
		if err := db.WithContext(ctx).Table(table).
			Where("invoice_number = ?", number).
			Count(&count).Error; err != nil {
			return false, err
		}
		if count > 0 {
			return true, nil
		}
	}
	return false, nil
}

func flagInvoiceNumberFallback(ctx context.Context, number string) {
	db := config.GetDB()
	_ = db.WithContext(ctx).Create(&ReconciliationReport{
		CheckType:  "INVOICE_NUMBER_FALLBACK",
		EntityType: "InvoiceCounter",
		Details:    fmt.Sprintf("timestamp-derived invoice number %s issued after %d collision retries", number, invoiceNumberRetries),
		CreatedAt:  time.Now().UTC(),
	}).Error
}

// NextReceiptNumber numbers payment receipts. Same primitive as the unified
// counter, separate namespace; receipts never collide with invoices by
// construction and are not cross-checked. Unlike the unified counter there
// is no historical table to seed from: the counter row is authoritative from
// its first use and a fresh row starts at 1.
func NextReceiptNumber(ctx context.Context) (string, error) {
	seqMutex.Lock()
	defer seqMutex.Unlock()
	seqNo, err := incrementAndFetchCounter(ctx, ReceiptCounterName, time.Now().Year())
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("RC-%04d", seqNo), nil
}

// NextCylinderInvoiceNumber keeps the legacy INV-<year>-CM-<seq> format
// alive for documents that still carry it. Deliberately a separate numbering
// domain from the unified counter; the two are never reconciled. The year's
// counter is lazily seeded from the highest legacy-format number already
// stored, so reissued books continue where the old data stops.
func NextCylinderInvoiceNumber(ctx context.Context) (string, error) {
	seqMutex.Lock()
	defer seqMutex.Unlock()
	year := time.Now().Year()

	exists, err := counterExists(ctx, CylinderInvoiceCounterName, year)
	if err != nil {
		return "", err
	}
	if !exists {
		highest, err := highestLegacyCylinderSequence(ctx, year)
		if err != nil {
			return "", err
		}
		if err := seedCounterIfAbsent(ctx, CylinderInvoiceCounterName, year, highest); err != nil {
			return "", err
		}
	}

	seqNo, err := incrementAndFetchCounter(ctx, CylinderInvoiceCounterName, year)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("INV-%d-CM-%d", year, seqNo), nil
}

// highestLegacyCylinderSequence scans stored cylinder transactions for the
// largest INV-<year>-CM-<seq> sequence of the given year.
func highestLegacyCylinderSequence(ctx context.Context, year int) (int64, error) {
	db := config.GetDB()
	prefix := fmt.Sprintf("INV-%d-CM-", year)

	var numbers []string
	if err := db.WithContext(ctx).Table("cylinder_transactions").
		Where("invoice_number LIKE ?", prefix+"%").
		Pluck("invoice_number", &numbers).Error; err != nil {
		return 0, err
	}

	var highest int64
	for _, raw := range numbers {
		if !strings.HasPrefix(raw, prefix) {
			continue
		}
		n, err := strconv.ParseInt(raw[len(prefix):], 10, 64)
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return highest, nil
}
