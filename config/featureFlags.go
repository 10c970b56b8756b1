package config

import (
	"os"
	"strings"
)

// AssignmentOversellPolicy controls what happens when an employee sale consumes
// more quantity than the employee's assignment pool holds.
//
// The historical behavior is to log a warning and let the sale through; the
// bookkeeping gap is picked up later by reconciliation. Strict mode rejects
// the sale instead.
//
// Set via env:
// - ASSIGNMENT_OVERSELL=warn (default) | strict
func AssignmentOversellStrict() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("ASSIGNMENT_OVERSELL")))
	return v == "strict" || v == "reject"
}

// StrictStockChecks rejects sales whose quantity exceeds the product's current
// stock at read time. Disabled it only clamps and logs.
//
// Set via env:
// - STRICT_STOCK_CHECKS=true (default) | false
func StrictStockChecks() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("STRICT_STOCK_CHECKS")))
	if v == "" {
		return true
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// InvoiceCounterStart is the configured starting number for the unified
// invoice counter when no prior invoices exist.
//
// Set via env:
// - INVOICE_COUNTER_START (default 10000)
func InvoiceCounterStart() int64 {
	v := strings.TrimSpace(os.Getenv("INVOICE_COUNTER_START"))
	if v == "" {
		return 10000
	}
	var n int64
	for _, c := range v {
		if c < '0' || c > '9' {
			return 10000
		}
		n = n*10 + int64(c-'0')
	}
	if n <= 0 {
		return 10000
	}
	return n
}

// DepotTimezone is the business timezone used to bucket daily aggregates.
//
// Set via env:
// - DEPOT_TIMEZONE (default Asia/Yangon)
func DepotTimezone() string {
	v := strings.TrimSpace(os.Getenv("DEPOT_TIMEZONE"))
	if v == "" {
		return "Asia/Yangon"
	}
	return v
}
