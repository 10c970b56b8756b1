package models

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/mmdatafocus/gasdepot_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDBSeq int64

// setupTestDB points config at a fresh in-memory sqlite database. One open
// connection: sqlite has a single writer anyway and this keeps concurrent
// test goroutines from tripping over SQLITE_BUSY while still exercising the
// application-level locking.
func setupTestDB(t *testing.T) {
	t.Helper()

	dsn := fmt.Sprintf("file:modeltest%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap test db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	config.SetDB(db)
	MigrateTable()
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func createTestProduct(t *testing.T, name string, category ProductCategory, stock, full, empty string) *Product {
	t.Helper()
	product := Product{
		Name:           name,
		Category:       category,
		SalesPrice:     dec("100"),
		CurrentStock:   dec(stock),
		AvailableFull:  dec(full),
		AvailableEmpty: dec(empty),
	}
	active := true
	product.IsActive = &active
	if err := config.GetDB().Create(&product).Error; err != nil {
		t.Fatalf("create test product %s: %v", name, err)
	}
	return &product
}

func createTestEmployee(t *testing.T, name string) *Employee {
	t.Helper()
	employee, err := CreateEmployee(context.Background(), name, "09000000")
	if err != nil {
		t.Fatalf("create test employee %s: %v", name, err)
	}
	return employee
}

func createTestCustomer(t *testing.T, name string) *Customer {
	t.Helper()
	customer, err := CreateCustomer(context.Background(), name, "09000001", "Yangon")
	if err != nil {
		t.Fatalf("create test customer %s: %v", name, err)
	}
	return customer
}

// receivedAssignment creates an assignment straight into the consumable pool.
func receivedAssignment(t *testing.T, employeeId, productId int, qty, unitPrice, leastPrice string) *Assignment {
	t.Helper()
	assignment := Assignment{
		EmployeeId:        employeeId,
		ProductId:         productId,
		Quantity:          dec(qty),
		RemainingQuantity: dec(qty),
		UnitPrice:         dec(unitPrice),
		LeastPrice:        dec(leastPrice),
		Status:            AssignmentStatusReceived,
	}
	if err := config.GetDB().Create(&assignment).Error; err != nil {
		t.Fatalf("create received assignment: %v", err)
	}
	return &assignment
}
