package models

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/gasdepot_backend/utils"
)

func TestCreateEmployeeSaleConsumesPoolFIFO(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	product := createTestProduct(t, "LPG 15kg", ProductCategoryGas, "0", "0", "0")
	employee := createTestEmployee(t, "Delivery A")
	older := receivedAssignment(t, employee.ID, product.ID, "5", "120", "110")
	newer := receivedAssignment(t, employee.ID, product.ID, "5", "125", "115")

	sale, err := CreateEmployeeSale(ctx, &NewEmployeeSale{
		EmployeeId: employee.ID,
		SaleDate:   time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC),
		Details: []NewEmployeeSaleDetail{
			{ProductId: product.ID, Qty: dec("7"), UnitPrice: dec("130")},
		},
	})
	if err != nil {
		t.Fatalf("create employee sale: %v", err)
	}
	if sale.InvoiceNumber != "10000" {
		t.Fatalf("invoice number = %q, want 10000", sale.InvoiceNumber)
	}
	if !sale.Details[0].LeastPrice.Equal(dec("110")) {
		t.Fatalf("least price = %s, want 110 (oldest batch)", sale.Details[0].LeastPrice)
	}

	reloadedOlder, _ := utils.FetchModel[Assignment](ctx, older.ID)
	reloadedNewer, _ := utils.FetchModel[Assignment](ctx, newer.ID)
	if !reloadedOlder.RemainingQuantity.Equal(dec("0")) {
		t.Fatalf("older remaining = %s, want 0", reloadedOlder.RemainingQuantity)
	}
	if !reloadedNewer.RemainingQuantity.Equal(dec("3")) {
		t.Fatalf("newer remaining = %s, want 3", reloadedNewer.RemainingQuantity)
	}

	rows, err := GetDailyAggregates(ctx, sale.SaleDate)
	if err != nil {
		t.Fatalf("load aggregates: %v", err)
	}
	if len(rows) != 1 || rows[0].EmployeeId != employee.ID {
		t.Fatalf("expected one employee-level rollup row, got %+v", rows)
	}
	if !rows[0].GasSaleQty.Equal(dec("7")) {
		t.Fatalf("rollup qty = %s, want 7", rows[0].GasSaleQty)
	}
}

func TestCreateEmployeeSaleNoPoolIsHardError(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	product := createTestProduct(t, "LPG 15kg", ProductCategoryGas, "0", "0", "0")
	employee := createTestEmployee(t, "Delivery B")

	_, err := CreateEmployeeSale(ctx, &NewEmployeeSale{
		EmployeeId: employee.ID,
		Details:    []NewEmployeeSaleDetail{{ProductId: product.ID, Qty: dec("1")}},
	})
	if !errors.Is(err, utils.ErrorNoPricedAssignment) {
		t.Fatalf("err = %v, want ErrorNoPricedAssignment", err)
	}
}

func TestCreateEmployeeSaleRejectsPriceBelowFloor(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	product := createTestProduct(t, "LPG 15kg", ProductCategoryGas, "0", "0", "0")
	employee := createTestEmployee(t, "Delivery C")
	receivedAssignment(t, employee.ID, product.ID, "5", "120", "110")

	_, err := CreateEmployeeSale(ctx, &NewEmployeeSale{
		EmployeeId: employee.ID,
		Details:    []NewEmployeeSaleDetail{{ProductId: product.ID, Qty: dec("1"), UnitPrice: dec("100")}},
	})
	if err == nil {
		t.Fatal("price below assignment floor should be rejected")
	}
}

func TestCreateEmployeeSaleStrictOversellRejected(t *testing.T) {
	setupTestDB(t)
	t.Setenv("ASSIGNMENT_OVERSELL", "strict")
	ctx := context.Background()
	product := createTestProduct(t, "LPG 15kg", ProductCategoryGas, "0", "0", "0")
	employee := createTestEmployee(t, "Delivery D")
	receivedAssignment(t, employee.ID, product.ID, "5", "120", "110")

	_, err := CreateEmployeeSale(ctx, &NewEmployeeSale{
		EmployeeId: employee.ID,
		Details:    []NewEmployeeSaleDetail{{ProductId: product.ID, Qty: dec("8"), UnitPrice: dec("130")}},
	})
	if !errors.Is(err, utils.ErrorInsufficientStock) {
		t.Fatalf("err = %v, want ErrorInsufficientStock", err)
	}
}

func TestCreateEmployeeSaleLenientOversellProceeds(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	product := createTestProduct(t, "LPG 15kg", ProductCategoryGas, "0", "0", "0")
	employee := createTestEmployee(t, "Delivery E")
	receivedAssignment(t, employee.ID, product.ID, "5", "120", "110")

	sale, err := CreateEmployeeSale(ctx, &NewEmployeeSale{
		EmployeeId: employee.ID,
		Details:    []NewEmployeeSaleDetail{{ProductId: product.ID, Qty: dec("8"), UnitPrice: dec("130")}},
	})
	if err != nil {
		t.Fatalf("lenient oversell should proceed: %v", err)
	}
	if sale.ID == 0 {
		t.Fatal("sale not persisted")
	}

	remaining, err := AssignmentRemaining(ctx, employee.ID, product.ID)
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if !remaining.Equal(dec("0")) {
		t.Fatalf("pool remaining = %s, want 0 (drained, not negative)", remaining)
	}
}

func TestUnifiedNumberingAcrossTransactionTypes(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	gas := createTestProduct(t, "LPG 15kg", ProductCategoryGas, "20", "0", "0")
	cylinder := createTestProduct(t, "Cylinder 15kg", ProductCategoryCylinder, "10", "5", "5")
	customer := createTestCustomer(t, "Walk-in")
	employee := createTestEmployee(t, "Delivery F")
	receivedAssignment(t, employee.ID, gas.ID, "10", "120", "110")

	adminSale, err := CreateSale(ctx, &NewSale{
		CustomerId: customer.ID,
		Details:    []NewSaleDetail{{ProductId: gas.ID, Qty: dec("1"), UnitPrice: dec("150")}},
	})
	if err != nil {
		t.Fatalf("admin sale: %v", err)
	}
	employeeSale, err := CreateEmployeeSale(ctx, &NewEmployeeSale{
		EmployeeId: employee.ID,
		Details:    []NewEmployeeSaleDetail{{ProductId: gas.ID, Qty: dec("1"), UnitPrice: dec("130")}},
	})
	if err != nil {
		t.Fatalf("employee sale: %v", err)
	}
	cylTxn, err := CreateCylinderTransaction(ctx, &NewCylinderTransaction{
		Kind:       CylinderTxDeposit,
		ProductId:  cylinder.ID,
		CustomerId: customer.ID,
		Qty:        dec("1"),
	})
	if err != nil {
		t.Fatalf("cylinder transaction: %v", err)
	}

	got := []string{adminSale.InvoiceNumber, employeeSale.InvoiceNumber, cylTxn.InvoiceNumber}
	want := []string{"10000", "10001", "10002"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("numbers across types = %v, want %v", got, want)
		}
	}
}
