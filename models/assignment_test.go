package models

import (
	"context"
	"errors"
	"testing"

	"github.com/mmdatafocus/gasdepot_backend/config"
	"github.com/mmdatafocus/gasdepot_backend/utils"
)

func TestCreateAssignmentTransfersStockOut(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	product := createTestProduct(t, "LPG 15kg", ProductCategoryGas, "10", "0", "0")
	employee := createTestEmployee(t, "Delivery A")

	assignment, err := CreateAssignment(ctx, &NewAssignment{
		EmployeeId: employee.ID,
		ProductId:  product.ID,
		Quantity:   dec("4"),
		UnitPrice:  dec("120"),
		LeastPrice: dec("110"),
	})
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	if assignment.Status != AssignmentStatusAssigned {
		t.Fatalf("status = %s, want assigned", assignment.Status)
	}
	if !assignment.RemainingQuantity.Equal(dec("4")) {
		t.Fatalf("remaining = %s, want 4", assignment.RemainingQuantity)
	}

	got, _ := GetProduct(ctx, product.ID)
	if !got.CurrentStock.Equal(dec("6")) {
		t.Fatalf("stock after transfer = %s, want 6", got.CurrentStock)
	}

	var movement StockMovement
	if err := config.GetDB().
		Where("product_id = ? AND kind = ?", product.ID, StockMutationTransferOut).
		First(&movement).Error; err != nil {
		t.Fatalf("load movement: %v", err)
	}
	if !movement.Qty.Equal(dec("-4")) {
		t.Fatalf("movement qty = %s, want -4", movement.Qty)
	}
}

func TestReceiveAssignmentTransition(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	product := createTestProduct(t, "LPG 15kg", ProductCategoryGas, "10", "0", "0")
	employee := createTestEmployee(t, "Delivery B")

	assignment, err := CreateAssignment(ctx, &NewAssignment{
		EmployeeId: employee.ID, ProductId: product.ID, Quantity: dec("2"),
	})
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}

	received, err := ReceiveAssignment(ctx, assignment.ID)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if received.Status != AssignmentStatusReceived {
		t.Fatalf("status = %s, want received", received.Status)
	}

	if _, err := ReceiveAssignment(ctx, assignment.ID); err == nil {
		t.Fatal("receiving twice should fail")
	}
}

func TestConsumeAssignmentFIFOBreakdown(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	product := createTestProduct(t, "LPG 15kg", ProductCategoryGas, "0", "0", "0")
	employee := createTestEmployee(t, "Delivery C")

	older := receivedAssignment(t, employee.ID, product.ID, "5", "120", "110")
	newer := receivedAssignment(t, employee.ID, product.ID, "5", "125", "115")

	breakdown, err := ConsumeAssignmentLocked(ctx, employee.ID, product.ID, dec("7"))
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if len(breakdown) != 2 {
		t.Fatalf("breakdown slices = %d, want 2", len(breakdown))
	}
	if breakdown[0].AssignmentId != older.ID || !breakdown[0].Consumed.Equal(dec("5")) {
		t.Fatalf("first slice = %+v, want 5 from assignment %d", breakdown[0], older.ID)
	}
	if breakdown[1].AssignmentId != newer.ID || !breakdown[1].Consumed.Equal(dec("2")) {
		t.Fatalf("second slice = %+v, want 2 from assignment %d", breakdown[1], newer.ID)
	}

	reloadedOlder, _ := utils.FetchModel[Assignment](ctx, older.ID)
	if !reloadedOlder.RemainingQuantity.Equal(dec("0")) || reloadedOlder.Status != AssignmentStatusConsumed {
		t.Fatalf("older assignment = remaining %s status %s, want 0/consumed",
			reloadedOlder.RemainingQuantity, reloadedOlder.Status)
	}
	reloadedNewer, _ := utils.FetchModel[Assignment](ctx, newer.ID)
	if !reloadedNewer.RemainingQuantity.Equal(dec("3")) || reloadedNewer.Status != AssignmentStatusReceived {
		t.Fatalf("newer assignment = remaining %s status %s, want 3/received",
			reloadedNewer.RemainingQuantity, reloadedNewer.Status)
	}
}

func TestConsumeAssignmentShortfallWarnsByDefault(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	product := createTestProduct(t, "LPG 15kg", ProductCategoryGas, "0", "0", "0")
	employee := createTestEmployee(t, "Delivery D")
	receivedAssignment(t, employee.ID, product.ID, "5", "120", "110")

	breakdown, err := ConsumeAssignmentLocked(ctx, employee.ID, product.ID, dec("8"))
	if err != nil {
		t.Fatalf("lenient shortfall should not error: %v", err)
	}
	total := dec("0")
	for _, slice := range breakdown {
		total = total.Add(slice.Consumed)
	}
	if !total.Equal(dec("5")) {
		t.Fatalf("consumed total = %s, want 5 (whole pool)", total)
	}
}

func TestConsumeAssignmentShortfallStrictRejects(t *testing.T) {
	setupTestDB(t)
	t.Setenv("ASSIGNMENT_OVERSELL", "strict")
	ctx := context.Background()
	product := createTestProduct(t, "LPG 15kg", ProductCategoryGas, "0", "0", "0")
	employee := createTestEmployee(t, "Delivery E")
	receivedAssignment(t, employee.ID, product.ID, "5", "120", "110")

	if _, err := ConsumeAssignmentLocked(ctx, employee.ID, product.ID, dec("8")); err == nil {
		t.Fatal("strict shortfall should error")
	}
}

func TestAssignmentLeastPriceFromOldestBatch(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	product := createTestProduct(t, "LPG 15kg", ProductCategoryGas, "0", "0", "0")
	employee := createTestEmployee(t, "Delivery F")

	receivedAssignment(t, employee.ID, product.ID, "5", "120", "110")
	receivedAssignment(t, employee.ID, product.ID, "5", "130", "125")

	price, err := AssignmentLeastPrice(ctx, employee.ID, product.ID)
	if err != nil {
		t.Fatalf("least price: %v", err)
	}
	if !price.Equal(dec("110")) {
		t.Fatalf("least price = %s, want 110 (oldest batch)", price)
	}
}

func TestAssignmentLeastPriceNoPoolIsHardError(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	product := createTestProduct(t, "LPG 15kg", ProductCategoryGas, "0", "0", "0")
	employee := createTestEmployee(t, "Delivery G")

	_, err := AssignmentLeastPrice(ctx, employee.ID, product.ID)
	if !errors.Is(err, utils.ErrorNoPricedAssignment) {
		t.Fatalf("err = %v, want ErrorNoPricedAssignment", err)
	}
}

func TestReturnAssignmentRestoresStock(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	product := createTestProduct(t, "LPG 15kg", ProductCategoryGas, "10", "0", "0")
	employee := createTestEmployee(t, "Delivery H")

	assignment, err := CreateAssignment(ctx, &NewAssignment{
		EmployeeId: employee.ID, ProductId: product.ID, Quantity: dec("4"),
	})
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	if _, err := ReceiveAssignment(ctx, assignment.ID); err != nil {
		t.Fatalf("receive: %v", err)
	}

	returned, err := ReturnAssignment(ctx, assignment.ID)
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if returned.Status != AssignmentStatusReturned {
		t.Fatalf("status = %s, want returned", returned.Status)
	}

	got, _ := GetProduct(ctx, product.ID)
	if !got.CurrentStock.Equal(dec("10")) {
		t.Fatalf("stock after return = %s, want 10", got.CurrentStock)
	}
}
