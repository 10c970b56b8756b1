package models

import (
	"log"

	"github.com/mmdatafocus/gasdepot_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Product{}, &Employee{}, &Customer{},
		&InvoiceCounter{},
		&Sale{}, &SaleDetail{},
		&EmployeeSale{}, &EmployeeSaleDetail{},
		&CylinderTransaction{},
		&Assignment{},
		&StockMovement{},
		&DailyAggregate{},
		&ReconciliationReport{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
