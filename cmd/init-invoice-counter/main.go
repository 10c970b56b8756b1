package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mmdatafocus/gasdepot_backend/config"
	"github.com/mmdatafocus/gasdepot_backend/models"
	"github.com/mmdatafocus/gasdepot_backend/utils"
)

func main() {
	startAt := flag.Int64("start-at", 0, "Sequence value to start issuing from. Must be above the highest invoice number already issued.")
	flag.Parse()

	if *startAt <= 0 {
		fmt.Fprintln(os.Stderr, "-start-at is required and must be positive")
		os.Exit(1)
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	models.MigrateTable()

	ctx = utils.SetUserNameInContext(ctx, "InitInvoiceCounter")

	counter, err := models.InitializeInvoiceCounter(ctx, *startAt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize counter: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("counter %q (year %d) set; next invoice number will be %s\n",
		counter.Name, counter.Year, models.FormatInvoiceNumber(counter.SequenceNo+1))
}
