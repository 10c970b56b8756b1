package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mmdatafocus/gasdepot_backend/config"
	"github.com/mmdatafocus/gasdepot_backend/models"
	"github.com/mmdatafocus/gasdepot_backend/utils"
	"github.com/mmdatafocus/gasdepot_backend/workflow"
)

func main() {
	employeeID := flag.Int("employee-id", 0, "Employee to rebuild (0 rebuilds the admin-level rows).")
	from := flag.String("from", "", "Start date (YYYY-MM-DD). Required.")
	to := flag.String("to", "", "Optional: end date (YYYY-MM-DD), inclusive. Defaults to the start date.")
	flag.Parse()

	if strings.TrimSpace(*from) == "" {
		fmt.Fprintln(os.Stderr, "-from is required")
		os.Exit(1)
	}
	start, err := time.Parse("2006-01-02", strings.TrimSpace(*from))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -from date: %v\n", err)
		os.Exit(1)
	}
	end := start
	if strings.TrimSpace(*to) != "" {
		end, err = time.Parse("2006-01-02", strings.TrimSpace(*to))
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -to date: %v\n", err)
			os.Exit(1)
		}
	}
	if end.Before(start) {
		fmt.Fprintln(os.Stderr, "-to must not be before -from")
		os.Exit(1)
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	models.MigrateTable()

	ctx = utils.SetUserNameInContext(ctx, "RebuildDailyAggregates")

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if err := workflow.RebuildDailyAggregates(ctx, *employeeID, day); err != nil {
			fmt.Fprintf(os.Stderr, "rebuild %s failed: %v\n", day.Format("2006-01-02"), err)
			os.Exit(1)
		}
		fmt.Printf("rebuilt %s for employee %d\n", day.Format("2006-01-02"), *employeeID)
	}
}
