package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/gasdepot_backend/config"
	"github.com/mmdatafocus/gasdepot_backend/models"
	"github.com/mmdatafocus/gasdepot_backend/utils"
)

func main() {
	scope := flag.String("scope", "", "Merge scope: assignments or stock_movements. Empty runs both.")
	flag.Parse()

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	models.MigrateTable()

	ctx = utils.SetUserNameInContext(ctx, "MergeDuplicates")

	scopes := []string{"assignments", "stock_movements"}
	if s := strings.TrimSpace(*scope); s != "" {
		scopes = []string{s}
	}

	for _, s := range scopes {
		result, err := models.MergeDuplicates(ctx, s)
		if err != nil {
			fmt.Fprintf(os.Stderr, "merge %s failed: %v\n", s, err)
			os.Exit(1)
		}
		fmt.Printf("scope %s: merged %d groups, removed %d rows\n", result.Scope, result.GroupsMerged, result.RowsRemoved)
	}
}
