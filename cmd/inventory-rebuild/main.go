// inventory-rebuild replays the stock movement trail and rewrites item
// quantities that drifted from it. Runs under the business posting lock, so
// it is safe against a live server.
//
// Usage:
//
//	go run ./cmd/inventory-rebuild -business-id <uuid>            # report drift only
//	go run ./cmd/inventory-rebuild -business-id <uuid> -apply     # rewrite quantities
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/pipeworks/factory_backend/config"
	"github.com/pipeworks/factory_backend/models"
	"github.com/pipeworks/factory_backend/utils"
	"github.com/pipeworks/factory_backend/workflow"
)

func main() {
	businessID := flag.String("business-id", "", "Optional: rebuild only one business. If empty, rebuilds all businesses.")
	apply := flag.Bool("apply", false, "Rewrite quantities. Default is a dry run that only reports drift.")
	flag.Parse()

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	logger := config.GetLogger()

	ctx = utils.SetIsAdminInContext(ctx, true)
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)

	var businesses []models.Business
	bizQuery := db.WithContext(ctx).Model(&models.Business{})
	if strings.TrimSpace(*businessID) != "" {
		bizQuery = bizQuery.Where("id = ?", strings.TrimSpace(*businessID))
	}
	if err := bizQuery.Find(&businesses).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to list businesses: %v\n", err)
		os.Exit(1)
	}
	if len(businesses) == 0 {
		fmt.Fprintln(os.Stderr, "no businesses found")
		return
	}

	exitCode := 0
	for _, b := range businesses {
		bid := b.ID.String()
		corrections, err := workflow.RebuildInventoryQuantities(ctx, logger, bid, !*apply)
		if err != nil {
			fmt.Fprintf(os.Stderr, "business %s: rebuild failed: %v\n", bid, err)
			exitCode = 1
			continue
		}
		if len(corrections) == 0 {
			fmt.Printf("business %s: no drift\n", bid)
			continue
		}
		for _, c := range corrections {
			fmt.Printf("business %s: item %d (%s) stored=%s replayed=%s\n",
				bid, c.ItemId, c.ItemName, c.Stored, c.Replayed)
		}
		if *apply {
			fmt.Printf("business %s: corrected %d item(s)\n", bid, len(corrections))
		} else {
			fmt.Printf("business %s: %d item(s) drifted (dry run, use -apply to fix)\n", bid, len(corrections))
		}
	}
	os.Exit(exitCode)
}
