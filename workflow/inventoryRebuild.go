package workflow

import (
	"context"
	"errors"

	"github.com/pipeworks/factory_backend/config"
	"github.com/pipeworks/factory_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RebuildResult reports one corrected item.
type RebuildResult struct {
	ItemId   int             `json:"item_id"`
	ItemName string          `json:"item_name"`
	Stored   decimal.Decimal `json:"stored"`
	Replayed decimal.Decimal `json:"replayed"`
}

// RebuildInventoryQuantities replays the movement trail and rewrites each
// item's quantity to the replayed sum. Runs under the posting lock so no
// transition interleaves with the rewrite. dryRun reports drift without
// touching anything.
func RebuildInventoryQuantities(ctx context.Context, logger *logrus.Logger, businessId string, dryRun bool) ([]RebuildResult, error) {
	if businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var corrections []RebuildResult

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireBusinessPostingLock(tx, businessId); err != nil {
			return err
		}
		defer ReleaseBusinessPostingLock(tx, businessId)

		var items []models.InventoryItem
		if err := tx.Where("business_id = ?", businessId).Find(&items).Error; err != nil {
			return err
		}

		type movementSum struct {
			ItemId int
			Total  decimal.Decimal
		}
		var sums []movementSum
		// REBUILD rows are audit markers of past corrections, not movements.
		err := tx.Model(&models.StockMovement{}).
			Select("item_id, COALESCE(SUM(qty_delta), 0) AS total").
			Where("business_id = ? AND doc_type <> ?", businessId, models.StockDocTypeRebuild).
			Group("item_id").
			Scan(&sums).Error
		if err != nil {
			return err
		}
		replayed := make(map[int]decimal.Decimal, len(sums))
		for _, s := range sums {
			replayed[s.ItemId] = s.Total
		}

		for _, item := range items {
			want, ok := replayed[item.ID]
			if !ok {
				want = decimal.Zero
			}
			if item.Quantity.Equal(want) {
				continue
			}
			corrections = append(corrections, RebuildResult{
				ItemId:   item.ID,
				ItemName: item.Name,
				Stored:   item.Quantity,
				Replayed: want,
			})
			config.LogError(logger, "inventoryRebuild.go", "RebuildInventoryQuantities", "quantity drift", map[string]interface{}{
				"item_id": item.ID, "stored": item.Quantity, "replayed": want,
			}, nil)
			if dryRun {
				continue
			}
			if err := tx.Model(&models.InventoryItem{}).Where("id = ?", item.ID).
				Update("quantity", want).Error; err != nil {
				return err
			}
			if err := models.RecordStockMovement(tx, businessId, item.ID, want.Sub(item.Quantity),
				models.StockDocTypeRebuild, item.ID, ""); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !dryRun && len(corrections) > 0 {
		if err := models.InvalidateInventorySnapshots(businessId); err != nil {
			config.LogError(logger, "inventoryRebuild.go", "RebuildInventoryQuantities", "invalidate snapshots", businessId, err)
		}
	}
	return corrections, nil
}
