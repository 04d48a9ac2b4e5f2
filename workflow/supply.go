package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/pipeworks/factory_backend/config"
	"github.com/pipeworks/factory_backend/models"
	"github.com/pipeworks/factory_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RecordSupply posts a supply-in: re-averages the item's unit cost with the
// supplied batch, credits the stock, and writes the history row and movement
// trail in one transaction.
func RecordSupply(ctx context.Context, logger *logrus.Logger, input *models.NewSupplyRecord) (*models.SupplyRecord, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

	if !input.Quantity.IsPositive() {
		return nil, invalidQuantityError("supply quantity must be positive")
	}
	if input.UnitCost.IsNegative() {
		return nil, invalidQuantityError("unit cost cannot be negative")
	}

	date := time.Now().UTC()
	if input.Date != "" {
		parsed, err := time.Parse("2006-01-02", input.Date)
		if err != nil {
			return nil, invalidQuantityError("date must be YYYY-MM-DD")
		}
		date = parsed
	}

	var record models.SupplyRecord
	_, err := RunPosting(ctx, logger, businessId, "supply.record", "", func(tx *gorm.DB) (int, error) {

		totalCost := input.Quantity.Mul(input.UnitCost)
		if _, err := ApplyWeightedAverageCost(tx, businessId, input.ItemId, input.Quantity, totalCost); err != nil {
			return 0, err
		}
		if _, err := Credit(tx, businessId, input.ItemId, input.Quantity); err != nil {
			return 0, err
		}

		record = models.SupplyRecord{
			BusinessId:    businessId,
			ItemId:        input.ItemId,
			Quantity:      input.Quantity,
			UnitCost:      input.UnitCost,
			Supplier:      input.Supplier,
			InvoiceNumber: input.InvoiceNumber,
			Date:          date,
			Notes:         input.Notes,
		}
		if err := tx.Create(&record).Error; err != nil {
			return 0, err
		}
		return 0, models.RecordStockMovement(tx, businessId, input.ItemId, input.Quantity,
			models.StockDocTypeSupply, record.ID, correlationId)
	})
	if err != nil {
		return nil, err
	}

	if err := models.InvalidateInventorySnapshots(businessId); err != nil {
		config.LogError(logger, "supply.go", "RecordSupply", "invalidate snapshots", businessId, err)
	}
	if err := models.InvalidateResource[models.InventoryItem](input.ItemId); err != nil {
		config.LogError(logger, "supply.go", "RecordSupply", "invalidate item cache", input.ItemId, err)
	}
	return &record, nil
}
