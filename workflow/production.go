package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pipeworks/factory_backend/config"
	"github.com/pipeworks/factory_backend/models"
	"github.com/pipeworks/factory_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type IngredientInput struct {
	RawMaterialId int             `json:"raw_material_id" binding:"required"`
	Quantity      decimal.Decimal `json:"quantity" binding:"required"`
}

type StartRunInput struct {
	ProductMasterId      int               `json:"product_master_id" binding:"required"`
	Date                 time.Time         `json:"date"`
	QuantityProduced     decimal.Decimal   `json:"quantity_produced" binding:"required"`
	MoldId               *int              `json:"mold_id"`
	ProductionLocationId *int              `json:"production_location_id"`
	Supervisor           string            `json:"supervisor"`
	Notes                string            `json:"notes"`
	LabourCost           decimal.Decimal   `json:"labour_cost"`
	PowerCost            decimal.Decimal   `json:"power_cost"`
	Ingredients          []IngredientInput `json:"ingredients" binding:"required"`
	RequestId            string            `json:"request_id"`
}

func fetchRunForUpdate(tx *gorm.DB, businessId string, runId int) (*models.ProductionRun, error) {
	var run models.ProductionRun
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ?", businessId).
		Preload("Ingredients").
		First(&run, runId).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("production run", runId)
		}
		return nil, err
	}
	return &run, nil
}

// StartRun casts a new batch: consumes every ingredient at its current unit
// cost, acquires the mold if one is named, and creates the run in Started.
// Finished-goods stock is untouched until completion.
func StartRun(ctx context.Context, logger *logrus.Logger, input *StartRunInput) (*models.ProductionRun, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

	if !input.QuantityProduced.IsPositive() {
		return nil, invalidQuantityError("quantity produced must be positive")
	}
	if len(input.Ingredients) == 0 {
		return nil, invalidQuantityError("at least one ingredient is required")
	}
	for _, ing := range input.Ingredients {
		if !ing.Quantity.IsPositive() {
			return nil, invalidQuantityError("ingredient quantity must be positive")
		}
	}
	if input.LabourCost.IsNegative() || input.PowerCost.IsNegative() {
		return nil, invalidQuantityError("overhead cost cannot be negative")
	}
	date := input.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}

	runId, err := RunPosting(ctx, logger, businessId, "production.start", input.RequestId, func(tx *gorm.DB) (int, error) {

		var master models.ProductMaster
		if err := tx.Where("business_id = ?", businessId).
			First(&master, input.ProductMasterId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return 0, notFoundError("product master", input.ProductMasterId)
			}
			return 0, err
		}

		finishedGood, err := models.EnsureFinishedGoodItem(tx, businessId, &master)
		if err != nil {
			return 0, err
		}

		batchId, err := models.NextBatchId(tx, businessId, models.BatchPrefixProduction)
		if err != nil {
			return 0, err
		}

		run := models.ProductionRun{
			BusinessId:           businessId,
			BatchId:              batchId,
			Date:                 date,
			FinishedGoodId:       finishedGood.ID,
			ProductMasterId:      master.ID,
			QuantityProduced:     input.QuantityProduced,
			MoldId:               input.MoldId,
			ProductionLocationId: input.ProductionLocationId,
			Supervisor:           input.Supervisor,
			Notes:                input.Notes,
			LabourCost:           input.LabourCost,
			PowerCost:            input.PowerCost,
			Status:               models.RunStatusStarted,
		}
		if err := tx.Create(&run).Error; err != nil {
			return 0, err
		}

		for _, ing := range input.Ingredients {
			consumed, err := Consume(tx, businessId, ing.RawMaterialId, ing.Quantity)
			if err != nil {
				return 0, err
			}
			if !consumed.IsRawMaterial() {
				return 0, invalidQuantityError(fmt.Sprintf("%s is not a raw material", consumed.Name))
			}
			snapshot := models.RunIngredient{
				ProductionRunId: run.ID,
				RawMaterialId:   ing.RawMaterialId,
				Quantity:        ing.Quantity,
				UnitCost:        consumed.CostPrice,
			}
			if err := tx.Create(&snapshot).Error; err != nil {
				return 0, err
			}
			if err := models.RecordStockMovement(tx, businessId, ing.RawMaterialId, ing.Quantity.Neg(),
				models.StockDocTypeProdStart, run.ID, correlationId); err != nil {
				return 0, err
			}
		}

		if input.MoldId != nil {
			if err := AcquireMold(tx, businessId, *input.MoldId); err != nil {
				return 0, err
			}
		}

		if err := models.InsertDomainEvent(tx, businessId, models.EventTypeRunStarted, run.ID, run, correlationId); err != nil {
			return 0, err
		}
		return run.ID, nil
	})
	if err != nil {
		return nil, err
	}

	if err := models.InvalidateInventorySnapshots(businessId); err != nil {
		config.LogError(logger, "production.go", "StartRun", "invalidate snapshots", businessId, err)
	}
	return models.GetProductionRun(ctx, runId)
}

type MoveToCuringInput struct {
	CuringLocationId int             `json:"curing_location_id" binding:"required"`
	CuringQty        decimal.Decimal `json:"curing_qty"`
	CuringStart      *time.Time      `json:"curing_start"`
	RequestId        string          `json:"request_id"`
}

// MoveRunToCuring releases the mold and parks the batch at a curing location.
// Only a Started run can move here; the stage is optional and skippable.
func MoveRunToCuring(ctx context.Context, logger *logrus.Logger, runId int, input *MoveToCuringInput) (*models.ProductionRun, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

	if input.CuringQty.IsNegative() {
		return nil, invalidQuantityError("curing quantity cannot be negative")
	}

	_, err := RunPosting(ctx, logger, businessId, "production.curing", input.RequestId, func(tx *gorm.DB) (int, error) {

		run, err := fetchRunForUpdate(tx, businessId, runId)
		if err != nil {
			return 0, err
		}
		switch run.Status {
		case models.RunStatusCompleted:
			return 0, fmt.Errorf("%w: %s", ErrAlreadyTerminal, run.BatchId)
		case models.RunStatusOnCuring:
			return 0, fmt.Errorf("%w: run %s is already on curing", ErrInvalidState, run.BatchId)
		}
		if input.CuringQty.GreaterThan(run.QuantityProduced) {
			return 0, invalidQuantityError("curing quantity exceeds quantity produced")
		}

		var location models.StorageLocation
		if err := tx.Where("business_id = ?", businessId).
			First(&location, input.CuringLocationId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return 0, notFoundError("storage location", input.CuringLocationId)
			}
			return 0, err
		}

		if run.MoldId != nil {
			if err := ReleaseMold(tx, businessId, *run.MoldId); err != nil {
				return 0, err
			}
		}

		curingQty := input.CuringQty
		if curingQty.IsZero() {
			curingQty = run.QuantityProduced
		}
		curingStart := time.Now().UTC()
		if input.CuringStart != nil {
			curingStart = *input.CuringStart
		}
		err = tx.Model(&models.ProductionRun{}).Where("id = ?", run.ID).
			Updates(map[string]interface{}{
				"status":                  models.RunStatusOnCuring,
				"curing_location_id":      input.CuringLocationId,
				"curing_from_location_id": run.ProductionLocationId,
				"curing_qty":              curingQty,
				"curing_start":            &curingStart,
			}).Error
		if err != nil {
			return 0, err
		}

		if err := models.InsertDomainEvent(tx, businessId, models.EventTypeRunMovedToCuring, run.ID, map[string]interface{}{
			"batch_id":           run.BatchId,
			"curing_location_id": input.CuringLocationId,
			"curing_qty":         curingQty,
		}, correlationId); err != nil {
			return 0, err
		}
		return run.ID, nil
	})
	if err != nil {
		return nil, err
	}
	return models.GetProductionRun(ctx, runId)
}

type CompleteCuringInput struct {
	PassedQty       decimal.Decimal `json:"passed_qty" binding:"required"`
	DamagedQty      decimal.Decimal `json:"damaged_qty"`
	StockLocationId *int            `json:"stock_location_id"`
	CompletedAt     *time.Time      `json:"completed_at"`
	RequestId       string          `json:"request_id"`
}

// CompleteRunCuring closes the batch: fixes goodQty and the batch cost basis,
// re-averages the finished good's unit cost with the full produced quantity,
// and credits the sellable portion into stock.
func CompleteRunCuring(ctx context.Context, logger *logrus.Logger, runId int, input *CompleteCuringInput) (*models.ProductionRun, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

	if input.PassedQty.IsNegative() || input.DamagedQty.IsNegative() {
		return nil, invalidQuantityError("passed/damaged quantities cannot be negative")
	}
	if input.DamagedQty.GreaterThan(input.PassedQty) {
		return nil, invalidQuantityError("damaged quantity exceeds passed quantity")
	}

	_, err := RunPosting(ctx, logger, businessId, "production.complete", input.RequestId, func(tx *gorm.DB) (int, error) {

		run, err := fetchRunForUpdate(tx, businessId, runId)
		if err != nil {
			return 0, err
		}
		if run.Status == models.RunStatusCompleted {
			return 0, fmt.Errorf("%w: %s", ErrAlreadyTerminal, run.BatchId)
		}
		if input.PassedQty.GreaterThan(run.QuantityProduced) {
			return 0, invalidQuantityError("passed quantity exceeds quantity produced")
		}

		// Curing is optional: completing straight from Started still frees
		// the mold, exactly as the curing move would have.
		if run.Status == models.RunStatusStarted && run.MoldId != nil {
			if err := ReleaseMold(tx, businessId, *run.MoldId); err != nil {
				return 0, err
			}
		}

		goodQty := input.PassedQty.Sub(input.DamagedQty)
		if run.InternalUseQty.GreaterThan(goodQty) {
			return 0, invalidQuantityError("internal use quantity exceeds good quantity")
		}
		sellableQty := goodQty.Sub(run.InternalUseQty)
		if sellableQty.IsNegative() {
			sellableQty = decimal.Zero
		}

		ingredients := make([]IngredientCost, 0, len(run.Ingredients))
		for _, ing := range run.Ingredients {
			ingredients = append(ingredients, IngredientCost{Quantity: ing.Quantity, UnitCost: ing.UnitCost})
		}
		batchCost := BatchCost(ingredients, run.LabourCost, run.PowerCost)

		// Cost basis first, against the pre-credit quantity, then the stock credit.
		if _, err := ApplyWeightedAverageCost(tx, businessId, run.FinishedGoodId, run.QuantityProduced, batchCost); err != nil {
			return 0, err
		}
		if _, err := Credit(tx, businessId, run.FinishedGoodId, sellableQty); err != nil {
			return 0, err
		}
		if err := models.RecordStockMovement(tx, businessId, run.FinishedGoodId, sellableQty,
			models.StockDocTypeProdComplete, run.ID, correlationId); err != nil {
			return 0, err
		}

		completedAt := time.Now().UTC()
		if input.CompletedAt != nil {
			completedAt = *input.CompletedAt
		}
		err = tx.Model(&models.ProductionRun{}).Where("id = ?", run.ID).
			Updates(map[string]interface{}{
				"status":            models.RunStatusCompleted,
				"good_qty":          goodQty,
				"rejected_quantity": input.DamagedQty,
				"sellable_qty":      sellableQty,
				"wastage_quantity":  run.QuantityProduced.Sub(input.PassedQty),
				"batch_cost":        batchCost,
				"stock_location_id": input.StockLocationId,
				"completed_at":      &completedAt,
			}).Error
		if err != nil {
			return 0, err
		}

		if err := models.InsertDomainEvent(tx, businessId, models.EventTypeRunCompleted, run.ID, map[string]interface{}{
			"batch_id":     run.BatchId,
			"good_qty":     goodQty,
			"sellable_qty": sellableQty,
			"batch_cost":   batchCost,
		}, correlationId); err != nil {
			return 0, err
		}
		return run.ID, nil
	})
	if err != nil {
		return nil, err
	}

	if err := models.InvalidateInventorySnapshots(businessId); err != nil {
		config.LogError(logger, "production.go", "CompleteRunCuring", "invalidate snapshots", businessId, err)
	}
	return models.GetProductionRun(ctx, runId)
}

type AllocateSecondaryInput struct {
	RequestedQty          decimal.Decimal `json:"requested_qty"`
	SepticProductMasterId int             `json:"septic_product_master_id" binding:"required"`
	SepticLocationId      *int            `json:"septic_location_id"`
	RequestId             string          `json:"request_id"`
}

// AllocateSecondary diverts completed stock into a secondary product line.
// A positive delta moves stock source→secondary and spawns a sibling run; a
// negative delta moves it back without reconciling a previously spawned
// sibling (the movement trail carries the correction).
func AllocateSecondary(ctx context.Context, logger *logrus.Logger, runId int, input *AllocateSecondaryInput) (*models.ProductionRun, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

	if input.RequestedQty.IsNegative() {
		return nil, invalidQuantityError("requested allocation cannot be negative")
	}

	_, err := RunPosting(ctx, logger, businessId, "production.allocate", input.RequestId, func(tx *gorm.DB) (int, error) {

		run, err := fetchRunForUpdate(tx, businessId, runId)
		if err != nil {
			return 0, err
		}
		if run.Status != models.RunStatusCompleted {
			return 0, fmt.Errorf("%w: run %s must be completed before allocation", ErrInvalidState, run.BatchId)
		}
		if input.RequestedQty.GreaterThan(run.GoodQty) {
			return 0, invalidQuantityError("requested allocation exceeds good quantity")
		}

		var septicMaster models.ProductMaster
		if err := tx.Where("business_id = ?", businessId).
			First(&septicMaster, input.SepticProductMasterId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return 0, notFoundError("product master", input.SepticProductMasterId)
			}
			return 0, err
		}
		secondary, err := models.EnsureFinishedGoodItem(tx, businessId, &septicMaster)
		if err != nil {
			return 0, err
		}

		delta := input.RequestedQty.Sub(run.InternalUseQty)

		if delta.IsPositive() {
			if _, err := Consume(tx, businessId, run.FinishedGoodId, delta); err != nil {
				return 0, err
			}
			if _, err := Credit(tx, businessId, secondary.ID, delta); err != nil {
				return 0, err
			}

			batchId, err := models.NextBatchId(tx, businessId, models.BatchPrefixSeptic)
			if err != nil {
				return 0, err
			}
			now := time.Now().UTC()
			sourceRunId := run.ID
			sibling := models.ProductionRun{
				BusinessId:            businessId,
				BatchId:               batchId,
				Date:                  now,
				FinishedGoodId:        secondary.ID,
				ProductMasterId:       septicMaster.ID,
				QuantityProduced:      delta,
				GoodQty:               delta,
				SellableQty:           delta,
				Status:                models.RunStatusCompleted,
				SourceRunId:           &sourceRunId,
				SepticLocationId:      input.SepticLocationId,
				CompletedAt:           &now,
				SepticProductMasterId: &input.SepticProductMasterId,
			}
			if err := tx.Create(&sibling).Error; err != nil {
				return 0, err
			}

			if err := models.RecordStockMovement(tx, businessId, run.FinishedGoodId, delta.Neg(),
				models.StockDocTypeAllocate, run.ID, correlationId); err != nil {
				return 0, err
			}
			if err := models.RecordStockMovement(tx, businessId, secondary.ID, delta,
				models.StockDocTypeAllocate, sibling.ID, correlationId); err != nil {
				return 0, err
			}
		} else if delta.IsNegative() {
			back := delta.Neg()
			if _, err := Consume(tx, businessId, secondary.ID, back); err != nil {
				return 0, err
			}
			if _, err := Credit(tx, businessId, run.FinishedGoodId, back); err != nil {
				return 0, err
			}
			if err := models.RecordStockMovement(tx, businessId, secondary.ID, back.Neg(),
				models.StockDocTypeAllocate, run.ID, correlationId); err != nil {
				return 0, err
			}
			if err := models.RecordStockMovement(tx, businessId, run.FinishedGoodId, back,
				models.StockDocTypeAllocate, run.ID, correlationId); err != nil {
				return 0, err
			}
		}

		err = tx.Model(&models.ProductionRun{}).Where("id = ?", run.ID).
			Updates(map[string]interface{}{
				"internal_use_qty":         input.RequestedQty,
				"sellable_qty":             run.GoodQty.Sub(input.RequestedQty),
				"septic_product_master_id": input.SepticProductMasterId,
				"septic_location_id":       input.SepticLocationId,
			}).Error
		if err != nil {
			return 0, err
		}

		if err := models.InsertDomainEvent(tx, businessId, models.EventTypeRunAllocated, run.ID, map[string]interface{}{
			"batch_id":         run.BatchId,
			"internal_use_qty": input.RequestedQty,
			"delta":            delta,
			"secondary_item":   secondary.ID,
		}, correlationId); err != nil {
			return 0, err
		}
		return run.ID, nil
	})
	if err != nil {
		return nil, err
	}

	if err := models.InvalidateInventorySnapshots(businessId); err != nil {
		config.LogError(logger, "production.go", "AllocateSecondary", "invalidate snapshots", businessId, err)
	}
	return models.GetProductionRun(ctx, runId)
}
