package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pipeworks/factory_backend/config"
	"github.com/pipeworks/factory_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProductionRun is the batch aggregate. Quantities are written stage by stage:
// quantityProduced at start, curing fields at move-to-curing, goodQty/
// rejectedQuantity/sellableQty at completion, internalUseQty at allocation.
type ProductionRun struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"size:64;index;not null" json:"business_id"`
	BatchId    string    `gorm:"size:50;index;not null" json:"batch_id"`
	Date       time.Time `gorm:"not null" json:"date"`

	FinishedGoodId  int `gorm:"index;not null" json:"finished_good_id"`
	ProductMasterId int `gorm:"index;not null" json:"product_master_id"`

	QuantityProduced decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"quantity_produced"`
	RejectedQuantity decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"rejected_quantity"`
	GoodQty          decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"good_qty"`
	InternalUseQty   decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"internal_use_qty"`
	SellableQty      decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"sellable_qty"`
	WastageQuantity  decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"wastage_quantity"`

	LabourCost decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"labour_cost"`
	PowerCost  decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"power_cost"`
	// BatchCost is fixed at completion: ingredient snapshot value + overheads.
	BatchCost decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"batch_cost"`

	MoldId               *int `gorm:"index" json:"mold_id"`
	ProductionLocationId *int `json:"production_location_id"`
	CuringLocationId     *int `json:"curing_location_id"`
	CuringFromLocationId *int `json:"curing_from_location_id"`
	StockLocationId      *int `json:"stock_location_id"`
	SepticLocationId     *int `json:"septic_location_id"`

	CuringQty   decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"curing_qty"`
	CuringStart *time.Time      `json:"curing_start"`
	CompletedAt *time.Time      `json:"completed_at"`

	Status                ProductionRunStatus `gorm:"size:20;index;not null;default:'Started'" json:"status"`
	SourceRunId           *int                `gorm:"index" json:"source_run_id"`
	SepticProductMasterId *int                `json:"septic_product_master_id"`

	Supervisor string `gorm:"size:100" json:"supervisor"`
	Notes      string `gorm:"type:text" json:"notes"`

	Ingredients []RunIngredient `gorm:"foreignKey:ProductionRunId" json:"ingredients"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r ProductionRun) GetBusinessId() string { return r.BusinessId }

// RunIngredient is a consumption snapshot fixed at start: quantity and the
// raw material's unit cost at that moment. Never recomputed afterwards.
type RunIngredient struct {
	ID              int             `gorm:"primary_key" json:"id"`
	ProductionRunId int             `gorm:"index;not null" json:"production_run_id"`
	RawMaterialId   int             `gorm:"index;not null" json:"raw_material_id"`
	Quantity        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitCost        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_cost"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// BatchSequence stores the per-tenant, per-prefix counter behind batch ids.
// A stored counter keeps ids unique under concurrent starts, which a
// time-suffix scheme cannot guarantee.
type BatchSequence struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"size:64;not null;index:uniq_batch_seq,unique" json:"business_id"`
	Prefix     string    `gorm:"size:20;not null;index:uniq_batch_seq,unique" json:"prefix"`
	NextValue  int       `gorm:"not null;default:1" json:"next_value"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

const (
	BatchPrefixProduction = "BATCH"
	BatchPrefixSeptic     = "SEPTIC"
)

// NextBatchId claims the next id under the caller's transaction. The row is
// locked FOR UPDATE so concurrent starts serialize on the counter.
func NextBatchId(tx *gorm.DB, businessId string, prefix string) (string, error) {
	var seq BatchSequence
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND prefix = ?", businessId, prefix).
		First(&seq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		seq = BatchSequence{BusinessId: businessId, Prefix: prefix, NextValue: 1}
		if err := tx.Create(&seq).Error; err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	}

	value := seq.NextValue
	if err := tx.Model(&BatchSequence{}).Where("id = ?", seq.ID).
		Update("next_value", value+1).Error; err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%04d", prefix, value), nil
}

func GetProductionRun(ctx context.Context, id int) (*ProductionRun, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[ProductionRun](ctx, businessId, id, "Ingredients")
}

// ProductionRunFilter narrows the listing; zero values mean "no filter".
type ProductionRunFilter struct {
	Status   *ProductionRunStatus
	DateFrom *time.Time
	DateTo   *time.Time
	// Search matches batch id, supervisor and notes.
	Search string
	Limit  int
	Offset int
}

func ListProductionRun(ctx context.Context, filter ProductionRunFilter) ([]*ProductionRun, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if filter.Status != nil {
		dbCtx = dbCtx.Where("status = ?", *filter.Status)
	}
	if filter.DateFrom != nil {
		dbCtx = dbCtx.Where("date >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		dbCtx = dbCtx.Where("date <= ?", *filter.DateTo)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		dbCtx = dbCtx.Where("batch_id LIKE ? OR supervisor LIKE ? OR notes LIKE ?", like, like, like)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = config.SearchLimit
	}

	var results []*ProductionRun
	err := dbCtx.Preload("Ingredients").
		Order("date DESC, id DESC").
		Limit(limit).Offset(filter.Offset).
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

type UpdateProductionRunInput struct {
	Supervisor string `json:"supervisor"`
	Notes      string `json:"notes"`
}

// UpdateProductionRunDetails edits descriptive fields only. Quantities,
// ingredients and the mold are fixed once Start commits; under strict
// immutability even descriptive edits are refused after completion.
func UpdateProductionRunDetails(ctx context.Context, id int, input *UpdateProductionRunInput) (*ProductionRun, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	run, err := utils.FetchModel[ProductionRun](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	if config.StrictRunImmutability() && run.Status == RunStatusCompleted {
		return nil, errors.New("completed runs are immutable")
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&run).Updates(map[string]interface{}{
		"Supervisor": input.Supervisor,
		"Notes":      input.Notes,
	}).Error
	if err != nil {
		return nil, err
	}
	return run, nil
}

// DeleteProductionRun is the documented escape hatch: it removes the run row
// and its ingredient snapshots but does NOT reverse any ledger effect the run
// already committed. Requires the actor's can_delete permission. A Started run
// still holding its mold must have the mold released first.
func DeleteProductionRun(ctx context.Context, id int) (*ProductionRun, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if canDelete, ok := utils.GetCanDeleteFromContext(ctx); !ok || !canDelete {
		return nil, errors.New("actor does not have delete permission")
	}

	run, err := utils.FetchModel[ProductionRun](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if run.Status == RunStatusStarted && run.MoldId != nil {
		var mold MoldResource
		if err := db.WithContext(ctx).Where("business_id = ?", businessId).
			First(&mold, *run.MoldId).Error; err == nil && mold.Status == MoldStatusInProduction {
			return nil, errors.New("run still holds its mold; release it before deleting")
		}
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("production_run_id = ?", id).Delete(&RunIngredient{}).Error; err != nil {
			return err
		}
		return tx.Delete(&ProductionRun{}, id).Error
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}
