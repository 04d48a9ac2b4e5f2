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
)

// InventoryItem is one ledger row: current quantity plus the weighted-average
// unit cost. Raw materials and finished goods share the table; the category
// decides which side of a production run the item sits on.
type InventoryItem struct {
	ID           int             `gorm:"primary_key" json:"id"`
	BusinessId   string          `gorm:"size:64;index;not null" json:"business_id"`
	Name         string          `gorm:"size:100;not null" json:"name" binding:"required"`
	Category     string          `gorm:"size:100;index;not null" json:"category" binding:"required"`
	Quantity     decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"quantity"`
	Unit         string          `gorm:"size:20;not null" json:"unit"`
	ReorderLevel decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"reorder_level"`
	CostPrice    decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"cost_price"`
	SellingPrice decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"selling_price"`
	Supplier     string          `gorm:"size:100" json:"supplier"`
	// Source distinguishes operator-defined items from finished goods
	// materialized out of a product master.
	Source          string    `gorm:"size:20;not null;default:'manual'" json:"source"`
	ProductMasterId *int      `gorm:"index" json:"product_master_id"`
	Hsn             string    `gorm:"size:20" json:"hsn"`
	GstRate         *int      `json:"gst_rate"`
	IsActive        *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (i InventoryItem) GetBusinessId() string { return i.BusinessId }

func (i *InventoryItem) IsRawMaterial() bool  { return IsRawMaterialCategory(i.Category) }
func (i *InventoryItem) IsFinishedGood() bool { return IsFinishedGoodCategory(i.Category) }

type NewInventoryItem struct {
	Name         string          `json:"name" binding:"required"`
	Category     string          `json:"category" binding:"required"`
	Quantity     decimal.Decimal `json:"quantity"`
	Unit         string          `json:"unit" binding:"required"`
	ReorderLevel decimal.Decimal `json:"reorder_level"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	Supplier     string          `json:"supplier"`
	Hsn          string          `json:"hsn"`
	GstRate      *int            `json:"gst_rate"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewInventoryItem) validate(ctx context.Context, businessId string, id int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if !IsRawMaterialCategory(input.Category) && !IsFinishedGoodCategory(input.Category) {
		return fmt.Errorf("unknown item category %q", input.Category)
	}
	if input.Quantity.IsNegative() {
		return errors.New("quantity cannot be negative")
	}
	if input.CostPrice.IsNegative() || input.SellingPrice.IsNegative() {
		return errors.New("price cannot be negative")
	}
	// name unique within the business
	if err := utils.ValidateUnique[InventoryItem](ctx, businessId, "name", input.Name, id); err != nil {
		return err
	}
	return nil
}

func CreateInventoryItem(ctx context.Context, input *NewInventoryItem) (*InventoryItem, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	item := InventoryItem{
		BusinessId:   businessId,
		Name:         input.Name,
		Category:     input.Category,
		Quantity:     input.Quantity,
		Unit:         input.Unit,
		ReorderLevel: input.ReorderLevel,
		CostPrice:    input.CostPrice,
		SellingPrice: input.SellingPrice,
		Supplier:     input.Supplier,
		Source:       "manual",
		Hsn:          input.Hsn,
		GstRate:      input.GstRate,
		IsActive:     utils.NewTrue(),
	}

	// db action; opening stock goes into the movement trail so a rebuild
	// replays to the same quantity
	db := config.GetDB()
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&item).Error; err != nil {
			return err
		}
		if item.Quantity.IsPositive() {
			return RecordStockMovement(tx, businessId, item.ID, item.Quantity,
				StockDocTypeOpening, item.ID, correlationId)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateInventoryItem edits the definition fields only. Quantity and cost
// price move through ledger operations, never through this path.
func UpdateInventoryItem(ctx context.Context, id int, input *NewInventoryItem) (*InventoryItem, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	item, err := utils.FetchModel[InventoryItem](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&item).Updates(map[string]interface{}{
		"Name":         input.Name,
		"Category":     input.Category,
		"Unit":         input.Unit,
		"ReorderLevel": input.ReorderLevel,
		"SellingPrice": input.SellingPrice,
		"Supplier":     input.Supplier,
		"Hsn":          input.Hsn,
		"GstRate":      input.GstRate,
	}).Error
	if err != nil {
		return nil, err
	}
	if err := InvalidateResource[InventoryItem](id); err != nil {
		return nil, err
	}
	return item, nil
}

func DeleteInventoryItem(ctx context.Context, id int) (*InventoryItem, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	item, err := utils.FetchModel[InventoryItem](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	// items referenced by open production runs stay
	db := config.GetDB()
	var count int64
	if err := db.WithContext(ctx).Model(&ProductionRun{}).
		Where("business_id = ? AND finished_good_id = ? AND status <> ?",
			businessId, id, RunStatusCompleted).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("item is referenced by open production runs")
	}
	var ingredientCount int64
	if err := db.WithContext(ctx).Model(&RunIngredient{}).
		Joins("JOIN production_runs ON production_runs.id = run_ingredients.production_run_id").
		Where("run_ingredients.raw_material_id = ? AND production_runs.business_id = ? AND production_runs.status <> ?",
			id, businessId, RunStatusCompleted).
		Count(&ingredientCount).Error; err != nil {
		return nil, err
	}
	if ingredientCount > 0 {
		return nil, errors.New("item is referenced by open production runs")
	}

	if err := db.WithContext(ctx).Delete(&item).Error; err != nil {
		return nil, err
	}
	if err := InvalidateResource[InventoryItem](id); err != nil {
		return nil, err
	}
	return item, nil
}

func GetInventoryItem(ctx context.Context, id int) (*InventoryItem, error) {
	return GetResource[InventoryItem](ctx, id)
}

func ListInventoryItem(ctx context.Context, category *string, name *string) ([]*InventoryItem, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*InventoryItem

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if category != nil && len(*category) > 0 {
		dbCtx = dbCtx.Where("category = ?", *category)
	}
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	if err := dbCtx.Order("name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// InventorySnapshot is the dropdown shape the UI consumes: item plus its
// available quantity annotation.
type InventorySnapshot struct {
	ID        int             `json:"id"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	Unit      string          `json:"unit"`
	Available decimal.Decimal `json:"available"`
	CostPrice decimal.Decimal `json:"cost_price"`
}

const snapshotCacheTTL = 30 * time.Second

func snapshotCacheKey(businessId string) string {
	return "inventory_snapshots:" + businessId
}

// ListInventorySnapshots serves the dropdown data, cached briefly in redis.
// The cache is a read-side convenience only; ledger writes do not wait on it.
func ListInventorySnapshots(ctx context.Context) ([]*InventorySnapshot, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	var cached []*InventorySnapshot
	found, err := config.GetRedisObject(snapshotCacheKey(businessId), &cached)
	if err == nil && found {
		return cached, nil
	}

	db := config.GetDB()
	var results []*InventorySnapshot
	err = db.WithContext(ctx).Model(&InventoryItem{}).
		Select("id, name, category, unit, quantity AS available, cost_price").
		Where("business_id = ? AND is_active = ?", businessId, true).
		Order("name").
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	if err := config.SetRedisObject(snapshotCacheKey(businessId), results, snapshotCacheTTL); err != nil {
		return nil, err
	}
	return results, nil
}

// InvalidateInventorySnapshots is called after every committed ledger write.
func InvalidateInventorySnapshots(businessId string) error {
	return config.DeleteRedisKey(snapshotCacheKey(businessId))
}
