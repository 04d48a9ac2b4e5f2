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

// ProductMaster is the recipe/definition a production run is started from.
// The finished-good InventoryItem is materialized lazily on first use.
type ProductMaster struct {
	ID           int             `gorm:"primary_key" json:"id"`
	BusinessId   string          `gorm:"size:64;index;not null" json:"business_id"`
	Name         string          `gorm:"size:100;not null" json:"name" binding:"required"`
	Category     string          `gorm:"size:100;not null" json:"category" binding:"required"`
	Unit         string          `gorm:"size:20;not null" json:"unit"`
	CostPrice    decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"cost_price"`
	SellingPrice decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"selling_price"`
	PipeType     string          `gorm:"size:50" json:"pipe_type"`
	LoadClass    string          `gorm:"size:50" json:"load_class"`
	Hsn          string          `gorm:"size:20" json:"hsn"`
	GstRate      *int            `json:"gst_rate"`
	IsActive     *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p ProductMaster) GetBusinessId() string { return p.BusinessId }

type NewProductMaster struct {
	Name         string          `json:"name" binding:"required"`
	Category     string          `json:"category" binding:"required"`
	Unit         string          `json:"unit"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	PipeType     string          `json:"pipe_type"`
	LoadClass    string          `json:"load_class"`
	Hsn          string          `json:"hsn"`
	GstRate      *int            `json:"gst_rate"`
}

func (input *NewProductMaster) validate(ctx context.Context, businessId string, id int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if !IsFinishedGoodCategory(input.Category) {
		return fmt.Errorf("product master category must be a finished-goods category, got %q", input.Category)
	}
	return utils.ValidateUnique[ProductMaster](ctx, businessId, "name", input.Name, id)
}

func CreateProductMaster(ctx context.Context, input *NewProductMaster) (*ProductMaster, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	unit := input.Unit
	if unit == "" {
		unit = "Nos"
	}
	master := ProductMaster{
		BusinessId:   businessId,
		Name:         input.Name,
		Category:     input.Category,
		Unit:         unit,
		CostPrice:    input.CostPrice,
		SellingPrice: input.SellingPrice,
		PipeType:     input.PipeType,
		LoadClass:    input.LoadClass,
		Hsn:          input.Hsn,
		GstRate:      input.GstRate,
		IsActive:     utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&master).Error; err != nil {
		return nil, err
	}
	return &master, nil
}

func UpdateProductMaster(ctx context.Context, id int, input *NewProductMaster) (*ProductMaster, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	master, err := utils.FetchModel[ProductMaster](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&master).Updates(map[string]interface{}{
		"Name":         input.Name,
		"Category":     input.Category,
		"Unit":         input.Unit,
		"SellingPrice": input.SellingPrice,
		"PipeType":     input.PipeType,
		"LoadClass":    input.LoadClass,
		"Hsn":          input.Hsn,
		"GstRate":      input.GstRate,
	}).Error
	if err != nil {
		return nil, err
	}
	if err := InvalidateResource[ProductMaster](id); err != nil {
		return nil, err
	}
	return master, nil
}

func DeleteProductMaster(ctx context.Context, id int) (*ProductMaster, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	master, err := utils.FetchModel[ProductMaster](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	var count int64
	if err := db.WithContext(ctx).Model(&ProductionRun{}).
		Where("business_id = ? AND (product_master_id = ? OR septic_product_master_id = ?)",
			businessId, id, id).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("product master is referenced by production runs")
	}

	if err := db.WithContext(ctx).Delete(&master).Error; err != nil {
		return nil, err
	}
	if err := InvalidateResource[ProductMaster](id); err != nil {
		return nil, err
	}
	return master, nil
}

func GetProductMaster(ctx context.Context, id int) (*ProductMaster, error) {
	return GetResource[ProductMaster](ctx, id)
}

func ListProductMaster(ctx context.Context, category *string) ([]*ProductMaster, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*ProductMaster

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if category != nil && len(*category) > 0 {
		dbCtx = dbCtx.Where("category = ?", *category)
	}
	if err := dbCtx.Order("name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// EnsureFinishedGoodItem finds the inventory item backing a product master,
// creating it with zero stock on first use. Runs inside the caller's
// transaction so a rolled-back run start leaves no orphan item behind.
func EnsureFinishedGoodItem(tx *gorm.DB, businessId string, master *ProductMaster) (*InventoryItem, error) {
	var item InventoryItem
	err := tx.Where("business_id = ? AND product_master_id = ?", businessId, master.ID).
		First(&item).Error
	if err == nil {
		return &item, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// fall back to a name match for items defined before the master existed
	err = tx.Where("business_id = ? AND name = ? AND category = ?", businessId, master.Name, master.Category).
		First(&item).Error
	if err == nil {
		if item.ProductMasterId == nil {
			masterId := master.ID
			if err := tx.Model(&item).Update("product_master_id", masterId).Error; err != nil {
				return nil, err
			}
			item.ProductMasterId = &masterId
		}
		return &item, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	masterId := master.ID
	item = InventoryItem{
		BusinessId:      businessId,
		Name:            master.Name,
		Category:        master.Category,
		Quantity:        decimal.Zero,
		Unit:            master.Unit,
		CostPrice:       master.CostPrice,
		SellingPrice:    master.SellingPrice,
		Source:          "product_master",
		ProductMasterId: &masterId,
		Hsn:             master.Hsn,
		GstRate:         master.GstRate,
		IsActive:        utils.NewTrue(),
	}
	if err := tx.Create(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}
