package models

import (
	"context"
	"errors"
	"time"

	"github.com/pipeworks/factory_backend/config"
	"github.com/pipeworks/factory_backend/utils"
)

// MoldResource is an exclusive physical resource: at most one open production
// run holds a mold in In Production at any time. The transition itself lives
// in the workflow package; this file is the definition CRUD.
type MoldResource struct {
	ID           int        `gorm:"primary_key" json:"id"`
	BusinessId   string     `gorm:"size:64;index;not null" json:"business_id"`
	MoldNumber   string     `gorm:"size:50;not null" json:"mold_number" binding:"required"`
	Description  string     `gorm:"size:255" json:"description"`
	Status       MoldStatus `gorm:"size:20;not null;default:'Available'" json:"status"`
	LastUsedDate *time.Time `json:"last_used_date"`
	IsActive     *bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (m MoldResource) GetBusinessId() string { return m.BusinessId }

type NewMoldResource struct {
	MoldNumber  string `json:"mold_number" binding:"required"`
	Description string `json:"description"`
}

func (input *NewMoldResource) validate(ctx context.Context, businessId string, id int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	return utils.ValidateUnique[MoldResource](ctx, businessId, "mold_number", input.MoldNumber, id)
}

func CreateMoldResource(ctx context.Context, input *NewMoldResource) (*MoldResource, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	mold := MoldResource{
		BusinessId:  businessId,
		MoldNumber:  input.MoldNumber,
		Description: input.Description,
		Status:      MoldStatusAvailable,
		IsActive:    utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&mold).Error; err != nil {
		return nil, err
	}
	return &mold, nil
}

func UpdateMoldResource(ctx context.Context, id int, input *NewMoldResource) (*MoldResource, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	mold, err := utils.FetchModel[MoldResource](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&mold).Updates(map[string]interface{}{
		"MoldNumber":  input.MoldNumber,
		"Description": input.Description,
	}).Error
	if err != nil {
		return nil, err
	}
	if err := InvalidateResource[MoldResource](id); err != nil {
		return nil, err
	}
	return mold, nil
}

func DeleteMoldResource(ctx context.Context, id int) (*MoldResource, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	mold, err := utils.FetchModel[MoldResource](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	if mold.Status == MoldStatusInProduction {
		return nil, errors.New("mold is in production")
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(&mold).Error; err != nil {
		return nil, err
	}
	if err := InvalidateResource[MoldResource](id); err != nil {
		return nil, err
	}
	return mold, nil
}

func GetMoldResource(ctx context.Context, id int) (*MoldResource, error) {
	return GetResource[MoldResource](ctx, id)
}

func ListMoldResource(ctx context.Context, status *MoldStatus) ([]*MoldResource, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*MoldResource

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if status != nil {
		dbCtx = dbCtx.Where("status = ?", *status)
	}
	if err := dbCtx.Order("mold_number").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
