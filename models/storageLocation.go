package models

import (
	"context"
	"errors"
	"time"

	"github.com/pipeworks/factory_backend/config"
	"github.com/pipeworks/factory_backend/utils"
)

// StorageLocation tags where a batch physically sits at each stage.
type StorageLocation struct {
	ID          int          `gorm:"primary_key" json:"id"`
	BusinessId  string       `gorm:"size:64;index;not null" json:"business_id"`
	Name        string       `gorm:"size:100;not null" json:"name" binding:"required"`
	Type        LocationType `gorm:"size:20;not null" json:"type" binding:"required"`
	Description string       `gorm:"size:255" json:"description"`
	IsActive    *bool        `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

func (l StorageLocation) GetBusinessId() string { return l.BusinessId }

type NewStorageLocation struct {
	Name        string `json:"name" binding:"required"`
	Type        string `json:"type" binding:"required"`
	Description string `json:"description"`
}

func (input *NewStorageLocation) validate(ctx context.Context, businessId string, id int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if _, err := ParseLocationType(input.Type); err != nil {
		return err
	}
	return utils.ValidateUnique[StorageLocation](ctx, businessId, "name", input.Name, id)
}

func CreateStorageLocation(ctx context.Context, input *NewStorageLocation) (*StorageLocation, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	location := StorageLocation{
		BusinessId:  businessId,
		Name:        input.Name,
		Type:        LocationType(input.Type),
		Description: input.Description,
		IsActive:    utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&location).Error; err != nil {
		return nil, err
	}
	return &location, nil
}

func UpdateStorageLocation(ctx context.Context, id int, input *NewStorageLocation) (*StorageLocation, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	location, err := utils.FetchModel[StorageLocation](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&location).Updates(map[string]interface{}{
		"Name":        input.Name,
		"Type":        LocationType(input.Type),
		"Description": input.Description,
	}).Error
	if err != nil {
		return nil, err
	}
	if err := InvalidateResource[StorageLocation](id); err != nil {
		return nil, err
	}
	return location, nil
}

func DeleteStorageLocation(ctx context.Context, id int) (*StorageLocation, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	location, err := utils.FetchModel[StorageLocation](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	// locations referenced by open runs stay
	db := config.GetDB()
	var count int64
	if err := db.WithContext(ctx).Model(&ProductionRun{}).
		Where("business_id = ? AND status <> ? AND (production_location_id = ? OR curing_location_id = ?)",
			businessId, RunStatusCompleted, id, id).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("location is referenced by open production runs")
	}

	if err := db.WithContext(ctx).Delete(&location).Error; err != nil {
		return nil, err
	}
	if err := InvalidateResource[StorageLocation](id); err != nil {
		return nil, err
	}
	return location, nil
}

func GetStorageLocation(ctx context.Context, id int) (*StorageLocation, error) {
	return GetResource[StorageLocation](ctx, id)
}

func ListStorageLocation(ctx context.Context, locationType *LocationType) ([]*StorageLocation, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*StorageLocation

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if locationType != nil {
		dbCtx = dbCtx.Where("type = ?", *locationType)
	}
	if err := dbCtx.Order("name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
