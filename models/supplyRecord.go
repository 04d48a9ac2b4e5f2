package models

import (
	"context"
	"errors"
	"time"

	"github.com/pipeworks/factory_backend/config"
	"github.com/pipeworks/factory_backend/utils"
	"github.com/shopspring/decimal"
)

// SupplyRecord is the supply-in history row. The posting itself (stock credit
// plus cost re-averaging) happens in workflow.RecordSupply inside one
// transaction; this file holds the model and read side.
type SupplyRecord struct {
	ID            int             `gorm:"primary_key" json:"id"`
	BusinessId    string          `gorm:"size:64;index;not null" json:"business_id"`
	ItemId        int             `gorm:"index;not null" json:"item_id"`
	Quantity      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitCost      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_cost"`
	Supplier      string          `gorm:"size:100" json:"supplier"`
	InvoiceNumber string          `gorm:"size:50" json:"invoice_number"`
	Date          time.Time       `gorm:"not null" json:"date"`
	Notes         string          `gorm:"type:text" json:"notes"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (s SupplyRecord) GetBusinessId() string { return s.BusinessId }

type NewSupplyRecord struct {
	ItemId        int             `json:"item_id" binding:"required"`
	Quantity      decimal.Decimal `json:"quantity" binding:"required"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	Supplier      string          `json:"supplier"`
	InvoiceNumber string          `json:"invoice_number"`
	Date          string          `json:"date"`
	Notes         string          `json:"notes"`
}

func ListSupplyRecord(ctx context.Context, itemId *int) ([]*SupplyRecord, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*SupplyRecord

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if itemId != nil {
		dbCtx = dbCtx.Where("item_id = ?", *itemId)
	}
	if err := dbCtx.Order("date DESC, id DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
