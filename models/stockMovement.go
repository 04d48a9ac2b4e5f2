package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockMovement is the append-only movement trail. One row per signed quantity
// change, written inside the same transaction as the change itself, so the
// trail replays to the current quantities (see cmd/inventory-rebuild).
type StockMovement struct {
	ID            int             `gorm:"primary_key" json:"id"`
	BusinessId    string          `gorm:"size:64;index:idx_movement_biz_item;not null" json:"business_id"`
	ItemId        int             `gorm:"index:idx_movement_biz_item;not null" json:"item_id"`
	QtyDelta      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty_delta"`
	DocType       StockDocType    `gorm:"size:20;index;not null" json:"doc_type"`
	DocId         int             `gorm:"index;not null" json:"doc_id"`
	CorrelationId string          `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (m StockMovement) GetBusinessId() string { return m.BusinessId }

// RecordStockMovement appends one trail row inside the caller's transaction.
func RecordStockMovement(tx *gorm.DB, businessId string, itemId int, qtyDelta decimal.Decimal, docType StockDocType, docId int, correlationId string) error {
	movement := StockMovement{
		BusinessId:    businessId,
		ItemId:        itemId,
		QtyDelta:      qtyDelta,
		DocType:       docType,
		DocId:         docId,
		CorrelationId: correlationId,
	}
	return tx.Create(&movement).Error
}
