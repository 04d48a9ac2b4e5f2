package workflow

import (
	"errors"

	"github.com/pipeworks/factory_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger primitives. Every function takes the caller's transaction and locks
// the item row FOR UPDATE, so a read and the write derived from it cannot
// interleave with a concurrent transition (spec'd as read-check-write in one
// transaction boundary).

func fetchItemForUpdate(tx *gorm.DB, businessId string, itemId int) (*models.InventoryItem, error) {
	var item models.InventoryItem
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ?", businessId).
		First(&item, itemId).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("inventory item", itemId)
		}
		return nil, err
	}
	return &item, nil
}

// Consume decrements stock, failing with ErrInsufficientStock when the item
// holds less than requested. quantity must be positive.
func Consume(tx *gorm.DB, businessId string, itemId int, quantity decimal.Decimal) (*models.InventoryItem, error) {
	if quantity.IsNegative() {
		return nil, invalidQuantityError("consume quantity cannot be negative")
	}
	item, err := fetchItemForUpdate(tx, businessId, itemId)
	if err != nil {
		return nil, err
	}
	if item.Quantity.LessThan(quantity) {
		return nil, insufficientStockError(item.Name, item.Quantity, quantity)
	}
	newQty := item.Quantity.Sub(quantity)
	if err := tx.Model(&models.InventoryItem{}).Where("id = ?", item.ID).
		Update("quantity", newQty).Error; err != nil {
		return nil, err
	}
	item.Quantity = newQty
	return item, nil
}

// Credit increments stock. Never fails for quantity >= 0.
func Credit(tx *gorm.DB, businessId string, itemId int, quantity decimal.Decimal) (*models.InventoryItem, error) {
	if quantity.IsNegative() {
		return nil, invalidQuantityError("credit quantity cannot be negative")
	}
	item, err := fetchItemForUpdate(tx, businessId, itemId)
	if err != nil {
		return nil, err
	}
	newQty := item.Quantity.Add(quantity)
	if err := tx.Model(&models.InventoryItem{}).Where("id = ?", item.ID).
		Update("quantity", newQty).Error; err != nil {
		return nil, err
	}
	item.Quantity = newQty
	return item, nil
}

// ApplyWeightedAverageCost blends the incoming batch value into the item's
// unit cost:
//
//	newCost = (currentQty*currentCost + incomingTotalCost) / (currentQty + incomingQty)
//
// The current quantity is read under the row lock. A zero denominator defines
// the cost as zero.
func ApplyWeightedAverageCost(tx *gorm.DB, businessId string, itemId int, incomingQty, incomingTotalCost decimal.Decimal) (*models.InventoryItem, error) {
	if incomingQty.IsNegative() {
		return nil, invalidQuantityError("incoming quantity cannot be negative")
	}
	item, err := fetchItemForUpdate(tx, businessId, itemId)
	if err != nil {
		return nil, err
	}
	newCost := WeightedAverageCost(item.Quantity, item.CostPrice, incomingQty, incomingTotalCost)
	if err := tx.Model(&models.InventoryItem{}).Where("id = ?", item.ID).
		Update("cost_price", newCost).Error; err != nil {
		return nil, err
	}
	item.CostPrice = newCost
	return item, nil
}
