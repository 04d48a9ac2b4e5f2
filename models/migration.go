package models

import (
	"log"

	"github.com/pipeworks/factory_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Business{}, &User{},
		&InventoryItem{}, &SupplyRecord{}, &StockMovement{},
		&MoldResource{}, &StorageLocation{},
		&ProductMaster{},
		&ProductionRun{}, &RunIngredient{}, &BatchSequence{},
		&DomainEventRecord{},
		&IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
