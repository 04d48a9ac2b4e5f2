package workflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/pipeworks/factory_backend/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Mold acquire/release run inside the same transaction as the run transition
// that causes them; at most one open run holds a mold In Production.

func fetchMoldForUpdate(tx *gorm.DB, businessId string, moldId int) (*models.MoldResource, error) {
	var mold models.MoldResource
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ?", businessId).
		First(&mold, moldId).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("mold", moldId)
		}
		return nil, err
	}
	return &mold, nil
}

// AcquireMold fails with ErrResourceUnavailable unless the mold is Available.
func AcquireMold(tx *gorm.DB, businessId string, moldId int) error {
	mold, err := fetchMoldForUpdate(tx, businessId, moldId)
	if err != nil {
		return err
	}
	if mold.Status != models.MoldStatusAvailable {
		return fmt.Errorf("%w: mold %s is %s", ErrResourceUnavailable, mold.MoldNumber, mold.Status)
	}
	now := time.Now().UTC()
	return tx.Model(&models.MoldResource{}).Where("id = ?", mold.ID).
		Updates(map[string]interface{}{
			"status":         models.MoldStatusInProduction,
			"last_used_date": &now,
		}).Error
}

// ReleaseMold sets Available. Releasing an already-available mold is a no-op.
func ReleaseMold(tx *gorm.DB, businessId string, moldId int) error {
	mold, err := fetchMoldForUpdate(tx, businessId, moldId)
	if err != nil {
		return err
	}
	if mold.Status == models.MoldStatusAvailable {
		return nil
	}
	return tx.Model(&models.MoldResource{}).Where("id = ?", mold.ID).
		Update("status", models.MoldStatusAvailable).Error
}
