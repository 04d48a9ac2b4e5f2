package workflow

import (
	"errors"
	"time"

	"github.com/pipeworks/factory_backend/models"
	"gorm.io/gorm"
)

var ErrIdempotencyInProgress = errors.New("idempotency in progress")

// BeginIdempotency inserts STARTED for (business, handler, requestId).
// If SUCCEEDED exists, returns the recorded run id meaning "replay the prior result".
func BeginIdempotency(tx *gorm.DB, businessId, handlerName, requestId string) (replayRunId *int, err error) {
	key := models.IdempotencyKey{
		BusinessId:  businessId,
		HandlerName: handlerName,
		RequestId:   requestId,
		Status:      models.IdempotencyStatusStarted,
	}
	if err := tx.Create(&key).Error; err == nil {
		return nil, nil
	} else if !isDuplicateKeyErr(err) {
		return nil, err
	}

	var existing models.IdempotencyKey
	if err := tx.Where("business_id = ? AND handler_name = ? AND request_id = ?", businessId, handlerName, requestId).
		First(&existing).Error; err != nil {
		return nil, err
	}

	switch existing.Status {
	case models.IdempotencyStatusSucceeded:
		return existing.RunId, nil
	case models.IdempotencyStatusStarted:
		// Another submission is in flight; a stale row gets reclaimed.
		if time.Since(existing.UpdatedAt) < 5*time.Minute {
			return nil, ErrIdempotencyInProgress
		}
		fallthrough
	default:
		return nil, tx.Model(&models.IdempotencyKey{}).
			Where("id = ?", existing.ID).
			Updates(map[string]interface{}{"status": models.IdempotencyStatusStarted, "last_error": nil}).Error
	}
}

func MarkIdempotencySucceeded(tx *gorm.DB, businessId, handlerName, requestId string, runId int) error {
	return tx.Model(&models.IdempotencyKey{}).
		Where("business_id = ? AND handler_name = ? AND request_id = ?", businessId, handlerName, requestId).
		Updates(map[string]interface{}{"status": models.IdempotencyStatusSucceeded, "run_id": runId, "last_error": nil}).Error
}

func MarkIdempotencyFailed(tx *gorm.DB, businessId, handlerName, requestId string, err error) error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return tx.Model(&models.IdempotencyKey{}).
		Where("business_id = ? AND handler_name = ? AND request_id = ?", businessId, handlerName, requestId).
		Updates(map[string]interface{}{"status": models.IdempotencyStatusFailed, "last_error": &msg}).Error
}
