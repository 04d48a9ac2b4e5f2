package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pipeworks/factory_backend/config"
	"github.com/pipeworks/factory_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const maxPostingAttempts = 3

// errReplayed signals that the idempotency key already SUCCEEDED; the prior
// result is returned without re-running the transition body.
var errReplayed = errors.New("replayed")

// RunPosting executes one ledger-touching transition: a single transaction
// with the business posting lock held, idempotent on requestId, retried on
// MySQL deadlock/lock-wait up to maxPostingAttempts before surfacing
// ErrTransientConflict. fn returns the run id the transition produced (0 when
// none), which idempotent replays hand back.
func RunPosting(ctx context.Context, logger *logrus.Logger, businessId, handlerName, requestId string, fn func(tx *gorm.DB) (int, error)) (int, error) {

	// Best-effort redis pre-filter; the MySQL lock below is the correctness lock.
	redisLock, err := utils.BusinessLock(ctx, businessId, "posting", "transaction.go", "RunPosting")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransientConflict, err)
	}
	if redisLock != nil {
		defer redisLock.Release(context.Background())
	}

	db := config.GetDB()
	var runId int

	for attempt := 1; ; attempt++ {
		runId = 0
		err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := AcquireBusinessPostingLock(tx, businessId); err != nil {
				return err
			}
			defer ReleaseBusinessPostingLock(tx, businessId)

			if requestId != "" {
				replayRunId, err := BeginIdempotency(tx, businessId, handlerName, requestId)
				if err != nil {
					return err
				}
				if replayRunId != nil {
					runId = *replayRunId
					return errReplayed
				}
			}

			id, err := fn(tx)
			if err != nil {
				return err
			}
			runId = id

			if requestId != "" {
				return MarkIdempotencySucceeded(tx, businessId, handlerName, requestId, runId)
			}
			return nil
		})

		if err == nil {
			return runId, nil
		}
		if errors.Is(err, errReplayed) {
			config.LogError(logger, "transaction.go", "RunPosting", "idempotent replay", map[string]interface{}{
				"handler": handlerName, "request_id": requestId, "run_id": runId,
			}, nil)
			return runId, nil
		}
		if IsTransientStorageErr(err) {
			if attempt < maxPostingAttempts {
				config.LogError(logger, "transaction.go", "RunPosting", "transient conflict, retrying", map[string]interface{}{
					"handler": handlerName, "attempt": attempt,
				}, err)
				time.Sleep(time.Duration(attempt*attempt) * 100 * time.Millisecond)
				continue
			}
			err = fmt.Errorf("%w: %v", ErrTransientConflict, err)
		}
		break
	}

	// The failed transaction rolled back the STARTED row with everything else,
	// so record the failure in its own transaction.
	if requestId != "" && !errors.Is(err, ErrIdempotencyInProgress) {
		recordErr := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if _, beginErr := BeginIdempotency(tx, businessId, handlerName, requestId); beginErr != nil {
				return beginErr
			}
			return MarkIdempotencyFailed(tx, businessId, handlerName, requestId, err)
		})
		if recordErr != nil {
			config.LogError(logger, "transaction.go", "RunPosting", "record idempotency failure", requestId, recordErr)
		}
	}
	return 0, err
}
