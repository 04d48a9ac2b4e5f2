package models

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/pipeworks/factory_backend/config"
	"github.com/pipeworks/factory_backend/utils"
)

type Resource interface {
	GetBusinessId() string
}

const resourceCacheTTL = 10 * time.Minute

func resourceCacheKey[T any](id int) string {
	var zero T
	return fmt.Sprintf("%s:%d", reflect.TypeOf(zero).Name(), id)
}

// first find in redis, then in db, using ctx's business_id in WHERE, cache result
// (may return RecordNotFound error)
func GetResource[T Resource](ctx context.Context, id int, associations ...string) (*T, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	// find in redis
	var cached T
	found, err := config.GetRedisObject(resourceCacheKey[T](id), &cached)
	if err != nil {
		return nil, err
	}
	if found {
		// check if business ids match
		if cached.GetBusinessId() != businessId {
			return nil, errors.New("cannot access resource owned by other business")
		}
		return &cached, nil
	}

	// fetch from db
	result, err := utils.FetchModel[T](ctx, businessId, id, associations...)
	if err != nil {
		return nil, err
	}

	// store in redis
	if err := config.SetRedisObject(resourceCacheKey[T](id), result, resourceCacheTTL); err != nil {
		return nil, err
	}
	return result, nil
}

// InvalidateResource drops the cached copy after a write.
func InvalidateResource[T Resource](id int) error {
	return config.DeleteRedisKey(resourceCacheKey[T](id))
}
