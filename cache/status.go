package cache

import (
	"context"
	"fmt"
	"time"

	"assetExtractor/database"
	"assetExtractor/models"
)

const (
	statusKeyPrefix = "task:status:"
	statusTTL       = 10 * time.Minute
)

// StatusCache keeps the latest task status in redis so status polls do not
// hit the task store on every request.
type StatusCache struct {
	cache *database.Cache
}

func NewStatusCache(cache *database.Cache) *StatusCache {
	return &StatusCache{cache: cache}
}

func (sc *StatusCache) Get(ctx context.Context, taskID string) (models.TaskStatus, error) {
	key := fmt.Sprintf("%s%s", statusKeyPrefix, taskID)

	data, err := sc.cache.Get(ctx, key)
	if err != nil {
		return "", err
	}

	return models.TaskStatus(data), nil
}

func (sc *StatusCache) Set(ctx context.Context, taskID string, status models.TaskStatus) error {
	key := fmt.Sprintf("%s%s", statusKeyPrefix, taskID)
	return sc.cache.Set(ctx, key, string(status), statusTTL)
}

func (sc *StatusCache) Delete(ctx context.Context, taskID string) error {
	key := fmt.Sprintf("%s%s", statusKeyPrefix, taskID)
	return sc.cache.Del(ctx, key)
}
