package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/SergeiKhy/link-registry/internal/models"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss ключ отсутствует в кэше
var ErrCacheMiss = errors.New("cache miss")

// CacheRepository общий для всех инстансов кэш записей для редиректов.
// Счётчик кликов в кэше не поддерживается в актуальном состоянии.
type CacheRepository interface {
	Get(ctx context.Context, code string) (*models.Link, error)
	Set(ctx context.Context, link *models.Link, ttl time.Duration) error
	Delete(ctx context.Context, code string) error
}

type cacheRepository struct {
	redis *RedisDB
}

func NewCacheRepository(redis *RedisDB) CacheRepository {
	return &cacheRepository{redis: redis}
}

func (r *cacheRepository) Get(ctx context.Context, code string) (*models.Link, error) {
	data, err := r.redis.Client.Get(ctx, r.key(code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to read cache: %w", err)
	}

	var link models.Link
	if err := json.Unmarshal(data, &link); err != nil {
		return nil, fmt.Errorf("failed to unmarshal link: %w", err)
	}

	return &link, nil
}

func (r *cacheRepository) Set(ctx context.Context, link *models.Link, ttl time.Duration) error {
	data, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("failed to marshal link: %w", err)
	}

	return r.redis.Client.Set(ctx, r.key(link.Code), data, ttl).Err()
}

func (r *cacheRepository) Delete(ctx context.Context, code string) error {
	return r.redis.Client.Del(ctx, r.key(code)).Err()
}

func (r *cacheRepository) key(code string) string {
	return "link:" + code
}

// noopCache используется, когда Redis не настроен
type noopCache struct{}

func NewNoopCacheRepository() CacheRepository {
	return noopCache{}
}

func (noopCache) Get(context.Context, string) (*models.Link, error) {
	return nil, ErrCacheMiss
}

func (noopCache) Set(context.Context, *models.Link, time.Duration) error {
	return nil
}

func (noopCache) Delete(context.Context, string) error {
	return nil
}
