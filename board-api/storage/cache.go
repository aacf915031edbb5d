package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"taskboard/domain"
)

// Cache wraps a Repository with a Redis read-through cache for single board
// reads. Every write evicts the board.
type Cache struct {
	base  Repository
	redis *redis.Client
	ttl   time.Duration
}

func NewCache(base Repository, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base repository is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

type cachedRecord struct {
	Board domain.Board `json:"board"`
	ETag  string       `json:"etag"`
}

func (c *Cache) List(ctx context.Context) ([]domain.Board, error) {
	return c.base.List(ctx)
}

func (c *Cache) Get(ctx context.Context, id string) (*Record, error) {
	if rec, ok := c.load(ctx, id); ok {
		return rec, nil
	}
	rec, err := c.base.Get(ctx, id)
	if err != nil || rec == nil {
		return rec, err
	}
	c.store(ctx, rec)
	return rec, nil
}

func (c *Cache) Insert(ctx context.Context, b domain.Board) (string, error) {
	etag, err := c.base.Insert(ctx, b)
	if err != nil {
		return "", err
	}
	c.evict(ctx, b.ID)
	return etag, nil
}

func (c *Cache) Replace(ctx context.Context, b domain.Board, etag string) (string, error) {
	next, err := c.base.Replace(ctx, b, etag)
	// A conflict means the cached copy is stale as well.
	c.evict(ctx, b.ID)
	return next, err
}

func (c *Cache) Delete(ctx context.Context, id string) error {
	if err := c.base.Delete(ctx, id); err != nil {
		return err
	}
	c.evict(ctx, id)
	return nil
}

func (c *Cache) load(ctx context.Context, id string) (*Record, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, boardCacheKey(id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			_ = c.redis.Del(ctx, boardCacheKey(id)).Err()
		}
		return nil, false
	}
	var cr cachedRecord
	if err := json.Unmarshal(data, &cr); err != nil {
		_ = c.redis.Del(ctx, boardCacheKey(id)).Err()
		return nil, false
	}
	return &Record{Board: cr.Board, ETag: cr.ETag}, true
}

func (c *Cache) store(ctx context.Context, rec *Record) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(cachedRecord{Board: rec.Board, ETag: rec.ETag})
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, boardCacheKey(rec.Board.ID), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, id string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, boardCacheKey(id)).Err()
}

func boardCacheKey(id string) string {
	return "boards:doc:" + id
}
