// Package usercache is a TTL'd Redis read-through cache mapping Cal
// platform user ids to internal user ids. Webhook ingestion is the hot
// path; without Redis every event costs a user lookup. The cache is
// deliberately not a process-local map: entries are bounded, expire,
// and are visible to every instance behind the load balancer.
package usercache

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/churchhub/churchhub-api/internal/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "churchhub:caluser:"

// NewRedisClient builds a client from config, or nil when Redis is not
// configured or unreachable; callers degrade to direct DB lookups.
func NewRedisClient(cfg *config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	dbNum := 0
	if n, err := strconv.Atoi(cfg.RedisDB); err == nil {
		dbNum = n
	}
	var tlsConf *tls.Config
	if strings.HasPrefix(cfg.RedisAddr, "rediss://") {
		tlsConf = &tls.Config{}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      strings.TrimPrefix(cfg.RedisAddr, "rediss://"),
		Password:  cfg.RedisPassword,
		DB:        dbNum,
		TLSConfig: tlsConf,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil
	}
	return client
}

// Cache resolves Cal user ids through Redis. A nil client disables
// caching; every call is then a miss.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl}
}

// Get returns the cached internal user id for a Cal user id.
func (c *Cache) Get(ctx context.Context, calUserID int64) (uuid.UUID, bool) {
	if c.rdb == nil {
		return uuid.Nil, false
	}
	val, err := c.rdb.Get(ctx, key(calUserID)).Result()
	if err != nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Set caches a resolution for the configured TTL.
func (c *Cache) Set(ctx context.Context, calUserID int64, userID uuid.UUID) {
	if c.rdb == nil {
		return
	}
	// Cache failures are non-fatal; the next lookup hits the DB.
	_ = c.rdb.Set(ctx, key(calUserID), userID.String(), c.ttl).Err()
}

// Invalidate drops a cached resolution, used when an owner is
// deactivated or reprovisioned.
func (c *Cache) Invalidate(ctx context.Context, calUserID int64) {
	if c.rdb == nil {
		return
	}
	_ = c.rdb.Del(ctx, key(calUserID)).Err()
}

func key(calUserID int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, calUserID)
}
