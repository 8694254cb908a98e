package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionKey = "pomaster:reports:version"
	bumpChannel     = "pomaster.reports.bump"
	keyPrefix       = "pomaster:reports"

	// versionRefresh bounds how long a locally followed version is trusted
	// without reading Redis, covering bumps lost while pub/sub reconnects.
	versionRefresh = 5 * time.Second
)

// Cache stores built report views in Redis under a global version that every
// write bumps.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time

	mu        sync.Mutex
	following bool
	local     int64
	localAt   time.Time
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl, now: time.Now}
}

// Enabled reports whether a Redis client is configured.
func (c *Cache) Enabled() bool {
	return c != nil && c.client != nil
}

// Version returns the current cache version, initialising when missing.
// While ListenForInvalidation runs, a recently observed version is served
// without a round trip.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if !c.Enabled() {
		return 0, nil
	}
	if ver, ok := c.followedVersion(); ok {
		return ver, nil
	}
	ver, err := c.readVersion(ctx)
	if err != nil {
		return 0, err
	}
	c.observe(ver)
	return ver, nil
}

func (c *Cache) readVersion(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, cacheVersionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, cacheVersionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

func (c *Cache) followedVersion() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.following || c.local <= 0 || c.now().Sub(c.localAt) >= versionRefresh {
		return 0, false
	}
	return c.local, true
}

// observe records ver as the newest known version. Versions only grow.
func (c *Cache) observe(ver int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ver > c.local {
		c.local = ver
	}
	c.localAt = c.now()
}

func (c *Cache) setFollowing(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.following = on
}

// BuildKey composes the cache key with the current version.
func (c *Cache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	joined := strings.Join(append([]string{keyPrefix}, parts...), ":")
	if !c.Enabled() {
		return joined, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:v%d", joined, ver), nil
}

// FetchJSON loads a cached value into dest or populates it using the loader.
// hit reports whether the value came from Redis.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) (hit bool, err error) {
	if loader == nil {
		return false, errors.New("reporting cache: loader required")
	}
	if c.Enabled() {
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			return true, json.Unmarshal(payload, dest)
		}
		if !errors.Is(err, redis.Nil) {
			return false, err
		}
	}
	value, err := loader(ctx)
	if err != nil {
		return false, err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	if c.Enabled() {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return false, err
		}
	}
	return false, json.Unmarshal(raw, dest)
}

// Bump invalidates cached views by incrementing the version and publishing it.
func (c *Cache) Bump(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return err
	}
	c.observe(ver)
	return c.client.Publish(ctx, bumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// ListenForInvalidation follows version bumps published by other instances
// until ctx is done, keeping the version local so BuildKey skips the Redis GET.
// onBump, when set, receives each new version.
func (c *Cache) ListenForInvalidation(ctx context.Context, onBump func(int64)) error {
	if !c.Enabled() {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, bumpChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	c.setFollowing(true)
	go func() {
		defer func() {
			c.setFollowing(false)
			_ = pubsub.Close()
		}()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ver, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					continue
				}
				c.observe(ver)
				if onBump != nil {
					onBump(ver)
				}
			}
		}
	}()
	return nil
}
