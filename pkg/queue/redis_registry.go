package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisRegistry persists repeatable job definitions in Redis. Definitions
// live in a hash keyed by repeat key; the next fire times are mirrored in a
// sorted set so due lookups are a single range query.
type RedisRegistry struct {
	client  *redis.Client
	hashKey string
	zsetKey string
}

// NewRedisRegistry creates a registry over the given client. The queue name
// namespaces the Redis keys.
func NewRedisRegistry(client *redis.Client, queueName string) *RedisRegistry {
	return &RedisRegistry{
		client:  client,
		hashKey: queueName + ":repeat",
		zsetKey: queueName + ":schedule",
	}
}

// Put stores or replaces a definition
func (r *RedisRegistry) Put(ctx context.Context, def *JobDef) error {
	raw, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to marshal job definition: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.hashKey, def.Key, raw)
	pipe.ZAdd(ctx, r.zsetKey, redis.Z{Score: float64(def.NextAtMs), Member: def.Key})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store job definition: %w", err)
	}
	return nil
}

// Delete removes a definition by key
func (r *RedisRegistry) Delete(ctx context.Context, key string) (bool, error) {
	pipe := r.client.TxPipeline()
	removed := pipe.HDel(ctx, r.hashKey, key)
	pipe.ZRem(ctx, r.zsetKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to delete job definition: %w", err)
	}
	return removed.Val() > 0, nil
}

// List returns every definition. Entries that no longer parse are skipped
// with a log line rather than failing the whole listing.
func (r *RedisRegistry) List(ctx context.Context) ([]*JobDef, error) {
	entries, err := r.client.HGetAll(ctx, r.hashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list job definitions: %w", err)
	}
	defs := make([]*JobDef, 0, len(entries))
	for key, raw := range entries {
		var def JobDef
		if err := json.Unmarshal([]byte(raw), &def); err != nil {
			log.Printf("[QUEUE] Skipping corrupt job definition %s: %v", key, err)
			continue
		}
		defs = append(defs, &def)
	}
	return defs, nil
}

// Due returns the definitions whose next fire is at or before nowMs
func (r *RedisRegistry) Due(ctx context.Context, nowMs int64) ([]*JobDef, error) {
	keys, err := r.client.ZRangeByScore(ctx, r.zsetKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(nowMs, 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query due jobs: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	raws, err := r.client.HMGet(ctx, r.hashKey, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load due jobs: %w", err)
	}
	due := make([]*JobDef, 0, len(keys))
	for i, raw := range raws {
		if raw == nil {
			// schedule entry outlived its definition, drop it
			r.client.ZRem(ctx, r.zsetKey, keys[i])
			continue
		}
		text, ok := raw.(string)
		if !ok {
			continue
		}
		var def JobDef
		if err := json.Unmarshal([]byte(text), &def); err != nil {
			log.Printf("[QUEUE] Skipping corrupt job definition %s: %v", keys[i], err)
			continue
		}
		due = append(due, &def)
	}
	return due, nil
}

// SetNext advances the next fire time of one definition
func (r *RedisRegistry) SetNext(ctx context.Context, key string, nextMs int64) error {
	raw, err := r.client.HGet(ctx, r.hashKey, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load job definition: %w", err)
	}
	var def JobDef
	if err := json.Unmarshal([]byte(raw), &def); err != nil {
		return fmt.Errorf("failed to parse job definition %s: %w", key, err)
	}
	def.NextAtMs = nextMs
	return r.Put(ctx, &def)
}
