package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SchedulePatch is a partial update merged into an existing record
type SchedulePatch struct {
	NextRunAt *time.Time
	LastRunAt *time.Time
	LastRange *ScheduleRange
}

// Store defines durable persistence of schedule records keyed by id
type Store interface {
	// Save persists a record, overwriting any existing entry
	Save(ctx context.Context, record *ScheduleRecord) error

	// Get retrieves a record by id. Missing and unparseable entries both
	// return (nil, nil); the latter is logged.
	Get(ctx context.Context, id string) (*ScheduleRecord, error)

	// List retrieves all records. Corrupt entries are logged and skipped so a
	// single bad blob never fails the whole listing.
	List(ctx context.Context) ([]*ScheduleRecord, error)

	// Delete removes a record by id
	Delete(ctx context.Context, id string) error

	// Patch merges a partial update into an existing record and returns the
	// result, or nil if the record does not exist. Patch never creates.
	Patch(ctx context.Context, id string, patch SchedulePatch) (*ScheduleRecord, error)
}

// StoreConfig holds configuration for store backends
type StoreConfig struct {
	Type string // "redis" or "memory"

	// Redis store config
	Client *redis.Client
	// HashKey is the Redis hash holding one serialized record per schedule id
	HashKey string
}

const defaultScheduleHash = "incident-scheduler:schedules"

// NewStore creates a store instance based on the configuration
func NewStore(config *StoreConfig) (Store, error) {
	switch config.Type {
	case "memory", "":
		return NewMemoryStore(), nil

	case "redis":
		if config.Client == nil {
			return nil, fmt.Errorf("redis store requires a client")
		}
		hashKey := config.HashKey
		if hashKey == "" {
			hashKey = defaultScheduleHash
		}
		return NewRedisStore(config.Client, hashKey), nil

	default:
		return nil, fmt.Errorf("unknown store type: %s", config.Type)
	}
}

// RedisStore persists schedule records as JSON blobs in a single Redis hash
type RedisStore struct {
	client  *redis.Client
	hashKey string
}

// NewRedisStore creates a Redis-backed schedule store
func NewRedisStore(client *redis.Client, hashKey string) *RedisStore {
	return &RedisStore{client: client, hashKey: hashKey}
}

func (s *RedisStore) Save(ctx context.Context, record *ScheduleRecord) error {
	if record.ID == "" {
		return fmt.Errorf("schedule ID cannot be empty")
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal schedule %s: %w", record.ID, err)
	}
	if err := s.client.HSet(ctx, s.hashKey, record.ID, raw).Err(); err != nil {
		return fmt.Errorf("failed to save schedule %s: %w", record.ID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*ScheduleRecord, error) {
	raw, err := s.client.HGet(ctx, s.hashKey, id).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule %s: %w", id, err)
	}
	var record ScheduleRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		log.Printf("[SCHEDULE_STORE] Failed to parse schedule %s: %v", id, err)
		return nil, nil
	}
	return &record, nil
}

func (s *RedisStore) List(ctx context.Context) ([]*ScheduleRecord, error) {
	raw, err := s.client.HGetAll(ctx, s.hashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	records := make([]*ScheduleRecord, 0, len(raw))
	for id, value := range raw {
		var record ScheduleRecord
		if err := json.Unmarshal([]byte(value), &record); err != nil {
			log.Printf("[SCHEDULE_STORE] Skipping corrupt schedule %s: %v", id, err)
			continue
		}
		records = append(records, &record)
	}
	return records, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.HDel(ctx, s.hashKey, id).Err(); err != nil {
		return fmt.Errorf("failed to delete schedule %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Patch(ctx context.Context, id string, patch SchedulePatch) (*ScheduleRecord, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, nil
	}
	applyPatch(current, patch)
	if err := s.Save(ctx, current); err != nil {
		return nil, err
	}
	return current, nil
}

// MemoryStore implements in-memory schedule storage. Records are kept
// serialized so reads return independent copies, matching Redis semantics.
type MemoryStore struct {
	entries map[string][]byte
	mu      sync.RWMutex
}

// NewMemoryStore creates a new memory store instance
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]byte)}
}

func (m *MemoryStore) Save(_ context.Context, record *ScheduleRecord) error {
	if record.ID == "" {
		return fmt.Errorf("schedule ID cannot be empty")
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal schedule %s: %w", record.ID, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[record.ID] = raw
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*ScheduleRecord, error) {
	m.mu.RLock()
	raw, exists := m.entries[id]
	m.mu.RUnlock()
	if !exists {
		return nil, nil
	}
	var record ScheduleRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		log.Printf("[SCHEDULE_STORE] Failed to parse schedule %s: %v", id, err)
		return nil, nil
	}
	return &record, nil
}

func (m *MemoryStore) List(_ context.Context) ([]*ScheduleRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := make([]*ScheduleRecord, 0, len(m.entries))
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		var record ScheduleRecord
		if err := json.Unmarshal(m.entries[id], &record); err != nil {
			log.Printf("[SCHEDULE_STORE] Skipping corrupt schedule %s: %v", id, err)
			continue
		}
		records = append(records, &record)
	}
	return records, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

func (m *MemoryStore) Patch(ctx context.Context, id string, patch SchedulePatch) (*ScheduleRecord, error) {
	current, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, nil
	}
	applyPatch(current, patch)
	if err := m.Save(ctx, current); err != nil {
		return nil, err
	}
	return current, nil
}

// putRaw stores an arbitrary blob, bypassing marshaling. Used by tests to
// simulate entries written by other process versions.
func (m *MemoryStore) putRaw(id string, raw []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = raw
}

func applyPatch(record *ScheduleRecord, patch SchedulePatch) {
	if patch.NextRunAt != nil {
		record.NextRunAt = patch.NextRunAt
	}
	if patch.LastRunAt != nil {
		record.LastRunAt = patch.LastRunAt
	}
	if patch.LastRange != nil {
		record.LastRange = patch.LastRange
	}
}
