package incident

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/berijalan/incident-scheduler/pkg/gemini"
	"github.com/berijalan/incident-scheduler/pkg/signoz"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxStoredRawLogs = 200
)

// Record is one persisted incident report
type Record struct {
	ID          string                 `json:"id" bson:"-"`
	CreatedAt   time.Time              `json:"createdAt" bson:"createdAt"`
	SummaryText string                 `json:"summaryText" bson:"summaryText"`
	Prompt      string                 `json:"prompt" bson:"prompt"`
	Payload     *WebhookPayload        `json:"payload,omitempty" bson:"payload,omitempty"`
	Logs        []signoz.NormalizedLog `json:"logs,omitempty" bson:"logs,omitempty"`
	RawLogs     []signoz.LogRow        `json:"rawLogs,omitempty" bson:"rawLogs,omitempty"`
	LLMResponse *gemini.Response       `json:"geminiResponse,omitempty" bson:"geminiResponse,omitempty"`
}

// RecordStore persists incident reports
type RecordStore interface {
	// Save stores a record and returns its assigned ID
	Save(ctx context.Context, record *Record) (string, error)
	// List returns the newest records, most recent first. Limit is clamped
	// to [1, 100]; zero or negative means the default of 20.
	List(ctx context.Context, limit int) ([]*Record, error)
	// Prune deletes records created before the cutoff and returns how many
	// were removed
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
	// Close releases any underlying connections
	Close(ctx context.Context) error
}

func clampListLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// trimRecord bounds the stored raw log evidence so a single noisy window
// cannot bloat the collection
func trimRecord(record *Record) {
	if len(record.RawLogs) > maxStoredRawLogs {
		record.RawLogs = record.RawLogs[:maxStoredRawLogs]
	}
}

// MongoRecordStore persists incident reports in a MongoDB collection
type MongoRecordStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	indexOnce  sync.Once
}

// NewMongoRecordStore connects to MongoDB and returns a record store over
// the given database and collection
func NewMongoRecordStore(ctx context.Context, uri, database, collection string) (*MongoRecordStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	log.Printf("[INCIDENT_STORE] Connected to MongoDB database %s", database)
	return &MongoRecordStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

func (s *MongoRecordStore) ensureIndexes(ctx context.Context) {
	s.indexOnce.Do(func() {
		_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: "createdAt", Value: -1}},
		})
		if err != nil {
			log.Printf("[INCIDENT_STORE] Failed to create createdAt index: %v", err)
		}
	})
}

// Save inserts the record and returns the hex ObjectID
func (s *MongoRecordStore) Save(ctx context.Context, record *Record) (string, error) {
	s.ensureIndexes(ctx)
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	trimRecord(record)

	result, err := s.collection.InsertOne(ctx, record)
	if err != nil {
		return "", fmt.Errorf("failed to insert incident record: %w", err)
	}
	oid, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return fmt.Sprintf("%v", result.InsertedID), nil
	}
	record.ID = oid.Hex()
	return record.ID, nil
}

// List returns the newest records first
func (s *MongoRecordStore) List(ctx context.Context, limit int) ([]*Record, error) {
	s.ensureIndexes(ctx)
	limit = clampListLimit(limit)

	findOptions := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := s.collection.Find(ctx, bson.D{}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to query incident records: %w", err)
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			log.Printf("[INCIDENT_STORE] Failed to close cursor: %v", err)
		}
	}()

	records := make([]*Record, 0, limit)
	for cursor.Next(ctx) {
		var doc struct {
			ID     primitive.ObjectID `bson:"_id"`
			Record `bson:",inline"`
		}
		if err := cursor.Decode(&doc); err != nil {
			log.Printf("[INCIDENT_STORE] Skipping undecodable record: %v", err)
			continue
		}
		record := doc.Record
		record.ID = doc.ID.Hex()
		records = append(records, &record)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate incident records: %w", err)
	}
	return records, nil
}

// Prune removes records created before the cutoff
func (s *MongoRecordStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.collection.DeleteMany(ctx, bson.D{
		{Key: "createdAt", Value: bson.D{{Key: "$lt", Value: cutoff}}},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune incident records: %w", err)
	}
	return result.DeletedCount, nil
}

// Close disconnects from MongoDB
func (s *MongoRecordStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// MemoryRecordStore keeps incident reports in memory, for tests and for
// running without MongoDB configured
type MemoryRecordStore struct {
	mu      sync.RWMutex
	records []*Record
	nextID  int
}

// NewMemoryRecordStore creates an empty in-memory record store
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{}
}

// Save stores a copy of the record
func (s *MemoryRecordStore) Save(ctx context.Context, record *Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	trimRecord(record)
	s.nextID++
	record.ID = fmt.Sprintf("mem-%d", s.nextID)
	stored := *record
	s.records = append(s.records, &stored)
	return record.ID, nil
}

// List returns the newest records first
func (s *MemoryRecordStore) List(ctx context.Context, limit int) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	limit = clampListLimit(limit)

	sorted := make([]*Record, len(s.records))
	copy(sorted, s.records)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	result := make([]*Record, len(sorted))
	for i, record := range sorted {
		clone := *record
		result[i] = &clone
	}
	return result, nil
}

// Prune removes records created before the cutoff
func (s *MemoryRecordStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	var removed int64
	for _, record := range s.records {
		if record.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, record)
	}
	s.records = kept
	return removed, nil
}

// Close is a no-op
func (s *MemoryRecordStore) Close(ctx context.Context) error {
	return nil
}
