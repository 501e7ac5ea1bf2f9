// Package store implements the in-memory document store backing the
// gateway: sharded key/value maps holding JSON documents, per-field B-Tree
// indexes and a collection manager that persists collections asynchronously.
package store

import (
	"bytes"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Item is one stored document with its bookkeeping.
type Item struct {
	Value     []byte
	CreatedAt time.Time
	TTL       time.Duration // 0 means no expiration.
}

type shard struct {
	data map[string]Item
	mu   sync.RWMutex
}

// DocStore is the per-collection document storage interface.
type DocStore interface {
	Set(key string, value []byte, ttl time.Duration)
	Get(key string) ([]byte, bool)
	GetMany(keys []string) map[string][]byte
	Delete(key string)
	GetAll() map[string][]byte
	LoadData(data map[string][]byte)
	CleanExpiredItems() bool
	Size() int

	CreateIndex(field string)
	ListIndexes() []string
	HasIndex(field string) bool
	Lookup(field string, value any) ([]string, bool)
}

// MemStore implements DocStore with sharding and indexing.
type MemStore struct {
	shards    []*shard
	numShards int
	indexes   *indexManager
}

// NewMemStore creates a MemStore with the given number of shards.
func NewMemStore(numShards int) *MemStore {
	s := &MemStore{
		shards:    make([]*shard, numShards),
		numShards: numShards,
		indexes:   newIndexManager(),
	}
	for i := 0; i < numShards; i++ {
		s.shards[i] = &shard{data: make(map[string]Item)}
	}
	return s
}

func (s *MemStore) shardFor(key string) *shard {
	h := fnv.New64a()
	h.Write([]byte(key))
	return s.shards[h.Sum64()%uint64(s.numShards)]
}

// decodeForIndex unmarshals a document for index maintenance, normalizing
// all numbers to float64 so index keys compare consistently.
func decodeForIndex(value []byte) map[string]any {
	var data map[string]any
	decoder := json.NewDecoder(bytes.NewReader(value))
	decoder.UseNumber()
	if err := decoder.Decode(&data); err != nil {
		return nil
	}
	for k, v := range data {
		if num, ok := v.(jsoniter.Number); ok {
			if f, err := num.Float64(); err == nil {
				data[k] = f
			} else {
				data[k] = num.String()
			}
		}
	}
	return data
}

// Set stores a document and keeps the indexes in sync. The original
// creation time is preserved on updates.
func (s *MemStore) Set(key string, value []byte, ttl time.Duration) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	var oldForIndex map[string]any
	createdAt := time.Now()
	if oldItem, exists := sh.data[key]; exists {
		oldForIndex = decodeForIndex(oldItem.Value)
		createdAt = oldItem.CreatedAt
	}

	sh.data[key] = Item{Value: value, CreatedAt: createdAt, TTL: ttl}

	newForIndex := decodeForIndex(value)
	if oldForIndex != nil || newForIndex != nil {
		s.indexes.Update(key, oldForIndex, newForIndex)
	}
}

// Get retrieves a document by key; expired items read as absent.
func (s *MemStore) Get(key string) ([]byte, bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	item, found := sh.data[key]
	if !found {
		return nil, false
	}
	if item.TTL > 0 && time.Since(item.CreatedAt) > item.TTL {
		return nil, false
	}
	return item.Value, true
}

// GetMany retrieves multiple keys, grouping them by shard so each shard is
// locked once.
func (s *MemStore) GetMany(keys []string) map[string][]byte {
	results := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return results
	}

	keysByShard := make([][]string, s.numShards)
	for _, key := range keys {
		h := fnv.New64a()
		h.Write([]byte(key))
		idx := h.Sum64() % uint64(s.numShards)
		keysByShard[idx] = append(keysByShard[idx], key)
	}

	now := time.Now()
	for i, shardKeys := range keysByShard {
		if len(shardKeys) == 0 {
			continue
		}
		sh := s.shards[i]
		sh.mu.RLock()
		for _, key := range shardKeys {
			if item, found := sh.data[key]; found {
				if item.TTL == 0 || now.Before(item.CreatedAt.Add(item.TTL)) {
					results[key] = item.Value
				}
			}
		}
		sh.mu.RUnlock()
	}
	return results
}

// Delete removes a document and its index entries.
func (s *MemStore) Delete(key string) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	var data map[string]any
	if item, exists := sh.data[key]; exists {
		data = decodeForIndex(item.Value)
	}
	delete(sh.data, key)
	sh.mu.Unlock()

	if data != nil {
		s.indexes.Remove(key, data)
	}
}

// GetAll returns a copy of all non-expired documents across shards.
func (s *MemStore) GetAll() map[string][]byte {
	snapshot := make(map[string][]byte)
	now := time.Now()
	for _, sh := range s.shards {
		sh.mu.RLock()
		for k, item := range sh.data {
			if item.TTL == 0 || now.Before(item.CreatedAt.Add(item.TTL)) {
				value := make([]byte, len(item.Value))
				copy(value, item.Value)
				snapshot[k] = value
			}
		}
		sh.mu.RUnlock()
	}
	return snapshot
}

// LoadData replaces the store contents with data from a persistent source.
func (s *MemStore) LoadData(data map[string][]byte) {
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.data = make(map[string]Item)
		sh.mu.Unlock()
	}
	for k, v := range data {
		sh := s.shardFor(k)
		sh.mu.Lock()
		sh.data[k] = Item{Value: v, CreatedAt: time.Now()}
		sh.mu.Unlock()
	}
}

// CleanExpiredItems physically deletes expired items and reports whether
// anything was removed.
func (s *MemStore) CleanExpiredItems() bool {
	now := time.Now()
	wasModified := false
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, item := range sh.data {
			if item.TTL > 0 && now.After(item.CreatedAt.Add(item.TTL)) {
				if data := decodeForIndex(item.Value); data != nil {
					s.indexes.Remove(key, data)
				}
				delete(sh.data, key)
				wasModified = true
			}
		}
		sh.mu.Unlock()
	}
	return wasModified
}

// Size returns the total number of items across all shards.
func (s *MemStore) Size() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		total += len(sh.data)
		sh.mu.RUnlock()
	}
	return total
}

// CreateIndex creates an index on a field and backfills it.
func (s *MemStore) CreateIndex(field string) {
	if s.HasIndex(field) {
		return
	}
	s.indexes.CreateIndex(field)
	count := 0
	for key, value := range s.GetAll() {
		if data := decodeForIndex(value); data != nil {
			s.indexes.Update(key, nil, data)
			count++
		}
	}
	slog.Debug("Index backfill complete", "field", field, "item_count", count)
}

func (s *MemStore) ListIndexes() []string { return s.indexes.ListIndexes() }

func (s *MemStore) HasIndex(field string) bool { return s.indexes.HasIndex(field) }

// Lookup finds the keys of documents whose field equals value, via the index.
func (s *MemStore) Lookup(field string, value any) ([]string, bool) {
	return s.indexes.Lookup(field, value)
}
