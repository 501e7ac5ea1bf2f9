// Package counter produces monotonically increasing per-branch,
// per-collection sequence numbers rendered as zero-padded strings,
// used for human-readable bill and order reference IDs.
package counter

import (
	"fmt"
	"log/slog"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"shopcore/internal/domain"
	"shopcore/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const padWidth = 6

// record is one counter document, keyed by branch ID. A branch carries
// one entry per collection it issues IDs for.
type record struct {
	ID          string  `json:"_id"`
	Collections []entry `json:"collections"`
}

type entry struct {
	CollectionName string `json:"collectionName"`
	NextID         int64  `json:"next_id"`
}

// Service reads and advances counters stored in the reserved counters
// collection. Peek and Increment are independent calls; callers that
// need a race-free fetch-and-advance use Reserve.
type Service struct {
	manager *store.Manager
	logger  *slog.Logger

	// Serializes read-modify-write cycles on counter documents. The
	// store is atomic per Set only, not across a Get/Set pair.
	mu sync.Mutex
}

func NewService(manager *store.Manager, logger *slog.Logger) *Service {
	return &Service{manager: manager, logger: logger.With("component", "counter")}
}

// Format renders a counter value in its zero-padded wire form.
func Format(n int64) string {
	return fmt.Sprintf("%0*d", padWidth, n)
}

// Peek returns the current next_id for (branchID, collectionName) as a
// zero-padded string, lazily creating a fresh counter at 1. Peek never
// advances the counter; two Peeks without an Increment between them
// return the same value.
func (s *Service) Peek(branchID, collectionName string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load(branchID)
	if err != nil {
		return "", err
	}
	for _, e := range rec.Collections {
		if e.CollectionName == collectionName {
			return Format(e.NextID), nil
		}
	}
	rec.Collections = append(rec.Collections, entry{CollectionName: collectionName, NextID: 1})
	if err := s.save(rec); err != nil {
		return "", err
	}
	return Format(1), nil
}

// Increment advances the counter for (branchID, collectionName) by one.
// A missing key is logged and ignored rather than surfaced, since the
// caller has already consumed the peeked value by the time it gets here.
func (s *Service) Increment(branchID, collectionName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load(branchID)
	if err != nil {
		return err
	}
	for i := range rec.Collections {
		if rec.Collections[i].CollectionName == collectionName {
			rec.Collections[i].NextID++
			return s.save(rec)
		}
	}
	s.logger.Warn("increment on missing counter key",
		"branchId", branchID, "collection", collectionName)
	return nil
}

// Reserve atomically returns the current value and advances the counter,
// creating it if absent. Unlike the Peek/Increment pair, two concurrent
// Reserves never observe the same value.
func (s *Service) Reserve(branchID, collectionName string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load(branchID)
	if err != nil {
		return "", err
	}
	for i := range rec.Collections {
		if rec.Collections[i].CollectionName == collectionName {
			value := rec.Collections[i].NextID
			rec.Collections[i].NextID++
			if err := s.save(rec); err != nil {
				return "", err
			}
			return Format(value), nil
		}
	}
	rec.Collections = append(rec.Collections, entry{CollectionName: collectionName, NextID: 2})
	if err := s.save(rec); err != nil {
		return "", err
	}
	return Format(1), nil
}

// load fetches the counter document for a branch, or an empty one when
// the branch has no counters yet.
func (s *Service) load(branchID string) (*record, error) {
	col := s.manager.Collection(domain.CountersCollection)
	raw, ok := col.Get(branchID)
	if !ok {
		return &record{ID: branchID}, nil
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode counter record %q: %w", branchID, err)
	}
	return &rec, nil
}

func (s *Service) save(rec *record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode counter record %q: %w", rec.ID, err)
	}
	col := s.manager.Collection(domain.CountersCollection)
	col.Set(rec.ID, raw, 0)
	s.manager.EnqueueSave(domain.CountersCollection, col)
	return nil
}
