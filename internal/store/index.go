package store

import (
	"log/slog"
	"strconv"
	"sync"

	"github.com/google/btree"
	jsoniter "github.com/json-iterator/go"
)

const btreeDegree = 32

// numericKey holds one indexed numeric value and the document keys carrying it.
type numericKey struct {
	Value float64
	Keys  map[string]struct{}
}

// stringKey holds one indexed string value and the document keys carrying it.
type stringKey struct {
	Value string
	Keys  map[string]struct{}
}

func numericLess(a, b numericKey) bool { return a.Value < b.Value }
func stringLess(a, b stringKey) bool   { return a.Value < b.Value }

// fieldIndex keeps two B-Trees per indexed field, one per supported value type.
type fieldIndex struct {
	numericTree *btree.BTreeG[numericKey]
	stringTree  *btree.BTreeG[stringKey]
}

func newFieldIndex() *fieldIndex {
	return &fieldIndex{
		numericTree: btree.NewG(btreeDegree, numericLess),
		stringTree:  btree.NewG(btreeDegree, stringLess),
	}
}

// indexManager manages the field indexes of a single collection store.
type indexManager struct {
	mu      sync.RWMutex
	indexes map[string]*fieldIndex
}

func newIndexManager() *indexManager {
	return &indexManager{indexes: make(map[string]*fieldIndex)}
}

func (im *indexManager) CreateIndex(field string) {
	im.mu.Lock()
	defer im.mu.Unlock()
	if _, exists := im.indexes[field]; !exists {
		im.indexes[field] = newFieldIndex()
		slog.Info("Field index created", "field", field)
	}
}

func (im *indexManager) ListIndexes() []string {
	im.mu.RLock()
	defer im.mu.RUnlock()
	fields := make([]string, 0, len(im.indexes))
	for field := range im.indexes {
		fields = append(fields, field)
	}
	return fields
}

func (im *indexManager) HasIndex(field string) bool {
	im.mu.RLock()
	defer im.mu.RUnlock()
	_, exists := im.indexes[field]
	return exists
}

func (im *indexManager) add(index *fieldIndex, docKey string, value any) {
	if fVal, ok := valueToFloat64(value); ok {
		item, found := index.numericTree.Get(numericKey{Value: fVal})
		if !found {
			item = numericKey{Value: fVal, Keys: make(map[string]struct{})}
		}
		item.Keys[docKey] = struct{}{}
		index.numericTree.ReplaceOrInsert(item)
	} else if sVal, ok := value.(string); ok {
		item, found := index.stringTree.Get(stringKey{Value: sVal})
		if !found {
			item = stringKey{Value: sVal, Keys: make(map[string]struct{})}
		}
		item.Keys[docKey] = struct{}{}
		index.stringTree.ReplaceOrInsert(item)
	}
}

func (im *indexManager) remove(index *fieldIndex, docKey string, value any) {
	if fVal, ok := valueToFloat64(value); ok {
		if item, found := index.numericTree.Get(numericKey{Value: fVal}); found {
			delete(item.Keys, docKey)
			if len(item.Keys) == 0 {
				index.numericTree.Delete(item)
			} else {
				index.numericTree.ReplaceOrInsert(item)
			}
		}
	} else if sVal, ok := value.(string); ok {
		if item, found := index.stringTree.Get(stringKey{Value: sVal}); found {
			delete(item.Keys, docKey)
			if len(item.Keys) == 0 {
				index.stringTree.Delete(item)
			} else {
				index.stringTree.ReplaceOrInsert(item)
			}
		}
	}
}

// Update reindexes one document, diffing the indexed fields between the old
// and the new state.
func (im *indexManager) Update(docKey string, oldData, newData map[string]any) {
	im.mu.Lock()
	defer im.mu.Unlock()
	if len(im.indexes) == 0 {
		return
	}
	for field, index := range im.indexes {
		oldVal, oldOk := oldData[field]
		newVal, newOk := newData[field]
		if oldOk && newOk && oldVal == newVal {
			continue
		}
		if oldOk {
			im.remove(index, docKey, oldVal)
		}
		if newOk {
			im.add(index, docKey, newVal)
		}
	}
}

// Remove drops one document from every index it appears in.
func (im *indexManager) Remove(docKey string, data map[string]any) {
	im.mu.Lock()
	defer im.mu.Unlock()
	if data == nil || len(im.indexes) == 0 {
		return
	}
	for field, index := range im.indexes {
		if val, ok := data[field]; ok {
			im.remove(index, docKey, val)
		}
	}
}

// Lookup performs an equality lookup on an index. The second return reports
// whether an index exists for the field at all.
func (im *indexManager) Lookup(field string, value any) ([]string, bool) {
	im.mu.RLock()
	defer im.mu.RUnlock()

	index, exists := im.indexes[field]
	if !exists {
		return nil, false
	}

	var foundKeys map[string]struct{}
	if fVal, ok := valueToFloat64(value); ok {
		if item, found := index.numericTree.Get(numericKey{Value: fVal}); found {
			foundKeys = item.Keys
		}
	} else if sVal, ok := value.(string); ok {
		if item, found := index.stringTree.Get(stringKey{Value: sVal}); found {
			foundKeys = item.Keys
		}
	}

	keys := make([]string, 0, len(foundKeys))
	for k := range foundKeys {
		keys = append(keys, k)
	}
	return keys, true
}

// valueToFloat64 converts the numeric shapes jsoniter can hand us into a
// float64 for consistent index keys.
func valueToFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case jsoniter.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
