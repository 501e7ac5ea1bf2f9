// Package gateway implements the dynamic document engine: one set of
// insert, update, delete, list and paginate operations parameterized by
// collection name. It orchestrates the collection policy chain, the
// generic permission gate, storage access and change notification.
package gateway

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"shopcore/internal/authz"
	"shopcore/internal/domain"
	"shopcore/internal/notify"
	"shopcore/internal/query"
	"shopcore/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Gateway is safe for concurrent use; all its fields are read-only after
// construction.
type Gateway struct {
	manager   *store.Manager
	resolver  *authz.Resolver
	publisher notify.Publisher
	logger    *slog.Logger
	now       func() time.Time
	policies  []Policy
}

// New wires the gateway. A nil publisher is a programming error caught
// at startup rather than a per-call condition.
func New(manager *store.Manager, resolver *authz.Resolver, publisher notify.Publisher, logger *slog.Logger) *Gateway {
	if publisher == nil {
		panic("gateway: nil publisher")
	}
	return &Gateway{
		manager:   manager,
		resolver:  resolver,
		publisher: publisher,
		logger:    logger.With("component", "gateway"),
		now:       func() time.Time { return time.Now().UTC() },
		policies:  defaultPolicies(),
	}
}

func (g *Gateway) timestamp() string {
	return g.now().Format(time.RFC3339Nano)
}

// resolve maps a client collection name to its registry entry.
func (g *Gateway) resolve(name string) (domain.Collection, error) {
	col, ok := domain.ResolveCollection(name)
	if !ok {
		return domain.Collection{}, fmt.Errorf("%w: %s", ErrUnknownCollection, name)
	}
	return col, nil
}

// getDoc loads and decodes one document by id.
func (g *Gateway) getDoc(collectionName, id string) (map[string]any, bool) {
	raw, ok := g.manager.Collection(collectionName).Get(id)
	if !ok {
		return nil, false
	}
	doc, err := decodeDoc(raw)
	if err != nil {
		g.logger.Error("corrupt document", "collection", collectionName, "id", id, "error", err)
		return nil, false
	}
	return doc, true
}

// putDoc encodes and stores a document, then queues a snapshot save.
func (g *Gateway) putDoc(collectionName, id string, doc map[string]any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	col := g.manager.Collection(collectionName)
	col.Set(id, raw, 0)
	g.manager.EnqueueSave(collectionName, col)
	return nil
}

// allDocs decodes every live document in a collection.
func (g *Gateway) allDocs(collectionName string) []map[string]any {
	raw := g.manager.Collection(collectionName).GetAll()
	docs := make([]map[string]any, 0, len(raw))
	for id, value := range raw {
		doc, err := decodeDoc(value)
		if err != nil {
			g.logger.Error("corrupt document", "collection", collectionName, "id", id, "error", err)
			continue
		}
		docs = append(docs, doc)
	}
	sortDocs(docs, domain.FieldID, true)
	return docs
}

// findByField returns the documents whose field equals value, through
// the field index when one exists, otherwise by scanning.
func (g *Gateway) findByField(collectionName, field string, value any) []map[string]any {
	col := g.manager.Collection(collectionName)
	if col.HasIndex(field) {
		ids, _ := col.Lookup(field, value)
		docs := make([]map[string]any, 0, len(ids))
		for id, raw := range col.GetMany(ids) {
			doc, err := decodeDoc(raw)
			if err != nil {
				g.logger.Error("corrupt document", "collection", collectionName, "id", id, "error", err)
				continue
			}
			docs = append(docs, doc)
		}
		sortDocs(docs, domain.FieldID, true)
		return docs
	}
	filter := query.Filter{Fields: map[string]query.Clause{
		field: {Kind: query.KindEq, Value: value},
	}}
	return g.filterDocs(collectionName, filter)
}

// filterDocs scans a collection and keeps the documents matching filter.
func (g *Gateway) filterDocs(collectionName string, filter query.Filter) []map[string]any {
	var out []map[string]any
	for _, doc := range g.allDocs(collectionName) {
		if query.Match(doc, filter) {
			out = append(out, doc)
		}
	}
	return out
}

// populate expands the requested reference fields in place, replacing an
// id value with the referenced document when it resolves. Fields without
// a registered reference, or ids that do not resolve, are left as-is.
func (g *Gateway) populate(col domain.Collection, docs []map[string]any, fields []string) {
	for _, field := range fields {
		target, ok := col.References[field]
		if !ok {
			continue
		}
		for _, doc := range docs {
			id, ok := doc[field].(string)
			if !ok || id == "" {
				continue
			}
			if ref, ok := g.getDoc(target, id); ok {
				doc[field] = ref
			}
		}
	}
}

func decodeDoc(raw []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// docID extracts the primary key, assigning a fresh UUID when absent.
func docID(doc map[string]any) string {
	if id, ok := doc[domain.FieldID].(string); ok && id != "" {
		return id
	}
	id := uuid.NewString()
	doc[domain.FieldID] = id
	return id
}

// copyFields clones the mutation envelope so policies can rewrite it
// without aliasing the caller's map.
func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// sortDocs orders documents by one field. Missing values sort first on
// ascending order.
func sortDocs(docs []map[string]any, field string, ascending bool) {
	sort.SliceStable(docs, func(i, j int) bool {
		less := query.Less(docs[i][field], docs[j][field])
		if ascending {
			return less
		}
		return query.Less(docs[j][field], docs[i][field])
	})
}
