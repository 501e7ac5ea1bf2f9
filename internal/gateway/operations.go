package gateway

import (
	"fmt"
	"math"

	"shopcore/internal/domain"
	"shopcore/internal/query"
)

// Change event names. The generic event fires on every mutation; the
// four high-traffic collections additionally get their own events
// carrying the full document.
const EventDataUpdate = "dataUpdate"

var (
	createdEvents = map[string]string{
		domain.ColOrder:         "orderCreated",
		domain.ColCustomerOrder: "customerOrderCreated",
		domain.ColProduct:       "productCreated",
		domain.ColPromotion:     "promotionCreated",
	}
	updatedEvents = map[string]string{
		domain.ColOrder:         "orderUpdated",
		domain.ColCustomerOrder: "customerOrderUpdated",
		domain.ColProduct:       "productUpdated",
		domain.ColPromotion:     "promotionUpdated",
	}
	deletedEvents = map[string]string{
		domain.ColOrder:         "orderDeleted",
		domain.ColCustomerOrder: "customerOrderDeleted",
		domain.ColProduct:       "productDeleted",
		domain.ColPromotion:     "promotionDeleted",
	}
)

func (g *Gateway) emitChange(action string, col domain.Collection, id string, doc map[string]any, specific map[string]string) {
	g.publisher.Publish(EventDataUpdate, map[string]any{
		"action":     action,
		"collection": col.Name,
		"id":         id,
	})
	if event, ok := specific[col.Name]; ok {
		g.publisher.Publish(event, doc)
	}
}

// Insert creates a document in the named collection. Collection policies
// run first and may finish the operation on their own (the cart
// quantity-merge path) or veto it; otherwise the generic create gate
// applies and the document is persisted and announced.
func (g *Gateway) Insert(p domain.Principal, collectionName string, fields map[string]any) (map[string]any, error) {
	col, err := g.resolve(collectionName)
	if err != nil {
		return nil, err
	}
	op := &InsertOp{Gateway: g, Principal: p, Col: col, Fields: copyFields(fields)}

	verdict := VerdictContinue
	for _, policy := range g.policies {
		if !policy.Match(col) {
			continue
		}
		v, done, err := policy.PreInsert(op)
		if err != nil {
			return nil, err
		}
		if done != nil {
			// Policy completed the operation, e.g. a merged cart row.
			// No generic gate, no change event.
			return done, nil
		}
		if v == VerdictAllow {
			verdict = VerdictAllow
			break
		}
	}
	if verdict != VerdictAllow {
		if err := g.resolver.Authorize(p, domain.ActionCreate, col); err != nil {
			return nil, err
		}
	}

	doc := op.Fields
	id := docID(doc)
	now := g.timestamp()
	doc[domain.FieldCreatedAt] = now
	doc[domain.FieldUpdatedAt] = now
	if err := g.putDoc(col.Name, id, doc); err != nil {
		return nil, err
	}
	g.emitChange("insert", col, id, doc, createdEvents)
	return doc, nil
}

// Update applies a partial mutation to one document. Policies handle the
// ownership and field-shape exceptions; the generic update gate covers
// the rest. Order status transitions stamp their timestamps for every
// authorized actor.
func (g *Gateway) Update(p domain.Principal, collectionName, id string, fields map[string]any) (map[string]any, error) {
	col, err := g.resolve(collectionName)
	if err != nil {
		return nil, err
	}
	target, ok := g.getDoc(col.Name, id)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, col.Name, id)
	}
	op := &UpdateOp{Gateway: g, Principal: p, Col: col, ID: id, Target: target, Fields: copyFields(fields)}

	verdict := VerdictContinue
	for _, policy := range g.policies {
		if !policy.Match(col) {
			continue
		}
		v, err := policy.PreUpdate(op)
		if err != nil {
			return nil, err
		}
		if v == VerdictAllow {
			verdict = VerdictAllow
			break
		}
	}
	if verdict != VerdictAllow {
		if err := g.resolver.Authorize(p, domain.ActionUpdate, col); err != nil {
			return nil, err
		}
	}

	if col.Name == domain.ColOrder {
		g.stampStatusTransition(op.Fields)
	}
	for k, v := range op.Fields {
		target[k] = v
	}
	target[domain.FieldUpdatedAt] = g.timestamp()
	if err := g.putDoc(col.Name, id, target); err != nil {
		return nil, err
	}
	g.emitChange("update", col, id, target, updatedEvents)
	return target, nil
}

// stampStatusTransition adds the transition timestamp matching the
// submitted status, if any.
func (g *Gateway) stampStatusTransition(fields map[string]any) {
	status, _ := fields["status"].(string)
	switch status {
	case domain.OrderStatusConfirmed:
		fields["confirmedAt"] = g.timestamp()
	case domain.OrderStatusDelivering:
		fields["deliveringAt"] = g.timestamp()
	case domain.OrderStatusGotProduct:
		fields["gotProductAt"] = g.timestamp()
	}
}

// Delete removes one document by id. Policies may take over entirely
// (owner-scoped favorite deletion); otherwise the delete is by id with
// no generic permission gate, which mirrors the create/update asymmetry
// the API has always had.
func (g *Gateway) Delete(p domain.Principal, collectionName, id string) error {
	col, err := g.resolve(collectionName)
	if err != nil {
		return err
	}
	op := &DeleteOp{Gateway: g, Principal: p, Col: col, ID: id}
	for _, policy := range g.policies {
		if !policy.Match(col) {
			continue
		}
		handled, err := policy.PreDelete(op)
		if err != nil {
			return err
		}
		if handled {
			return nil
		}
	}

	doc, ok := g.getDoc(col.Name, id)
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, col.Name, id)
	}
	colStore := g.manager.Collection(col.Name)
	colStore.Delete(id)
	g.manager.EnqueueSave(col.Name, colStore)
	g.emitChange("delete", col, id, doc, deletedEvents)
	return nil
}

// List returns every document matching the dynamic conditions. Ownership
// shortcuts short-circuit before the generic read gate.
func (g *Gateway) List(p domain.Principal, collectionName, rawConditions string) ([]map[string]any, error) {
	col, err := g.resolve(collectionName)
	if err != nil {
		return nil, err
	}
	conditions, err := query.ParseConditions(rawConditions)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedQuery, err)
	}
	filter := query.Compile(conditions)
	op := &ListOp{Gateway: g, Principal: p, Col: col, Filter: filter}

	verdict := VerdictContinue
	for _, policy := range g.policies {
		if !policy.Match(col) {
			continue
		}
		v, docs, handled, err := policy.PreList(op)
		if err != nil {
			return nil, err
		}
		if handled {
			if docs == nil {
				docs = []map[string]any{}
			}
			return docs, nil
		}
		if v == VerdictAllow {
			verdict = VerdictAllow
			break
		}
	}
	if verdict != VerdictAllow {
		if err := g.resolver.Authorize(p, domain.ActionRead, col); err != nil {
			return nil, err
		}
	}

	docs := g.filterDocs(col.Name, filter)
	if docs == nil {
		docs = []map[string]any{}
	}
	return docs, nil
}

// PageParams are the knobs of a paginated read.
type PageParams struct {
	Conditions   string
	Search       string
	SearchFields []string
	Page         int
	PageSize     int
	SortBy       string
	SortDesc     bool
	Populate     []string
}

// Pagination describes the returned page.
type Pagination struct {
	TotalDocuments int `json:"totalDocuments"`
	TotalPages     int `json:"totalPages"`
	CurrentPage    int `json:"currentPage"`
	Limit          int `json:"limit"`
}

// Page is one paginated result set.
type Page struct {
	Data       []map[string]any `json:"data"`
	Pagination Pagination       `json:"pagination"`
}

const (
	defaultPage     = 1
	defaultPageSize = 10
)

// Paginate returns one page of a collection. Unlike List it has no
// ownership shortcuts; the generic read gate always applies.
func (g *Gateway) Paginate(p domain.Principal, collectionName string, params PageParams) (*Page, error) {
	col, err := g.resolve(collectionName)
	if err != nil {
		return nil, err
	}
	if err := g.resolver.Authorize(p, domain.ActionRead, col); err != nil {
		return nil, err
	}
	conditions, err := query.ParseConditions(params.Conditions)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedQuery, err)
	}
	filter := query.Compile(conditions)
	if params.Search != "" {
		// Search owns the alternation: any OR groups from the
		// conditions are replaced, not widened.
		filter.Or = nil
		for _, field := range params.SearchFields {
			filter.AddSearch(field, params.Search)
		}
	}

	docs := g.filterDocs(col.Name, filter)

	sortBy := params.SortBy
	if sortBy == "" {
		sortBy = domain.FieldID
	}
	sortDocs(docs, sortBy, !params.SortDesc)

	page := params.Page
	if page < 1 {
		page = defaultPage
	}
	limit := params.PageSize
	if limit < 1 {
		limit = defaultPageSize
	}
	total := len(docs)
	totalPages := int(math.Ceil(float64(total) / float64(limit)))

	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	slice := docs[start:end]
	if slice == nil {
		slice = []map[string]any{}
	}
	g.populate(col, slice, params.Populate)

	return &Page{
		Data: slice,
		Pagination: Pagination{
			TotalDocuments: total,
			TotalPages:     totalPages,
			CurrentPage:    page,
			Limit:          limit,
		},
	}, nil
}

// PublicListParams are the knobs of an unauthenticated catalog read.
type PublicListParams struct {
	Search           string
	Category         string
	Limit            int
	SortBy           string
	SortAsc          bool
	ActiveOnly       bool
	PopulateCategory bool
}

/// PublicProducts serves the unauthenticated storefront catalog: active
// products only, optionally narrowed by name search and category.
func (g *Gateway) PublicProducts(params PublicListParams) []map[string]any {
	filter := query.Filter{Fields: map[string]query.Clause{
		"status": {Kind: query.KindEq, Value: true},
	}}
	if params.Category != "" {
		filter.Fields["categoryId"] = query.Clause{Kind: query.KindEq, Value: params.Category}
	}
	if params.Search != "" {
		filter.AddSearch("name", params.Search)
	}
	docs := publicSortLimit(g.filterDocs(domain.ColProduct, filter), params)
	if params.PopulateCategory {
		if col, ok := domain.ResolveCollection(domain.ColProduct); ok {
			g.populate(col, docs, []string{"categoryId"})
		}
	}
	return docs
}

// PublicPromotions serves the unauthenticated promotion list. ActiveOnly
// keeps promotions whose date window contains now.
func (g *Gateway) PublicPromotions(params PublicListParams) []map[string]any {
	filter := query.Filter{Fields: map[string]query.Clause{}}
	if params.ActiveOnly {
		now := g.now()
		filter.Fields["isActive"] = query.Clause{Kind: query.KindEq, Value: true}
		filter.Fields["startDate"] = query.Clause{Kind: query.KindDateRange, Range: &query.DateRange{Lte: &now}}
		filter.Fields["endDate"] = query.Clause{Kind: query.KindDateRange, Range: &query.DateRange{Gte: &now}}
	}
	return publicSortLimit(g.filterDocs(domain.ColPromotion, filter), params)
}

// publicSortLimit applies the newest-first default ordering and the
// optional row cap of the public endpoints.
func publicSortLimit(docs []map[string]any, params PublicListParams) []map[string]any {
	sortBy := params.SortBy
	if sortBy == "" {
		sortBy = domain.FieldCreatedAt
	}
	sortDocs(docs, sortBy, params.SortAsc)
	if params.Limit > 0 && params.Limit < len(docs) {
		docs = docs[:params.Limit]
	}
	if docs == nil {
		docs = []map[string]any{}
	}
	return docs
}
