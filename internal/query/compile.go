package query

import (
	"time"
)

// ClauseKind identifies how a Clause constrains a field value.
type ClauseKind int

const (
	// KindTrue matches every document. Produced when a date condition
	// carries an unrecognized operator.
	KindTrue ClauseKind = iota
	KindEq
	KindNe
	KindGt
	KindLt
	KindGte
	KindLte
	// KindIn matches when the field value equals any of Values.
	KindIn
	// KindArrayContains matches array fields holding Value as an element.
	KindArrayContains
	// KindElemMatch matches arrays of objects where some element has
	// elem[Key] == Value.
	KindElemMatch
	// KindDateRange matches timestamps inside Range.
	KindDateRange
	// KindSearch matches when the field's string form contains Value
	// case-insensitively. Used by pagination search, not by the wire
	// condition list.
	KindSearch
)

// Clause is a single compiled constraint on one field.
type Clause struct {
	Kind   ClauseKind
	Value  any
	Values []any      // KindIn
	Key    string     // KindElemMatch
	Range  *DateRange // KindDateRange
}

// DateRange holds the merged bounds of one or more date conditions on a
// field. Nil pointers mean unbounded on that side.
type DateRange struct {
	Gt  *time.Time
	Gte *time.Time
	Lt  *time.Time
	Lte *time.Time
}

// OrClause is one alternative of the filter-level OR list.
type OrClause struct {
	Field  string
	Clause Clause
}

// Filter is the compiled form of a condition list. Field clauses are
// ANDed together; the Or list, when non-empty, requires at least one
// alternative to hold as well.
type Filter struct {
	Fields map[string]Clause
	Or     []OrClause
}

// Empty reports whether the filter constrains nothing.
func (f *Filter) Empty() bool {
	return len(f.Fields) == 0 && len(f.Or) == 0
}

// AddSearch appends a case-insensitive substring alternative for the
// given field. Multiple search fields form one OR group.
func (f *Filter) AddSearch(field, term string) {
	f.Or = append(f.Or, OrClause{Field: field, Clause: Clause{Kind: KindSearch, Value: term}})
}

// Compile lowers a condition list into a Filter.
//
// Plain conditions target the same per-field clause map, so a later
// condition on an already-constrained field replaces the earlier one.
// Date conditions are the exception: repeated date conditions on the
// same field merge their bounds into a single range. Every OR group in
// the list contributes its alternatives to the one filter-level OR
// list, regardless of which condition carried them.
func Compile(conditions []Condition) Filter {
	filter := Filter{Fields: make(map[string]Clause)}
	for _, c := range conditions {
		if len(c.OrConditions) > 0 {
			for _, alt := range c.OrConditions {
				var clause Clause
				if alt.OrType == typeDate {
					clause = dateClause(nil, alt.Operator, alt.Value)
				} else {
					var field string
					field, clause = genericClause(alt.Field, alt.Operator, alt.Value)
					filterOrAppend(&filter, field, clause)
					continue
				}
				filterOrAppend(&filter, alt.Field, clause)
			}
			continue
		}
		if c.Type == typeDate {
			var prior *DateRange
			if existing, ok := filter.Fields[c.Field]; ok && existing.Kind == KindDateRange {
				prior = existing.Range
			}
			filter.Fields[c.Field] = dateClause(prior, c.Operator, c.Value)
			continue
		}
		field, clause := genericClause(c.Field, c.Operator, c.Value)
		filter.Fields[field] = clause
	}
	return filter
}

func filterOrAppend(f *Filter, field string, clause Clause) {
	f.Or = append(f.Or, OrClause{Field: field, Clause: clause})
}

// genericClause builds the clause for a non-date condition and returns
// the field path it applies to. objectKey conditions rewrite the path to
// field.key so nested lookups go through the same dotted traversal as
// everything else.
func genericClause(field, operator string, value any) (string, Clause) {
	switch normalizeOp(operator) {
	case OpEq:
		return field, Clause{Kind: KindEq, Value: value}
	case OpNe:
		return field, Clause{Kind: KindNe, Value: value}
	case OpGt:
		return field, Clause{Kind: KindGt, Value: value}
	case OpLt:
		return field, Clause{Kind: KindLt, Value: value}
	case OpGte:
		return field, Clause{Kind: KindGte, Value: value}
	case OpLte:
		return field, Clause{Kind: KindLte, Value: value}
	case OpArrayContains:
		return field, Clause{Kind: KindArrayContains, Value: value}
	case OpObjectKey:
		if key, v, ok := keyValuePair(value); ok {
			return field + "." + key, Clause{Kind: KindEq, Value: v}
		}
		return field, Clause{Kind: KindTrue}
	case OpArrayObjectKey:
		if key, v, ok := keyValuePair(value); ok {
			return field, Clause{Kind: KindElemMatch, Key: key, Value: v}
		}
		return field, Clause{Kind: KindTrue}
	}
	// No operator: arrays mean membership, anything else means equality.
	if values, ok := value.([]any); ok {
		return field, Clause{Kind: KindIn, Values: values}
	}
	return field, Clause{Kind: KindEq, Value: value}
}

// dateClause merges one date condition into an existing range. Unknown
// operators contribute nothing, which preserves any prior bounds and
// otherwise leaves the field unconstrained.
func dateClause(prior *DateRange, operator string, value any) Clause {
	r := &DateRange{}
	if prior != nil {
		*r = *prior
	}
	t, ok := parseTime(value)
	if ok {
		switch normalizeOp(operator) {
		case OpGt:
			r.Gt = &t
		case OpLt:
			r.Lt = &t
		case OpGte:
			r.Gte = &t
		case OpLte:
			r.Lte = &t
		case OpEq:
			r.Gte, r.Lte = &t, &t
		}
	}
	if r.Gt == nil && r.Gte == nil && r.Lt == nil && r.Lte == nil {
		return Clause{Kind: KindTrue}
	}
	return Clause{Kind: KindDateRange, Range: r}
}

func keyValuePair(value any) (string, any, bool) {
	m, ok := value.(map[string]any)
	if !ok {
		return "", nil, false
	}
	key, ok := m["key"].(string)
	if !ok || key == "" {
		return "", nil, false
	}
	return key, m["value"], true
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t, true
			}
		}
	case float64:
		// Millisecond epoch, the other timestamp form clients send.
		return time.UnixMilli(int64(v)).UTC(), true
	}
	return time.Time{}, false
}
