package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// Match evaluates a compiled filter against a decoded document. All
// field clauses must hold; when the OR list is non-empty at least one of
// its alternatives must hold too.
func Match(doc map[string]any, filter Filter) bool {
	for field, clause := range filter.Fields {
		if !matchClause(doc, field, clause) {
			return false
		}
	}
	if len(filter.Or) == 0 {
		return true
	}
	for _, alt := range filter.Or {
		if matchClause(doc, alt.Field, alt.Clause) {
			return true
		}
	}
	return false
}

func matchClause(doc map[string]any, field string, clause Clause) bool {
	if clause.Kind == KindTrue {
		return true
	}
	value, exists := lookupPath(doc, field)
	switch clause.Kind {
	case KindEq:
		return exists && compare(value, clause.Value) == 0
	case KindNe:
		// Absent fields count as not-equal.
		return !exists || compare(value, clause.Value) != 0
	case KindGt:
		return exists && compare(value, clause.Value) > 0
	case KindLt:
		return exists && compare(value, clause.Value) < 0
	case KindGte:
		return exists && compare(value, clause.Value) >= 0
	case KindLte:
		return exists && compare(value, clause.Value) <= 0
	case KindIn:
		if !exists {
			return false
		}
		for _, candidate := range clause.Values {
			if compare(value, candidate) == 0 {
				return true
			}
		}
		return false
	case KindArrayContains:
		arr, ok := value.([]any)
		if !exists || !ok {
			return false
		}
		for _, elem := range arr {
			if compare(elem, clause.Value) == 0 {
				return true
			}
		}
		return false
	case KindElemMatch:
		arr, ok := value.([]any)
		if !exists || !ok {
			return false
		}
		for _, elem := range arr {
			obj, ok := elem.(map[string]any)
			if !ok {
				continue
			}
			if nested, ok := obj[clause.Key]; ok && compare(nested, clause.Value) == 0 {
				return true
			}
		}
		return false
	case KindDateRange:
		if !exists {
			return false
		}
		t, ok := parseTime(value)
		if !ok {
			return false
		}
		return inRange(t, clause.Range)
	case KindSearch:
		if !exists {
			return false
		}
		term := fmt.Sprintf("%v", clause.Value)
		return strings.Contains(strings.ToLower(fmt.Sprintf("%v", value)), strings.ToLower(term))
	}
	return false
}

func inRange(t time.Time, r *DateRange) bool {
	if r == nil {
		return true
	}
	if r.Gt != nil && !t.After(*r.Gt) {
		return false
	}
	if r.Gte != nil && t.Before(*r.Gte) {
		return false
	}
	if r.Lt != nil && !t.Before(*r.Lt) {
		return false
	}
	if r.Lte != nil && t.After(*r.Lte) {
		return false
	}
	return true
}

// lookupPath resolves a possibly dotted field path against nested maps.
func lookupPath(doc map[string]any, path string) (any, bool) {
	if !strings.Contains(path, ".") {
		v, ok := doc[path]
		return v, ok
	}
	var current any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Less reports whether a sorts before b, using the same ordering the
// comparison clauses use. Exposed for result sorting.
func Less(a, b any) bool { return compare(a, b) < 0 }

// compare orders two values numerically when both convert to float64,
// otherwise by their string forms.
func compare(a, b any) int {
	if numA, okA := toFloat64(a); okA {
		if numB, okB := toFloat64(b); okB {
			if numA < numB {
				return -1
			}
			if numA > numB {
				return 1
			}
			return 0
		}
	}

	strA := fmt.Sprintf("%v", a)
	strB := fmt.Sprintf("%v", b)
	return strings.Compare(strA, strB)
}

// toFloat64 attempts to convert an any to float64, returns false if not a number.
func toFloat64(val any) (float64, bool) {
	switch v := val.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case jsoniter.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
