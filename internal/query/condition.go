// Package query implements the condition compiler: it translates the
// declarative wire-level condition list into a Filter, and evaluates
// filters against documents. Compilation never touches storage, so the
// whole package is unit-testable in isolation.
package query

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Comparison operators accepted on the wire. The HTML-escaped forms are the
// canonical ones; the bare forms are accepted as aliases.
const (
	OpEq             = "=="
	OpNe             = "!="
	OpGt             = "&gt"
	OpLt             = "&lt"
	OpGte            = "&gte"
	OpLte            = "&lte"
	OpArrayContains  = "arrayContains"
	OpObjectKey      = "objectKey"
	OpArrayObjectKey = "arrayObjectKey"

	typeDate = "Date"
)

// Condition is one entry of the dynamicConditions list. Either the leaf
// fields are set, or OrConditions carries a composite OR group.
type Condition struct {
	Field        string        `json:"field,omitempty"`
	Operator     string        `json:"operator,omitempty"`
	Value        any           `json:"value,omitempty"`
	Type         string        `json:"type,omitempty"`
	OrConditions []OrCondition `json:"orConditions,omitempty"`
}

// OrCondition is one alternative inside an OR group.
type OrCondition struct {
	Field    string `json:"field"`
	Operator string `json:"operator,omitempty"`
	Value    any    `json:"value,omitempty"`
	OrType   string `json:"orType,omitempty"`
}

// ParseConditions decodes the JSON-encoded dynamicConditions query
// parameter. An empty string yields no conditions.
func ParseConditions(raw string) ([]Condition, error) {
	if raw == "" {
		return nil, nil
	}
	var conditions []Condition
	if err := json.UnmarshalFromString(raw, &conditions); err != nil {
		return nil, fmt.Errorf("malformed dynamicConditions: %w", err)
	}
	return conditions, nil
}

// normalizeOp maps the bare comparison forms onto the canonical ones.
func normalizeOp(op string) string {
	switch op {
	case ">":
		return OpGt
	case "<":
		return OpLt
	case ">=":
		return OpGte
	case "<=":
		return OpLte
	}
	return op
}
