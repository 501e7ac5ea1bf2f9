package domain

import "strings"

// Action is a CRUD verb used in permission checks.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Permission is a structured (Action, Resource) capability. It replaces the
// ad-hoc "action_resource" string concatenation of earlier revisions so that
// a typo cannot silently create an unreachable check; the string form is
// only produced at the wire boundary.
type Permission struct {
	Action   Action
	Resource string
}

// String renders the canonical wire token, e.g. "read_product".
func (p Permission) String() string {
	return string(p.Action) + "_" + p.Resource
}

// ParsePermission parses a wire token like "update_stock" into its typed
// form. Unknown actions are rejected.
func ParsePermission(s string) (Permission, bool) {
	action, resource, found := strings.Cut(s, "_")
	if !found || resource == "" {
		return Permission{}, false
	}
	switch Action(action) {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete:
		return Permission{Action: Action(action), Resource: strings.ToLower(resource)}, true
	}
	return Permission{}, false
}

// PermissionSet is the set of capabilities granted to a principal.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from wire tokens, skipping malformed ones.
func NewPermissionSet(tokens []string) PermissionSet {
	set := make(PermissionSet, len(tokens))
	for _, t := range tokens {
		if p, ok := ParsePermission(t); ok {
			set[p] = struct{}{}
		}
	}
	return set
}

// Has reports whether the set contains the given permission.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Tokens returns the sorted-insensitive wire form of the set, for embedding
// in credentials and API responses.
func (s PermissionSet) Tokens() []string {
	tokens := make([]string, 0, len(s))
	for p := range s {
		tokens = append(tokens, p.String())
	}
	return tokens
}

// DefaultCustomerGrants is the permission list stamped onto customer users
// created through the dynamic gateway.
var DefaultCustomerGrants = []string{
	"create_favorite",
	"delete_favorite",
	"read_favorite",
	"update_stock",
	"update_product",
}

// RegisteredCustomerGrants is the wider permission list assigned to
// customers who register through the auth flow.
var RegisteredCustomerGrants = []string{
	"read_product",
	"read_category",
	"create_customerorder",
	"read_customerorder",
	"update_customerorder",
	"create_order",
	"read_order",
	"read_transaction",
	"create_transaction",
	"update_transaction",
	"update_product",
	"read_user",
	"update_user",
	"read_stock",
}
