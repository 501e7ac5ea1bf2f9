// Package authz decides whether a principal may perform an action on a
// collection. The generic rule is a fixed requirement table keyed by
// (action, collection); ownership and business-rule exceptions live with
// the gateway's collection policies and are consulted before this gate.
package authz

import (
	"errors"
	"fmt"

	"shopcore/internal/domain"
)

// ErrPermissionDenied is the sentinel wrapped by every authorization
// failure.
var ErrPermissionDenied = errors.New("permission denied")

// DeniedError carries the permission the principal was missing, or a
// free-form reason for policy-level denials.
type DeniedError struct {
	Permission domain.Permission
	Reason     string
}

func (e *DeniedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("permission denied: %s", e.Reason)
	}
	return fmt.Sprintf("permission denied: requires %s", e.Permission)
}

func (e *DeniedError) Unwrap() error { return ErrPermissionDenied }

// Denied builds a denial for a missing permission.
func Denied(perm domain.Permission) error {
	return &DeniedError{Permission: perm}
}

// DeniedReason builds a denial with an explanatory message instead of a
// permission token.
func DeniedReason(format string, args ...any) error {
	return &DeniedError{Reason: fmt.Sprintf(format, args...)}
}

type requirementKey struct {
	action   domain.Action
	resource string
}

// Resolver holds the generic requirement table. Read-only after
// construction, safe for concurrent use.
type Resolver struct {
	requirements map[requirementKey]domain.Permission
}

// Collections whose create and update paths demand an explicit grant.
// Deletes carry no generic requirement; the delete path is gated only by
// collection policies.
var (
	createProtected = []string{
		domain.ColCategory, domain.ColProduct, domain.ColDiscount,
		domain.ColPromotion, domain.ColSupplier, domain.ColStock,
		domain.ColOrder, domain.ColCustomerOrder, domain.ColTransaction,
		domain.ColFavorite, domain.ColDeletePurchaseLog,
	}
	updateProtected = []string{
		domain.ColCategory, domain.ColProduct, domain.ColDiscount,
		domain.ColSupplier, domain.ColStock, domain.ColOrder,
		domain.ColCustomerOrder, domain.ColTransaction, domain.ColFavorite,
	}
	readProtected = []string{
		domain.ColUser, domain.ColCategory, domain.ColProduct,
		domain.ColDiscount, domain.ColSupplier, domain.ColStock,
		domain.ColOrder, domain.ColCustomerOrder, domain.ColTransaction,
		domain.ColFavorite, domain.ColCustomerFeedback, domain.ColPromotion,
	}
)

// NewResolver builds the requirement table from the protected sets.
func NewResolver() *Resolver {
	r := &Resolver{requirements: make(map[requirementKey]domain.Permission)}
	add := func(action domain.Action, names []string) {
		for _, name := range names {
			col, ok := domain.ResolveCollection(name)
			if !ok {
				panic(fmt.Sprintf("authz: unknown collection %q in protected set", name))
			}
			r.requirements[requirementKey{action, col.Resource}] = domain.Permission{
				Action:   action,
				Resource: col.Resource,
			}
		}
	}
	add(domain.ActionCreate, createProtected)
	add(domain.ActionUpdate, updateProtected)
	add(domain.ActionRead, readProtected)
	return r
}

// Requirement reports the permission the generic gate demands for an
// action on a collection, if any.
func (r *Resolver) Requirement(action domain.Action, col domain.Collection) (domain.Permission, bool) {
	perm, ok := r.requirements[requirementKey{action, col.Resource}]
	return perm, ok
}

// Authorize applies the generic gate: superadmin always passes, an
// unmapped (action, collection) pair default-allows, and otherwise the
// principal must be an admin or hold the mapped permission. Ownership
// exceptions are not its concern; callers run collection policies first.
func (r *Resolver) Authorize(p domain.Principal, action domain.Action, col domain.Collection) error {
	if p.Role == domain.RoleSuperAdmin {
		return nil
	}
	perm, ok := r.Requirement(action, col)
	if !ok {
		return nil
	}
	if p.Role == domain.RoleAdmin {
		return nil
	}
	if p.Permissions.Has(perm) {
		return nil
	}
	return Denied(perm)
}

// AuthorizePermission gates on one explicit permission instead of the
// table, with the same superadmin and admin bypasses. Used where the
// required token is derived from the target document rather than the
// collection, such as role-scoped user updates.
func (r *Resolver) AuthorizePermission(p domain.Principal, perm domain.Permission) error {
	if p.Role == domain.RoleSuperAdmin || p.Role == domain.RoleAdmin {
		return nil
	}
	if p.Permissions.Has(perm) {
		return nil
	}
	return Denied(perm)
}
