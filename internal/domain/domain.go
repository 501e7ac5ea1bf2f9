// Package domain centralizes the fixed vocabulary of the system: roles,
// actions, typed permissions and the closed collection registry. Everything
// here is read-only after startup.
package domain

// Document field names shared across collections.
const (
	FieldID        = "_id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
	FieldCreatedBy = "createdBy"
	FieldUserID    = "userId"
	FieldProductID = "productId"
)

// Order lifecycle statuses. Transitions stamp the matching timestamp
// field onto the document.
const (
	OrderStatusPending    = "pending"
	OrderStatusConfirmed  = "confirmed"
	OrderStatusRejected   = "rejected"
	OrderStatusDelivering = "delivering"
	OrderStatusGotProduct = "got_product"
	OrderStatusCompleted  = "completed"
)

// Role is the fixed set of authenticated actor roles.
type Role string

const (
	RoleSuperAdmin Role = "superadmin"
	RoleAdmin      Role = "admin"
	RoleDelivery   Role = "delivery"
	RoleCustomer   Role = "customer"
)

// AllRoles lists every known role.
var AllRoles = []Role{RoleSuperAdmin, RoleAdmin, RoleDelivery, RoleCustomer}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleDelivery, RoleCustomer:
		return true
	}
	return false
}

// Principal is the authenticated actor resolved once per request from a
// signed credential. The core never persists it.
type Principal struct {
	ID          string
	Role        Role
	Permissions PermissionSet
}

// IsCustomer is a convenience for the ownership-scoped rules.
func (p *Principal) IsCustomer() bool { return p.Role == RoleCustomer }
