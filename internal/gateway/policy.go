package gateway

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"shopcore/internal/authz"
	"shopcore/internal/domain"
	"shopcore/internal/query"
)

// Verdict is a policy's decision about the generic permission gate.
type Verdict int

const (
	// VerdictContinue defers to the next policy, then the generic gate.
	VerdictContinue Verdict = iota
	// VerdictAllow skips the generic gate; the operation proceeds.
	VerdictAllow
)

// InsertOp, UpdateOp, DeleteOp and ListOp carry one operation through
// the policy chain. Policies may rewrite Fields in place.
type InsertOp struct {
	Gateway   *Gateway
	Principal domain.Principal
	Col       domain.Collection
	Fields    map[string]any
}

type UpdateOp struct {
	Gateway   *Gateway
	Principal domain.Principal
	Col       domain.Collection
	ID        string
	Target    map[string]any
	Fields    map[string]any
}

type DeleteOp struct {
	Gateway   *Gateway
	Principal domain.Principal
	Col       domain.Collection
	ID        string
}

type ListOp struct {
	Gateway   *Gateway
	Principal domain.Principal
	Col       domain.Collection
	Filter    query.Filter
}

// Policy is one link of the ordered chain consulted before the generic
// permission gate. Each collection's special cases live in its own
// policy, so they stay enumerable and testable in isolation.
//
// PreInsert may finish the operation itself by returning a non-nil
// document; the gateway then returns it without persisting or notifying.
// PreDelete and PreList report handled=true when the policy carried out
// the whole operation.
type Policy interface {
	Match(col domain.Collection) bool
	PreInsert(op *InsertOp) (Verdict, map[string]any, error)
	PreUpdate(op *UpdateOp) (Verdict, error)
	PreDelete(op *DeleteOp) (bool, error)
	PreList(op *ListOp) (Verdict, []map[string]any, bool, error)
}

// basePolicy supplies pass-through defaults so concrete policies only
// implement the hooks they care about.
type basePolicy struct{}

func (basePolicy) PreInsert(*InsertOp) (Verdict, map[string]any, error) {
	return VerdictContinue, nil, nil
}
func (basePolicy) PreUpdate(*UpdateOp) (Verdict, error)  { return VerdictContinue, nil }
func (basePolicy) PreDelete(*DeleteOp) (bool, error)     { return false, nil }
func (basePolicy) PreList(*ListOp) (Verdict, []map[string]any, bool, error) {
	return VerdictContinue, nil, false, nil
}

// defaultPolicies returns the chain in evaluation order.
func defaultPolicies() []Policy {
	return []Policy{
		userPolicy{},
		favoritePolicy{},
		cartPolicy{},
		orderPolicy{},
		customerOrderPolicy{},
		productPolicy{},
		promotionPolicy{},
		currencyPolicy{},
	}
}

// HashPassword hashes a plaintext password for storage.
func HashPassword(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

func hashPasswordField(fields map[string]any) error {
	plain, ok := fields["password"].(string)
	if !ok || plain == "" {
		return nil
	}
	hashed, err := HashPassword(plain)
	if err != nil {
		return err
	}
	fields["password"] = hashed
	return nil
}

// userPolicy covers the User collection: defaulted role and grants on
// insert, self-service updates, role-scoped updates of other users, and
// explicit self-reads for customers.
type userPolicy struct{ basePolicy }

func (userPolicy) Match(col domain.Collection) bool { return col.Name == domain.ColUser }

func (userPolicy) PreInsert(op *InsertOp) (Verdict, map[string]any, error) {
	role, _ := op.Fields["role"].(string)
	if role == "" || domain.Role(role) == domain.RoleCustomer {
		op.Fields["role"] = string(domain.RoleCustomer)
		op.Fields["permissions"] = domain.DefaultCustomerGrants
	}
	if err := hashPasswordField(op.Fields); err != nil {
		return VerdictContinue, nil, err
	}
	return VerdictContinue, nil, nil
}

func (userPolicy) PreUpdate(op *UpdateOp) (Verdict, error) {
	if op.Principal.IsCustomer() && op.ID == op.Principal.ID {
		if err := hashPasswordField(op.Fields); err != nil {
			return VerdictContinue, err
		}
		return VerdictAllow, nil
	}
	// Updating another user demands a permission scoped to the target's
	// role, not to the collection.
	targetRole, _ := op.Target["role"].(string)
	perm := domain.Permission{Action: domain.ActionUpdate, Resource: targetRole}
	if err := op.Gateway.resolver.AuthorizePermission(op.Principal, perm); err != nil {
		return VerdictContinue, err
	}
	if err := hashPasswordField(op.Fields); err != nil {
		return VerdictContinue, err
	}
	return VerdictAllow, nil
}

func (userPolicy) PreList(op *ListOp) (Verdict, []map[string]any, bool, error) {
	if !op.Principal.IsCustomer() {
		return VerdictContinue, nil, false, nil
	}
	// A customer may read their own user document when the conditions
	// pin _id to their identity.
	clause, ok := op.Filter.Fields[domain.FieldID]
	if ok && clause.Kind == query.KindEq && clause.Value == op.Principal.ID {
		return VerdictAllow, nil, false, nil
	}
	return VerdictContinue, nil, false, nil
}

// favoritePolicy scopes Favorite rows to their owning customer and
// rejects duplicate (userId, productId) pairs.
type favoritePolicy struct{ basePolicy }

func (favoritePolicy) Match(col domain.Collection) bool { return col.Name == domain.ColFavorite }

func (favoritePolicy) PreInsert(op *InsertOp) (Verdict, map[string]any, error) {
	if !op.Principal.IsCustomer() {
		return VerdictContinue, nil, nil
	}
	op.Fields[domain.FieldUserID] = op.Principal.ID
	op.Fields[domain.FieldCreatedBy] = op.Principal.ID
	productID, _ := op.Fields[domain.FieldProductID].(string)
	for _, existing := range op.Gateway.findByField(domain.ColFavorite, domain.FieldUserID, op.Principal.ID) {
		if existing[domain.FieldProductID] == productID {
			return VerdictContinue, nil, fmt.Errorf("%w: product %s", ErrDuplicateFavorite, productID)
		}
	}
	return VerdictAllow, nil, nil
}

func (favoritePolicy) PreDelete(op *DeleteOp) (bool, error) {
	if !op.Principal.IsCustomer() {
		return false, nil
	}
	doc, ok := op.Gateway.getDoc(domain.ColFavorite, op.ID)
	if !ok || doc[domain.FieldUserID] != op.Principal.ID {
		return true, fmt.Errorf("%w: favorite %s", ErrNotFound, op.ID)
	}
	// Deliberately narrower side effects than other deletes: the row is
	// removed and acknowledged without a change event.
	col := op.Gateway.manager.Collection(domain.ColFavorite)
	col.Delete(op.ID)
	op.Gateway.manager.EnqueueSave(domain.ColFavorite, col)
	return true, nil
}

func (favoritePolicy) PreList(op *ListOp) (Verdict, []map[string]any, bool, error) {
	if !op.Principal.IsCustomer() {
		return VerdictContinue, nil, false, nil
	}
	docs := op.Gateway.findByField(domain.ColFavorite, domain.FieldUserID, op.Principal.ID)
	op.Gateway.populate(op.Col, docs, []string{domain.FieldProductID})
	return VerdictAllow, docs, true, nil
}

// cartPolicy merges repeat (userId, productId) inserts into the existing
// row's quantity and scopes reads to the owner.
type cartPolicy struct{ basePolicy }

func (cartPolicy) Match(col domain.Collection) bool { return col.Name == domain.ColCart }

func (cartPolicy) PreInsert(op *InsertOp) (Verdict, map[string]any, error) {
	if !op.Principal.IsCustomer() {
		return VerdictContinue, nil, nil
	}
	op.Fields[domain.FieldUserID] = op.Principal.ID
	op.Fields[domain.FieldCreatedBy] = op.Principal.ID
	productID, _ := op.Fields[domain.FieldProductID].(string)
	submitted := quantityOf(op.Fields["quantity"])

	for _, existing := range op.Gateway.findByField(domain.ColCart, domain.FieldUserID, op.Principal.ID) {
		if existing[domain.FieldProductID] != productID {
			continue
		}
		existing["quantity"] = quantityOf(existing["quantity"]) + submitted
		existing[domain.FieldUpdatedAt] = op.Gateway.timestamp()
		id, _ := existing[domain.FieldID].(string)
		if err := op.Gateway.putDoc(domain.ColCart, id, existing); err != nil {
			return VerdictContinue, nil, err
		}
		return VerdictAllow, existing, nil
	}
	return VerdictAllow, nil, nil
}

func (cartPolicy) PreList(op *ListOp) (Verdict, []map[string]any, bool, error) {
	if !op.Principal.IsCustomer() {
		return VerdictContinue, nil, false, nil
	}
	docs := op.Gateway.findByField(domain.ColCart, domain.FieldUserID, op.Principal.ID)
	return VerdictAllow, docs, true, nil
}

func quantityOf(v any) float64 {
	switch q := v.(type) {
	case float64:
		return q
	case int:
		return float64(q)
	}
	return 1
}

// orderPolicy forces ownership on customer-created orders, restricts a
// customer's updates to the got_product transition on their own order,
// and scopes customer reads.
type orderPolicy struct{ basePolicy }

func (orderPolicy) Match(col domain.Collection) bool { return col.Name == domain.ColOrder }

func (orderPolicy) PreInsert(op *InsertOp) (Verdict, map[string]any, error) {
	if _, ok := op.Fields["status"]; !ok {
		op.Fields["status"] = domain.OrderStatusPending
	}
	op.Fields["orderPlacedAt"] = op.Gateway.timestamp()
	if !op.Principal.IsCustomer() {
		return VerdictContinue, nil, nil
	}
	op.Fields[domain.FieldUserID] = op.Principal.ID
	op.Fields[domain.FieldCreatedBy] = op.Principal.ID
	return VerdictAllow, nil, nil
}

func (orderPolicy) PreUpdate(op *UpdateOp) (Verdict, error) {
	if !op.Principal.IsCustomer() {
		return VerdictContinue, nil
	}
	if op.Target[domain.FieldUserID] != op.Principal.ID {
		return VerdictContinue, authz.DeniedReason("not your order")
	}
	// Extra payload fields ride along with the transition, but the
	// owner cannot be reassigned.
	status, _ := op.Fields["status"].(string)
	if status != domain.OrderStatusGotProduct {
		return VerdictContinue, authz.DeniedReason("customers may only mark an order as received")
	}
	if _, ok := op.Fields[domain.FieldUserID]; ok {
		return VerdictContinue, authz.DeniedReason("order owner cannot change")
	}
	return VerdictAllow, nil
}

func (orderPolicy) PreList(op *ListOp) (Verdict, []map[string]any, bool, error) {
	if !op.Principal.IsCustomer() {
		return VerdictContinue, nil, false, nil
	}
	docs := op.Gateway.findByField(domain.ColOrder, domain.FieldUserID, op.Principal.ID)
	return VerdictAllow, docs, true, nil
}

// customerOrderPolicy forces ownership on customer-created rows.
type customerOrderPolicy struct{ basePolicy }

func (customerOrderPolicy) Match(col domain.Collection) bool {
	return col.Name == domain.ColCustomerOrder
}

func (customerOrderPolicy) PreInsert(op *InsertOp) (Verdict, map[string]any, error) {
	if !op.Principal.IsCustomer() {
		return VerdictContinue, nil, nil
	}
	op.Fields[domain.FieldUserID] = op.Principal.ID
	op.Fields[domain.FieldCreatedBy] = op.Principal.ID
	return VerdictAllow, nil, nil
}

// productPolicy allows customers a stock-only update during checkout and
// opens product reads to them.
type productPolicy struct{ basePolicy }

const maxStockUpdateFields = 3

func (productPolicy) Match(col domain.Collection) bool { return col.Name == domain.ColProduct }

func (productPolicy) PreUpdate(op *UpdateOp) (Verdict, error) {
	if !op.Principal.IsCustomer() {
		return VerdictContinue, nil
	}
	_, hasStock := op.Fields["totalStock"]
	if hasStock && len(op.Fields) <= maxStockUpdateFields {
		return VerdictAllow, nil
	}
	return VerdictContinue, authz.DeniedReason("product updates are limited to stock adjustments")
}

func (productPolicy) PreList(op *ListOp) (Verdict, []map[string]any, bool, error) {
	if !op.Principal.IsCustomer() {
		return VerdictContinue, nil, false, nil
	}
	// Public catalog read for customers. The caller's conditions still
	// apply; only the permission gate is skipped.
	return VerdictAllow, op.Gateway.filterDocs(domain.ColProduct, op.Filter), true, nil
}

// promotionPolicy makes promotions world-readable to authenticated roles.
type promotionPolicy struct{ basePolicy }

func (promotionPolicy) Match(col domain.Collection) bool { return col.Name == domain.ColPromotion }

func (promotionPolicy) PreList(op *ListOp) (Verdict, []map[string]any, bool, error) {
	return VerdictAllow, nil, false, nil
}

// currencyPolicy restricts currency table writes to administrators
// regardless of granted permissions.
type currencyPolicy struct{ basePolicy }

func (currencyPolicy) Match(col domain.Collection) bool {
	return col.Name == domain.ColCurrency || col.Name == domain.ColSymbolCurrency
}

func (currencyPolicy) PreInsert(op *InsertOp) (Verdict, map[string]any, error) {
	switch op.Principal.Role {
	case domain.RoleAdmin, domain.RoleSuperAdmin:
		return VerdictAllow, nil, nil
	}
	return VerdictContinue, nil, authz.DeniedReason("currency management requires an administrator")
}
