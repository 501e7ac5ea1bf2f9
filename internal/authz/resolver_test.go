package authz

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopcore/internal/domain"
)

func principalOf(role domain.Role, grants ...string) domain.Principal {
	return domain.Principal{
		ID:          "u1",
		Role:        role,
		Permissions: domain.NewPermissionSet(grants),
	}
}

func mustCollection(t *testing.T, name string) domain.Collection {
	t.Helper()
	col, ok := domain.ResolveCollection(name)
	require.True(t, ok, "collection %s", name)
	return col
}

func TestSuperadminBypassesEverything(t *testing.T) {
	r := NewResolver()
	super := principalOf(domain.RoleSuperAdmin)
	for _, col := range domain.Collections() {
		for _, action := range []domain.Action{domain.ActionCreate, domain.ActionRead, domain.ActionUpdate, domain.ActionDelete} {
			assert.NoError(t, r.Authorize(super, action, col), "%s %s", action, col.Name)
		}
	}
}

func TestAdminPassesGenericGate(t *testing.T) {
	r := NewResolver()
	admin := principalOf(domain.RoleAdmin)
	assert.NoError(t, r.Authorize(admin, domain.ActionCreate, mustCollection(t, domain.ColProduct)))
	assert.NoError(t, r.Authorize(admin, domain.ActionUpdate, mustCollection(t, domain.ColStock)))
}

func TestCustomerNeedsMappedPermission(t *testing.T) {
	r := NewResolver()
	product := mustCollection(t, domain.ColProduct)

	granted := principalOf(domain.RoleCustomer, "create_product")
	assert.NoError(t, r.Authorize(granted, domain.ActionCreate, product))

	ungranted := principalOf(domain.RoleCustomer, "read_product")
	err := r.Authorize(ungranted, domain.ActionCreate, product)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPermissionDenied))

	var denied *DeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, "create_product", denied.Permission.String())
}

func TestReadPermissionDoesNotImplyWrite(t *testing.T) {
	r := NewResolver()
	stock := mustCollection(t, domain.ColStock)
	reader := principalOf(domain.RoleDelivery, "read_stock")
	assert.NoError(t, r.Authorize(reader, domain.ActionRead, stock))
	assert.Error(t, r.Authorize(reader, domain.ActionUpdate, stock))
}

func TestUnmappedPairDefaultAllows(t *testing.T) {
	r := NewResolver()
	system := mustCollection(t, domain.ColSystem)
	customer := principalOf(domain.RoleCustomer)
	assert.NoError(t, r.Authorize(customer, domain.ActionRead, system))
	// Deletes carry no generic requirement for any collection.
	assert.NoError(t, r.Authorize(customer, domain.ActionDelete, mustCollection(t, domain.ColProduct)))
}

func TestReadRequirementsLeaveAuxiliaryCollectionsOpen(t *testing.T) {
	r := NewResolver()
	for _, name := range []string{
		domain.ColCart, domain.ColPurchaseHistory, domain.ColPurchaseProduct,
		domain.ColRating, domain.ColUserLog, domain.ColDeletePurchaseLog,
	} {
		_, ok := r.Requirement(domain.ActionRead, mustCollection(t, name))
		assert.False(t, ok, "read %s", name)
	}
	_, ok := r.Requirement(domain.ActionRead, mustCollection(t, domain.ColPromotion))
	assert.True(t, ok)
}

func TestUpdateRequirementsExcludePromotion(t *testing.T) {
	r := NewResolver()
	_, ok := r.Requirement(domain.ActionUpdate, mustCollection(t, domain.ColPromotion))
	assert.False(t, ok)
	_, ok = r.Requirement(domain.ActionCreate, mustCollection(t, domain.ColPromotion))
	assert.True(t, ok)
}

func TestAuthorizePermission(t *testing.T) {
	r := NewResolver()
	perm := domain.Permission{Action: domain.ActionUpdate, Resource: "delivery"}

	assert.NoError(t, r.AuthorizePermission(principalOf(domain.RoleAdmin), perm))
	assert.NoError(t, r.AuthorizePermission(principalOf(domain.RoleCustomer, "update_delivery"), perm))
	assert.Error(t, r.AuthorizePermission(principalOf(domain.RoleCustomer), perm))
}
