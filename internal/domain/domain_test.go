package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCollection(t *testing.T) {
	col, ok := ResolveCollection("Product")
	require.True(t, ok)
	assert.Equal(t, ColProduct, col.Name)
	assert.Equal(t, "product", col.Resource)

	_, ok = ResolveCollection("Widget")
	assert.False(t, ok)
	_, ok = ResolveCollection("product")
	assert.False(t, ok, "registry names are case sensitive")
}

func TestResolveCollectionAliases(t *testing.T) {
	col, ok := ResolveCollection("Rate")
	require.True(t, ok)
	assert.Equal(t, ColRating, col.Name)

	col, ok = ResolveCollection("Symbol")
	require.True(t, ok)
	assert.Equal(t, ColSymbolCurrency, col.Name)
}

func TestPermissionRoundTrip(t *testing.T) {
	p, ok := ParsePermission("create_product")
	require.True(t, ok)
	assert.Equal(t, ActionCreate, p.Action)
	assert.Equal(t, "product", p.Resource)
	assert.Equal(t, "create_product", p.String())

	_, ok = ParsePermission("fly_product")
	assert.False(t, ok)
}

func TestPermissionSet(t *testing.T) {
	set := NewPermissionSet([]string{"read_product", "create_favorite", "bogus"})
	assert.True(t, set.Has(Permission{Action: ActionRead, Resource: "product"}))
	assert.False(t, set.Has(Permission{Action: ActionUpdate, Resource: "product"}))
	assert.Len(t, set.Tokens(), 2)
}
