package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTenantScopeGroupID(t *testing.T) {
	t.Parallel()

	scope, err := NewTenantScope("org-123", "deal-456")
	require.NoError(t, err)
	assert.Equal(t, "org-123_deal-456", scope.GroupID())

	// Referential transparency: same inputs, same key.
	again, err := NewTenantScope("org-123", "deal-456")
	require.NoError(t, err)
	assert.Equal(t, scope.GroupID(), again.GroupID())
}

func TestTenantScopeDistinctDealsStayDistinct(t *testing.T) {
	t.Parallel()

	a, err := NewTenantScope("org-1", "Deal-A")
	require.NoError(t, err)
	b, err := NewTenantScope("org-1", "deal-a")
	require.NoError(t, err)

	// No normalization may collapse two deals into one scope.
	assert.NotEqual(t, a.GroupID(), b.GroupID())
}

func TestTenantScopeValidation(t *testing.T) {
	t.Parallel()

	_, err := NewTenantScope("", "deal-1")
	assert.True(t, IsValidationError(err))

	_, err = NewTenantScope("org-1", "")
	assert.True(t, IsValidationError(err))
}

func TestTenantScopeStringOmitsNothingSensitive(t *testing.T) {
	t.Parallel()

	scope := TenantScope{OrganizationID: "org-9", DealID: "deal-9"}
	assert.Equal(t, "org=org-9 deal=deal-9", scope.String())
}
