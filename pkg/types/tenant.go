package types

import "fmt"

// TenantScope identifies the organization and deal a piece of data belongs
// to. The composite group ID it derives is attached to every node, edge and
// chunk, and every query filters on it. Queries never filter by organization
// or deal alone.
type TenantScope struct {
	OrganizationID string `json:"organization_id"`
	DealID         string `json:"deal_id"`
}

// NewTenantScope builds a scope from its two parts. Both are required.
func NewTenantScope(organizationID, dealID string) (TenantScope, error) {
	scope := TenantScope{OrganizationID: organizationID, DealID: dealID}
	if err := scope.Validate(); err != nil {
		return TenantScope{}, err
	}
	return scope, nil
}

// Validate checks that both identifiers are present.
func (s TenantScope) Validate() error {
	if s.OrganizationID == "" {
		return &ValidationError{Field: "organization_id", Reason: "must not be empty"}
	}
	if s.DealID == "" {
		return &ValidationError{Field: "deal_id", Reason: "must not be empty"}
	}
	return nil
}

// GroupID returns the composite isolation key. The same inputs always
// produce the same key; no normalization is applied, so distinct deals can
// never collapse into one scope.
func (s TenantScope) GroupID() string {
	return s.OrganizationID + "_" + s.DealID
}

// String renders the scope for log attributes. It never includes content.
func (s TenantScope) String() string {
	return fmt.Sprintf("org=%s deal=%s", s.OrganizationID, s.DealID)
}
