// Package scope carries the already-authorized caller context that every
// document operation is evaluated against.
package scope

import "context"

// Scope is the (tenant, company, actor) triple resolved by the surrounding
// application before a request reaches the processing core.
type Scope struct {
	TenantID  string
	CompanyID string
	ActorID   string

	// CompanyIDs lists every company the actor may see. Empty means the
	// actor is not restricted beyond the tenant.
	CompanyIDs []string
}

// AllowsCompany reports whether a document owned by companyID is visible.
// Tenant-wide documents (nil company) are always visible inside the tenant.
func (s Scope) AllowsCompany(companyID *string) bool {
	if companyID == nil || *companyID == "" {
		return true
	}
	if s.CompanyID != "" && s.CompanyID != *companyID {
		return false
	}
	if len(s.CompanyIDs) == 0 {
		return true
	}
	for _, id := range s.CompanyIDs {
		if id == *companyID {
			return true
		}
	}
	return false
}

// CompanyRef returns the company as a nullable column value.
func (s Scope) CompanyRef() *string {
	if s.CompanyID == "" {
		return nil
	}
	c := s.CompanyID
	return &c
}

type ctxKey struct{}

// WithScope returns a context carrying s.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext retrieves the scope stored by WithScope.
func FromContext(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(ctxKey{}).(Scope)
	return s, ok
}
