package authz

import "context"

// Decide answers whether the principal's active role may perform verb on
// the queried resource and which visibility filter applies.
//
// The catalog check runs first and short-circuits: scope resolution is
// wasted work for a forbidden action and may touch collaborator stores.
// When the query names a specific id that falls outside the visible set
// the decision is OutOfScope, so single-resource fetches deny like a
// missing row while collection queries deny as an empty list.
func (s *Service) Decide(ctx context.Context, p Principal, verb Verb, q ResourceQuery) (ScopeDecision, error) {
	if !ActionPermitted(p.ActiveRole, q.Resource, verb) {
		return denied(ReasonRoleNotPermitted), nil
	}

	dec, err := s.scopes.ResolveScope(ctx, p, q)
	if err != nil {
		return ScopeDecision{}, err
	}
	if !dec.Allowed {
		return dec, nil
	}

	if q.RequestedID != nil && !requestedInScope(dec.Visible, q) {
		return denied(ReasonOutOfScope), nil
	}
	return dec, nil
}

// requestedInScope checks the query attribute matching the filter field
// against the visible id set. A query that cannot supply the attribute the
// filter constrains fails closed.
func requestedInScope(v Visibility, q ResourceQuery) bool {
	switch v.Kind {
	case VisibilityAll:
		return true
	case VisibilityNone:
		return false
	}
	var candidate *int64
	switch v.Field {
	case ScopeFieldID:
		candidate = q.RequestedID
	case ScopeFieldClass:
		candidate = q.ClassID
	case ScopeFieldSchool:
		candidate = q.SchoolID
	}
	if candidate == nil {
		return false
	}
	return v.Contains(*candidate)
}
