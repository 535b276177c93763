package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/schoolhub/schoolhub/internal/authz"
)

type stubDecider struct {
	decision authz.ScopeDecision
	err      error
	queries  []authz.ResourceQuery
}

func (d *stubDecider) Decide(_ context.Context, _ authz.Principal, _ authz.Verb, q authz.ResourceQuery) (authz.ScopeDecision, error) {
	d.queries = append(d.queries, q)
	return d.decision, d.err
}

type stubStore struct {
	users   []User
	total   int
	seenVis []authz.Visibility
}

func (s *stubStore) List(_ context.Context, vis authz.Visibility, _ ListFilters, _, _ int) ([]User, error) {
	s.seenVis = append(s.seenVis, vis)
	return s.users, nil
}

func (s *stubStore) Count(_ context.Context, vis authz.Visibility, _ ListFilters) (int, error) {
	s.seenVis = append(s.seenVis, vis)
	return s.total, nil
}

func TestListDeniedRole(t *testing.T) {
	decider := &stubDecider{decision: authz.ScopeDecision{
		Allowed: false,
		Visible: authz.VisibleNone(),
		Reason:  authz.ReasonRoleNotPermitted,
	}}
	store := &stubStore{}
	svc := NewService(store, decider)

	_, err := svc.List(context.Background(), authz.Principal{ActiveRole: authz.RoleTeacher}, ListFilters{})
	require.ErrorIs(t, err, authz.ErrRoleNotPermitted)
	require.Empty(t, store.seenVis, "denied request must not reach the store")
}

func TestListAppliesDecisionFilter(t *testing.T) {
	vis := authz.VisibleIDs(authz.ScopeFieldSchool, []int64{5})
	decider := &stubDecider{decision: authz.ScopeDecision{Allowed: true, Visible: vis}}
	store := &stubStore{
		users: []User{{ID: 1, FullName: "Ada Lovelace"}},
		total: 1,
	}
	svc := NewService(store, decider)

	res, err := svc.List(context.Background(), authz.Principal{ActiveRole: authz.RoleSchoolAdmin}, ListFilters{})
	require.NoError(t, err)
	require.Len(t, res.Users, 1)
	require.Equal(t, 1, res.Pagination.Total)
	require.Len(t, decider.queries, 1)
	require.Equal(t, authz.ResourceUsers, decider.queries[0].Resource)
	for _, seen := range store.seenVis {
		require.Equal(t, vis, seen, "the store must receive the decision filter unchanged")
	}
}

func TestListClampsPagination(t *testing.T) {
	decider := &stubDecider{decision: authz.ScopeDecision{Allowed: true, Visible: authz.VisibleAll()}}
	store := &stubStore{}
	svc := NewService(store, decider)

	res, err := svc.List(context.Background(), authz.Principal{ActiveRole: authz.RoleSuperAdmin}, ListFilters{Page: -2, PerPage: 5000})
	require.NoError(t, err)
	require.Equal(t, 1, res.Pagination.Page)
	require.Equal(t, 20, res.Pagination.PerPage)
}

func TestDisplayNameNormalisesImportedCasing(t *testing.T) {
	decider := &stubDecider{decision: authz.ScopeDecision{Allowed: true, Visible: authz.VisibleAll()}}
	store := &stubStore{users: []User{
		{ID: 1, FullName: "GRACE HOPPER"},
		{ID: 2, FullName: "alan turing"},
		{ID: 3, FullName: "Edsger Dijkstra"},
	}, total: 3}
	svc := NewService(store, decider)

	res, err := svc.List(context.Background(), authz.Principal{ActiveRole: authz.RoleSuperAdmin}, ListFilters{})
	require.NoError(t, err)
	require.Equal(t, "Grace Hopper", res.Users[0].DisplayName)
	require.Equal(t, "Alan Turing", res.Users[1].DisplayName)
	require.Equal(t, "Edsger Dijkstra", res.Users[2].DisplayName)
}
