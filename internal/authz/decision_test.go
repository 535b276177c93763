package authz

import (
	"context"
	"testing"
)

func newDecisionService(links DerivationSource) *Service {
	return NewService(&stubStore{}, NewScopeResolver(links), &stubAudit{}, testLogger())
}

func TestDecideShortCircuitsOnCatalog(t *testing.T) {
	links := &stubLinks{studentClasses: map[int64][]int64{9: {3}}}
	svc := newDecisionService(links)
	p := Principal{UserID: 9, ActiveRole: RoleStudent}

	dec, err := svc.Decide(context.Background(), p, VerbCreate, ResourceQuery{Resource: ResourceSchools})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if dec.Allowed {
		t.Fatal("student creating schools must be denied")
	}
	if dec.Reason != ReasonRoleNotPermitted {
		t.Fatalf("expected role_not_permitted, got %s", dec.Reason)
	}
	if links.calls != 0 {
		t.Fatalf("catalog denial must not touch scope derivation, got %d calls", links.calls)
	}
}

func TestDecideTeacherScheduleList(t *testing.T) {
	links := &stubLinks{teacherClasses: []int64{10, 12}}
	svc := newDecisionService(links)
	p := Principal{UserID: 42, ActiveRole: RoleTeacher}

	dec, err := svc.Decide(context.Background(), p, VerbList, ResourceQuery{Resource: ResourceSchedules})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !dec.Allowed {
		t.Fatalf("expected allowed, got reason %s", dec.Reason)
	}
	if dec.Visible.Field != ScopeFieldClass {
		t.Fatalf("expected class filter, got %s", dec.Visible.Field)
	}
	if len(dec.Visible.IDs) != 2 || !dec.Visible.Contains(10) || !dec.Visible.Contains(12) {
		t.Fatalf("expected classes {10, 12}, got %v", dec.Visible.IDs)
	}
}

func TestDecideStudentScheduleOutOfScope(t *testing.T) {
	links := &stubLinks{studentClasses: map[int64][]int64{9: {3}}}
	svc := newDecisionService(links)
	p := Principal{UserID: 9, ActiveRole: RoleStudent}

	dec, err := svc.Decide(context.Background(), p, VerbView, ResourceQuery{
		Resource:    ResourceSchedules,
		RequestedID: ptr(77),
		ClassID:     ptr(8),
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if dec.Allowed {
		t.Fatal("schedule of a foreign class must be denied")
	}
	if dec.Reason != ReasonOutOfScope {
		t.Fatalf("expected out_of_scope, got %s", dec.Reason)
	}
}

func TestDecideStudentScheduleInScope(t *testing.T) {
	links := &stubLinks{studentClasses: map[int64][]int64{9: {3}}}
	svc := newDecisionService(links)
	p := Principal{UserID: 9, ActiveRole: RoleStudent}

	dec, err := svc.Decide(context.Background(), p, VerbView, ResourceQuery{
		Resource:    ResourceSchedules,
		RequestedID: ptr(77),
		ClassID:     ptr(3),
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !dec.Allowed {
		t.Fatalf("enrolled class must be visible, got reason %s", dec.Reason)
	}
}

func TestDecideMissingScopeAttributeFailsClosed(t *testing.T) {
	links := &stubLinks{studentClasses: map[int64][]int64{9: {3}}}
	svc := newDecisionService(links)
	p := Principal{UserID: 9, ActiveRole: RoleStudent}

	// The filter constrains class_id but the query cannot supply it.
	dec, err := svc.Decide(context.Background(), p, VerbView, ResourceQuery{
		Resource:    ResourceSchedules,
		RequestedID: ptr(77),
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if dec.Allowed {
		t.Fatal("query without the constrained attribute must fail closed")
	}
	if dec.Reason != ReasonOutOfScope {
		t.Fatalf("expected out_of_scope, got %s", dec.Reason)
	}
}

func TestDecideSuperAdminUnrestricted(t *testing.T) {
	svc := newDecisionService(&stubLinks{})
	p := Principal{UserID: 1, ActiveRole: RoleSuperAdmin}

	dec, err := svc.Decide(context.Background(), p, VerbDelete, ResourceQuery{
		Resource:    ResourceSchools,
		RequestedID: ptr(999),
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !dec.Allowed || dec.Visible.Kind != VisibilityAll {
		t.Fatalf("expected unrestricted access, got %+v", dec)
	}
}
