package authz

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/schoolhub/schoolhub/internal/shared"
)

type stubStore struct {
	state    UserRoleState
	stateErr error
	grants   []RoleGrant

	saves      int
	switches   []shared.AuditLog
	switchErr  error
	inserted   []RoleGrant
	insertErr  error
	deleteHit  bool
	deletedIDs []int64
}

func (s *stubStore) UserRole(_ context.Context, _ int64) (UserRoleState, error) {
	return s.state, s.stateErr
}

func (s *stubStore) Grants(_ context.Context, _ int64) ([]RoleGrant, error) {
	return s.grants, nil
}

func (s *stubStore) InsertGrant(_ context.Context, grant RoleGrant) (RoleGrant, error) {
	if s.insertErr != nil {
		return RoleGrant{}, s.insertErr
	}
	grant.ID = int64(len(s.inserted) + 1)
	s.inserted = append(s.inserted, grant)
	return grant, nil
}

func (s *stubStore) DeleteGrant(_ context.Context, _, grantID int64) (bool, error) {
	s.deletedIDs = append(s.deletedIDs, grantID)
	return s.deleteHit, nil
}

func (s *stubStore) SaveActiveRole(_ context.Context, _ int64, role Role, schoolID, classID *int64) error {
	s.saves++
	s.state.ActiveRole = role
	s.state.ActiveSchoolID = schoolID
	s.state.ActiveClassID = classID
	return nil
}

func (s *stubStore) SwitchActiveRole(_ context.Context, _ int64, role Role, schoolID, classID *int64, log shared.AuditLog) error {
	if s.switchErr != nil {
		return s.switchErr
	}
	s.state.ActiveRole = role
	s.state.ActiveSchoolID = schoolID
	s.state.ActiveClassID = classID
	s.switches = append(s.switches, log)
	return nil
}

type stubAudit struct {
	logs []shared.AuditLog
	err  error
}

func (a *stubAudit) Record(_ context.Context, log shared.AuditLog) error {
	if a.err != nil {
		return a.err
	}
	a.logs = append(a.logs, log)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr(v int64) *int64 { return &v }

func TestResolvePrincipalNoRoleAvailable(t *testing.T) {
	store := &stubStore{}
	svc := NewService(store, nil, &stubAudit{}, testLogger())

	_, err := svc.ResolvePrincipal(context.Background(), 7)
	if !errors.Is(err, ErrNoRoleAvailable) {
		t.Fatalf("expected ErrNoRoleAvailable, got %v", err)
	}
}

func TestResolvePrincipalKeepsStoredActiveWithScope(t *testing.T) {
	grant := RoleGrant{ID: 1, UserID: 7, Role: RoleClassTeacher, SchoolID: ptr(1), ClassID: ptr(10)}
	store := &stubStore{
		state: UserRoleState{
			PrimaryRole:     RoleTeacher,
			PrimarySchoolID: ptr(1),
			ActiveRole:      RoleClassTeacher,
			ActiveSchoolID:  ptr(1),
			ActiveClassID:   ptr(10),
		},
		grants: []RoleGrant{grant},
	}
	audit := &stubAudit{}
	svc := NewService(store, nil, audit, testLogger())

	p, err := svc.ResolvePrincipal(context.Background(), 7)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.ActiveRole != RoleClassTeacher {
		t.Fatalf("expected active class_teacher, got %s", p.ActiveRole)
	}
	if p.ActiveSchoolID == nil || *p.ActiveSchoolID != 1 {
		t.Fatalf("expected active school 1, got %v", p.ActiveSchoolID)
	}
	if p.ActiveClassID == nil || *p.ActiveClassID != 10 {
		t.Fatalf("expected active class 10, got %v", p.ActiveClassID)
	}
	if store.saves != 0 {
		t.Fatalf("valid stored active must not be rewritten, got %d saves", store.saves)
	}
	if len(audit.logs) != 0 {
		t.Fatalf("no repair audit expected, got %d", len(audit.logs))
	}
}

func TestResolvePrincipalRepairsStaleActiveOnce(t *testing.T) {
	store := &stubStore{
		state: UserRoleState{
			PrimaryRole:     RoleTeacher,
			PrimarySchoolID: ptr(1),
			ActiveRole:      RoleClassTeacher,
			ActiveSchoolID:  ptr(1),
			ActiveClassID:   ptr(10),
		},
		// The class_teacher grant has been revoked.
		grants: nil,
	}
	audit := &stubAudit{}
	svc := NewService(store, nil, audit, testLogger())

	p, err := svc.ResolvePrincipal(context.Background(), 7)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.ActiveRole != RoleTeacher {
		t.Fatalf("expected repair to primary teacher, got %s", p.ActiveRole)
	}
	if p.ActiveClassID != nil {
		t.Fatalf("repaired active must drop the class scope, got %v", p.ActiveClassID)
	}
	if store.saves != 1 {
		t.Fatalf("expected one persisted repair, got %d", store.saves)
	}
	if len(audit.logs) != 1 || audit.logs[0].Action != "active_role_repaired" {
		t.Fatalf("expected one active_role_repaired entry, got %+v", audit.logs)
	}

	// Resolving again finds the stored value already correct.
	again, err := svc.ResolvePrincipal(context.Background(), 7)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if again.ActiveRole != RoleTeacher {
		t.Fatalf("expected teacher, got %s", again.ActiveRole)
	}
	if store.saves != 1 {
		t.Fatalf("repair must be idempotent, got %d saves", store.saves)
	}
	if len(audit.logs) != 1 {
		t.Fatalf("repair audit must fire once, got %d", len(audit.logs))
	}
}

func TestResolvePrincipalFallsBackToFirstGrant(t *testing.T) {
	grants := []RoleGrant{
		{ID: 3, UserID: 7, Role: RoleSchoolAdmin, SchoolID: ptr(2)},
		{ID: 5, UserID: 7, Role: RoleParent},
	}
	store := &stubStore{state: UserRoleState{}, grants: grants}
	audit := &stubAudit{}
	svc := NewService(store, nil, audit, testLogger())

	p, err := svc.ResolvePrincipal(context.Background(), 7)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.ActiveRole != RoleSchoolAdmin {
		t.Fatalf("expected first grant in insertion order, got %s", p.ActiveRole)
	}
	if p.ActiveSchoolID == nil || *p.ActiveSchoolID != 2 {
		t.Fatalf("expected grant scope to travel, got %v", p.ActiveSchoolID)
	}
	if store.saves != 1 {
		t.Fatalf("expected the fallback to persist, got %d saves", store.saves)
	}
	// The stored active was empty, so no repair event is worth logging.
	if len(audit.logs) != 0 {
		t.Fatalf("no repair audit for empty stored active, got %+v", audit.logs)
	}
}

func TestResolvePrincipalActiveRoleAlwaysHeld(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	roles := AllRoles()
	for i := 0; i < 250; i++ {
		var state UserRoleState
		if rng.Intn(4) > 0 {
			state.PrimaryRole = roles[rng.Intn(len(roles))]
			if RequiresScope(state.PrimaryRole) != ScopeRequirementNone {
				state.PrimarySchoolID = ptr(int64(rng.Intn(3) + 1))
			}
		}
		var grants []RoleGrant
		for j := 0; j < rng.Intn(4); j++ {
			role := roles[rng.Intn(len(roles))]
			g := RoleGrant{ID: int64(j + 1), UserID: 7, Role: role}
			switch RequiresScope(role) {
			case ScopeRequirementSchool:
				g.SchoolID = ptr(int64(rng.Intn(3) + 1))
			case ScopeRequirementSchoolClass:
				g.SchoolID = ptr(int64(rng.Intn(3) + 1))
				g.ClassID = ptr(int64(rng.Intn(5) + 1))
			}
			grants = append(grants, g)
		}
		if rng.Intn(2) == 0 {
			state.ActiveRole = roles[rng.Intn(len(roles))]
			if rng.Intn(2) == 0 {
				state.ActiveSchoolID = ptr(int64(rng.Intn(3) + 1))
			}
		}

		store := &stubStore{state: state, grants: grants}
		svc := NewService(store, nil, &stubAudit{}, testLogger())
		p, err := svc.ResolvePrincipal(context.Background(), 7)
		if err != nil {
			if errors.Is(err, ErrNoRoleAvailable) && state.PrimaryRole == "" && len(grants) == 0 {
				continue
			}
			t.Fatalf("case %d: %v", i, err)
		}
		if !p.HoldsRole(p.ActiveRole) {
			t.Fatalf("case %d: active role %s is neither primary %q nor granted %v",
				i, p.ActiveRole, p.PrimaryRole, grants)
		}
	}
}

func TestSwitchActiveRoleToGrant(t *testing.T) {
	grant := RoleGrant{ID: 1, UserID: 7, Role: RoleClassTeacher, SchoolID: ptr(1), ClassID: ptr(10)}
	store := &stubStore{}
	svc := NewService(store, nil, &stubAudit{}, testLogger())
	p := Principal{
		UserID:      7,
		PrimaryRole: RoleTeacher,
		Grants:      []RoleGrant{grant},
		ActiveRole:  RoleTeacher,
	}

	next, err := svc.SwitchActiveRole(context.Background(), p, RoleClassTeacher, ptr(1), ptr(10))
	if err != nil {
		t.Fatalf("switch: %v", err)
	}
	if next.ActiveRole != RoleClassTeacher {
		t.Fatalf("expected class_teacher, got %s", next.ActiveRole)
	}
	if next.ActiveClassID == nil || *next.ActiveClassID != 10 {
		t.Fatalf("expected class 10, got %v", next.ActiveClassID)
	}
	if p.ActiveRole != RoleTeacher {
		t.Fatal("input principal must not be mutated")
	}
	if len(store.switches) != 1 {
		t.Fatalf("expected one atomic switch, got %d", len(store.switches))
	}
	log := store.switches[0]
	if log.Action != "role_switched" {
		t.Fatalf("expected role_switched audit, got %s", log.Action)
	}
	if log.Meta["from_role"] != "teacher" || log.Meta["to_role"] != "class_teacher" {
		t.Fatalf("unexpected audit meta: %v", log.Meta)
	}
}

func TestSwitchActiveRoleToPrimary(t *testing.T) {
	store := &stubStore{}
	svc := NewService(store, nil, &stubAudit{}, testLogger())
	p := Principal{
		UserID:          7,
		PrimaryRole:     RoleTeacher,
		PrimarySchoolID: ptr(1),
		ActiveRole:      RoleClassTeacher,
		ActiveClassID:   ptr(10),
		Grants:          []RoleGrant{{ID: 1, Role: RoleClassTeacher, SchoolID: ptr(1), ClassID: ptr(10)}},
	}

	next, err := svc.SwitchActiveRole(context.Background(), p, RoleTeacher, nil, nil)
	if err != nil {
		t.Fatalf("switch: %v", err)
	}
	if next.ActiveRole != RoleTeacher {
		t.Fatalf("expected teacher, got %s", next.ActiveRole)
	}
	if next.ActiveClassID != nil {
		t.Fatalf("primary role carries no class scope, got %v", next.ActiveClassID)
	}
}

func TestSwitchActiveRoleNotGranted(t *testing.T) {
	store := &stubStore{}
	svc := NewService(store, nil, &stubAudit{}, testLogger())
	p := Principal{UserID: 7, PrimaryRole: RoleStudent, ActiveRole: RoleStudent}

	_, err := svc.SwitchActiveRole(context.Background(), p, RoleSchoolAdmin, ptr(1), nil)
	if !errors.Is(err, ErrRoleNotGranted) {
		t.Fatalf("expected ErrRoleNotGranted, got %v", err)
	}
	if len(store.switches) != 0 {
		t.Fatal("failed switch must not reach the store")
	}
	if p.ActiveRole != RoleStudent {
		t.Fatal("principal must be unchanged after a failed switch")
	}
}

func TestSwitchActiveRoleStoreFailure(t *testing.T) {
	store := &stubStore{switchErr: errors.New("tx aborted")}
	svc := NewService(store, nil, &stubAudit{}, testLogger())
	p := Principal{
		UserID:      7,
		PrimaryRole: RoleTeacher,
		ActiveRole:  RoleTeacher,
		Grants:      []RoleGrant{{ID: 1, Role: RoleParent}},
	}

	_, err := svc.SwitchActiveRole(context.Background(), p, RoleParent, nil, nil)
	if err == nil {
		t.Fatal("expected store error to surface")
	}
	if p.ActiveRole != RoleTeacher {
		t.Fatal("principal must be unchanged when the store rejects the switch")
	}
	if len(store.switches) != 0 {
		t.Fatal("no switch may be recorded on failure")
	}
}

func TestAddGrantRejectsMissingScope(t *testing.T) {
	store := &stubStore{}
	svc := NewService(store, nil, &stubAudit{}, testLogger())

	_, err := svc.AddGrant(context.Background(), 1, RoleGrant{
		UserID:   7,
		Role:     RoleClassTeacher,
		SchoolID: ptr(1),
	})
	if !errors.Is(err, ErrInvalidGrant) {
		t.Fatalf("expected ErrInvalidGrant, got %v", err)
	}
	if len(store.inserted) != 0 {
		t.Fatal("invalid grant must never reach the store")
	}
}

func TestAddGrantAudits(t *testing.T) {
	store := &stubStore{}
	audit := &stubAudit{}
	svc := NewService(store, nil, audit, testLogger())

	stored, err := svc.AddGrant(context.Background(), 1, RoleGrant{
		UserID:   7,
		Role:     RoleSchoolAdmin,
		SchoolID: ptr(2),
	})
	if err != nil {
		t.Fatalf("add grant: %v", err)
	}
	if stored.ID == 0 {
		t.Fatal("expected stored grant id")
	}
	if len(audit.logs) != 1 || audit.logs[0].Action != "grant_added" {
		t.Fatalf("expected grant_added audit, got %+v", audit.logs)
	}
}

func TestAddGrantSurvivesAuditFailure(t *testing.T) {
	store := &stubStore{}
	svc := NewService(store, nil, &stubAudit{err: errors.New("sink down")}, testLogger())

	if _, err := svc.AddGrant(context.Background(), 1, RoleGrant{UserID: 7, Role: RoleParent}); err != nil {
		t.Fatalf("audit failure must not fail the grant: %v", err)
	}
}

func TestRemoveGrantNotFound(t *testing.T) {
	store := &stubStore{deleteHit: false}
	svc := NewService(store, nil, &stubAudit{}, testLogger())

	err := svc.RemoveGrant(context.Background(), 1, 7, 99)
	if !errors.Is(err, shared.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestValidateGrant(t *testing.T) {
	cases := []struct {
		name  string
		grant RoleGrant
		valid bool
	}{
		{"super admin without scope", RoleGrant{Role: RoleSuperAdmin}, true},
		{"super admin with school", RoleGrant{Role: RoleSuperAdmin, SchoolID: ptr(1)}, false},
		{"school admin with school", RoleGrant{Role: RoleSchoolAdmin, SchoolID: ptr(1)}, true},
		{"school admin without school", RoleGrant{Role: RoleSchoolAdmin}, false},
		{"class teacher full scope", RoleGrant{Role: RoleClassTeacher, SchoolID: ptr(1), ClassID: ptr(10)}, true},
		{"class teacher without class", RoleGrant{Role: RoleClassTeacher, SchoolID: ptr(1)}, false},
		{"teacher without scope", RoleGrant{Role: RoleTeacher}, true},
		{"unknown role", RoleGrant{Role: Role("janitor")}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateGrant(tc.grant)
			if tc.valid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.valid && !errors.Is(err, ErrInvalidGrant) {
				t.Fatalf("expected ErrInvalidGrant, got %v", err)
			}
		})
	}
}
