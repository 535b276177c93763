package authz

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/schoolhub/schoolhub/internal/shared"
)

// UserRoleState is the persisted role snapshot for one user: the primary
// role assigned at account creation plus whatever active role a previous
// request or switch stored. The stored active role may be stale.
type UserRoleState struct {
	PrimaryRole     Role
	PrimarySchoolID *int64
	ActiveRole      Role
	ActiveSchoolID  *int64
	ActiveClassID   *int64
}

// GrantStore persists role grants and the per-user active role. The core
// owns the contract only; the pgx implementation lives in repository.go.
type GrantStore interface {
	UserRole(ctx context.Context, userID int64) (UserRoleState, error)
	Grants(ctx context.Context, userID int64) ([]RoleGrant, error)
	InsertGrant(ctx context.Context, grant RoleGrant) (RoleGrant, error)
	DeleteGrant(ctx context.Context, userID, grantID int64) (bool, error)
	SaveActiveRole(ctx context.Context, userID int64, role Role, schoolID, classID *int64) error
	// SwitchActiveRole applies the role change and its audit entry as one
	// atomic write. There is no window where the switch is logged but not
	// effective, or effective but unlogged.
	SwitchActiveRole(ctx context.Context, userID int64, role Role, schoolID, classID *int64, log shared.AuditLog) error
}

// AuditSink receives audit events. Satisfied by *shared.AuditLogger.
type AuditSink interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Audit actions emitted by this package.
const (
	auditActionRoleSwitched = "role_switched"
	auditActionRoleRepaired = "active_role_repaired"
	auditActionGrantAdded   = "grant_added"
	auditActionGrantRemoved = "grant_removed"
)

// Service is the authorization core: principal resolution with active-role
// repair, role switching, grant management, and access decisions. It is
// stateless between calls; every request re-derives its principal from the
// stored grant set.
type Service struct {
	store  GrantStore
	scopes *ScopeResolver
	audit  AuditSink
	logger *slog.Logger
}

// NewService constructs the authorization service.
func NewService(store GrantStore, scopes *ScopeResolver, audit AuditSink, logger *slog.Logger) *Service {
	return &Service{store: store, scopes: scopes, audit: audit, logger: logger}
}

// ResolvePrincipal loads the user's role state and grant list and derives
// the request principal. A stored active role that still matches the
// primary role or a grant is kept together with its bound scope; a stale
// one is repaired to the primary role, or to the first grant in insertion
// order when the primary role itself is gone. Repairs are persisted at most
// once per call: a second resolve with no underlying change finds the
// stored value already correct and writes nothing.
func (s *Service) ResolvePrincipal(ctx context.Context, userID int64) (Principal, error) {
	state, err := s.store.UserRole(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	grants, err := s.store.Grants(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	if state.PrimaryRole == "" && len(grants) == 0 {
		return Principal{}, fmt.Errorf("%w: user %d", ErrNoRoleAvailable, userID)
	}

	p := Principal{
		UserID:          userID,
		PrimaryRole:     state.PrimaryRole,
		PrimarySchoolID: state.PrimarySchoolID,
		Grants:          grants,
	}

	if role, schoolID, classID, ok := matchStoredActive(state, grants); ok {
		p.ActiveRole = role
		p.ActiveSchoolID = schoolID
		p.ActiveClassID = classID
		return p, nil
	}

	// Stored value is empty or points at a revoked grant: fall back.
	if state.PrimaryRole != "" {
		p.ActiveRole = state.PrimaryRole
		p.ActiveSchoolID = state.PrimarySchoolID
	} else {
		first := grants[0]
		p.ActiveRole = first.Role
		p.ActiveSchoolID = first.SchoolID
		p.ActiveClassID = first.ClassID
	}

	if err := s.store.SaveActiveRole(ctx, userID, p.ActiveRole, p.ActiveSchoolID, p.ActiveClassID); err != nil {
		return Principal{}, err
	}
	if state.ActiveRole != "" {
		s.recordAudit(ctx, shared.AuditLog{
			ActorID:  userID,
			Action:   auditActionRoleRepaired,
			Entity:   "users",
			EntityID: strconv.FormatInt(userID, 10),
			Meta: map[string]any{
				"stale_role":    string(state.ActiveRole),
				"repaired_role": string(p.ActiveRole),
			},
		})
	}
	return p, nil
}

// matchStoredActive checks the stored active role against the primary role
// and the grant list. Scope travels with the match: the matched grant's
// school and class become the active scope, never the stored fields alone.
func matchStoredActive(state UserRoleState, grants []RoleGrant) (Role, *int64, *int64, bool) {
	if state.ActiveRole == "" {
		return "", nil, nil, false
	}
	if state.ActiveRole == state.PrimaryRole &&
		(state.ActiveSchoolID == nil || idEqual(state.ActiveSchoolID, state.PrimarySchoolID)) {
		return state.PrimaryRole, state.PrimarySchoolID, nil, true
	}
	for _, g := range grants {
		if g.Role == state.ActiveRole &&
			idEqual(g.SchoolID, state.ActiveSchoolID) &&
			idEqual(g.ClassID, state.ActiveClassID) {
			return g.Role, g.SchoolID, g.ClassID, true
		}
	}
	return "", nil, nil, false
}

// SwitchActiveRole validates the requested role against the principal's
// primary role and grants and returns a new Principal with the switched
// role and its scope. The input principal is never mutated; on failure the
// caller keeps using it. State mutation and the role_switched audit entry
// are committed atomically by the store.
func (s *Service) SwitchActiveRole(ctx context.Context, p Principal, role Role, schoolID, classID *int64) (Principal, error) {
	if !role.Valid() {
		return Principal{}, fmt.Errorf("%w: unknown role %q", ErrRoleNotGranted, role)
	}

	next := p
	switch {
	case role == p.PrimaryRole && (schoolID == nil || idEqual(schoolID, p.PrimarySchoolID)):
		next.ActiveRole = p.PrimaryRole
		next.ActiveSchoolID = p.PrimarySchoolID
		next.ActiveClassID = nil
	default:
		grant, ok := findGrant(p.Grants, role, schoolID, classID)
		if !ok {
			return Principal{}, fmt.Errorf("%w: %s", ErrRoleNotGranted, role)
		}
		next.ActiveRole = grant.Role
		next.ActiveSchoolID = grant.SchoolID
		next.ActiveClassID = grant.ClassID
	}

	log := shared.AuditLog{
		ActorID:  p.UserID,
		Action:   auditActionRoleSwitched,
		Entity:   "users",
		EntityID: strconv.FormatInt(p.UserID, 10),
		Meta: map[string]any{
			"from_role": string(p.ActiveRole),
			"to_role":   string(next.ActiveRole),
		},
	}
	if next.ActiveSchoolID != nil {
		log.Meta["school_id"] = *next.ActiveSchoolID
	}
	if next.ActiveClassID != nil {
		log.Meta["class_id"] = *next.ActiveClassID
	}
	if err := s.store.SwitchActiveRole(ctx, p.UserID, next.ActiveRole, next.ActiveSchoolID, next.ActiveClassID, log); err != nil {
		return Principal{}, err
	}
	return next, nil
}

func findGrant(grants []RoleGrant, role Role, schoolID, classID *int64) (RoleGrant, bool) {
	for _, g := range grants {
		if g.Matches(role, schoolID, classID) {
			return g, true
		}
	}
	return RoleGrant{}, false
}

// ListGrants returns the user's grants in insertion order, for role-picker
// projections.
func (s *Service) ListGrants(ctx context.Context, userID int64) ([]RoleGrant, error) {
	return s.store.Grants(ctx, userID)
}

// AddGrant validates and stores a grant. Creation is idempotent on the
// (user, role, school, class) tuple: re-adding an existing grant returns
// the stored row. Malformed grants are rejected here, never discovered
// lazily during scope resolution.
func (s *Service) AddGrant(ctx context.Context, actorID int64, grant RoleGrant) (RoleGrant, error) {
	if err := ValidateGrant(grant); err != nil {
		return RoleGrant{}, err
	}
	stored, err := s.store.InsertGrant(ctx, grant)
	if err != nil {
		return RoleGrant{}, err
	}
	s.recordAudit(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   auditActionGrantAdded,
		Entity:   "role_grants",
		EntityID: strconv.FormatInt(stored.ID, 10),
		Meta: map[string]any{
			"user_id": stored.UserID,
			"role":    string(stored.Role),
		},
	})
	return stored, nil
}

// RemoveGrant deletes a grant. Returns shared.ErrNotFound when the grant
// does not exist for the user.
func (s *Service) RemoveGrant(ctx context.Context, actorID, userID, grantID int64) error {
	deleted, err := s.store.DeleteGrant(ctx, userID, grantID)
	if err != nil {
		return err
	}
	if !deleted {
		return shared.ErrNotFound
	}
	s.recordAudit(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   auditActionGrantRemoved,
		Entity:   "role_grants",
		EntityID: strconv.FormatInt(grantID, 10),
		Meta:     map[string]any{"user_id": userID},
	})
	return nil
}

// ValidateGrant enforces the scope shape the role requires: school-bound
// roles must carry a school, class_teacher must carry school and class,
// and super_admin carries neither.
func ValidateGrant(grant RoleGrant) error {
	if !grant.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidGrant, grant.Role)
	}
	switch RequiresScope(grant.Role) {
	case ScopeRequirementSchool:
		if grant.SchoolID == nil {
			return fmt.Errorf("%w: %s requires school_id", ErrInvalidGrant, grant.Role)
		}
	case ScopeRequirementSchoolClass:
		if grant.SchoolID == nil || grant.ClassID == nil {
			return fmt.Errorf("%w: %s requires school_id and class_id", ErrInvalidGrant, grant.Role)
		}
	case ScopeRequirementNone:
		if grant.Role == RoleSuperAdmin && (grant.SchoolID != nil || grant.ClassID != nil) {
			return fmt.Errorf("%w: super_admin carries no scope", ErrInvalidGrant)
		}
	}
	return nil
}

// recordAudit fires an audit event without letting sink failures surface:
// auditing never blocks an authorization decision.
func (s *Service) recordAudit(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, log); err != nil && s.logger != nil {
		s.logger.Warn("audit record failed", slog.String("action", log.Action), slog.Any("error", err))
	}
}
