package authz

import (
	"fmt"
	"time"
)

// Role enumerates every role the platform knows about. The set is closed:
// anything outside it is rejected at the boundary, never carried along.
type Role string

const (
	RoleSuperAdmin    Role = "super_admin"
	RoleSchoolAdmin   Role = "school_admin"
	RolePrincipal     Role = "principal"
	RoleVicePrincipal Role = "vice_principal"
	RoleTeacher       Role = "teacher"
	RoleClassTeacher  Role = "class_teacher"
	RoleStudent       Role = "student"
	RoleParent        Role = "parent"
)

// AllRoles lists the closed role set in a stable order.
func AllRoles() []Role {
	return []Role{
		RoleSuperAdmin,
		RoleSchoolAdmin,
		RolePrincipal,
		RoleVicePrincipal,
		RoleTeacher,
		RoleClassTeacher,
		RoleStudent,
		RoleParent,
	}
}

// ParseRole converts a raw string into a Role.
func ParseRole(raw string) (Role, error) {
	role := Role(raw)
	if !role.Valid() {
		return "", fmt.Errorf("authz: unknown role %q", raw)
	}
	return role, nil
}

// Valid reports whether the role belongs to the closed set.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleSchoolAdmin, RolePrincipal, RoleVicePrincipal,
		RoleTeacher, RoleClassTeacher, RoleStudent, RoleParent:
		return true
	}
	return false
}

// RoleGrant binds a user to a role, optionally scoped to a school and/or
// class. At most one grant exists per (user, role, school, class) tuple.
type RoleGrant struct {
	ID        int64
	UserID    int64
	Role      Role
	SchoolID  *int64
	ClassID   *int64
	CreatedAt time.Time
}

// Matches reports whether the grant satisfies a requested (role, school,
// class) triple. A school or class the grant does not carry is treated as
// "don't care" on the request side as well: a super_admin grant matches
// regardless of the requested scope fields.
func (g RoleGrant) Matches(role Role, schoolID, classID *int64) bool {
	if g.Role != role {
		return false
	}
	if g.SchoolID != nil && !idEqual(g.SchoolID, schoolID) {
		return false
	}
	if g.ClassID != nil && !idEqual(g.ClassID, classID) {
		return false
	}
	return true
}

// Principal is the resolved, request-scoped view of an authenticated user:
// primary role, the full grant list, and the single role currently in
// effect. It is a value; callers receive fresh copies and the package never
// mutates one after handing it out.
type Principal struct {
	UserID          int64
	PrimaryRole     Role
	PrimarySchoolID *int64
	Grants          []RoleGrant
	ActiveRole      Role
	ActiveSchoolID  *int64
	ActiveClassID   *int64
}

// HoldsRole reports whether role is the primary role or appears among the
// principal's grants.
func (p Principal) HoldsRole(role Role) bool {
	if p.PrimaryRole == role {
		return true
	}
	for _, g := range p.Grants {
		if g.Role == role {
			return true
		}
	}
	return false
}

// ResourceType names a kind of object an access decision can cover.
type ResourceType string

const (
	ResourceSchools    ResourceType = "schools"
	ResourceClasses    ResourceType = "classes"
	ResourceSubjects   ResourceType = "subjects"
	ResourceSchedules  ResourceType = "schedules"
	ResourceHomework   ResourceType = "homework"
	ResourceGrades     ResourceType = "grades"
	ResourceAttendance ResourceType = "attendance"
	ResourceDocuments  ResourceType = "documents"
	ResourceUsers      ResourceType = "users"
)

// Verb is the operation requested on a resource.
type Verb string

const (
	VerbView   Verb = "view"
	VerbList   Verb = "list"
	VerbCreate Verb = "create"
	VerbUpdate Verb = "update"
	VerbDelete Verb = "delete"
)

// ResourceQuery describes what an incoming request wants to touch. For a
// single-resource fetch the caller sets RequestedID plus whichever scope
// attributes of the row it already knows (class, school, subject, student)
// so the decision can verify membership against the visible set.
type ResourceQuery struct {
	Resource    ResourceType
	RequestedID *int64
	SchoolID    *int64
	ClassID     *int64
	SubjectID   *int64
	StudentID   *int64
}

// ScopeField names the column a visibility id-set constrains. Collaborator
// stores translate it into a WHERE clause (`field IN (...)`).
type ScopeField string

const (
	ScopeFieldID     ScopeField = "id"
	ScopeFieldSchool ScopeField = "school_id"
	ScopeFieldClass  ScopeField = "class_id"
)

// VisibilityKind distinguishes the three shapes a scope can reduce to.
type VisibilityKind string

const (
	VisibilityAll  VisibilityKind = "all"
	VisibilityIDs  VisibilityKind = "ids"
	VisibilityNone VisibilityKind = "none"
)

// Visibility is the computed scope filter: everything, nothing, or a
// deduplicated id set over a named field.
type Visibility struct {
	Kind  VisibilityKind
	Field ScopeField
	IDs   []int64
}

// VisibleAll grants unrestricted visibility.
func VisibleAll() Visibility {
	return Visibility{Kind: VisibilityAll}
}

// VisibleNone grants no visibility. Absence of underlying data always
// reduces to this, never to VisibleAll.
func VisibleNone() Visibility {
	return Visibility{Kind: VisibilityNone}
}

// VisibleIDs restricts visibility to the given ids over field. An empty set
// collapses to VisibleNone.
func VisibleIDs(field ScopeField, ids []int64) Visibility {
	ids = dedupeIDs(ids)
	if len(ids) == 0 {
		return VisibleNone()
	}
	return Visibility{Kind: VisibilityIDs, Field: field, IDs: ids}
}

// Contains reports whether id falls inside the visible set.
func (v Visibility) Contains(id int64) bool {
	switch v.Kind {
	case VisibilityAll:
		return true
	case VisibilityIDs:
		for _, candidate := range v.IDs {
			if candidate == id {
				return true
			}
		}
	}
	return false
}

// DecisionReason explains a denial; empty on allowed decisions.
type DecisionReason string

const (
	ReasonRoleNotPermitted DecisionReason = "role_not_permitted"
	ReasonOutOfScope       DecisionReason = "out_of_scope"
)

// ScopeDecision is the core's answer: whether the operation may proceed and,
// for list queries, which filter the caller must apply.
type ScopeDecision struct {
	Allowed bool
	Visible Visibility
	Reason  DecisionReason
}

func allowed(v Visibility) ScopeDecision {
	return ScopeDecision{Allowed: true, Visible: v}
}

func denied(reason DecisionReason) ScopeDecision {
	return ScopeDecision{Allowed: false, Visible: VisibleNone(), Reason: reason}
}

func idEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func dedupeIDs(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
