package authz

import (
	"context"
	"fmt"
)

// DerivationSource looks up the link rows behind implicit scopes: a
// teacher's classes come from their schedule entries, a student's from
// enrollment rows, a parent's children from the guardian link table. The
// lookups are collaborator I/O; the set reduction over their results
// belongs to this package.
type DerivationSource interface {
	// TeacherClassIDs returns the distinct class ids appearing on
	// schedule rows taught by teacherID.
	TeacherClassIDs(ctx context.Context, teacherID int64) ([]int64, error)
	// TeacherSubjectIDs returns the subject ids teacherID is assigned to.
	TeacherSubjectIDs(ctx context.Context, teacherID int64) ([]int64, error)
	// StudentClassIDs returns the class ids studentID is enrolled in.
	StudentClassIDs(ctx context.Context, studentID int64) ([]int64, error)
	// ParentChildIDs returns the student ids linked to parentID.
	ParentChildIDs(ctx context.Context, parentID int64) ([]int64, error)
}

// ScopeResolver translates a principal's active role into a concrete
// visibility filter per resource type. It performs no writes; derived sets
// are fetched through the injected DerivationSource and reduced here.
//
// Missing data always reduces to VisibleNone: a teacher with zero schedule
// rows sees no classes, not all of them.
type ScopeResolver struct {
	links DerivationSource
}

// NewScopeResolver constructs a ScopeResolver.
func NewScopeResolver(links DerivationSource) *ScopeResolver {
	return &ScopeResolver{links: links}
}

// ResolveScope computes the visibility filter for the principal's active
// role over the queried resource type.
func (s *ScopeResolver) ResolveScope(ctx context.Context, p Principal, q ResourceQuery) (ScopeDecision, error) {
	switch p.ActiveRole {
	case RoleSuperAdmin:
		return allowed(VisibleAll()), nil
	case RoleSchoolAdmin, RolePrincipal, RoleVicePrincipal:
		return s.schoolScope(p, q), nil
	case RoleClassTeacher:
		return s.classTeacherScope(p, q), nil
	case RoleTeacher:
		return s.teacherScope(ctx, p, q)
	case RoleStudent:
		return s.studentScope(ctx, p, q)
	case RoleParent:
		return s.parentScope(ctx, p, q)
	}
	return ScopeDecision{}, fmt.Errorf("authz: unhandled active role %q", p.ActiveRole)
}

// schoolScope covers the three school-bound administrative roles: every
// resource collapses to the single bound school.
func (s *ScopeResolver) schoolScope(p Principal, q ResourceQuery) ScopeDecision {
	if p.ActiveSchoolID == nil {
		return allowed(VisibleNone())
	}
	school := *p.ActiveSchoolID
	switch q.Resource {
	case ResourceSchools:
		return allowed(VisibleIDs(ScopeFieldID, []int64{school}))
	case ResourceClasses, ResourceSubjects, ResourceSchedules, ResourceHomework,
		ResourceGrades, ResourceAttendance, ResourceDocuments, ResourceUsers:
		return allowed(VisibleIDs(ScopeFieldSchool, []int64{school}))
	}
	return allowed(VisibleNone())
}

func (s *ScopeResolver) classTeacherScope(p Principal, q ResourceQuery) ScopeDecision {
	if p.ActiveClassID == nil {
		return allowed(VisibleNone())
	}
	class := *p.ActiveClassID
	switch q.Resource {
	case ResourceClasses:
		return allowed(VisibleIDs(ScopeFieldID, []int64{class}))
	case ResourceSchedules, ResourceHomework, ResourceGrades, ResourceAttendance, ResourceUsers:
		return allowed(VisibleIDs(ScopeFieldClass, []int64{class}))
	}
	return allowed(VisibleNone())
}

func (s *ScopeResolver) teacherScope(ctx context.Context, p Principal, q ResourceQuery) (ScopeDecision, error) {
	switch q.Resource {
	case ResourceClasses:
		classes, err := s.links.TeacherClassIDs(ctx, p.UserID)
		if err != nil {
			return ScopeDecision{}, err
		}
		return allowed(VisibleIDs(ScopeFieldID, classes)), nil
	case ResourceSubjects:
		subjects, err := s.links.TeacherSubjectIDs(ctx, p.UserID)
		if err != nil {
			return ScopeDecision{}, err
		}
		return allowed(VisibleIDs(ScopeFieldID, subjects)), nil
	case ResourceSchedules, ResourceHomework, ResourceGrades, ResourceAttendance:
		classes, err := s.links.TeacherClassIDs(ctx, p.UserID)
		if err != nil {
			return ScopeDecision{}, err
		}
		return allowed(VisibleIDs(ScopeFieldClass, classes)), nil
	}
	return allowed(VisibleNone()), nil
}

func (s *ScopeResolver) studentScope(ctx context.Context, p Principal, q ResourceQuery) (ScopeDecision, error) {
	switch q.Resource {
	case ResourceClasses:
		classes, err := s.links.StudentClassIDs(ctx, p.UserID)
		if err != nil {
			return ScopeDecision{}, err
		}
		return allowed(VisibleIDs(ScopeFieldID, classes)), nil
	case ResourceSchedules, ResourceHomework, ResourceGrades, ResourceAttendance:
		classes, err := s.links.StudentClassIDs(ctx, p.UserID)
		if err != nil {
			return ScopeDecision{}, err
		}
		return allowed(VisibleIDs(ScopeFieldClass, classes)), nil
	case ResourceUsers:
		return allowed(VisibleIDs(ScopeFieldID, []int64{p.UserID})), nil
	}
	return allowed(VisibleNone()), nil
}

func (s *ScopeResolver) parentScope(ctx context.Context, p Principal, q ResourceQuery) (ScopeDecision, error) {
	switch q.Resource {
	case ResourceClasses, ResourceSchedules, ResourceHomework, ResourceGrades, ResourceAttendance:
		classes, err := s.childClassIDs(ctx, p.UserID)
		if err != nil {
			return ScopeDecision{}, err
		}
		field := ScopeFieldClass
		if q.Resource == ResourceClasses {
			field = ScopeFieldID
		}
		return allowed(VisibleIDs(field, classes)), nil
	case ResourceUsers:
		children, err := s.links.ParentChildIDs(ctx, p.UserID)
		if err != nil {
			return ScopeDecision{}, err
		}
		return allowed(VisibleIDs(ScopeFieldID, append([]int64{p.UserID}, children...))), nil
	}
	return allowed(VisibleNone()), nil
}

// childClassIDs folds the classes of every linked child into one set.
func (s *ScopeResolver) childClassIDs(ctx context.Context, parentID int64) ([]int64, error) {
	children, err := s.links.ParentChildIDs(ctx, parentID)
	if err != nil {
		return nil, err
	}
	var classes []int64
	for _, child := range children {
		ids, err := s.links.StudentClassIDs(ctx, child)
		if err != nil {
			return nil, err
		}
		classes = append(classes, ids...)
	}
	return classes, nil
}
