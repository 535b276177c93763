package authz

// ScopeRequirement says which scope fields a role grant must carry.
type ScopeRequirement int

const (
	// ScopeRequirementNone applies to platform-wide roles.
	ScopeRequirementNone ScopeRequirement = iota
	// ScopeRequirementSchool applies to roles bound to one school.
	ScopeRequirementSchool
	// ScopeRequirementSchoolClass applies to roles bound to one class
	// inside one school.
	ScopeRequirementSchoolClass
)

// RequiresScope returns the scope fields a grant for role must carry.
func RequiresScope(role Role) ScopeRequirement {
	switch role {
	case RoleSchoolAdmin, RolePrincipal, RoleVicePrincipal:
		return ScopeRequirementSchool
	case RoleClassTeacher:
		return ScopeRequirementSchoolClass
	}
	return ScopeRequirementNone
}

type verbSet map[Verb]struct{}

func verbs(vs ...Verb) verbSet {
	set := make(verbSet, len(vs))
	for _, v := range vs {
		set[v] = struct{}{}
	}
	return set
}

var (
	readOnly  = verbs(VerbView, VerbList)
	readWrite = verbs(VerbView, VerbList, VerbCreate, VerbUpdate)
	fullCRUD  = verbs(VerbView, VerbList, VerbCreate, VerbUpdate, VerbDelete)
)

// permittedActions is the single place role capabilities live. Every
// role-specific rule in the module is expressed here as data; handlers and
// services never compare role strings themselves.
var permittedActions = map[Role]map[ResourceType]verbSet{
	RoleSuperAdmin: {
		ResourceSchools:    fullCRUD,
		ResourceClasses:    fullCRUD,
		ResourceSubjects:   fullCRUD,
		ResourceSchedules:  fullCRUD,
		ResourceHomework:   fullCRUD,
		ResourceGrades:     fullCRUD,
		ResourceAttendance: fullCRUD,
		ResourceDocuments:  fullCRUD,
		ResourceUsers:      fullCRUD,
	},
	RoleSchoolAdmin: {
		ResourceSchools:    verbs(VerbView, VerbList, VerbUpdate),
		ResourceClasses:    fullCRUD,
		ResourceSubjects:   fullCRUD,
		ResourceSchedules:  fullCRUD,
		ResourceHomework:   readOnly,
		ResourceGrades:     readOnly,
		ResourceAttendance: readOnly,
		ResourceDocuments:  fullCRUD,
		ResourceUsers:      fullCRUD,
	},
	RolePrincipal: {
		ResourceSchools:    verbs(VerbView, VerbList, VerbUpdate),
		ResourceClasses:    readWrite,
		ResourceSubjects:   readWrite,
		ResourceSchedules:  readWrite,
		ResourceHomework:   readOnly,
		ResourceGrades:     readOnly,
		ResourceAttendance: readOnly,
		ResourceDocuments:  readWrite,
		ResourceUsers:      readOnly,
	},
	RoleVicePrincipal: {
		ResourceSchools:    readOnly,
		ResourceClasses:    readOnly,
		ResourceSubjects:   readOnly,
		ResourceSchedules:  readWrite,
		ResourceHomework:   readOnly,
		ResourceGrades:     readOnly,
		ResourceAttendance: readOnly,
		ResourceDocuments:  readWrite,
		ResourceUsers:      readOnly,
	},
	RoleTeacher: {
		ResourceClasses:    readOnly,
		ResourceSubjects:   readOnly,
		ResourceSchedules:  readOnly,
		ResourceHomework:   readWrite,
		ResourceGrades:     readWrite,
		ResourceAttendance: readWrite,
	},
	RoleClassTeacher: {
		ResourceClasses:    readOnly,
		ResourceSchedules:  readOnly,
		ResourceHomework:   readWrite,
		ResourceGrades:     readWrite,
		ResourceAttendance: readWrite,
		ResourceUsers:      readOnly,
	},
	RoleStudent: {
		ResourceClasses:    readOnly,
		ResourceSchedules:  readOnly,
		ResourceHomework:   readOnly,
		ResourceGrades:     readOnly,
		ResourceAttendance: readOnly,
		ResourceUsers:      readOnly,
	},
	RoleParent: {
		ResourceClasses:    readOnly,
		ResourceSchedules:  readOnly,
		ResourceHomework:   readOnly,
		ResourceGrades:     readOnly,
		ResourceAttendance: readOnly,
		ResourceUsers:      readOnly,
	},
}

// PermittedActions returns the verbs role may perform on resource, in a
// stable order. Unknown combinations yield an empty slice.
func PermittedActions(role Role, resource ResourceType) []Verb {
	set := permittedActions[role][resource]
	if len(set) == 0 {
		return nil
	}
	ordered := []Verb{VerbView, VerbList, VerbCreate, VerbUpdate, VerbDelete}
	out := make([]Verb, 0, len(set))
	for _, v := range ordered {
		if _, ok := set[v]; ok {
			out = append(out, v)
		}
	}
	return out
}

// ActionPermitted reports whether role may perform verb on resource.
func ActionPermitted(role Role, resource ResourceType, verb Verb) bool {
	_, ok := permittedActions[role][resource][verb]
	return ok
}
