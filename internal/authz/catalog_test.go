package authz

import "testing"

func TestRequiresScope(t *testing.T) {
	cases := []struct {
		role Role
		want ScopeRequirement
	}{
		{RoleSuperAdmin, ScopeRequirementNone},
		{RoleSchoolAdmin, ScopeRequirementSchool},
		{RolePrincipal, ScopeRequirementSchool},
		{RoleVicePrincipal, ScopeRequirementSchool},
		{RoleClassTeacher, ScopeRequirementSchoolClass},
		{RoleTeacher, ScopeRequirementNone},
		{RoleStudent, ScopeRequirementNone},
		{RoleParent, ScopeRequirementNone},
	}
	for _, tc := range cases {
		if got := RequiresScope(tc.role); got != tc.want {
			t.Errorf("RequiresScope(%s) = %v, want %v", tc.role, got, tc.want)
		}
	}
}

func TestActionPermitted(t *testing.T) {
	if !ActionPermitted(RoleSuperAdmin, ResourceSchools, VerbDelete) {
		t.Error("super_admin should delete schools")
	}
	if ActionPermitted(RoleStudent, ResourceSchools, VerbList) {
		t.Error("student should not list schools")
	}
	if ActionPermitted(RoleStudent, ResourceGrades, VerbCreate) {
		t.Error("student should not create grades")
	}
	if !ActionPermitted(RoleTeacher, ResourceGrades, VerbCreate) {
		t.Error("teacher should create grades")
	}
	if ActionPermitted(RoleTeacher, ResourceUsers, VerbList) {
		t.Error("teacher should not list users")
	}
	if !ActionPermitted(RoleClassTeacher, ResourceUsers, VerbList) {
		t.Error("class_teacher should list users of own class")
	}
	if ActionPermitted(Role("ghost"), ResourceUsers, VerbList) {
		t.Error("unknown role must have no permissions")
	}
}

func TestPermittedActionsStableOrder(t *testing.T) {
	got := PermittedActions(RoleTeacher, ResourceHomework)
	want := []Verb{VerbView, VerbList, VerbCreate, VerbUpdate}
	if len(got) != len(want) {
		t.Fatalf("expected %d verbs, got %d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("verb %d: expected %s, got %s", i, want[i], got[i])
		}
	}
	if PermittedActions(RoleParent, ResourceDocuments) != nil {
		t.Error("parent has no document actions")
	}
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole("class_teacher")
	if err != nil {
		t.Fatalf("parse class_teacher: %v", err)
	}
	if role != RoleClassTeacher {
		t.Fatalf("expected class_teacher, got %s", role)
	}
	if _, err := ParseRole("warden"); err == nil {
		t.Fatal("expected error for unknown role")
	}
}
