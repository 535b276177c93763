package authz

import "errors"

var (
	// ErrNoRoleAvailable means a principal cannot be constructed at all:
	// the user holds no primary role and no grants. Callers treat it as
	// unauthenticated.
	ErrNoRoleAvailable = errors.New("authz: no role available")
	// ErrRoleNotPermitted means the active role may not perform the
	// requested action.
	ErrRoleNotPermitted = errors.New("authz: role not permitted")
	// ErrRoleNotGranted means a role switch targeted a role the user does
	// not hold. A validation failure, not a permission one.
	ErrRoleNotGranted = errors.New("authz: role not granted")
	// ErrOutOfScope means a specific resource id fell outside the visible
	// set. On the wire it must be indistinguishable from "not found".
	ErrOutOfScope = errors.New("authz: out of scope")
	// ErrInvalidGrant means a grant payload failed shape validation, e.g.
	// a class_teacher grant missing its class binding.
	ErrInvalidGrant = errors.New("authz: invalid grant")
)
