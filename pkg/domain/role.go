package domain

import "strings"

// Role is the authority class of a principal.
type Role string

const (
	RoleMaster  Role = "MASTER"
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleClient  Role = "CLIENT"
)

// Roles lists every role.
var Roles = []Role{RoleMaster, RoleAdmin, RoleManager, RoleClient}

// ParseRole parses a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", ErrInvalidRole
	}
	return r, nil
}

// Valid reports whether r is one of the four roles.
func (r Role) Valid() bool {
	switch r {
	case RoleMaster, RoleAdmin, RoleManager, RoleClient:
		return true
	}
	return false
}

// IsMaster reports whether r is the global, unscoped role.
func (r Role) IsMaster() bool {
	return r == RoleMaster
}

// isStaff reports whether r is one of the roles an ADMIN may administer.
func (r Role) isStaff() bool {
	return r == RoleManager || r == RoleClient
}

// CanCreate reports whether actor may create a principal with role target.
func CanCreate(actor, target Role) bool {
	switch actor {
	case RoleMaster:
		return target.Valid()
	case RoleAdmin:
		return target.isStaff()
	}
	return false
}

// CanDelete reports whether actor may delete a principal with role target.
func CanDelete(actor, target Role) bool {
	return CanCreate(actor, target)
}

// CanChangeRole reports whether actor may move a principal from one role to another.
func CanChangeRole(actor, from, to Role) bool {
	switch actor {
	case RoleMaster:
		return to.Valid()
	case RoleAdmin:
		return from.isStaff() && to.isStaff()
	}
	return false
}

// CanRestore reports whether actor may restore soft-deleted principals at all.
func CanRestore(actor Role) bool {
	return actor == RoleMaster || actor == RoleAdmin
}

// CanAdministerUsers reports whether actor may create or delete principals.
func CanAdministerUsers(actor Role) bool {
	return actor == RoleMaster || actor == RoleAdmin
}
