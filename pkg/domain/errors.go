package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so the transport layer can map it to a status.
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindBadRequest
	KindConflict
)

// Kind sentinels. Every *Error unwraps to exactly one of these.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrBadRequest      = errors.New("bad request")
	ErrConflict        = errors.New("conflict")
)

// Subsystems that raise Forbidden. They are kept apart so logs can tell
// principal administration denials from module access denials.
const (
	SubsystemTenancy          = "tenancy"
	SubsystemUserLifecycle    = "user-lifecycle"
	SubsystemModulePermission = "module-permission"
	SubsystemModules          = "modules"
	SubsystemTenants          = "tenants"
	SubsystemSession          = "session"
)

// Error is a classified domain failure.
type Error struct {
	Kind      Kind
	Subsystem string
	Message   string
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes the kind sentinel.
func (e *Error) Unwrap() error {
	switch e.Kind {
	case KindUnauthenticated:
		return ErrUnauthenticated
	case KindForbidden:
		return ErrForbidden
	case KindNotFound:
		return ErrNotFound
	case KindBadRequest:
		return ErrBadRequest
	case KindConflict:
		return ErrConflict
	}
	return nil
}

func newError(kind Kind, subsystem, format string, args ...any) *Error {
	return &Error{Kind: kind, Subsystem: subsystem, Message: fmt.Sprintf(format, args...)}
}

// Unauthenticated returns a new Unauthenticated error.
func Unauthenticated(subsystem, format string, args ...any) *Error {
	return newError(KindUnauthenticated, subsystem, format, args...)
}

// Forbidden returns a new Forbidden error attributed to subsystem.
func Forbidden(subsystem, format string, args ...any) *Error {
	return newError(KindForbidden, subsystem, format, args...)
}

// NotFound returns a new NotFound error.
func NotFound(subsystem, format string, args ...any) *Error {
	return newError(KindNotFound, subsystem, format, args...)
}

// BadRequest returns a new BadRequest error.
func BadRequest(subsystem, format string, args ...any) *Error {
	return newError(KindBadRequest, subsystem, format, args...)
}

// Conflict returns a new Conflict error.
func Conflict(subsystem, format string, args ...any) *Error {
	return newError(KindConflict, subsystem, format, args...)
}

// KindOf reports the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// SubsystemOf reports the subsystem that raised err, if any.
func SubsystemOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Subsystem
	}
	return ""
}

// Authentication errors
var (
	ErrInvalidCredentials  = Unauthenticated(SubsystemSession, "invalid credentials")
	ErrInvalidToken        = Unauthenticated(SubsystemSession, "invalid token")
	ErrRefreshTokenInvalid = Unauthenticated(SubsystemSession, "invalid refresh token")
	ErrRefreshTokenExpired = Unauthenticated(SubsystemSession, "refresh token expired")
	ErrPrincipalInactive   = Unauthenticated(SubsystemSession, "user is no longer active")
	ErrMissingPrincipal    = Unauthenticated(SubsystemTenancy, "no authenticated principal")
)

// Lookup errors
var (
	ErrUserNotFound         = NotFound(SubsystemUserLifecycle, "user not found")
	ErrDeletedUserNotFound  = NotFound(SubsystemUserLifecycle, "deleted user not found")
	ErrTenantNotFound       = NotFound(SubsystemTenants, "tenant not found")
	ErrModuleNotFound       = NotFound(SubsystemModules, "module not found")
	ErrEnablementNotFound   = NotFound(SubsystemModules, "module is not enabled for this tenant")
	ErrOverrideNotFound     = NotFound(SubsystemModulePermission, "permission not found")
	ErrRefreshTokenNotFound = NotFound(SubsystemSession, "refresh token not found")
)

// Uniqueness errors
var (
	ErrEmailInUse       = Conflict(SubsystemUserLifecycle, "email already in use")
	ErrSlugTaken        = Conflict(SubsystemTenants, "tenant slug already in use")
	ErrTenantEmailInUse = Conflict(SubsystemTenants, "tenant email already in use")
	ErrEnablementExists = Conflict(SubsystemModules, "module already enabled for tenant")
	ErrOverrideExists   = Conflict(SubsystemModulePermission, "permission already assigned")
)

// Validation errors
var (
	ErrInvalidEmail      = BadRequest(SubsystemUserLifecycle, "invalid email address")
	ErrInvalidRole       = BadRequest(SubsystemUserLifecycle, "invalid role")
	ErrInvalidLevel      = BadRequest(SubsystemModulePermission, "invalid permission level")
	ErrInvalidModule     = BadRequest(SubsystemModules, "invalid module type")
	ErrInvalidSlug       = BadRequest(SubsystemTenants, "slug may only contain lowercase letters, digits and hyphens")
	ErrInvalidPage       = BadRequest("", "page must be at least 1")
	ErrInvalidLimit      = BadRequest("", "limit must be between 1 and 100")
	ErrSelfDeletion      = BadRequest(SubsystemUserLifecycle, "you cannot delete your own account")
	ErrTenantRequired    = BadRequest(SubsystemUserLifecycle, "tenant id is required for non-master users")
	ErrNoTenantAvailable = BadRequest(SubsystemUserLifecycle, "no live tenant available to assign")
)
