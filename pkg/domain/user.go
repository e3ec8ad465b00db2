package domain

import (
	"time"

	"github.com/google/uuid"
)

// User represents a principal account.
type User struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Name         string     `json:"name"`
	Role         Role       `json:"role"`
	TenantID     *uuid.UUID `json:"tenant_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// IsDeleted reports whether the user is soft-deleted.
func (u *User) IsDeleted() bool {
	return u.DeletedAt != nil
}

// InTenant reports whether the user belongs to tenantID.
func (u *User) InTenant(tenantID uuid.UUID) bool {
	return u.TenantID != nil && *u.TenantID == tenantID
}

// Principal returns the identity the user acts as.
func (u *User) Principal() *Principal {
	return &Principal{ID: u.ID, Email: u.Email, Role: u.Role, TenantID: u.TenantID}
}

// Principal is an authenticated actor as carried on an access token.
type Principal struct {
	ID       uuid.UUID
	Email    string
	Role     Role
	TenantID *uuid.UUID
}

// UserFilter narrows user listings. Nil fields do not filter.
type UserFilter struct {
	TenantID       *uuid.UUID
	UserID         *uuid.UUID
	IncludeDeleted bool
	// ExcludeMasters drops MASTER rows, whatever tenant id they carry.
	ExcludeMasters bool
}
