package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ModuleType tags one of the fixed functional areas in the global catalog.
type ModuleType string

const (
	ModuleUserManagement ModuleType = "USER_MANAGEMENT"
	ModuleFinancial      ModuleType = "FINANCIAL"
	ModuleInventory      ModuleType = "INVENTORY"
	ModuleSales          ModuleType = "SALES"
	ModuleSchedules      ModuleType = "SCHEDULES"
	ModuleReports        ModuleType = "REPORTS"
	ModuleImages         ModuleType = "IMAGES"
	ModuleSettings       ModuleType = "SETTINGS"
)

// ModuleTypes lists the closed set of module types.
var ModuleTypes = []ModuleType{
	ModuleUserManagement,
	ModuleFinancial,
	ModuleInventory,
	ModuleSales,
	ModuleSchedules,
	ModuleReports,
	ModuleImages,
	ModuleSettings,
}

// ParseModuleType parses a module type case-insensitively.
func ParseModuleType(s string) (ModuleType, error) {
	t := ModuleType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", ErrInvalidModule
	}
	return t, nil
}

// Valid reports whether t is in the catalog's closed set.
func (t ModuleType) Valid() bool {
	for _, v := range ModuleTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Module is a global catalog entry.
type Module struct {
	ID           uuid.UUID  `json:"id"`
	Type         ModuleType `json:"type"`
	Name         string     `json:"name"`
	Slug         string     `json:"slug"`
	Description  string     `json:"description,omitempty"`
	Icon         string     `json:"icon,omitempty"`
	DisplayOrder int        `json:"display_order"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// ModuleEnablement records that a tenant has turned a module on.
type ModuleEnablement struct {
	ID           uuid.UUID       `json:"id"`
	TenantID     uuid.UUID       `json:"tenant_id"`
	ModuleID     uuid.UUID       `json:"module_id"`
	Enabled      bool            `json:"enabled"`
	DefaultLevel PermissionLevel `json:"default_level"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	DeletedAt    *time.Time      `json:"deleted_at,omitempty"`
}

// IsLive reports whether the enablement is not soft-deleted.
func (e *ModuleEnablement) IsLive() bool {
	return e.DeletedAt == nil
}

// TenantModule is an enablement joined with its catalog entry.
type TenantModule struct {
	ModuleEnablement
	Module Module `json:"module"`
}

// PermissionOverride is a per-user grant superseding an enablement default.
type PermissionOverride struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	EnablementID uuid.UUID       `json:"enablement_id"`
	Level        PermissionLevel `json:"level"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	DeletedAt    *time.Time      `json:"deleted_at,omitempty"`
}

// IsLive reports whether the override is not soft-deleted.
func (o *PermissionOverride) IsLive() bool {
	return o.DeletedAt == nil
}

// UserPermission is an override joined with the module it grants access to.
type UserPermission struct {
	PermissionOverride
	TenantID   uuid.UUID  `json:"tenant_id"`
	ModuleID   uuid.UUID  `json:"module_id"`
	ModuleType ModuleType `json:"module_type"`
	ModuleName string     `json:"module_name"`
}

// Grant is the data the permission resolver needs for one principal and
// module: the tenant's live enablement and, if present, the user's live
// override. It is read in a single statement so it is never half-updated.
type Grant struct {
	EnablementID  uuid.UUID
	DefaultLevel  PermissionLevel
	OverrideLevel *PermissionLevel
}

// Effective returns the override level when present, else the default.
func (g *Grant) Effective() PermissionLevel {
	if g.OverrideLevel != nil {
		return *g.OverrideLevel
	}
	return g.DefaultLevel
}
