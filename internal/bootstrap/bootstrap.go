// Package bootstrap seeds the module catalog and the initial MASTER account
// at startup.
package bootstrap

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-saas-admin/internal/config"
	"github.com/tendant/simple-saas-admin/pkg/auth"
	"github.com/tendant/simple-saas-admin/pkg/domain"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// CatalogStore upserts catalog entries by type.
type CatalogStore interface {
	Upsert(ctx context.Context, module *domain.Module) error
}

// UserStore creates the initial MASTER.
type UserStore interface {
	ExistsByRole(ctx context.Context, role domain.Role) (bool, error)
	Create(ctx context.Context, user *domain.User) error
}

type catalogFile struct {
	Modules []catalogEntry `yaml:"modules"`
}

type catalogEntry struct {
	Type        string `yaml:"type"`
	Name        string `yaml:"name"`
	Slug        string `yaml:"slug"`
	Description string `yaml:"description"`
	Icon        string `yaml:"icon"`
	Order       int    `yaml:"order"`
}

// LoadCatalog parses the embedded catalog. Every module type must appear
// exactly once.
func LoadCatalog() ([]*domain.Module, error) {
	return parseCatalog(catalogYAML)
}

func parseCatalog(data []byte) ([]*domain.Module, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	seen := make(map[domain.ModuleType]bool, len(file.Modules))
	modules := make([]*domain.Module, 0, len(file.Modules))
	for _, e := range file.Modules {
		t, err := domain.ParseModuleType(e.Type)
		if err != nil {
			return nil, fmt.Errorf("catalog entry %q: %w", e.Type, err)
		}
		if seen[t] {
			return nil, fmt.Errorf("catalog entry %s is duplicated", t)
		}
		if e.Name == "" || e.Slug == "" {
			return nil, fmt.Errorf("catalog entry %s needs a name and slug", t)
		}
		seen[t] = true
		modules = append(modules, &domain.Module{
			Type:         t,
			Name:         e.Name,
			Slug:         e.Slug,
			Description:  e.Description,
			Icon:         e.Icon,
			DisplayOrder: e.Order,
			IsActive:     true,
		})
	}

	for _, t := range domain.ModuleTypes {
		if !seen[t] {
			return nil, fmt.Errorf("catalog is missing module %s", t)
		}
	}
	return modules, nil
}

// Seeder writes startup data.
type Seeder struct {
	catalog   CatalogStore
	users     UserStore
	validator *auth.Validator
	logger    *slog.Logger
	now       func() time.Time
}

// NewSeeder creates a new seeder.
func NewSeeder(catalog CatalogStore, users UserStore, validator *auth.Validator, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{
		catalog:   catalog,
		users:     users,
		validator: validator,
		logger:    logger,
		now:       time.Now,
	}
}

// Run seeds whatever cfg asks for.
func (s *Seeder) Run(ctx context.Context, cfg config.BootstrapConfig) error {
	if cfg.SeedCatalog {
		if _, err := s.SeedCatalog(ctx); err != nil {
			return err
		}
	}
	if cfg.MasterEmail != "" {
		if _, err := s.EnsureMaster(ctx, cfg); err != nil {
			return err
		}
	}
	return nil
}

// SeedCatalog upserts the embedded catalog and returns the entry count.
func (s *Seeder) SeedCatalog(ctx context.Context) (int, error) {
	modules, err := LoadCatalog()
	if err != nil {
		return 0, err
	}

	now := s.now()
	for _, m := range modules {
		m.ID = uuid.New()
		m.CreatedAt, m.UpdatedAt = now, now
		if err := s.catalog.Upsert(ctx, m); err != nil {
			return 0, fmt.Errorf("upsert module %s: %w", m.Type, err)
		}
	}

	s.logger.Info("module catalog seeded", "modules", len(modules))
	return len(modules), nil
}

// EnsureMaster creates the configured MASTER unless an active MASTER
// already exists. It reports whether an account was created.
func (s *Seeder) EnsureMaster(ctx context.Context, cfg config.BootstrapConfig) (bool, error) {
	exists, err := s.users.ExistsByRole(ctx, domain.RoleMaster)
	if err != nil {
		return false, fmt.Errorf("check for master: %w", err)
	}
	if exists {
		s.logger.Debug("master account present, skipping bootstrap")
		return false, nil
	}

	email, err := s.validator.Email(cfg.MasterEmail)
	if err != nil {
		return false, fmt.Errorf("bootstrap master email: %w", err)
	}
	if err := s.validator.Password(cfg.MasterPassword); err != nil {
		return false, fmt.Errorf("bootstrap master password: %w", err)
	}
	hash, err := auth.HashPassword(cfg.MasterPassword)
	if err != nil {
		return false, fmt.Errorf("hash master password: %w", err)
	}

	name := cfg.MasterName
	if name == "" {
		name = "Master"
	}

	now := s.now()
	user := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Role:         domain.RoleMaster,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return false, fmt.Errorf("create master: %w", err)
	}

	s.logger.Info("master account created", "user_id", user.ID, "email", email)
	return true, nil
}
