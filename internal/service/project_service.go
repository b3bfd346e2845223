package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andresdev/backstage/internal/audit"
	"github.com/andresdev/backstage/internal/clock"
	"github.com/andresdev/backstage/internal/domain"
	"github.com/andresdev/backstage/internal/validation"
)

// ProjectInput is a console create or update of a tenant project.
// On update, nil pointers leave the field unchanged.
type ProjectInput struct {
	Nombre     string  `json:"nombre"`
	Slug       string  `json:"slug,omitempty"`
	LogoURL    *string `json:"logo_url,omitempty"`
	APIBaseURL *string `json:"api_base_url,omitempty"`
	APIKey     *string `json:"api_key,omitempty"`
	Activo     *bool   `json:"activo,omitempty"`
}

// ProjectService manages the tenant directory.
type ProjectService struct {
	projects domain.ProjectRepository
	clock    clock.Clock
	audit    *audit.Logger
	logger   *zap.Logger
}

// NewProjectService creates a new ProjectService.
func NewProjectService(projects domain.ProjectRepository, clk clock.Clock, auditLogger *audit.Logger, logger *zap.Logger) *ProjectService {
	return &ProjectService{projects: projects, clock: clk, audit: auditLogger, logger: logger}
}

// Create registers a project.
func (s *ProjectService) Create(ctx context.Context, in ProjectInput, actor audit.Actor) (*domain.Project, error) {
	p := domain.NewProject(in.Nombre, strings.TrimSpace(in.Slug), s.clock.NowUTC())
	apply(p, in)
	if err := validation.Project(p.Nombre, p.APIBaseURL, p.LogoURL); err != nil {
		return nil, err
	}

	if err := s.projects.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	s.audit.ProjectChanged(ctx, actor, p, true)
	return p, nil
}

// Update changes a project.
func (s *ProjectService) Update(ctx context.Context, id uuid.UUID, in ProjectInput, actor audit.Actor) (*domain.Project, error) {
	p, err := s.projects.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	if nombre := strings.TrimSpace(in.Nombre); nombre != "" {
		p.Nombre = nombre
	}
	if slug := strings.TrimSpace(in.Slug); slug != "" {
		p.Slug = domain.Slugify(slug)
	}
	apply(p, in)
	if err := validation.Project(p.Nombre, p.APIBaseURL, p.LogoURL); err != nil {
		return nil, err
	}

	p.UpdatedAt = s.clock.NowUTC()
	if err := s.projects.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	s.audit.ProjectChanged(ctx, actor, p, false)
	return p, nil
}

func apply(p *domain.Project, in ProjectInput) {
	if in.LogoURL != nil {
		p.LogoURL = strings.TrimSpace(*in.LogoURL)
	}
	if in.APIBaseURL != nil {
		p.APIBaseURL = strings.TrimRight(strings.TrimSpace(*in.APIBaseURL), "/")
	}
	if in.APIKey != nil {
		p.APIKey = strings.TrimSpace(*in.APIKey)
	}
	if in.Activo != nil {
		p.Activo = *in.Activo
	}
}

// Get returns a project.
func (s *ProjectService) Get(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	p, err := s.projects.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// List returns every project, or only the active ones.
func (s *ProjectService) List(ctx context.Context, activeOnly bool) ([]*domain.Project, error) {
	projects, err := s.projects.List(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

// AddContact registers an end user under a project. An email already
// registered elsewhere moves to this project.
func (s *ProjectService) AddContact(ctx context.Context, projectID uuid.UUID, email, nombre string, actor audit.Actor) (*domain.Contact, error) {
	if err := validation.Contact(email, nombre); err != nil {
		return nil, err
	}
	if _, err := s.projects.GetByID(ctx, projectID); err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	c := &domain.Contact{
		Email:      domain.NormalizeEmail(email),
		Nombre:     strings.TrimSpace(nombre),
		ProyectoID: projectID,
		CreatedAt:  s.clock.NowUTC(),
	}
	if err := s.projects.UpsertContact(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to save contact: %w", err)
	}
	s.audit.ContactChanged(ctx, actor, projectID, c.Email, true)
	return c, nil
}

// RemoveContact unregisters an end user.
func (s *ProjectService) RemoveContact(ctx context.Context, projectID uuid.UUID, email string, actor audit.Actor) error {
	email = domain.NormalizeEmail(email)
	if err := s.projects.DeleteContact(ctx, projectID, email); err != nil {
		return fmt.Errorf("failed to delete contact: %w", err)
	}
	s.audit.ContactChanged(ctx, actor, projectID, email, false)
	return nil
}

// ListContacts returns a project's contacts.
func (s *ProjectService) ListContacts(ctx context.Context, projectID uuid.UUID) ([]*domain.Contact, error) {
	contacts, err := s.projects.ListContacts(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	return contacts, nil
}
