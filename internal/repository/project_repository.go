package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/andresdev/backstage/internal/database"
	"github.com/andresdev/backstage/internal/domain"
	apperrors "github.com/andresdev/backstage/internal/errors"
)

// ProjectRepository implements domain.ProjectRepository using PostgreSQL.
type ProjectRepository struct {
	pool *pgxpool.Pool
}

// NewProjectRepository creates a new ProjectRepository.
func NewProjectRepository(pool *pgxpool.Pool) *ProjectRepository {
	return &ProjectRepository{pool: pool}
}

// Create inserts a project.
func (r *ProjectRepository) Create(ctx context.Context, p *domain.Project) error {
	if err := GuardString(p.Nombre, "nombre"); err != nil {
		return err
	}
	if err := GuardString(p.Slug, "slug"); err != nil {
		return err
	}

	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	query := `INSERT INTO proyectos (` + ProjectColumns.Select() + `) VALUES (` + ProjectColumns.Placeholders() + `)`
	_, err := database.QuerierFrom(ctx, r.pool).Exec(ctx, query,
		p.ID,
		p.Nombre,
		p.Slug,
		p.LogoURL,
		p.APIBaseURL,
		p.APIKey,
		p.Activo,
		p.CreatedAt,
		p.UpdatedAt,
	)
	return mapError("ProjectRepository.Create", "project", err)
}

// GetByID retrieves a project.
func (r *ProjectRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	ctx, cancel := WithQueryTimeout(ctx)
	defer cancel()

	query := `SELECT ` + ProjectColumns.Select() + ` FROM proyectos WHERE id = $1`
	p, err := scanProject(database.QuerierFrom(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapError("ProjectRepository.GetByID", "project", err)
	}
	return p, nil
}

// Update writes every mutable column.
func (r *ProjectRepository) Update(ctx context.Context, p *domain.Project) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	query := `
		UPDATE proyectos SET
			nombre = $2,
			slug = $3,
			logo_url = $4,
			api_base_url = $5,
			api_key = $6,
			activo = $7,
			updated_at = $8
		WHERE id = $1`

	result, err := database.QuerierFrom(ctx, r.pool).Exec(ctx, query,
		p.ID,
		p.Nombre,
		p.Slug,
		p.LogoURL,
		p.APIBaseURL,
		p.APIKey,
		p.Activo,
		p.UpdatedAt,
	)
	if err != nil {
		return mapError("ProjectRepository.Update", "project", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.NotFound("project")
	}
	return nil
}

// List returns projects ordered by name.
func (r *ProjectRepository) List(ctx context.Context, activeOnly bool) ([]*domain.Project, error) {
	ctx, cancel := WithListQueryTimeout(ctx)
	defer cancel()

	query := `SELECT ` + ProjectColumns.Select() + ` FROM proyectos`
	if activeOnly {
		query += ` WHERE activo`
	}
	query += ` ORDER BY nombre`

	rows, err := database.QuerierFrom(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, mapError("ProjectRepository.List", "project", err)
	}
	defer rows.Close()

	projects := make([]*domain.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, apperrors.DatabaseError("ProjectRepository.List", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DatabaseError("ProjectRepository.List", err)
	}
	return projects, nil
}

// FindContact looks up a contact by email, joined with its project.
func (r *ProjectRepository) FindContact(ctx context.Context, email string) (*domain.Contact, *domain.Project, error) {
	ctx, cancel := WithQueryTimeout(ctx)
	defer cancel()

	query := `
		SELECT c.email, c.nombre, c.proyecto_id, c.created_at, ` + ProjectColumns.SelectAs("p") + `
		FROM proyecto_contactos c
		JOIN proyectos p ON p.id = c.proyecto_id
		WHERE c.email = $1`

	c := &domain.Contact{}
	p := &domain.Project{}
	err := database.QuerierFrom(ctx, r.pool).QueryRow(ctx, query, domain.NormalizeEmail(email)).Scan(
		&c.Email,
		&c.Nombre,
		&c.ProyectoID,
		&c.CreatedAt,
		&p.ID,
		&p.Nombre,
		&p.Slug,
		&p.LogoURL,
		&p.APIBaseURL,
		&p.APIKey,
		&p.Activo,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, nil, mapError("ProjectRepository.FindContact", "contact", err)
	}
	return c, p, nil
}

// UpsertContact adds a contact or moves it to another project.
func (r *ProjectRepository) UpsertContact(ctx context.Context, c *domain.Contact) error {
	if err := GuardEmail(c.Email, "email"); err != nil {
		return err
	}
	if err := GuardUUID(c.ProyectoID, "proyecto_id"); err != nil {
		return err
	}

	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO proyecto_contactos (` + ContactColumns.Select() + `)
		VALUES (` + ContactColumns.Placeholders() + `)
		ON CONFLICT (email) DO UPDATE SET
			nombre = EXCLUDED.nombre,
			proyecto_id = EXCLUDED.proyecto_id`

	_, err := database.QuerierFrom(ctx, r.pool).Exec(ctx, query,
		domain.NormalizeEmail(c.Email),
		c.Nombre,
		c.ProyectoID,
		c.CreatedAt,
	)
	return mapError("ProjectRepository.UpsertContact", "contact", err)
}

// DeleteContact removes a contact from a project.
func (r *ProjectRepository) DeleteContact(ctx context.Context, projectID uuid.UUID, email string) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	result, err := database.QuerierFrom(ctx, r.pool).Exec(ctx,
		`DELETE FROM proyecto_contactos WHERE proyecto_id = $1 AND email = $2`,
		projectID, domain.NormalizeEmail(email))
	if err != nil {
		return mapError("ProjectRepository.DeleteContact", "contact", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.NotFound("contact")
	}
	return nil
}

// ListContacts returns the contacts of a project ordered by email.
func (r *ProjectRepository) ListContacts(ctx context.Context, projectID uuid.UUID) ([]*domain.Contact, error) {
	ctx, cancel := WithListQueryTimeout(ctx)
	defer cancel()

	query := `SELECT ` + ContactColumns.Select() + ` FROM proyecto_contactos WHERE proyecto_id = $1 ORDER BY email`
	rows, err := database.QuerierFrom(ctx, r.pool).Query(ctx, query, projectID)
	if err != nil {
		return nil, mapError("ProjectRepository.ListContacts", "contact", err)
	}
	defer rows.Close()

	contacts := make([]*domain.Contact, 0)
	for rows.Next() {
		c := &domain.Contact{}
		if err := rows.Scan(&c.Email, &c.Nombre, &c.ProyectoID, &c.CreatedAt); err != nil {
			return nil, apperrors.DatabaseError("ProjectRepository.ListContacts", err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DatabaseError("ProjectRepository.ListContacts", err)
	}
	return contacts, nil
}

func scanProject(row pgx.Row) (*domain.Project, error) {
	p := &domain.Project{}
	err := row.Scan(
		&p.ID,
		&p.Nombre,
		&p.Slug,
		&p.LogoURL,
		&p.APIBaseURL,
		&p.APIKey,
		&p.Activo,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}
