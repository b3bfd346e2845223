package domain

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Project is a client deployment (tenant) managed from the console.
type Project struct {
	ID         uuid.UUID `json:"id"`
	Nombre     string    `json:"nombre"`
	Slug       string    `json:"slug"`
	LogoURL    string    `json:"logo_url,omitempty"`
	APIBaseURL string    `json:"api_base_url,omitempty"`
	// APIKey is sent as x-andres-api-key to the tenant's own API.
	APIKey    string    `json:"-"`
	Activo    bool      `json:"activo"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewProject creates an active project.
func NewProject(nombre, slug string, now time.Time) *Project {
	if slug == "" {
		slug = Slugify(nombre)
	}
	return &Project{
		ID:        uuid.New(),
		Nombre:    strings.TrimSpace(nombre),
		Slug:      slug,
		Activo:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// HasAPI reports whether the console can query the tenant's deployment.
func (p *Project) HasAPI() bool {
	return p.Activo && p.APIBaseURL != ""
}

// Contact is an end user registered under a project.
type Contact struct {
	Email      string    `json:"email"`
	Nombre     string    `json:"nombre"`
	ProyectoID uuid.UUID `json:"proyecto_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Identity is the result of a tenant directory lookup.
type Identity struct {
	Found          bool       `json:"found"`
	Email          string     `json:"email,omitempty"`
	Nombre         string     `json:"nombre,omitempty"`
	ProyectoID     *uuid.UUID `json:"proyecto_id,omitempty"`
	ProyectoNombre string     `json:"proyecto_nombre,omitempty"`
	LogoURL        string     `json:"logo_url,omitempty"`
}

// Branding returns the store identity snapshot for chat messages.
func (i Identity) Branding() *Branding {
	if i.ProyectoNombre == "" && i.LogoURL == "" {
		return nil
	}
	return &Branding{Nombre: i.ProyectoNombre, LogoURL: i.LogoURL}
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify builds a lowercase dash-separated slug.
func Slugify(s string) string {
	replacer := strings.NewReplacer("á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ñ", "n", "ü", "u")
	s = replacer.Replace(strings.ToLower(strings.TrimSpace(s)))
	return strings.Trim(nonSlug.ReplaceAllString(s, "-"), "-")
}
