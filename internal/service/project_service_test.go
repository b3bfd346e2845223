package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresdev/backstage/internal/domain"
	apperrors "github.com/andresdev/backstage/internal/errors"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func newTestProjectService() (*ProjectService, *MockProjectRepository, testDeps) {
	deps := newTestDeps()
	repo := NewMockProjectRepository()
	return NewProjectService(repo, deps.clock, deps.audit, deps.logger), repo, deps
}

func TestProjectService_Create(t *testing.T) {
	svc, _, deps := newTestProjectService()

	p, err := svc.Create(context.Background(), ProjectInput{
		Nombre:     "Panadería Sofía",
		APIBaseURL: strPtr("https://sofia.example.com/api/"),
		APIKey:     strPtr(" secreto "),
	}, operatorActor)
	require.NoError(t, err)

	assert.Equal(t, "panaderia-sofia", p.Slug)
	assert.Equal(t, "https://sofia.example.com/api", p.APIBaseURL)
	assert.Equal(t, "secreto", p.APIKey)
	assert.True(t, p.Activo)
	assert.True(t, p.HasAPI())
	assert.Equal(t, []string{"proyecto.creado"}, deps.activity.Types())
}

func TestProjectService_Create_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   ProjectInput
	}{
		{"missing name", ProjectInput{Nombre: " "}},
		{"relative api url", ProjectInput{Nombre: "Sofía", APIBaseURL: strPtr("sofia/api")}},
		{"bad logo", ProjectInput{Nombre: "Sofía", LogoURL: strPtr("javascript:alert(1)")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newTestProjectService()
			_, err := svc.Create(context.Background(), tt.in, operatorActor)
			require.Error(t, err)
			assert.Equal(t, apperrors.CodeValidation, apperrors.GetCode(err))
		})
	}
}

func TestProjectService_Update_KeepsUnsetFields(t *testing.T) {
	svc, _, _ := newTestProjectService()
	ctx := context.Background()
	p, err := svc.Create(ctx, ProjectInput{
		Nombre:     "Panadería Sofía",
		APIBaseURL: strPtr("https://sofia.example.com"),
		APIKey:     strPtr("secreto"),
	}, operatorActor)
	require.NoError(t, err)

	got, err := svc.Update(ctx, p.ID, ProjectInput{Activo: boolPtr(false)}, operatorActor)
	require.NoError(t, err)

	assert.False(t, got.Activo)
	assert.Equal(t, "Panadería Sofía", got.Nombre)
	assert.Equal(t, "secreto", got.APIKey)
	assert.False(t, got.HasAPI(), "inactive projects are not queried")
}

func TestProjectService_Update_NotFound(t *testing.T) {
	svc, _, _ := newTestProjectService()

	_, err := svc.Update(context.Background(), domain.NewProject("x", "", testEpoch).ID, ProjectInput{Nombre: "y"}, operatorActor)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestProjectService_List(t *testing.T) {
	svc, _, _ := newTestProjectService()
	ctx := context.Background()

	_, err := svc.Create(ctx, ProjectInput{Nombre: "Activa"}, operatorActor)
	require.NoError(t, err)
	_, err = svc.Create(ctx, ProjectInput{Nombre: "Inactiva", Activo: boolPtr(false)}, operatorActor)
	require.NoError(t, err)

	all, err := svc.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := svc.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Activa", active[0].Nombre)
}

func TestProjectService_Contacts(t *testing.T) {
	svc, _, deps := newTestProjectService()
	ctx := context.Background()
	a, err := svc.Create(ctx, ProjectInput{Nombre: "Tienda A"}, operatorActor)
	require.NoError(t, err)
	b, err := svc.Create(ctx, ProjectInput{Nombre: "Tienda B"}, operatorActor)
	require.NoError(t, err)

	c, err := svc.AddContact(ctx, a.ID, " Luis@Tienda.co ", "Luis", operatorActor)
	require.NoError(t, err)
	assert.Equal(t, "luis@tienda.co", c.Email)

	// Registering the same email under another project moves it.
	_, err = svc.AddContact(ctx, b.ID, "luis@tienda.co", "Luis", operatorActor)
	require.NoError(t, err)

	inA, err := svc.ListContacts(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, inA)
	inB, err := svc.ListContacts(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, inB, 1)

	require.NoError(t, svc.RemoveContact(ctx, b.ID, "LUIS@tienda.co", operatorActor))
	err = svc.RemoveContact(ctx, b.ID, "luis@tienda.co", operatorActor)
	assert.True(t, apperrors.IsNotFound(err))

	assert.Equal(t, []string{
		"proyecto.creado", "proyecto.creado",
		"contacto.agregado", "contacto.agregado", "contacto.eliminado",
	}, deps.activity.Types())
}

func TestProjectService_AddContact_Validation(t *testing.T) {
	svc, _, _ := newTestProjectService()
	ctx := context.Background()
	p, err := svc.Create(ctx, ProjectInput{Nombre: "Tienda"}, operatorActor)
	require.NoError(t, err)

	_, err = svc.AddContact(ctx, p.ID, "sin-arroba", "Luis", operatorActor)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, apperrors.GetCode(err))

	_, err = svc.AddContact(ctx, domain.NewProject("x", "", testEpoch).ID, "luis@tienda.co", "Luis", operatorActor)
	assert.True(t, apperrors.IsNotFound(err))
}
