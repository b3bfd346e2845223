package chatflow

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildDescription(t *testing.T) {
	desc := BuildDescription(BranchError, []string{"Error en el sistema", "Ventas", "no carga", ""})

	assert.Equal(t, "Problema: Error en el sistema\n\nMódulo/pantalla: Ventas\n\nPasos: no carga", desc)
	assert.NotContains(t, desc, "Mensaje/comportamiento")
}

func TestBuildDescription_Improvement(t *testing.T) {
	desc := BuildDescription(BranchImprovement, []string{"Mejora en el sistema", "Reportes", "filtro por fecha", "https://x/ref.jpg"})

	assert.Contains(t, desc, "Mejora: Mejora en el sistema")
	assert.Contains(t, desc, "Descripción: filtro por fecha")
	assert.Contains(t, desc, "Referencia: https://x/ref.jpg")
}

func TestDescriptionRoundTrip(t *testing.T) {
	answers := []string{"La caja se cierra", "Punto de venta", "1. abrir caja\n2. cobrar", "pantalla en blanco"}
	blocks := ParseDescription(BuildDescription(BranchError, answers))

	expected := []Block{
		{Label: "Problema", Value: "La caja se cierra"},
		{Label: "Módulo/pantalla", Value: "Punto de venta"},
		{Label: "Descripción", Value: "1. abrir caja\n2. cobrar"},
		{Label: "Mensaje/comportamiento", Value: "pantalla en blanco"},
	}
	assert.Equal(t, expected, blocks)
}

func TestBuildDescription_CollapsesBlankLines(t *testing.T) {
	desc := BuildDescription(BranchError, []string{"x", "y", "paso uno\n\n\npaso dos"})
	blocks := ParseDescription(desc)

	assert.Len(t, blocks, 3)
	assert.Equal(t, "paso uno\npaso dos", blocks[2].Value)
}

func TestParseDescription_Unlabeled(t *testing.T) {
	blocks := ParseDescription("texto libre del operador\n\nProblema: algo")

	assert.Equal(t, []Block{{Value: "texto libre del operador"}, {Label: "Problema", Value: "algo"}}, blocks)
	assert.Nil(t, ParseDescription("   "))
}

func TestBuildTitle(t *testing.T) {
	assert.Equal(t, "No carga el inventario - Inventario", BuildTitle(BranchError, []string{"No carga el inventario", "Inventario"}))
	assert.Equal(t, "Mejora en el sistema", BuildTitle(BranchImprovement, []string{""}))

	long := BuildTitle(BranchError, []string{strings.Repeat("a", 300), "Ventas"})
	assert.Equal(t, maxTitleLength, len([]rune(long)))
	assert.True(t, strings.HasSuffix(long, "…"))
}
