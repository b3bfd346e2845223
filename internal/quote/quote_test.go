package quote

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/andresdev/backstage/internal/errors"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func dp(v int64) *decimal.Decimal {
	x := decimal.NewFromInt(v)
	return &x
}

func assertMoney(t *testing.T, expected int64, got decimal.Decimal, field string) {
	t.Helper()
	assert.Truef(t, got.Equal(d(expected)), "%s = %s, expected %d", field, got, expected)
}

func TestCompute_CashDiscount(t *testing.T) {
	b, err := Compute(Selection{
		Sistema:   "profesional",
		Modulos:   []string{"inventario"},
		FormaPago: "contado",
	}, DefaultCatalog())
	require.NoError(t, err)

	assertMoney(t, 9_500_000, b.Subtotal, "Subtotal")
	assertMoney(t, 950_000, b.Descuento, "Descuento")
	assertMoney(t, 0, b.Recargo, "Recargo")
	assertMoney(t, 8_550_000, b.Total, "Total")
	assert.False(t, b.DescuentoManual)
}

func TestCompute_CourtesyLine(t *testing.T) {
	b, err := Compute(Selection{
		Sistema:    "basico",
		Modulos:    []string{"reportes", "crm"},
		Descuentos: map[string]decimal.Decimal{"reportes": d(100), "crm": d(250)},
	}, DefaultCatalog())
	require.NoError(t, err)

	require.Len(t, b.Modulos, 2)
	for _, l := range b.Modulos {
		assert.True(t, l.Cortesia, l.ID)
		assertMoney(t, 0, l.PrecioFinal, l.ID)
		assert.True(t, l.DescuentoPorcentaje.Equal(d(100)), "override clamped to 100")
	}
	assertMoney(t, 1_200_000, b.Modulos[0].Precio, "reportes precio")
	assertMoney(t, 4_500_000, b.Total, "Total")
}

func TestCompute_PartialAndNegativeDiscounts(t *testing.T) {
	b, err := Compute(Selection{
		Sistema:    "basico",
		Modulos:    []string{"facturacion", "nomina"},
		Descuentos: map[string]decimal.Decimal{"facturacion": d(25), "nomina": d(-10)},
	}, DefaultCatalog())
	require.NoError(t, err)

	assertMoney(t, 1_500_000, b.Modulos[0].PrecioFinal, "facturacion")
	assert.False(t, b.Modulos[0].Cortesia)
	assertMoney(t, 2_500_000, b.Modulos[1].PrecioFinal, "nomina")
	assert.True(t, b.Modulos[1].DescuentoPorcentaje.IsZero())
}

func TestCompute_HostingMonths(t *testing.T) {
	tests := []struct {
		name   string
		months int
		want   int64
		meses  int
	}{
		{"six months", 6, 900_000, 6},
		{"default", 0, 1_800_000, 12},
		{"clamped high", 36, 3_600_000, 24},
		{"clamped low", -4, 150_000, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Compute(Selection{
				Sistema:      "basico",
				Servicios:    []string{"hosting"},
				MesesHosting: tt.months,
			}, DefaultCatalog())
			require.NoError(t, err)

			require.Len(t, b.Servicios, 1)
			assertMoney(t, tt.want, b.Servicios[0].PrecioFinal, "hosting")
			assert.Equal(t, tt.meses, b.Servicios[0].Meses)
			require.NotNil(t, b.Servicios[0].PrecioUnitario)
		})
	}
}

func TestCompute_AnnualLabelHasNoEffect(t *testing.T) {
	b, err := Compute(Selection{Sistema: "basico", Servicios: []string{"dominio"}, MesesHosting: 6}, DefaultCatalog())
	require.NoError(t, err)

	assert.Equal(t, "anual", b.Servicios[0].Etiqueta)
	assertMoney(t, 90_000, b.Servicios[0].PrecioFinal, "dominio")
	assert.Zero(t, b.Servicios[0].Meses)
}

func TestCompute_Surcharge(t *testing.T) {
	b, err := Compute(Selection{Sistema: "profesional", FormaPago: "financiado"}, DefaultCatalog())
	require.NoError(t, err)

	assertMoney(t, 640_000, b.Recargo, "Recargo")
	assertMoney(t, 0, b.Descuento, "Descuento")
	assertMoney(t, 8_640_000, b.Total, "Total")
}

func TestCompute_OverrideReplacesPaymentAdjustment(t *testing.T) {
	cat := DefaultCatalog()

	b, err := Compute(Selection{
		Sistema:          "profesional",
		FormaPago:        "financiado",
		DescuentoGeneral: dp(12),
		DescuentoMaximo:  dp(15),
	}, cat)
	require.NoError(t, err)
	assert.True(t, b.DescuentoManual)
	assertMoney(t, 0, b.Recargo, "Recargo")
	assertMoney(t, 960_000, b.Descuento, "Descuento")
	assertMoney(t, 7_040_000, b.Total, "Total")

	b, err = Compute(Selection{
		Sistema:          "profesional",
		DescuentoGeneral: dp(40),
		DescuentoMaximo:  dp(15),
	}, cat)
	require.NoError(t, err)
	assert.True(t, b.DescuentoPorcentaje.Equal(d(15)), "clamped to ceiling")

	b, err = Compute(Selection{
		Sistema:          "profesional",
		DescuentoGeneral: dp(40),
		DescuentoMaximo:  dp(500),
	}, cat)
	require.NoError(t, err)
	assert.True(t, b.DescuentoPorcentaje.Equal(d(40)), "ceiling itself clamped to 100")

	b, err = Compute(Selection{Sistema: "profesional", DescuentoGeneral: dp(-5)}, cat)
	require.NoError(t, err)
	assert.True(t, b.DescuentoPorcentaje.IsZero())
}

func TestCompute_SupportPlanNotInTotal(t *testing.T) {
	b, err := Compute(Selection{Sistema: "basico", PlanSoporte: "premium"}, DefaultCatalog())
	require.NoError(t, err)

	require.NotNil(t, b.Soporte)
	assert.Equal(t, FreeFirstMonthNote, b.Soporte.Nota)
	assertMoney(t, 800_000, b.Soporte.PrecioMensual, "plan")
	assertMoney(t, 4_500_000, b.Total, "Total")
}

func TestCompute_StartingFromTier(t *testing.T) {
	b, err := Compute(Selection{Sistema: "empresarial"}, DefaultCatalog())
	require.NoError(t, err)
	assert.True(t, b.Desde)
}

func TestCompute_Rounding(t *testing.T) {
	cat := &Catalog{
		Sistemas:   []Tier{{ID: "x", Nombre: "X", Precio: d(1_000_001)}},
		FormasPago: []PaymentMethod{{ID: "p", Nombre: "P", Descuento: decimal.RequireFromString("7.5")}},
	}
	b, err := Compute(Selection{Sistema: "x", FormaPago: "p"}, cat)
	require.NoError(t, err)

	assert.True(t, b.Descuento.Equal(b.Descuento.Round(0)))
	assertMoney(t, 75_000, b.Descuento, "Descuento")
	assertMoney(t, 925_001, b.Total, "Total")
}

func TestCompute_ValidationErrors(t *testing.T) {
	cat := DefaultCatalog()
	tests := []struct {
		name string
		sel  Selection
		code apperrors.Code
	}{
		{"missing tier", Selection{}, apperrors.CodeMissingField},
		{"unknown tier", Selection{Sistema: "gigante"}, apperrors.CodeUnknownItem},
		{"unknown module", Selection{Sistema: "basico", Modulos: []string{"robotica"}}, apperrors.CodeUnknownItem},
		{"unknown service", Selection{Sistema: "basico", Servicios: []string{"correo"}}, apperrors.CodeUnknownItem},
		{"unknown plan", Selection{Sistema: "basico", PlanSoporte: "oro"}, apperrors.CodeUnknownItem},
		{"unknown payment", Selection{Sistema: "basico", FormaPago: "trueque"}, apperrors.CodeUnknownItem},
		{"duplicate module", Selection{Sistema: "basico", Modulos: []string{"crm", "crm"}}, apperrors.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compute(tt.sel, cat)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.GetCode(err))
			assert.True(t, apperrors.IsUserError(err))
		})
	}
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "$ 8.550.000", FormatMoney(d(8_550_000)))
	assert.Equal(t, "$ 950", FormatMoney(d(950)))
	assert.Equal(t, "$ 0", FormatMoney(decimal.Zero))
	assert.Equal(t, "-$ 1.000", FormatMoney(d(-1000)))
	assert.Equal(t, "$ 100.000", FormatMoney(d(100_000)))
}

func TestRenderPDF(t *testing.T) {
	b, err := Compute(Selection{
		Sistema:      "profesional",
		Modulos:      []string{"inventario", "reportes"},
		Servicios:    []string{"hosting", "dominio"},
		MesesHosting: 6,
		PlanSoporte:  "estandar",
		FormaPago:    "contado",
		Descuentos:   map[string]decimal.Decimal{"reportes": d(100)},
	}, DefaultCatalog())
	require.NoError(t, err)

	var buf bytes.Buffer
	err = RenderPDF(&buf, b, Document{
		Numero:      "COT-2026-0001",
		Cliente:     "Panadería Ñandú",
		Empresa:     "Andrés Software Studio",
		Emitida:     time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC),
		ValidezDias: 30,
	})
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	assert.Greater(t, buf.Len(), 1000)
}
