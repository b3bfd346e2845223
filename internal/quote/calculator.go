package quote

import (
	"github.com/shopspring/decimal"

	apperrors "github.com/andresdev/backstage/internal/errors"
)

// Hosting months bounds.
const (
	DefaultHostingMonths = 12
	MinHostingMonths     = 1
	MaxHostingMonths     = 24
)

// FreeFirstMonthNote accompanies the support plan line.
const FreeFirstMonthNote = "Primer mes gratis"

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// Selection is what the client picked.
type Selection struct {
	Sistema      string   `json:"sistema"`
	Modulos      []string `json:"modulos,omitempty"`
	PlanSoporte  string   `json:"plan_soporte,omitempty"`
	FormaPago    string   `json:"forma_pago,omitempty"`
	Servicios    []string `json:"servicios,omitempty"`
	MesesHosting int      `json:"meses_hosting,omitempty"`
	// Descuentos maps module or service ids to a discount percentage.
	Descuentos map[string]decimal.Decimal `json:"descuentos,omitempty"`
	// DescuentoGeneral replaces the payment method adjustment when set.
	DescuentoGeneral *decimal.Decimal `json:"descuento_general,omitempty"`
	// DescuentoMaximo caps DescuentoGeneral. Nil means no cap below 100.
	DescuentoMaximo *decimal.Decimal `json:"descuento_maximo,omitempty"`
}

// Line is one priced item of the breakdown.
type Line struct {
	ID     string `json:"id"`
	Nombre string `json:"nombre"`
	// Precio is the amount before the line discount.
	Precio              decimal.Decimal `json:"precio"`
	PrecioFinal         decimal.Decimal `json:"precio_final"`
	DescuentoPorcentaje decimal.Decimal `json:"descuento_porcentaje"`
	// Cortesia marks a line discounted 100%.
	Cortesia bool   `json:"cortesia"`
	Etiqueta string `json:"etiqueta,omitempty"`
	Meses    int    `json:"meses,omitempty"`
	// PrecioUnitario is the monthly price of a hosting line.
	PrecioUnitario *decimal.Decimal `json:"precio_unitario,omitempty"`
}

// SupportLine is the monthly plan, reported outside the total.
type SupportLine struct {
	ID            string          `json:"id"`
	Nombre        string          `json:"nombre"`
	PrecioMensual decimal.Decimal `json:"precio_mensual"`
	Nota          string          `json:"nota"`
}

// PaymentLine describes the applied payment adjustment.
type PaymentLine struct {
	ID     string `json:"id"`
	Nombre string `json:"nombre"`
}

// Breakdown is the full result of a calculation. The PDF is rendered from it alone.
type Breakdown struct {
	Sistema           Line            `json:"sistema"`
	Desde             bool            `json:"desde"`
	Modulos           []Line          `json:"modulos"`
	Servicios         []Line          `json:"servicios"`
	SubtotalSistema   decimal.Decimal `json:"subtotal_sistema"`
	SubtotalModulos   decimal.Decimal `json:"subtotal_modulos"`
	SubtotalServicios decimal.Decimal `json:"subtotal_servicios"`
	Subtotal          decimal.Decimal `json:"subtotal"`

	FormaPago           *PaymentLine    `json:"forma_pago,omitempty"`
	DescuentoPorcentaje decimal.Decimal `json:"descuento_porcentaje"`
	Descuento           decimal.Decimal `json:"descuento"`
	// DescuentoManual reports that DescuentoGeneral replaced the payment adjustment.
	DescuentoManual   bool            `json:"descuento_manual"`
	RecargoPorcentaje decimal.Decimal `json:"recargo_porcentaje"`
	Recargo           decimal.Decimal `json:"recargo"`
	Total             decimal.Decimal `json:"total"`

	Soporte *SupportLine `json:"soporte,omitempty"`
}

// Compute prices sel against the catalog. It is pure and deterministic.
func Compute(sel Selection, cat *Catalog) (*Breakdown, error) {
	if sel.Sistema == "" {
		return nil, apperrors.MissingField("sistema")
	}
	tier, err := cat.Tier(sel.Sistema)
	if err != nil {
		return nil, err
	}

	b := &Breakdown{
		Sistema: Line{
			ID:                  tier.ID,
			Nombre:              tier.Nombre,
			Precio:              tier.Precio,
			PrecioFinal:         tier.Precio,
			DescuentoPorcentaje: zero,
		},
		Desde:             tier.Desde,
		Modulos:           []Line{},
		Servicios:         []Line{},
		SubtotalSistema:   tier.Precio,
		SubtotalModulos:   zero,
		SubtotalServicios: zero,
	}

	seen := make(map[string]bool)
	for _, id := range sel.Modulos {
		if seen["m:"+id] {
			return nil, apperrors.ValidationFailed("duplicate module: " + id)
		}
		seen["m:"+id] = true

		m, err := cat.Module(id)
		if err != nil {
			return nil, err
		}
		line := discountedLine(m.ID, m.Nombre, m.Precio, sel.discountFor(m.ID))
		b.Modulos = append(b.Modulos, line)
		b.SubtotalModulos = b.SubtotalModulos.Add(line.PrecioFinal)
	}

	months := ClampHostingMonths(sel.MesesHosting)
	for _, id := range sel.Servicios {
		if seen["s:"+id] {
			return nil, apperrors.ValidationFailed("duplicate service: " + id)
		}
		seen["s:"+id] = true

		s, err := cat.Service(id)
		if err != nil {
			return nil, err
		}
		base := s.Precio
		var unit *decimal.Decimal
		if s.Mensual {
			monthly := s.Precio
			unit = &monthly
			base = s.Precio.Mul(decimal.NewFromInt(int64(months)))
		}
		line := discountedLine(s.ID, s.Nombre, base, sel.discountFor(s.ID))
		line.Etiqueta = s.Etiqueta
		if s.Mensual {
			line.Meses = months
			line.PrecioUnitario = unit
		}
		b.Servicios = append(b.Servicios, line)
		b.SubtotalServicios = b.SubtotalServicios.Add(line.PrecioFinal)
	}

	b.Subtotal = b.SubtotalSistema.Add(b.SubtotalModulos).Add(b.SubtotalServicios)
	b.DescuentoPorcentaje = zero
	b.RecargoPorcentaje = zero

	if sel.FormaPago != "" {
		pm, err := cat.PaymentMethod(sel.FormaPago)
		if err != nil {
			return nil, err
		}
		b.FormaPago = &PaymentLine{ID: pm.ID, Nombre: pm.Nombre}
		b.DescuentoPorcentaje = ClampPercent(pm.Descuento)
		b.RecargoPorcentaje = ClampPercent(pm.Recargo)
	}

	if sel.DescuentoGeneral != nil {
		ceiling := hundred
		if sel.DescuentoMaximo != nil {
			ceiling = ClampPercent(*sel.DescuentoMaximo)
		}
		b.DescuentoPorcentaje = clamp(*sel.DescuentoGeneral, zero, ceiling)
		b.RecargoPorcentaje = zero
		b.DescuentoManual = true
	}

	b.Descuento = percentOf(b.Subtotal, b.DescuentoPorcentaje)
	b.Recargo = percentOf(b.Subtotal, b.RecargoPorcentaje)
	b.Total = b.Subtotal.Sub(b.Descuento).Add(b.Recargo)

	if sel.PlanSoporte != "" {
		plan, err := cat.Plan(sel.PlanSoporte)
		if err != nil {
			return nil, err
		}
		b.Soporte = &SupportLine{
			ID:            plan.ID,
			Nombre:        plan.Nombre,
			PrecioMensual: plan.PrecioMensual,
			Nota:          FreeFirstMonthNote,
		}
	}

	return b, nil
}

func (s Selection) discountFor(id string) decimal.Decimal {
	pct, ok := s.Descuentos[id]
	if !ok {
		return zero
	}
	return ClampPercent(pct)
}

func discountedLine(id, nombre string, base, pct decimal.Decimal) Line {
	final := base.Sub(percentOf(base, pct))
	return Line{
		ID:                  id,
		Nombre:              nombre,
		Precio:              base,
		PrecioFinal:         final,
		DescuentoPorcentaje: pct,
		Cortesia:            pct.Equal(hundred),
	}
}

// percentOf returns pct% of amount rounded to whole units.
func percentOf(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(hundred).Round(0)
}

// ClampPercent bounds p to [0, 100].
func ClampPercent(p decimal.Decimal) decimal.Decimal {
	return clamp(p, zero, hundred)
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}

// ClampHostingMonths applies the default and bounds for hosting months.
func ClampHostingMonths(m int) int {
	switch {
	case m == 0:
		return DefaultHostingMonths
	case m < MinHostingMonths:
		return MinHostingMonths
	case m > MaxHostingMonths:
		return MaxHostingMonths
	}
	return m
}
