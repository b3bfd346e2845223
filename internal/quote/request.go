package quote

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// discountSuffix marks a top-level per-line discount override, as in
// {"inventarioDescuento": 100}.
const discountSuffix = "Descuento"

// Request is the body of a quote document request. Line discounts arrive in
// descuentos, as "<id>Descuento" keys, or both; the keyed form wins.
type Request struct {
	Cliente          string                     `json:"cliente"`
	ClienteEmail     string                     `json:"clienteEmail,omitempty"`
	Notas            string                     `json:"notas,omitempty"`
	Guardar          bool                       `json:"guardar,omitempty"`
	SistemaBaseID    string                     `json:"sistemaBaseId"`
	ModulosIDs       []string                   `json:"modulosIds,omitempty"`
	PlanSoporteID    string                     `json:"planSoporteId,omitempty"`
	FormaPagoID      string                     `json:"formaPagoId,omitempty"`
	ServiciosIDs     []string                   `json:"serviciosIds,omitempty"`
	MesesHosting     int                        `json:"mesesHosting,omitempty"`
	Descuentos       map[string]decimal.Decimal `json:"descuentos,omitempty"`
	DescuentoGeneral *decimal.Decimal           `json:"descuentoGeneral,omitempty"`
	DescuentoMaximo  *decimal.Decimal           `json:"descuentoMaximo,omitempty"`
}

// RequestFor fills the selection fields of a Request from sel.
func RequestFor(sel Selection) Request {
	return Request{
		SistemaBaseID:    sel.Sistema,
		ModulosIDs:       sel.Modulos,
		PlanSoporteID:    sel.PlanSoporte,
		FormaPagoID:      sel.FormaPago,
		ServiciosIDs:     sel.Servicios,
		MesesHosting:     sel.MesesHosting,
		Descuentos:       sel.Descuentos,
		DescuentoGeneral: sel.DescuentoGeneral,
		DescuentoMaximo:  sel.DescuentoMaximo,
	}
}

// Selection returns what the request asks to price.
func (r Request) Selection() Selection {
	return Selection{
		Sistema:          r.SistemaBaseID,
		Modulos:          r.ModulosIDs,
		PlanSoporte:      r.PlanSoporteID,
		FormaPago:        r.FormaPagoID,
		Servicios:        r.ServiciosIDs,
		MesesHosting:     r.MesesHosting,
		Descuentos:       r.Descuentos,
		DescuentoGeneral: r.DescuentoGeneral,
		DescuentoMaximo:  r.DescuentoMaximo,
	}
}

// UnmarshalJSON decodes the declared fields and folds every "<id>Descuento"
// key into Descuentos.
func (r *Request) UnmarshalJSON(data []byte) error {
	type plain Request
	if err := json.Unmarshal(data, (*plain)(r)); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key, val := range raw {
		id, ok := strings.CutSuffix(key, discountSuffix)
		if !ok || id == "" || string(val) == "null" {
			continue
		}
		var pct decimal.Decimal
		if err := json.Unmarshal(val, &pct); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		if r.Descuentos == nil {
			r.Descuentos = make(map[string]decimal.Decimal)
		}
		r.Descuentos[id] = pct
	}
	return nil
}
