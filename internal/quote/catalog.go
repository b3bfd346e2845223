// Package quote computes commercial quotes over the studio catalog and
// renders them as PDF documents.
package quote

import (
	"github.com/shopspring/decimal"

	apperrors "github.com/andresdev/backstage/internal/errors"
)

// Tier is a base system package.
type Tier struct {
	ID          string          `json:"id"`
	Nombre      string          `json:"nombre"`
	Descripcion string          `json:"descripcion"`
	Precio      decimal.Decimal `json:"precio"`
	// Desde marks a "starting from" price.
	Desde bool `json:"desde"`
}

// Module is an add-on for the base system.
type Module struct {
	ID          string          `json:"id"`
	Nombre      string          `json:"nombre"`
	Descripcion string          `json:"descripcion"`
	Precio      decimal.Decimal `json:"precio"`
}

// SupportPlan is a monthly support subscription. It is never part of the total.
type SupportPlan struct {
	ID            string          `json:"id"`
	Nombre        string          `json:"nombre"`
	Descripcion   string          `json:"descripcion"`
	PrecioMensual decimal.Decimal `json:"precio_mensual"`
}

// PaymentMethod adjusts the subtotal by a discount or a surcharge percentage.
type PaymentMethod struct {
	ID          string          `json:"id"`
	Nombre      string          `json:"nombre"`
	Descripcion string          `json:"descripcion"`
	Descuento   decimal.Decimal `json:"descuento"`
	Recargo     decimal.Decimal `json:"recargo"`
}

// Service is an extra service. Monthly services are multiplied by the hosting months.
type Service struct {
	ID          string          `json:"id"`
	Nombre      string          `json:"nombre"`
	Descripcion string          `json:"descripcion"`
	Precio      decimal.Decimal `json:"precio"`
	Mensual     bool            `json:"mensual"`
	// Etiqueta is a display-only period label such as "anual".
	Etiqueta string `json:"etiqueta,omitempty"`
}

// Catalog is the static price list.
type Catalog struct {
	Sistemas   []Tier          `json:"sistemas"`
	Modulos    []Module        `json:"modulos"`
	Planes     []SupportPlan   `json:"planes_soporte"`
	FormasPago []PaymentMethod `json:"formas_pago"`
	Servicios  []Service       `json:"servicios"`
}

// HostingServiceID is the service priced per month.
const HostingServiceID = "hosting"

func price(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// DefaultCatalog returns the studio price list in COP.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Sistemas: []Tier{
			{ID: "basico", Nombre: "Sistema Básico", Descripcion: "Ventas, inventario simple y reportes diarios para un punto de venta.", Precio: price(4_500_000)},
			{ID: "profesional", Nombre: "Sistema Profesional", Descripcion: "Múltiples usuarios y bodegas, roles y reportes avanzados.", Precio: price(8_000_000)},
			{ID: "empresarial", Nombre: "Sistema Empresarial", Descripcion: "Desarrollo a la medida para varias sedes e integraciones.", Precio: price(15_000_000), Desde: true},
		},
		Modulos: []Module{
			{ID: "inventario", Nombre: "Inventario avanzado", Descripcion: "Lotes, vencimientos, traslados entre bodegas.", Precio: price(1_500_000)},
			{ID: "facturacion", Nombre: "Facturación electrónica", Descripcion: "Emisión y envío de facturas electrónicas a la DIAN.", Precio: price(2_000_000)},
			{ID: "reportes", Nombre: "Reportes y tableros", Descripcion: "Tableros de ventas, márgenes y rotación.", Precio: price(1_200_000)},
			{ID: "tienda_online", Nombre: "Tienda online", Descripcion: "Catálogo web sincronizado con el inventario.", Precio: price(3_500_000)},
			{ID: "nomina", Nombre: "Nómina", Descripcion: "Liquidación de nómina y nómina electrónica.", Precio: price(2_500_000)},
			{ID: "crm", Nombre: "CRM", Descripcion: "Clientes, seguimiento comercial y campañas.", Precio: price(1_800_000)},
		},
		Planes: []SupportPlan{
			{ID: "basico", Nombre: "Soporte Básico", Descripcion: "Atención por chat en horario laboral.", PrecioMensual: price(250_000)},
			{ID: "estandar", Nombre: "Soporte Estándar", Descripcion: "Chat y llamada, respuesta en 8 horas hábiles.", PrecioMensual: price(450_000)},
			{ID: "premium", Nombre: "Soporte Premium", Descripcion: "Atención prioritaria todos los días.", PrecioMensual: price(800_000)},
		},
		FormasPago: []PaymentMethod{
			{ID: "contado", Nombre: "Contado", Descripcion: "Pago único al firmar.", Descuento: price(10)},
			{ID: "dos_pagos", Nombre: "Dos pagos", Descripcion: "50% al iniciar y 50% al entregar."},
			{ID: "tres_pagos", Nombre: "Tres pagos", Descripcion: "Tres cuotas durante el desarrollo.", Recargo: price(5)},
			{ID: "financiado", Nombre: "Financiado", Descripcion: "Hasta doce cuotas mensuales.", Recargo: price(8)},
		},
		Servicios: []Service{
			{ID: HostingServiceID, Nombre: "Hosting administrado", Descripcion: "Servidor, copias de seguridad y monitoreo.", Precio: price(150_000), Mensual: true},
			{ID: "dominio", Nombre: "Dominio", Descripcion: "Registro y renovación del dominio.", Precio: price(90_000), Etiqueta: "anual"},
			{ID: "ssl", Nombre: "Certificado SSL", Descripcion: "Certificado de seguridad para el sitio.", Precio: price(120_000), Etiqueta: "anual"},
			{ID: "capacitacion", Nombre: "Capacitación", Descripcion: "Dos sesiones para el equipo.", Precio: price(600_000)},
			{ID: "migracion", Nombre: "Migración de datos", Descripcion: "Importación desde el sistema anterior.", Precio: price(1_200_000)},
		},
	}
}

// Tier returns the base system with id.
func (c *Catalog) Tier(id string) (*Tier, error) {
	for i := range c.Sistemas {
		if c.Sistemas[i].ID == id {
			return &c.Sistemas[i], nil
		}
	}
	return nil, apperrors.UnknownItem("sistema", id)
}

// Module returns the add-on module with id.
func (c *Catalog) Module(id string) (*Module, error) {
	for i := range c.Modulos {
		if c.Modulos[i].ID == id {
			return &c.Modulos[i], nil
		}
	}
	return nil, apperrors.UnknownItem("modulo", id)
}

// Plan returns the support plan with id.
func (c *Catalog) Plan(id string) (*SupportPlan, error) {
	for i := range c.Planes {
		if c.Planes[i].ID == id {
			return &c.Planes[i], nil
		}
	}
	return nil, apperrors.UnknownItem("plan_soporte", id)
}

// PaymentMethod returns the payment method with id.
func (c *Catalog) PaymentMethod(id string) (*PaymentMethod, error) {
	for i := range c.FormasPago {
		if c.FormasPago[i].ID == id {
			return &c.FormasPago[i], nil
		}
	}
	return nil, apperrors.UnknownItem("forma_pago", id)
}

// Service returns the extra service with id.
func (c *Catalog) Service(id string) (*Service, error) {
	for i := range c.Servicios {
		if c.Servicios[i].ID == id {
			return &c.Servicios[i], nil
		}
	}
	return nil, apperrors.UnknownItem("servicio", id)
}
