package quote

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"
)

// Document carries the header data printed around a Breakdown.
type Document struct {
	Numero       string
	Cliente      string
	ClienteEmail string
	Empresa      string
	EmpresaEmail string
	EmpresaTel   string
	Emitida      time.Time
	ValidezDias  int
	Notas        string
}

const (
	pageMargin = 15.0
	lineHeight = 7.0
	colName    = 110.0
	colPct     = 25.0
	colAmount  = 45.0
)

type rgb struct{ r, g, b int }

var (
	inkColor    = rgb{33, 37, 41}
	mutedColor  = rgb{108, 117, 125}
	accentColor = rgb{13, 110, 253}
	bandColor   = rgb{233, 236, 239}
)

// RenderPDF writes the quote document for b to w. Only b and doc are read.
func RenderPDF(w io.Writer, b *Breakdown, doc Document) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, 20)
	pdf.SetTitle(tr("Cotización "+doc.Numero), false)
	pdf.SetAuthor(tr(doc.Empresa), false)
	if !doc.Emitida.IsZero() {
		pdf.SetCreationDate(doc.Emitida)
	}
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "", 8)
		setText(pdf, mutedColor)
		pdf.CellFormat(0, 5, tr(fmt.Sprintf("%s · Página %d", doc.Empresa, pdf.PageNo())), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	writeHeader(pdf, tr, doc)

	section(pdf, tr, "Sistema")
	sistema := b.Sistema
	if b.Desde {
		sistema.Nombre += " (desde)"
	}
	row(pdf, tr, sistema)

	if len(b.Modulos) > 0 {
		section(pdf, tr, "Módulos adicionales")
		for _, l := range b.Modulos {
			row(pdf, tr, l)
		}
	}

	if len(b.Servicios) > 0 {
		section(pdf, tr, "Servicios")
		for _, l := range b.Servicios {
			row(pdf, tr, l)
		}
	}

	pdf.Ln(4)
	total(pdf, tr, "Subtotal", FormatMoney(b.Subtotal), false)
	if b.Descuento.IsPositive() {
		label := "Descuento " + FormatPercent(b.DescuentoPorcentaje)
		if b.FormaPago != nil && !b.DescuentoManual {
			label += " (" + b.FormaPago.Nombre + ")"
		}
		total(pdf, tr, label, "-"+FormatMoney(b.Descuento), false)
	}
	if b.Recargo.IsPositive() {
		label := "Recargo " + FormatPercent(b.RecargoPorcentaje)
		if b.FormaPago != nil {
			label += " (" + b.FormaPago.Nombre + ")"
		}
		total(pdf, tr, label, FormatMoney(b.Recargo), false)
	}
	total(pdf, tr, "Total", FormatMoney(b.Total), true)

	if b.FormaPago != nil {
		pdf.Ln(2)
		pdf.SetFont("Helvetica", "", 9)
		setText(pdf, mutedColor)
		pdf.CellFormat(0, 5, tr("Forma de pago: "+b.FormaPago.Nombre), "", 1, "R", false, 0, "")
	}

	if b.Soporte != nil {
		section(pdf, tr, "Plan de soporte mensual")
		pdf.SetFont("Helvetica", "", 10)
		setText(pdf, inkColor)
		pdf.CellFormat(colName+colPct, lineHeight, tr(b.Soporte.Nombre+" · "+b.Soporte.Nota), "", 0, "L", false, 0, "")
		pdf.CellFormat(colAmount, lineHeight, tr(FormatMoney(b.Soporte.PrecioMensual)+" / mes"), "", 1, "R", false, 0, "")
		pdf.SetFont("Helvetica", "I", 8)
		setText(pdf, mutedColor)
		pdf.CellFormat(0, 5, tr("El plan de soporte no está incluido en el total."), "", 1, "L", false, 0, "")
	}

	writeTerms(pdf, tr, doc)

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("failed to build pdf: %w", err)
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to write pdf: %w", err)
	}
	return nil
}

func writeHeader(pdf *fpdf.Fpdf, tr func(string) string, doc Document) {
	pdf.SetFont("Helvetica", "B", 18)
	setText(pdf, accentColor)
	pdf.CellFormat(0, 10, tr(doc.Empresa), "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	setText(pdf, mutedColor)
	contact := strings.Join(nonEmpty(doc.EmpresaEmail, doc.EmpresaTel), " · ")
	if contact != "" {
		pdf.CellFormat(0, 5, tr(contact), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 14)
	setText(pdf, inkColor)
	title := "Cotización"
	if doc.Numero != "" {
		title += " " + doc.Numero
	}
	pdf.CellFormat(0, 8, tr(title), "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	if doc.Cliente != "" || doc.ClienteEmail != "" {
		pdf.CellFormat(0, 6, tr("Cliente: "+strings.Join(nonEmpty(doc.Cliente, doc.ClienteEmail), " · ")), "", 1, "L", false, 0, "")
	}
	if !doc.Emitida.IsZero() {
		pdf.CellFormat(0, 6, tr("Fecha: "+doc.Emitida.Format("02/01/2006")), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func writeTerms(pdf *fpdf.Fpdf, tr func(string) string, doc Document) {
	pdf.Ln(6)
	pdf.SetFont("Helvetica", "", 9)
	setText(pdf, mutedColor)

	var terms []string
	if doc.ValidezDias > 0 {
		validity := fmt.Sprintf("Esta cotización es válida por %d días", doc.ValidezDias)
		if !doc.Emitida.IsZero() {
			validity += ", hasta el " + doc.Emitida.AddDate(0, 0, doc.ValidezDias).Format("02/01/2006")
		}
		terms = append(terms, validity+".")
	}
	terms = append(terms, "Valores en pesos colombianos (COP).")
	if doc.Notas != "" {
		terms = append(terms, doc.Notas)
	}
	pdf.MultiCell(0, 5, tr(strings.Join(terms, "\n")), "", "L", false)
}

func section(pdf *fpdf.Fpdf, tr func(string) string, title string) {
	pdf.Ln(2)
	pdf.SetFont("Helvetica", "B", 11)
	setText(pdf, inkColor)
	pdf.SetFillColor(bandColor.r, bandColor.g, bandColor.b)
	pdf.CellFormat(0, lineHeight, tr(title), "", 1, "L", true, 0, "")
}

func row(pdf *fpdf.Fpdf, tr func(string) string, l Line) {
	name := l.Nombre
	switch {
	case l.Meses > 0 && l.PrecioUnitario != nil:
		name += fmt.Sprintf(" (%d meses x %s)", l.Meses, FormatMoney(*l.PrecioUnitario))
	case l.Etiqueta != "":
		name += " (" + l.Etiqueta + ")"
	}

	pdf.SetFont("Helvetica", "", 10)
	setText(pdf, inkColor)
	pdf.CellFormat(colName, lineHeight, tr(name), "", 0, "L", false, 0, "")

	var pct string
	switch {
	case l.Cortesia:
		pct = "Cortesía"
	case l.DescuentoPorcentaje.GreaterThan(decimal.Zero):
		pct = "-" + FormatPercent(l.DescuentoPorcentaje)
	}
	setText(pdf, mutedColor)
	pdf.CellFormat(colPct, lineHeight, tr(pct), "", 0, "C", false, 0, "")

	setText(pdf, inkColor)
	amount := FormatMoney(l.PrecioFinal)
	if !l.Precio.Equal(l.PrecioFinal) {
		amount = FormatMoney(l.PrecioFinal) + " (antes " + FormatMoney(l.Precio) + ")"
		pdf.SetFont("Helvetica", "", 8)
	}
	pdf.CellFormat(colAmount, lineHeight, tr(amount), "", 1, "R", false, 0, "")
}

func total(pdf *fpdf.Fpdf, tr func(string) string, label, amount string, strong bool) {
	style := ""
	if strong {
		style = "B"
		pdf.SetDrawColor(inkColor.r, inkColor.g, inkColor.b)
	}
	pdf.SetFont("Helvetica", style, 11)
	setText(pdf, inkColor)
	border := ""
	if strong {
		border = "T"
	}
	pdf.CellFormat(colName+colPct, lineHeight, tr(label), border, 0, "R", false, 0, "")
	pdf.CellFormat(colAmount, lineHeight, tr(amount), border, 1, "R", false, 0, "")
}

func setText(pdf *fpdf.Fpdf, c rgb) {
	pdf.SetTextColor(c.r, c.g, c.b)
}

func nonEmpty(values ...string) []string {
	out := values[:0]
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
