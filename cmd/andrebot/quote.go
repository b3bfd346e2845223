package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/andresdev/backstage/internal/ayudaclient"
	"github.com/andresdev/backstage/internal/quote"
)

type quoteOptions struct {
	sistema    string
	modulos    []string
	plan       string
	pago       string
	servicios  []string
	meses      int
	descuento  string
	descuentos map[string]string
	cliente    string
	email      string
	notas      string
	out        string
}

func newQuoteCmd(a *app) *cobra.Command {
	var o quoteOptions

	cmd := &cobra.Command{
		Use:   "cotizar",
		Short: "Calcula una cotización o genera su PDF",
		Long: `Sin --sistema muestra el catálogo. Con --out guarda el PDF de la
cotización en lugar de imprimir el desglose.`,
		Example: `  andrebot cotizar --sistema profesional --modulos inventario --pago contado
  andrebot cotizar --sistema basico --cliente "Ferretería López" --out cotizacion.pdf`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w := cmd.OutOrStdout()

			if o.sistema == "" {
				cat, err := a.client.Catalog(ctx)
				if err != nil {
					return err
				}
				return printCatalog(w, cat)
			}

			sel, err := o.selection()
			if err != nil {
				return err
			}

			if o.out == "" {
				b, err := a.client.Calculate(ctx, sel)
				if err != nil {
					return err
				}
				return printBreakdown(w, b)
			}

			if o.cliente == "" {
				return errors.New("--cliente is required with --out")
			}
			pdf, err := a.client.GenerateQuote(ctx, ayudaclient.QuoteRequest{
				Selection:    sel,
				Cliente:      o.cliente,
				ClienteEmail: o.email,
				Notas:        o.notas,
			})
			if err != nil {
				return err
			}
			if err := os.WriteFile(o.out, pdf, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", o.out, err)
			}
			fmt.Fprintf(w, "Cotización guardada en %s\n", o.out)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.sistema, "sistema", "", "id del sistema base")
	f.StringSliceVar(&o.modulos, "modulos", nil, "ids de módulos adicionales")
	f.StringVar(&o.plan, "plan", "", "id del plan de soporte")
	f.StringVar(&o.pago, "pago", "", "id de la forma de pago")
	f.StringSliceVar(&o.servicios, "servicios", nil, "ids de servicios adicionales")
	f.IntVar(&o.meses, "meses", 0, "meses de hosting (1 a 24)")
	f.StringVar(&o.descuento, "descuento", "", "descuento general en porcentaje")
	f.StringToStringVar(&o.descuentos, "descuento-item", nil, "descuento por módulo o servicio, id=porcentaje")
	f.StringVar(&o.cliente, "cliente", "", "nombre del cliente para el PDF")
	f.StringVar(&o.email, "email", "", "correo del cliente")
	f.StringVar(&o.notas, "notas", "", "notas para el PDF")
	f.StringVarP(&o.out, "out", "o", "", "archivo PDF de salida")
	return cmd
}

func (o quoteOptions) selection() (quote.Selection, error) {
	sel := quote.Selection{
		Sistema:      o.sistema,
		Modulos:      o.modulos,
		PlanSoporte:  o.plan,
		FormaPago:    o.pago,
		Servicios:    o.servicios,
		MesesHosting: o.meses,
	}
	if o.descuento != "" {
		d, err := decimal.NewFromString(o.descuento)
		if err != nil {
			return quote.Selection{}, fmt.Errorf("invalid --descuento %q", o.descuento)
		}
		sel.DescuentoGeneral = &d
	}
	if len(o.descuentos) > 0 {
		sel.Descuentos = make(map[string]decimal.Decimal, len(o.descuentos))
		for id, v := range o.descuentos {
			d, err := decimal.NewFromString(v)
			if err != nil {
				return quote.Selection{}, fmt.Errorf("invalid discount for %s: %q", id, v)
			}
			sel.Descuentos[id] = d
		}
	}
	return sel, nil
}

func printCatalog(w io.Writer, cat *quote.Catalog) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "SISTEMAS\t\t")
	for _, t := range cat.Sistemas {
		price := quote.FormatMoney(t.Precio)
		if t.Desde {
			price = "desde " + price
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", t.ID, t.Nombre, price)
	}
	fmt.Fprintln(tw, "MÓDULOS\t\t")
	for _, m := range cat.Modulos {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", m.ID, m.Nombre, quote.FormatMoney(m.Precio))
	}
	fmt.Fprintln(tw, "SERVICIOS\t\t")
	for _, s := range cat.Servicios {
		price := quote.FormatMoney(s.Precio)
		if s.Mensual {
			price += " / mes"
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", s.ID, s.Nombre, price)
	}
	fmt.Fprintln(tw, "PLANES DE SOPORTE\t\t")
	for _, p := range cat.Planes {
		fmt.Fprintf(tw, "  %s\t%s\t%s / mes\n", p.ID, p.Nombre, quote.FormatMoney(p.PrecioMensual))
	}
	fmt.Fprintln(tw, "FORMAS DE PAGO\t\t")
	for _, p := range cat.FormasPago {
		adj := ""
		switch {
		case p.Descuento.IsPositive():
			adj = "-" + quote.FormatPercent(p.Descuento)
		case p.Recargo.IsPositive():
			adj = "+" + quote.FormatPercent(p.Recargo)
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", p.ID, p.Nombre, adj)
	}
	return tw.Flush()
}

func printBreakdown(w io.Writer, b *quote.Breakdown) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)

	line := func(l quote.Line) {
		label := l.Nombre
		if l.Cortesia {
			label += " (cortesía)"
		} else if l.DescuentoPorcentaje.IsPositive() {
			label += " (-" + quote.FormatPercent(l.DescuentoPorcentaje) + ")"
		}
		if l.Meses > 0 {
			label += fmt.Sprintf(" x %d meses", l.Meses)
		}
		fmt.Fprintf(tw, "%s\t%s\t\n", label, quote.FormatMoney(l.PrecioFinal))
	}

	line(b.Sistema)
	for _, l := range b.Modulos {
		line(l)
	}
	for _, l := range b.Servicios {
		line(l)
	}
	fmt.Fprintf(tw, "Subtotal\t%s\t\n", quote.FormatMoney(b.Subtotal))
	if b.Descuento.IsPositive() {
		fmt.Fprintf(tw, "Descuento (%s)\t-%s\t\n", quote.FormatPercent(b.DescuentoPorcentaje), quote.FormatMoney(b.Descuento))
	}
	if b.Recargo.IsPositive() {
		fmt.Fprintf(tw, "Recargo (%s)\t+%s\t\n", quote.FormatPercent(b.RecargoPorcentaje), quote.FormatMoney(b.Recargo))
	}
	fmt.Fprintf(tw, "Total\t%s\t\n", quote.FormatMoney(b.Total))
	if b.Soporte != nil {
		fmt.Fprintf(tw, "%s (%s)\t%s / mes\t\n", b.Soporte.Nombre, b.Soporte.Nota, quote.FormatMoney(b.Soporte.PrecioMensual))
	}
	return tw.Flush()
}
