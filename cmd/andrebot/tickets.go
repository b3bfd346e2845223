package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/andresdev/backstage/internal/chatflow"
	"github.com/andresdev/backstage/internal/domain"
)

func newTicketsCmd(a *app) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "tickets",
		Short: "Lista los tickets creados con un correo",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			email = domain.NormalizeEmail(email)
			if !domain.IsValidEmail(email) {
				return fmt.Errorf("invalid email %q", email)
			}
			refs, err := a.client.ListTickets(cmd.Context(), email)
			if err != nil {
				return err
			}
			links := chatflow.Links{TicketBaseURL: a.serverURL() + "/soporte/tickets"}
			return printTickets(cmd.OutOrStdout(), email, refs, links)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "correo con el que se crearon los tickets")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func printTickets(w io.Writer, email string, refs []domain.TicketRef, links chatflow.Links) error {
	if len(refs) == 0 {
		_, err := fmt.Fprintf(w, "No hay tickets para %s\n", email)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TICKET\tESTADO\tTÍTULO\tENLACE")
	for _, r := range refs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			orDash(r.SupportID), orDash(r.EstadoLabel), orDash(r.Titulo), links.TicketURL(r))
	}
	return tw.Flush()
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
