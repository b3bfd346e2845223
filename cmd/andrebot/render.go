package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/andresdev/backstage/internal/chatflow"
	"github.com/andresdev/backstage/internal/domain"
)

// menuOption is a numbered choice offered after a bot prompt.
type menuOption struct {
	Label string
	Event chatflow.Event
}

// menuFor returns the choices the conversation currently accepts as numbers.
func menuFor(conv *chatflow.Conversation) []menuOption {
	switch conv.State.(type) {
	case nil, chatflow.Home:
		return []menuOption{
			{"Soporte", chatflow.Choose(chatflow.OptionSupport)},
			{"Cotizar un sistema", chatflow.Choose(chatflow.OptionQuote)},
			{"Servicios", chatflow.Choose(chatflow.OptionServices)},
		}
	case chatflow.AwaitingPriority:
		opts := make([]menuOption, 0, len(domain.Priorities))
		for _, p := range domain.Priorities {
			opts = append(opts, menuOption{p.Label(), chatflow.SelectPriority(p)})
		}
		return opts
	case chatflow.Ready:
		switch lastBotAction(conv.Messages) {
		case domain.ActionChooseSupportType:
			return []menuOption{
				{chatflow.BranchError.Label(), chatflow.SupportKind(chatflow.BranchError)},
				{chatflow.BranchImprovement.Label(), chatflow.SupportKind(chatflow.BranchImprovement)},
			}
		case domain.ActionRequestTicket:
			return []menuOption{{"Crear ticket", chatflow.RequestTicket()}}
		}
	}
	return nil
}

// lastBotAction returns the latest action of the bot's most recent turn.
func lastBotAction(msgs []domain.ChatMessage) domain.Action {
	for i := len(msgs) - 1; i >= 0 && msgs[i].Role == domain.RoleBot; i-- {
		if msgs[i].Action != "" {
			return msgs[i].Action
		}
	}
	return ""
}

// inputKind classifies a line typed in the chat prompt.
type inputKind int

const (
	inputEvent inputKind = iota
	inputImage
	inputNew
	inputHelp
	inputQuit
	inputEmpty
)

// parseInput turns a typed line into an event. For inputImage the second
// value is the file path.
func parseInput(conv *chatflow.Conversation, line string) (inputKind, chatflow.Event, string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return inputEmpty, chatflow.Event{}, ""
	}

	if strings.HasPrefix(line, "/") {
		cmd, arg, _ := strings.Cut(line, " ")
		switch strings.ToLower(cmd) {
		case "/imagen":
			return inputImage, chatflow.Event{}, strings.TrimSpace(arg)
		case "/nuevo":
			return inputNew, chatflow.Reset(), ""
		case "/ticket":
			return inputEvent, chatflow.RequestTicket(), ""
		case "/ayuda":
			return inputHelp, chatflow.Event{}, ""
		case "/salir":
			return inputQuit, chatflow.Event{}, ""
		}
	}

	if n, err := strconv.Atoi(line); err == nil {
		if opts := menuFor(conv); n >= 1 && n <= len(opts) {
			return inputEvent, opts[n-1].Event, ""
		}
	}
	return inputEvent, chatflow.Text(line), ""
}

const chatHelp = `Comandos:
  /imagen <ruta>  adjunta una captura
  /ticket         crea un ticket
  /nuevo          empieza una conversación nueva
  /salir          termina (la conversación queda guardada)
`

// printMessages writes bot messages, or every message when all is set.
func printMessages(w io.Writer, msgs []domain.ChatMessage, all bool) {
	for _, m := range msgs {
		if m.Role == domain.RoleUser && !all {
			continue
		}
		printMessage(w, m)
	}
}

func printMessage(w io.Writer, m domain.ChatMessage) {
	speaker := "Tú"
	if m.Role == domain.RoleBot {
		speaker = "Andrebot"
		if m.Branding != nil && m.Branding.Nombre != "" {
			speaker += " · " + m.Branding.Nombre
		}
	}
	fmt.Fprintf(w, "%s: %s\n", speaker, m.Text)
	if m.ImageURL != "" {
		fmt.Fprintf(w, "    [imagen] %s\n", m.ImageURL)
	}
	for _, t := range m.Tickets {
		fmt.Fprintf(w, "    • %s\n", ticketLine(t))
	}
}

func printMenu(w io.Writer, opts []menuOption) {
	for i, o := range opts {
		fmt.Fprintf(w, "  [%d] %s\n", i+1, o.Label)
	}
}

func ticketLine(t domain.TicketRef) string {
	parts := []string{}
	if t.SupportID != "" {
		parts = append(parts, t.SupportID)
	}
	if t.EstadoLabel != "" {
		parts = append(parts, t.EstadoLabel)
	}
	if t.Titulo != "" {
		parts = append(parts, t.Titulo)
	}
	if len(parts) == 0 {
		return t.ID.String()
	}
	return strings.Join(parts, " · ")
}
