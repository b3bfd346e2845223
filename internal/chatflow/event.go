package chatflow

import (
	"github.com/andresdev/backstage/internal/domain"
)

// EventType names a user interaction.
type EventType string

const (
	EventChoose        EventType = "elegir"
	EventText          EventType = "texto"
	EventImage         EventType = "imagen"
	EventSupportKind   EventType = "tipo_soporte"
	EventPriority      EventType = "prioridad"
	EventRequestTicket EventType = "solicitar_ticket"
	EventReset         EventType = "reiniciar"
)

// Home options.
const (
	OptionSupport  = "soporte"
	OptionQuote    = "cotizar"
	OptionServices = "servicios"
)

// Event is a user interaction. Value carries the text, option, image URL,
// branch or priority id depending on Type.
type Event struct {
	Type  EventType `json:"tipo"`
	Value string    `json:"valor,omitempty"`
}

func Choose(option string) Event             { return Event{Type: EventChoose, Value: option} }
func Text(text string) Event                 { return Event{Type: EventText, Value: text} }
func Image(url string) Event                 { return Event{Type: EventImage, Value: url} }
func SupportKind(b Branch) Event             { return Event{Type: EventSupportKind, Value: string(b)} }
func SelectPriority(p domain.Priority) Event { return Event{Type: EventPriority, Value: string(p)} }
func RequestTicket() Event                   { return Event{Type: EventRequestTicket} }
func Reset() Event                           { return Event{Type: EventReset} }

// Command is a side effect requested by the flow.
type Command interface {
	command()
}

// Identify looks the email up in the tenant directory.
type Identify struct {
	Email string
}

// CreateTicket opens a ticket from the assembled draft.
type CreateTicket struct {
	Draft domain.TicketDraft
}

func (Identify) command()     {}
func (CreateTicket) command() {}

// Result is the outcome of a Command fed back into the flow.
type Result interface {
	result()
}

// Identified carries a completed lookup. Identity.Found is false when the
// email is not registered.
type Identified struct {
	Identity domain.Identity
	Tickets  []domain.TicketRef
}

// IdentifyFailed reports a lookup that could not complete.
type IdentifyFailed struct {
	Err error
}

// TicketCreated carries the reference of the new ticket.
type TicketCreated struct {
	Ref domain.TicketRef
}

// TicketFailed reports a ticket that could not be created.
type TicketFailed struct {
	Err error
}

func (Identified) result()     {}
func (IdentifyFailed) result() {}
func (TicketCreated) result()  {}
func (TicketFailed) result()   {}

// Transition is the outcome of one reducer step.
type Transition struct {
	State    State
	Messages []domain.ChatMessage
	Command  Command
	// Reset drops the transcript and the session linkage before Messages are appended.
	Reset bool
}
