// Package chatflow drives the Andrebot support conversation.
//
// The conversation is a single State value moved forward by Flow.Reduce for
// user events and Flow.Apply for the results of backend commands. Both are
// pure; the Engine runs the commands, paces the replies and persists the
// transcript.
package chatflow

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/andresdev/backstage/internal/domain"
)

// State is one logical point of the conversation.
type State interface {
	Name() string
}

// Home offers the entry options.
type Home struct{}

// AwaitingEmail waits for the address used to look the user up.
type AwaitingEmail struct{}

// Ready is an identified conversation waiting for a request.
// Pending holds a ticket whose creation failed and can be retried.
type Ready struct {
	Identity domain.Identity
	Pending  *domain.TicketDraft
}

// Question asks question Step (1..3) of the guided ticket flow.
// Answers holds the preset first answer plus one entry per answered question.
type Question struct {
	Identity domain.Identity
	Branch   Branch
	Step     int
	Answers  []string
}

// AwaitingPriority waits for one of the priority buttons.
type AwaitingPriority struct {
	Identity domain.Identity
	Branch   Branch
	Answers  []string
}

func (Home) Name() string             { return "inicio" }
func (AwaitingEmail) Name() string    { return "esperando_email" }
func (Ready) Name() string            { return "listo" }
func (Question) Name() string         { return "pregunta" }
func (AwaitingPriority) Name() string { return "esperando_prioridad" }

// IdentityOf returns the identity carried by s, if any.
func IdentityOf(s State) (domain.Identity, bool) {
	switch st := s.(type) {
	case Ready:
		return st.Identity, true
	case Question:
		return st.Identity, true
	case AwaitingPriority:
		return st.Identity, true
	}
	return domain.Identity{}, false
}

// Branch selects the question wording and description labels.
type Branch string

const (
	BranchError       Branch = "error"
	BranchImprovement Branch = "mejora"
)

// IsValid reports whether b is a known branch.
func (b Branch) IsValid() bool {
	return b == BranchError || b == BranchImprovement
}

// Label is the button text for the branch.
func (b Branch) Label() string {
	if b == BranchImprovement {
		return "Mejora en el sistema"
	}
	return "Error en el sistema"
}

// Conversation is the state plus the transcript and its persistence cursor.
type Conversation struct {
	State    State
	Messages []domain.ChatMessage
	// SessionID links the transcript to a persisted chat.
	SessionID *uuid.UUID
	// Flushed counts the messages already persisted.
	Flushed int
}

// Pending returns the messages not yet persisted.
func (c *Conversation) Pending() []domain.ChatMessage {
	if c.Flushed >= len(c.Messages) {
		return nil
	}
	return c.Messages[c.Flushed:]
}

type stateJSON struct {
	Tipo       string              `json:"tipo"`
	Identidad  *domain.Identity    `json:"identidad,omitempty"`
	Rama       Branch              `json:"rama,omitempty"`
	Paso       int                 `json:"paso,omitempty"`
	Respuestas []string            `json:"respuestas,omitempty"`
	Pendiente  *domain.TicketDraft `json:"pendiente,omitempty"`
}

type conversationJSON struct {
	Estado    stateJSON            `json:"estado"`
	Mensajes  []domain.ChatMessage `json:"mensajes"`
	SessionID *uuid.UUID           `json:"session_id,omitempty"`
	Flushed   int                  `json:"flushed"`
}

// MarshalJSON encodes the conversation with a tagged state.
func (c Conversation) MarshalJSON() ([]byte, error) {
	out := conversationJSON{
		Mensajes:  c.Messages,
		SessionID: c.SessionID,
		Flushed:   c.Flushed,
	}
	if out.Mensajes == nil {
		out.Mensajes = []domain.ChatMessage{}
	}

	state := c.State
	if state == nil {
		state = Home{}
	}
	out.Estado.Tipo = state.Name()
	switch st := state.(type) {
	case Ready:
		out.Estado.Identidad = &st.Identity
		out.Estado.Pendiente = st.Pending
	case Question:
		out.Estado.Identidad = &st.Identity
		out.Estado.Rama = st.Branch
		out.Estado.Paso = st.Step
		out.Estado.Respuestas = st.Answers
	case AwaitingPriority:
		out.Estado.Identidad = &st.Identity
		out.Estado.Rama = st.Branch
		out.Estado.Respuestas = st.Answers
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a conversation produced by MarshalJSON.
func (c *Conversation) UnmarshalJSON(data []byte) error {
	var in conversationJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	var ident domain.Identity
	if in.Estado.Identidad != nil {
		ident = *in.Estado.Identidad
	}

	switch in.Estado.Tipo {
	case "", Home{}.Name():
		c.State = Home{}
	case AwaitingEmail{}.Name():
		c.State = AwaitingEmail{}
	case Ready{}.Name():
		c.State = Ready{Identity: ident, Pending: in.Estado.Pendiente}
	case Question{}.Name():
		if in.Estado.Paso < 1 || in.Estado.Paso > questionCount || len(in.Estado.Respuestas) != in.Estado.Paso {
			return fmt.Errorf("invalid question step %d with %d answers", in.Estado.Paso, len(in.Estado.Respuestas))
		}
		c.State = Question{Identity: ident, Branch: in.Estado.Rama, Step: in.Estado.Paso, Answers: in.Estado.Respuestas}
	case AwaitingPriority{}.Name():
		if len(in.Estado.Respuestas) != questionCount+1 {
			return fmt.Errorf("invalid answer count %d", len(in.Estado.Respuestas))
		}
		c.State = AwaitingPriority{Identity: ident, Branch: in.Estado.Rama, Answers: in.Estado.Respuestas}
	default:
		return fmt.Errorf("unknown conversation state %q", in.Estado.Tipo)
	}

	if in.Flushed < 0 || in.Flushed > len(in.Mensajes) {
		return fmt.Errorf("flush cursor %d out of range", in.Flushed)
	}
	c.Messages = in.Mensajes
	c.SessionID = in.SessionID
	c.Flushed = in.Flushed
	return nil
}
