package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who wrote a chat message.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Action tags a bot message with the affordance the client should render next.
type Action string

const (
	ActionRequestTicket     Action = "solicitar_ticket"
	ActionRequestQuote      Action = "solicitar_cotizacion"
	ActionChooseSupportType Action = "elegir_tipo_soporte"
	ActionChooseModule      Action = "elegir_modulo"
	ActionChoosePriority    Action = "elegir_prioridad"
)

var validActions = map[Action]bool{
	ActionRequestTicket:     true,
	ActionRequestQuote:      true,
	ActionChooseSupportType: true,
	ActionChooseModule:      true,
	ActionChoosePriority:    true,
}

// IsValid reports whether a is empty or one of the known actions.
func (a Action) IsValid() bool {
	return a == "" || validActions[a]
}

// Branding is the store identity shown next to bot messages once the user is identified.
type Branding struct {
	Nombre  string `json:"nombre,omitempty"`
	LogoURL string `json:"logo_url,omitempty"`
}

// ChatMessage is one entry of a chat transcript. Messages are never edited.
type ChatMessage struct {
	Role      Role        `json:"role"`
	Text      string      `json:"text"`
	Action    Action      `json:"action,omitempty"`
	ImageURL  string      `json:"image_url,omitempty"`
	Tickets   []TicketRef `json:"tickets,omitempty"`
	Branding  *Branding   `json:"branding,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// ChatSession is a persisted conversation between a user and Andrebot.
type ChatSession struct {
	ID              uuid.UUID     `json:"id"`
	ProyectoID      *uuid.UUID    `json:"proyecto_id,omitempty"`
	CreadoPorEmail  string        `json:"creado_por_email"`
	CreadoPorNombre string        `json:"creado_por_nombre"`
	Messages        []ChatMessage `json:"messages"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// NewChatSession creates an empty session for an identified user.
func NewChatSession(email, nombre string, proyectoID *uuid.UUID, now time.Time) *ChatSession {
	return &ChatSession{
		ID:              uuid.New(),
		ProyectoID:      proyectoID,
		CreadoPorEmail:  NormalizeEmail(email),
		CreadoPorNombre: nombre,
		Messages:        []ChatMessage{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// ChatSummary is a console list row.
type ChatSummary struct {
	ID              uuid.UUID  `json:"id"`
	ProyectoID      *uuid.UUID `json:"proyecto_id,omitempty"`
	CreadoPorEmail  string     `json:"creado_por_email"`
	CreadoPorNombre string     `json:"creado_por_nombre"`
	MessageCount    int        `json:"message_count"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
