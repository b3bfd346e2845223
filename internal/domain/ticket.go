// Package domain contains the core business entities and repository interfaces.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TicketState is a support ticket lifecycle state.
type TicketState string

// Lifecycle states in display order.
const (
	TicketStateCreated     TicketState = "creado"
	TicketStateReplicating TicketState = "replicando"
	TicketStateAdjusting   TicketState = "ajustando"
	TicketStateTesting     TicketState = "probando"
	TicketStateDeploying   TicketState = "desplegando"
	TicketStateResolved    TicketState = "resuelto"
)

// TicketStates lists every state in lifecycle order.
var TicketStates = []TicketState{
	TicketStateCreated,
	TicketStateReplicating,
	TicketStateAdjusting,
	TicketStateTesting,
	TicketStateDeploying,
	TicketStateResolved,
}

// Style is the console presentation of an enum value.
type Style struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

var ticketStateStyles = map[TicketState]Style{
	TicketStateCreated:     {Label: "Creado", Color: "slate"},
	TicketStateReplicating: {Label: "Replicando", Color: "amber"},
	TicketStateAdjusting:   {Label: "Ajustando", Color: "orange"},
	TicketStateTesting:     {Label: "Probando", Color: "sky"},
	TicketStateDeploying:   {Label: "Desplegando", Color: "violet"},
	TicketStateResolved:    {Label: "Resuelto", Color: "emerald"},
}

// IsValid reports whether s is a known state.
func (s TicketState) IsValid() bool {
	_, ok := ticketStateStyles[s]
	return ok
}

// Style returns the label and color for the state.
func (s TicketState) Style() Style {
	if style, ok := ticketStateStyles[s]; ok {
		return style
	}
	return Style{Label: string(s), Color: "slate"}
}

// Label returns the human label for the state.
func (s TicketState) Label() string {
	return s.Style().Label
}

// Index returns the position of the state in the lifecycle, or -1.
func (s TicketState) Index() int {
	for i, st := range TicketStates {
		if st == s {
			return i
		}
	}
	return -1
}

// Priority is a ticket priority level.
type Priority string

const (
	PriorityMedium         Priority = "media"
	PriorityHighWorkaround Priority = "alta_con_alternativa"
	PriorityHighCanWait    Priority = "alta_puede_esperar"
	PriorityUrgent         Priority = "urgente"
)

// Priorities lists every priority in the order the chat offers them.
var Priorities = []Priority{
	PriorityMedium,
	PriorityHighWorkaround,
	PriorityHighCanWait,
	PriorityUrgent,
}

var priorityStyles = map[Priority]Style{
	PriorityMedium:         {Label: "Media", Color: "slate"},
	PriorityHighWorkaround: {Label: "Alta (tengo una alternativa)", Color: "amber"},
	PriorityHighCanWait:    {Label: "Alta (puede esperar)", Color: "orange"},
	PriorityUrgent:         {Label: "Urgente", Color: "red"},
}

// IsValid reports whether p is a known priority.
func (p Priority) IsValid() bool {
	_, ok := priorityStyles[p]
	return ok
}

// Style returns the label and color for the priority.
func (p Priority) Style() Style {
	if style, ok := priorityStyles[p]; ok {
		return style
	}
	return Style{Label: string(p), Color: "slate"}
}

// Label returns the human label for the priority.
func (p Priority) Label() string {
	return p.Style().Label
}

// HistoryEntry records one state change.
type HistoryEntry struct {
	Estado   TicketState `json:"estado"`
	Fecha    time.Time   `json:"fecha"`
	Operador string      `json:"operador,omitempty"`
}

// Ticket is a support ticket.
type Ticket struct {
	ID              uuid.UUID      `json:"id"`
	Numero          int64          `json:"numero"`
	SupportID       string         `json:"supportId"`
	ProyectoID      *uuid.UUID     `json:"proyecto_id,omitempty"`
	ProyectoNombre  string         `json:"proyecto_nombre"`
	Modulo          string         `json:"modulo"`
	Titulo          string         `json:"titulo"`
	Descripcion     string         `json:"descripcion"`
	Estado          TicketState    `json:"estado"`
	Prioridad       Priority       `json:"prioridad"`
	CreadoPorNombre string         `json:"creado_por_nombre"`
	CreadoPorEmail  string         `json:"creado_por_email"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	ResolvedAt      *time.Time     `json:"resolved_at,omitempty"`
	Historial       []HistoryEntry `json:"historial"`
}

// TicketDraft is the payload used to open a ticket.
type TicketDraft struct {
	ProyectoID      *uuid.UUID `json:"proyecto_id,omitempty"`
	ProyectoNombre  string     `json:"proyecto_nombre"`
	Modulo          string     `json:"modulo"`
	Titulo          string     `json:"titulo"`
	Descripcion     string     `json:"descripcion"`
	CreadoPorNombre string     `json:"creado_por_nombre"`
	CreadoPorEmail  string     `json:"creado_por_email"`
	Prioridad       Priority   `json:"prioridad"`
}

// TicketRef is the short reference shown in chat quick links.
type TicketRef struct {
	ID          uuid.UUID `json:"id"`
	SupportID   string    `json:"supportId,omitempty"`
	EstadoLabel string    `json:"estadoLabel"`
	Titulo      string    `json:"titulo,omitempty"`
}

// NewTicket creates a ticket from a draft in the initial state.
// Numero and SupportID are assigned by the repository.
func NewTicket(d TicketDraft, now time.Time) *Ticket {
	prioridad := d.Prioridad
	if prioridad == "" {
		prioridad = PriorityMedium
	}
	return &Ticket{
		ID:              uuid.New(),
		ProyectoID:      d.ProyectoID,
		ProyectoNombre:  strings.TrimSpace(d.ProyectoNombre),
		Modulo:          strings.TrimSpace(d.Modulo),
		Titulo:          strings.TrimSpace(d.Titulo),
		Descripcion:     strings.TrimSpace(d.Descripcion),
		Estado:          TicketStateCreated,
		Prioridad:       prioridad,
		CreadoPorNombre: strings.TrimSpace(d.CreadoPorNombre),
		CreadoPorEmail:  NormalizeEmail(d.CreadoPorEmail),
		CreatedAt:       now,
		UpdatedAt:       now,
		Historial:       []HistoryEntry{{Estado: TicketStateCreated, Fecha: now}},
	}
}

// FormatSupportID renders the human-friendly code for a sequence number.
func FormatSupportID(numero int64) string {
	return fmt.Sprintf("SOP-%05d", numero)
}

// SetState moves the ticket to state. Any state may follow any other.
// It reports false when the ticket is already in that state.
func (t *Ticket) SetState(state TicketState, operator string, now time.Time) bool {
	if t.Estado == state {
		return false
	}
	t.Estado = state
	t.UpdatedAt = now
	if state == TicketStateResolved {
		t.ResolvedAt = &now
	} else {
		t.ResolvedAt = nil
	}
	t.Historial = append(t.Historial, HistoryEntry{Estado: state, Fecha: now, Operador: operator})
	return true
}

// Ref returns the chat quick-link reference for the ticket.
func (t *Ticket) Ref() TicketRef {
	return TicketRef{
		ID:          t.ID,
		SupportID:   t.SupportID,
		EstadoLabel: t.Estado.Label(),
		Titulo:      t.Titulo,
	}
}

// IsUnidentified reports whether the ticket has no tenant project.
func (t *Ticket) IsUnidentified() bool {
	return t.ProyectoID == nil
}

// TicketFilter defines optional filters for listing tickets.
type TicketFilter struct {
	Estado     *TicketState
	Prioridad  *Priority
	ProyectoID *uuid.UUID
	Email      string
	Limit      int
	Offset     int
}

// TicketUpdate is an operator change; nil fields are left untouched.
type TicketUpdate struct {
	Estado    *TicketState `json:"estado,omitempty"`
	Prioridad *Priority    `json:"prioridad,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u TicketUpdate) IsEmpty() bool {
	return u.Estado == nil && u.Prioridad == nil
}
