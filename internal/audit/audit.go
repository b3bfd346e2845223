// Package audit records operator and security events. Every event is
// written to the structured log and, when a store is configured, to the
// activity log shown in the console as the bitácora.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andresdev/backstage/internal/domain"
	"github.com/andresdev/backstage/internal/sanitize"
)

// EventType represents the type of audit event.
type EventType string

const (
	// Authentication events
	EventLoginSuccess   EventType = "auth.login.success"
	EventLoginFailure   EventType = "auth.login.failure"
	EventLogout         EventType = "auth.logout"
	EventSessionExpired EventType = "auth.session.expired"

	// Authorization events
	EventAccessDenied      EventType = "authz.access.denied"
	EventRateLimitExceeded EventType = "authz.ratelimit.exceeded"

	// Console operations
	EventTicketStateChanged    EventType = "ticket.estado"
	EventTicketPriorityChanged EventType = "ticket.prioridad"
	EventProjectCreated        EventType = "proyecto.creado"
	EventProjectUpdated        EventType = "proyecto.actualizado"
	EventContactAdded          EventType = "contacto.agregado"
	EventContactRemoved        EventType = "contacto.eliminado"
	EventQuoteGenerated        EventType = "cotizacion.generada"

	// System events
	EventServiceStarted  EventType = "system.started"
	EventServiceStopping EventType = "system.stopping"
)

// Severity represents the severity level of an audit event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Outcome values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeDenied  = "denied"
)

// Actor identifies who triggered an event and from where.
type Actor struct {
	ID        string
	Email     string
	IP        string
	UserAgent string
	RequestID string
}

// System is the actor for events raised by the server itself.
var System = Actor{Email: "sistema"}

// Event represents an audit log entry.
type Event struct {
	ID        string
	Timestamp time.Time
	Type      EventType
	Severity  Severity
	Actor     Actor

	ResourceType string
	ResourceID   string

	Action  string
	Outcome string
	Reason  string

	Metadata map[string]any
}

// Store persists audit events as activity log rows.
type Store interface {
	Insert(ctx context.Context, entry *domain.ActivityEntry) error
}

// Logger provides audit logging capabilities.
type Logger struct {
	logger *zap.Logger
	store  Store

	// The bitácora keeps contact emails; the process log does not.
	stored *sanitize.Sanitizer
	logged *sanitize.Sanitizer
}

// NewLogger creates an audit logger. store may be nil.
func NewLogger(baseLogger *zap.Logger, store Store) *Logger {
	if baseLogger == nil {
		baseLogger = zap.NewNop()
	}
	return &Logger{
		logger: baseLogger.Named("audit"),
		store:  store,
		stored: sanitize.New(sanitize.Options{Secrets: true}),
		logged: sanitize.New(sanitize.Options{Emails: true, Secrets: true}),
	}
}

// Log records an audit event. Persistence failures are logged, never returned.
func (l *Logger) Log(ctx context.Context, event *Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	level := zap.InfoLevel
	switch event.Severity {
	case SeverityWarning:
		level = zap.WarnLevel
	case SeverityError:
		level = zap.ErrorLevel
	}

	fields := []zap.Field{
		zap.String("audit_id", event.ID),
		zap.Time("audit_timestamp", event.Timestamp),
		zap.String("event_type", string(event.Type)),
		zap.String("severity", string(event.Severity)),
		zap.String("action", event.Action),
		zap.String("outcome", event.Outcome),
	}
	if event.Actor.ID != "" {
		fields = append(fields, zap.String("actor_id", event.Actor.ID))
	}
	if event.Actor.Email != "" {
		fields = append(fields, zap.String("actor", sanitize.Email(event.Actor.Email)))
	}
	if event.Actor.IP != "" {
		fields = append(fields, zap.String("source_ip", event.Actor.IP))
	}
	if event.Actor.RequestID != "" {
		fields = append(fields, zap.String("request_id", event.Actor.RequestID))
	}
	if event.ResourceType != "" {
		fields = append(fields, zap.String("resource_type", event.ResourceType))
	}
	if event.ResourceID != "" {
		fields = append(fields, zap.String("resource_id", event.ResourceID))
	}
	if event.Reason != "" {
		fields = append(fields, zap.String("reason", event.Reason))
	}
	if len(event.Metadata) > 0 {
		fields = append(fields, zap.Any("metadata", l.logged.Fields(event.Metadata)))
	}

	if ce := l.logger.Check(level, "audit event"); ce != nil {
		ce.Write(fields...)
	}

	if l.store == nil {
		return
	}
	entry := toEntry(event, l.stored.Fields(event.Metadata))
	// The entry outlives a client that disconnects mid-request.
	if err := l.store.Insert(context.WithoutCancel(ctx), entry); err != nil {
		l.logger.Error("failed to persist audit event",
			zap.String("audit_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err),
		)
	}
}

func toEntry(event *Event, metadata map[string]any) *domain.ActivityEntry {
	detalle := map[string]any{}
	for k, v := range metadata {
		detalle[k] = v
	}
	if event.Action != "" {
		detalle["accion"] = event.Action
	}
	if event.Reason != "" {
		detalle["motivo"] = event.Reason
	}
	actor := event.Actor.Email
	if actor == "" {
		actor = System.Email
	}
	return &domain.ActivityEntry{
		Tipo:      string(event.Type),
		Actor:     actor,
		Recurso:   event.ResourceType,
		RecursoID: event.ResourceID,
		Resultado: event.Outcome,
		Detalle:   detalle,
		IPAddress: event.Actor.IP,
		RequestID: event.Actor.RequestID,
		CreatedAt: event.Timestamp,
	}
}

// LoginSuccess logs a successful operator login.
func (l *Logger) LoginSuccess(ctx context.Context, actor Actor) {
	l.Log(ctx, &Event{
		Type:         EventLoginSuccess,
		Severity:     SeverityInfo,
		Actor:        actor,
		ResourceType: "sesion",
		ResourceID:   actor.ID,
		Action:       "operator login",
		Outcome:      OutcomeSuccess,
		Metadata:     map[string]any{"user_agent": actor.UserAgent},
	})
}

// LoginFailure logs a failed login attempt.
func (l *Logger) LoginFailure(ctx context.Context, actor Actor, reason string) {
	l.Log(ctx, &Event{
		Type:         EventLoginFailure,
		Severity:     SeverityWarning,
		Actor:        actor,
		ResourceType: "sesion",
		Action:       "operator login",
		Outcome:      OutcomeFailure,
		Reason:       reason,
	})
}

// Logout logs an operator logout.
func (l *Logger) Logout(ctx context.Context, actor Actor) {
	l.Log(ctx, &Event{
		Type:         EventLogout,
		Severity:     SeverityInfo,
		Actor:        actor,
		ResourceType: "sesion",
		ResourceID:   actor.ID,
		Action:       "operator logout",
		Outcome:      OutcomeSuccess,
	})
}

// SessionsExpired logs the periodic removal of expired sessions.
func (l *Logger) SessionsExpired(ctx context.Context, count int64) {
	l.Log(ctx, &Event{
		Type:         EventSessionExpired,
		Severity:     SeverityInfo,
		Actor:        System,
		ResourceType: "sesion",
		Action:       "expired sessions removed",
		Outcome:      OutcomeSuccess,
		Metadata:     map[string]any{"count": count},
	})
}

// AccessDenied logs a rejected console request.
func (l *Logger) AccessDenied(ctx context.Context, actor Actor, path, reason string) {
	l.Log(ctx, &Event{
		Type:         EventAccessDenied,
		Severity:     SeverityWarning,
		Actor:        actor,
		ResourceType: "ruta",
		ResourceID:   path,
		Action:       "console access",
		Outcome:      OutcomeDenied,
		Reason:       reason,
	})
}

// RateLimitExceeded logs a request rejected by a limiter.
func (l *Logger) RateLimitExceeded(ctx context.Context, actor Actor, limiter string) {
	l.Log(ctx, &Event{
		Type:         EventRateLimitExceeded,
		Severity:     SeverityWarning,
		Actor:        actor,
		ResourceType: "limite",
		ResourceID:   limiter,
		Action:       "rate limit",
		Outcome:      OutcomeDenied,
	})
}

// TicketStateChanged logs an operator moving a ticket.
func (l *Logger) TicketStateChanged(ctx context.Context, actor Actor, t *domain.Ticket, from domain.TicketState) {
	l.Log(ctx, &Event{
		Type:         EventTicketStateChanged,
		Severity:     SeverityInfo,
		Actor:        actor,
		ResourceType: "ticket",
		ResourceID:   t.SupportID,
		Action:       "cambio de estado",
		Outcome:      OutcomeSuccess,
		Metadata: map[string]any{
			"desde": string(from),
			"hacia": string(t.Estado),
		},
	})
}

// TicketPriorityChanged logs an operator changing a ticket's priority.
func (l *Logger) TicketPriorityChanged(ctx context.Context, actor Actor, t *domain.Ticket, from domain.Priority) {
	l.Log(ctx, &Event{
		Type:         EventTicketPriorityChanged,
		Severity:     SeverityInfo,
		Actor:        actor,
		ResourceType: "ticket",
		ResourceID:   t.SupportID,
		Action:       "cambio de prioridad",
		Outcome:      OutcomeSuccess,
		Metadata: map[string]any{
			"desde": string(from),
			"hacia": string(t.Prioridad),
		},
	})
}

// ProjectChanged logs a project creation or update.
func (l *Logger) ProjectChanged(ctx context.Context, actor Actor, p *domain.Project, created bool) {
	typ, action := EventProjectUpdated, "proyecto actualizado"
	if created {
		typ, action = EventProjectCreated, "proyecto creado"
	}
	l.Log(ctx, &Event{
		Type:         typ,
		Severity:     SeverityInfo,
		Actor:        actor,
		ResourceType: "proyecto",
		ResourceID:   p.ID.String(),
		Action:       action,
		Outcome:      OutcomeSuccess,
		Metadata: map[string]any{
			"nombre":  p.Nombre,
			"activo":  p.Activo,
			"con_api": p.APIBaseURL != "",
		},
	})
}

// ContactChanged logs a contact added to or removed from a project.
func (l *Logger) ContactChanged(ctx context.Context, actor Actor, projectID uuid.UUID, email string, added bool) {
	typ, action := EventContactRemoved, "contacto eliminado"
	if added {
		typ, action = EventContactAdded, "contacto agregado"
	}
	l.Log(ctx, &Event{
		Type:         typ,
		Severity:     SeverityInfo,
		Actor:        actor,
		ResourceType: "proyecto",
		ResourceID:   projectID.String(),
		Action:       action,
		Outcome:      OutcomeSuccess,
		Metadata:     map[string]any{"email": email},
	})
}

// QuoteGenerated logs a saved quote PDF.
func (l *Logger) QuoteGenerated(ctx context.Context, actor Actor, pdfURL, cliente, total string) {
	l.Log(ctx, &Event{
		Type:         EventQuoteGenerated,
		Severity:     SeverityInfo,
		Actor:        actor,
		ResourceType: "cotizacion",
		ResourceID:   pdfURL,
		Action:       "cotización guardada",
		Outcome:      OutcomeSuccess,
		Metadata: map[string]any{
			"cliente": cliente,
			"total":   total,
		},
	})
}

// ServiceStarted logs service startup.
func (l *Logger) ServiceStarted(ctx context.Context, version string) {
	l.Log(ctx, &Event{
		Type:     EventServiceStarted,
		Severity: SeverityInfo,
		Actor:    System,
		Action:   "service started",
		Outcome:  OutcomeSuccess,
		Metadata: map[string]any{"version": version},
	})
}

// ServiceStopping logs service shutdown.
func (l *Logger) ServiceStopping(ctx context.Context, reason string) {
	l.Log(ctx, &Event{
		Type:     EventServiceStopping,
		Severity: SeverityInfo,
		Actor:    System,
		Action:   "service stopping",
		Outcome:  OutcomeSuccess,
		Reason:   reason,
	})
}
