package metrics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andresdev/backstage/internal/domain"
	"github.com/andresdev/backstage/internal/sanitize"
)

// EventLogger writes searchable business events next to the Prometheus
// counters. Every entry carries an event_type field.
type EventLogger struct {
	logger *zap.Logger
}

// NewEventLogger creates an EventLogger.
func NewEventLogger(logger *zap.Logger) *EventLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventLogger{
		logger: logger.Named("business_events"),
	}
}

// ChatStarted logs a newly persisted support chat.
func (l *EventLogger) ChatStarted(ctx context.Context, chatID uuid.UUID, email string, proyecto string) {
	l.logger.Info("chat_started",
		zap.String("event_type", "chat.started"),
		zap.String("chat_id", chatID.String()),
		zap.String("email", sanitize.Email(email)),
		zap.String("proyecto", proyecto),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// TicketCreated logs a new support ticket.
func (l *EventLogger) TicketCreated(ctx context.Context, t *domain.Ticket) {
	fields := []zap.Field{
		zap.String("event_type", "ticket.created"),
		zap.String("ticket_id", t.ID.String()),
		zap.String("support_id", t.SupportID),
		zap.String("prioridad", string(t.Prioridad)),
		zap.String("modulo", t.Modulo),
		zap.String("email", sanitize.Email(t.CreadoPorEmail)),
		zap.Time("timestamp", time.Now().UTC()),
	}
	if t.IsUnidentified() {
		fields = append(fields, zap.Bool("sin_proyecto", true))
	} else {
		fields = append(fields, zap.String("proyecto", t.ProyectoNombre))
	}
	l.logger.Info("ticket_created", fields...)
}

// TicketStateChanged logs an operator moving a ticket between states.
func (l *EventLogger) TicketStateChanged(ctx context.Context, t *domain.Ticket, from domain.TicketState, operator string) {
	l.logger.Info("ticket_state_changed",
		zap.String("event_type", "ticket.state_changed"),
		zap.String("ticket_id", t.ID.String()),
		zap.String("support_id", t.SupportID),
		zap.String("from", string(from)),
		zap.String("to", string(t.Estado)),
		zap.Bool("regression", t.Estado.Index() < from.Index()),
		zap.String("operator", sanitize.Email(operator)),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// QuoteGenerated logs a rendered quote PDF.
func (l *EventLogger) QuoteGenerated(ctx context.Context, cliente string, total string, saved bool, duration time.Duration, err error) {
	fields := []zap.Field{
		zap.String("event_type", "quote.generated"),
		zap.String("cliente", cliente),
		zap.String("total", total),
		zap.Bool("saved", saved),
		zap.Duration("render_duration", duration),
		zap.Bool("success", err == nil),
		zap.Time("timestamp", time.Now().UTC()),
	}
	if err != nil {
		l.logger.Warn("quote_generation_failed", append(fields, zap.Error(err))...)
		return
	}
	l.logger.Info("quote_generated", fields...)
}

// OperatorLogin logs a console login attempt.
func (l *EventLogger) OperatorLogin(ctx context.Context, operatorID uuid.UUID, email, ip string, success bool) {
	if success {
		l.logger.Info("operator_login",
			zap.String("event_type", "operator.login"),
			zap.String("operator_id", operatorID.String()),
			zap.String("email", sanitize.Email(email)),
			zap.String("ip", ip),
			zap.Bool("success", true),
			zap.Time("timestamp", time.Now().UTC()),
		)
		return
	}
	l.logger.Warn("operator_login_failed",
		zap.String("event_type", "operator.login_failed"),
		zap.String("email", sanitize.Email(email)),
		zap.String("ip", ip),
		zap.Bool("success", false),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// OperatorLogout logs a console logout.
func (l *EventLogger) OperatorLogout(ctx context.Context, operatorID uuid.UUID, email string) {
	l.logger.Info("operator_logout",
		zap.String("event_type", "operator.logout"),
		zap.String("operator_id", operatorID.String()),
		zap.String("email", sanitize.Email(email)),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// TenantFanOut logs the summary of one console aggregation.
func (l *EventLogger) TenantFanOut(ctx context.Context, endpoint string, tenants, failed int, duration time.Duration) {
	level := l.logger.Info
	if failed > 0 {
		level = l.logger.Warn
	}
	level("tenant_fan_out",
		zap.String("event_type", "backstage.fan_out"),
		zap.String("endpoint", endpoint),
		zap.Int("tenants", tenants),
		zap.Int("failed", failed),
		zap.Duration("duration", duration),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// RateLimitExceeded logs a rejected request.
func (l *EventLogger) RateLimitExceeded(ctx context.Context, limiter string, identifier string) {
	l.logger.Warn("rate_limit_exceeded",
		zap.String("event_type", "rate_limit.exceeded"),
		zap.String("limiter", limiter),
		zap.String("identifier", sanitize.ID(identifier)),
		zap.Time("timestamp", time.Now().UTC()),
	)
}
