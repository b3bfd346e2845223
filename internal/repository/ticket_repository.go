package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/andresdev/backstage/internal/database"
	"github.com/andresdev/backstage/internal/domain"
	apperrors "github.com/andresdev/backstage/internal/errors"
)

// TicketRepository implements domain.TicketRepository using PostgreSQL.
type TicketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository creates a new TicketRepository.
func NewTicketRepository(pool *pgxpool.Pool) *TicketRepository {
	return &TicketRepository{pool: pool}
}

// Create takes the next sequence number, derives the support code and
// inserts the ticket together with its history. Callers that need both
// inserts to be atomic run it inside database.TxManager.WithTx.
func (r *TicketRepository) Create(ctx context.Context, t *domain.Ticket) error {
	if err := GuardString(t.Titulo, "titulo"); err != nil {
		return err
	}

	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	q := database.QuerierFrom(ctx, r.pool)

	var numero int64
	if err := q.QueryRow(ctx, `SELECT nextval('tickets_numero_seq')`).Scan(&numero); err != nil {
		return mapError("TicketRepository.Create", "ticket", err)
	}
	t.Numero = numero
	t.SupportID = domain.FormatSupportID(numero)

	query := `INSERT INTO tickets (` + TicketColumns.Select() + `) VALUES (` + TicketColumns.Placeholders() + `)`
	_, err := q.Exec(ctx, query,
		t.ID,
		t.Numero,
		t.SupportID,
		t.ProyectoID,
		t.ProyectoNombre,
		t.Modulo,
		t.Titulo,
		t.Descripcion,
		t.Estado,
		t.Prioridad,
		t.CreadoPorNombre,
		t.CreadoPorEmail,
		t.CreatedAt,
		t.UpdatedAt,
		t.ResolvedAt,
	)
	if err != nil {
		return mapError("TicketRepository.Create", "ticket", err)
	}

	for _, h := range t.Historial {
		if err := r.AppendHistory(ctx, t.ID, h); err != nil {
			return err
		}
	}
	return nil
}

// GetByID retrieves a ticket with its history.
func (r *TicketRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Ticket, error) {
	ctx, cancel := WithQueryTimeout(ctx)
	defer cancel()

	q := database.QuerierFrom(ctx, r.pool)

	query := `SELECT ` + TicketColumns.Select() + ` FROM tickets WHERE id = $1`
	t, err := scanTicket(q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapError("TicketRepository.GetByID", "ticket", err)
	}

	rows, err := q.Query(ctx, `
		SELECT estado, fecha, operador
		FROM ticket_historial
		WHERE ticket_id = $1
		ORDER BY id`, id)
	if err != nil {
		return nil, mapError("TicketRepository.GetByID", "ticket", err)
	}
	defer rows.Close()

	t.Historial = make([]domain.HistoryEntry, 0)
	for rows.Next() {
		var h domain.HistoryEntry
		if err := rows.Scan(&h.Estado, &h.Fecha, &h.Operador); err != nil {
			return nil, apperrors.DatabaseError("TicketRepository.GetByID", err)
		}
		t.Historial = append(t.Historial, h)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DatabaseError("TicketRepository.GetByID", err)
	}
	return t, nil
}

// List retrieves tickets matching the filter, newest first.
func (r *TicketRepository) List(ctx context.Context, filter domain.TicketFilter) ([]*domain.Ticket, error) {
	ctx, cancel := WithListQueryTimeout(ctx)
	defer cancel()

	where, args := ticketWhere(filter)
	limit, offset := NormalizePagination(filter.Limit, filter.Offset)
	args = append(args, limit, offset)

	query := fmt.Sprintf(`SELECT %s FROM tickets%s ORDER BY created_at DESC, numero DESC LIMIT $%d OFFSET $%d`,
		TicketColumns.Select(), where, len(args)-1, len(args))

	rows, err := database.QuerierFrom(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, mapError("TicketRepository.List", "ticket", err)
	}
	defer rows.Close()

	tickets := make([]*domain.Ticket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, apperrors.DatabaseError("TicketRepository.List", err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DatabaseError("TicketRepository.List", err)
	}
	return tickets, nil
}

// ticketWhere builds the WHERE clause and its arguments for a filter.
func ticketWhere(f domain.TicketFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Estado != nil {
		add("estado = $%d", *f.Estado)
	}
	if f.Prioridad != nil {
		add("prioridad = $%d", *f.Prioridad)
	}
	if f.ProyectoID != nil {
		add("proyecto_id = $%d", *f.ProyectoID)
	}
	if f.Email != "" {
		add("creado_por_email = $%d", domain.NormalizeEmail(f.Email))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// UpdateState writes the state columns of the ticket.
func (r *TicketRepository) UpdateState(ctx context.Context, t *domain.Ticket) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	query := `
		UPDATE tickets SET
			estado = $2,
			resolved_at = $3,
			updated_at = $4
		WHERE id = $1`

	result, err := database.QuerierFrom(ctx, r.pool).Exec(ctx, query, t.ID, t.Estado, t.ResolvedAt, t.UpdatedAt)
	if err != nil {
		return mapError("TicketRepository.UpdateState", "ticket", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.NotFound("ticket")
	}
	return nil
}

// UpdatePriority writes the priority of the ticket.
func (r *TicketRepository) UpdatePriority(ctx context.Context, id uuid.UUID, priority domain.Priority, at time.Time) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	result, err := database.QuerierFrom(ctx, r.pool).Exec(ctx,
		`UPDATE tickets SET prioridad = $2, updated_at = $3 WHERE id = $1`, id, priority, at)
	if err != nil {
		return mapError("TicketRepository.UpdatePriority", "ticket", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.NotFound("ticket")
	}
	return nil
}

// AppendHistory adds one history entry.
func (r *TicketRepository) AppendHistory(ctx context.Context, ticketID uuid.UUID, entry domain.HistoryEntry) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	_, err := database.QuerierFrom(ctx, r.pool).Exec(ctx,
		`INSERT INTO ticket_historial (ticket_id, estado, fecha, operador) VALUES ($1, $2, $3, $4)`,
		ticketID, entry.Estado, entry.Fecha, entry.Operador)
	return mapError("TicketRepository.AppendHistory", "ticket", err)
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	t := &domain.Ticket{}
	err := row.Scan(
		&t.ID,
		&t.Numero,
		&t.SupportID,
		&t.ProyectoID,
		&t.ProyectoNombre,
		&t.Modulo,
		&t.Titulo,
		&t.Descripcion,
		&t.Estado,
		&t.Prioridad,
		&t.CreadoPorNombre,
		&t.CreadoPorEmail,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}
