package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/andresdev/backstage/internal/audit"
	"github.com/andresdev/backstage/internal/clock"
	"github.com/andresdev/backstage/internal/domain"
	apperrors "github.com/andresdev/backstage/internal/errors"
	"github.com/andresdev/backstage/internal/metrics"
)

var testEpoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// testDeps bundles the ambient collaborators every service takes.
type testDeps struct {
	clock    *clock.Mock
	metrics  *metrics.Metrics
	events   *metrics.EventLogger
	activity *MockActivityRepository
	audit    *audit.Logger
	logger   *zap.Logger
}

func newTestDeps() testDeps {
	activity := NewMockActivityRepository()
	return testDeps{
		clock:    clock.NewMock(testEpoch),
		metrics:  metrics.NewMetricsWithRegistry(prometheus.NewRegistry()),
		events:   metrics.NewEventLogger(zap.NewNop()),
		activity: activity,
		audit:    audit.NewLogger(zap.NewNop(), activity),
		logger:   zap.NewNop(),
	}
}

// MockChatRepository is a mock implementation of domain.ChatRepository for testing.
type MockChatRepository struct {
	mu    sync.Mutex
	chats map[uuid.UUID]*domain.ChatSession

	CreateCalls int
	AppendCalls int

	CreateError error
	AppendError error
}

func NewMockChatRepository() *MockChatRepository {
	return &MockChatRepository{chats: make(map[uuid.UUID]*domain.ChatSession)}
}

func (m *MockChatRepository) Create(ctx context.Context, chat *domain.ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls++
	if m.CreateError != nil {
		return m.CreateError
	}
	m.chats[chat.ID] = chat
	return nil
}

func (m *MockChatRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat, ok := m.chats[id]
	if !ok {
		return nil, apperrors.NotFound("chat")
	}
	return chat, nil
}

func (m *MockChatRepository) AppendMessages(ctx context.Context, id uuid.UUID, messages []domain.ChatMessage, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AppendCalls++
	if m.AppendError != nil {
		return m.AppendError
	}
	chat, ok := m.chats[id]
	if !ok {
		return apperrors.NotFound("chat")
	}
	chat.Messages = append(chat.Messages, messages...)
	chat.UpdatedAt = at
	return nil
}

func (m *MockChatRepository) List(ctx context.Context, limit, offset int) ([]*domain.ChatSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.ChatSummary
	for _, c := range m.chats {
		out = append(out, &domain.ChatSummary{
			ID:              c.ID,
			ProyectoID:      c.ProyectoID,
			CreadoPorEmail:  c.CreadoPorEmail,
			CreadoPorNombre: c.CreadoPorNombre,
			MessageCount:    len(c.Messages),
			CreatedAt:       c.CreatedAt,
			UpdatedAt:       c.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return page(out, limit, offset), nil
}

// MockTicketRepository is a mock implementation of domain.TicketRepository for testing.
type MockTicketRepository struct {
	mu      sync.Mutex
	tickets map[uuid.UUID]*domain.Ticket
	seq     int64

	History []domain.HistoryEntry

	CreateCalls         int
	UpdateStateCalls    int
	UpdatePriorityCalls int

	CreateError        error
	AppendHistoryError error
}

func NewMockTicketRepository() *MockTicketRepository {
	return &MockTicketRepository{tickets: make(map[uuid.UUID]*domain.Ticket)}
}

func (m *MockTicketRepository) Create(ctx context.Context, t *domain.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls++
	if m.CreateError != nil {
		return m.CreateError
	}
	m.seq++
	t.Numero = m.seq
	t.SupportID = domain.FormatSupportID(m.seq)
	cp := *t
	cp.Historial = nil
	m.tickets[t.ID] = &cp
	for _, e := range t.Historial {
		if err := m.appendHistory(t.ID, e); err != nil {
			delete(m.tickets, t.ID)
			return err
		}
	}
	return nil
}

func (m *MockTicketRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, apperrors.NotFound("ticket")
	}
	cp := *t
	cp.Historial = append([]domain.HistoryEntry(nil), t.Historial...)
	return &cp, nil
}

func (m *MockTicketRepository) List(ctx context.Context, f domain.TicketFilter) ([]*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Ticket
	for _, t := range m.tickets {
		if f.Email != "" && t.CreadoPorEmail != f.Email {
			continue
		}
		if f.Estado != nil && t.Estado != *f.Estado {
			continue
		}
		if f.Prioridad != nil && t.Prioridad != *f.Prioridad {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Numero > out[j].Numero })
	return page(out, f.Limit, f.Offset), nil
}

func (m *MockTicketRepository) UpdateState(ctx context.Context, t *domain.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateStateCalls++
	stored, ok := m.tickets[t.ID]
	if !ok {
		return apperrors.NotFound("ticket")
	}
	stored.Estado = t.Estado
	stored.ResolvedAt = t.ResolvedAt
	stored.UpdatedAt = t.UpdatedAt
	return nil
}

func (m *MockTicketRepository) UpdatePriority(ctx context.Context, id uuid.UUID, p domain.Priority, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdatePriorityCalls++
	stored, ok := m.tickets[id]
	if !ok {
		return apperrors.NotFound("ticket")
	}
	stored.Prioridad = p
	stored.UpdatedAt = at
	return nil
}

func (m *MockTicketRepository) AppendHistory(ctx context.Context, id uuid.UUID, e domain.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendHistory(id, e)
}

// appendHistory expects m.mu held.
func (m *MockTicketRepository) appendHistory(id uuid.UUID, e domain.HistoryEntry) error {
	if m.AppendHistoryError != nil {
		return m.AppendHistoryError
	}
	stored, ok := m.tickets[id]
	if !ok {
		return apperrors.NotFound("ticket")
	}
	stored.Historial = append(stored.Historial, e)
	m.History = append(m.History, e)
	return nil
}

// MockProjectRepository is a mock implementation of domain.ProjectRepository for testing.
type MockProjectRepository struct {
	mu       sync.Mutex
	projects map[uuid.UUID]*domain.Project
	contacts map[string]*domain.Contact

	FindError error
}

func NewMockProjectRepository() *MockProjectRepository {
	return &MockProjectRepository{
		projects: make(map[uuid.UUID]*domain.Project),
		contacts: make(map[string]*domain.Contact),
	}
}

func (m *MockProjectRepository) Create(ctx context.Context, p *domain.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.projects {
		if existing.Slug == p.Slug {
			return apperrors.New(apperrors.CodeConflict, "project slug already exists")
		}
	}
	m.projects[p.ID] = p
	return nil
}

func (m *MockProjectRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, apperrors.NotFound("project")
	}
	cp := *p
	return &cp, nil
}

func (m *MockProjectRepository) Update(ctx context.Context, p *domain.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[p.ID]; !ok {
		return apperrors.NotFound("project")
	}
	cp := *p
	m.projects[p.ID] = &cp
	return nil
}

func (m *MockProjectRepository) List(ctx context.Context, activeOnly bool) ([]*domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Project
	for _, p := range m.projects {
		if activeOnly && !p.Activo {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Nombre < out[j].Nombre })
	return out, nil
}

func (m *MockProjectRepository) FindContact(ctx context.Context, email string) (*domain.Contact, *domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FindError != nil {
		return nil, nil, m.FindError
	}
	c, ok := m.contacts[email]
	if !ok {
		return nil, nil, apperrors.NotFound("contact")
	}
	return c, m.projects[c.ProyectoID], nil
}

func (m *MockProjectRepository) UpsertContact(ctx context.Context, c *domain.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contacts[c.Email] = c
	return nil
}

func (m *MockProjectRepository) DeleteContact(ctx context.Context, projectID uuid.UUID, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[email]
	if !ok || c.ProyectoID != projectID {
		return apperrors.NotFound("contact")
	}
	delete(m.contacts, email)
	return nil
}

func (m *MockProjectRepository) ListContacts(ctx context.Context, projectID uuid.UUID) ([]*domain.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Contact
	for _, c := range m.contacts {
		if c.ProyectoID == projectID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

// MockOperatorRepository is a mock implementation of domain.OperatorRepository for testing.
type MockOperatorRepository struct {
	mu        sync.Mutex
	operators map[uuid.UUID]*domain.Operator

	GetByEmailError error
}

func NewMockOperatorRepository() *MockOperatorRepository {
	return &MockOperatorRepository{operators: make(map[uuid.UUID]*domain.Operator)}
}

func (m *MockOperatorRepository) Create(ctx context.Context, op *domain.Operator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.operators {
		if existing.Email == op.Email {
			return apperrors.New(apperrors.CodeConflict, "operator already exists")
		}
	}
	m.operators[op.ID] = op
	return nil
}

func (m *MockOperatorRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Operator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.operators[id]
	if !ok {
		return nil, apperrors.NotFound("operator")
	}
	return op, nil
}

func (m *MockOperatorRepository) GetByEmail(ctx context.Context, email string) (*domain.Operator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetByEmailError != nil {
		return nil, m.GetByEmailError
	}
	for _, op := range m.operators {
		if op.Email == email {
			return op, nil
		}
	}
	return nil, apperrors.NotFound("operator")
}

// MockSessionRepository is a mock implementation of domain.SessionRepository for testing.
type MockSessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session

	CreateCalls int
	DeleteCalls int
}

func NewMockSessionRepository() *MockSessionRepository {
	return &MockSessionRepository{sessions: make(map[string]*domain.Session)}
}

func (m *MockSessionRepository) Create(ctx context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls++
	m.sessions[s.Token] = s
	return nil
}

func (m *MockSessionRepository) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok {
		return nil, apperrors.NotFound("session")
	}
	return s, nil
}

func (m *MockSessionRepository) Delete(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls++
	if _, ok := m.sessions[token]; !ok {
		return apperrors.NotFound("session")
	}
	delete(m.sessions, token)
	return nil
}

func (m *MockSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for token, s := range m.sessions {
		if s.IsExpiredAt(now) {
			delete(m.sessions, token)
			n++
		}
	}
	return n, nil
}

func (m *MockSessionRepository) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// MockActivityRepository is a mock implementation of domain.ActivityRepository for testing.
type MockActivityRepository struct {
	mu      sync.Mutex
	entries []*domain.ActivityEntry
}

func NewMockActivityRepository() *MockActivityRepository {
	return &MockActivityRepository{}
}

func (m *MockActivityRepository) Insert(ctx context.Context, e *domain.ActivityEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, e)
	return nil
}

func (m *MockActivityRepository) List(ctx context.Context, limit, offset int) ([]*domain.ActivityEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.ActivityEntry, 0, len(m.entries))
	for i := len(m.entries) - 1; i >= 0; i-- {
		out = append(out, m.entries[i])
	}
	return page(out, limit, offset), nil
}

// Types returns the recorded entry types in insertion order.
func (m *MockActivityRepository) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Tipo
	}
	return out
}

// recordingTx counts transactions and reports failures the way a rollback would.
type recordingTx struct {
	calls    int
	failures int
}

func (r *recordingTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.calls++
	if err := fn(ctx); err != nil {
		r.failures++
		return fmt.Errorf("transaction rolled back: %w", err)
	}
	return nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
