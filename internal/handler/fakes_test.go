package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/andresdev/backstage/internal/audit"
	"github.com/andresdev/backstage/internal/backstage"
	"github.com/andresdev/backstage/internal/chatflow"
	"github.com/andresdev/backstage/internal/domain"
	apperrors "github.com/andresdev/backstage/internal/errors"
	"github.com/andresdev/backstage/internal/middleware"
	"github.com/andresdev/backstage/internal/quote"
	"github.com/andresdev/backstage/internal/service"
	"github.com/andresdev/backstage/internal/storage"
)

var testEpoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

const operatorToken = "op-token"

var testOperator = &domain.Operator{ID: uuid.New(), Email: "andres@andres.dev", Nombre: "Andrés"}

type fakeChats struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*domain.ChatSession
	contacts map[string]domain.Identity
}

func newFakeChats() *fakeChats {
	return &fakeChats{
		sessions: make(map[uuid.UUID]*domain.ChatSession),
		contacts: make(map[string]domain.Identity),
	}
}

func (f *fakeChats) Identify(ctx context.Context, email string) (domain.Identity, error) {
	email = domain.NormalizeEmail(email)
	if !domain.IsValidEmail(email) {
		return domain.Identity{}, apperrors.InvalidFormat("email", "an email address")
	}
	if ident, ok := f.contacts[email]; ok {
		return ident, nil
	}
	return domain.Identity{Email: email}, nil
}

func (f *fakeChats) Create(ctx context.Context, email, nombre string, proyectoID *uuid.UUID) (*domain.ChatSession, error) {
	if !domain.IsValidEmail(email) {
		return nil, apperrors.InvalidFormat("email", "an email address")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s := domain.NewChatSession(email, nombre, proyectoID, testEpoch)
	f.sessions[s.ID] = s
	return s, nil
}

func (f *fakeChats) AppendMessages(ctx context.Context, id uuid.UUID, messages []domain.ChatMessage) error {
	if len(messages) == 0 {
		return apperrors.ValidationFailed("messages: at least one message is required")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return apperrors.NotFound("chat")
	}
	s.Messages = append(s.Messages, messages...)
	return nil
}

func (f *fakeChats) Get(ctx context.Context, id uuid.UUID) (*domain.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, apperrors.NotFound("chat")
	}
	return s, nil
}

func (f *fakeChats) List(ctx context.Context, limit, offset int) ([]*domain.ChatSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.ChatSummary, 0, len(f.sessions))
	for _, s := range f.sessions {
		out = append(out, &domain.ChatSummary{ID: s.ID, CreadoPorEmail: s.CreadoPorEmail, MessageCount: len(s.Messages)})
	}
	return out, nil
}

type fakeTickets struct {
	mu      sync.Mutex
	tickets map[uuid.UUID]*domain.Ticket
	seq     int64
	filters []domain.TicketFilter
	actors  []audit.Actor
}

func newFakeTickets() *fakeTickets {
	return &fakeTickets{tickets: make(map[uuid.UUID]*domain.Ticket)}
}

func (f *fakeTickets) Create(ctx context.Context, draft domain.TicketDraft) (*domain.Ticket, error) {
	if strings.TrimSpace(draft.Titulo) == "" {
		return nil, apperrors.ValidationFailed("titulo: is required")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t := domain.NewTicket(draft, testEpoch)
	f.seq++
	t.Numero = f.seq
	t.SupportID = domain.FormatSupportID(f.seq)
	f.tickets[t.ID] = t
	return t, nil
}

func (f *fakeTickets) Get(ctx context.Context, id uuid.UUID) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[id]
	if !ok {
		return nil, apperrors.NotFound("ticket")
	}
	return t, nil
}

func (f *fakeTickets) List(ctx context.Context, filter domain.TicketFilter) ([]*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	out := make([]*domain.Ticket, 0, len(f.tickets))
	for _, t := range f.tickets {
		if filter.Estado != nil && t.Estado != *filter.Estado {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Numero > out[j].Numero })
	return out, nil
}

func (f *fakeTickets) RefsForEmail(ctx context.Context, email string) ([]domain.TicketRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var refs []domain.TicketRef
	for _, t := range f.tickets {
		if t.CreadoPorEmail == domain.NormalizeEmail(email) {
			refs = append(refs, t.Ref())
		}
	}
	return refs, nil
}

func (f *fakeTickets) Update(ctx context.Context, id uuid.UUID, upd domain.TicketUpdate, actor audit.Actor) (*domain.Ticket, error) {
	if upd.IsEmpty() {
		return nil, apperrors.ValidationFailed("nothing to update")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[id]
	if !ok {
		return nil, apperrors.NotFound("ticket")
	}
	f.actors = append(f.actors, actor)
	if upd.Estado != nil {
		t.SetState(*upd.Estado, actor.Email, testEpoch.Add(time.Hour))
	}
	if upd.Prioridad != nil {
		t.Prioridad = *upd.Prioridad
	}
	return t, nil
}

type fakeBot struct {
	events []chatflow.Event
}

func (f *fakeBot) Start() *chatflow.Conversation {
	return &chatflow.Conversation{
		State:    chatflow.Home{},
		Messages: []domain.ChatMessage{{Role: domain.RoleBot, Text: "¡Hola! Soy Andrebot.", CreatedAt: testEpoch}},
	}
}

func (f *fakeBot) Step(ctx context.Context, conv *chatflow.Conversation, ev chatflow.Event) (*chatflow.Conversation, []domain.ChatMessage) {
	if conv == nil {
		conv = f.Start()
	}
	f.events = append(f.events, ev)
	reply := []domain.ChatMessage{
		{Role: domain.RoleUser, Text: ev.Value, CreatedAt: testEpoch},
		{Role: domain.RoleBot, Text: "¿Cuál es tu correo?", CreatedAt: testEpoch},
	}
	conv.State = chatflow.AwaitingEmail{}
	conv.Messages = append(conv.Messages, reply...)
	return conv, reply
}

type fakeQuotes struct {
	generateErr error
	requests    []service.QuoteRequest
}

func (f *fakeQuotes) Catalog() *quote.Catalog {
	return quote.DefaultCatalog()
}

func (f *fakeQuotes) Calculate(sel quote.Selection) (*quote.Breakdown, error) {
	return quote.Compute(sel, quote.DefaultCatalog())
}

func (f *fakeQuotes) Generate(ctx context.Context, req service.QuoteRequest, actor audit.Actor) (*service.QuoteDocument, error) {
	f.requests = append(f.requests, req)
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	doc := &service.QuoteDocument{Numero: "COT-20260302-ABC123", PDF: []byte("%PDF-1.4 fake")}
	if req.Guardar {
		doc.PDFURL = "/uploads/cotizaciones/2026/03/abc.pdf"
	}
	return doc, nil
}

type fakeUploads struct {
	received []byte
	err      error
}

func (f *fakeUploads) UploadImage(ctx context.Context, r io.Reader) (*storage.Object, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f.received = data
	if f.err != nil {
		return nil, f.err
	}
	return &storage.Object{Key: "soporte/2026/03/x.jpg", URL: "/uploads/soporte/2026/03/x.jpg"}, nil
}

type fakeFiles struct {
	files map[string][]byte
}

func (f *fakeFiles) Put(ctx context.Context, prefix, ext, contentType string, r io.Reader) (*storage.Object, error) {
	return nil, apperrors.InternalError("read only", nil)
}

func (f *fakeFiles) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := f.files[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type fakeAuth struct {
	logouts []string
}

func (f *fakeAuth) Login(ctx context.Context, email, password string, lc service.LoginContext) (*domain.Session, *domain.Operator, error) {
	if domain.NormalizeEmail(email) != testOperator.Email || password != "correcto" {
		return nil, nil, apperrors.ErrInvalidCredentials
	}
	return domain.NewSession(testOperator.ID, operatorToken, testEpoch, 12*time.Hour), testOperator, nil
}

func (f *fakeAuth) Logout(ctx context.Context, token string, op *domain.Operator, lc service.LoginContext) error {
	f.logouts = append(f.logouts, token)
	return nil
}

// ValidateSession lets the real SessionAuth middleware guard the routes.
func (f *fakeAuth) ValidateSession(ctx context.Context, token string) (*domain.Operator, error) {
	if token != operatorToken {
		return nil, apperrors.ErrSessionExpired
	}
	return testOperator, nil
}

type fakeProjects struct {
	mu       sync.Mutex
	projects []*domain.Project
	contacts map[uuid.UUID][]*domain.Contact
	removed  []string
}

func newFakeProjects() *fakeProjects {
	return &fakeProjects{contacts: make(map[uuid.UUID][]*domain.Contact)}
}

func (f *fakeProjects) add(nombre, apiBaseURL string, activo bool) *domain.Project {
	p := domain.NewProject(nombre, "", testEpoch)
	p.APIBaseURL = apiBaseURL
	p.APIKey = "secret-" + p.Slug
	p.Activo = activo
	f.projects = append(f.projects, p)
	return p
}

func (f *fakeProjects) Create(ctx context.Context, in service.ProjectInput, actor audit.Actor) (*domain.Project, error) {
	if strings.TrimSpace(in.Nombre) == "" {
		return nil, apperrors.MissingField("nombre")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.add(in.Nombre, "", true), nil
}

func (f *fakeProjects) Update(ctx context.Context, id uuid.UUID, in service.ProjectInput, actor audit.Actor) (*domain.Project, error) {
	p, err := f.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Nombre != "" {
		p.Nombre = in.Nombre
	}
	if in.Activo != nil {
		p.Activo = *in.Activo
	}
	return p, nil
}

func (f *fakeProjects) Get(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.projects {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, apperrors.NotFound("project")
}

func (f *fakeProjects) List(ctx context.Context, activeOnly bool) ([]*domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Project
	for _, p := range f.projects {
		if activeOnly && !p.Activo {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeProjects) AddContact(ctx context.Context, projectID uuid.UUID, email, nombre string, actor audit.Actor) (*domain.Contact, error) {
	if _, err := f.Get(ctx, projectID); err != nil {
		return nil, err
	}
	c := &domain.Contact{Email: domain.NormalizeEmail(email), Nombre: nombre, ProyectoID: projectID, CreatedAt: testEpoch}
	f.mu.Lock()
	f.contacts[projectID] = append(f.contacts[projectID], c)
	f.mu.Unlock()
	return c, nil
}

func (f *fakeProjects) RemoveContact(ctx context.Context, projectID uuid.UUID, email string, actor audit.Actor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, email)
	return nil
}

func (f *fakeProjects) ListContacts(ctx context.Context, projectID uuid.UUID) ([]*domain.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contacts[projectID], nil
}

type fakeActivity struct {
	entries []*domain.ActivityEntry
}

func (f *fakeActivity) List(ctx context.Context, limit, offset int) ([]*domain.ActivityEntry, error) {
	return f.entries, nil
}

// fakeTenants answers per project from a fixed table.
type fakeTenants struct {
	answers map[uuid.UUID]backstage.Result
	paths   []string
	queries []url.Values
}

func (f *fakeTenants) FanOut(ctx context.Context, projects []*domain.Project, path string, query url.Values) (*backstage.Aggregate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.paths = append(f.paths, path)
	f.queries = append(f.queries, query)
	agg := &backstage.Aggregate{}
	for _, p := range projects {
		if !p.HasAPI() {
			continue
		}
		res := f.answers[p.ID]
		res.ProyectoID = p.ID
		res.ProyectoNombre = p.Nombre
		agg.Resultados = append(agg.Resultados, res)
	}
	return agg, nil
}

type fakeIdempotency struct {
	mu        sync.Mutex
	responses map[string][]byte
	err       error
}

func (f *fakeIdempotency) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.responses[key], nil
}

func (f *fakeIdempotency) Save(ctx context.Context, key string, response []byte, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, ok := f.responses[key]; !ok {
		f.responses[key] = response
	}
	return nil
}

// testAPI wires every handler to fakes behind a chi router with the real
// correlation and session middleware.
type testAPI struct {
	router   http.Handler
	chats    *fakeChats
	tickets  *fakeTickets
	bot      *fakeBot
	quotes   *fakeQuotes
	uploads  *fakeUploads
	files    *fakeFiles
	auth     *fakeAuth
	projects *fakeProjects
	activity *fakeActivity
	tenants  *fakeTenants
	limiter  *middleware.LoginRateLimiter

	idempotency *fakeIdempotency
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := zap.NewNop()
	api := &testAPI{
		chats:    newFakeChats(),
		tickets:  newFakeTickets(),
		bot:      &fakeBot{},
		quotes:   &fakeQuotes{},
		uploads:  &fakeUploads{},
		files:    &fakeFiles{files: map[string][]byte{"soporte/2026/03/x.jpg": []byte("jpeg-bytes")}},
		auth:     &fakeAuth{},
		projects: newFakeProjects(),
		activity: &fakeActivity{},
		tenants:  &fakeTenants{answers: make(map[uuid.UUID]backstage.Result)},
		limiter:  middleware.NewLoginRateLimiter(nil, logger),

		idempotency: &fakeIdempotency{responses: make(map[string][]byte)},
	}

	h := &Handler{
		Ayuda: NewAyudaHandler(AyudaHandlerConfig{
			Chats: api.chats, Tickets: api.tickets, Bot: api.bot, Logger: logger,
		}),
		Tickets: NewTicketHandler(api.tickets, logger).WithIdempotency(api.idempotency, time.Hour, nil),
		Quotes:  NewQuoteHandler(api.quotes, logger),
		Uploads: NewUploadHandler(UploadHandlerConfig{
			Uploads: api.uploads, Files: api.files, MaxBytes: 1 << 20, PublicPath: "/uploads", Logger: logger,
		}),
		Console: NewConsoleHandler(ConsoleHandlerConfig{
			Auth:         api.auth,
			Chats:        api.chats,
			Projects:     api.projects,
			Activity:     api.activity,
			Tenants:      api.tenants,
			LoginLimiter: api.limiter,
			Cookie:       CookieConfig{Name: "andres_session"},
			Logger:       logger,
		}),
		Health: NewHealthHandler(HealthHandlerConfig{Logger: logger}),
	}

	r := chi.NewRouter()
	r.Use(middleware.Correlation)
	auth := middleware.NewSessionAuth(api.auth, "andres_session", logger)
	h.RegisterRoutes(r, auth.Middleware)
	api.router = r
	return api
}

// do sends a request; body is JSON-encoded unless it is already a reader.
func (a *testAPI) do(t *testing.T, method, target string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case io.Reader:
		rd = b
	case string:
		rd = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}
