package main

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/andresdev/backstage/internal/chatflow"
	"github.com/andresdev/backstage/internal/clock"
	"github.com/andresdev/backstage/internal/domain"
)

type fakeBackend struct {
	mu        sync.Mutex
	sessionID uuid.UUID
	appended  []domain.ChatMessage
	drafts    []domain.TicketDraft
	uploads   []string
	tickets   []domain.TicketRef
	chatErr   error
	chatReads int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{sessionID: uuid.New()}
}

func (f *fakeBackend) Identify(ctx context.Context, email string) (domain.Identity, error) {
	if email != "maria@lopez.mx" {
		return domain.Identity{Email: email}, nil
	}
	return domain.Identity{Found: true, Email: email, Nombre: "María", ProyectoNombre: "Ferretería López"}, nil
}

func (f *fakeBackend) CreateSession(ctx context.Context, ident domain.Identity) (uuid.UUID, error) {
	return f.sessionID, nil
}

func (f *fakeBackend) AppendMessages(ctx context.Context, id uuid.UUID, msgs []domain.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, msgs...)
	return nil
}

func (f *fakeBackend) GetChat(ctx context.Context, id uuid.UUID) (*domain.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatReads++
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	if id != f.sessionID {
		return nil, errors.New("chat not found")
	}
	return &domain.ChatSession{ID: id, Messages: append([]domain.ChatMessage(nil), f.appended...)}, nil
}

func (f *fakeBackend) ListTickets(ctx context.Context, email string) ([]domain.TicketRef, error) {
	return f.tickets, nil
}

func (f *fakeBackend) CreateTicket(ctx context.Context, draft domain.TicketDraft) (domain.TicketRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts = append(f.drafts, draft)
	return domain.TicketRef{ID: uuid.New(), SupportID: "SOP-00042", EstadoLabel: "Creado", Titulo: draft.Titulo}, nil
}

func (f *fakeBackend) UploadImage(ctx context.Context, filename string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, filename)
	return "http://localhost:8080/uploads/soporte/2026/03/" + filename, nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for x := 0; x < 40; x++ {
		img.Set(x, 10, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newRunner(t *testing.T, backend *fakeBackend, dir, input string, out *bytes.Buffer) *chatRunner {
	t.Helper()
	flow := chatflow.NewFlow(nil, chatflow.Links{TicketBaseURL: "http://localhost:8080/soporte/tickets"})
	clk := clock.NewMock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	return &chatRunner{
		engine:   chatflow.NewEngine(flow, backend, clk, 0, zap.NewNop()),
		store:    newSessionStore(dir),
		history:  backend,
		uploader: backend,
		readFile: func(path string) ([]byte, error) {
			if path != "captura.png" {
				return nil, errors.New("no such file")
			}
			return pngBytes(t), nil
		},
		in:     strings.NewReader(input),
		out:    out,
		logger: zap.NewNop(),
	}
}

func TestChatRunner_TicketFlow(t *testing.T) {
	backend := newFakeBackend()
	dir := t.TempDir()
	var out bytes.Buffer

	script := strings.Join([]string{
		"1",
		"maria@lopez.mx",
		"1",
		"Ventas",
		"Al cobrar se cierra la pantalla",
		"/imagen captura.png",
		"4",
		"/salir",
	}, "\n") + "\n"

	r := newRunner(t, backend, dir, script, &out)
	require.NoError(t, r.Run(context.Background()))

	require.Len(t, backend.drafts, 1)
	draft := backend.drafts[0]
	assert.Equal(t, domain.PriorityUrgent, draft.Prioridad)
	assert.Equal(t, "Ventas", draft.Modulo)
	assert.Equal(t, "maria@lopez.mx", draft.CreadoPorEmail)
	assert.Contains(t, draft.Descripcion, "captura.jpg")
	assert.Equal(t, []string{"captura.jpg"}, backend.uploads)

	output := out.String()
	assert.Contains(t, output, "Andrebot · Ferretería López")
	assert.Contains(t, output, "SOP-00042")
	assert.Contains(t, output, "[1] Error en el sistema")

	saved, err := newSessionStore(dir).Load()
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.IsType(t, chatflow.Ready{}, saved.State)
	require.NotNil(t, saved.SessionID)
	assert.Equal(t, backend.sessionID, *saved.SessionID)
	assert.Empty(t, saved.Messages, "stored messages are not cached locally")
	assert.NotEmpty(t, backend.appended)
}

func TestChatRunner_RehydratesTranscript(t *testing.T) {
	backend := newFakeBackend()
	dir := t.TempDir()

	var first bytes.Buffer
	require.NoError(t, newRunner(t, backend, dir, "1\nmaria@lopez.mx\n/salir\n", &first).Run(context.Background()))

	saved, err := newSessionStore(dir).Load()
	require.NoError(t, err)
	require.NotNil(t, saved.SessionID)
	assert.Empty(t, saved.Messages)
	stored := len(backend.appended)
	require.NotZero(t, stored)

	var second bytes.Buffer
	require.NoError(t, newRunner(t, backend, dir, "/salir\n", &second).Run(context.Background()))
	assert.Equal(t, 1, backend.chatReads)
	assert.Contains(t, second.String(), "maria@lopez.mx")
	assert.Len(t, backend.appended, stored, "nothing is sent twice")
}

func TestChatRunner_ResumesWhenHistoryUnavailable(t *testing.T) {
	backend := newFakeBackend()
	dir := t.TempDir()

	var first bytes.Buffer
	require.NoError(t, newRunner(t, backend, dir, "1\nmaria@lopez.mx\n/salir\n", &first).Run(context.Background()))

	backend.chatErr = errors.New("connection refused")
	var second bytes.Buffer
	require.NoError(t, newRunner(t, backend, dir, "/salir\n", &second).Run(context.Background()))
	assert.Contains(t, second.String(), "No pude recuperar los mensajes anteriores.")
	assert.Contains(t, second.String(), "Retomando tu conversación")
}

func TestChatRunner_ResumesAndResets(t *testing.T) {
	backend := newFakeBackend()
	dir := t.TempDir()

	var first bytes.Buffer
	require.NoError(t, newRunner(t, backend, dir, "1\n", &first).Run(context.Background()))

	var second bytes.Buffer
	require.NoError(t, newRunner(t, backend, dir, "/salir\n", &second).Run(context.Background()))
	assert.Contains(t, second.String(), "Retomando tu conversación")

	saved, err := newSessionStore(dir).Load()
	require.NoError(t, err)
	assert.IsType(t, chatflow.AwaitingEmail{}, saved.State)

	var third bytes.Buffer
	require.NoError(t, newRunner(t, backend, dir, "/nuevo\n", &third).Run(context.Background()))

	saved, err = newSessionStore(dir).Load()
	require.NoError(t, err)
	assert.IsType(t, chatflow.Home{}, saved.State)
	assert.Len(t, saved.Messages, 1)
	assert.Nil(t, saved.SessionID)
}

func TestChatRunner_ImageOutsideQuestionIsNotUploaded(t *testing.T) {
	backend := newFakeBackend()
	var out bytes.Buffer

	r := newRunner(t, backend, t.TempDir(), "/imagen captura.png\n", &out)
	require.NoError(t, r.Run(context.Background()))
	assert.Empty(t, backend.uploads)
}

func TestChatRunner_UploadErrors(t *testing.T) {
	backend := newFakeBackend()
	var out bytes.Buffer
	r := newRunner(t, backend, t.TempDir(), "", &out)

	_, err := r.upload(context.Background(), "")
	assert.Error(t, err)

	_, err = r.upload(context.Background(), "missing.png")
	assert.Error(t, err)

	r.readFile = func(string) ([]byte, error) { return []byte("just text"), nil }
	_, err = r.upload(context.Background(), "notas.txt")
	assert.ErrorContains(t, err, "no es una imagen")
	assert.Empty(t, backend.uploads)
}

func TestChatRunner_StopsOnCancel(t *testing.T) {
	backend := newFakeBackend()
	var out bytes.Buffer
	r := newRunner(t, backend, t.TempDir(), "", &out)

	pr, pw := io.Pipe()
	defer pw.Close()
	r.in = pr

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
