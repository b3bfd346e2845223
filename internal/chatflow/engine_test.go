package chatflow

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresdev/backstage/internal/clock"
	"github.com/andresdev/backstage/internal/domain"
	"github.com/andresdev/backstage/internal/validation"
)

type fakeBackend struct {
	identity    domain.Identity
	identifyErr error
	sessionErr  error
	appendErr   error
	ticketErr   error
	tickets     []domain.TicketRef
	// strict rejects batches the way the public API does.
	strict bool

	sessions int
	appends  [][]domain.ChatMessage
	drafts   []domain.TicketDraft
}

func (b *fakeBackend) Identify(_ context.Context, email string) (domain.Identity, error) {
	if b.identifyErr != nil {
		return domain.Identity{}, b.identifyErr
	}
	return b.identity, nil
}

func (b *fakeBackend) CreateSession(context.Context, domain.Identity) (uuid.UUID, error) {
	if b.sessionErr != nil {
		return uuid.Nil, b.sessionErr
	}
	b.sessions++
	return uuid.New(), nil
}

func (b *fakeBackend) AppendMessages(_ context.Context, _ uuid.UUID, msgs []domain.ChatMessage) error {
	if b.appendErr != nil {
		return b.appendErr
	}
	if b.strict {
		if err := validation.Messages(msgs); err != nil {
			return err
		}
	}
	b.appends = append(b.appends, append([]domain.ChatMessage(nil), msgs...))
	return nil
}

func (b *fakeBackend) ListTickets(context.Context, string) ([]domain.TicketRef, error) {
	return b.tickets, nil
}

func (b *fakeBackend) CreateTicket(_ context.Context, d domain.TicketDraft) (domain.TicketRef, error) {
	if b.ticketErr != nil {
		return domain.TicketRef{}, b.ticketErr
	}
	b.drafts = append(b.drafts, d)
	return domain.TicketRef{ID: uuid.New(), SupportID: "SOP-00001", EstadoLabel: "Creado"}, nil
}

func newTestEngine(b *fakeBackend, delay time.Duration) (*Engine, *clock.Mock) {
	clk := clock.NewMock(time.Date(2026, 5, 2, 15, 0, 0, 0, time.UTC))
	return NewEngine(testFlow(), b, clk, delay, nil), clk
}

func identify(t *testing.T, e *Engine, conv *Conversation) {
	t.Helper()
	e.Step(context.Background(), conv, Choose(OptionSupport))
	e.Step(context.Background(), conv, Text("ana@tienda.com"))
	require.IsType(t, Ready{}, conv.State)
}

func TestEngine_IdentifyCreatesSessionAndFlushes(t *testing.T) {
	b := &fakeBackend{identity: testIdentity()}
	e, _ := newTestEngine(b, 0)
	conv := e.Start()

	identify(t, e, conv)

	assert.Equal(t, 1, b.sessions)
	require.NotNil(t, conv.SessionID)
	require.Len(t, b.appends, 1)
	assert.Len(t, b.appends[0], len(conv.Messages))
	assert.Equal(t, len(conv.Messages), conv.Flushed)
}

func TestEngine_FlushIsIdempotent(t *testing.T) {
	b := &fakeBackend{identity: testIdentity()}
	e, _ := newTestEngine(b, 0)
	conv := e.Start()
	identify(t, e, conv)

	calls := len(b.appends)
	e.Flush(context.Background(), conv)
	e.Flush(context.Background(), conv)
	assert.Equal(t, calls, len(b.appends))

	e.Step(context.Background(), conv, Text("hola"))
	require.Len(t, b.appends, calls+1)
	assert.Equal(t, "hola", b.appends[calls][0].Text)
}

func TestEngine_FlushFailureKeepsCursor(t *testing.T) {
	b := &fakeBackend{identity: testIdentity(), appendErr: errors.New("offline")}
	e, _ := newTestEngine(b, 0)
	conv := e.Start()
	identify(t, e, conv)

	assert.Zero(t, conv.Flushed)

	b.appendErr = nil
	e.Flush(context.Background(), conv)
	assert.Equal(t, len(conv.Messages), conv.Flushed)
	require.Len(t, b.appends, 1)
	assert.Equal(t, textGreeting, b.appends[0][0].Text)
}

func persisted(b *fakeBackend) int {
	n := 0
	for _, batch := range b.appends {
		n += len(batch)
	}
	return n
}

func TestEngine_FlushSplitsLongBacklog(t *testing.T) {
	b := &fakeBackend{identity: testIdentity(), strict: true}
	e, _ := newTestEngine(b, 0)
	conv := e.Start()

	e.Step(context.Background(), conv, Choose(OptionSupport))
	for i := 0; i < 30; i++ {
		e.Step(context.Background(), conv, Text("no-es-correo"))
	}
	e.Step(context.Background(), conv, Text("ana@tienda.com"))
	require.IsType(t, Ready{}, conv.State)

	require.Greater(t, len(conv.Messages), validation.MaxMessagesPerAppend)
	assert.Equal(t, len(conv.Messages), conv.Flushed)
	assert.Equal(t, len(conv.Messages), persisted(b))
	for _, batch := range b.appends {
		assert.LessOrEqual(t, len(batch), validation.MaxMessagesPerAppend)
	}
}

func TestEngine_FlushAdvancesPerStoredBatch(t *testing.T) {
	b := &fakeBackend{identity: testIdentity()}
	e, _ := newTestEngine(b, 0)
	conv := &Conversation{State: Ready{Identity: testIdentity()}}
	for i := 0; i < validation.MaxMessagesPerAppend+10; i++ {
		conv.Messages = append(conv.Messages, domain.ChatMessage{Role: domain.RoleUser, Text: "hola"})
	}

	e.Flush(context.Background(), conv)
	require.Len(t, b.appends, 2)
	assert.Len(t, b.appends[0], validation.MaxMessagesPerAppend)
	assert.Len(t, b.appends[1], 10)
	assert.Equal(t, len(conv.Messages), conv.Flushed)
}

func TestEngine_LongTextIsCappedAndPersisted(t *testing.T) {
	b := &fakeBackend{identity: testIdentity(), strict: true}
	e, _ := newTestEngine(b, 0)
	conv := e.Start()
	identify(t, e, conv)

	e.Step(context.Background(), conv, Text(strings.Repeat("á", validation.MaxMessageLength+500)))
	e.Step(context.Background(), conv, Text("hola"))

	assert.Equal(t, len(conv.Messages), conv.Flushed)
	assert.Equal(t, len(conv.Messages), persisted(b))
	for _, m := range conv.Messages {
		assert.LessOrEqual(t, len([]rune(m.Text)), validation.MaxMessageLength)
	}
}

func TestFlow_DraftFitsTicketLimits(t *testing.T) {
	long := strings.Repeat("x", validation.MaxMessageLength)
	d := testFlow().Draft(testIdentity(), BranchError, []string{long, long, long, long}, domain.PriorityMedium)
	assert.NoError(t, validation.TicketDraft(d))
}

func TestEngine_SessionRetriedOnNextStep(t *testing.T) {
	b := &fakeBackend{identity: testIdentity(), sessionErr: errors.New("offline")}
	e, _ := newTestEngine(b, 0)
	conv := e.Start()
	identify(t, e, conv)
	assert.Nil(t, conv.SessionID)

	b.sessionErr = nil
	e.Step(context.Background(), conv, Text("hola"))
	require.NotNil(t, conv.SessionID)
	assert.Equal(t, len(conv.Messages), conv.Flushed)
}

func TestEngine_TypingDelay(t *testing.T) {
	b := &fakeBackend{identity: testIdentity()}
	e, clk := newTestEngine(b, DefaultTypingDelay)
	conv := e.Start()

	e.Step(context.Background(), conv, Choose(OptionSupport))
	assert.Empty(t, clk.Waits())

	out := e.Step(context.Background(), conv, Text("ana@tienda.com"))
	assert.Equal(t, []time.Duration{DefaultTypingDelay}, clk.Waits())

	require.GreaterOrEqual(t, len(out), 2)
	assert.Equal(t, domain.RoleUser, out[0].Role)
	assert.Equal(t, domain.RoleBot, out[1].Role)
	assert.True(t, out[1].CreatedAt.After(out[0].CreatedAt))
}

func TestEngine_LookupFailureIsRecoverable(t *testing.T) {
	b := &fakeBackend{identifyErr: errors.New("connection refused")}
	e, _ := newTestEngine(b, 0)
	conv := e.Start()

	e.Step(context.Background(), conv, Choose(OptionSupport))
	out := e.Step(context.Background(), conv, Text("ana@tienda.com"))

	assert.IsType(t, AwaitingEmail{}, conv.State)
	assert.Equal(t, textLookupFailed, out[len(out)-1].Text)
	assert.Nil(t, conv.SessionID)

	b.identifyErr = nil
	b.identity = testIdentity()
	e.Step(context.Background(), conv, Text("ana@tienda.com"))
	assert.IsType(t, Ready{}, conv.State)
}

func TestEngine_FullTicketFlow(t *testing.T) {
	b := &fakeBackend{identity: testIdentity()}
	e, _ := newTestEngine(b, 0)
	conv := e.Start()
	identify(t, e, conv)

	for _, ev := range []Event{SupportKind(BranchError), Text("Ventas"), Text("no carga"), Text("omitir")} {
		e.Step(context.Background(), conv, ev)
	}
	out := e.Step(context.Background(), conv, SelectPriority(domain.PriorityUrgent))

	require.Len(t, b.drafts, 1)
	assert.Contains(t, b.drafts[0].Descripcion, "Módulo/pantalla: Ventas")
	assert.Equal(t, domain.PriorityUrgent, b.drafts[0].Prioridad)
	assert.Contains(t, out[len(out)-1].Text, "SOP-00001")
	assert.Equal(t, Ready{Identity: testIdentity()}, conv.State)
}

func TestEngine_TicketFailureThenRetry(t *testing.T) {
	b := &fakeBackend{identity: testIdentity(), ticketErr: errors.New("500")}
	e, _ := newTestEngine(b, 0)
	conv := e.Start()
	identify(t, e, conv)

	for _, ev := range []Event{Text("la caja se cae"), Text("Caja"), Text("abrir turno"), Text("omitir")} {
		e.Step(context.Background(), conv, ev)
	}
	out := e.Step(context.Background(), conv, SelectPriority(domain.PriorityMedium))
	assert.Equal(t, domain.ActionRequestTicket, out[len(out)-1].Action)

	b.ticketErr = nil
	e.Step(context.Background(), conv, RequestTicket())
	require.Len(t, b.drafts, 1)
	assert.Contains(t, b.drafts[0].Descripcion, "Problema: la caja se cae")
	assert.Nil(t, conv.State.(Ready).Pending)
}

func TestEngine_ResetClearsSession(t *testing.T) {
	b := &fakeBackend{identity: testIdentity()}
	e, _ := newTestEngine(b, 0)
	conv := e.Start()
	identify(t, e, conv)
	require.NotNil(t, conv.SessionID)

	e.Step(context.Background(), conv, Reset())

	assert.Nil(t, conv.SessionID)
	assert.Equal(t, Home{}, conv.State)
	require.Len(t, conv.Messages, 1)
	assert.Zero(t, conv.Flushed)
}

func TestConversation_JSON(t *testing.T) {
	b := &fakeBackend{identity: testIdentity()}
	e, _ := newTestEngine(b, 0)
	conv := e.Start()
	identify(t, e, conv)
	e.Step(context.Background(), conv, SupportKind(BranchImprovement))
	e.Step(context.Background(), conv, Text("Reportes"))

	data, err := json.Marshal(conv)
	require.NoError(t, err)

	var decoded Conversation
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, conv.State, decoded.State)
	assert.Equal(t, conv.SessionID, decoded.SessionID)
	assert.Equal(t, conv.Flushed, decoded.Flushed)
	assert.Len(t, decoded.Messages, len(conv.Messages))

	var broken Conversation
	assert.Error(t, json.Unmarshal([]byte(`{"estado":{"tipo":"pregunta","paso":9}}`), &broken))
	assert.Error(t, json.Unmarshal([]byte(`{"estado":{"tipo":"desconocido"}}`), &broken))
}
