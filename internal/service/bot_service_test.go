package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresdev/backstage/internal/chatflow"
	"github.com/andresdev/backstage/internal/domain"
)

func newTestBotService(t *testing.T) (*BotService, chatFixture, *MockTicketRepository) {
	t.Helper()
	f := newChatFixture(t)
	tickets := NewMockTicketRepository()
	ticketSvc := NewTicketService(tickets, nil, f.deps.clock, f.deps.audit, f.deps.metrics, f.deps.events, f.deps.logger)
	flow := chatflow.NewFlow(nil, chatflow.Links{TicketBaseURL: "https://andres.dev/tickets"})
	bot := NewBotService(flow, f.svc, ticketSvc, f.deps.clock, chatflow.DefaultTypingDelay, f.deps.metrics, f.deps.logger)
	return bot, f, tickets
}

// roundTrip sends the conversation through JSON the way a client would.
func roundTrip(t *testing.T, conv *chatflow.Conversation) *chatflow.Conversation {
	t.Helper()
	data, err := json.Marshal(conv)
	require.NoError(t, err)
	var out chatflow.Conversation
	require.NoError(t, json.Unmarshal(data, &out))
	return &out
}

func TestBotService_TicketFromChat(t *testing.T) {
	bot, f, tickets := newTestBotService(t)
	ctx := context.Background()

	conv := bot.Start()
	steps := []chatflow.Event{
		chatflow.Choose(chatflow.OptionSupport),
		chatflow.Text("maria@lopez.mx"),
		chatflow.SupportKind(chatflow.BranchError),
		chatflow.Text("Facturación"),
		chatflow.Text("Al timbrar sale error 500"),
		chatflow.Text("omitir"),
		chatflow.SelectPriority(domain.PriorityUrgent),
	}
	var last []domain.ChatMessage
	for _, ev := range steps {
		conv, last = bot.Step(ctx, roundTrip(t, conv), ev)
	}

	assert.Equal(t, "listo", conv.State.Name())
	require.NotEmpty(t, last)
	confirm := last[len(last)-1]
	require.Len(t, confirm.Tickets, 1)
	assert.Equal(t, "SOP-00001", confirm.Tickets[0].SupportID)

	require.Equal(t, 1, tickets.CreateCalls)
	created, err := tickets.List(ctx, domain.TicketFilter{Email: "maria@lopez.mx"})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, domain.PriorityUrgent, created[0].Prioridad)
	require.NotNil(t, created[0].ProyectoID)
	assert.Equal(t, f.project.ID, *created[0].ProyectoID)

	require.NotNil(t, conv.SessionID)
	chat, err := f.svc.Get(ctx, *conv.SessionID)
	require.NoError(t, err)
	assert.Len(t, chat.Messages, len(conv.Messages), "the whole transcript is persisted")
	assert.Equal(t, len(conv.Messages), conv.Flushed)

	// The identification reply waited for the typing delay.
	assert.Equal(t, []time.Duration{chatflow.DefaultTypingDelay}, f.deps.clock.Waits())
}

func TestBotService_UnknownEmailPersistsNothing(t *testing.T) {
	bot, f, _ := newTestBotService(t)
	ctx := context.Background()

	conv, _ := bot.Step(ctx, nil, chatflow.Choose(chatflow.OptionSupport))
	conv, out := bot.Step(ctx, conv, chatflow.Text("nadie@ejemplo.com"))

	assert.Equal(t, "esperando_email", conv.State.Name())
	require.NotEmpty(t, out)
	assert.Equal(t, domain.RoleBot, out[len(out)-1].Role)
	assert.Nil(t, conv.SessionID)
	assert.Equal(t, 0, f.chats.CreateCalls)
}
