package chatflow

import (
	"fmt"
	"strings"

	"github.com/andresdev/backstage/internal/domain"
	"github.com/andresdev/backstage/internal/validation"
)

// Links are the URLs the bot hands out.
type Links struct {
	CatalogURL  string
	WhatsAppURL string
	// TicketBaseURL is joined with a ticket id to build its detail link.
	TicketBaseURL string
}

// TicketURL returns the detail link for a ticket, or "" without a base URL.
func (l Links) TicketURL(ref domain.TicketRef) string {
	if l.TicketBaseURL == "" {
		return ""
	}
	return strings.TrimRight(l.TicketBaseURL, "/") + "/" + ref.ID.String()
}

// Flow holds the conversation rules. Its methods are pure.
type Flow struct {
	responder *Responder
	links     Links
}

// NewFlow creates a Flow. A nil responder uses the default knowledge base.
func NewFlow(responder *Responder, links Links) *Flow {
	if responder == nil {
		responder = NewResponder(nil, DefaultKnowledgeBase)
	}
	return &Flow{responder: responder, links: links}
}

const (
	textGreeting       = "¡Hola! Soy Andrebot, el asistente de soporte de Andrés. ¿En qué te ayudo hoy?"
	textComingSoon     = "Esta opción estará disponible muy pronto. Por ahora puedo ayudarte con soporte."
	textChooseOption   = "Elige una de las opciones para empezar."
	textAskEmail       = "Escribe el correo con el que te registraste para encontrar tu cuenta."
	textInvalidEmail   = "Ese correo no parece válido. Escríbelo de nuevo, por ejemplo nombre@empresa.com."
	textEmailNotFound  = "No encontré ese correo entre nuestros clientes. Revisa que esté bien escrito o usa otro."
	textLookupFailed   = "No pude verificar tu correo en este momento. Inténtalo de nuevo en unos segundos."
	textYourTickets    = "Estos son tus tickets recientes:"
	textNotUnderstood  = "No estoy seguro de haberte entendido. Cuéntame el problema con otras palabras o elige una opción."
	textFAQFollowUp    = "Si esto no lo resuelve, puedo crear un ticket para el equipo."
	textStartTicket    = "Entiendo, vamos a crear un ticket."
	textAskSupportKind = "¿Qué tipo de soporte necesitas?"
	textAttachOnlyHere = "Podrás adjuntar una imagen cuando te la pida."
	textEmptyAnswer    = "Necesito una respuesta para continuar."
	textAskPriority    = "¿Qué tan urgente es?"
	textInvalidOption  = "Elige una de las prioridades disponibles."
	textTicketFailed   = "No pude crear el ticket. Toca \"Crear ticket\" para intentarlo de nuevo."
	textImageAttached  = "Imagen adjunta"
)

var questions = map[Branch][questionCount]string{
	BranchError: {
		"¿En qué módulo o pantalla ocurre?",
		"Cuéntame los pasos que hiciste antes de que apareciera el problema.",
		"Si puedes, adjunta una captura o copia el mensaje que aparece. Escribe \"omitir\" para continuar sin ella.",
	},
	BranchImprovement: {
		"¿En qué módulo o pantalla quieres la mejora?",
		"Descríbeme la mejora que necesitas.",
		"¿Tienes una referencia o captura? Adjúntala o escribe \"omitir\" para continuar.",
	},
}

var questionActions = [questionCount]domain.Action{domain.ActionChooseModule, "", ""}

// Start returns the opening transition.
func (f *Flow) Start() Transition {
	return Transition{State: Home{}, Messages: []domain.ChatMessage{bot(textGreeting)}}
}

// Reduce applies a user event to s. Free text longer than a transcript
// message allows is cut to that length.
func (f *Flow) Reduce(s State, ev Event) Transition {
	if s == nil {
		s = Home{}
	}
	if ev.Type == EventText {
		ev.Value = truncate(ev.Value, validation.MaxMessageLength)
	}
	if ev.Type == EventReset {
		t := f.Start()
		t.Reset = true
		return t
	}

	switch st := s.(type) {
	case Home:
		return f.reduceHome(st, ev)
	case AwaitingEmail:
		return f.reduceAwaitingEmail(st, ev)
	case Ready:
		return f.reduceReady(st, ev)
	case Question:
		return f.reduceQuestion(st, ev)
	case AwaitingPriority:
		return f.reduceAwaitingPriority(st, ev)
	}
	return f.Start()
}

func (f *Flow) reduceHome(st Home, ev Event) Transition {
	if ev.Type != EventChoose {
		return f.reprompt(st, ev)
	}
	switch ev.Value {
	case OptionSupport:
		return Transition{
			State:    AwaitingEmail{},
			Messages: []domain.ChatMessage{user("Soporte"), bot(textAskEmail)},
		}
	case OptionQuote, OptionServices:
		return Transition{State: st, Messages: []domain.ChatMessage{bot(textComingSoon)}}
	}
	return f.reprompt(st, ev)
}

func (f *Flow) reduceAwaitingEmail(st AwaitingEmail, ev Event) Transition {
	if ev.Type != EventText {
		return f.reprompt(st, ev)
	}

	email := strings.TrimSpace(ev.Value)
	msgs := []domain.ChatMessage{user(email)}
	if !domain.IsValidEmail(email) {
		return Transition{State: st, Messages: append(msgs, bot(textInvalidEmail))}
	}
	return Transition{
		State:    st,
		Messages: msgs,
		Command:  Identify{Email: domain.NormalizeEmail(email)},
	}
}

func (f *Flow) reduceReady(st Ready, ev Event) Transition {
	ident := st.Identity

	switch ev.Type {
	case EventSupportKind:
		branch := Branch(ev.Value)
		if !branch.IsValid() {
			return f.reprompt(st, ev)
		}
		return Transition{
			State:    Question{Identity: ident, Branch: branch, Step: 1, Answers: []string{branch.Label()}},
			Messages: []domain.ChatMessage{user(branch.Label()), f.question(ident, branch, 1, "")},
		}

	case EventRequestTicket:
		if st.Pending != nil {
			draft := *st.Pending
			return Transition{
				State:    st,
				Messages: []domain.ChatMessage{user("Crear ticket")},
				Command:  CreateTicket{Draft: draft},
			}
		}
		return Transition{
			State:    Ready{Identity: ident},
			Messages: []domain.ChatMessage{user("Crear ticket"), botAction(ident, textAskSupportKind, domain.ActionChooseSupportType)},
		}

	case EventText:
		text := strings.TrimSpace(ev.Value)
		if text == "" {
			return f.reprompt(st, ev)
		}
		msgs := []domain.ChatMessage{user(text)}

		reply := f.responder.Respond(text)
		switch reply.Action {
		case ReplyTicket:
			return Transition{
				State:    Question{Identity: ident, Branch: BranchError, Step: 1, Answers: []string{text}},
				Messages: append(msgs, f.question(ident, BranchError, 1, textStartTicket)),
			}
		case ReplyQuote:
			return Transition{State: st, Messages: append(msgs, botAction(ident, f.quoteDeflection(), domain.ActionRequestQuote))}
		case ReplyFAQ:
			return Transition{State: st, Messages: append(msgs,
				botFor(ident, reply.Answer),
				botAction(ident, textFAQFollowUp, domain.ActionRequestTicket),
			)}
		}
		return Transition{State: st, Messages: append(msgs, botAction(ident, textNotUnderstood, domain.ActionChooseSupportType))}
	}
	return f.reprompt(st, ev)
}

func (f *Flow) reduceQuestion(st Question, ev Event) Transition {
	var answer string
	var msg domain.ChatMessage

	switch ev.Type {
	case EventText:
		text := strings.TrimSpace(ev.Value)
		if text == "" {
			return Transition{State: st, Messages: []domain.ChatMessage{botFor(st.Identity, textEmptyAnswer)}}
		}
		msg = user(text)
		answer = text
		if st.Step == questionCount && strings.EqualFold(text, skipWord) {
			answer = ""
		}
	case EventImage:
		if st.Step != questionCount || strings.TrimSpace(ev.Value) == "" {
			return Transition{State: st, Messages: []domain.ChatMessage{botFor(st.Identity, textAttachOnlyHere)}}
		}
		msg = user(textImageAttached)
		msg.ImageURL = strings.TrimSpace(ev.Value)
		answer = msg.ImageURL
	default:
		return f.reprompt(st, ev)
	}

	answers := appendAnswer(st.Answers, answer)
	if st.Step < questionCount {
		next := st.Step + 1
		return Transition{
			State:    Question{Identity: st.Identity, Branch: st.Branch, Step: next, Answers: answers},
			Messages: []domain.ChatMessage{msg, f.question(st.Identity, st.Branch, next, "")},
		}
	}
	return Transition{
		State:    AwaitingPriority{Identity: st.Identity, Branch: st.Branch, Answers: answers},
		Messages: []domain.ChatMessage{msg, botAction(st.Identity, textAskPriority, domain.ActionChoosePriority)},
	}
}

func (f *Flow) reduceAwaitingPriority(st AwaitingPriority, ev Event) Transition {
	if ev.Type != EventPriority {
		return f.reprompt(st, ev)
	}
	priority := domain.Priority(ev.Value)
	if !priority.IsValid() {
		return Transition{State: st, Messages: []domain.ChatMessage{botAction(st.Identity, textInvalidOption, domain.ActionChoosePriority)}}
	}

	draft := f.Draft(st.Identity, st.Branch, st.Answers, priority)
	return Transition{
		State:    Ready{Identity: st.Identity, Pending: &draft},
		Messages: []domain.ChatMessage{user(priority.Label())},
		Command:  CreateTicket{Draft: draft},
	}
}

// Draft assembles the ticket payload from the buffered answers.
func (f *Flow) Draft(ident domain.Identity, branch Branch, answers []string, priority domain.Priority) domain.TicketDraft {
	var module string
	if len(answers) > 1 {
		module = firstLine(answers[1])
	}
	return domain.TicketDraft{
		ProyectoID:      ident.ProyectoID,
		ProyectoNombre:  ident.ProyectoNombre,
		Modulo:          truncate(module, validation.MaxModuleLength),
		Titulo:          BuildTitle(branch, answers),
		Descripcion:     truncate(BuildDescription(branch, answers), validation.MaxDescriptionLength),
		CreadoPorNombre: ident.Nombre,
		CreadoPorEmail:  ident.Email,
		Prioridad:       priority,
	}
}

// Apply feeds a command result back into s.
func (f *Flow) Apply(s State, r Result) Transition {
	switch res := r.(type) {
	case Identified:
		if _, ok := s.(AwaitingEmail); !ok {
			return Transition{State: s}
		}
		if !res.Identity.Found {
			return Transition{State: s, Messages: []domain.ChatMessage{bot(textEmailNotFound)}}
		}
		ident := res.Identity
		msgs := []domain.ChatMessage{botAction(ident, f.welcome(ident), domain.ActionChooseSupportType)}
		if len(res.Tickets) > 0 {
			m := botFor(ident, textYourTickets)
			m.Tickets = res.Tickets
			msgs = append(msgs, m)
		}
		return Transition{State: Ready{Identity: ident}, Messages: msgs}

	case IdentifyFailed:
		return Transition{State: s, Messages: []domain.ChatMessage{bot(textLookupFailed)}}

	case TicketCreated:
		ident, _ := IdentityOf(s)
		m := botFor(ident, f.ticketCreated(res.Ref))
		m.Tickets = []domain.TicketRef{res.Ref}
		return Transition{State: Ready{Identity: ident}, Messages: []domain.ChatMessage{m}}

	case TicketFailed:
		ident, _ := IdentityOf(s)
		return Transition{State: s, Messages: []domain.ChatMessage{botAction(ident, textTicketFailed, domain.ActionRequestTicket)}}
	}
	return Transition{State: s}
}

// reprompt repeats the current prompt for an event the state does not accept.
func (f *Flow) reprompt(s State, ev Event) Transition {
	var msgs []domain.ChatMessage
	if ev.Type == EventText && strings.TrimSpace(ev.Value) != "" {
		msgs = append(msgs, user(strings.TrimSpace(ev.Value)))
	}

	switch st := s.(type) {
	case Home:
		msgs = append(msgs, bot(textChooseOption))
	case AwaitingEmail:
		msgs = append(msgs, bot(textAskEmail))
	case Ready:
		msgs = append(msgs, botAction(st.Identity, textAskSupportKind, domain.ActionChooseSupportType))
	case Question:
		msgs = append(msgs, f.question(st.Identity, st.Branch, st.Step, ""))
	case AwaitingPriority:
		msgs = append(msgs, botAction(st.Identity, textAskPriority, domain.ActionChoosePriority))
	}
	return Transition{State: s, Messages: msgs}
}

func (f *Flow) question(ident domain.Identity, branch Branch, step int, preface string) domain.ChatMessage {
	qs, ok := questions[branch]
	if !ok {
		qs = questions[BranchError]
	}
	text := qs[step-1]
	if preface != "" {
		text = preface + " " + text
	}
	return botAction(ident, text, questionActions[step-1])
}

func (f *Flow) welcome(ident domain.Identity) string {
	name := ident.Nombre
	if name == "" {
		name = ident.Email
	}
	if ident.ProyectoNombre != "" {
		return fmt.Sprintf("¡Hola, %s! Te encontré en %s. Cuéntame qué pasó o elige una opción.", name, ident.ProyectoNombre)
	}
	return fmt.Sprintf("¡Hola, %s! Cuéntame qué pasó o elige una opción.", name)
}

func (f *Flow) quoteDeflection() string {
	text := "Para cotizar un sistema revisa nuestro catálogo"
	if f.links.CatalogURL != "" {
		text += " en " + f.links.CatalogURL
	}
	if f.links.WhatsAppURL != "" {
		text += " o escríbenos por WhatsApp: " + f.links.WhatsAppURL
	}
	return text + "."
}

func (f *Flow) ticketCreated(ref domain.TicketRef) string {
	code := ref.SupportID
	if code == "" {
		code = "tu ticket"
	}
	text := fmt.Sprintf("Listo, creé %s. El equipo ya lo tiene en cola.", code)
	if link := f.links.TicketURL(ref); link != "" {
		text += " Puedes ver su avance aquí: " + link
	}
	return text
}

func appendAnswer(answers []string, answer string) []string {
	out := make([]string, len(answers), len(answers)+1)
	copy(out, answers)
	return append(out, answer)
}

func user(text string) domain.ChatMessage {
	return domain.ChatMessage{Role: domain.RoleUser, Text: text}
}

func bot(text string) domain.ChatMessage {
	return domain.ChatMessage{Role: domain.RoleBot, Text: text}
}

func botFor(ident domain.Identity, text string) domain.ChatMessage {
	m := bot(text)
	m.Branding = ident.Branding()
	return m
}

func botAction(ident domain.Identity, text string, action domain.Action) domain.ChatMessage {
	m := botFor(ident, text)
	m.Action = action
	return m
}
