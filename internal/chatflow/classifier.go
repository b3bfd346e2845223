package chatflow

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Intent is what a free-text message is asking for.
type Intent string

const (
	IntentNone   Intent = ""
	IntentTicket Intent = "ticket"
	IntentQuote  Intent = "cotizar"
)

// Classifier maps free text to an intent.
type Classifier interface {
	Classify(text string) Intent
}

var (
	ticketWords = regexp.MustCompile(`\b(error(es)?|falla|fallo|problema(s)?|bug|ticket|soporte|lento|caido|bloqueado|no (carga|funciona|abre|sirve|deja|guarda|imprime|aparece)|se (cae|cayo|cierra|congela|traba))\b`)
	quoteWords  = regexp.MustCompile(`\b(cotiza\w*|cotizacion(es)?|presupuesto|precio(s)?|cuanto (cuesta|vale|sale|cobran)|comprar|contratar|adquirir)\b`)
)

// KeywordClassifier matches support and quote vocabulary. Support wins when both match.
type KeywordClassifier struct{}

// Classify implements Classifier.
func (KeywordClassifier) Classify(text string) Intent {
	folded := fold(text)
	switch {
	case ticketWords.MatchString(folded):
		return IntentTicket
	case quoteWords.MatchString(folded):
		return IntentQuote
	}
	return IntentNone
}

// FAQEntry is one knowledge base answer.
type FAQEntry struct {
	Module   string `yaml:"modulo" json:"modulo"`
	Question string `yaml:"pregunta" json:"pregunta"`
	Answer   string `yaml:"respuesta" json:"respuesta"`
}

// KnowledgeBase is an ordered list of entries; earlier entries win ties.
type KnowledgeBase []FAQEntry

// DefaultKnowledgeBase is used when no file is configured.
var DefaultKnowledgeBase = KnowledgeBase{
	{
		Module:   "ventas",
		Question: "¿Cómo registro una venta?",
		Answer:   "Entra a Ventas > Nueva venta, agrega los productos, elige el medio de pago y confirma.",
	},
	{
		Module:   "ventas",
		Question: "¿Cómo anulo una venta?",
		Answer:   "En Ventas > Historial abre la venta y usa el botón Anular. Solo los administradores pueden hacerlo.",
	},
	{
		Module:   "inventario",
		Question: "¿Cómo veo el stock de un producto?",
		Answer:   "En Inventario > Productos busca el producto; la columna Stock muestra las unidades disponibles por bodega.",
	},
	{
		Module:   "inventario",
		Question: "¿Cómo ajusto las existencias?",
		Answer:   "Usa Inventario > Ajustes, indica el producto, la cantidad y el motivo del ajuste.",
	},
	{
		Module:   "facturacion",
		Question: "¿Dónde descargo una factura electrónica?",
		Answer:   "En Facturación > Documentos abre la factura y usa Descargar PDF o Descargar XML.",
	},
	{
		Module:   "usuarios",
		Question: "¿Cómo cambio mi contraseña?",
		Answer:   "Abre tu perfil en la esquina superior derecha y elige Cambiar contraseña.",
	},
}

// LoadKnowledgeBase reads a YAML list of entries.
func LoadKnowledgeBase(path string) (KnowledgeBase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge base: %w", err)
	}

	var kb KnowledgeBase
	if err := yaml.Unmarshal(data, &kb); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge base: %w", err)
	}
	for i, e := range kb {
		if strings.TrimSpace(e.Question) == "" || strings.TrimSpace(e.Answer) == "" {
			return nil, fmt.Errorf("knowledge base entry %d: question and answer are required", i)
		}
	}
	return kb, nil
}

// Match returns the best scoring entry for text and its score.
// Tokens longer than two characters score one point each when they appear
// inside the entry's module and question. A zero score returns nil.
func (kb KnowledgeBase) Match(text string) (*FAQEntry, int) {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil, 0
	}

	best, bestScore := -1, 0
	for i, e := range kb {
		haystack := fold(e.Module + " " + e.Question)
		score := 0
		for _, tok := range tokens {
			if strings.Contains(haystack, tok) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return nil, 0
	}
	return &kb[best], bestScore
}

// ReplyAction is the kind of answer Respond produced.
type ReplyAction string

const (
	ReplyTicket  ReplyAction = "ticket"
	ReplyQuote   ReplyAction = "cotizar"
	ReplyFAQ     ReplyAction = "faq"
	ReplyUnknown ReplyAction = "desconocido"
)

// Reply is the outcome of Respond.
type Reply struct {
	Action ReplyAction `json:"action"`
	Answer string      `json:"answer,omitempty"`
	Module string      `json:"modulo,omitempty"`
}

// Responder combines intent classification with the FAQ fallback.
type Responder struct {
	classifier Classifier
	kb         KnowledgeBase
}

// NewResponder creates a Responder. A nil classifier uses KeywordClassifier.
func NewResponder(c Classifier, kb KnowledgeBase) *Responder {
	if c == nil {
		c = KeywordClassifier{}
	}
	return &Responder{classifier: c, kb: kb}
}

// Respond answers a free-text message.
func (r *Responder) Respond(text string) Reply {
	switch r.classifier.Classify(text) {
	case IntentTicket:
		return Reply{Action: ReplyTicket}
	case IntentQuote:
		return Reply{Action: ReplyQuote}
	}
	if entry, _ := r.kb.Match(text); entry != nil {
		return Reply{Action: ReplyFAQ, Answer: entry.Answer, Module: entry.Module}
	}
	return Reply{Action: ReplyUnknown}
}

var accentFolder = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n",
)

// fold lowercases and strips Spanish accents.
func fold(s string) string {
	return accentFolder.Replace(strings.ToLower(s))
}

func tokenize(text string) []string {
	words := strings.FieldsFunc(fold(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := words[:0]
	for _, w := range words {
		if len([]rune(w)) > 2 {
			tokens = append(tokens, w)
		}
	}
	return tokens
}
