package chatflow

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	questionCount  = 3
	maxTitleLength = 120
	skipWord       = "omitir"
)

var descriptionLabels = map[Branch][questionCount + 1]string{
	BranchError:       {"Problema", "Módulo/pantalla", "Pasos", "Mensaje/comportamiento"},
	BranchImprovement: {"Mejora", "Módulo/pantalla", "Descripción", "Referencia"},
}

// Block is one labeled section of a ticket description.
type Block struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

var blankLines = regexp.MustCompile(`\n\s*\n`)

// BuildDescription joins the answers as "Label: value" blocks separated by a
// blank line. Empty answers are omitted.
func BuildDescription(branch Branch, answers []string) string {
	labels, ok := descriptionLabels[branch]
	if !ok {
		labels = descriptionLabels[BranchError]
	}

	blocks := make([]string, 0, len(answers))
	for i, answer := range answers {
		if i >= len(labels) {
			break
		}
		value := strings.TrimSpace(blankLines.ReplaceAllString(answer, "\n"))
		if value == "" {
			continue
		}
		blocks = append(blocks, labels[i]+": "+value)
	}
	return strings.Join(blocks, "\n\n")
}

// ParseDescription splits a description into its blocks for display.
// The "Pasos" label is shown as "Descripción". Text without a label becomes
// a block with an empty label.
func ParseDescription(description string) []Block {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil
	}

	parts := strings.Split(description, "\n\n")
	blocks := make([]Block, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		label, value, found := strings.Cut(part, ": ")
		if !found || strings.Contains(label, "\n") {
			blocks = append(blocks, Block{Value: part})
			continue
		}
		if label == "Pasos" {
			label = "Descripción"
		}
		blocks = append(blocks, Block{Label: label, Value: value})
	}
	return blocks
}

// BuildTitle derives a ticket title from the first answer and the module.
func BuildTitle(branch Branch, answers []string) string {
	var problem, module string
	if len(answers) > 0 {
		problem = firstLine(answers[0])
	}
	if len(answers) > 1 {
		module = firstLine(answers[1])
	}
	if problem == "" {
		problem = branch.Label()
	}

	title := problem
	if module != "" {
		title = problem + " - " + module
	}
	return truncate(title, maxTitleLength)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:max-1])) + "…"
}
