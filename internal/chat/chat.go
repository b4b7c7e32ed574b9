// Package chat answers follow-up questions grounded strictly in an
// already-analyzed document.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"misalud-backend/internal/inference"
	"misalud-backend/internal/orchestrator"
	"misalud-backend/internal/shared/telemetry"
	"misalud-backend/internal/textnorm"
)

// Disclaimer is appended to every answer that does not already carry it.
const Disclaimer = "Esta herramienta es educativa y no reemplaza el consejo médico."

// Canned responses for the three non-answerable cases.
const (
	UnknownResponse      = "No se puede confirmar con la información disponible. " + Disclaimer
	NeedsContextResponse = "Primero analice un documento para habilitar preguntas de seguimiento. " + Disclaimer
	RefusalResponse      = "No puedo diagnosticar ni indicar cambios de tratamiento o dosis. Consulte a su médico tratante. " + Disclaimer
)

const maxAnswerTokens = 1024

// blockedPhrases gate questions that ask for diagnosis or treatment
// changes. Matched against the folded lowercase question.
var blockedPhrases = []string{
	"diagnost",
	"diagnosis",
	"cambiar dosis",
	"subir dosis",
	"bajar dosis",
	"suspender",
	"reemplazar medicamento",
	"que tratamiento",
}

// Response is one chat answer.
type Response struct {
	Text        string `json:"text"`
	BackendName string `json:"backend_name,omitempty"`
	Refused     bool   `json:"refused,omitempty"`
}

// Answerer runs grounded question answering over a backend registry.
type Answerer struct {
	Backends *inference.Registry
}

// New constructs an Answerer.
func New(backends *inference.Registry) *Answerer {
	return &Answerer{Backends: backends}
}

// Answer responds to a follow-up question about an analyzed document.
// Without a context it asks for one; out-of-scope medical questions are
// refused; otherwise the model answers from the context alone, with the
// educational disclaimer guaranteed on every path.
func (a *Answerer) Answer(ctx context.Context, chatCtx *orchestrator.ChatContext, question, backendName string) Response {
	if chatCtx == nil {
		return Response{Text: NeedsContextResponse}
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return Response{Text: UnknownResponse}
	}
	if isBlocked(question) {
		return Response{Text: RefusalResponse, Refused: true}
	}

	payload, err := json.Marshal(chatCtx)
	if err != nil {
		telemetry.Error("chat.context_marshal_failed", map[string]any{"error": err.Error()})
		return Response{Text: UnknownResponse}
	}
	prompt := fmt.Sprintf(inference.GroundedQAPrompt, string(payload), question)

	var attempts []string
	for _, name := range inference.ResolveOrder(backendName) {
		backend, err := a.Backends.Resolve(name)
		if err != nil {
			attempts = append(attempts, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		raw, err := backend.GenerateText(ctx, prompt, maxAnswerTokens)
		if err != nil {
			attempts = append(attempts, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		answer := strings.TrimSpace(raw)
		if answer == "" {
			attempts = append(attempts, fmt.Sprintf("%s: respuesta vacía", name))
			continue
		}
		return Response{Text: ensureDisclaimer(answer), BackendName: name}
	}

	if len(attempts) > 0 {
		telemetry.Warn("chat.all_backends_failed", map[string]any{"attempts": strings.Join(attempts, " | ")})
	}
	return Response{Text: UnknownResponse}
}

func isBlocked(question string) bool {
	folded := strings.ToLower(textnorm.CollapseSpaces(textnorm.Fold(question)))
	for _, phrase := range blockedPhrases {
		if strings.Contains(folded, phrase) {
			return true
		}
	}
	return false
}

func ensureDisclaimer(answer string) string {
	if strings.Contains(strings.ToLower(answer), "no reemplaza el consejo médico") {
		return answer
	}
	return answer + "\n\n" + Disclaimer
}
