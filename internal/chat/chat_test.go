package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"misalud-backend/internal/extraction"
	"misalud-backend/internal/inference"
	"misalud-backend/internal/orchestrator"
)

type cannedBackend struct {
	response   string
	err        error
	calls      int
	lastPrompt string
}

func (b *cannedBackend) ExtractRaw(ctx context.Context, imagePath, prompt string, maxNewTokens int) (string, error) {
	return "", errors.New("not used")
}

func (b *cannedBackend) GenerateText(ctx context.Context, prompt string, maxNewTokens int) (string, error) {
	b.calls++
	b.lastPrompt = prompt
	return b.response, b.err
}

func registryWith(backends map[string]*cannedBackend) *inference.Registry {
	reg := inference.NewRegistry()
	for name, backend := range backends {
		backend := backend
		reg.Register(name, func() (inference.Backend, error) { return backend, nil })
	}
	return reg
}

func analyzedContext() *orchestrator.ChatContext {
	return &orchestrator.ChatContext{
		DocType: "prescription",
		Medications: []extraction.MedicationItem{
			{NombreMedicamento: "LOSARTAN 50MG", Dosis: "50 mg", Frecuencia: "cada 12 horas"},
		},
		Report: "## Medicamentos Encontrados (1)",
	}
}

func TestAnswerWithoutContext(t *testing.T) {
	t.Parallel()

	backend := &cannedBackend{response: "algo"}
	got := New(registryWith(map[string]*cannedBackend{"remote": backend})).
		Answer(context.Background(), nil, "¿Qué medicamento tomo?", "remote")
	if got.Text != NeedsContextResponse {
		t.Fatalf("unexpected response: %q", got.Text)
	}
	if backend.calls != 0 {
		t.Fatalf("no backend call without context")
	}
}

func TestAnswerRefusesBlockedQuestions(t *testing.T) {
	t.Parallel()

	backend := &cannedBackend{response: "algo"}
	answerer := New(registryWith(map[string]*cannedBackend{"remote": backend}))

	for _, question := range []string{
		"¿Puedo subir dosis de losartán?",
		"¿Me puedes diagnosticar?",
		"¿Qué tratamiento debo seguir?",
		"¿Debo suspender la warfarina?",
	} {
		got := answerer.Answer(context.Background(), analyzedContext(), question, "remote")
		if !got.Refused {
			t.Fatalf("question %q must be refused, got %q", question, got.Text)
		}
		if got.Text != RefusalResponse {
			t.Fatalf("unexpected refusal text: %q", got.Text)
		}
	}
	if backend.calls != 0 {
		t.Fatalf("refused questions must not reach a backend")
	}
}

func TestAnswerGroundsPromptInContext(t *testing.T) {
	t.Parallel()

	backend := &cannedBackend{response: "El documento indica losartán cada 12 horas. " + Disclaimer}
	got := New(registryWith(map[string]*cannedBackend{"remote": backend})).
		Answer(context.Background(), analyzedContext(), "¿Cada cuánto tomo el losartán?", "remote")

	if got.BackendName != "remote" {
		t.Fatalf("backend name = %q", got.BackendName)
	}
	if !strings.Contains(backend.lastPrompt, "LOSARTAN 50MG") {
		t.Fatalf("prompt must embed the document context:\n%s", backend.lastPrompt)
	}
	if !strings.Contains(backend.lastPrompt, "¿Cada cuánto tomo el losartán?") {
		t.Fatalf("prompt must embed the question:\n%s", backend.lastPrompt)
	}
	if strings.Count(got.Text, "no reemplaza el consejo médico") != 1 {
		t.Fatalf("disclaimer must appear exactly once: %q", got.Text)
	}
}

func TestAnswerAppendsMissingDisclaimer(t *testing.T) {
	t.Parallel()

	backend := &cannedBackend{response: "El documento indica 50 mg."}
	got := New(registryWith(map[string]*cannedBackend{"remote": backend})).
		Answer(context.Background(), analyzedContext(), "¿Cuál es la dosis?", "remote")
	if !strings.HasSuffix(got.Text, Disclaimer) {
		t.Fatalf("missing disclaimer: %q", got.Text)
	}
}

func TestAnswerFallsBackPastEmptyResponse(t *testing.T) {
	t.Parallel()

	remote := &cannedBackend{response: "   "}
	local := &cannedBackend{response: "Respuesta del segundo backend."}
	got := New(registryWith(map[string]*cannedBackend{"remote": remote, "local": local})).
		Answer(context.Background(), analyzedContext(), "¿Cuál es la dosis?", "auto")
	if got.BackendName != "local" {
		t.Fatalf("expected local fallback, got %q (%q)", got.BackendName, got.Text)
	}
}

func TestAnswerAllBackendsFail(t *testing.T) {
	t.Parallel()

	remote := &cannedBackend{err: errors.New("timeout")}
	local := &cannedBackend{err: errors.New("refused")}
	got := New(registryWith(map[string]*cannedBackend{"remote": remote, "local": local})).
		Answer(context.Background(), analyzedContext(), "¿Cuál es la dosis?", "auto")
	if got.Text != UnknownResponse {
		t.Fatalf("unexpected response: %q", got.Text)
	}
}

func TestAnswerEmptyQuestion(t *testing.T) {
	t.Parallel()

	got := New(registryWith(nil)).Answer(context.Background(), analyzedContext(), "   ", "remote")
	if got.Text != UnknownResponse {
		t.Fatalf("unexpected response: %q", got.Text)
	}
}
