package routing

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"misalud-backend/internal/ingest"
)

// countingBackend serves a canned classification and counts calls.
type countingBackend struct {
	response string
	err      error
	calls    int
}

func (b *countingBackend) ExtractRaw(ctx context.Context, imagePath, prompt string, maxNewTokens int) (string, error) {
	b.calls++
	return b.response, b.err
}

func (b *countingBackend) GenerateText(ctx context.Context, prompt string, maxNewTokens int) (string, error) {
	b.calls++
	return b.response, b.err
}

func textDoc(text string) ingest.IngestedDocument {
	return ingest.IngestedDocument{
		FilePath:      "doc.pdf",
		Source:        ingest.SourceTextPDF,
		ExtractedText: text,
		QualityScore:  0.95,
	}
}

func TestRouteClearPrescriptionSkipsModel(t *testing.T) {
	t.Parallel()

	backend := &countingBackend{}
	doc := textDoc("RECETA MÉDICA: tomar una TABLETA de 500 MG CADA 8 HORAS por 7 días. MEDICAMENTO: acetaminofén. DOSIS diaria.")

	decision := Route(context.Background(), doc, backend)
	if decision.Kind != KindPrescription {
		t.Fatalf("expected prescription, got %q (%v)", decision.Kind, decision.Reasons)
	}
	if decision.Method != MethodHeuristic {
		t.Fatalf("expected heuristic method, got %q", decision.Method)
	}
	if decision.Confidence < FallbackThreshold {
		t.Fatalf("expected confident heuristic, got %v", decision.Confidence)
	}
	if backend.calls != 0 {
		t.Fatalf("expected no model call at confidence >= %.2f, got %d calls", FallbackThreshold, backend.calls)
	}
}

func TestRouteAccentFoldedKeywords(t *testing.T) {
	t.Parallel()

	doc := textDoc("Fórmula médica del paciente: medicamento cada 12 horas, cápsula de 50 mg")
	decision := Route(context.Background(), doc, nil)
	if decision.Kind != KindPrescription {
		t.Fatalf("expected accent folding to surface FORMULA MEDICA, got %q (%v)", decision.Kind, decision.Reasons)
	}
}

func TestRouteTiedScoresReturnUnknown(t *testing.T) {
	t.Parallel()

	// DOSIS (1.0) ties RANGO (1.0).
	doc := textDoc("DOSIS RANGO")
	decision := Route(context.Background(), doc, nil)
	if decision.Kind != KindUnknown {
		t.Fatalf("expected unknown on tie, got %q", decision.Kind)
	}
	if decision.Confidence > 0.4 {
		t.Fatalf("tie confidence must stay <= 0.4, got %v", decision.Confidence)
	}
}

func TestRouteNoKeywordsReturnsUnknownZero(t *testing.T) {
	t.Parallel()

	decision := Route(context.Background(), textDoc("texto sin señales de ningún tipo"), nil)
	if decision.Kind != KindUnknown || decision.Confidence != 0 {
		t.Fatalf("expected unknown/0, got %q/%v", decision.Kind, decision.Confidence)
	}
}

func TestRouteNoTextSourceIsUnknown(t *testing.T) {
	t.Parallel()

	doc := ingest.IngestedDocument{FilePath: "x.pdf", Source: ingest.SourcePDFNoText}
	decision := Route(context.Background(), doc, nil)
	if decision.Kind != KindUnknown || decision.Confidence != 0 {
		t.Fatalf("expected unknown/0, got %q/%v", decision.Kind, decision.Confidence)
	}
}

func TestRouteModelFallbackWins(t *testing.T) {
	t.Parallel()

	backend := &countingBackend{response: `{"document_type": "lab", "confidence": 0.9, "reason": "Contiene métricas de laboratorio."}`}
	decision := Route(context.Background(), textDoc("documento escaneado sin palabras clave"), backend)

	if backend.calls != 1 {
		t.Fatalf("expected one model call, got %d", backend.calls)
	}
	if decision.Kind != KindLab || decision.Method != MethodModelFallback {
		t.Fatalf("unexpected decision: %+v", decision)
	}
	if decision.Confidence != 0.9 {
		t.Fatalf("unexpected confidence %v", decision.Confidence)
	}
	if !strings.Contains(strings.Join(decision.Reasons, " "), "Fallback activado") {
		t.Fatalf("expected fallback trigger reason, got %v", decision.Reasons)
	}
}

func TestRouteModelFallbackToleratesEmbeddedJSON(t *testing.T) {
	t.Parallel()

	backend := &countingBackend{response: `Claro, el resultado es {"document_type": "prescription", "confidence": 0.8, "reason": "Receta."} espero que sirva`}
	decision := Route(context.Background(), textDoc("documento escaneado sin palabras clave"), backend)
	if decision.Kind != KindPrescription {
		t.Fatalf("expected embedded JSON parsed, got %+v", decision)
	}
}

func TestRouteModelFallbackOutOfEnumCoercedToUnknown(t *testing.T) {
	t.Parallel()

	backend := &countingBackend{response: `{"document_type": "invoice", "confidence": 0.99, "reason": "?"}`}
	decision := Route(context.Background(), textDoc("documento escaneado sin palabras clave"), backend)
	if decision.Kind != KindUnknown {
		t.Fatalf("expected out-of-enum coerced to unknown, got %q", decision.Kind)
	}
	// Heuristic reasons preserved when fallback stays unknown.
	if !strings.Contains(strings.Join(decision.Reasons, " "), "No se detectaron palabras clave") {
		t.Fatalf("expected heuristic reasons preserved, got %v", decision.Reasons)
	}
}

func TestRouteModelErrorBecomesDecision(t *testing.T) {
	t.Parallel()

	backend := &countingBackend{err: errors.New("connection refused")}
	decision := Route(context.Background(), textDoc("documento escaneado sin palabras clave"), backend)
	if decision.Kind != KindUnknown {
		t.Fatalf("expected unknown, got %q", decision.Kind)
	}
	if decision.Method != MethodModelFallbackError {
		t.Fatalf("expected model_fallback_error method, got %q", decision.Method)
	}
}

func TestRouteNoBackendKeepsHeuristic(t *testing.T) {
	t.Parallel()

	decision := Route(context.Background(), textDoc("documento escaneado sin palabras clave"), nil)
	if decision.Method != MethodHeuristic {
		t.Fatalf("expected heuristic method, got %q", decision.Method)
	}
	if !strings.Contains(strings.Join(decision.Reasons, " "), "Sin backend disponible") {
		t.Fatalf("expected missing-backend reason, got %v", decision.Reasons)
	}
}

func TestHeuristicConfidenceFormula(t *testing.T) {
	t.Parallel()

	// RECETA (2.0) only: margin=1, best=2 -> 0.45+0.55+0.1*2/4 = 1.0 capped 0.95.
	decision := Route(context.Background(), textDoc("RECETA"), nil)
	if decision.Confidence != 0.95 {
		t.Fatalf("expected cap at 0.95, got %v", decision.Confidence)
	}
}

// promptBackend records the classifier prompt it was handed.
type promptBackend struct {
	prompt string
}

func (b *promptBackend) ExtractRaw(ctx context.Context, imagePath, prompt string, maxNewTokens int) (string, error) {
	b.prompt = prompt
	return `{"document_type": "unknown"}`, nil
}

func (b *promptBackend) GenerateText(ctx context.Context, prompt string, maxNewTokens int) (string, error) {
	b.prompt = prompt
	return `{"document_type": "unknown"}`, nil
}

func TestClassifierPromptTruncatesOnRuneBoundary(t *testing.T) {
	t.Parallel()

	backend := &promptBackend{}
	doc := textDoc("texto ambiguo " + strings.Repeat("ñ", evidenceMaxChars))

	Route(context.Background(), doc, backend)
	if backend.prompt == "" {
		t.Fatalf("classifier was not consulted")
	}
	if !utf8.ValidString(backend.prompt) {
		t.Fatalf("classifier prompt contains invalid UTF-8")
	}
}
