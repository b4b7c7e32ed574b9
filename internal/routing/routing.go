// Package routing classifies an ingested document as prescription, lab
// report, or unknown, heuristic-first with a model fallback.
package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"misalud-backend/internal/inference"
	"misalud-backend/internal/ingest"
	"misalud-backend/internal/shared/telemetry"
	"misalud-backend/internal/textnorm"
)

// FallbackThreshold is the heuristic confidence below which the model
// classifier is consulted.
const FallbackThreshold = 0.62

// evidenceMaxChars bounds the classifier prompt size.
const evidenceMaxChars = 3000

// Document kinds.
const (
	KindPrescription = "prescription"
	KindLab          = "lab"
	KindUnknown      = "unknown"
)

// Routing methods.
const (
	MethodHeuristic          = "heuristic"
	MethodModelFallback      = "model_fallback"
	MethodModelFallbackError = "model_fallback_error"
	MethodUnavailable        = "unavailable"
)

var prescriptionHints = map[string]float64{
	"RECETA":         2.0,
	"FORMULA MEDICA": 2.0,
	"DOSIS":          1.0,
	"CADA":           1.0,
	"HORAS":          1.0,
	"TABLETA":        1.0,
	"CAPSULA":        1.0,
	"MEDICAMENTO":    1.0,
	"MG":             0.6,
	"ML":             0.6,
}

var labHints = map[string]float64{
	"LABORATORIO": 2.0,
	"RESULTADOS":  1.5,
	"RANGO":       1.0,
	"REFERENCIA":  1.0,
	"HEMOGLOBINA": 2.0,
	"HEMATOCRITO": 2.0,
	"GLUCOSA":     1.5,
	"LEUCOCITOS":  1.5,
	"NORMAL":      0.8,
	"ALTO":        0.8,
	"BAJO":        0.8,
}

// Decision is the routing outcome. Kind is overwritten in exactly one
// place: the orchestrator, after observing which verifier succeeded.
type Decision struct {
	Kind        string
	Confidence  float64
	Method      string
	Reasons     []string
	RawResponse string
}

// Route classifies the document. The heuristic always runs first; the
// model fallback is consulted only below FallbackThreshold and only
// when a backend is supplied.
func Route(ctx context.Context, doc ingest.IngestedDocument, backend inference.Backend) Decision {
	heuristic := heuristicRoute(doc)
	decision := Decision{
		Kind:       heuristic.kind,
		Confidence: heuristic.confidence,
		Method:     MethodHeuristic,
		Reasons:    append([]string(nil), heuristic.reasons...),
	}

	if heuristic.confidence >= FallbackThreshold {
		return decision
	}

	if backend == nil {
		decision.Reasons = append(decision.Reasons, "Sin backend disponible para fallback de clasificación.")
		return decision
	}

	fallback := classifyWithModel(ctx, doc, backend)
	if fallback.Kind != KindUnknown {
		fallback.Reasons = append([]string{
			fmt.Sprintf("Fallback activado por baja confianza heurística (%.2f < %.2f).",
				heuristic.confidence, FallbackThreshold),
		}, fallback.Reasons...)
		return fallback
	}

	decision.Reasons = append(decision.Reasons,
		"Fallback de clasificación no logró una ruta confiable; se mantiene ruta desconocida.")
	if fallback.RawResponse != "" {
		decision.RawResponse = fallback.RawResponse
	}
	if fallback.Method == MethodModelFallbackError {
		decision.Method = MethodModelFallbackError
		decision.Reasons = append(decision.Reasons, fallback.Reasons...)
	}
	return decision
}

type heuristicScore struct {
	kind       string
	confidence float64
	reasons    []string
}

func heuristicRoute(doc ingest.IngestedDocument) heuristicScore {
	if doc.Source == ingest.SourceUnsupported || doc.Source == ingest.SourcePDFNoText {
		return heuristicScore{
			kind:    KindUnknown,
			reasons: []string{"No hay evidencia textual utilizable para ruteo heurístico."},
		}
	}

	text := textnorm.CollapseSpaces(textnorm.Fold(doc.ExtractedText))
	if text == "" {
		return heuristicScore{
			kind:    KindUnknown,
			reasons: []string{"Sin texto extraído; se requiere clasificación con modelo."},
		}
	}

	prescriptionScore, prescriptionHits := scoreHints(text, prescriptionHints)
	labScore, labHits := scoreHints(text, labHints)

	total := prescriptionScore + labScore
	if total <= 0 {
		return heuristicScore{
			kind:    KindUnknown,
			reasons: []string{"No se detectaron palabras clave fuertes para receta o laboratorio."},
		}
	}

	if prescriptionScore == labScore {
		return heuristicScore{
			kind:       KindUnknown,
			confidence: 0.4,
			reasons: []string{
				fmt.Sprintf("Puntaje empatado receta=%.2f, lab=%.2f.", prescriptionScore, labScore),
			},
		}
	}

	kind := KindPrescription
	hits := prescriptionHits
	hitsLabel := "receta"
	if labScore > prescriptionScore {
		kind = KindLab
		hits = labHits
		hitsLabel = "lab"
	}

	best := prescriptionScore
	if labScore > best {
		best = labScore
	}
	margin := (prescriptionScore - labScore) / total
	if margin < 0 {
		margin = -margin
	}
	capped := best
	if capped > 4.0 {
		capped = 4.0
	}
	confidence := 0.45 + 0.55*margin + 0.1*capped/4.0
	if confidence > 0.95 {
		confidence = 0.95
	}

	if len(hits) > 6 {
		hits = hits[:6]
	}
	hitText := strings.Join(hits, ", ")
	if hitText == "" {
		hitText = "ninguna"
	}
	return heuristicScore{
		kind:       kind,
		confidence: confidence,
		reasons: []string{
			fmt.Sprintf("Puntaje receta=%.2f; lab=%.2f.", prescriptionScore, labScore),
			fmt.Sprintf("Palabras %s: %s.", hitsLabel, hitText),
		},
	}
}

func scoreHints(text string, hints map[string]float64) (float64, []string) {
	score := 0.0
	var hits []string
	for token, weight := range hints {
		if strings.Contains(text, token) {
			score += weight
			hits = append(hits, token)
		}
	}
	sortHits(hits, hints)
	return score, hits
}

// sortHits orders hits by weight descending, then alphabetically, so
// the reasons text is deterministic.
func sortHits(hits []string, hints map[string]float64) {
	sort.Slice(hits, func(i, j int) bool {
		if hints[hits[i]] != hints[hits[j]] {
			return hints[hits[i]] > hints[hits[j]]
		}
		return hits[i] < hits[j]
	})
}

type classifierPayload struct {
	DocumentType string          `json:"document_type"`
	Confidence   json.RawMessage `json:"confidence"`
	Reason       string          `json:"reason"`
}

func classifyWithModel(ctx context.Context, doc ingest.IngestedDocument, backend inference.Backend) Decision {
	evidence := strings.TrimSpace(doc.ExtractedText)
	if runes := []rune(evidence); len(runes) > evidenceMaxChars {
		evidence = string(runes[:evidenceMaxChars])
	}
	if evidence == "" {
		evidence = "(sin texto extraído)"
	}
	prompt := fmt.Sprintf(inference.DocTypeClassifierPrompt, evidence)

	var raw string
	var err error
	if doc.MediaPath != "" {
		raw, err = backend.ExtractRaw(ctx, doc.MediaPath, prompt, 1024)
	} else {
		raw, err = backend.GenerateText(ctx, prompt, 1024)
	}
	if err != nil {
		telemetry.Warn("routing.model_classification_failed", map[string]any{"error": err.Error()})
		return Decision{
			Kind:        KindUnknown,
			Method:      MethodModelFallbackError,
			Reasons:     []string{fmt.Sprintf("Error en clasificación con modelo: %v", err)},
			RawResponse: raw,
		}
	}

	parsed := extractJSONObject(raw)
	kind := strings.ToLower(strings.TrimSpace(parsed.DocumentType))
	if kind != KindPrescription && kind != KindLab {
		kind = KindUnknown
	}

	confidence := 0.0
	if len(parsed.Confidence) > 0 {
		var val float64
		if err := json.Unmarshal(parsed.Confidence, &val); err == nil {
			confidence = val
		}
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	reason := strings.TrimSpace(parsed.Reason)
	if reason == "" {
		reason = "Clasificación sin razón explícita."
	}

	return Decision{
		Kind:        kind,
		Confidence:  confidence,
		Method:      MethodModelFallback,
		Reasons:     []string{reason},
		RawResponse: raw,
	}
}

// extractJSONObject tolerates JSON embedded in surrounding text by
// falling back to the outermost {...} span.
func extractJSONObject(raw string) classifierPayload {
	var payload classifierPayload
	stripped := strings.TrimSpace(raw)
	if stripped == "" {
		return payload
	}

	if err := json.Unmarshal([]byte(stripped), &payload); err == nil {
		return payload
	}

	start := strings.Index(stripped, "{")
	end := strings.LastIndex(stripped, "}")
	if start >= 0 && end > start {
		var inner classifierPayload
		if err := json.Unmarshal([]byte(stripped[start:end+1]), &inner); err == nil {
			return inner
		}
	}
	return classifierPayload{}
}
