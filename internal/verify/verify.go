// Package verify re-runs structured extraction against a document with
// task-specific verification prompts and ordered backend fallback.
package verify

import (
	"context"
	"fmt"
	"strings"

	"misalud-backend/internal/extraction"
	"misalud-backend/internal/inference"
	"misalud-backend/internal/ingest"
	"misalud-backend/internal/shared/telemetry"
)

// maxEvidenceChars bounds the text evidence embedded in a prompt.
const maxEvidenceChars = 3500

// PrescriptionResult is the outcome of prescription verification.
// Extraction is nil when every backend was exhausted; Err then names
// each attempted backend and its failure.
type PrescriptionResult struct {
	Extraction  *extraction.PrescriptionExtraction
	BackendName string
	Err         string
}

// LabResult is the lab counterpart of PrescriptionResult.
type LabResult struct {
	Extraction  *extraction.LabResultExtraction
	BackendName string
	Err         string
}

// Verifier runs verification tasks over a backend registry.
type Verifier struct {
	Backends *inference.Registry
}

// New constructs a Verifier.
func New(backends *inference.Registry) *Verifier {
	return &Verifier{Backends: backends}
}

// VerifyPrescription attempts prescription extraction across the
// backend order. A candidate is valid only if it parsed and carries at
// least one medication.
func (v *Verifier) VerifyPrescription(ctx context.Context, doc ingest.IngestedDocument, routeHint string, order []string) PrescriptionResult {
	prompt := fmt.Sprintf(inference.PrescriptionVerifyPrompt, routeHint, evidenceText(doc))

	var errs []string
	for _, name := range order {
		raw, err := v.runTask(ctx, name, doc, prompt, inference.MaxNewTokensPrescription)
		if err != nil {
			telemetry.Warn("verify.prescription_backend_failed", map[string]any{"backend": name, "error": err.Error()})
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		result := extraction.ParsePrescription(inference.CleanResponse(raw))
		result.RawResponse = raw
		if result.ParseSuccess && len(result.Medicamentos) > 0 {
			return PrescriptionResult{Extraction: &result, BackendName: name}
		}
		errs = append(errs, fmt.Sprintf("%s: resultado inválido", name))
	}

	return PrescriptionResult{Err: exhaustedError("verify_prescription", order, errs)}
}

// VerifyLab attempts lab-result extraction across the backend order,
// symmetric to VerifyPrescription.
func (v *Verifier) VerifyLab(ctx context.Context, doc ingest.IngestedDocument, routeHint string, order []string) LabResult {
	prompt := fmt.Sprintf(inference.LabVerifyPrompt, routeHint, evidenceText(doc))

	var errs []string
	for _, name := range order {
		raw, err := v.runTask(ctx, name, doc, prompt, inference.MaxNewTokensLabs)
		if err != nil {
			telemetry.Warn("verify.lab_backend_failed", map[string]any{"backend": name, "error": err.Error()})
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		result := extraction.ParseLabResults(inference.CleanResponse(raw))
		result.RawResponse = raw
		if result.ParseSuccess && len(result.Resultados) > 0 {
			return LabResult{Extraction: &result, BackendName: name}
		}
		errs = append(errs, fmt.Sprintf("%s: resultado inválido", name))
	}

	return LabResult{Err: exhaustedError("verify_lab", order, errs)}
}

// runTask resolves one backend and issues a single attempt: image+prompt
// when the document carries an image, text-only otherwise.
func (v *Verifier) runTask(ctx context.Context, backendName string, doc ingest.IngestedDocument, prompt string, maxNewTokens int) (string, error) {
	backend, err := v.Backends.Resolve(backendName)
	if err != nil {
		return "", err
	}
	if doc.MediaPath != "" {
		return backend.ExtractRaw(ctx, doc.MediaPath, prompt, maxNewTokens)
	}
	return backend.GenerateText(ctx, prompt, maxNewTokens)
}

func evidenceText(doc ingest.IngestedDocument) string {
	evidence := strings.TrimSpace(doc.ExtractedText)
	// Truncate on rune boundaries so accented text stays valid UTF-8.
	if runes := []rune(evidence); len(runes) > maxEvidenceChars {
		evidence = string(runes[:maxEvidenceChars])
	}
	if evidence == "" {
		evidence = "(sin evidencia de texto)"
	}
	return evidence
}

func exhaustedError(taskLabel string, order, errs []string) string {
	detail := "sin detalle"
	if len(errs) > 0 {
		detail = strings.Join(errs, " | ")
	}
	return fmt.Sprintf("Falló %s con backends %s. Detalle: %s",
		taskLabel, strings.Join(order, ", "), detail)
}
