// Package orchestrator drives the full document analysis pipeline:
// ingestion, routing, verified extraction, enrichment and report
// assembly into one unified result.
package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"misalud-backend/internal/enrich"
	"misalud-backend/internal/extraction"
	"misalud-backend/internal/inference"
	"misalud-backend/internal/ingest"
	"misalud-backend/internal/interactions"
	"misalud-backend/internal/report"
	"misalud-backend/internal/routing"
	"misalud-backend/internal/shared/telemetry"
	"misalud-backend/internal/verify"
)

// Analysis statuses.
const (
	StatusCompleted = "completed"
	StatusDegraded  = "degraded"
	StatusRejected  = "rejected"
)

const matchLimit = 10

// ChatContext is the immutable snapshot a completed analysis exposes
// to follow-up questions. It carries only already-derived data.
type ChatContext struct {
	DocType         string                      `json:"doc_type"`
	RouteConfidence float64                     `json:"route_confidence"`
	SourceKind      string                      `json:"source_kind"`
	ExtractedText   string                      `json:"extracted_text,omitempty"`
	Medications     []extraction.MedicationItem `json:"medications,omitempty"`
	Enriched        []enrich.EnrichedMedication `json:"enriched,omitempty"`
	LabResults      []extraction.LabResultItem  `json:"lab_results,omitempty"`
	Report          string                      `json:"report"`
	Warnings        []string                    `json:"warnings,omitempty"`
	Uncertainties   []string                    `json:"uncertainties,omitempty"`
}

// Result is the unified outcome of one document analysis.
type Result struct {
	DocType         string                             `json:"doc_type"`
	RouteConfidence float64                            `json:"route_confidence"`
	RouteMethod     string                             `json:"route_method"`
	SourceKind      string                             `json:"source_kind"`
	EvidenceQuality float64                            `json:"evidence_quality"`
	Status          string                             `json:"status"`
	Report          string                             `json:"report"`
	Warnings        []string                           `json:"warnings,omitempty"`
	Uncertainties   []string                           `json:"uncertainties,omitempty"`
	Prescription    *extraction.PrescriptionExtraction `json:"prescription,omitempty"`
	Lab             *extraction.LabResultExtraction    `json:"lab,omitempty"`
	Enriched        []enrich.EnrichedMedication        `json:"enriched,omitempty"`
	Interactions    []interactions.Interaction         `json:"interactions,omitempty"`
	VerifyBackend   string                             `json:"verify_backend,omitempty"`
	ChatContext     *ChatContext                       `json:"chat_context,omitempty"`
}

// Orchestrator wires the pipeline stages together.
type Orchestrator struct {
	Backends *inference.Registry
	Verifier *verify.Verifier
	Enricher *enrich.Enricher

	// ingestFile is swapped in tests.
	ingestFile func(string) (ingest.IngestedDocument, error)
}

// New constructs an Orchestrator over a backend registry and enricher.
func New(backends *inference.Registry, enricher *enrich.Enricher) *Orchestrator {
	return &Orchestrator{
		Backends:   backends,
		Verifier:   verify.New(backends),
		Enricher:   enricher,
		ingestFile: ingest.Ingest,
	}
}

// Analyze runs the full pipeline over one file. backendName selects the
// inference backend ("auto" tries remote then local). The returned
// error is reserved for unreadable input; every pipeline degradation is
// reported inside the Result instead.
func (o *Orchestrator) Analyze(ctx context.Context, filePath, backendName string) (Result, error) {
	doc, err := o.ingestFile(filePath)
	if err != nil {
		return Result{}, fmt.Errorf("ingest document: %w", err)
	}

	result := Result{
		DocType:         routing.KindUnknown,
		SourceKind:      doc.Source,
		EvidenceQuality: doc.QualityScore,
		Warnings:        append([]string(nil), doc.Warnings...),
	}

	if doc.Source == ingest.SourcePDFNoText || doc.Source == ingest.SourceUnsupported {
		result.Status = StatusRejected
		result.RouteMethod = routing.MethodUnavailable
		result.Report = o.renderUnified(result, routing.Decision{Kind: routing.KindUnknown, Method: routing.MethodUnavailable},
			"No se pudo analizar este documento con la estrategia actual.")
		return result, nil
	}

	order := inference.ResolveOrder(backendName)
	decision := o.route(ctx, doc, order, &result)
	result.DocType = decision.Kind
	result.RouteConfidence = decision.Confidence
	result.RouteMethod = decision.Method

	body := o.verifyAndFormat(ctx, doc, decision, order, &result)
	result.Report = o.renderUnified(result, decision, body)

	result.ChatContext = buildChatContext(result, doc.ExtractedText)
	telemetry.Info("orchestrator.analysis_complete", map[string]any{
		"doc_type":   result.DocType,
		"status":     result.Status,
		"source":     result.SourceKind,
		"method":     result.RouteMethod,
		"confidence": result.RouteConfidence,
	})
	return result, nil
}

// route classifies the document, walking the backend order until one
// classifier produces a non-unknown kind. Heuristic-confident decisions
// return on the first pass without touching a backend.
func (o *Orchestrator) route(ctx context.Context, doc ingest.IngestedDocument, order []string, result *Result) routing.Decision {
	var routeErrors []string
	for _, name := range order {
		backend, err := o.Backends.Resolve(name)
		if err != nil {
			// The heuristic may still be confident without any backend.
			if heuristic := routing.Route(ctx, doc, nil); heuristic.Confidence >= routing.FallbackThreshold {
				return heuristic
			}
			routeErrors = append(routeErrors, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		decision := routing.Route(ctx, doc, backend)
		if decision.Method == routing.MethodHeuristic && decision.Confidence >= routing.FallbackThreshold {
			// The backend was never consulted.
			return decision
		}
		if decision.Method == routing.MethodModelFallback && decision.Kind != routing.KindUnknown {
			return decision
		}
		if decision.Method == routing.MethodModelFallbackError {
			routeErrors = append(routeErrors, fmt.Sprintf("%s: %s", name, lastReason(decision.Reasons)))
		}
		// The classifier answered unknown; the next backend may do better.
	}

	if len(routeErrors) > 0 {
		result.Warnings = append(result.Warnings,
			"No se pudo clasificar con todos los backends de fallback: "+strings.Join(routeErrors, " | "))
	}
	// Heuristic-only decision; no backend was usable.
	return routing.Route(ctx, doc, nil)
}

// verifyAndFormat runs the verification matching the route and renders
// the report body. An unknown route tries both verifiers and keeps the
// one that extracted strictly more items, preferring prescription on a
// tie because a medication list is the more actionable report.
func (o *Orchestrator) verifyAndFormat(ctx context.Context, doc ingest.IngestedDocument, decision routing.Decision, order []string, result *Result) string {
	var presc verify.PrescriptionResult
	var lab verify.LabResult

	switch decision.Kind {
	case routing.KindPrescription:
		presc = o.Verifier.VerifyPrescription(ctx, doc, decision.Kind, order)
	case routing.KindLab:
		lab = o.Verifier.VerifyLab(ctx, doc, decision.Kind, order)
	default:
		presc = o.Verifier.VerifyPrescription(ctx, doc, decision.Kind, order)
		lab = o.Verifier.VerifyLab(ctx, doc, decision.Kind, order)
		if presc.Extraction != nil && lab.Extraction != nil {
			if len(lab.Extraction.Resultados) > len(presc.Extraction.Medicamentos) {
				presc = verify.PrescriptionResult{}
			} else {
				lab = verify.LabResult{}
			}
		}
	}

	switch {
	case presc.Extraction != nil:
		result.DocType = routing.KindPrescription
		result.Status = StatusCompleted
		result.Prescription = presc.Extraction
		result.VerifyBackend = presc.BackendName
		return o.prescriptionBody(ctx, presc.Extraction.Medicamentos, result)
	case lab.Extraction != nil:
		result.DocType = routing.KindLab
		result.Status = StatusCompleted
		result.Lab = lab.Extraction
		result.VerifyBackend = lab.BackendName
		return o.labBody(ctx, lab.Extraction.Resultados, result)
	}

	switch decision.Kind {
	case routing.KindPrescription:
		result.Uncertainties = append(result.Uncertainties,
			"La verificación de receta no logró extraer medicamentos confiables.")
	case routing.KindLab:
		result.Uncertainties = append(result.Uncertainties,
			"La verificación de laboratorio no logró extraer resultados confiables.")
	default:
		result.Uncertainties = append(result.Uncertainties,
			"La verificación de receta no logró extraer medicamentos confiables.",
			"La verificación de laboratorio no logró extraer resultados confiables.")
	}
	if presc.Err != "" {
		result.Uncertainties = append(result.Uncertainties, presc.Err)
	}
	if lab.Err != "" {
		result.Uncertainties = append(result.Uncertainties, lab.Err)
	}
	result.Status = StatusDegraded
	result.Warnings = append(result.Warnings,
		"No se logró una extracción estructurada confiable; revise la calidad del documento.")
	return "No hay contenido estructurado para mostrar."
}

// prescriptionBody enriches each medication and renders the
// prescription report, falling back to the bare extraction when
// enrichment cannot finish.
func (o *Orchestrator) prescriptionBody(ctx context.Context, meds []extraction.MedicationItem, result *Result) string {
	enriched, err := o.enrichAll(ctx, meds)
	if err != nil {
		result.Warnings = append(result.Warnings,
			"No se pudo completar el enriquecimiento CUM/SISMED; se muestran solo datos extraídos.")
		result.Uncertainties = append(result.Uncertainties, fmt.Sprintf("Fallo de enriquecimiento: %v", err))
		return report.FormatMedications(meds)
	}
	result.Enriched = enriched
	for _, med := range enriched {
		result.Warnings = append(result.Warnings, med.Warnings...)
	}

	body := report.PrescriptionReport(meds, enriched)
	if section := o.interactionSection(meds, result); section != "" {
		body += "\n\n" + section
	}
	return body
}

func (o *Orchestrator) enrichAll(ctx context.Context, meds []extraction.MedicationItem) ([]enrich.EnrichedMedication, error) {
	enriched := make([]enrich.EnrichedMedication, 0, len(meds))
	for _, med := range meds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		enriched = append(enriched, o.Enricher.Enrich(ctx, med.NombreMedicamento, med.Dosis, "", matchLimit))
	}
	return enriched, nil
}

// interactionSection checks the extracted medication names against the
// known interaction table.
func (o *Orchestrator) interactionSection(meds []extraction.MedicationItem, result *Result) string {
	if len(meds) < 2 {
		return ""
	}
	names := make([]string, 0, len(meds))
	for _, med := range meds {
		names = append(names, med.NombreMedicamento)
	}
	found := interactions.Check(names)
	if len(found) == 0 {
		return ""
	}
	result.Interactions = found
	result.Warnings = append(result.Warnings,
		"Se detectaron posibles interacciones entre medicamentos. Consulte a su médico.")

	var b strings.Builder
	b.WriteString("### Posibles Interacciones\n")
	for _, interaction := range found {
		fmt.Fprintf(&b, "\n- **%s + %s** (severidad %s): %s",
			interaction.Drugs[0], interaction.Drugs[1], interaction.Severity, interaction.Warning)
	}
	return b.String()
}

// labBody renders the lab report, degrading to a minimal test list if
// the context expired before formatting.
func (o *Orchestrator) labBody(ctx context.Context, results []extraction.LabResultItem, result *Result) string {
	if err := ctx.Err(); err != nil {
		result.Warnings = append(result.Warnings,
			"No se pudo completar el formateo de laboratorio; se muestran datos mínimos.")
		result.Uncertainties = append(result.Uncertainties, fmt.Sprintf("Fallo de formateo lab: %v", err))
		names := make([]string, 0, len(results))
		for _, r := range results {
			names = append(names, r.NombrePrueba)
		}
		return "Pruebas detectadas: " + strings.Join(names, ", ")
	}
	return report.LabReport(results)
}

// renderUnified prepends the routing metadata header shared by every
// report variant.
func (o *Orchestrator) renderUnified(result Result, decision routing.Decision, body string) string {
	var b strings.Builder
	b.WriteString("## Reporte Unificado del Documento\n\n")
	fmt.Fprintf(&b, "- **Tipo detectado:** %s\n", result.DocType)
	fmt.Fprintf(&b, "- **Confianza de ruteo:** %.2f\n", result.RouteConfidence)
	fmt.Fprintf(&b, "- **Método de ruteo:** %s\n", result.RouteMethod)
	fmt.Fprintf(&b, "- **Fuente de evidencia:** %s\n", result.SourceKind)
	if len(decision.Reasons) > 0 {
		fmt.Fprintf(&b, "- **Razonamiento de ruteo:** %s\n", strings.Join(decision.Reasons, " "))
	}

	if len(result.Warnings) > 0 {
		b.WriteString("\n### Avisos\n")
		for _, w := range result.Warnings {
			fmt.Fprintf(&b, "\n- %s", w)
		}
		b.WriteString("\n")
	}
	if len(result.Uncertainties) > 0 {
		b.WriteString("\n### Incertidumbres\n")
		for _, u := range result.Uncertainties {
			fmt.Fprintf(&b, "\n- %s", u)
		}
		b.WriteString("\n")
	}

	if strings.TrimSpace(body) == "" {
		body = "No hay contenido estructurado para mostrar."
	}
	b.WriteString("\n")
	b.WriteString(body)
	return b.String()
}

func buildChatContext(result Result, extractedText string) *ChatContext {
	cc := &ChatContext{
		DocType:         result.DocType,
		RouteConfidence: result.RouteConfidence,
		SourceKind:      result.SourceKind,
		ExtractedText:   extractedText,
		Report:          result.Report,
		Warnings:        append([]string(nil), result.Warnings...),
		Uncertainties:   append([]string(nil), result.Uncertainties...),
		Enriched:        result.Enriched,
	}
	if result.Prescription != nil {
		cc.Medications = result.Prescription.Medicamentos
	}
	if result.Lab != nil {
		cc.LabResults = result.Lab.Resultados
	}
	return cc
}

func lastReason(reasons []string) string {
	if len(reasons) == 0 {
		return "error desconocido"
	}
	return reasons[len(reasons)-1]
}
