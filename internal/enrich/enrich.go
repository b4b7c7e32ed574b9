// Package enrich cross-references an extracted medication against the
// CUM registry and SISMED reference prices.
package enrich

import (
	"context"
	"strings"

	"misalud-backend/internal/matcher"
	"misalud-backend/internal/prices"
	"misalud-backend/internal/registry"
	"misalud-backend/internal/shared/telemetry"
)

const pricesLimit = 10

// EnrichedMedication bundles a medication with its registry match,
// generic alternatives and price context. Sub-lookup failures leave
// the corresponding field empty and add a warning instead of failing
// the whole enrichment.
type EnrichedMedication struct {
	MedicationName string            `json:"medication_name"`
	Match          matcher.Result    `json:"match"`
	Generics       []registry.Record `json:"generics,omitempty"`
	Prices         []prices.Record   `json:"prices,omitempty"`
	PriceSummary   *prices.Summary   `json:"price_summary,omitempty"`
	Warnings       []string          `json:"warnings,omitempty"`
}

// Enricher wires the registry searcher and price source together.
type Enricher struct {
	Matcher *matcher.Matcher
	Prices  prices.Source
}

// New constructs an Enricher over a registry searcher and price source.
func New(reg registry.Searcher, priceSource prices.Source) *Enricher {
	return &Enricher{Matcher: matcher.New(reg), Prices: priceSource}
}

// Enrich matches one medication and, when the match succeeds, looks up
// generic alternatives and price references. form, when non-empty,
// overrides the matched record's pharmaceutical form as the generics
// filter.
func (e *Enricher) Enrich(ctx context.Context, name, dosage, form string, limit int) EnrichedMedication {
	enriched := EnrichedMedication{MedicationName: name}
	enriched.Match = e.Matcher.Match(ctx, name, dosage, limit)
	if enriched.Match.Record == nil {
		return enriched
	}

	record := enriched.Match.Record
	enriched.Generics, enriched.Warnings = e.lookupGenerics(ctx, record, form, enriched.Warnings)
	enriched.Prices, enriched.PriceSummary, enriched.Warnings = e.lookupPrices(ctx, record, enriched.Warnings)
	return enriched
}

func (e *Enricher) lookupGenerics(ctx context.Context, record *registry.Record, form string, warnings []string) ([]registry.Record, []string) {
	ingredient := strings.TrimSpace(record.PrincipioActivo)
	if ingredient == "" {
		return nil, warnings
	}
	generics, err := e.Matcher.Registry.FindGenerics(ctx, ingredient, record.ConcentracionValor)
	if err != nil {
		telemetry.Warn("enrich.generics_failed", map[string]any{"ingredient": ingredient, "error": err.Error()})
		return nil, append(warnings, "No se pudieron obtener alternativas genéricas en este momento.")
	}
	return filterByForm(generics, effectiveForm(form, record)), warnings
}

func (e *Enricher) lookupPrices(ctx context.Context, record *registry.Record, warnings []string) ([]prices.Record, *prices.Summary, []string) {
	expediente := strings.TrimSpace(record.ExpedienteCUM)
	if expediente == "" {
		return nil, nil, warnings
	}
	priceRecords, err := e.Prices.PricesByExpediente(ctx, expediente, pricesLimit)
	if err != nil {
		telemetry.Warn("enrich.prices_failed", map[string]any{"expediente": expediente, "error": err.Error()})
		return nil, nil, append(warnings, "No se pudieron obtener precios de referencia en este momento.")
	}
	return priceRecords, prices.Summarize(priceRecords), warnings
}

// effectiveForm prefers the caller-provided form over the matched
// record's own pharmaceutical form.
func effectiveForm(form string, record *registry.Record) string {
	if strings.TrimSpace(form) != "" {
		return form
	}
	return record.FormaFarmaceutica
}

func filterByForm(records []registry.Record, form string) []registry.Record {
	form = strings.TrimSpace(form)
	if form == "" {
		return records
	}
	filtered := make([]registry.Record, 0, len(records))
	for _, r := range records {
		if strings.EqualFold(strings.TrimSpace(r.FormaFarmaceutica), form) {
			filtered = append(filtered, r)
		}
	}
	return filtered
}
