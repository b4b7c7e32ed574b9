// Package matcher reconciles free-text medication names against the CUM
// drug registry using product-name and active-ingredient searches plus
// fuzzy scoring.
package matcher

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"misalud-backend/internal/registry"
	"misalud-backend/internal/shared/telemetry"
	"misalud-backend/internal/textnorm"
)

// MinConfidence is the score below which a best candidate is still a no-match.
const MinConfidence = 0.5

// dosagePattern extracts at most one dosage token, e.g. "850MG" or "0,5 ml".
var dosagePattern = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(MG|ML|G|MCG|UI|%)`)

// formWords are pharmaceutical form tokens stripped from queries.
var formWords = map[string]struct{}{
	"TABLETA": {}, "TABLETAS": {}, "TAB": {}, "TABS": {},
	"CAPSULA": {}, "CAPSULAS": {}, "CAP": {}, "CAPS": {},
	"SOLUCION": {}, "SOL": {},
	"JARABE": {}, "JAR": {},
	"AMPOLLA": {}, "AMP": {},
	"INYECTABLE": {}, "INY": {},
	"CREMA": {}, "GEL": {}, "POMADA": {},
	"GOTAS": {}, "SUSPENSION": {}, "SUSP": {},
	"COMPRIMIDO": {}, "COMPRIMIDOS": {}, "COMP": {},
	"RECUBIERTA": {}, "RECUBIERTAS": {},
	"LIBERACION": {}, "PROLONGADA": {},
	"ORAL": {}, "TOPICO": {}, "TOPICA": {},
}

// MatchType classifies how a registry record was matched.
const (
	MatchExact            = "exact"
	MatchActiveIngredient = "active_ingredient"
	MatchFuzzy            = "fuzzy"
	MatchNone             = "none"
)

// Result is the outcome of matching one medication name.
// Record is nil iff MatchType is "none".
type Result struct {
	Record          *registry.Record
	MatchType       string
	Confidence      float64
	OtherMatches    []registry.Record
	QueryNormalized string
	DebugInfo       map[string]any
}

// Matcher matches medication names against a registry searcher.
type Matcher struct {
	Registry registry.Searcher
}

// New constructs a Matcher over the given registry searcher.
func New(searcher registry.Searcher) *Matcher {
	return &Matcher{Registry: searcher}
}

// NormalizeDrugName uppercases the name, extracts at most one dosage
// token (comma decimal separators normalized to dots), strips
// pharmaceutical form words, and collapses whitespace.
func NormalizeDrugName(name string) (normalized, dosageValue, dosageUnit string) {
	if name == "" {
		return "", "", ""
	}

	normalized = strings.ToUpper(strings.TrimSpace(name))

	if m := dosagePattern.FindStringSubmatch(normalized); m != nil {
		dosageValue = strings.ReplaceAll(m[1], ",", ".")
		dosageUnit = strings.ToUpper(m[2])
		normalized = dosagePattern.ReplaceAllString(normalized, "")
	}

	kept := make([]string, 0, 4)
	for _, word := range strings.Fields(normalized) {
		if _, isForm := formWords[word]; !isForm {
			kept = append(kept, word)
		}
	}
	normalized = textnorm.CollapseSpaces(strings.Join(kept, " "))
	return normalized, dosageValue, dosageUnit
}

// fuzzyScore is 1.0 for case-insensitive equality, substring containment
// scores 0.9 plus a length-ratio share, anything else a normalized
// edit-distance similarity.
func fuzzyScore(query, candidate string) float64 {
	if query == "" || candidate == "" {
		return 0.0
	}

	query = strings.ToUpper(query)
	candidate = strings.ToUpper(candidate)

	if query == candidate {
		return 1.0
	}
	if strings.Contains(candidate, query) {
		return 0.9 + (float64(len(query))/float64(len(candidate)))*0.1
	}

	dist := levenshtein.ComputeDistance(query, candidate)
	longest := len(query)
	if len(candidate) > longest {
		longest = len(candidate)
	}
	return 1.0 - float64(dist)/float64(longest)
}

// matchScore scores a registry record against the normalized query:
// best of product/ingredient similarity, +0.10 when both dosage value
// and unit match exactly, +0.05 for a VIGENTE registration, capped at 1.
func matchScore(query string, record registry.Record, dosageValue, dosageUnit string) float64 {
	productScore := fuzzyScore(query, record.Producto)
	ingredientScore := fuzzyScore(query, record.PrincipioActivo)

	score := productScore
	if ingredientScore > score {
		score = ingredientScore
	}

	if dosageValue != "" && dosageUnit != "" && record.ConcentracionValor != "" && record.UnidadMedida != "" {
		recordValue := strings.ReplaceAll(record.ConcentracionValor, ",", ".")
		recordUnit := strings.ToUpper(record.UnidadMedida)
		if dosageValue == recordValue && dosageUnit == recordUnit {
			score += 0.1
		}
	}

	if strings.EqualFold(record.EstadoRegistro, "VIGENTE") {
		score += 0.05
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

type candidate struct {
	record    registry.Record
	score     float64
	matchType string
}

// Match matches one medication name against the registry. A separately
// supplied dosage is used only when the name carries no inline dosage.
// "No match" is a valid result, not an error.
func (m *Matcher) Match(ctx context.Context, medicationName, dosage string, limit int) Result {
	debugInfo := map[string]any{}

	if strings.TrimSpace(medicationName) == "" {
		return Result{
			MatchType: MatchNone,
			DebugInfo: map[string]any{"error": "empty_input"},
		}
	}

	normalized, dosageValue, dosageUnit := NormalizeDrugName(medicationName)
	if dosage != "" && dosageValue == "" {
		_, dosageValue, dosageUnit = NormalizeDrugName(dosage)
	}

	debugInfo["query_original"] = medicationName
	debugInfo["query_normalized"] = normalized
	debugInfo["dosage_extracted"] = dosageValue + dosageUnit

	// Empty after stripping dosage/form words: querying the registry
	// with an empty string returns unrelated results, so stop here.
	if normalized == "" {
		debugInfo["error"] = "empty_normalized"
		return Result{
			MatchType:       MatchNone,
			QueryNormalized: normalized,
			DebugInfo:       debugInfo,
		}
	}

	var candidates []candidate

	productResults, err := m.Registry.SearchByProductName(ctx, normalized, limit)
	if err != nil {
		telemetry.Warn("matcher.product_search_failed", map[string]any{"query": normalized, "error": err.Error()})
		debugInfo["product_search_error"] = err.Error()
	} else {
		debugInfo["product_search_count"] = len(productResults)
		for _, record := range productResults {
			score := matchScore(normalized, record, dosageValue, dosageUnit)
			matchType := MatchFuzzy
			if score >= 0.8 {
				matchType = MatchExact
			}
			candidates = append(candidates, candidate{record: record, score: score, matchType: matchType})
		}
	}

	ingredientResults, err := m.Registry.SearchByActiveIngredient(ctx, normalized, limit, true)
	if err != nil {
		telemetry.Warn("matcher.ingredient_search_failed", map[string]any{"query": normalized, "error": err.Error()})
		debugInfo["ingredient_search_error"] = err.Error()
	} else {
		debugInfo["ingredient_search_count"] = len(ingredientResults)
		for _, record := range ingredientResults {
			if containsExpediente(candidates, record.ExpedienteCUM) {
				continue
			}
			score := matchScore(normalized, record, dosageValue, dosageUnit)
			if strings.ToUpper(record.PrincipioActivo) == normalized {
				if score < 0.85 {
					score = 0.85
				}
				candidates = append(candidates, candidate{record: record, score: score, matchType: MatchActiveIngredient})
			} else {
				candidates = append(candidates, candidate{record: record, score: score, matchType: MatchFuzzy})
			}
		}
	}

	sortCandidates(candidates)
	debugInfo["total_candidates"] = len(candidates)

	if len(candidates) == 0 {
		return Result{
			MatchType:       MatchNone,
			QueryNormalized: normalized,
			DebugInfo:       debugInfo,
		}
	}

	best := candidates[0]
	if best.score < MinConfidence {
		// Near miss: keep the top candidates and the achieved score
		// so callers can surface diagnostics.
		return Result{
			MatchType:       MatchNone,
			Confidence:      best.score,
			OtherMatches:    collectRecords(candidates, 0, 5),
			QueryNormalized: normalized,
			DebugInfo:       debugInfo,
		}
	}

	telemetry.Info("matcher.matched", map[string]any{
		"query":      medicationName,
		"producto":   best.record.Producto,
		"match_type": best.matchType,
		"confidence": best.score,
	})

	record := best.record
	return Result{
		Record:          &record,
		MatchType:       best.matchType,
		Confidence:      best.score,
		OtherMatches:    collectRecords(candidates, 1, 6),
		QueryNormalized: normalized,
		DebugInfo:       debugInfo,
	}
}

func containsExpediente(candidates []candidate, expediente string) bool {
	for _, c := range candidates {
		if c.record.ExpedienteCUM == expediente {
			return true
		}
	}
	return false
}

func sortCandidates(candidates []candidate) {
	// Stable sort keeps the product-search ordering among ties.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
}

func collectRecords(candidates []candidate, from, to int) []registry.Record {
	if from >= len(candidates) {
		return nil
	}
	if to > len(candidates) {
		to = len(candidates)
	}
	out := make([]registry.Record, 0, to-from)
	for _, c := range candidates[from:to] {
		out = append(out, c.record)
	}
	return out
}
