package matcher

import (
	"context"
	"errors"
	"testing"

	"misalud-backend/internal/registry"
)

// fakeSearcher counts queries and serves canned records.
type fakeSearcher struct {
	productRecords    []registry.Record
	ingredientRecords []registry.Record
	productErr        error
	ingredientErr     error

	productCalls    int
	ingredientCalls int
}

func (f *fakeSearcher) SearchByProductName(ctx context.Context, productName string, limit int) ([]registry.Record, error) {
	f.productCalls++
	return f.productRecords, f.productErr
}

func (f *fakeSearcher) SearchByActiveIngredient(ctx context.Context, ingredient string, limit int, onlyActive bool) ([]registry.Record, error) {
	f.ingredientCalls++
	return f.ingredientRecords, f.ingredientErr
}

func (f *fakeSearcher) FindGenerics(ctx context.Context, ingredient, concentration string) ([]registry.Record, error) {
	return nil, nil
}

func TestNormalizeDrugName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in         string
		wantName   string
		wantValue  string
		wantUnit   string
	}{
		{"LOSARTAN 50MG TABLETAS", "LOSARTAN", "50", "MG"},
		{"LEVOTIROXINA 0,5MG", "LEVOTIROXINA", "0.5", "MG"},
		{"acetaminofen 500 mg tabletas recubiertas", "ACETAMINOFEN", "500", "MG"},
		{"IBUPROFENO", "IBUPROFENO", "", ""},
		{"500MG", "", "500", "MG"},
		{"TABLETAS ORAL", "", "", ""},
		{"", "", "", ""},
	}
	for _, tt := range tests {
		name, value, unit := NormalizeDrugName(tt.in)
		if name != tt.wantName || value != tt.wantValue || unit != tt.wantUnit {
			t.Errorf("NormalizeDrugName(%q) = (%q, %q, %q), want (%q, %q, %q)",
				tt.in, name, value, unit, tt.wantName, tt.wantValue, tt.wantUnit)
		}
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	t.Parallel()

	name, value, unit := NormalizeDrugName("LEVOTIROXINA 0,5MG")
	if name != "LEVOTIROXINA" || value != "0.5" || unit != "MG" {
		t.Fatalf("first pass: (%q, %q, %q)", name, value, unit)
	}
	again, value2, unit2 := NormalizeDrugName(name)
	if again != "LEVOTIROXINA" || value2 != "" || unit2 != "" {
		t.Fatalf("second pass changed the name: (%q, %q, %q)", again, value2, unit2)
	}
}

func TestFuzzyScoreExactEqualityIsOne(t *testing.T) {
	t.Parallel()

	if got := fuzzyScore("METFORMINA", "metformina"); got != 1.0 {
		t.Fatalf("expected 1.0 for case-insensitive equality, got %v", got)
	}
}

func TestFuzzyScoreSubstring(t *testing.T) {
	t.Parallel()

	got := fuzzyScore("LOSARTAN", "LOSARTAN POTASICO")
	if got <= 0.9 || got >= 1.0 {
		t.Fatalf("substring score out of range (0.9, 1.0): %v", got)
	}
}

func TestDosageBonusRequiresValueAndUnit(t *testing.T) {
	t.Parallel()

	// The base similarity must sit well below 1.0 or the clamp hides
	// the bonus; an edit-distance candidate keeps the full +0.10 visible.
	record := registry.Record{
		Producto:           "METFORMAX",
		ConcentracionValor: "850",
		UnidadMedida:       "mg",
	}

	both := matchScore("METFORMINA", record, "850", "MG")
	valueOnly := matchScore("METFORMINA", record, "850", "ML")
	neither := matchScore("METFORMINA", record, "", "")

	if both <= valueOnly {
		t.Fatalf("expected value+unit match to score higher: both=%v valueOnly=%v", both, valueOnly)
	}
	if valueOnly != neither {
		t.Fatalf("expected no bonus when only value matches: %v vs %v", valueOnly, neither)
	}
}

func TestDosageBonusNormalizesCommaValues(t *testing.T) {
	t.Parallel()

	record := registry.Record{
		Producto:           "EUTIROX",
		PrincipioActivo:    "LEVOTIROXINA SODICA",
		ConcentracionValor: "0,5",
		UnidadMedida:       "MG",
	}
	withBonus := matchScore("LEVOTIROXIN", record, "0.5", "MG")
	withoutBonus := matchScore("LEVOTIROXIN", record, "", "")
	if withBonus <= withoutBonus {
		t.Fatalf("expected comma-to-dot normalization to earn the bonus: %v vs %v", withBonus, withoutBonus)
	}
}

func TestMatchEmptyInput(t *testing.T) {
	t.Parallel()

	fake := &fakeSearcher{}
	result := New(fake).Match(context.Background(), "", "", 20)

	if result.MatchType != MatchNone || result.Record != nil {
		t.Fatalf("expected none result, got %+v", result)
	}
	if result.DebugInfo["error"] != "empty_input" {
		t.Fatalf("expected empty_input marker, got %v", result.DebugInfo["error"])
	}
	if fake.productCalls+fake.ingredientCalls != 0 {
		t.Fatalf("expected zero registry queries, got %d", fake.productCalls+fake.ingredientCalls)
	}
}

func TestMatchDosageOnlyInputIssuesNoQueries(t *testing.T) {
	t.Parallel()

	fake := &fakeSearcher{}
	result := New(fake).Match(context.Background(), "500MG", "", 20)

	if result.MatchType != MatchNone {
		t.Fatalf("expected none, got %q", result.MatchType)
	}
	if result.DebugInfo["error"] != "empty_normalized" {
		t.Fatalf("expected empty_normalized marker, got %v", result.DebugInfo["error"])
	}
	if fake.productCalls+fake.ingredientCalls != 0 {
		t.Fatalf("expected zero registry queries, got %d", fake.productCalls+fake.ingredientCalls)
	}
}

func TestMatchFormWordsOnlyInputIssuesNoQueries(t *testing.T) {
	t.Parallel()

	fake := &fakeSearcher{}
	result := New(fake).Match(context.Background(), "TABLETAS RECUBIERTAS ORAL", "", 20)

	if result.MatchType != MatchNone {
		t.Fatalf("expected none, got %q", result.MatchType)
	}
	if fake.productCalls+fake.ingredientCalls != 0 {
		t.Fatalf("expected zero registry queries, got %d", fake.productCalls+fake.ingredientCalls)
	}
}

func TestMatchMetforminaScenario(t *testing.T) {
	t.Parallel()

	fake := &fakeSearcher{
		productRecords: []registry.Record{
			{
				ExpedienteCUM:      "1",
				Producto:           "METFORMINA MK 850MG",
				PrincipioActivo:    "METFORMINA",
				ConcentracionValor: "850",
				UnidadMedida:       "mg",
				EstadoRegistro:     "Vigente",
			},
		},
		ingredientRecords: []registry.Record{
			{
				ExpedienteCUM:      "2",
				Producto:           "GLUCOPHAGE 850MG",
				PrincipioActivo:    "METFORMINA",
				ConcentracionValor: "850",
				UnidadMedida:       "mg",
				EstadoRegistro:     "Vigente",
			},
		},
	}

	result := New(fake).Match(context.Background(), "METFORMINA", "", 20)

	if result.Record == nil {
		t.Fatalf("expected a match, got none: %+v", result.DebugInfo)
	}
	if result.MatchType != MatchExact && result.MatchType != MatchActiveIngredient {
		t.Fatalf("unexpected match type %q", result.MatchType)
	}
	if result.Confidence < 0.85 {
		t.Fatalf("confidence too low: %v", result.Confidence)
	}
	if len(result.OtherMatches) < 1 {
		t.Fatalf("expected at least one other match")
	}
}

func TestMatchDedupesByExpediente(t *testing.T) {
	t.Parallel()

	shared := registry.Record{
		ExpedienteCUM:   "77",
		Producto:        "LOSARTAN MK",
		PrincipioActivo: "LOSARTAN",
		EstadoRegistro:  "Vigente",
	}
	fake := &fakeSearcher{
		productRecords:    []registry.Record{shared},
		ingredientRecords: []registry.Record{shared},
	}

	result := New(fake).Match(context.Background(), "LOSARTAN", "", 20)
	if result.Record == nil {
		t.Fatalf("expected a match")
	}
	if got := result.DebugInfo["total_candidates"]; got != 1 {
		t.Fatalf("expected ingredient duplicate skipped, total_candidates=%v", got)
	}
}

func TestMatchBelowThresholdKeepsNearMisses(t *testing.T) {
	t.Parallel()

	// Partially similar so the achieved score sits in (0, MinConfidence).
	fake := &fakeSearcher{
		productRecords: []registry.Record{
			{ExpedienteCUM: "9", Producto: "METOPROLOL"},
		},
	}

	result := New(fake).Match(context.Background(), "METFORMINA", "", 20)
	if result.MatchType != MatchNone || result.Record != nil {
		t.Fatalf("expected none below threshold, got %+v", result)
	}
	if result.Confidence <= 0 || result.Confidence >= MinConfidence {
		t.Fatalf("expected achieved confidence in (0, %v), got %v", MinConfidence, result.Confidence)
	}
	if len(result.OtherMatches) != 1 {
		t.Fatalf("expected near-miss candidates, got %d", len(result.OtherMatches))
	}
}

func TestMatchOneSearchFailureDoesNotAbort(t *testing.T) {
	t.Parallel()

	fake := &fakeSearcher{
		productErr: errors.New("registry timeout"),
		ingredientRecords: []registry.Record{
			{ExpedienteCUM: "3", Producto: "METFORMINA GENFAR", PrincipioActivo: "METFORMINA", EstadoRegistro: "Vigente"},
		},
	}

	result := New(fake).Match(context.Background(), "METFORMINA", "", 20)
	if result.Record == nil {
		t.Fatalf("expected ingredient strategy to still match: %+v", result.DebugInfo)
	}
	if result.MatchType != MatchActiveIngredient {
		t.Fatalf("expected active_ingredient match, got %q", result.MatchType)
	}
	if _, ok := result.DebugInfo["product_search_error"]; !ok {
		t.Fatalf("expected product search error recorded in debug info")
	}
}

func TestMatchSeparateDosageParameterLosesToInline(t *testing.T) {
	t.Parallel()

	record := registry.Record{
		ExpedienteCUM:      "8",
		Producto:           "IBUPROFENO MK",
		PrincipioActivo:    "IBUPROFENO",
		ConcentracionValor: "400",
		UnidadMedida:       "mg",
		EstadoRegistro:     "Vigente",
	}
	fake := &fakeSearcher{productRecords: []registry.Record{record}}

	// Inline 400MG wins over the separate 800MG parameter.
	result := New(fake).Match(context.Background(), "IBUPROFENO 400MG", "800MG", 20)
	if result.DebugInfo["dosage_extracted"] != "400MG" {
		t.Fatalf("expected inline dosage to win, got %v", result.DebugInfo["dosage_extracted"])
	}

	// With no inline dosage the parameter fills in.
	fake2 := &fakeSearcher{productRecords: []registry.Record{record}}
	result2 := New(fake2).Match(context.Background(), "IBUPROFENO", "400MG", 20)
	if result2.DebugInfo["dosage_extracted"] != "400MG" {
		t.Fatalf("expected parameter dosage used, got %v", result2.DebugInfo["dosage_extracted"])
	}
}
