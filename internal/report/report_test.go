package report

import (
	"strings"
	"testing"

	"misalud-backend/internal/enrich"
	"misalud-backend/internal/extraction"
	"misalud-backend/internal/matcher"
	"misalud-backend/internal/prices"
	"misalud-backend/internal/registry"
)

func TestFormatMedicationsEmpty(t *testing.T) {
	t.Parallel()

	got := FormatMedications(nil)
	if !strings.Contains(got, "No se pudieron extraer medicamentos") {
		t.Fatalf("unexpected empty message: %q", got)
	}
}

func TestFormatMedicationsDefaults(t *testing.T) {
	t.Parallel()

	got := FormatMedications([]extraction.MedicationItem{
		{NombreMedicamento: "LOSARTAN 50MG", Dosis: "50 mg"},
	})
	for _, want := range []string{
		"## Medicamentos Encontrados (1)",
		"### 1. LOSARTAN 50MG",
		"| Dosis | 50 mg |",
		"| Frecuencia | No especificada |",
		"| Duración | No especificada |",
		"| Instrucciones | Ninguna |",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in:\n%s", want, got)
		}
	}
}

func TestFormatGenericsBadgeAndCap(t *testing.T) {
	t.Parallel()

	generics := []registry.Record{
		{Producto: "GEN UNO", DescripcionComercial: "GENERICO", ConcentracionValor: "500", UnidadMedida: "MG"},
		{Producto: "MARCA DOS", ConcentracionValor: "500", UnidadMedida: "MG"},
		{Producto: "GEN TRES", DescripcionComercial: "generico", ConcentracionValor: "500", UnidadMedida: "MG"},
		{Producto: "GEN CUATRO", DescripcionComercial: "GENERICO", ConcentracionValor: "500", UnidadMedida: "MG"},
	}
	enriched := []enrich.EnrichedMedication{{
		MedicationName: "ACETAMINOFEN",
		Match: matcher.Result{Record: &registry.Record{
			PrincipioActivo: "ACETAMINOFEN",
		}},
		Generics: generics,
	}}

	got := FormatGenerics(enriched)
	if !strings.Contains(got, "**Alternativas para ACETAMINOFEN:**") {
		t.Fatalf("missing ingredient header:\n%s", got)
	}
	if !strings.Contains(got, "- GEN UNO [GENÉRICO] (500MG)") {
		t.Fatalf("missing badge line:\n%s", got)
	}
	if !strings.Contains(got, "- MARCA DOS (500MG)") {
		t.Fatalf("branded entry must have no badge:\n%s", got)
	}
	if strings.Contains(got, "GEN CUATRO") {
		t.Fatalf("only the top three alternatives are shown:\n%s", got)
	}
}

func TestFormatPricesAndFallback(t *testing.T) {
	t.Parallel()

	if got := FormatPrices(nil); got != "No se encontraron precios de referencia." {
		t.Fatalf("unexpected fallback: %q", got)
	}

	enriched := []enrich.EnrichedMedication{{
		MedicationName: "METFORMINA",
		PriceSummary: &prices.Summary{
			Min: 1200, Max: 4500.6, Avg: 2800.4, FechaDatos: "2023-12-31", NumRegistros: 4,
		},
	}}
	got := FormatPrices(enriched)
	for _, want := range []string{
		"**Precio referencia:**",
		"- Mínimo: $1.200 COP",
		"- Máximo: $4.501 COP",
		"- Promedio: $2.800 COP",
		"*Datos de 2023-12-31 (referencia histórica)*",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in:\n%s", want, got)
		}
	}
}

func TestFormatCOPGrouping(t *testing.T) {
	t.Parallel()

	cases := map[float64]string{
		0:         "0",
		999:       "999",
		1000:      "1.000",
		1234567.8: "1.234.568",
	}
	for in, want := range cases {
		if got := formatCOP(in); got != want {
			t.Fatalf("formatCOP(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatExplanationsUnvalidatedMedication(t *testing.T) {
	t.Parallel()

	enriched := []enrich.EnrichedMedication{{MedicationName: "XYZRARO"}}
	got := FormatExplanations(enriched, nil)
	if !strings.Contains(got, "No se pudo validar este medicamento en el registro CUM.") {
		t.Fatalf("missing unvalidated sentence:\n%s", got)
	}
}

func TestLabReportTableStatusesAndDisclaimer(t *testing.T) {
	t.Parallel()

	results := []extraction.LabResultItem{
		{NombrePrueba: "Glucosa", Valor: "130", Unidad: "mg/dL", RangoReferencia: "70-100", Estado: "alto"},
		{NombrePrueba: "Hemoglobina", Valor: "11", Unidad: "g/dL", RangoReferencia: "12-16", Estado: "bajo"},
		{NombrePrueba: "Creatinina", Valor: "0.9", Unidad: "mg/dL", RangoReferencia: "0.6-1.2", Estado: "normal"},
		{NombrePrueba: "TSH", Valor: "2.1", Unidad: "mUI/L", RangoReferencia: "", Estado: ""},
	}
	got := LabReport(results)
	for _, want := range []string{
		"## Resultados de Laboratorio (4 pruebas)",
		"| Estado | Prueba | Valor | Unidad | Rango Referencia |",
		"| 🔴 | Glucosa | 130 | mg/dL | 70-100 |",
		"| 🟡 | Hemoglobina | 11 | g/dL | 12-16 |",
		"| 🟢 | Creatinina |",
		"| ⚪ | TSH |",
		"**Leyenda:** 🟢 Normal | 🔴 Alto | 🟡 Bajo",
		"### Valores Fuera de Rango",
		"está por encima del rango de referencia (70-100).",
		"está por debajo del rango de referencia (12-16).",
		"Consulte con su médico.",
		"**Aviso:** " + DisclaimerFull + " " + DisclaimerShort,
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in:\n%s", want, got)
		}
	}
}

func TestLabReportEmpty(t *testing.T) {
	t.Parallel()

	if got := LabReport(nil); got != "No se encontraron resultados." {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestLabReportAllNormalOmitsOutOfRange(t *testing.T) {
	t.Parallel()

	got := LabReport([]extraction.LabResultItem{
		{NombrePrueba: "Glucosa", Valor: "90", Unidad: "mg/dL", RangoReferencia: "70-100", Estado: "normal"},
	})
	if strings.Contains(got, "Valores Fuera de Rango") {
		t.Fatalf("no out-of-range section expected:\n%s", got)
	}
}
