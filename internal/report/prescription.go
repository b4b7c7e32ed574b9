// Package report renders extraction and enrichment data as the Spanish
// markdown shown to end users.
package report

import (
	"fmt"
	"strings"

	"misalud-backend/internal/enrich"
	"misalud-backend/internal/extraction"
	"misalud-backend/internal/registry"
)

const (
	// DisclaimerFull is the long-form educational disclaimer.
	DisclaimerFull = "Esta herramienta es solo para ayudarle a entender sus documentos. No reemplaza el consejo de su médico."
	// DisclaimerShort is the one-liner appended to report footers.
	DisclaimerShort = "No es consejo médico."
)

const maxGenericsShown = 3

// FormatMedications renders the extracted medication list as markdown
// cards with one attribute table per medication.
func FormatMedications(meds []extraction.MedicationItem) string {
	if len(meds) == 0 {
		return "No se pudieron extraer medicamentos de esta imagen. Asegúrese de que la imagen sea clara y legible."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Medicamentos Encontrados (%d)\n", len(meds))
	for i, med := range meds {
		name := med.NombreMedicamento
		if strings.TrimSpace(name) == "" {
			name = "Medicamento sin nombre"
		}
		fmt.Fprintf(&b, "\n### %d. %s\n\n", i+1, name)
		b.WriteString("| Campo | Valor |\n|---|---|\n")
		fmt.Fprintf(&b, "| Dosis | %s |\n", valueOr(med.Dosis, "No especificada"))
		fmt.Fprintf(&b, "| Frecuencia | %s |\n", valueOr(med.Frecuencia, "No especificada"))
		fmt.Fprintf(&b, "| Duración | %s |\n", valueOr(med.Duracion, "No especificada"))
		fmt.Fprintf(&b, "| Instrucciones | %s |\n", valueOr(med.Instrucciones, "Ninguna"))
	}
	return b.String()
}

// FormatGenerics renders generic alternatives grouped under the
// medication that produced them.
func FormatGenerics(enriched []enrich.EnrichedMedication) string {
	var b strings.Builder
	wroteAny := false
	for _, med := range enriched {
		if med.Match.Record == nil || len(med.Generics) == 0 {
			continue
		}
		wroteAny = true
		fmt.Fprintf(&b, "### %s\n\n", med.MedicationName)
		fmt.Fprintf(&b, "**Alternativas para %s:**\n", med.Match.Record.PrincipioActivo)
		for i, g := range med.Generics {
			if i >= maxGenericsShown {
				break
			}
			badge := ""
			if registry.IsGeneric(g) {
				badge = " [GENÉRICO]"
			}
			fmt.Fprintf(&b, "- %s%s (%s%s)\n", g.Producto, badge, g.ConcentracionValor, g.UnidadMedida)
		}
		b.WriteString("\n")
	}
	if !wroteAny {
		return "No se encontraron genéricos."
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatPrices renders the price summary per medication.
func FormatPrices(enriched []enrich.EnrichedMedication) string {
	var b strings.Builder
	wroteAny := false
	for _, med := range enriched {
		if med.PriceSummary == nil {
			continue
		}
		wroteAny = true
		s := med.PriceSummary
		fmt.Fprintf(&b, "### %s\n\n", med.MedicationName)
		b.WriteString("**Precio referencia:**\n")
		fmt.Fprintf(&b, "- Mínimo: $%s COP\n", formatCOP(s.Min))
		fmt.Fprintf(&b, "- Máximo: $%s COP\n", formatCOP(s.Max))
		fmt.Fprintf(&b, "- Promedio: $%s COP\n", formatCOP(s.Avg))
		if s.FechaDatos != "" {
			fmt.Fprintf(&b, "\n*Datos de %s (referencia histórica)*\n", s.FechaDatos)
		}
		b.WriteString("\n")
	}
	if !wroteAny {
		return "No se encontraron precios de referencia."
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatExplanations renders one plain-language paragraph per medication.
func FormatExplanations(enriched []enrich.EnrichedMedication, meds []extraction.MedicationItem) string {
	byName := make(map[string]extraction.MedicationItem, len(meds))
	for _, med := range meds {
		byName[med.NombreMedicamento] = med
	}

	var b strings.Builder
	for _, med := range enriched {
		fmt.Fprintf(&b, "**%s**\n\n", med.MedicationName)
		var sentences []string
		if med.Match.Record != nil && strings.TrimSpace(med.Match.Record.PrincipioActivo) != "" {
			sentences = append(sentences, fmt.Sprintf("Este medicamento contiene %s.",
				strings.ToLower(med.Match.Record.PrincipioActivo)))
		} else {
			sentences = append(sentences, "No se pudo validar este medicamento en el registro CUM.")
		}
		if item, ok := byName[med.MedicationName]; ok {
			if strings.TrimSpace(item.Dosis) != "" {
				sentences = append(sentences, fmt.Sprintf("Dosis indicada: %s.", item.Dosis))
			}
			if strings.TrimSpace(item.Frecuencia) != "" {
				sentences = append(sentences, fmt.Sprintf("Frecuencia: %s.", item.Frecuencia))
			}
			if strings.TrimSpace(item.Duracion) != "" {
				sentences = append(sentences, fmt.Sprintf("Duración: %s.", item.Duracion))
			}
			if strings.TrimSpace(item.Instrucciones) != "" {
				sentences = append(sentences, fmt.Sprintf("Instrucciones: %s.", item.Instrucciones))
			}
		}
		if len(med.Generics) > 0 {
			sentences = append(sentences, "Hay alternativas genéricas disponibles para este medicamento.")
		}
		if s := med.PriceSummary; s != nil {
			sentences = append(sentences, fmt.Sprintf(
				"Precios de referencia: entre $%s y $%s COP. Promedio $%s COP. (Datos de %s).",
				formatCOP(s.Min), formatCOP(s.Max), formatCOP(s.Avg), s.FechaDatos))
		}
		b.WriteString(strings.Join(sentences, " "))
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// PrescriptionReport assembles the full prescription report body.
func PrescriptionReport(meds []extraction.MedicationItem, enriched []enrich.EnrichedMedication) string {
	sections := []string{
		FormatMedications(meds),
		"### Alternativas Genéricas\n\n" + FormatGenerics(enriched),
		"### Precios de Referencia\n\n" + FormatPrices(enriched),
	}
	if explanations := FormatExplanations(enriched, meds); strings.TrimSpace(explanations) != "" {
		sections = append(sections, "### Explicación\n\n"+explanations)
	}
	sections = append(sections, fmt.Sprintf("**Aviso:** %s %s", DisclaimerFull, DisclaimerShort))
	return strings.Join(sections, "\n\n")
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

// formatCOP renders a peso amount with thousands separators and no
// decimals, e.g. 1234567.8 -> "1.234.568".
func formatCOP(v float64) string {
	whole := fmt.Sprintf("%.0f", v)
	neg := strings.HasPrefix(whole, "-")
	if neg {
		whole = whole[1:]
	}
	var parts []string
	for len(whole) > 3 {
		parts = append([]string{whole[len(whole)-3:]}, parts...)
		whole = whole[:len(whole)-3]
	}
	parts = append([]string{whole}, parts...)
	out := strings.Join(parts, ".")
	if neg {
		out = "-" + out
	}
	return out
}
