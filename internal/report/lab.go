package report

import (
	"fmt"
	"strings"

	"misalud-backend/internal/extraction"
)

// statusEmoji maps a lab-result state to its traffic-light marker.
func statusEmoji(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "normal":
		return "🟢"
	case "alto":
		return "🔴"
	case "bajo":
		return "🟡"
	default:
		return "⚪"
	}
}

// LabReport renders lab results as a markdown table with an
// out-of-range summary and the standing disclaimer.
func LabReport(results []extraction.LabResultItem) string {
	if len(results) == 0 {
		return "No se encontraron resultados."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Resultados de Laboratorio (%d pruebas)\n\n", len(results))
	b.WriteString("| Estado | Prueba | Valor | Unidad | Rango Referencia |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, r := range results {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			statusEmoji(r.Estado), r.NombrePrueba, r.Valor, r.Unidad, r.RangoReferencia)
	}
	b.WriteString("\n**Leyenda:** 🟢 Normal | 🔴 Alto | 🟡 Bajo\n")

	if outOfRange := formatOutOfRange(results); outOfRange != "" {
		b.WriteString("\n")
		b.WriteString(outOfRange)
	}

	fmt.Fprintf(&b, "\n**Aviso:** %s %s", DisclaimerFull, DisclaimerShort)
	return b.String()
}

func formatOutOfRange(results []extraction.LabResultItem) string {
	var lines []string
	for _, r := range results {
		switch strings.ToLower(strings.TrimSpace(r.Estado)) {
		case "alto":
			lines = append(lines, fmt.Sprintf("- **%s**: %s %s está por encima del rango de referencia (%s).",
				r.NombrePrueba, r.Valor, r.Unidad, r.RangoReferencia))
		case "bajo":
			lines = append(lines, fmt.Sprintf("- **%s**: %s %s está por debajo del rango de referencia (%s).",
				r.NombrePrueba, r.Valor, r.Unidad, r.RangoReferencia))
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "### Valores Fuera de Rango\n\n" + strings.Join(lines, "\n") + "\n\nConsulte con su médico.\n"
}
