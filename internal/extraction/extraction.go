// Package extraction holds the typed models produced by structured
// document extraction and their tolerant JSON parsers.
package extraction

import (
	"encoding/json"
	"strings"
)

// MedicationItem is one medication extracted from a prescription.
// All fields are free text and default to empty.
type MedicationItem struct {
	NombreMedicamento string `json:"nombre_medicamento"`
	Dosis             string `json:"dosis"`
	Frecuencia        string `json:"frecuencia"`
	Duracion          string `json:"duracion"`
	Instrucciones     string `json:"instrucciones"`
}

// PrescriptionExtraction is the parsed output of prescription extraction.
// ParseSuccess is true only when the raw response contained a JSON object
// with a top-level "medicamentos" key; an empty list can still parse.
type PrescriptionExtraction struct {
	Medicamentos []MedicationItem `json:"medicamentos"`
	RawResponse  string           `json:"-"`
	ParseSuccess bool             `json:"-"`
}

// LabResultItem is one lab result row. Estado is free text at parse
// time ("normal", "alto", "bajo" by convention).
type LabResultItem struct {
	NombrePrueba    string `json:"nombre_prueba"`
	Valor           string `json:"valor"`
	Unidad          string `json:"unidad"`
	RangoReferencia string `json:"rango_referencia"`
	Estado          string `json:"estado"`
}

// LabResultExtraction is the parsed output of lab-result extraction.
type LabResultExtraction struct {
	Resultados   []LabResultItem `json:"resultados"`
	RawResponse  string          `json:"-"`
	ParseSuccess bool            `json:"-"`
}

// ParsePrescription parses a model response into a PrescriptionExtraction,
// tolerating text surrounding the outermost {...} span. Parse failure is
// recorded on the result, never returned as an error.
func ParsePrescription(raw string) PrescriptionExtraction {
	out := PrescriptionExtraction{RawResponse: raw}

	span, ok := outermostObject(raw)
	if !ok {
		return out
	}

	var payload struct {
		Medicamentos *[]MedicationItem `json:"medicamentos"`
	}
	if err := json.Unmarshal([]byte(span), &payload); err != nil || payload.Medicamentos == nil {
		return out
	}

	out.Medicamentos = *payload.Medicamentos
	out.ParseSuccess = true
	return out
}

// ParseLabResults parses a model response into a LabResultExtraction,
// symmetric to ParsePrescription with the "resultados" key.
func ParseLabResults(raw string) LabResultExtraction {
	out := LabResultExtraction{RawResponse: raw}

	span, ok := outermostObject(raw)
	if !ok {
		return out
	}

	var payload struct {
		Resultados *[]LabResultItem `json:"resultados"`
	}
	if err := json.Unmarshal([]byte(span), &payload); err != nil || payload.Resultados == nil {
		return out
	}

	out.Resultados = *payload.Resultados
	out.ParseSuccess = true
	return out
}

// outermostObject returns the substring from the first '{' to the last '}'.
func outermostObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
