// Package interactions flags known drug-drug interaction pairs from a
// small curated table of common Colombian outpatient medications.
package interactions

import (
	"sort"
	"strings"
)

// Severity levels, ordered from most to least severe.
const (
	SeverityAlta  = "alta"
	SeverityMedia = "media"
	SeverityBaja  = "baja"
)

// Interaction is one flagged pair with its severity and warning text.
type Interaction struct {
	Drugs    [2]string `json:"drugs"`
	Severity string    `json:"severity"`
	Warning  string    `json:"warning"`
}

type interactionEntry struct {
	severity string
	warning  string
}

// knownInteractions keys are sorted lowercase name pairs joined by "+".
var knownInteractions = map[string]interactionEntry{
	"aspirina+warfarina":          {SeverityAlta, "Riesgo aumentado de sangrado. Esta combinación requiere supervisión médica estricta."},
	"ibuprofeno+warfarina":        {SeverityAlta, "Los antiinflamatorios aumentan el riesgo de sangrado con anticoagulantes."},
	"aspirina+clopidogrel":        {SeverityMedia, "Doble antiagregación: aumenta el riesgo de sangrado. Solo bajo indicación médica."},
	"alcohol+metformina":          {SeverityMedia, "El alcohol puede aumentar el riesgo de acidosis láctica con metformina."},
	"contraste yodado+metformina": {SeverityAlta, "Riesgo de acidosis láctica: la metformina suele suspenderse antes de estudios con contraste, según indicación médica."},
	"amiodarona+digoxina":         {SeverityAlta, "La amiodarona eleva los niveles de digoxina y puede causar toxicidad."},
	"atenolol+verapamilo":         {SeverityAlta, "La combinación puede causar bradicardia severa e hipotensión."},
	"enalapril+potasio":           {SeverityMedia, "Riesgo de hiperkalemia. Vigile los niveles de potasio."},
	"losartan+potasio":            {SeverityMedia, "Riesgo de hiperkalemia. Vigile los niveles de potasio."},
	"enalapril+espironolactona":   {SeverityMedia, "Riesgo de hiperkalemia al combinar IECA con diuréticos ahorradores de potasio."},
	"espironolactona+losartan":    {SeverityMedia, "Riesgo de hiperkalemia al combinar ARA-II con diuréticos ahorradores de potasio."},
	"alcohol+glibenclamida":       {SeverityMedia, "El alcohol puede potenciar el efecto hipoglucemiante."},
	"alcohol+insulina":            {SeverityMedia, "El alcohol puede potenciar la hipoglucemia y enmascarar sus síntomas."},
	"alcohol+alprazolam":          {SeverityAlta, "Depresión del sistema nervioso central: sedación excesiva y riesgo respiratorio."},
	"alcohol+clonazepam":          {SeverityAlta, "Depresión del sistema nervioso central: sedación excesiva y riesgo respiratorio."},
	"alcohol+tramadol":            {SeverityAlta, "Depresión respiratoria y sedación aumentada. Evite esta combinación."},
	"alcohol+metronidazol":        {SeverityMedia, "Puede causar reacción tipo disulfiram: náuseas, vómito y enrojecimiento."},
	"antiácidos+ciprofloxacino":   {SeverityMedia, "Los antiácidos reducen la absorción del ciprofloxacino. Separe las tomas varias horas."},
	"calcio+levotiroxina":         {SeverityBaja, "El calcio reduce la absorción de levotiroxina. Separe las tomas al menos 4 horas."},
	"hierro+levotiroxina":         {SeverityBaja, "El hierro reduce la absorción de levotiroxina. Separe las tomas al menos 4 horas."},
	"clopidogrel+omeprazol":       {SeverityMedia, "El omeprazol puede reducir el efecto antiagregante del clopidogrel."},
}

// brandNames maps common commercial names to their active ingredient.
var brandNames = map[string]string{
	"glucophage":     "metformina",
	"glafornil":      "metformina",
	"cardioaspirina": "aspirina",
	"coumadin":       "warfarina",
	"sintrom":        "acenocumarol",
	"plavix":         "clopidogrel",
	"lipitor":        "atorvastatina",
	"crestor":        "rosuvastatina",
	"viagra":         "sildenafil",
	"cialis":         "tadalafil",
	"rivotril":       "clonazepam",
	"xanax":          "alprazolam",
	"eutirox":        "levotiroxina",
	"synthroid":      "levotiroxina",
}

var formSuffixes = []string{
	" tabletas", " tableta", " capsulas", " capsula",
	" mg", " ml", " gotas", " jarabe", " suspension", " inyectable",
}

// NormalizeDrugName lowers the name, strips trailing dosage and form
// words, and resolves known brand names to the active ingredient.
func NormalizeDrugName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.Join(strings.Fields(normalized), " ")
	for changed := true; changed; {
		changed = false
		for _, suffix := range formSuffixes {
			if strings.HasSuffix(normalized, suffix) {
				normalized = strings.TrimSpace(strings.TrimSuffix(normalized, suffix))
				changed = true
			}
		}
		// "losartan 50" after " mg" removal: strip the bare number.
		fields := strings.Fields(normalized)
		if len(fields) > 1 && isNumeric(fields[len(fields)-1]) {
			normalized = strings.Join(fields[:len(fields)-1], " ")
			changed = true
		}
	}
	if ingredient, ok := brandNames[normalized]; ok {
		return ingredient
	}
	return normalized
}

// Check returns the known interactions among the given medication
// names, most severe first. Fewer than two names yields nothing.
func Check(medicationNames []string) []Interaction {
	if len(medicationNames) < 2 {
		return nil
	}

	normalized := make([]string, 0, len(medicationNames))
	seen := make(map[string]bool, len(medicationNames))
	for _, name := range medicationNames {
		n := NormalizeDrugName(name)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		normalized = append(normalized, n)
	}

	var found []Interaction
	for i := 0; i < len(normalized); i++ {
		for j := i + 1; j < len(normalized); j++ {
			a, b := normalized[i], normalized[j]
			if a > b {
				a, b = b, a
			}
			if entry, ok := knownInteractions[a+"+"+b]; ok {
				found = append(found, Interaction{
					Drugs:    [2]string{a, b},
					Severity: entry.severity,
					Warning:  entry.warning,
				})
			}
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		return severityRank(found[i].Severity) < severityRank(found[j].Severity)
	})
	return found
}

func severityRank(severity string) int {
	switch severity {
	case SeverityAlta:
		return 0
	case SeverityMedia:
		return 1
	default:
		return 2
	}
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, ch := range s {
		if (ch < '0' || ch > '9') && ch != '.' && ch != ',' {
			return false
		}
	}
	return true
}
