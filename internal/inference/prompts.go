package inference

// Task-specific generation budgets. Labs pages carry many rows and the
// model may spend tokens in thinking mode before the answer.
const (
	MaxNewTokensPrescription = 2048
	MaxNewTokensLabs         = 6144
	MaxNewTokensDefault      = 2048
)

// SystemInstruction frames the model as a Colombian medical document expert.
const SystemInstruction = "Eres un asistente médico experto en interpretar documentos médicos " +
	"colombianos como recetas, resultados de laboratorio e historias clínicas."

// PrescriptionPrompt extracts structured medication data from a prescription image.
const PrescriptionPrompt = `Analiza esta imagen de una receta médica colombiana y extrae la información de cada medicamento.
Para cada medicamento, incluye: nombre_medicamento, dosis, frecuencia, duracion, instrucciones.
Responde SOLO con JSON válido en el siguiente formato:
{"medicamentos": [{"nombre_medicamento": "...", "dosis": "...", "frecuencia": "...", "duracion": "...", "instrucciones": "..."}]}`

// LabResultsPrompt extracts structured test results from a lab report image.
const LabResultsPrompt = `Analiza esta imagen de resultados de laboratorio y extrae cada prueba.
Para cada prueba, incluye: nombre_prueba, valor, unidad, rango_referencia, estado (normal/alto/bajo).
Responde SOLO con JSON válido en el siguiente formato:
{"resultados": [{"nombre_prueba": "...", "valor": "...", "unidad": "...", "rango_referencia": "...", "estado": "..."}]}`

// PrescriptionVerifyPrompt reconciles image content with text evidence.
// Slots: route hint, evidence text.
const PrescriptionVerifyPrompt = `Ruta preliminar del documento: %s.
Verifica y extrae los medicamentos de esta receta médica colombiana.
Usa la siguiente evidencia de texto como apoyo, pero prioriza lo que sea consistente entre imagen y texto.
Si un campo no es confiable, déjalo vacío en lugar de adivinar.
Evidencia de texto:
%s
Responde SOLO con JSON válido en el siguiente formato:
{"medicamentos": [{"nombre_medicamento": "...", "dosis": "...", "frecuencia": "...", "duracion": "...", "instrucciones": "..."}]}`

// LabVerifyPrompt is the lab counterpart of PrescriptionVerifyPrompt.
const LabVerifyPrompt = `Ruta preliminar del documento: %s.
Verifica y extrae cada prueba de estos resultados de laboratorio.
Usa la siguiente evidencia de texto como apoyo, pero prioriza lo que sea consistente entre imagen y texto.
Si un campo no es confiable, déjalo vacío en lugar de adivinar.
Evidencia de texto:
%s
Responde SOLO con JSON válido en el siguiente formato:
{"resultados": [{"nombre_prueba": "...", "valor": "...", "unidad": "...", "rango_referencia": "...", "estado": "..."}]}`

// DocTypeClassifierPrompt asks for a strict single-JSON-object
// classification of the document kind. Slot: evidence text.
const DocTypeClassifierPrompt = `Clasifica este documento médico colombiano como "prescription" (receta médica), "lab" (resultados de laboratorio) o "unknown".
Evidencia de texto:
%s
Responde SOLO con un único objeto JSON, sin texto adicional:
{"document_type": "prescription|lab|unknown", "confidence": 0.0, "reason": "..."}`

// GroundedQAPrompt answers a follow-up question strictly from the
// analyzed document context. Slots: context payload, question.
const GroundedQAPrompt = `Responde la pregunta del usuario usando ÚNICAMENTE el contexto del documento analizado que aparece abajo.
Si la respuesta no está en el contexto, responde exactamente: "No se puede confirmar con la información disponible."
No diagnostiques ni recomiendes cambios de tratamiento o dosis.
Termina siempre con: "Esta herramienta es educativa y no reemplaza el consejo médico."

Contexto del documento (JSON):
%s

Pregunta: %s`
