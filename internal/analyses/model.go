package analyses

import (
	"time"

	"misalud-backend/internal/orchestrator"
)

// Analysis is one stored document analysis.
type Analysis struct {
	ID              string               `json:"id"`
	FileName        string               `json:"fileName"`
	StorageKey      string               `json:"-"`
	DocType         string               `json:"docType"`
	RouteConfidence float64              `json:"routeConfidence"`
	Status          string               `json:"status"`
	SourceKind      string               `json:"sourceKind"`
	Result          *orchestrator.Result `json:"result,omitempty"`
	CreatedAt       time.Time            `json:"createdAt"`
	UpdatedAt       time.Time            `json:"updatedAt"`
}
