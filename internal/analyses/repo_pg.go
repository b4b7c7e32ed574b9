package analyses

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"misalud-backend/internal/orchestrator"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new analysis.
func (r *PGRepo) Create(ctx context.Context, analysis Analysis) error {
	const query = `
INSERT INTO analyses (
    id,
    file_name,
    storage_key,
    doc_type,
    route_confidence,
    status,
    source_kind,
    result_json,
    created_at,
    updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	resultJSON, err := marshalResult(analysis.Result)
	if err != nil {
		return err
	}

	_, err = r.DB.ExecContext(
		ctx,
		query,
		analysis.ID,
		analysis.FileName,
		analysis.StorageKey,
		analysis.DocType,
		analysis.RouteConfidence,
		analysis.Status,
		analysis.SourceKind,
		resultJSON,
		analysis.CreatedAt,
		analysis.UpdatedAt,
	)
	return err
}

// GetByID returns an analysis by ID.
func (r *PGRepo) GetByID(ctx context.Context, analysisID string) (Analysis, error) {
	const query = `
SELECT id, file_name, storage_key, doc_type, route_confidence, status, source_kind, result_json, created_at, updated_at
FROM analyses
WHERE id = $1`

	row := r.DB.QueryRowContext(ctx, query, analysisID)
	analysis, err := scanAnalysis(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Analysis{}, ErrNotFound
		}
		return Analysis{}, err
	}
	return analysis, nil
}

// List returns analyses newest first, honoring limit/offset.
func (r *PGRepo) List(ctx context.Context, limit, offset int) ([]Analysis, error) {
	const query = `
SELECT id, file_name, storage_key, doc_type, route_confidence, status, source_kind, result_json, created_at, updated_at
FROM analyses
ORDER BY created_at DESC
LIMIT $1 OFFSET $2`

	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.DB.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	analyses := []Analysis{}
	for rows.Next() {
		analysis, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		analyses = append(analyses, analysis)
	}
	return analyses, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (Analysis, error) {
	var analysis Analysis
	var resultJSON []byte
	err := row.Scan(
		&analysis.ID,
		&analysis.FileName,
		&analysis.StorageKey,
		&analysis.DocType,
		&analysis.RouteConfidence,
		&analysis.Status,
		&analysis.SourceKind,
		&resultJSON,
		&analysis.CreatedAt,
		&analysis.UpdatedAt,
	)
	if err != nil {
		return Analysis{}, err
	}
	if len(resultJSON) > 0 {
		var result orchestrator.Result
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return Analysis{}, fmt.Errorf("decode result_json: %w", err)
		}
		analysis.Result = &result
	}
	return analysis, nil
}

func marshalResult(result *orchestrator.Result) ([]byte, error) {
	if result == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode result_json: %w", err)
	}
	return encoded, nil
}
