package analyses

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"misalud-backend/internal/chat"
	"misalud-backend/internal/orchestrator"
	"misalud-backend/internal/shared/metrics"
	"misalud-backend/internal/shared/storage/object"
)

// Service contains the business logic for document analyses.
type Service struct {
	Store    object.Store
	Repo     Repo
	Pipeline *orchestrator.Orchestrator
	Chat     *chat.Answerer
}

// Analyze stores the uploaded document, runs the full pipeline and
// persists the result.
func (s *Service) Analyze(ctx context.Context, fileName string, r io.Reader, backendName string) (Analysis, error) {
	if strings.TrimSpace(fileName) == "" {
		return Analysis{}, ErrInvalidInput
	}

	metrics.IncAnalysisStarted()
	started := metrics.NowMillis()

	storageKey, _, _, err := s.Store.Save(ctx, fileName, r)
	if err != nil {
		metrics.IncAnalysisFailed()
		return Analysis{}, err
	}
	filePath, err := s.Store.Path(storageKey)
	if err != nil {
		metrics.IncAnalysisFailed()
		return Analysis{}, err
	}

	result, err := s.Pipeline.Analyze(ctx, filePath, backendName)
	if err != nil {
		metrics.IncAnalysisFailed()
		return Analysis{}, err
	}
	metrics.ObserveAnalysisOutcome(result.Status)
	metrics.ObserveAnalysisDurationMs(metrics.NowMillis() - started)

	now := time.Now().UTC()
	analysis := Analysis{
		ID:              uuid.NewString(),
		FileName:        fileName,
		StorageKey:      storageKey,
		DocType:         result.DocType,
		RouteConfidence: result.RouteConfidence,
		Status:          result.Status,
		SourceKind:      result.SourceKind,
		Result:          &result,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.Repo.Create(ctx, analysis); err != nil {
		return Analysis{}, err
	}
	return analysis, nil
}

// Get returns an analysis by ID.
func (s *Service) Get(ctx context.Context, analysisID string) (Analysis, error) {
	if strings.TrimSpace(analysisID) == "" {
		return Analysis{}, ErrInvalidInput
	}
	return s.Repo.GetByID(ctx, analysisID)
}

// List returns stored analyses, newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Analysis, error) {
	return s.Repo.List(ctx, limit, offset)
}

// Ask answers a follow-up question grounded in a stored analysis.
func (s *Service) Ask(ctx context.Context, analysisID, question, backendName string) (chat.Response, error) {
	analysis, err := s.Get(ctx, analysisID)
	if err != nil {
		return chat.Response{}, err
	}
	metrics.IncChatQuestion()
	var chatCtx *orchestrator.ChatContext
	if analysis.Result != nil {
		chatCtx = analysis.Result.ChatContext
	}
	return s.Chat.Answer(ctx, chatCtx, question, backendName), nil
}
