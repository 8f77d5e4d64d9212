package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/attestlabs/attest/internal/analysis"
	"github.com/attestlabs/attest/internal/enrich"
)

// Analysis statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// AnalysisRecord is a stored analysis run.
type AnalysisRecord struct {
	ID           uuid.UUID
	TranscriptID uuid.UUID
	TemplateID   string
	Strategy     string
	Status       string
	Error        string
	Results      *analysis.Results
	Enrichment   *enrich.Metadata
	CreatedAt    time.Time
	CompletedAt  *time.Time
}

// BeginAnalysis records a run in the running state and returns its id.
func (s *Store) BeginAnalysis(ctx context.Context, transcriptID uuid.UUID, templateID, strat string) (uuid.UUID, error) {
	id := uuid.New()
	query := `
		INSERT INTO analyses (id, transcript_id, template_id, strategy, status, created_at)
		VALUES ($1, $2, $3, $4, $5, now())`

	if _, err := s.pool.Exec(ctx, query, id, transcriptID, templateID, strat, StatusRunning); err != nil {
		return uuid.Nil, fmt.Errorf("insert analysis: %w", err)
	}
	return id, nil
}

// CompleteAnalysis stores the final results and enrichment metadata.
func (s *Store) CompleteAnalysis(ctx context.Context, id uuid.UUID, strat string, results *analysis.Results, meta *enrich.Metadata) error {
	resultData, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	var metaData []byte
	if meta != nil {
		if metaData, err = json.Marshal(meta); err != nil {
			return fmt.Errorf("marshal enrichment metadata: %w", err)
		}
	}

	query := `
		UPDATE analyses
		SET status = $2, strategy = $3, results = $4, enrichment = $5, completed_at = now()
		WHERE id = $1`

	if _, err := s.pool.Exec(ctx, query, id, StatusCompleted, strat, resultData, metaData); err != nil {
		return fmt.Errorf("complete analysis %s: %w", id, err)
	}
	return nil
}

// FailAnalysis marks a run failed with its error message.
func (s *Store) FailAnalysis(ctx context.Context, id uuid.UUID, runErr error) error {
	query := `
		UPDATE analyses SET status = $2, error = $3, completed_at = now() WHERE id = $1`

	if _, err := s.pool.Exec(ctx, query, id, StatusFailed, runErr.Error()); err != nil {
		return fmt.Errorf("fail analysis %s: %w", id, err)
	}
	return nil
}

// GetAnalysis loads one analysis run.
func (s *Store) GetAnalysis(ctx context.Context, id uuid.UUID) (*AnalysisRecord, error) {
	query := `
		SELECT id, transcript_id, template_id, strategy, status, COALESCE(error, ''),
		       results, enrichment, created_at, completed_at
		FROM analyses WHERE id = $1`

	var rec AnalysisRecord
	var resultData, metaData []byte
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&rec.ID, &rec.TranscriptID, &rec.TemplateID, &rec.Strategy, &rec.Status, &rec.Error,
		&resultData, &metaData, &rec.CreatedAt, &rec.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get analysis %s: %w", id, err)
	}

	if len(resultData) > 0 {
		rec.Results = &analysis.Results{}
		if err := json.Unmarshal(resultData, rec.Results); err != nil {
			return nil, fmt.Errorf("unmarshal results: %w", err)
		}
	}
	if len(metaData) > 0 {
		rec.Enrichment = &enrich.Metadata{}
		if err := json.Unmarshal(metaData, rec.Enrichment); err != nil {
			return nil, fmt.Errorf("unmarshal enrichment metadata: %w", err)
		}
	}
	return &rec, nil
}

// ListAnalyses returns runs for a transcript, newest first.
func (s *Store) ListAnalyses(ctx context.Context, transcriptID uuid.UUID) ([]AnalysisRecord, error) {
	query := `
		SELECT id, transcript_id, template_id, strategy, status, COALESCE(error, ''), created_at, completed_at
		FROM analyses WHERE transcript_id = $1 ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, transcriptID)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	var out []AnalysisRecord
	for rows.Next() {
		var rec AnalysisRecord
		if err := rows.Scan(&rec.ID, &rec.TranscriptID, &rec.TemplateID, &rec.Strategy, &rec.Status, &rec.Error, &rec.CreatedAt, &rec.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
