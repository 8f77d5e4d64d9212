package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/attestlabs/attest/internal/transcript"
)

// TranscriptRecord is a stored transcript with its segments.
type TranscriptRecord struct {
	ID          uuid.UUID
	Title       string
	ContentType string
	Segments    []transcript.Segment
	CreatedAt   time.Time
}

// WriteTranscript stores a transcript and returns its id. Segments are
// stored as JSONB; they are immutable once written.
func (s *Store) WriteTranscript(ctx context.Context, title, contentType string, segments []transcript.Segment) (uuid.UUID, error) {
	data, err := json.Marshal(segments)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal segments: %w", err)
	}

	id := uuid.New()
	query := `
		INSERT INTO transcripts (id, title, content_type, segments, created_at)
		VALUES ($1, $2, $3, $4, now())`

	if _, err := s.pool.Exec(ctx, query, id, title, contentType, data); err != nil {
		return uuid.Nil, fmt.Errorf("insert transcript: %w", err)
	}
	return id, nil
}

// GetTranscript loads a transcript by id.
func (s *Store) GetTranscript(ctx context.Context, id uuid.UUID) (*TranscriptRecord, error) {
	query := `
		SELECT id, title, content_type, segments, created_at
		FROM transcripts WHERE id = $1`

	var rec TranscriptRecord
	var data []byte
	err := s.pool.QueryRow(ctx, query, id).Scan(&rec.ID, &rec.Title, &rec.ContentType, &data, &rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get transcript %s: %w", id, err)
	}
	if err := json.Unmarshal(data, &rec.Segments); err != nil {
		return nil, fmt.Errorf("unmarshal segments: %w", err)
	}
	return &rec, nil
}
