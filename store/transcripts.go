package store

import (
	"context"
	"fmt"
	"time"

	"github.com/K3das/hark/asr"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type StoredTranscript struct {
	ID        int64
	RunID     uuid.UUID
	CreatedAt time.Time

	asr.Transcript
}

const insertTranscript = `
INSERT INTO transcripts (run_id, sequence, kind, tag, candidates, audio_duration_ms, processing_time_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (run_id, sequence) DO NOTHING`

const selectRecentTranscripts = `
SELECT id, run_id, sequence, kind, tag, candidates, audio_duration_ms, processing_time_ms, created_at
FROM transcripts
ORDER BY created_at DESC, id DESC
LIMIT $1`

// SaveTranscript records t under this run. Saving the same sequence twice is a
// no-op.
func (s *Store) SaveTranscript(ctx context.Context, t asr.Transcript) error {
	if s.conn == nil {
		return ErrNotConnected
	}

	candidates := t.Candidates
	if candidates == nil {
		candidates = []string{}
	}

	_, err := s.conn.Exec(ctx, insertTranscript,
		s.runID,
		int64(t.Sequence),
		t.Kind.String(),
		t.Tag,
		candidates,
		t.AudioDuration.Milliseconds(),
		t.ProcessingTime.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("inserting transcript: %w", err)
	}

	return nil
}

// RecentTranscripts returns up to limit transcripts, newest first.
func (s *Store) RecentTranscripts(ctx context.Context, limit int) ([]StoredTranscript, error) {
	if s.conn == nil {
		return nil, ErrNotConnected
	}

	rows, err := s.conn.Query(ctx, selectRecentTranscripts, limit)
	if err != nil {
		return nil, fmt.Errorf("querying transcripts: %w", err)
	}

	transcripts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (StoredTranscript, error) {
		var (
			st             StoredTranscript
			sequence       int64
			kind           string
			audioMillis    int64
			processingMils int64
		)
		err := row.Scan(&st.ID, &st.RunID, &sequence, &kind, &st.Tag, &st.Candidates, &audioMillis, &processingMils, &st.CreatedAt)
		if err != nil {
			return st, err
		}

		st.Sequence = uint64(sequence)
		st.Kind = asr.ParseKind(kind)
		st.AudioDuration = time.Duration(audioMillis) * time.Millisecond
		st.ProcessingTime = time.Duration(processingMils) * time.Millisecond
		return st, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning transcripts: %w", err)
	}

	return transcripts, nil
}
