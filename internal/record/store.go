// Package record persists per-item audio generation records.
package record

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/audiopress/audiopress/internal/models"
)

var ErrNotFound = errors.New("audio record not found")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, itemID int64) (*models.AudioRecord, error) {
	var rec models.AudioRecord
	err := s.db.QueryRow(ctx,
		`SELECT item_id, audio_path, content_hash, summary, summary_hash, updated_at
		 FROM audio_records WHERE item_id = $1`,
		itemID,
	).Scan(&rec.ItemID, &rec.AudioPath, &rec.ContentHash, &rec.Summary, &rec.SummaryHash, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get audio record: %w", err)
	}
	return &rec, nil
}

// SetAudio records freshly generated audio for an item. A changed content
// hash drops any cached summary, since it belonged to the previous text.
func (s *Store) SetAudio(ctx context.Context, itemID int64, audioPath, contentHash string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO audio_records (item_id, audio_path, content_hash, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (item_id) DO UPDATE SET
		   audio_path = EXCLUDED.audio_path,
		   content_hash = EXCLUDED.content_hash,
		   summary = CASE WHEN audio_records.summary_hash = EXCLUDED.content_hash THEN audio_records.summary ELSE '' END,
		   summary_hash = CASE WHEN audio_records.summary_hash = EXCLUDED.content_hash THEN audio_records.summary_hash ELSE '' END,
		   updated_at = now()`,
		itemID, audioPath, contentHash,
	)
	if err != nil {
		return fmt.Errorf("set audio record: %w", err)
	}
	return nil
}

func (s *Store) SetSummary(ctx context.Context, itemID int64, summary, contentHash string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO audio_records (item_id, summary, summary_hash, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (item_id) DO UPDATE SET
		   summary = EXCLUDED.summary,
		   summary_hash = EXCLUDED.summary_hash,
		   updated_at = now()`,
		itemID, summary, contentHash,
	)
	if err != nil {
		return fmt.Errorf("set summary: %w", err)
	}
	return nil
}

func (s *Store) CountWithAudio(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		"SELECT count(*) FROM audio_records WHERE audio_path <> ''").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count records with audio: %w", err)
	}
	return n, nil
}

// DeleteAll removes every record and returns how many were deleted.
// Used only by the purge path.
func (s *Store) DeleteAll(ctx context.Context) (int, error) {
	tag, err := s.db.Exec(ctx, "DELETE FROM audio_records")
	if err != nil {
		return 0, fmt.Errorf("delete audio records: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
