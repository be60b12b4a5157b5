// Package content reads content items and categories owned by the host CMS.
// The audio pipeline never writes through this package.
package content

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/audiopress/audiopress/internal/models"
)

var ErrNotFound = errors.New("content item not found")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) GetByID(ctx context.Context, id int64) (*models.ContentItem, error) {
	var item models.ContentItem
	err := s.db.QueryRow(ctx,
		`SELECT id, title, body, attachment_path, status, provider_override, method_override, voice_override,
		        COALESCE(published_at, 'epoch'::timestamptz)
		 FROM content_items WHERE id = $1`,
		id,
	).Scan(&item.ID, &item.Title, &item.Body, &item.AttachmentPath, &item.Status,
		&item.ProviderOverride, &item.MethodOverride, &item.VoiceOverride, &item.PublishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get content item: %w", err)
	}

	rows, err := s.db.Query(ctx,
		"SELECT category_id FROM content_categories WHERE item_id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("get item categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cid int64
		if err := rows.Scan(&cid); err != nil {
			return nil, fmt.Errorf("scan category id: %w", err)
		}
		item.CategoryIDs = append(item.CategoryIDs, cid)
	}
	return &item, rows.Err()
}

// CategoryAncestry returns the given category ids plus every ancestor,
// walking parent links up to the roots.
func (s *Store) CategoryAncestry(ctx context.Context, categoryIDs []int64) ([]int64, error) {
	if len(categoryIDs) == 0 {
		return nil, nil
	}

	rows, err := s.db.Query(ctx,
		`WITH RECURSIVE ancestry AS (
			SELECT id, parent_id FROM categories WHERE id = ANY($1)
			UNION
			SELECT c.id, c.parent_id FROM categories c
			JOIN ancestry a ON c.id = a.parent_id
		)
		SELECT id FROM ancestry`,
		categoryIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("category ancestry: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan ancestry id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListPublishedIDs returns the ids of all published items in publish order.
func (s *Store) ListPublishedIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.Query(ctx,
		"SELECT id FROM content_items WHERE status = $1 ORDER BY published_at, id",
		models.ItemStatusPublished,
	)
	if err != nil {
		return nil, fmt.Errorf("list published items: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan item id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) CountPublished(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		"SELECT count(*) FROM content_items WHERE status = $1",
		models.ItemStatusPublished,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count published items: %w", err)
	}
	return n, nil
}
