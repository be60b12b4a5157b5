package generate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/audiopress/audiopress/internal/storage"
)

// PurgeRecords is the slice of the record store purge needs.
type PurgeRecords interface {
	DeleteAll(ctx context.Context) (int, error)
}

// RateResetter clears the governor so a fresh library starts with a fresh
// budget.
type RateResetter interface {
	Reset(ctx context.Context) error
}

// PurgeResult reports what a purge removed and every failure it skipped
// over along the way.
type PurgeResult struct {
	DeletedAudio   int      `json:"deleted_audio"`
	DeletedRecords int      `json:"deleted_records"`
	Errors         []string `json:"errors,omitempty"`
}

// Purger deletes all generated audio and records. Destructive and
// irreversible; it keeps going past individual failures and reports them.
type Purger struct {
	storage     storage.Storage
	records     PurgeRecords
	governor    RateResetter
	bucket      string
	audioPrefix string
}

func NewPurger(store storage.Storage, records PurgeRecords, governor RateResetter, bucket, audioPrefix string) *Purger {
	return &Purger{
		storage:     store,
		records:     records,
		governor:    governor,
		bucket:      bucket,
		audioPrefix: audioPrefix,
	}
}

func (p *Purger) Purge(ctx context.Context) (*PurgeResult, error) {
	result := &PurgeResult{}

	paths, err := p.storage.List(ctx, p.bucket, p.audioPrefix)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list audio objects: %v", err))
	}

	for _, path := range paths {
		if err := p.storage.Delete(ctx, p.bucket, path); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("delete %s: %v", path, err))
			continue
		}
		result.DeletedAudio++
	}

	deleted, err := p.records.DeleteAll(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("delete records: %v", err))
	}
	result.DeletedRecords = deleted

	if p.governor != nil {
		if err := p.governor.Reset(ctx); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("reset rate state: %v", err))
		}
	}

	slog.Info("purge completed",
		"deleted_audio", result.DeletedAudio,
		"deleted_records", result.DeletedRecords,
		"errors", len(result.Errors))

	return result, nil
}
