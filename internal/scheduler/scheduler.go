// Package scheduler drives the auto-generation queue: it reacts to
// publish events, consumes the queue one item per tick under the rate
// governor, and re-arms its own timer until the queue drains.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/audiopress/audiopress/internal/autoqueue"
	"github.com/audiopress/audiopress/internal/config"
	"github.com/audiopress/audiopress/internal/content"
	"github.com/audiopress/audiopress/internal/generate"
	"github.com/audiopress/audiopress/internal/models"
	"github.com/audiopress/audiopress/internal/rategov"
	"github.com/audiopress/audiopress/internal/record"
)

// Scheduler states, persisted so any process (and the stats endpoint) sees
// the same machine.
const (
	StateIdle       = "idle"
	StateScheduled  = "scheduled"
	StateProcessing = "processing"
	StatePaused     = "paused"
)

// graceDelay is the short re-arm used when a tick skipped its item
// (vanished, unpublished, already fresh) and more work remains.
const graceDelay = 5 * time.Second

type ContentStore interface {
	GetByID(ctx context.Context, id int64) (*models.ContentItem, error)
	CategoryAncestry(ctx context.Context, categoryIDs []int64) ([]int64, error)
	ListPublishedIDs(ctx context.Context) ([]int64, error)
	CountPublished(ctx context.Context) (int, error)
}

type RecordStore interface {
	Get(ctx context.Context, itemID int64) (*models.AudioRecord, error)
	CountWithAudio(ctx context.Context) (int, error)
}

type Queue interface {
	Enqueue(ctx context.Context, itemID int64) (bool, error)
	DequeueFront(ctx context.Context) (int64, error)
	PeekFront(ctx context.Context) (int64, error)
	Size(ctx context.Context) (int64, error)
	Clear(ctx context.Context) error
}

type Governor interface {
	TryConsume(ctx context.Context, now time.Time) (rategov.Decision, error)
}

type Generator interface {
	Generate(ctx context.Context, item *models.ContentItem, force bool) (*generate.Result, error)
	CurrentHash(ctx context.Context, item *models.ContentItem) (string, error)
}

// TickArmer schedules a future tick delivery.
type TickArmer interface {
	EnqueueTick(delay time.Duration) error
}

// Flags is the scheduler's own durable state: machine status, the
// single-armed-tick guard, pause, and the bulk force-regenerate marker.
type Flags interface {
	Status(ctx context.Context) (string, error)
	SetStatus(ctx context.Context, status string) error
	TryArm(ctx context.Context, ttl time.Duration) (bool, error)
	Disarm(ctx context.Context) error
	Paused(ctx context.Context) (bool, error)
	SetPaused(ctx context.Context, paused bool) error
	Force(ctx context.Context) (bool, error)
	SetForce(ctx context.Context, force bool) error
}

type Scheduler struct {
	content  ContentStore
	records  RecordStore
	queue    Queue
	governor Governor
	gen      Generator
	armer    TickArmer
	flags    Flags
	settings config.GenerationSettings

	now func() time.Time
}

func New(
	contentStore ContentStore,
	records RecordStore,
	queue Queue,
	governor Governor,
	gen Generator,
	armer TickArmer,
	flags Flags,
	settings config.GenerationSettings,
) *Scheduler {
	return &Scheduler{
		content:  contentStore,
		records:  records,
		queue:    queue,
		governor: governor,
		gen:      gen,
		armer:    armer,
		flags:    flags,
		settings: settings,
		now:      time.Now,
	}
}

// OnContentPublished reacts to an item entering the published state. An
// ineligible item is a silent no-op; an eligible one is enqueued (at most
// once) and a tick is armed after the configured delay if none is pending.
func (s *Scheduler) OnContentPublished(ctx context.Context, itemID int64) error {
	if !s.settings.AutoGenerateEnabled {
		return nil
	}

	item, err := s.content.GetByID(ctx, itemID)
	if errors.Is(err, content.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load published item %d: %w", itemID, err)
	}
	if item.Status != models.ItemStatusPublished {
		return nil
	}

	eligible, err := s.eligible(ctx, item)
	if err != nil {
		return err
	}
	if !eligible {
		return nil
	}

	added, err := s.queue.Enqueue(ctx, item.ID)
	if err != nil {
		return err
	}
	if added {
		slog.Info("queued item for audio generation", "item_id", item.ID)
	}

	return s.arm(ctx, s.settings.AutoGenerateDelay)
}

// eligible applies the publish-time checks: no fresh audio for the
// current text, and no disabled category anywhere in the item's category
// ancestry.
func (s *Scheduler) eligible(ctx context.Context, item *models.ContentItem) (bool, error) {
	if len(s.settings.DisabledCategoryIDs) > 0 {
		ancestry, err := s.content.CategoryAncestry(ctx, item.CategoryIDs)
		if err != nil {
			return false, fmt.Errorf("resolve category ancestry for item %d: %w", item.ID, err)
		}
		if content.AnyDisabled(ancestry, s.settings.DisabledCategoryIDs) {
			return false, nil
		}
	}

	rec, err := s.records.Get(ctx, item.ID)
	if errors.Is(err, record.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("read record for item %d: %w", item.ID, err)
	}
	if rec.AudioPath == "" {
		return true, nil
	}

	hash, err := s.gen.CurrentHash(ctx, item)
	if err != nil {
		// Unreadable text is caught again at processing time.
		return true, nil
	}
	return !rec.HasAudioFor(hash), nil
}

// HandleTick is the asynq handler for TypeAudioTick. It runs one
// queue-processing step and re-arms or goes idle. Safe against early,
// late, and duplicate delivery: the governor and queue are the source of
// truth, not the timer.
func (s *Scheduler) HandleTick(ctx context.Context, _ *asynq.Task) error {
	if err := s.flags.Disarm(ctx); err != nil {
		return err
	}

	if err := s.tick(ctx); err != nil {
		// Tick tasks do not retry, so a transient store failure must
		// not end the chain while the queue may still hold work.
		if armErr := s.arm(ctx, graceDelay); armErr != nil {
			slog.Error("failed to re-arm after tick error", "error", armErr)
		}
		return err
	}
	return nil
}

func (s *Scheduler) tick(ctx context.Context) error {
	paused, err := s.flags.Paused(ctx)
	if err != nil {
		return err
	}
	if paused {
		// Frozen: no dequeue, no budget consumed, no re-arm.
		return s.flags.SetStatus(ctx, StatePaused)
	}

	size, err := s.queue.Size(ctx)
	if err != nil {
		return err
	}
	if size == 0 {
		return s.goIdle(ctx)
	}

	if err := s.flags.SetStatus(ctx, StateProcessing); err != nil {
		return err
	}

	decision, err := s.governor.TryConsume(ctx, s.now())
	if err != nil {
		return err
	}
	if !decision.Allowed {
		slog.Info("generation deferred by rate governor", "retry_after", decision.RetryAfter)
		return s.arm(ctx, decision.RetryAfter)
	}

	itemID, err := s.queue.DequeueFront(ctx)
	if errors.Is(err, autoqueue.ErrEmptyQueue) {
		return s.goIdle(ctx)
	}
	if err != nil {
		return err
	}

	processed := s.processItem(ctx, itemID)

	remaining, err := s.queue.Size(ctx)
	if err != nil {
		return err
	}
	if remaining == 0 {
		return s.goIdle(ctx)
	}
	if processed {
		return s.arm(ctx, s.settings.RateLimit)
	}
	return s.arm(ctx, graceDelay)
}

// processItem re-validates and generates. Returns true when a generation
// attempt ran, successful or not, so the next tick waits the full spacing
// interval; false means the item was skipped without provider work.
// Failures are logged and the item dropped from this cycle; bulk callers
// may re-enqueue.
func (s *Scheduler) processItem(ctx context.Context, itemID int64) bool {
	item, err := s.content.GetByID(ctx, itemID)
	if errors.Is(err, content.ErrNotFound) {
		return false
	}
	if err != nil {
		slog.Error("failed to load queued item", "item_id", itemID, "error", err)
		return false
	}
	if item.Status != models.ItemStatusPublished {
		return false
	}

	force, err := s.flags.Force(ctx)
	if err != nil {
		slog.Error("failed to read force flag", "error", err)
		force = false
	}

	result, err := s.gen.Generate(ctx, item, force)
	if err != nil {
		switch generate.KindOf(err) {
		case generate.KindNotFound:
			return false
		case generate.KindRateLimited:
			// Another worker holds the item lock; leave it to them.
			return false
		default:
			// The attempt consumed the rate budget even though it failed.
			slog.Error("audio generation failed", "item_id", itemID, "error", err)
			return true
		}
	}
	if result.Cached {
		return false
	}

	slog.Info("audio generated", "item_id", itemID, "audio_path", result.AudioPath)
	return true
}

// StartBulk queues every published item that needs audio (every published
// item when force is set) and arms an immediate tick. Returns how many
// new entries were queued.
func (s *Scheduler) StartBulk(ctx context.Context, force bool) (int, error) {
	ids, err := s.content.ListPublishedIDs(ctx)
	if err != nil {
		return 0, err
	}

	if err := s.flags.SetForce(ctx, force); err != nil {
		return 0, err
	}

	queued := 0
	for _, id := range ids {
		if !force {
			rec, err := s.records.Get(ctx, id)
			if err == nil && rec.AudioPath != "" {
				continue
			}
			if err != nil && !errors.Is(err, record.ErrNotFound) {
				return queued, fmt.Errorf("read record for item %d: %w", id, err)
			}
		}
		added, err := s.queue.Enqueue(ctx, id)
		if err != nil {
			return queued, err
		}
		if added {
			queued++
		}
	}

	if err := s.flags.SetPaused(ctx, false); err != nil {
		return queued, err
	}
	if queued > 0 {
		if err := s.arm(ctx, time.Second); err != nil {
			return queued, err
		}
	}

	slog.Info("bulk generation started", "queued", queued, "force", force)
	return queued, nil
}

// PauseBulk freezes tick processing without dropping queued work.
func (s *Scheduler) PauseBulk(ctx context.Context) error {
	if err := s.flags.SetPaused(ctx, true); err != nil {
		return err
	}
	return s.flags.SetStatus(ctx, StatePaused)
}

// ResumeBulk unfreezes processing and arms a tick for the pending work.
func (s *Scheduler) ResumeBulk(ctx context.Context) error {
	if err := s.flags.SetPaused(ctx, false); err != nil {
		return err
	}
	size, err := s.queue.Size(ctx)
	if err != nil {
		return err
	}
	if size == 0 {
		return s.goIdle(ctx)
	}
	return s.arm(ctx, graceDelay)
}

// StopBulk clears the queue and returns to idle. A generation already in
// flight finishes; its tick will find the queue empty and arm nothing.
func (s *Scheduler) StopBulk(ctx context.Context) error {
	if err := s.queue.Clear(ctx); err != nil {
		return err
	}
	if err := s.flags.SetPaused(ctx, false); err != nil {
		return err
	}
	if err := s.flags.SetForce(ctx, false); err != nil {
		return err
	}
	slog.Info("bulk generation stopped, queue cleared")
	return s.goIdle(ctx)
}

// Stats reports generation coverage and the machine's current state.
type Stats struct {
	TotalItems     int     `json:"total_items"`
	ItemsWithAudio int     `json:"items_with_audio"`
	Pending        int64   `json:"pending"`
	OldestPending  int64   `json:"oldest_pending,omitempty"`
	CompletionRate float64 `json:"completion_rate"`
	CurrentStatus  string  `json:"current_status"`
}

func (s *Scheduler) Stats(ctx context.Context) (*Stats, error) {
	total, err := s.content.CountPublished(ctx)
	if err != nil {
		return nil, err
	}
	withAudio, err := s.records.CountWithAudio(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.queue.Size(ctx)
	if err != nil {
		return nil, err
	}
	status, err := s.flags.Status(ctx)
	if err != nil {
		return nil, err
	}

	st := &Stats{
		TotalItems:     total,
		ItemsWithAudio: withAudio,
		Pending:        pending,
		CurrentStatus:  status,
	}
	if total > 0 {
		st.CompletionRate = float64(withAudio) / float64(total)
	}
	if oldest, err := s.queue.PeekFront(ctx); err == nil {
		st.OldestPending = oldest
	}
	return st, nil
}

// arm schedules a tick after delay unless one is already pending. The
// armed guard expires slightly after the tick is due, so a lost tick
// self-heals instead of wedging the machine.
func (s *Scheduler) arm(ctx context.Context, delay time.Duration) error {
	armed, err := s.flags.TryArm(ctx, delay+time.Minute)
	if err != nil {
		return err
	}
	if !armed {
		return nil
	}
	if err := s.armer.EnqueueTick(delay); err != nil {
		// Undo the guard so a later caller can arm.
		if derr := s.flags.Disarm(ctx); derr != nil {
			slog.Error("failed to disarm after enqueue failure", "error", derr)
		}
		return fmt.Errorf("arm tick: %w", err)
	}
	return s.flags.SetStatus(ctx, StateScheduled)
}

func (s *Scheduler) goIdle(ctx context.Context) error {
	if err := s.flags.SetForce(ctx, false); err != nil {
		return err
	}
	return s.flags.SetStatus(ctx, StateIdle)
}
