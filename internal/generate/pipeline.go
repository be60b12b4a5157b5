// Package generate runs the audio generation pipeline: extract text,
// check the record cache, synthesize, persist, and summarize. Both the
// background scheduler and the on-demand endpoint run the same pipeline,
// so an item can never be generated twice for the same text and never by
// two workers at once.
package generate

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/audiopress/audiopress/internal/config"
	"github.com/audiopress/audiopress/internal/content"
	"github.com/audiopress/audiopress/internal/models"
	"github.com/audiopress/audiopress/internal/record"
	"github.com/audiopress/audiopress/internal/storage"
	"github.com/audiopress/audiopress/internal/tts"
)

// Extractor produces speakable plain text for an item.
type Extractor interface {
	Extract(ctx context.Context, item *models.ContentItem) (string, error)
}

// Records is the slice of the record store the pipeline needs.
type Records interface {
	Get(ctx context.Context, itemID int64) (*models.AudioRecord, error)
	SetAudio(ctx context.Context, itemID int64, audioPath, contentHash string) error
	SetSummary(ctx context.Context, itemID int64, summary, contentHash string) error
}

// Locker guards at-most-one in-flight generation per item across
// processes. Locks expire on their own so a crashed worker cannot wedge an
// item forever.
type Locker interface {
	Acquire(ctx context.Context, itemID int64) (bool, error)
	Release(ctx context.Context, itemID int64) error
}

// Summarizer produces a short text summary; failures never fail generation.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Result is the outcome of a successful pipeline run. Cached means the
// existing audio already matched the current text and no provider was
// called.
type Result struct {
	AudioPath string
	AudioURL  string
	Cached    bool
}

type Pipeline struct {
	extractor  Extractor
	records    Records
	locker     Locker
	storage    storage.Storage
	summarizer Summarizer
	providers  map[string]tts.Provider

	settings       config.GenerationSettings
	summaryEnabled bool
	bucket         string
	audioPrefix    string
	requestTimeout time.Duration
}

type Options struct {
	Extractor      Extractor
	Records        Records
	Locker         Locker
	Storage        storage.Storage
	Summarizer     Summarizer // nil disables summaries
	Providers      map[string]tts.Provider
	Settings       config.GenerationSettings
	SummaryEnabled bool
	Bucket         string
	AudioPrefix    string
	RequestTimeout time.Duration
}

func NewPipeline(opts Options) *Pipeline {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 45 * time.Second
	}
	return &Pipeline{
		extractor:      opts.Extractor,
		records:        opts.Records,
		locker:         opts.Locker,
		storage:        opts.Storage,
		summarizer:     opts.Summarizer,
		providers:      opts.Providers,
		settings:       opts.Settings,
		summaryEnabled: opts.SummaryEnabled && opts.Summarizer != nil,
		bucket:         opts.Bucket,
		audioPrefix:    opts.AudioPrefix,
		requestTimeout: opts.RequestTimeout,
	}
}

// CurrentHash returns the hash of the text that would be synthesized for
// the item right now. Used to detect staleness without generating.
func (p *Pipeline) CurrentHash(ctx context.Context, item *models.ContentItem) (string, error) {
	text, err := p.finalText(ctx, item)
	if err != nil {
		return "", err
	}
	return HashText(text), nil
}

// Generate runs the full pipeline for one item. With force set, a matching
// cached record is ignored and audio is regenerated.
func (p *Pipeline) Generate(ctx context.Context, item *models.ContentItem, force bool) (*Result, error) {
	acquired, err := p.locker.Acquire(ctx, item.ID)
	if err != nil {
		return nil, wrapError(KindStorageError, "acquire generation lock", err)
	}
	if !acquired {
		return nil, newError(KindRateLimited, fmt.Sprintf("generation already in progress for item %d", item.ID))
	}
	defer func() {
		if err := p.locker.Release(ctx, item.ID); err != nil {
			slog.Warn("failed to release generation lock", "item_id", item.ID, "error", err)
		}
	}()

	text, err := p.finalText(ctx, item)
	if err != nil {
		return nil, err
	}
	hash := HashText(text)

	// Cache check happens before any provider call on every path.
	rec, err := p.records.Get(ctx, item.ID)
	if err != nil && !errors.Is(err, record.ErrNotFound) {
		return nil, wrapError(KindStorageError, "read audio record", err)
	}
	if !force && rec.HasAudioFor(hash) {
		return &Result{
			AudioPath: rec.AudioPath,
			AudioURL:  p.storage.GetPublicURL(p.bucket, rec.AudioPath),
			Cached:    true,
		}, nil
	}

	provider, method, voice, err := p.resolve(item)
	if err != nil {
		return nil, err
	}

	synthCtx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()

	req := tts.SynthesisRequest{Input: text, Voice: voice}
	var result *tts.SynthesisResult
	if method == models.MethodChunked {
		result, err = tts.SynthesizeChunked(synthCtx, provider, req)
	} else {
		result, err = provider.Synthesize(synthCtx, req)
	}
	if err != nil {
		return nil, wrapError(KindProviderError, fmt.Sprintf("synthesize with %s", provider.Name()), err)
	}

	audioPath := fmt.Sprintf("%s%d-%s.mp3", p.audioPrefix, item.ID, uuid.New().String())
	if err := p.storage.Upload(ctx, p.bucket, audioPath, bytes.NewReader(result.Audio), result.ContentType); err != nil {
		return nil, wrapError(KindStorageError, "store audio", err)
	}

	if err := p.records.SetAudio(ctx, item.ID, audioPath, hash); err != nil {
		return nil, wrapError(KindStorageError, "update audio record", err)
	}

	// The replaced blob is unreachable once the record points elsewhere.
	if rec != nil && rec.AudioPath != "" && rec.AudioPath != audioPath {
		if err := p.storage.Delete(ctx, p.bucket, rec.AudioPath); err != nil {
			slog.Warn("failed to delete previous audio", "item_id", item.ID, "path", rec.AudioPath, "error", err)
		}
	}

	p.maybeSummarize(ctx, item.ID, text, hash, rec)

	return &Result{
		AudioPath: audioPath,
		AudioURL:  p.storage.GetPublicURL(p.bucket, audioPath),
	}, nil
}

func (p *Pipeline) finalText(ctx context.Context, item *models.ContentItem) (string, error) {
	text, err := p.extractor.Extract(ctx, item)
	if err != nil {
		return "", wrapError(KindNoReadableText, fmt.Sprintf("extract text for item %d", item.ID), err)
	}
	text = strings.TrimSpace(text)
	if len([]rune(text)) < content.MinTextLength {
		return "", newError(KindNoReadableText, fmt.Sprintf("item %d has no readable text", item.ID))
	}
	return content.Truncate(text), nil
}

// resolve applies two-level precedence: an item override wins unless it is
// empty or the "default" literal, which falls through to the global setting.
func (p *Pipeline) resolve(item *models.ContentItem) (tts.Provider, string, string, error) {
	providerName := resolveOverride(item.ProviderOverride, p.settings.DefaultProvider)
	provider, ok := p.providers[providerName]
	if !ok {
		return nil, "", "", newError(KindProviderError, fmt.Sprintf("unknown provider %q", providerName))
	}

	method := resolveOverride(item.MethodOverride, p.settings.DefaultMethod)
	voice := resolveOverride(item.VoiceOverride, p.settings.DefaultVoice)
	return provider, method, voice, nil
}

func resolveOverride(override, global string) string {
	if override == "" || override == models.OverrideDefault {
		return global
	}
	return override
}

func (p *Pipeline) maybeSummarize(ctx context.Context, itemID int64, text, hash string, rec *models.AudioRecord) {
	if !p.summaryEnabled {
		return
	}
	if _, ok := rec.SummaryFor(hash); ok {
		return
	}

	summary, err := p.summarizer.Summarize(ctx, text)
	if err != nil {
		slog.Warn("summary generation failed", "item_id", itemID, "error", err)
		return
	}
	if err := p.records.SetSummary(ctx, itemID, summary, hash); err != nil {
		slog.Warn("failed to store summary", "item_id", itemID, "error", err)
	}
}

// HashText fingerprints the exact text sent to a provider.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
