// Package service wires the generation stack once for both binaries, so
// the api process and the worker drive the same queue, governor, and
// pipeline against the same Redis and Postgres state.
package service

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/audiopress/audiopress/internal/autoqueue"
	"github.com/audiopress/audiopress/internal/config"
	"github.com/audiopress/audiopress/internal/content"
	"github.com/audiopress/audiopress/internal/generate"
	"github.com/audiopress/audiopress/internal/models"
	"github.com/audiopress/audiopress/internal/queue"
	"github.com/audiopress/audiopress/internal/rategov"
	"github.com/audiopress/audiopress/internal/record"
	"github.com/audiopress/audiopress/internal/scheduler"
	"github.com/audiopress/audiopress/internal/storage"
	"github.com/audiopress/audiopress/internal/tts"
)

// Namespace prefixes every Redis key the system owns.
const Namespace = "audiopress"

type Services struct {
	Content   *content.Store
	Records   *record.Store
	Queue     *autoqueue.Queue
	Governor  *rategov.Governor
	Pipeline  *generate.Pipeline
	Scheduler *scheduler.Scheduler
	Purger    *generate.Purger
	Tasks     *queue.Client
}

func Build(db *pgxpool.Pool, rdb *redis.Client, cfg *config.Config) *Services {
	store := storage.NewSupabaseStorage(cfg.Storage.SupabaseURL, cfg.Storage.SupabaseKey)

	contentStore := content.NewStore(db)
	records := record.NewStore(db)
	autoQueue := autoqueue.New(rdb, Namespace)
	governor := rategov.New(rdb, Namespace, cfg.Generation.RateLimit, cfg.Generation.MaxPerHour)
	flags := scheduler.NewRedisFlags(rdb, Namespace)
	tasks := queue.NewClient(cfg.Redis)

	providers := map[string]tts.Provider{
		models.ProviderOpenAI: tts.NewOpenAI(tts.OpenAIConfig{
			APIKey:  cfg.TTS.OpenAIKey,
			BaseURL: cfg.TTS.OpenAIBaseURL,
			Model:   cfg.TTS.OpenAIModel,
		}),
		models.ProviderElevenLabs: tts.NewElevenLabs(tts.ElevenLabsConfig{
			APIKey:  cfg.TTS.ElevenLabsKey,
			BaseURL: cfg.TTS.ElevenLabsURL,
			Model:   cfg.TTS.ElevenLabsModel,
		}),
	}

	var summarizer generate.Summarizer
	if cfg.Summary.Enabled && cfg.Summary.AnthropicKey != "" {
		summarizer = generate.NewAnthropicSummarizer(cfg.Summary.AnthropicKey, cfg.Summary.Model, cfg.Summary.MaxTokens)
	}

	pipeline := generate.NewPipeline(generate.Options{
		Extractor:      content.NewExtractor(store, cfg.Storage.Bucket),
		Records:        records,
		Locker:         generate.NewItemLock(rdb, Namespace),
		Storage:        store,
		Summarizer:     summarizer,
		Providers:      providers,
		Settings:       cfg.Generation,
		SummaryEnabled: cfg.Summary.Enabled,
		Bucket:         cfg.Storage.Bucket,
		AudioPrefix:    cfg.Storage.AudioPrefix,
		RequestTimeout: cfg.TTS.RequestTimeout,
	})

	sched := scheduler.New(contentStore, records, autoQueue, governor, pipeline, tasks, flags, cfg.Generation)
	purger := generate.NewPurger(store, records, governor, cfg.Storage.Bucket, cfg.Storage.AudioPrefix)

	return &Services{
		Content:   contentStore,
		Records:   records,
		Queue:     autoQueue,
		Governor:  governor,
		Pipeline:  pipeline,
		Scheduler: sched,
		Purger:    purger,
		Tasks:     tasks,
	}
}
