package generate_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiopress/audiopress/internal/config"
	"github.com/audiopress/audiopress/internal/content"
	"github.com/audiopress/audiopress/internal/generate"
	"github.com/audiopress/audiopress/internal/models"
	"github.com/audiopress/audiopress/internal/record"
	"github.com/audiopress/audiopress/internal/tts"
)

var (
	errMockProvider = errors.New("mock provider error")
	errMockUpload   = errors.New("mock upload error")
	errMockSummary  = errors.New("mock summary error")
)

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) Extract(_ context.Context, _ *models.ContentItem) (string, error) {
	return f.text, f.err
}

type memRecords struct {
	records map[int64]*models.AudioRecord
}

func newMemRecords() *memRecords {
	return &memRecords{records: make(map[int64]*models.AudioRecord)}
}

func (m *memRecords) Get(_ context.Context, itemID int64) (*models.AudioRecord, error) {
	rec, ok := m.records[itemID]
	if !ok {
		return nil, record.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memRecords) SetAudio(_ context.Context, itemID int64, audioPath, contentHash string) error {
	rec, ok := m.records[itemID]
	if !ok {
		rec = &models.AudioRecord{ItemID: itemID}
		m.records[itemID] = rec
	}
	rec.AudioPath = audioPath
	rec.ContentHash = contentHash
	return nil
}

func (m *memRecords) SetSummary(_ context.Context, itemID int64, summary, contentHash string) error {
	rec, ok := m.records[itemID]
	if !ok {
		rec = &models.AudioRecord{ItemID: itemID}
		m.records[itemID] = rec
	}
	rec.Summary = summary
	rec.SummaryHash = contentHash
	return nil
}

type fakeLocker struct {
	denyAcquire bool
	acquired    int
	released    int
}

func (f *fakeLocker) Acquire(_ context.Context, _ int64) (bool, error) {
	if f.denyAcquire {
		return false, nil
	}
	f.acquired++
	return true, nil
}

func (f *fakeLocker) Release(_ context.Context, _ int64) error {
	f.released++
	return nil
}

type fakeStorage struct {
	uploadErr error
	uploaded  []string
	deleted   []string
}

func (f *fakeStorage) Upload(_ context.Context, _, path string, _ io.Reader, _ string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploaded = append(f.uploaded, path)
	return nil
}

func (f *fakeStorage) Download(_ context.Context, _, _ string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeStorage) Delete(_ context.Context, _, path string) error {
	f.deleted = append(f.deleted, path)
	return nil
}

func (f *fakeStorage) List(_ context.Context, _, _ string) ([]string, error) {
	return nil, nil
}

func (f *fakeStorage) GetPublicURL(_, path string) string {
	return "https://cdn.example.com/" + path
}

type countingProvider struct {
	name      string
	err       error
	calls     int
	lastInput string
}

func (p *countingProvider) Name() string { return p.name }

func (p *countingProvider) Synthesize(_ context.Context, req tts.SynthesisRequest) (*tts.SynthesisResult, error) {
	p.calls++
	p.lastInput = req.Input
	if p.err != nil {
		return nil, p.err
	}
	return &tts.SynthesisResult{Audio: []byte("mp3-bytes"), ContentType: "audio/mpeg"}, nil
}

type fakeSummarizer struct {
	summary string
	err     error
	calls   int
}

func (f *fakeSummarizer) Summarize(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.summary, f.err
}

type pipelineFixture struct {
	pipeline   *generate.Pipeline
	extractor  *fakeExtractor
	records    *memRecords
	locker     *fakeLocker
	storage    *fakeStorage
	openai     *countingProvider
	elevenlabs *countingProvider
	summarizer *fakeSummarizer
}

func newFixture(text string, summaryEnabled bool) *pipelineFixture {
	f := &pipelineFixture{
		extractor:  &fakeExtractor{text: text},
		records:    newMemRecords(),
		locker:     &fakeLocker{},
		storage:    &fakeStorage{},
		openai:     &countingProvider{name: "openai"},
		elevenlabs: &countingProvider{name: "elevenlabs"},
		summarizer: &fakeSummarizer{summary: "a short summary"},
	}
	f.pipeline = generate.NewPipeline(generate.Options{
		Extractor:  f.extractor,
		Records:    f.records,
		Locker:     f.locker,
		Storage:    f.storage,
		Summarizer: f.summarizer,
		Providers: map[string]tts.Provider{
			"openai":     f.openai,
			"elevenlabs": f.elevenlabs,
		},
		Settings: config.GenerationSettings{
			DefaultProvider: "openai",
			DefaultMethod:   models.MethodSingle,
			DefaultVoice:    "alloy",
		},
		SummaryEnabled: summaryEnabled,
		Bucket:         "audio",
		AudioPrefix:    "tts/",
		RequestTimeout: 5 * time.Second,
	})
	return f
}

func item(id int64) *models.ContentItem {
	return &models.ContentItem{ID: id, Status: models.ItemStatusPublished}
}

func TestGenerateHappyPath(t *testing.T) {
	t.Parallel()

	f := newFixture("This is a perfectly readable article body.", false)

	result, err := f.pipeline.Generate(context.Background(), item(42), false)
	require.NoError(t, err)

	assert.False(t, result.Cached)
	assert.Contains(t, result.AudioPath, "tts/42-")
	assert.Equal(t, "https://cdn.example.com/"+result.AudioPath, result.AudioURL)
	assert.Equal(t, 1, f.openai.calls)
	require.Len(t, f.storage.uploaded, 1)

	rec, err := f.records.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, result.AudioPath, rec.AudioPath)
	assert.Equal(t, generate.HashText("This is a perfectly readable article body."), rec.ContentHash)

	assert.Equal(t, 1, f.locker.acquired)
	assert.Equal(t, 1, f.locker.released)
}

func TestGenerateTwiceCallsProviderOnce(t *testing.T) {
	t.Parallel()

	f := newFixture("Unchanged content that is long enough to speak.", false)
	ctx := context.Background()

	first, err := f.pipeline.Generate(ctx, item(7), false)
	require.NoError(t, err)
	require.False(t, first.Cached)

	second, err := f.pipeline.Generate(ctx, item(7), false)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.AudioPath, second.AudioPath)
	assert.Equal(t, 1, f.openai.calls, "cache hit must not reach the provider")
}

func TestGenerateForceRegenerates(t *testing.T) {
	t.Parallel()

	f := newFixture("Forcing regeneration of this exact same text.", false)
	ctx := context.Background()

	first, err := f.pipeline.Generate(ctx, item(9), false)
	require.NoError(t, err)

	second, err := f.pipeline.Generate(ctx, item(9), true)
	require.NoError(t, err)

	assert.False(t, second.Cached)
	assert.Equal(t, 2, f.openai.calls)
	assert.NotEqual(t, first.AudioPath, second.AudioPath)
	assert.Contains(t, f.storage.deleted, first.AudioPath, "replaced blob should be removed")
}

func TestGenerateTruncatesLongText(t *testing.T) {
	t.Parallel()

	f := newFixture(strings.Repeat("a", 9000), false)

	_, err := f.pipeline.Generate(context.Background(), item(3), false)
	require.NoError(t, err)

	wantLen := content.MaxTextLength + utf8.RuneCountInString(content.TruncationMarker)
	assert.Equal(t, wantLen, utf8.RuneCountInString(f.openai.lastInput))
	assert.True(t, strings.HasSuffix(f.openai.lastInput, content.TruncationMarker))
}

func TestGenerateExtractionFailureMapsToNoReadableText(t *testing.T) {
	t.Parallel()

	f := newFixture("", false)
	f.extractor.err = errors.New("extract attachment text: bad pdf")

	_, err := f.pipeline.Generate(context.Background(), item(5), false)
	require.Error(t, err)
	assert.Equal(t, generate.KindNoReadableText, generate.KindOf(err))
	assert.Zero(t, f.openai.calls)
}

func TestGenerateNoReadableText(t *testing.T) {
	t.Parallel()

	f := newFixture("   hi   ", false)

	_, err := f.pipeline.Generate(context.Background(), item(5), false)
	require.Error(t, err)
	assert.Equal(t, generate.KindNoReadableText, generate.KindOf(err))
	assert.Zero(t, f.openai.calls)
}

func TestGenerateProviderError(t *testing.T) {
	t.Parallel()

	f := newFixture("Readable text that the provider will reject.", false)
	f.openai.err = errMockProvider

	_, err := f.pipeline.Generate(context.Background(), item(5), false)
	require.Error(t, err)
	assert.Equal(t, generate.KindProviderError, generate.KindOf(err))
	assert.Empty(t, f.storage.uploaded)
}

func TestGenerateStorageError(t *testing.T) {
	t.Parallel()

	f := newFixture("Readable text that storage will reject.", false)
	f.storage.uploadErr = errMockUpload

	_, err := f.pipeline.Generate(context.Background(), item(5), false)
	require.Error(t, err)
	assert.Equal(t, generate.KindStorageError, generate.KindOf(err))
}

func TestGenerateLockHeld(t *testing.T) {
	t.Parallel()

	f := newFixture("Readable text behind a held lock.", false)
	f.locker.denyAcquire = true

	_, err := f.pipeline.Generate(context.Background(), item(5), false)
	require.Error(t, err)
	assert.Equal(t, generate.KindRateLimited, generate.KindOf(err))
	assert.Zero(t, f.openai.calls)
}

func TestGenerateSummaryStored(t *testing.T) {
	t.Parallel()

	text := "Text worth summarizing before it is spoken aloud."
	f := newFixture(text, true)

	_, err := f.pipeline.Generate(context.Background(), item(11), false)
	require.NoError(t, err)

	rec, err := f.records.Get(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, "a short summary", rec.Summary)
	assert.Equal(t, generate.HashText(text), rec.SummaryHash)
}

func TestGenerateSummaryFailureNonFatal(t *testing.T) {
	t.Parallel()

	f := newFixture("Text whose summary call is going to fail.", true)
	f.summarizer.err = errMockSummary

	result, err := f.pipeline.Generate(context.Background(), item(11), false)
	require.NoError(t, err, "summary failure must not fail generation")
	assert.NotEmpty(t, result.AudioPath)
}

func TestGenerateProviderOverride(t *testing.T) {
	t.Parallel()

	f := newFixture("Routed to the other vendor by an item override.", false)

	it := item(13)
	it.ProviderOverride = "elevenlabs"
	it.VoiceOverride = "voice-abc"

	_, err := f.pipeline.Generate(context.Background(), it, false)
	require.NoError(t, err)
	assert.Equal(t, 1, f.elevenlabs.calls)
	assert.Zero(t, f.openai.calls)
}

func TestGenerateDefaultOverrideFallsThrough(t *testing.T) {
	t.Parallel()

	f := newFixture("The default literal resolves to the global provider.", false)

	it := item(14)
	it.ProviderOverride = models.OverrideDefault
	it.MethodOverride = models.OverrideDefault

	_, err := f.pipeline.Generate(context.Background(), it, false)
	require.NoError(t, err)
	assert.Equal(t, 1, f.openai.calls)
}

func TestGenerateUnknownProvider(t *testing.T) {
	t.Parallel()

	f := newFixture("Text routed to a vendor that does not exist.", false)

	it := item(15)
	it.ProviderOverride = "acme-tts"

	_, err := f.pipeline.Generate(context.Background(), it, false)
	require.Error(t, err)
	assert.Equal(t, generate.KindProviderError, generate.KindOf(err))
}

func TestCurrentHashMatchesGenerate(t *testing.T) {
	t.Parallel()

	f := newFixture("Stable text produces a stable fingerprint.", false)
	ctx := context.Background()

	hash, err := f.pipeline.CurrentHash(ctx, item(16))
	require.NoError(t, err)

	_, err = f.pipeline.Generate(ctx, item(16), false)
	require.NoError(t, err)

	rec, err := f.records.Get(ctx, 16)
	require.NoError(t, err)
	assert.Equal(t, hash, rec.ContentHash)
}

func TestHashTextDiffers(t *testing.T) {
	t.Parallel()

	a := generate.HashText("one text")
	b := generate.HashText("another text")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, generate.HashText("one text"))
}

func TestPurgeContinuesPastFailures(t *testing.T) {
	t.Parallel()

	store := &purgeStorage{
		paths:   []string{"tts/1.mp3", "tts/2.mp3", "tts/3.mp3"},
		failing: map[string]bool{"tts/2.mp3": true},
	}
	records := &purgeRecords{count: 5}

	p := generate.NewPurger(store, records, nil, "audio", "tts/")
	result, err := p.Purge(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.DeletedAudio)
	assert.Equal(t, 5, result.DeletedRecords)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "tts/2.mp3")
}

type purgeStorage struct {
	fakeStorage
	paths   []string
	failing map[string]bool
}

func (p *purgeStorage) List(_ context.Context, _, _ string) ([]string, error) {
	return p.paths, nil
}

func (p *purgeStorage) Delete(_ context.Context, _, path string) error {
	if p.failing[path] {
		return fmt.Errorf("simulated delete failure")
	}
	return nil
}

type purgeRecords struct {
	count int
}

func (p *purgeRecords) DeleteAll(_ context.Context) (int, error) {
	return p.count, nil
}
