package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiopress/audiopress/internal/api/handlers"
	"github.com/audiopress/audiopress/internal/content"
	"github.com/audiopress/audiopress/internal/generate"
	"github.com/audiopress/audiopress/internal/models"
)

type stubGenerator struct {
	result *generate.Result
	err    error
	force  bool
	calls  int
}

func (s *stubGenerator) Generate(_ context.Context, _ *models.ContentItem, force bool) (*generate.Result, error) {
	s.calls++
	s.force = force
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubContent struct {
	items map[int64]*models.ContentItem
}

func (s *stubContent) GetByID(_ context.Context, id int64) (*models.ContentItem, error) {
	item, ok := s.items[id]
	if !ok {
		return nil, content.ErrNotFound
	}
	return item, nil
}

type stubPublisher struct {
	itemIDs []int64
	err     error
}

func (s *stubPublisher) OnContentPublished(_ context.Context, itemID int64) error {
	if s.err != nil {
		return s.err
	}
	s.itemIDs = append(s.itemIDs, itemID)
	return nil
}

func postJSON(t *testing.T, handler http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func publishedItem(id int64) *models.ContentItem {
	return &models.ContentItem{ID: id, Status: models.ItemStatusPublished}
}

func TestGenerateEndpointSuccess(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{result: &generate.Result{
		AudioPath: "tts/42-abc.mp3",
		AudioURL:  "https://cdn.example.com/tts/42-abc.mp3",
	}}
	h := handlers.NewAudioHandler(gen, &stubContent{items: map[int64]*models.ContentItem{
		42: publishedItem(42),
	}}, nil)

	rec := postJSON(t, h.Generate, map[string]any{"item_id": 42, "force": true})

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "https://cdn.example.com/tts/42-abc.mp3", body["audio_url"])
	assert.True(t, gen.force, "force flag must pass through")
}

func TestGenerateEndpointCachedResult(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{result: &generate.Result{
		AudioURL: "https://cdn.example.com/tts/42.mp3",
		Cached:   true,
	}}
	h := handlers.NewAudioHandler(gen, &stubContent{items: map[int64]*models.ContentItem{
		42: publishedItem(42),
	}}, nil)

	rec := postJSON(t, h.Generate, map[string]any{"item_id": 42})

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["cached"])
}

func TestGenerateEndpointMissingItem(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{}
	h := handlers.NewAudioHandler(gen, &stubContent{items: map[int64]*models.ContentItem{}}, nil)

	rec := postJSON(t, h.Generate, map[string]any{"item_id": 42})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "not_found", body["error_kind"])
	assert.Zero(t, gen.calls)
}

func TestGenerateEndpointUnpublishedItem(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{}
	h := handlers.NewAudioHandler(gen, &stubContent{items: map[int64]*models.ContentItem{
		42: {ID: 42, Status: models.ItemStatusDraft},
	}}, nil)

	rec := postJSON(t, h.Generate, map[string]any{"item_id": 42})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, gen.calls, "draft items never reach the pipeline")
}

func TestGenerateEndpointInvalidBody(t *testing.T) {
	t.Parallel()

	h := handlers.NewAudioHandler(&stubGenerator{}, &stubContent{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	h.Generate(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateEndpointErrorKinds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		kind       generate.Kind
		wantStatus int
	}{
		{generate.KindNoReadableText, http.StatusUnprocessableEntity},
		{generate.KindRateLimited, http.StatusConflict},
		{generate.KindPermissionDenied, http.StatusForbidden},
		{generate.KindProviderError, http.StatusBadGateway},
		{generate.KindStorageError, http.StatusBadGateway},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(string(tc.kind), func(t *testing.T) {
			t.Parallel()

			gen := &stubGenerator{err: &generate.Error{Kind: tc.kind, Message: "boom"}}
			h := handlers.NewAudioHandler(gen, &stubContent{items: map[int64]*models.ContentItem{
				42: publishedItem(42),
			}}, nil)

			rec := postJSON(t, h.Generate, map[string]any{"item_id": 42})

			assert.Equal(t, tc.wantStatus, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, string(tc.kind), body["error_kind"])
			assert.Equal(t, false, body["success"])
		})
	}
}

func TestPublishedEndpointAccepted(t *testing.T) {
	t.Parallel()

	pub := &stubPublisher{}
	h := handlers.NewAudioHandler(nil, nil, pub)

	rec := postJSON(t, h.Published, map[string]any{"item_id": 42})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []int64{42}, pub.itemIDs)
}

func TestPublishedEndpointRequiresItemID(t *testing.T) {
	t.Parallel()

	pub := &stubPublisher{}
	h := handlers.NewAudioHandler(nil, nil, pub)

	rec := postJSON(t, h.Published, map[string]any{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, pub.itemIDs)
}
