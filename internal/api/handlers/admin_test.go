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
	"github.com/audiopress/audiopress/internal/generate"
	"github.com/audiopress/audiopress/internal/scheduler"
)

type stubBulk struct {
	force   bool
	started bool
	paused  bool
	resumed bool
	stopped bool
	queued  int
	stats   *scheduler.Stats
}

func (s *stubBulk) StartBulk(_ context.Context, force bool) (int, error) {
	s.started = true
	s.force = force
	return s.queued, nil
}

func (s *stubBulk) PauseBulk(_ context.Context) error  { s.paused = true; return nil }
func (s *stubBulk) ResumeBulk(_ context.Context) error { s.resumed = true; return nil }
func (s *stubBulk) StopBulk(_ context.Context) error   { s.stopped = true; return nil }

func (s *stubBulk) Stats(_ context.Context) (*scheduler.Stats, error) {
	return s.stats, nil
}

type stubPurger struct {
	result *generate.PurgeResult
	calls  int
}

func (s *stubPurger) Purge(_ context.Context) (*generate.PurgeResult, error) {
	s.calls++
	return s.result, nil
}

func TestBulkStartReportsQueued(t *testing.T) {
	t.Parallel()

	bulk := &stubBulk{queued: 17}
	h := handlers.NewAdminHandler(bulk, &stubPurger{})

	body := bytes.NewReader([]byte(`{"force_regenerate": true}`))
	req := httptest.NewRequest(http.MethodPost, "/admin/bulk/start", body)
	rec := httptest.NewRecorder()
	h.BulkStart(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bulk.started)
	assert.True(t, bulk.force)

	var resp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 17, resp["total_queued"])
}

func TestBulkStartEmptyBodyMeansNoForce(t *testing.T) {
	t.Parallel()

	bulk := &stubBulk{}
	h := handlers.NewAdminHandler(bulk, &stubPurger{})

	req := httptest.NewRequest(http.MethodPost, "/admin/bulk/start", bytes.NewReader(nil))
	rec := httptest.NewRecorder()
	h.BulkStart(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, bulk.force)
}

func TestBulkLifecycleEndpoints(t *testing.T) {
	t.Parallel()

	bulk := &stubBulk{}
	h := handlers.NewAdminHandler(bulk, &stubPurger{})

	for _, tc := range []struct {
		name    string
		handler http.HandlerFunc
		check   func() bool
	}{
		{"pause", h.BulkPause, func() bool { return bulk.paused }},
		{"resume", h.BulkResume, func() bool { return bulk.resumed }},
		{"stop", h.BulkStop, func() bool { return bulk.stopped }},
	} {
		req := httptest.NewRequest(http.MethodPost, "/admin/bulk/"+tc.name, nil)
		rec := httptest.NewRecorder()
		tc.handler(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code, tc.name)
		assert.True(t, tc.check(), tc.name)
	}
}

func TestStatsEndpoint(t *testing.T) {
	t.Parallel()

	bulk := &stubBulk{stats: &scheduler.Stats{
		TotalItems:     100,
		ItemsWithAudio: 40,
		Pending:        3,
		CompletionRate: 0.4,
		CurrentStatus:  scheduler.StateProcessing,
	}}
	h := handlers.NewAdminHandler(bulk, &stubPurger{})

	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	rec := httptest.NewRecorder()
	h.Stats(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var stats scheduler.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 100, stats.TotalItems)
	assert.Equal(t, scheduler.StateProcessing, stats.CurrentStatus)
}

func TestPurgeEndpointReportsPartialFailures(t *testing.T) {
	t.Parallel()

	purger := &stubPurger{result: &generate.PurgeResult{
		DeletedAudio:   11,
		DeletedRecords: 12,
		Errors:         []string{"delete tts/3.mp3: gone"},
	}}
	h := handlers.NewAdminHandler(&stubBulk{}, purger)

	req := httptest.NewRequest(http.MethodPost, "/admin/purge", nil)
	rec := httptest.NewRecorder()
	h.Purge(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, purger.calls)

	var result generate.PurgeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 11, result.DeletedAudio)
	assert.Equal(t, 12, result.DeletedRecords)
	require.Len(t, result.Errors, 1)
}
