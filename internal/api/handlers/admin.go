package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/audiopress/audiopress/internal/generate"
	"github.com/audiopress/audiopress/internal/scheduler"
)

// BulkController is the scheduler surface the admin endpoints drive.
type BulkController interface {
	StartBulk(ctx context.Context, force bool) (int, error)
	PauseBulk(ctx context.Context) error
	ResumeBulk(ctx context.Context) error
	StopBulk(ctx context.Context) error
	Stats(ctx context.Context) (*scheduler.Stats, error)
}

// AudioPurger deletes all generated audio and records.
type AudioPurger interface {
	Purge(ctx context.Context) (*generate.PurgeResult, error)
}

type AdminHandler struct {
	bulk   BulkController
	purger AudioPurger
}

func NewAdminHandler(bulk BulkController, purger AudioPurger) *AdminHandler {
	return &AdminHandler{bulk: bulk, purger: purger}
}

type bulkStartRequest struct {
	ForceRegenerate bool `json:"force_regenerate"`
}

func (h *AdminHandler) BulkStart(w http.ResponseWriter, r *http.Request) {
	var req bulkStartRequest
	if r.Body != nil {
		// Empty body means force off.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	queued, err := h.bulk.StartBulk(r.Context(), req.ForceRegenerate)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"total_queued": queued})
}

func (h *AdminHandler) BulkPause(w http.ResponseWriter, r *http.Request) {
	if err := h.bulk.PauseBulk(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (h *AdminHandler) BulkResume(w http.ResponseWriter, r *http.Request) {
	if err := h.bulk.ResumeBulk(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func (h *AdminHandler) BulkStop(w http.ResponseWriter, r *http.Request) {
	if err := h.bulk.StopBulk(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.bulk.Stats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *AdminHandler) Purge(w http.ResponseWriter, r *http.Request) {
	result, err := h.purger.Purge(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}
