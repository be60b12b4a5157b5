package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/audiopress/audiopress/internal/content"
	"github.com/audiopress/audiopress/internal/generate"
	"github.com/audiopress/audiopress/internal/models"
)

// Generator runs the generation pipeline for one item.
type Generator interface {
	Generate(ctx context.Context, item *models.ContentItem, force bool) (*generate.Result, error)
}

// ContentReader loads content items for validation.
type ContentReader interface {
	GetByID(ctx context.Context, id int64) (*models.ContentItem, error)
}

// Publisher receives publish events.
type Publisher interface {
	OnContentPublished(ctx context.Context, itemID int64) error
}

type AudioHandler struct {
	gen       Generator
	content   ContentReader
	publisher Publisher
}

func NewAudioHandler(gen Generator, contentReader ContentReader, publisher Publisher) *AudioHandler {
	return &AudioHandler{gen: gen, content: contentReader, publisher: publisher}
}

type generateRequest struct {
	ItemID int64 `json:"item_id"`
	Force  bool  `json:"force,omitempty"`
}

type generateResponse struct {
	Success   bool   `json:"success"`
	AudioURL  string `json:"audio_url,omitempty"`
	Cached    bool   `json:"cached,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Generate is the on-demand path: synchronous, cache-first, and subject
// to the same per-item in-flight lock as the background scheduler.
func (h *AudioHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, generateResponse{Success: false, Message: "invalid request body"})
		return
	}
	if req.ItemID <= 0 {
		writeJSON(w, http.StatusBadRequest, generateResponse{Success: false, Message: "item_id required"})
		return
	}

	item, err := h.content.GetByID(r.Context(), req.ItemID)
	if errors.Is(err, content.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, generateResponse{
			Success:   false,
			ErrorKind: string(generate.KindNotFound),
			Message:   "content item not found",
		})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, generateResponse{Success: false, Message: err.Error()})
		return
	}
	if item.Status != models.ItemStatusPublished {
		writeJSON(w, http.StatusNotFound, generateResponse{
			Success:   false,
			ErrorKind: string(generate.KindNotFound),
			Message:   "content item is not published",
		})
		return
	}

	result, err := h.gen.Generate(r.Context(), item, req.Force)
	if err != nil {
		kind := generate.KindOf(err)
		writeJSON(w, statusForKind(kind), generateResponse{
			Success:   false,
			ErrorKind: string(kind),
			Message:   err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, generateResponse{
		Success:  true,
		AudioURL: result.AudioURL,
		Cached:   result.Cached,
	})
}

type publishedRequest struct {
	ItemID int64 `json:"item_id"`
}

// Published is the hook the host CMS calls when an item transitions into
// the published state.
func (h *AudioHandler) Published(w http.ResponseWriter, r *http.Request) {
	var req publishedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.ItemID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "item_id required"})
		return
	}

	if err := h.publisher.OnContentPublished(r.Context(), req.ItemID); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func statusForKind(kind generate.Kind) int {
	switch kind {
	case generate.KindNotFound:
		return http.StatusNotFound
	case generate.KindNoReadableText:
		return http.StatusUnprocessableEntity
	case generate.KindRateLimited:
		return http.StatusConflict
	case generate.KindPermissionDenied:
		return http.StatusForbidden
	case generate.KindProviderError, generate.KindStorageError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
