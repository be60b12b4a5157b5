package models

import (
	"time"
)

// ContentItem is a publishable unit of text owned by the host CMS.
// The audio pipeline only ever reads it.
type ContentItem struct {
	ID               int64     `json:"id" db:"id"`
	Title            string    `json:"title" db:"title"`
	Body             string    `json:"body,omitempty" db:"body"`
	AttachmentPath   string    `json:"attachment_path,omitempty" db:"attachment_path"`
	Status           string    `json:"status" db:"status"`
	ProviderOverride string    `json:"provider_override,omitempty" db:"provider_override"`
	MethodOverride   string    `json:"method_override,omitempty" db:"method_override"`
	VoiceOverride    string    `json:"voice_override,omitempty" db:"voice_override"`
	CategoryIDs      []int64   `json:"category_ids,omitempty" db:"-"`
	PublishedAt      time.Time `json:"published_at" db:"published_at"`
}

const (
	ItemStatusDraft     = "draft"
	ItemStatusPublished = "published"
)

const (
	ProviderOpenAI     = "openai"
	ProviderElevenLabs = "elevenlabs"

	// OverrideDefault on an item means "use the global setting".
	OverrideDefault = "default"

	MethodSingle  = "single"
	MethodChunked = "chunked"
)
