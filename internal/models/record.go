package models

import "time"

// AudioRecord is the per-item generation record: where the current audio
// lives, the hash of the text that produced it, and an optional summary
// cached under the same hash so edits invalidate both together.
type AudioRecord struct {
	ItemID      int64     `json:"item_id" db:"item_id"`
	AudioPath   string    `json:"audio_path,omitempty" db:"audio_path"`
	ContentHash string    `json:"content_hash" db:"content_hash"`
	Summary     string    `json:"summary,omitempty" db:"summary"`
	SummaryHash string    `json:"summary_hash,omitempty" db:"summary_hash"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// HasAudioFor reports whether the record holds audio generated from text
// with the given hash.
func (r *AudioRecord) HasAudioFor(hash string) bool {
	return r != nil && r.AudioPath != "" && r.ContentHash == hash
}

// SummaryFor returns the cached summary if it was produced from text with
// the given hash.
func (r *AudioRecord) SummaryFor(hash string) (string, bool) {
	if r == nil || r.Summary == "" || r.SummaryHash != hash {
		return "", false
	}
	return r.Summary, true
}
