package content

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/audiopress/audiopress/internal/models"
	"github.com/audiopress/audiopress/pkg/textextract"
)

const (
	// MinTextLength is the shortest trimmed text worth sending to a provider.
	MinTextLength = 10
	// MaxTextLength caps provider cost and latency; longer text is truncated.
	MaxTextLength = 8000
	// TruncationMarker is appended when text was cut at MaxTextLength.
	TruncationMarker = "…"
)

// Downloader fetches stored objects, used for PDF attachments.
type Downloader interface {
	Download(ctx context.Context, bucket, path string) (io.ReadCloser, error)
}

// Extractor produces clean plain text for a content item.
type Extractor struct {
	storage Downloader
	bucket  string
}

func NewExtractor(storage Downloader, bucket string) *Extractor {
	return &Extractor{storage: storage, bucket: bucket}
}

// Extract returns the speakable text for an item: the HTML body stripped to
// plain text, or the text of a PDF attachment when the body is empty. The
// result is trimmed but not length-checked; callers apply MinTextLength and
// Truncate.
func (e *Extractor) Extract(ctx context.Context, item *models.ContentItem) (string, error) {
	if strings.TrimSpace(item.Body) != "" {
		return CleanHTML(item.Body)
	}

	if item.AttachmentPath == "" || e.storage == nil {
		return "", nil
	}

	rc, err := e.storage.Download(ctx, e.bucket, item.AttachmentPath)
	if err != nil {
		return "", fmt.Errorf("download attachment %s: %w", item.AttachmentPath, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read attachment: %w", err)
	}

	text, err := textextract.ExtractPDF(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("extract attachment text: %w", err)
	}
	return strings.TrimSpace(text), nil
}

var whitespaceRE = regexp.MustCompile(`\s+`)

// CleanHTML strips markup, scripts and styles, collapsing whitespace.
func CleanHTML(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript").Remove()

	text := doc.Text()
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(text, " ")), nil
}

// Truncate cuts text to MaxTextLength runes, appending TruncationMarker
// when anything was dropped.
func Truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= MaxTextLength {
		return text
	}
	return string(runes[:MaxTextLength]) + TruncationMarker
}

// AnyDisabled reports whether any of the ids (an item's categories plus
// their ancestors) is in the disabled set.
func AnyDisabled(categoryIDs []int64, disabled map[int64]bool) bool {
	for _, id := range categoryIDs {
		if disabled[id] {
			return true
		}
	}
	return false
}
