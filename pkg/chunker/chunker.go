// Package chunker splits long text into provider-sized pieces along
// sentence boundaries, so chunked synthesis never cuts a word in half.
package chunker

import (
	"strings"
	"unicode/utf8"
)

// Split packs sentences into chunks of at most maxLen runes. A single
// sentence longer than maxLen is hard-split. Empty and whitespace-only
// chunks are dropped.
func Split(text string, maxLen int) []string {
	if maxLen <= 0 {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, sentence := range sentences(text) {
		n := utf8.RuneCountInString(sentence)
		if n > maxLen {
			flush()
			chunks = append(chunks, hardSplit(sentence, maxLen)...)
			continue
		}
		if current.Len() > 0 && utf8.RuneCountInString(current.String())+n > maxLen {
			flush()
		}
		current.WriteString(sentence)
	}
	flush()

	return chunks
}

// sentences cuts text after sentence-ending punctuation followed by a space.
func sentences(text string) []string {
	var out []string
	var current strings.Builder

	for i, r := range text {
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && i+1 < len(text) && text[i+1] == ' ' {
			out = append(out, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		out = append(out, current.String())
	}
	return out
}

func hardSplit(text string, maxLen int) []string {
	var out []string
	runes := []rune(text)
	for start := 0; start < len(runes); start += maxLen {
		end := start + maxLen
		if end > len(runes) {
			end = len(runes)
		}
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			out = append(out, s)
		}
	}
	return out
}
