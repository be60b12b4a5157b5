package tts

import (
	"context"
	"fmt"

	"github.com/audiopress/audiopress/pkg/chunker"
)

// MaxChunkLen is the largest input either vendor accepts per request.
const MaxChunkLen = 4096

// SynthesizeChunked splits the input along sentence boundaries, synthesizes
// each piece, and concatenates the audio. Both backends emit
// frame-synchronous MP3, so byte concatenation yields a playable file.
func SynthesizeChunked(ctx context.Context, p Provider, req SynthesisRequest) (*SynthesisResult, error) {
	chunks := chunker.Split(req.Input, MaxChunkLen)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no text to synthesize")
	}
	if len(chunks) == 1 {
		return p.Synthesize(ctx, req)
	}

	var audio []byte
	contentType := ""
	for i, chunk := range chunks {
		res, err := p.Synthesize(ctx, SynthesisRequest{Input: chunk, Voice: req.Voice})
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		audio = append(audio, res.Audio...)
		contentType = res.ContentType
	}

	return &SynthesisResult{Audio: audio, ContentType: contentType}, nil
}
