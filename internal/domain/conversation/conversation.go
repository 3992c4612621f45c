// Package conversation holds the chat and multimedia domain types the
// console uses to exercise a company's bot end to end.
package conversation

import "errors"

// Common errors
var (
	ErrEmptyMessage = errors.New("message text is empty")
	ErrEmptyMedia   = errors.New("media payload is empty")
	ErrBadFormat    = errors.New("unsupported media format")
)

// AudioFormat represents the encodings the voice pipeline accepts
type AudioFormat string

// Supported audio formats
const (
	AudioWAV AudioFormat = "wav"
	AudioMP3 AudioFormat = "mp3"
	AudioOGG AudioFormat = "ogg"
	AudioM4A AudioFormat = "m4a"
)

// IsValid checks if the format is one the voice pipeline accepts.
func (f AudioFormat) IsValid() bool {
	switch f {
	case AudioWAV, AudioMP3, AudioOGG, AudioM4A:
		return true
	default:
		return false
	}
}

// Message is one operator-sent chat turn.
type Message struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id,omitempty"`
}

// Validate checks the message carries text.
func (m Message) Validate() error {
	if m.Text == "" {
		return ErrEmptyMessage
	}
	return nil
}

// Source points at a knowledge-base document a reply drew from.
type Source struct {
	DocumentID string  `json:"document_id"`
	Name       string  `json:"name"`
	Score      float64 `json:"score"`
}

// Reply is the bot's answer to a chat turn.
type Reply struct {
	Text      string   `json:"text" validate:"required"`
	SessionID string   `json:"session_id"`
	Sources   []Source `json:"sources,omitempty"`
	LatencyMS int64    `json:"latency_ms"`
}

// VoiceInput is a base64-encoded audio clip for the voice pipeline.
type VoiceInput struct {
	Audio  string      `json:"audio"`
	Format AudioFormat `json:"format"`
}

// Validate checks the clip and its declared format.
func (v VoiceInput) Validate() error {
	if v.Audio == "" {
		return ErrEmptyMedia
	}
	if !v.Format.IsValid() {
		return ErrBadFormat
	}
	return nil
}

// VoiceResult carries the transcription and the bot's reply to it.
type VoiceResult struct {
	Transcript string `json:"transcript" validate:"required"`
	Reply      string `json:"reply"`
}

// ImageInput is a base64-encoded image for the vision pipeline.
type ImageInput struct {
	Image  string `json:"image"`
	MIME   string `json:"mime"`
	Prompt string `json:"prompt,omitempty"`
}

// Validate checks the image payload is present.
func (i ImageInput) Validate() error {
	if i.Image == "" {
		return ErrEmptyMedia
	}
	return nil
}

// ImageResult is the vision pipeline's description of an image.
type ImageResult struct {
	Description string `json:"description" validate:"required"`
}
