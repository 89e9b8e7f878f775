// Package transcribe turns one audio file into timed text segments.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownMode is returned by New for an unsupported stt.mode.
	ErrUnknownMode = errors.New("unknown stt mode")
	// ErrMissingCredential is returned when a backend's token is not configured.
	ErrMissingCredential = errors.New("missing stt credential")
)

const (
	ModeLocal = "local"
	ModeCloud = "cloud"
)

// Segment is one utterance relative to the start of the transcribed file.
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
}

// Result is the backend output for one file.
type Result struct {
	Segments []Segment `json:"segments"`
	Language string    `json:"language,omitempty"`
}

// Transcriber is one speech-to-text backend.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, audioPath string) (Result, error)
}

// Config selects and configures a backend.
type Config struct {
	Mode     string
	WhisperX WhisperXConfig
	Deepgram DeepgramConfig
}

// New builds the backend named by cfg.Mode.
func New(cfg Config) (Transcriber, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case "", ModeLocal:
		return NewWhisperX(cfg.WhisperX)
	case ModeCloud:
		return NewDeepgram(cfg.Deepgram)
	default:
		return nil, fmt.Errorf("%w: %q (expected %q or %q)", ErrUnknownMode, cfg.Mode, ModeLocal, ModeCloud)
	}
}
