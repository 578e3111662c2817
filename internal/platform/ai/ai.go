// Package ai wraps the speech-to-text and text-generation providers used to
// turn session audio into clinical reports.
package ai

import (
	"context"
	"errors"
	"io"
)

// Generation parameters shared by every report request.
const (
	MaxTokens   = 3000
	Temperature = 0.7
)

// Models are the chat models a practitioner may pick for report writing.
var Models = []string{
	"gpt-4o",
	"gpt-4o-mini",
	"gpt-4-turbo",
	"gpt-3.5-turbo",
}

const DefaultModel = "gpt-4o-mini"

var (
	ErrInvalidModel = errors.New("ai: unsupported model")
	ErrEmptyAudio   = errors.New("ai: empty audio")
	ErrNoContent    = errors.New("ai: provider returned no content")
)

// ValidModel reports whether m is one of Models.
func ValidModel(m string) bool {
	for _, known := range Models {
		if known == m {
			return true
		}
	}
	return false
}

// ResolveModel maps an empty choice to DefaultModel and rejects unknown ones.
func ResolveModel(m string) (string, error) {
	if m == "" {
		return DefaultModel, nil
	}
	if !ValidModel(m) {
		return "", ErrInvalidModel
	}
	return m, nil
}

type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type Transcript struct {
	Text     string    `json:"text"`
	Language string    `json:"language,omitempty"`
	Duration float64   `json:"duration,omitempty"`
	Segments []Segment `json:"segments"`
}

type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (*Transcript, error)
}

type CompletionRequest struct {
	Model  string
	System string
	Prompt string
}

type Writer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
