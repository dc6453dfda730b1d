// Package stt turns validated audio into an annotated transcript through a
// remote speech-to-text backend.
package stt

import (
	"context"
	"time"

	"github.com/joebot/voxbrief/internal/audio"
	"github.com/joebot/voxbrief/internal/transcript"
)

// Request is one transcription call.
type Request struct {
	Audio    []byte
	MIME     string
	Format   audio.Format
	Filename string
	Language string // "" lets the backend detect it
	Prompt   string
}

// Result is the raw backend output. Segments may be empty, in which case
// Text is the whole transcript.
type Result struct {
	Text     string
	Language string
	Duration time.Duration
	Segments []transcript.Segment
}

// Backend is a remote transcription capability. Implementations classify
// their failures with the fault package.
type Backend interface {
	Name() string
	Transcribe(ctx context.Context, req Request) (*Result, error)
}
