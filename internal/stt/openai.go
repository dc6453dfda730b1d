package stt

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/joebot/voxbrief/internal/fault"
	"github.com/joebot/voxbrief/internal/llm"
	"github.com/joebot/voxbrief/internal/transcript"
)

// WhisperBackend transcribes through the OpenAI audio API.
type WhisperBackend struct {
	client *openai.Client
	model  string
}

// NewWhisperBackend creates a Whisper backend. An empty baseURL uses the
// public OpenAI endpoint.
func NewWhisperBackend(apiKey, baseURL, model string) *WhisperBackend {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{}
	if model == "" {
		model = openai.Whisper1
	}
	return &WhisperBackend{client: openai.NewClientWithConfig(cfg), model: model}
}

func (w *WhisperBackend) Name() string { return "openai" }

// Transcribe uploads the audio and requests verbose JSON so segment timings
// are available to the speaker heuristic.
func (w *WhisperBackend) Transcribe(ctx context.Context, req Request) (*Result, error) {
	name := req.Filename
	if name == "" {
		name = "audio." + string(req.Format)
	}
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: name,
		Reader:   bytes.NewReader(req.Audio),
		Prompt:   req.Prompt,
		Language: req.Language,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, classifyWhisper(err, "stt.openai")
	}

	res := &Result{
		Text:     strings.TrimSpace(resp.Text),
		Language: resp.Language,
		Duration: seconds(resp.Duration),
	}
	for _, s := range resp.Segments {
		res.Segments = append(res.Segments, transcript.Segment{
			Text:        s.Text,
			Start:       seconds(s.Start),
			End:         seconds(s.End),
			HasTiming:   true,
			SpeakerHint: transcript.NoHint,
		})
	}
	return res, nil
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

// classifyWhisper adds the audio rule to the shared OpenAI mapping: a 400
// about the audio itself is not worth retrying.
func classifyWhisper(err error, op string) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(apiErr.Message), "audio") {
		return fault.New(fault.Permanent, fault.ReasonInvalidAudio, op, err)
	}
	return llm.ClassifyOpenAIError(err, op)
}
