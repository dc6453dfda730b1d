package stt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joebot/voxbrief/internal/audio"
	"github.com/joebot/voxbrief/internal/fault"
	"github.com/joebot/voxbrief/internal/metrics"
	"github.com/joebot/voxbrief/internal/retry"
	"github.com/joebot/voxbrief/internal/transcript"
)

// DefaultTimeout bounds a single transcription attempt.
const DefaultTimeout = 60 * time.Second

// Options configure a Client.
type Options struct {
	Timeout   time.Duration
	Policy    retry.Policy
	Annotator *transcript.Annotator
	Language  string
	Prompt    string
	Metrics   *metrics.Metrics
}

// Client runs transcriptions with a per-attempt timeout and one retry on
// transient failures, then annotates speaker turns.
type Client struct {
	backend   Backend
	timeout   time.Duration
	policy    retry.Policy
	annotator *transcript.Annotator
	language  string
	prompt    string
	metrics   *metrics.Metrics
}

// NewClient creates a transcription client over backend.
func NewClient(backend Backend, opts Options) *Client {
	c := &Client{
		backend:   backend,
		timeout:   opts.Timeout,
		policy:    opts.Policy,
		annotator: opts.Annotator,
		language:  opts.Language,
		prompt:    opts.Prompt,
		metrics:   opts.Metrics,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.policy.MaxAttempts <= 0 {
		c.policy = retry.Once(time.Second)
	}
	if c.annotator == nil {
		c.annotator = transcript.NewAnnotator(0)
	}
	if c.metrics == nil {
		c.metrics = metrics.DefaultMetrics
	}
	onRetry := c.policy.OnRetry
	c.policy.OnRetry = func(attempt int, err error) {
		c.metrics.STTRetries.WithLabelValues(backend.Name()).Inc()
		if onRetry != nil {
			onRetry(attempt, err)
		}
	}
	return c
}

// Backend returns the name of the wrapped backend.
func (c *Client) Backend() string { return c.backend.Name() }

// Transcribe converts the payload into an annotated transcript. lang
// overrides the configured language hint when non-empty.
func (c *Client) Transcribe(ctx context.Context, p *audio.Payload, lang string) (*transcript.Transcript, error) {
	if p == nil || len(p.Data) == 0 {
		return nil, fault.New(fault.Validation, fault.ReasonMissingContent, "stt", errors.New("empty payload"))
	}
	if lang == "" {
		lang = c.language
	}
	req := Request{
		Audio:    p.Data,
		MIME:     p.MIME,
		Format:   p.Format,
		Filename: p.Filename,
		Language: lang,
		Prompt:   c.prompt,
	}

	name := c.backend.Name()
	var res *Result
	attempts, err := c.policy.Do(ctx, "stt."+name, func(ctx context.Context) error {
		actx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		start := time.Now()
		r, err := c.backend.Transcribe(actx, req)
		if err != nil {
			err = normalize(actx, err)
			c.metrics.RecordSTT(name, time.Since(start).Seconds(), fault.KindOf(err).String())
			return err
		}
		c.metrics.RecordSTT(name, time.Since(start).Seconds(), "")
		res = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("transcribe (%d attempt(s)): %w", attempts, err)
	}

	if res == nil || (strings.TrimSpace(res.Text) == "" && len(res.Segments) == 0) {
		return nil, fault.Permanentf(fault.ReasonInvalidAudio, "stt."+name, "no speech recognized")
	}

	segs := res.Segments
	if len(segs) == 0 {
		segs = []transcript.Segment{{Text: res.Text, SpeakerHint: transcript.NoHint}}
	}
	t := c.annotator.Annotate(segs)
	if t.Text == "" {
		return nil, fault.Permanentf(fault.ReasonInvalidAudio, "stt."+name, "no speech recognized")
	}
	t.Language = res.Language
	if t.Language == "" {
		t.Language = lang
	}
	if res.Duration > t.Duration {
		t.Duration = res.Duration
	}
	if t.Duration == 0 && p.Duration > 0 {
		t.Duration = time.Duration(p.Duration * float64(time.Second))
	}

	c.metrics.Transcripts.Inc()
	slog.Info("transcribed", "backend", name, "attempts", attempts, "chars", len(t.Text),
		"segments", len(t.Segments), "speakers", len(t.Speakers()))
	return t, nil
}

// normalize makes sure an attempt-level timeout is reported as transient.
func normalize(actx context.Context, err error) error {
	var fe *fault.Error
	if errors.As(err, &fe) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(actx.Err(), context.DeadlineExceeded) {
		return fault.New(fault.Transient, fault.ReasonTimeout, "stt", err)
	}
	return err
}
