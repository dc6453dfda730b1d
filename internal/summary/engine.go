// Package summary turns a transcript into the menu outputs: an AI summary, an
// AI task list, local statistics and the formatted full text.
package summary

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joebot/voxbrief/internal/fault"
	"github.com/joebot/voxbrief/internal/llm"
	"github.com/joebot/voxbrief/internal/retry"
	"github.com/joebot/voxbrief/internal/transcript"
)

// DefaultTimeout bounds a single completion attempt.
const DefaultTimeout = 60 * time.Second

// Options configure an Engine.
type Options struct {
	Model         string
	Temperature   float64
	MaxTokens     int
	MaxTextLength int
	Timeout       time.Duration
	Policy        retry.Policy
}

// Engine produces the output of each mode.
type Engine struct {
	provider llm.Provider
	opts     Options
}

// NewEngine creates an engine. provider may be nil when only local modes are
// used; remote modes then fail with an internal error.
func NewEngine(provider llm.Provider, opts Options) *Engine {
	if opts.MaxTextLength <= 0 {
		opts.MaxTextLength = DefaultMaxTextLength
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2000
	}
	if opts.Policy.MaxAttempts <= 0 {
		opts.Policy = retry.Once(time.Second)
	}
	return &Engine{provider: provider, opts: opts}
}

// MaxTextLength returns the text ceiling.
func (e *Engine) MaxTextLength() int { return e.opts.MaxTextLength }

// Process runs mode on t and returns the text to send.
func (e *Engine) Process(ctx context.Context, t *transcript.Transcript, mode Mode) (string, error) {
	if t == nil || strings.TrimSpace(t.Text) == "" {
		return "", fault.New(fault.Validation, fault.ReasonMissingContent, "summary", fmt.Errorf("empty transcript"))
	}
	switch mode {
	case ModeStats:
		return ComputeStats(t, e.opts.MaxTextLength).Render(), nil
	case ModeFullText:
		return FullText(t), nil
	case ModeSummary:
		return e.summarize(ctx, t)
	case ModeTasks:
		return e.tasks(ctx, t)
	}
	return "", fault.New(fault.Validation, fault.ReasonInvalidRequest, "summary", fmt.Errorf("unknown mode %q", mode))
}

func (e *Engine) summarize(ctx context.Context, t *transcript.Transcript) (string, error) {
	body, cut := Truncate(groupedBody(t), e.opts.MaxTextLength)
	prompt, err := render(summaryTmpl, promptData{Body: body, Speakers: t.Speakers()})
	if err != nil {
		return "", fault.New(fault.Internal, "", "summary.prompt", err)
	}
	reply, err := e.complete(ctx, "summary", summarySystem, prompt)
	if err != nil {
		return "", err
	}
	out := "📋 **Summary**\n\n" + reply
	if cut {
		out += fmt.Sprintf("\n\n_Only the first %d characters of the transcript were summarised._", e.opts.MaxTextLength)
	}
	return out, nil
}

func (e *Engine) tasks(ctx context.Context, t *transcript.Transcript) (string, error) {
	body, _ := Truncate(t.Render(), e.opts.MaxTextLength)
	prompt, err := render(tasksTmpl, promptData{Body: body, Speakers: t.Speakers()})
	if err != nil {
		return "", fault.New(fault.Internal, "", "summary.prompt", err)
	}
	reply, err := e.complete(ctx, "tasks", tasksSystem, prompt)
	if err != nil {
		return "", err
	}
	tasks := ParseTasks(reply)
	slog.Debug("tasks parsed", "count", len(tasks))
	return RenderTasks(tasks), nil
}

// complete calls the provider under the retry policy with a per-attempt
// timeout. A blank reply is an invalid response.
func (e *Engine) complete(ctx context.Context, op, system, prompt string) (string, error) {
	if e.provider == nil {
		return "", fault.New(fault.Internal, "", "summary."+op, fmt.Errorf("no completion provider configured"))
	}
	req := llm.Request{
		Prompt:      prompt,
		System:      system,
		Model:       e.opts.Model,
		MaxTokens:   e.opts.MaxTokens,
		Temperature: e.opts.Temperature,
	}
	var reply string
	_, err := e.opts.Policy.Do(ctx, "summary."+op, func(ctx context.Context) error {
		actx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
		out, err := e.provider.Complete(actx, req)
		if err != nil {
			if fault.KindOf(err) == fault.Internal && actx.Err() == context.DeadlineExceeded {
				return fault.New(fault.Transient, fault.ReasonTimeout, "summary."+op, err)
			}
			return err
		}
		if strings.TrimSpace(out) == "" {
			return fault.Permanentf(fault.ReasonInvalidResponse, "summary."+op, "empty completion")
		}
		reply = strings.TrimSpace(out)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return reply, nil
}
