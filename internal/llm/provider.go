package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/joebot/voxbrief/internal/fault"
	"github.com/joebot/voxbrief/internal/metrics"
)

// Request holds parameters for a single-turn completion.
type Request struct {
	Prompt      string
	System      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Provider is a remote text completion capability. Failures are returned as
// *fault.Error so callers can decide whether to retry.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// Fallback tries Primary first and Secondary when the primary fails with
// anything other than a validation error.
type Fallback struct {
	Primary   Provider
	Secondary Provider
}

func (f *Fallback) Name() string {
	if f.Secondary == nil {
		return f.Primary.Name()
	}
	return f.Primary.Name() + "+" + f.Secondary.Name()
}

func (f *Fallback) Complete(ctx context.Context, req Request) (string, error) {
	out, err := f.Primary.Complete(ctx, req)
	if err == nil || f.Secondary == nil {
		return out, err
	}
	if fault.KindOf(err) == fault.Validation || errors.Is(err, context.Canceled) {
		return "", err
	}
	slog.Warn("primary provider failed, using fallback",
		"primary", f.Primary.Name(), "fallback", f.Secondary.Name(), "err", err)
	// The fallback serves its own default model.
	req.Model = ""
	out, ferr := f.Secondary.Complete(ctx, req)
	if ferr != nil {
		return "", ferr
	}
	return out, nil
}

type instrumented struct {
	Provider
	m *metrics.Metrics
}

// Instrument records latency and failures of p.
func Instrument(p Provider, m *metrics.Metrics) Provider {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &instrumented{Provider: p, m: m}
}

func (i *instrumented) Complete(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	out, err := i.Provider.Complete(ctx, req)
	kind := ""
	if err != nil {
		kind = fault.KindOf(err).String()
	}
	i.m.RecordLLM(i.Provider.Name(), time.Since(start).Seconds(), kind)
	return out, err
}
