// Package events publishes domain events (transcript ready, action done) to
// an external broker so other services can follow the bot's activity.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/joebot/voxbrief/internal/metrics"
)

// Event types.
const (
	TypeTranscriptReady = "transcript.ready"
	TypeActionCompleted = "action.completed"
	TypeActionFailed    = "action.failed"
)

// Event is a domain event. Transcript text is never included.
type Event struct {
	Type       string         `json:"type"`
	Key        string         `json:"key"`
	SessionID  string         `json:"sessionId,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Mode       string         `json:"mode,omitempty"`
	At         time.Time      `json:"at"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Encode returns the JSON wire form.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Sink receives domain events.
type Sink interface {
	Name() string
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// LogSink only logs events. Used when no broker is configured.
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) Publish(_ context.Context, ev Event) error {
	slog.Debug("domain event", "type", ev.Type, "key", ev.Key, "session", ev.SessionID, "mode", ev.Mode)
	return nil
}

func (LogSink) Close() error { return nil }

// Publisher fans events out to sinks without blocking the caller.
type Publisher struct {
	sinks   []Sink
	timeout time.Duration
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewPublisher creates a publisher over sinks. With no sinks it logs only.
func NewPublisher(sinks ...Sink) *Publisher {
	if len(sinks) == 0 {
		sinks = []Sink{LogSink{}}
	}
	return &Publisher{sinks: sinks, timeout: 5 * time.Second, metrics: metrics.DefaultMetrics, now: time.Now}
}

// Sinks returns the names of the configured sinks.
func (p *Publisher) Sinks() []string {
	names := make([]string, len(p.sinks))
	for i, s := range p.sinks {
		names[i] = s.Name()
	}
	return names
}

// Emit publishes ev in the background. Failures are logged and counted.
func (p *Publisher) Emit(ev Event) {
	if p == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = p.now()
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		p.Publish(ctx, ev)
	}()
}

// Publish sends ev to every sink and returns the joined errors.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = p.now()
	}
	var errs []error
	for _, s := range p.sinks {
		err := s.Publish(ctx, ev)
		p.metrics.RecordPublish(s.Name(), ev.Type, err)
		if err != nil {
			slog.Warn("event publish failed", "sink", s.Name(), "type", ev.Type, "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (p *Publisher) Close() error {
	var errs []error
	for _, s := range p.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
