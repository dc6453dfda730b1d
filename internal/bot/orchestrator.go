// Package bot turns inbound chat events into replies: audio becomes a
// transcript with a follow-up menu, button presses run the chosen action.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/joebot/voxbrief/internal/audio"
	"github.com/joebot/voxbrief/internal/bus"
	"github.com/joebot/voxbrief/internal/events"
	"github.com/joebot/voxbrief/internal/fault"
	"github.com/joebot/voxbrief/internal/format"
	"github.com/joebot/voxbrief/internal/metrics"
	"github.com/joebot/voxbrief/internal/session"
	"github.com/joebot/voxbrief/internal/summary"
	"github.com/joebot/voxbrief/internal/transcript"
)

// ExpiredMessage is sent when a button refers to a session that is gone.
const ExpiredMessage = "⌛ Session expired, please resend the audio."

// Transcriber turns validated audio into an annotated transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, p *audio.Payload, lang string) (*transcript.Transcript, error)
}

// Processor runs a follow-up mode on a transcript.
type Processor interface {
	Process(ctx context.Context, t *transcript.Transcript, mode summary.Mode) (string, error)
}

// ActionRequest is one button press resolved to a session.
type ActionRequest struct {
	Key       string
	SessionID string
	Mode      summary.Mode
}

type action func(ctx context.Context, req ActionRequest, s *session.Session) (string, error)

// Config holds the collaborators of an Orchestrator.
type Config struct {
	Ingestor    *audio.Ingestor
	Transcriber Transcriber
	Engine      Processor
	Sessions    *session.Manager
	Events      *events.Publisher
	Metrics     *metrics.Metrics

	ChunkLimit    int
	Language      string
	MaxTextLength int

	// Notify, when set, delivers interim status replies (transcribing,
	// processing) before the final result.
	Notify func(*bus.Reply)
}

// Orchestrator is the per-key conversation state machine.
type Orchestrator struct {
	ingestor    *audio.Ingestor
	transcriber Transcriber
	engine      Processor
	sessions    *session.Manager
	events      *events.Publisher
	metrics     *metrics.Metrics
	notify      func(*bus.Reply)

	limit    int
	language string
	maxText  int
	actions  map[summary.Mode]action

	mu   sync.Mutex
	keys map[string]*keyState
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Ingestor == nil {
		cfg.Ingestor = audio.NewIngestor(0, nil)
	}
	if cfg.Sessions == nil {
		cfg.Sessions = session.NewManager(0, 0)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.DefaultMetrics
	}
	if cfg.ChunkLimit <= 0 {
		cfg.ChunkLimit = format.DefaultLimit
	}
	if cfg.MaxTextLength <= 0 {
		cfg.MaxTextLength = summary.DefaultMaxTextLength
	}
	o := &Orchestrator{
		ingestor:    cfg.Ingestor,
		transcriber: cfg.Transcriber,
		engine:      cfg.Engine,
		sessions:    cfg.Sessions,
		events:      cfg.Events,
		metrics:     cfg.Metrics,
		notify:      cfg.Notify,
		limit:       cfg.ChunkLimit,
		language:    cfg.Language,
		maxText:     cfg.MaxTextLength,
		keys:        make(map[string]*keyState),
	}
	o.actions = map[summary.Mode]action{
		summary.ModeSummary:  o.remote(summary.ModeSummary),
		summary.ModeTasks:    o.remote(summary.ModeTasks),
		summary.ModeFullText: o.fullText,
		summary.ModeStats:    o.stats,
	}
	o.sessions.OnExpire(o.forget)
	return o
}

// Sessions returns the session store.
func (o *Orchestrator) Sessions() *session.Manager { return o.sessions }

// State returns the current state of key.
func (o *Orchestrator) State(key string) State {
	_, live := o.sessions.Peek(key)
	o.mu.Lock()
	defer o.mu.Unlock()
	if k, ok := o.keys[key]; ok {
		return k.state(live)
	}
	return State{Phase: Idle}
}

// Keys returns the number of keys the orchestrator is tracking.
func (o *Orchestrator) Keys() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.keys)
}

// Handle processes one inbound event. It is safe for concurrent use; events
// of the same key are serialized where they touch the session.
func (o *Orchestrator) Handle(ctx context.Context, ev *bus.Event) []*bus.Reply {
	key := session.Key(ev.ChatID, ev.UserID)
	switch ev.Kind {
	case bus.KindAudio:
		return o.handleAudio(ctx, key, ev)
	case bus.KindButton:
		return o.handleButton(ctx, key, ev)
	case bus.KindText:
		return o.handleText(key, ev)
	}
	slog.Warn("unknown event kind", "kind", ev.Kind, "channel", ev.Channel)
	return nil
}

func (o *Orchestrator) handleAudio(ctx context.Context, key string, ev *bus.Event) []*bus.Reply {
	submitted := ev.ReceivedAt
	if submitted.IsZero() {
		submitted = time.Now()
	}

	payload, err := o.ingestor.Ingest(ctx, ev.Audio)
	if err != nil {
		if fault.KindOf(err) == fault.Validation {
			o.metrics.RecordRejected(fault.ReasonOf(err))
			slog.Info("audio rejected", "key", key, "reason", fault.ReasonOf(err))
		} else {
			slog.Warn("audio download failed", "key", key, "err", err)
		}
		return []*bus.Reply{o.textReply(ev, fault.UserMessage(err), nil)}
	}

	o.metrics.AudioBytes.Add(float64(payload.Size))

	k := o.acquire(key)
	defer o.release(key, k)
	o.mu.Lock()
	k.inflight++
	o.mu.Unlock()
	o.sessions.Begin(key, submitted)
	o.interim(ev, "🎧 Transcribing your audio…")

	slog.Info("transcribing", "key", key, "format", payload.Format, "bytes", payload.Size)
	t, err := o.transcriber.Transcribe(ctx, payload, o.language)
	if err != nil {
		current := o.sessions.Abort(key, submitted)
		o.mu.Lock()
		k.inflight--
		if current {
			k.menu = false
		}
		o.mu.Unlock()
		if !current {
			slog.Info("failed transcription superseded by newer audio", "key", key, "err", err)
			return nil
		}
		o.logFailure("transcription failed", key, err)
		return []*bus.Reply{o.textReply(ev, fault.UserMessage(err), nil)}
	}

	// Wait for a running action on this key before replacing its transcript.
	k.commit.Lock()
	s, err := o.sessions.Put(key, t, submitted)
	k.commit.Unlock()

	o.mu.Lock()
	k.inflight--
	if err == nil {
		k.menu = true
	}
	o.mu.Unlock()

	if errors.Is(err, session.ErrSuperseded) {
		slog.Info("transcript superseded by newer audio", "key", key)
		return nil
	}
	if err != nil {
		o.logFailure("storing transcript failed", key, err)
		return []*bus.Reply{o.textReply(ev, fault.UserMessage(err), nil)}
	}

	o.events.Emit(events.Event{
		Type:      events.TypeTranscriptReady,
		Key:       key,
		SessionID: s.ID,
		Channel:   ev.Channel,
		Attributes: map[string]any{
			"characters": len([]rune(t.Text)),
			"speakers":   len(t.Speakers()),
			"seconds":    t.Duration.Seconds(),
		},
	})
	return []*bus.Reply{o.textReply(ev, statusLine(payload, t), format.RenderMenu(s.ID))}
}

func (o *Orchestrator) handleButton(ctx context.Context, key string, ev *bus.Event) []*bus.Reply {
	mode, sessionID, err := format.ParseToken(ev.Token)
	if err != nil {
		slog.Warn("bad callback token", "key", key, "err", err)
		return []*bus.Reply{o.textReply(ev, "❌ Unknown action.", nil)}
	}
	req := ActionRequest{Key: key, SessionID: sessionID, Mode: mode}

	k := o.acquire(key)
	defer o.release(key, k)
	k.commit.Lock()
	defer k.commit.Unlock()

	s, err := o.sessions.Lookup(key, sessionID)
	if err != nil {
		slog.Info("session unavailable", "key", key, "mode", mode, "err", err)
		if _, live := o.sessions.Peek(key); !live {
			o.mu.Lock()
			k.menu = false
			o.mu.Unlock()
		}
		return []*bus.Reply{o.textReply(ev, ExpiredMessage, nil)}
	}

	o.mu.Lock()
	k.processing = mode
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		k.processing = ""
		k.menu = true
		o.mu.Unlock()
	}()

	if mode.Remote() {
		o.interim(ev, "⏳ Processing…")
	}
	menu := format.RenderMenu(s.ID)
	start := time.Now()
	text, err := o.actions[mode](ctx, req, s)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		o.metrics.RecordAction(string(mode), "error", elapsed)
		o.logFailure("action failed", key, err, "mode", mode)
		o.events.Emit(events.Event{
			Type: events.TypeActionFailed, Key: key, SessionID: s.ID, Channel: ev.Channel, Mode: string(mode),
			Attributes: map[string]any{"kind": fault.KindOf(err).String(), "reason": fault.ReasonOf(err)},
		})
		return []*bus.Reply{o.textReply(ev, fault.UserMessage(err), menu)}
	}

	o.metrics.RecordAction(string(mode), "ok", elapsed)
	o.sessions.MarkProcessed(key)
	o.events.Emit(events.Event{
		Type: events.TypeActionCompleted, Key: key, SessionID: s.ID, Channel: ev.Channel, Mode: string(mode),
		Attributes: map[string]any{"seconds": elapsed},
	})
	slog.Info("action done", "key", key, "mode", mode, "chars", len(text))
	return []*bus.Reply{o.textReply(ev, text, menu)}
}

func (o *Orchestrator) remote(mode summary.Mode) action {
	return func(ctx context.Context, _ ActionRequest, s *session.Session) (string, error) {
		if o.engine == nil {
			return "", fault.New(fault.Internal, "", "bot."+string(mode), fmt.Errorf("no summary engine configured"))
		}
		return o.engine.Process(ctx, s.Transcript, mode)
	}
}

func (o *Orchestrator) fullText(_ context.Context, _ ActionRequest, s *session.Session) (string, error) {
	return summary.FullText(s.Transcript), nil
}

func (o *Orchestrator) stats(_ context.Context, _ ActionRequest, s *session.Session) (string, error) {
	return summary.ComputeStats(s.Transcript, o.maxText).Render(), nil
}

// acquire returns the keyState for key, pinned until release.
func (o *Orchestrator) acquire(key string) *keyState {
	o.mu.Lock()
	defer o.mu.Unlock()
	k, ok := o.keys[key]
	if !ok {
		k = &keyState{}
		o.keys[key] = k
	}
	k.refs++
	return k
}

// release unpins k and drops it once nothing about the key is live.
func (o *Orchestrator) release(key string, k *keyState) {
	_, live := o.sessions.Peek(key)
	o.mu.Lock()
	defer o.mu.Unlock()
	k.refs--
	if o.keys[key] == k && k.unused(live) {
		delete(o.keys, key)
	}
}

// forget drops the state of a key whose session the sweeper purged.
func (o *Orchestrator) forget(key string) {
	_, live := o.sessions.Peek(key)
	o.mu.Lock()
	defer o.mu.Unlock()
	if k, ok := o.keys[key]; ok && k.unused(live) {
		delete(o.keys, key)
	}
}

func (o *Orchestrator) textReply(ev *bus.Event, text string, menu *format.Menu) *bus.Reply {
	fr := format.NewReply(text, o.limit, menu)
	r := &bus.Reply{
		Channel: ev.Channel,
		ChatID:  ev.ChatID,
		Chunks:  fr.Chunks,
		Menu:    fr.Menu,
		ReplyTo: ev.MessageID,
	}
	if ref, ok := ev.Metadata[bus.MetaInteraction].(string); ok {
		r.EditRef = ref
	}
	return r
}

func (o *Orchestrator) interim(ev *bus.Event, text string) {
	if o.notify == nil {
		return
	}
	r := o.textReply(ev, text, nil)
	r.Metadata = map[string]any{"interim": true}
	o.notify(r)
}

func (o *Orchestrator) logFailure(msg, key string, err error, attrs ...any) {
	attrs = append([]any{"key", key, "kind", fault.KindOf(err).String(), "err", err}, attrs...)
	if fault.KindOf(err) == fault.Internal {
		slog.Error(msg, attrs...)
		return
	}
	slog.Warn(msg, attrs...)
}

func statusLine(p *audio.Payload, t *transcript.Transcript) string {
	var b strings.Builder
	b.WriteString("✅ Transcription ready")
	var parts []string
	if t.Duration > 0 {
		parts = append(parts, "duration "+transcript.Clock(t.Duration))
	}
	parts = append(parts, fmt.Sprintf("%.1f MB", float64(p.Size)/(1<<20)))
	parts = append(parts, fmt.Sprintf("%d characters", len([]rune(t.Text))))
	if n := len(t.Speakers()); n > 1 {
		parts = append(parts, fmt.Sprintf("%d speakers", n))
	}
	b.WriteString(" (" + strings.Join(parts, ", ") + ").")
	b.WriteString("\n\nChoose what to do with it:")
	return b.String()
}
