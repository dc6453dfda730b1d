package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"unicode/utf8"

	"github.com/joebot/voxbrief/internal/metrics"
)

// Handler processes one inbound event and returns the replies to send.
type Handler func(ctx context.Context, ev *Event) []*Reply

// OutboundHandler is a callback for outbound replies on a specific channel.
// A handler that fails after delivering some chunks returns a
// *PartialSendError.
type OutboundHandler func(ctx context.Context, r *Reply) error

// PartialSendError reports that the first Sent chunks of a reply were
// delivered before Err.
type PartialSendError struct {
	Sent int
	Err  error
}

func (e *PartialSendError) Error() string {
	return fmt.Sprintf("chunk %d: %v", e.Sent+1, e.Err)
}

func (e *PartialSendError) Unwrap() error { return e.Err }

// delivered returns how many chunks err says went out.
func delivered(err error) int {
	var pe *PartialSendError
	if errors.As(err, &pe) {
		return pe.Sent
	}
	return 0
}

// MessageBus decouples chat channels from the bot core using Go channels.
type MessageBus struct {
	Inbound  chan *Event
	Outbound chan *Reply

	mu          sync.RWMutex
	subscribers map[string][]OutboundHandler
	metrics     *metrics.Metrics
}

// NewMessageBus creates a new message bus with buffered channels.
func NewMessageBus() *MessageBus {
	return &MessageBus{
		Inbound:     make(chan *Event, 64),
		Outbound:    make(chan *Reply, 64),
		subscribers: make(map[string][]OutboundHandler),
		metrics:     metrics.DefaultMetrics,
	}
}

// PublishInbound sends an event from a channel to the bot.
func (b *MessageBus) PublishInbound(ev *Event) {
	b.Inbound <- ev
}

// PublishOutbound queues a reply for the channels.
func (b *MessageBus) PublishOutbound(r *Reply) {
	b.Outbound <- r
}

// Subscribe registers a handler for outbound replies on a specific channel.
func (b *MessageBus) Subscribe(channel string, handler OutboundHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[channel] = append(b.subscribers[channel], handler)
}

// ConsumeInbound handles every inbound event in its own goroutine and queues
// the replies. Blocks until ctx is cancelled, then waits for in-flight
// events to finish.
func (b *MessageBus) ConsumeInbound(ctx context.Context, h Handler) {
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.Inbound:
			b.metrics.RecordEvent(ev.Channel, string(ev.Kind))
			wg.Add(1)
			go func() {
				defer wg.Done()
				for _, r := range b.handle(ctx, h, ev) {
					select {
					case b.Outbound <- r:
					case <-ctx.Done():
						return
					}
				}
			}()
		}
	}
}

func (b *MessageBus) handle(ctx context.Context, h Handler, ev *Event) (replies []*Reply) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("event handler panicked", "channel", ev.Channel, "chat", ev.ChatID,
				"panic", fmt.Sprint(p), "stack", string(debug.Stack()))
			replies = []*Reply{{
				Channel: ev.Channel,
				ChatID:  ev.ChatID,
				Chunks:  []string{"❌ Something went wrong on our side. Please try again."},
			}}
		}
	}()
	return h(ctx, ev)
}

// DispatchOutbound reads from the outbound queue and dispatches to subscribers.
// Blocks until ctx is cancelled.
func (b *MessageBus) DispatchOutbound(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-b.Outbound:
			b.mu.RLock()
			handlers := b.subscribers[r.Channel]
			b.mu.RUnlock()
			if len(handlers) == 0 {
				slog.Warn("no subscriber for outbound reply", "channel", r.Channel)
				continue
			}
			for _, h := range handlers {
				if err := h(ctx, r); err != nil {
					slog.Warn("dispatch outbound failed, attempting recovery", "channel", r.Channel, "err", err)
					b.recoverSend(ctx, h, r, err)
					continue
				}
				b.metrics.RepliesTotal.WithLabelValues(r.Channel).Add(float64(len(r.Chunks)))
			}
		}
	}
}

// recoverSend tries fallback strategies when a reply fails to send. Chunks
// that sendErr reports as delivered are not sent again. It attempts
// progressively simpler replies, and as a last resort sends a short error
// notification so the user knows something went wrong.
func (b *MessageBus) recoverSend(ctx context.Context, h OutboundHandler, original *Reply, sendErr error) {
	sent := min(delivered(sendErr), len(original.Chunks))
	rest := original.Chunks[sent:]
	replyTo := original.ReplyTo
	if sent > 0 {
		replyTo = ""
		slog.Info("recovery: resuming after delivered chunks", "channel", original.Channel, "sent", sent, "remaining", len(rest))
	}

	// Strategy 1: retry the remaining chunks without the button menu.
	if original.Menu != nil && len(rest) > 0 {
		noMenu := &Reply{
			Channel: original.Channel,
			ChatID:  original.ChatID,
			Chunks:  rest,
			ReplyTo: replyTo,
		}
		err := h(ctx, noMenu)
		if err == nil {
			b.recovered(original.Channel, "no_menu")
			return
		}
		rest = rest[min(delivered(err), len(rest)):]
	}

	// Strategy 2: retry with the next chunk shortened.
	if len(rest) > 0 && utf8.RuneCountInString(rest[0]) > 1500 {
		head := []rune(rest[0])[:1500]
		truncated := &Reply{
			Channel: original.Channel,
			ChatID:  original.ChatID,
			Chunks:  []string{string(head) + "\n\n[message truncated]"},
			Menu:    original.Menu,
		}
		if err := h(ctx, truncated); err == nil {
			b.recovered(original.Channel, "truncated")
			return
		}
	}

	// Strategy 3: send a brief error notification to the user.
	fallback := &Reply{
		Channel: original.Channel,
		ChatID:  original.ChatID,
		Chunks:  []string{"Sorry, I ran into a technical issue and couldn't deliver my response. Please try again."},
	}
	if err := h(ctx, fallback); err != nil {
		slog.Error("recovery: all strategies failed, unable to notify user", "channel", original.Channel, "err", err)
		return
	}
	b.recovered(original.Channel, "notice")
}

func (b *MessageBus) recovered(channel, strategy string) {
	slog.Info("recovery: reply delivered", "channel", channel, "strategy", strategy)
	b.metrics.ReplyRecoveries.WithLabelValues(channel, strategy).Inc()
}
