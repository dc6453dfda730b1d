// Package logging provides the compact slog handler used by every command.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
	ansiGray   = "\033[90m"

	padding = "  " // aligns with the TUI header
)

// MaxBlockLines caps how much of a block attribute is printed.
const MaxBlockLines = 20

// Block attributes are printed as indented lines under the record.
var blockKeys = map[string]bool{
	"preview":    true,
	"transcript": true,
}

// Attributes whose key contains one of these are masked.
var secretKeys = []string{"token", "apikey", "api_key", "authorization", "password", "secret"}

const redacted = "[REDACTED]"

// Options configures a Handler.
type Options struct {
	Level slog.Level
	Color bool
}

// Handler is a compact, optionally colored slog handler.
type Handler struct {
	w     io.Writer
	mu    *sync.Mutex
	level slog.Level
	color bool
	attrs []slog.Attr
	group string
}

// NewHandler creates a new log handler.
func NewHandler(w io.Writer, opts *Options) *Handler {
	if opts == nil {
		opts = &Options{}
	}
	return &Handler{w: w, mu: &sync.Mutex{}, level: opts.Level, color: opts.Color}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var inline strings.Builder
	var blocks []string
	add := func(a slog.Attr) {
		if blockKeys[a.Key[strings.LastIndexByte(a.Key, '.')+1:]] {
			blocks = append(blocks, a.Value.String())
			return
		}
		h.writeAttr(&inline, a)
	}
	for _, a := range h.attrs {
		add(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		add(a)
		return true
	})

	var sb strings.Builder
	h.writeHeader(&sb, r)
	sb.WriteString(r.Message)
	sb.WriteString(inline.String())
	sb.WriteByte('\n')
	for _, text := range blocks {
		h.writeBlock(&sb, text)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, sb.String())
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	combined := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	combined = append(combined, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		combined = append(combined, a)
	}
	c := *h
	c.attrs = combined
	return &c
}

// WithGroup prefixes the keys of later attributes with name.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	if c.group != "" {
		c.group += "." + name
	} else {
		c.group = name
	}
	return &c
}

// writeHeader writes the padded timestamp and level. Terminals get a short
// colored clock, files a full date.
func (h *Handler) writeHeader(sb *strings.Builder, r slog.Record) {
	sb.WriteString(padding)
	label := levelLabel(r.Level)
	if h.color {
		sb.WriteString(ansiGray + r.Time.Format("15:04:05") + ansiReset + " ")
		sb.WriteString(colorLevel(r.Level, label) + " ")
		return
	}
	sb.WriteString(r.Time.Format("2006-01-02 15:04:05") + " " + label + " ")
}

func (h *Handler) writeAttr(sb *strings.Builder, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, g := range a.Value.Group() {
			g.Key = a.Key + "." + g.Key
			h.writeAttr(sb, g)
		}
		return
	}
	val := formatValue(a.Value)
	if isSecret(a.Key) {
		val = mask(a.Value.String())
	}
	sb.WriteByte(' ')
	if h.color {
		sb.WriteString(ansiGray + a.Key + ansiReset + "=" + val)
		return
	}
	sb.WriteString(a.Key + "=" + val)
}

// writeBlock prints text under the record, at most MaxBlockLines lines.
func (h *Handler) writeBlock(sb *strings.Builder, text string) {
	bar := "| "
	if h.color {
		bar = ansiGray + "│" + ansiReset + " "
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if i == MaxBlockLines {
			fmt.Fprintf(sb, "%s  %s… %d more lines\n", padding, bar, len(lines)-i)
			return
		}
		sb.WriteString(padding + "  " + bar + line + "\n")
	}
}

func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindDuration:
		return v.Duration().Round(time.Millisecond).String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindString:
		s := v.String()
		if s == "" || strings.ContainsAny(s, " \t\n\"=") {
			return strconv.Quote(s)
		}
		return s
	}
	return v.String()
}

func isSecret(key string) bool {
	key = strings.ToLower(key)
	for _, s := range secretKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

// mask keeps the last four characters of long values for correlation.
func mask(v string) string {
	if utf8.RuneCountInString(v) < 12 {
		return redacted
	}
	r := []rune(v)
	return redacted + "…" + string(r[len(r)-4:])
}

// ParseLevel accepts debug, info, warn or error (any case). An empty string
// is info.
func ParseLevel(s string) (slog.Level, error) {
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("parse log level %q: %w", s, err)
	}
	return lvl, nil
}

// Setup installs a Handler writing to w as the default slog logger.
func Setup(w io.Writer, level slog.Level, color bool) *slog.Logger {
	logger := slog.New(NewHandler(w, &Options{Level: level, Color: color}))
	slog.SetDefault(logger)
	return logger
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERR"
	case level >= slog.LevelWarn:
		return "WRN"
	case level >= slog.LevelInfo:
		return "INF"
	default:
		return "DBG"
	}
}

func colorLevel(level slog.Level, label string) string {
	switch {
	case level >= slog.LevelError:
		return ansiRed + label + ansiReset
	case level >= slog.LevelWarn:
		return ansiYellow + label + ansiReset
	case level >= slog.LevelInfo:
		return ansiCyan + label + ansiReset
	default:
		return ansiGray + label + ansiReset
	}
}
