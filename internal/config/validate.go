package config

import (
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
)

// Validate checks the configuration for invalid or missing values.
func (c *Config) Validate() error {
	if errs := c.validate(); len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c *Config) validate() []string {
	var errs []string

	// channels.discord
	dc := c.Channels.Discord
	if dc.Enabled && dc.Token == "" {
		errs = append(errs, "channels.discord.token is required when discord is enabled")
	}

	// transcription
	t := c.Transcription
	switch t.Backend {
	case "openai", "google":
	default:
		errs = append(errs, fmt.Sprintf("transcription.backend %q must be openai or google", t.Backend))
	}
	if t.TimeoutSeconds < 0 {
		errs = append(errs, "transcription.timeoutSeconds must be non-negative")
	}
	if t.MaxAttempts < 0 || t.MaxAttempts > 5 {
		errs = append(errs, "transcription.maxAttempts must be between 0 and 5")
	}
	if t.BackoffMs < 0 {
		errs = append(errs, "transcription.backoffMs must be non-negative")
	}
	if t.PauseThresholdMs < 0 {
		errs = append(errs, "transcription.pauseThresholdMs must be non-negative")
	}

	// processing
	p := c.Processing
	for _, name := range []string{p.Provider, p.FallbackProvider} {
		switch name {
		case "", "openrouter", "openai", "anthropic":
		default:
			errs = append(errs, fmt.Sprintf("processing provider %q is unknown", name))
		}
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		errs = append(errs, "processing.temperature must be between 0 and 2")
	}
	if p.MaxTokens < 0 {
		errs = append(errs, "processing.maxTokens must be non-negative")
	}
	if p.MaxTextLength < 0 {
		errs = append(errs, "processing.maxTextLength must be non-negative")
	}
	if p.MaxAttempts < 0 || p.MaxAttempts > 5 {
		errs = append(errs, "processing.maxAttempts must be between 0 and 5")
	}

	// audio
	if c.Audio.MaxSizeMB < 0 {
		errs = append(errs, "audio.maxSizeMb must be non-negative")
	}
	for _, f := range c.Audio.AllowedFormats {
		switch strings.ToLower(f) {
		case "ogg", "mp3", "wav":
		default:
			errs = append(errs, fmt.Sprintf("audio.allowedFormats: %q is not supported", f))
		}
	}

	// session, reply
	if c.Session.TTLMinutes < 0 {
		errs = append(errs, "session.ttlMinutes must be non-negative")
	}
	if c.Session.SweepSeconds < 0 {
		errs = append(errs, "session.sweepSeconds must be non-negative")
	}
	if c.Reply.ChunkLimit < 0 || c.Reply.ChunkLimit > 4096 {
		errs = append(errs, "reply.chunkLimit must be between 0 and 4096")
	}

	// events
	if k := c.Events.Kafka; k.Enabled && (len(k.Brokers) == 0 || k.Topic == "") {
		errs = append(errs, "events.kafka needs brokers and a topic when enabled")
	}
	if r := c.Events.Redis; r.Enabled && r.Addr == "" {
		errs = append(errs, "events.redis.addr is required when enabled")
	}

	// log
	if c.Log.Level != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
			errs = append(errs, fmt.Sprintf("log.level %q is not a valid level", c.Log.Level))
		}
	}

	return errs
}

// UnknownField is a config key with no matching Config field.
type UnknownField struct {
	Path string
	// Hint is the known key differing only in case, if any.
	Hint string
}

func (u UnknownField) String() string {
	if u.Hint == "" {
		return u.Path
	}
	return fmt.Sprintf("%s (did you mean %s?)", u.Path, u.Hint)
}

// CheckUnknownFields returns the keys of raw that Config does not declare,
// sorted by path. Keys of map-typed fields are user data and never reported.
func CheckUnknownFields(raw map[string]any) []UnknownField {
	var out []UnknownField
	walkUnknown(raw, reflect.TypeOf(Config{}), "", &out)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func walkUnknown(v any, t reflect.Type, path string, out *[]UnknownField) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		items, _ := v.([]any)
		for i, item := range items {
			walkUnknown(item, t.Elem(), fmt.Sprintf("%s[%d]", path, i), out)
		}
	case reflect.Map:
		obj, _ := v.(map[string]any)
		for key, val := range obj {
			walkUnknown(val, t.Elem(), subPath(path, key), out)
		}
	case reflect.Struct:
		obj, ok := v.(map[string]any)
		if !ok {
			return
		}
		fields := jsonFields(t)
		for key, val := range obj {
			ft, ok := fields[key]
			if !ok {
				*out = append(*out, UnknownField{Path: subPath(path, key), Hint: caseHint(fields, key)})
				continue
			}
			walkUnknown(val, ft, subPath(path, key), out)
		}
	}
}

// jsonFields maps the JSON names of t's exported fields to their types.
func jsonFields(t reflect.Type) map[string]reflect.Type {
	fields := make(map[string]reflect.Type, t.NumField())
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			continue
		case "":
			name = f.Name
		}
		fields[name] = f.Type
	}
	return fields
}

func caseHint(fields map[string]reflect.Type, key string) string {
	for name := range fields {
		if strings.EqualFold(name, key) {
			return name
		}
	}
	return ""
}

func subPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
