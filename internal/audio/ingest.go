// Package audio validates inbound audio before anything is sent to a remote
// service.
package audio

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/joebot/voxbrief/internal/fault"
)

// DefaultMaxBytes is the default size ceiling (20 MiB).
const DefaultMaxBytes = 20 << 20

// Format is an accepted audio container.
type Format string

const (
	FormatUnknown Format = ""
	FormatOGG     Format = "ogg"
	FormatMP3     Format = "mp3"
	FormatWAV     Format = "wav"
)

// MIME returns the canonical MIME type of the container.
func (f Format) MIME() string {
	switch f {
	case FormatOGG:
		return "audio/ogg"
	case FormatMP3:
		return "audio/mpeg"
	case FormatWAV:
		return "audio/wav"
	}
	return "application/octet-stream"
}

// Fetcher downloads the attachment bytes. Supplied by the transport.
type Fetcher func(ctx context.Context) ([]byte, error)

// Inbound is the audio part of an inbound chat message as the transport sees it.
type Inbound struct {
	Filename     string
	MIME         string
	DeclaredSize int64
	Duration     float64 // seconds, when the platform reports it
	Data         []byte
	Fetch        Fetcher
}

// Payload is validated audio ready for transcription.
type Payload struct {
	Data     []byte
	MIME     string
	Format   Format
	Size     int64
	Filename string
	Duration float64
}

// Rejection explains why audio was refused.
type Rejection struct {
	Reason string
	Detail string
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return "audio rejected: " + r.Reason
	}
	return "audio rejected: " + r.Reason + ": " + r.Detail
}

// Ingestor validates inbound audio.
type Ingestor struct {
	maxBytes int64
	allowed  map[Format]bool
}

// NewIngestor creates an ingestor. A non-positive maxBytes selects the default;
// an empty allow list permits ogg, mp3 and wav.
func NewIngestor(maxBytes int64, allowed []string) *Ingestor {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	set := make(map[Format]bool)
	for _, a := range allowed {
		if f := Format(strings.ToLower(strings.TrimSpace(a))); f != FormatUnknown {
			set[f] = true
		}
	}
	if len(set) == 0 {
		set = map[Format]bool{FormatOGG: true, FormatMP3: true, FormatWAV: true}
	}
	return &Ingestor{maxBytes: maxBytes, allowed: set}
}

// MaxBytes returns the configured size ceiling.
func (in *Ingestor) MaxBytes() int64 { return in.maxBytes }

// Ingest validates msg and returns the payload. The declared size is checked
// before any download so oversized files never leave the platform.
func (in *Ingestor) Ingest(ctx context.Context, msg *Inbound) (*Payload, error) {
	if msg == nil || (len(msg.Data) == 0 && msg.Fetch == nil) {
		return nil, reject(fault.ReasonMissingContent, "")
	}
	if msg.DeclaredSize > in.maxBytes {
		return nil, reject(fault.ReasonTooLarge, fmt.Sprintf("%d bytes > %d", msg.DeclaredSize, in.maxBytes))
	}

	format := formatFromMIME(msg.MIME)
	if format == FormatUnknown {
		format = formatFromName(msg.Filename)
	}
	if format != FormatUnknown && !in.allowed[format] {
		return nil, reject(fault.ReasonUnsupportedFormat, string(format))
	}
	if format == FormatUnknown && msg.MIME != "" && !strings.HasPrefix(msg.MIME, "audio/") &&
		msg.MIME != "application/octet-stream" {
		return nil, reject(fault.ReasonUnsupportedFormat, msg.MIME)
	}

	data := msg.Data
	if len(data) == 0 {
		var err error
		data, err = msg.Fetch(ctx)
		if err != nil {
			return nil, fault.New(fault.Transient, fault.ReasonUnavailable, "audio.fetch", err)
		}
	}
	if len(data) == 0 {
		return nil, reject(fault.ReasonMissingContent, "empty file")
	}
	if int64(len(data)) > in.maxBytes {
		return nil, reject(fault.ReasonTooLarge, fmt.Sprintf("%d bytes > %d", len(data), in.maxBytes))
	}

	if sniffed := Sniff(data); sniffed != FormatUnknown {
		format = sniffed
	}
	if format == FormatUnknown || !in.allowed[format] {
		return nil, reject(fault.ReasonUnsupportedFormat, msg.MIME)
	}

	name := msg.Filename
	if name == "" || formatFromName(name) != format {
		name = "audio." + string(format)
	}
	return &Payload{
		Data:     data,
		MIME:     format.MIME(),
		Format:   format,
		Size:     int64(len(data)),
		Filename: name,
		Duration: msg.Duration,
	}, nil
}

func reject(reason, detail string) error {
	return fault.New(fault.Validation, reason, "audio.ingest", &Rejection{Reason: reason, Detail: detail})
}

func formatFromMIME(mime string) Format {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch mime {
	case "audio/ogg", "audio/opus", "application/ogg", "audio/x-opus+ogg":
		return FormatOGG
	case "audio/mpeg", "audio/mp3", "audio/mpeg3", "audio/x-mpeg-3":
		return FormatMP3
	case "audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave":
		return FormatWAV
	}
	return FormatUnknown
}

func formatFromName(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".ogg", ".oga", ".opus":
		return FormatOGG
	case ".mp3":
		return FormatMP3
	case ".wav":
		return FormatWAV
	}
	return FormatUnknown
}

// Sniff detects the container from magic bytes.
func Sniff(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, []byte("OggS")):
		return FormatOGG
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return FormatWAV
	case bytes.HasPrefix(data, []byte("ID3")):
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return FormatMP3
	}
	return FormatUnknown
}
