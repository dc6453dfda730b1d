package bus

import (
	"strings"
	"time"

	"github.com/joebot/voxbrief/internal/audio"
	"github.com/joebot/voxbrief/internal/format"
)

// Kind classifies an inbound event.
type Kind string

const (
	KindAudio  Kind = "audio"
	KindButton Kind = "button"
	KindText   Kind = "text"
)

// MetaInteraction is the metadata key under which a transport stores the
// reference of a button interaction. Replies to that event carry it in EditRef.
const MetaInteraction = "interaction"

// Event is something a user did in a chat channel.
type Event struct {
	Channel    string
	ChatID     string
	UserID     string
	MessageID  string
	Kind       Kind
	Audio      *audio.Inbound // KindAudio
	Token      string         // KindButton
	Text       string         // KindText
	ReceivedAt time.Time
	Metadata   map[string]any
}

// Reply is a response to send to a chat channel. Chunks are sent in order;
// the menu goes with the last chunk.
type Reply struct {
	Channel  string
	ChatID   string
	Chunks   []string
	Menu     *format.Menu
	ReplyTo  string // message to reply to, when the platform supports it
	EditRef  string // interaction or placeholder to update instead of posting
	Metadata map[string]any
}

// Text returns the concatenated chunks.
func (r *Reply) Text() string {
	return strings.Join(r.Chunks, "")
}
