package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/joebot/voxbrief/internal/bus"
)

const welcomeText = `👋 Hi! I turn voice messages into text.

Send me a voice message or an audio file (OGG, MP3 or WAV) and I will transcribe it. Then pick what you need:
📋 Summary: key points per speaker, decisions and conclusions
📝 Full text: the whole transcript with speaker turns
✅ Tasks: action items with owners and due dates
📊 Stats: words, speakers, duration and reading time`

const helpText = `ℹ️ How to use the bot

1. Send a voice message or an audio file (up to %d MB).
2. Wait for the transcription.
3. Press a button under the result.

Your transcript is kept for %s after the last use. Sending new audio replaces it.

Commands:
/start: welcome message
/help: this help
/stats: your activity`

const sendAudioText = "🎙️ Please send a voice message or an audio file and I will transcribe it."

func (o *Orchestrator) handleText(key string, ev *bus.Event) []*bus.Reply {
	cmd := strings.ToLower(strings.TrimSpace(ev.Text))
	if i := strings.IndexAny(cmd, " @"); i >= 0 {
		cmd = cmd[:i]
	}
	switch cmd {
	case "/start":
		return []*bus.Reply{o.textReply(ev, welcomeText, nil)}
	case "/help":
		text := fmt.Sprintf(helpText, o.ingestor.MaxBytes()>>20, o.sessions.TTL())
		return []*bus.Reply{o.textReply(ev, text, nil)}
	case "/stats":
		return []*bus.Reply{o.textReply(ev, o.userStats(key), nil)}
	}
	return []*bus.Reply{o.textReply(ev, sendAudioText, nil)}
}

func (o *Orchestrator) userStats(key string) string {
	info := o.sessions.Info(key)
	var b strings.Builder
	b.WriteString("📊 **Your activity**\n\n")
	fmt.Fprintf(&b, "• Actions processed: %d\n", info.Processed)
	if info.LastActivity.IsZero() {
		b.WriteString("• Last activity: never\n")
	} else {
		fmt.Fprintf(&b, "• Last activity: %s\n", info.LastActivity.UTC().Format(time.DateTime)+" UTC")
	}
	switch {
	case info.Pending:
		b.WriteString("• Transcript: in progress")
	case info.Active:
		b.WriteString("• Transcript: active")
	default:
		b.WriteString("• Transcript: none")
	}
	return b.String()
}
