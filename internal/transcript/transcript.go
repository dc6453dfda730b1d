// Package transcript holds the transcript model and the speaker-turn heuristic.
//
// Speaker labels are advisory: without real diarization they are guessed from
// pauses, so two labels may be the same person and one label may be two people.
package transcript

import (
	"fmt"
	"strings"
	"time"
)

// NoHint marks a segment without a diarization tag.
const NoHint = -1

// Segment is a contiguous span of speech.
type Segment struct {
	Speaker     string // "" when unlabeled
	Text        string
	Start       time.Duration
	End         time.Duration
	HasTiming   bool
	SpeakerHint int
}

// Transcript is the annotated result of a transcription.
type Transcript struct {
	Segments []Segment
	Language string
	Duration time.Duration
	Text     string
}

// Labeled reports whether any segment carries a speaker label.
func (t *Transcript) Labeled() bool {
	for _, s := range t.Segments {
		if s.Speaker != "" {
			return true
		}
	}
	return false
}

// HasTiming reports whether segment timestamps are available.
func (t *Transcript) HasTiming() bool {
	for _, s := range t.Segments {
		if s.HasTiming {
			return true
		}
	}
	return false
}

// Speakers returns distinct labels in order of first appearance.
func (t *Transcript) Speakers() []string {
	var out []string
	seen := make(map[string]bool)
	for _, s := range t.Segments {
		if s.Speaker == "" || seen[s.Speaker] {
			continue
		}
		seen[s.Speaker] = true
		out = append(out, s.Speaker)
	}
	return out
}

// Turn is a run of consecutive segments by the same label.
type Turn struct {
	Speaker string
	Start   time.Duration
	Text    string
}

// Turns merges consecutive segments with the same label.
func (t *Transcript) Turns() []Turn {
	var out []Turn
	for _, s := range t.Segments {
		if n := len(out); n > 0 && out[n-1].Speaker == s.Speaker {
			out[n-1].Text += " " + s.Text
			continue
		}
		out = append(out, Turn{Speaker: s.Speaker, Start: s.Start, Text: s.Text})
	}
	return out
}

// Render produces the full-text view. Labeled transcripts become one
// "**Speaker N** [mm:ss]: text" paragraph per segment; unlabeled ones are
// returned as plain text.
func (t *Transcript) Render() string {
	if !t.Labeled() {
		return t.Text
	}
	var b strings.Builder
	for i, s := range t.Segments {
		if i > 0 {
			b.WriteString("\n\n")
		}
		label := s.Speaker
		if label == "" {
			label = "Speaker"
		}
		b.WriteString("**" + label + "**")
		if s.HasTiming {
			b.WriteString(" [" + Clock(s.Start) + "]")
		}
		b.WriteString(": " + s.Text)
	}
	return b.String()
}

// Clock formats d as mm:ss. Minutes are not wrapped at the hour.
func Clock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
