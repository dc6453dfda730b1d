package summary

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joebot/voxbrief/internal/transcript"
)

// WordsPerMinute is the reading speed used for the reading time estimate.
const WordsPerMinute = 200

// SpeakerStats is the share of one speaker label.
type SpeakerStats struct {
	Label    string
	Words    int
	Share    float64 // percent of all words
	TalkTime time.Duration
}

// Stats describes a transcript. Computed locally.
type Stats struct {
	Characters     int
	Words          int
	Lines          int
	Segments       int
	Speakers       []SpeakerStats
	Duration       time.Duration
	ReadingMinutes int
	Limit          int
	WithinLimit    bool
}

// ComputeStats derives statistics from t. limit is the text ceiling used to
// report whether the transcript is processed in full.
func ComputeStats(t *transcript.Transcript, limit int) Stats {
	if limit <= 0 {
		limit = DefaultMaxTextLength
	}
	rendered := t.Render()
	s := Stats{
		Characters: utf8.RuneCountInString(t.Text),
		Words:      len(strings.Fields(t.Text)),
		Segments:   len(t.Segments),
		Duration:   t.Duration,
		Limit:      limit,
	}
	for _, line := range strings.Split(rendered, "\n") {
		if strings.TrimSpace(line) != "" {
			s.Lines++
		}
	}
	s.WithinLimit = utf8.RuneCountInString(groupedBody(t)) <= limit
	s.ReadingMinutes = (s.Words + WordsPerMinute - 1) / WordsPerMinute
	if s.ReadingMinutes < 1 {
		s.ReadingMinutes = 1
	}

	idx := make(map[string]int)
	for _, seg := range t.Segments {
		if seg.Speaker == "" {
			continue
		}
		i, ok := idx[seg.Speaker]
		if !ok {
			i = len(s.Speakers)
			idx[seg.Speaker] = i
			s.Speakers = append(s.Speakers, SpeakerStats{Label: seg.Speaker})
		}
		s.Speakers[i].Words += len(strings.Fields(seg.Text))
		if seg.HasTiming && seg.End > seg.Start {
			s.Speakers[i].TalkTime += seg.End - seg.Start
		}
	}
	for i := range s.Speakers {
		if s.Words > 0 {
			s.Speakers[i].Share = float64(s.Speakers[i].Words) * 100 / float64(s.Words)
		}
	}
	return s
}

// Render formats the statistics for chat.
func (s Stats) Render() string {
	var b strings.Builder
	b.WriteString("📊 **Transcript statistics**\n\n")
	fmt.Fprintf(&b, "• Characters: %d\n", s.Characters)
	fmt.Fprintf(&b, "• Words: %d\n", s.Words)
	fmt.Fprintf(&b, "• Lines: %d\n", s.Lines)
	fmt.Fprintf(&b, "• Segments: %d\n", s.Segments)
	fmt.Fprintf(&b, "• Speakers detected: %d\n", len(s.Speakers))
	if s.Duration > 0 {
		fmt.Fprintf(&b, "• Audio duration: %s\n", transcript.Clock(s.Duration))
	}
	fmt.Fprintf(&b, "• Reading time: ~%d min\n", s.ReadingMinutes)
	if s.WithinLimit {
		fmt.Fprintf(&b, "• Processed in full: yes (limit %d characters)", s.Limit)
	} else {
		fmt.Fprintf(&b, "• Processed in full: no, summaries use the first %d characters", s.Limit)
	}
	if len(s.Speakers) > 0 {
		b.WriteString("\n\n**By speaker** (labels are approximate)")
		for _, sp := range s.Speakers {
			fmt.Fprintf(&b, "\n• %s: %d words (%.0f%%)", sp.Label, sp.Words, sp.Share)
			if sp.TalkTime > 0 {
				fmt.Fprintf(&b, ", %s", transcript.Clock(sp.TalkTime))
			}
		}
	}
	return b.String()
}

// FullText is the full transcript view with header and accuracy note.
func FullText(t *transcript.Transcript) string {
	return "📝 **Full transcript**\n\n" + t.Render() +
		"\n\n---\n💡 *Transcribed by AI. Inaccuracies are possible.*"
}
