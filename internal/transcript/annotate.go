package transcript

import (
	"strconv"
	"strings"
	"time"
)

// DefaultPauseThreshold is the silence that starts a new speaker turn.
const DefaultPauseThreshold = 2 * time.Second

// Annotator assigns speaker labels to raw segments.
type Annotator struct {
	PauseThreshold time.Duration
}

// NewAnnotator creates an annotator. A non-positive pause selects the default.
func NewAnnotator(pause time.Duration) *Annotator {
	if pause <= 0 {
		pause = DefaultPauseThreshold
	}
	return &Annotator{PauseThreshold: pause}
}

// Annotate labels segments and builds the transcript.
//
// A new turn starts when the gap to the previous segment exceeds the pause
// threshold or the diarization hint changes. A turn whose hint was seen
// before reuses that speaker's label; any other turn gets the next label.
// Input with neither timing nor hints stays unlabeled.
func (a *Annotator) Annotate(segs []Segment) *Transcript {
	pause := a.PauseThreshold
	if pause <= 0 {
		pause = DefaultPauseThreshold
	}

	clean := make([]Segment, 0, len(segs))
	signal := false
	for _, s := range segs {
		s.Text = strings.TrimSpace(s.Text)
		if s.Text == "" {
			continue
		}
		s.Speaker = ""
		if s.HasTiming || s.SpeakerHint > NoHint {
			signal = true
		}
		clean = append(clean, s)
	}

	t := &Transcript{Segments: clean}
	if len(clean) == 0 {
		return t
	}

	if signal {
		byHint := make(map[int]string)
		next := 0
		for i := range clean {
			cur := &clean[i]
			if i > 0 && !a.newTurn(clean[i-1], *cur, pause) {
				cur.Speaker = clean[i-1].Speaker
				if cur.SpeakerHint > NoHint {
					byHint[cur.SpeakerHint] = cur.Speaker
				}
				continue
			}
			if label, ok := byHint[cur.SpeakerHint]; ok && cur.SpeakerHint > NoHint {
				cur.Speaker = label
				continue
			}
			next++
			cur.Speaker = "Speaker " + strconv.Itoa(next)
			if cur.SpeakerHint > NoHint {
				byHint[cur.SpeakerHint] = cur.Speaker
			}
		}
	}

	texts := make([]string, len(clean))
	for i, s := range clean {
		texts[i] = s.Text
		if s.HasTiming && s.End > t.Duration {
			t.Duration = s.End
		}
	}
	t.Text = strings.Join(texts, " ")
	return t
}

func (a *Annotator) newTurn(prev, cur Segment, pause time.Duration) bool {
	if cur.SpeakerHint > NoHint && cur.SpeakerHint != prev.SpeakerHint {
		return true
	}
	if prev.HasTiming && cur.HasTiming && cur.Start-prev.End > pause {
		return true
	}
	return false
}
