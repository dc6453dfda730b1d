package summary

import (
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/joebot/voxbrief/internal/transcript"
)

// TruncationMarker is appended to transcripts cut to the text ceiling.
const TruncationMarker = "[TRUNCATED: transcript too long]"

// DefaultMaxTextLength is the default ceiling on transcript characters sent
// to the completion capability.
const DefaultMaxTextLength = 4000

const summarySystem = `You analyse transcribed voice messages and write short, structured summaries.
Answer in the language of the transcript.`

const tasksSystem = `You extract concrete, actionable tasks from transcribed voice messages.
Answer in the language of the transcript.`

var summaryTmpl = template.Must(template.New("summary").Funcs(template.FuncMap{"join": strings.Join}).Parse(`Below is a transcribed voice message.
{{- if .Speakers}} The text is grouped by speaker ({{join .Speakers ", "}}); labels are guessed from pauses and may be inaccurate.{{end}}

<transcript>
{{.Body}}
</transcript>

Write a short SUMMARY that covers:
1. Key points and topics
2. Agreements or decisions
3. Important conclusions
{{- if .Speakers}}
4. The contribution of each speaker

Organise the summary as one section per speaker, each starting with the speaker label in bold.{{end}}
Be brief but informative. At most 300 words.`))

var tasksTmpl = template.Must(template.New("tasks").Parse(`Below is a transcribed voice message.

<transcript>
{{.Body}}
</transcript>

Extract EVERY task or action item that someone has to do. Look for direct requests,
commitments ("I will", "I need to"), plans ("we should") and deadlines.

Reply with one task per line and nothing else, exactly in this form:
- [Owner] task description (due: deadline)

Use the speaker label or name as Owner, or [Unassigned] when nobody is named.
Omit "(due: ...)" when there is no deadline.
If there are no tasks, reply with the single word NONE.`))

type promptData struct {
	Body     string
	Speakers []string
}

// Truncate cuts text to at most limit runes of original content and appends
// the truncation marker. It reports whether the text was cut.
func Truncate(text string, limit int) (string, bool) {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text, false
	}
	n := 0
	for i := range text {
		if n == limit {
			return strings.TrimRight(text[:i], " \t\n") + "\n\n" + TruncationMarker, true
		}
		n++
	}
	return text, false
}

// groupedBody renders the transcript grouped by speaker label, in order of
// first appearance. Unlabeled transcripts are returned as plain text.
func groupedBody(t *transcript.Transcript) string {
	if !t.Labeled() {
		return t.Text
	}
	var b strings.Builder
	for i, sp := range t.Speakers() {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("### " + sp)
		for _, turn := range t.Turns() {
			if turn.Speaker != sp {
				continue
			}
			b.WriteString("\n")
			if t.HasTiming() {
				b.WriteString("[" + transcript.Clock(turn.Start) + "] ")
			}
			b.WriteString(turn.Text)
		}
	}
	return b.String()
}

func render(tmpl *template.Template, data promptData) (string, error) {
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
