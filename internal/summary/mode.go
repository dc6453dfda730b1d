package summary

import "strings"

// Mode is a follow-up action offered in the menu.
type Mode string

const (
	ModeSummary  Mode = "summary"
	ModeFullText Mode = "full_text"
	ModeTasks    Mode = "tasks"
	ModeStats    Mode = "stats"
)

// Modes lists every mode in menu order.
var Modes = []Mode{ModeSummary, ModeFullText, ModeTasks, ModeStats}

// ParseMode accepts a mode name, case-insensitively.
func ParseMode(s string) (Mode, bool) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Modes {
		if m == known {
			return m, true
		}
	}
	return "", false
}

// Label is the button caption.
func (m Mode) Label() string {
	switch m {
	case ModeSummary:
		return "📋 Summary"
	case ModeFullText:
		return "📝 Full text"
	case ModeTasks:
		return "✅ Tasks"
	case ModeStats:
		return "📊 Stats"
	}
	return string(m)
}

// Remote reports whether the mode needs the completion capability.
func (m Mode) Remote() bool {
	return m == ModeSummary || m == ModeTasks
}
