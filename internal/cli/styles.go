package cli

import "github.com/charmbracelet/lipgloss"

const (
	Logo    = "🎙️"
	Version = "0.1.0"
)

var (
	Accent = lipgloss.Color("#FFB347")
	Subtle = lipgloss.Color("#5C5C5C")
	Green  = lipgloss.Color("#04B575")
	Red    = lipgloss.Color("#FF4444")

	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(Accent)
	BoldStyle  = lipgloss.NewStyle().Bold(true)
	BotLabel   = lipgloss.NewStyle().Bold(true).Foreground(Accent)
	UserLabel  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#AAAAAA"))
	ErrStyle   = lipgloss.NewStyle().Foreground(Red)
	OkStyle    = lipgloss.NewStyle().Foreground(Green).Bold(true)
	DimStyle   = lipgloss.NewStyle().Foreground(Subtle)
	MenuStyle  = lipgloss.NewStyle().Foreground(Accent).Italic(true)
)

func StatusBadge(ok bool) string {
	if ok {
		return OkStyle.Render("✓")
	}
	return DimStyle.Render("✗")
}

// Item renders an indented "✓ label detail" line for startup and status output.
func Item(ok bool, label, detail string) string {
	line := "  " + StatusBadge(ok) + " " + label
	if detail != "" {
		line += " " + DimStyle.Render(detail)
	}
	return line
}

// Fail renders an error line.
func Fail(err error) string {
	return "  " + ErrStyle.Render("Error: "+err.Error())
}
