package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/joebot/voxbrief/internal/config"
)

const envTemplate = `# voxbrief secrets. Values already set in the environment win.
DISCORD_TOKEN=
OPENROUTER_API_KEY=
OPENAI_API_KEY=
ANTHROPIC_API_KEY=
# GOOGLE_APPLICATION_CREDENTIALS=/path/to/service-account.json
# KAFKA_BROKERS=localhost:9092
# REDIS_ADDR=localhost:6379
`

// option is one entry of a picker.
type option struct {
	label string
	hint  string
	run   func() (string, error)
}

// picker asks the user to choose one option. A cancelled picker has
// picked < 0.
type picker struct {
	title   string
	options []option
	cursor  int
	picked  int
	done    bool
}

func newPicker(title string, options ...option) picker {
	return picker{title: title, options: options, picked: -1}
}

func (m picker) Init() tea.Cmd { return nil }

func (m picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "ctrl+c", "esc", "q":
		m.done = true
		return m, tea.Quit
	case "up", "k", "shift+tab":
		m.cursor = (m.cursor + len(m.options) - 1) % len(m.options)
	case "down", "j", "tab":
		m.cursor = (m.cursor + 1) % len(m.options)
	case "enter":
		m.picked = m.cursor
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m picker) View() string {
	if m.done {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n  " + m.title + "\n\n")
	for i, o := range m.options {
		line := "    " + o.label
		if i == m.cursor {
			line = "  " + BotLabel.Render("❯ ") + BoldStyle.Render(o.label)
		}
		sb.WriteString(line + "  " + DimStyle.Render(o.hint) + "\n")
	}
	sb.WriteString("\n" + DimStyle.Render("  ↑/↓ move · enter select · esc cancel") + "\n")
	return sb.String()
}

// RunOnboard creates or upgrades the config file and the .env template.
func RunOnboard() error {
	cfgPath := config.ConfigPath()

	fmt.Println()
	fmt.Println(TitleStyle.Render(fmt.Sprintf("  %s voxbrief Onboard", Logo)))

	create := func() (string, error) {
		return "Wrote config to " + cfgPath, config.Save(config.DefaultConfig())
	}
	action := create
	if _, err := os.Stat(cfgPath); err == nil {
		p := newPicker("Config already exists at "+DimStyle.Render(cfgPath),
			option{"Upgrade", "add new fields, keep existing values", func() (string, error) {
				_, err := config.Upgrade()
				return "Upgraded config", err
			}},
			option{"Overwrite", "replace with fresh defaults", create},
			option{"Skip", "leave the config alone", nil},
		)
		final, err := tea.NewProgram(p).Run()
		if err != nil {
			return err
		}
		action = nil
		if picked := final.(picker).picked; picked >= 0 {
			action = p.options[picked].run
		}
	}

	fmt.Println()
	if action == nil {
		fmt.Println("  " + DimStyle.Render("Config unchanged"))
	} else {
		msg, err := action()
		if err != nil {
			return err
		}
		fmt.Println(Item(true, msg, ""))
	}

	envPath := filepath.Join(config.DataDir(), ".env")
	created, err := writeIfMissing(envPath, envTemplate)
	if err != nil {
		return err
	}
	if created {
		fmt.Println(Item(true, "Created", envPath))
	}

	fmt.Println()
	fmt.Println(OkStyle.Render("  voxbrief is ready!"))
	fmt.Println()
	for i, step := range []string{
		"Put your Discord token and an API key in " + envPath,
		"Try it locally: voxbrief try ./meeting.ogg summary",
		"Run the bot: voxbrief gateway",
	} {
		fmt.Println(DimStyle.Render(fmt.Sprintf("  %d. %s", i+1, step)))
	}
	fmt.Println()
	return nil
}

// writeIfMissing creates path with content unless it exists. Secrets live
// there, so the file is private to the user.
func writeIfMissing(path, content string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return false, err
	}
	return true, nil
}
