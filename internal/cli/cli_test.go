package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/joebot/voxbrief/internal/bus"
	"github.com/joebot/voxbrief/internal/format"
	"github.com/joebot/voxbrief/internal/summary"
)

func TestParseInput(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "note.ogg")
	if err := os.WriteFile(file, []byte("OggS-data"), 0o644); err != nil {
		t.Fatal(err)
	}
	menu := format.RenderMenu("sid", summary.ModeTasks, summary.ModeStats)

	tests := []struct {
		name  string
		input string
		menu  *format.Menu
		kind  bus.Kind
		token string
		err   bool
	}{
		{"command", "/help", nil, bus.KindText, "", false},
		{"command with args", "/stats now", nil, bus.KindText, "", false},
		{"number follows menu order", "1", menu, bus.KindButton, "vb:tasks:sid", false},
		{"mode name", "Summary", menu, bus.KindButton, "vb:summary:sid", false},
		{"number past menu", "3", menu, bus.KindAudio, "", true},
		{"button without menu", "2", nil, "", "", true},
		{"absolute path", file, nil, bus.KindAudio, "", false},
		{"quoted path", `"` + file + `"`, nil, bus.KindAudio, "", false},
		{"missing file", filepath.Join(dir, "nope.mp3"), nil, "", "", true},
		{"directory", dir, nil, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := parseInput(tt.input, tt.menu)
			if tt.err {
				if err == nil {
					t.Fatalf("expected error, got %+v", ev)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if ev.Kind != tt.kind || ev.Token != tt.token || ev.Channel != ChannelName {
				t.Errorf("event = %+v", ev)
			}
		})
	}
}

func TestParseInputWithoutMenu(t *testing.T) {
	_, err := parseInput("tasks", nil)
	if !errors.Is(err, errNoMenu) {
		t.Errorf("err = %v", err)
	}
	if ev, err := parseInput("   ", nil); ev != nil || err != nil {
		t.Errorf("blank input = %+v, %v", ev, err)
	}
}

func TestFileEventReadsLazily(t *testing.T) {
	file := filepath.Join(t.TempDir(), "memo.wav")
	if err := os.WriteFile(file, []byte("RIFF1234WAVE"), 0o644); err != nil {
		t.Fatal(err)
	}
	ev, err := fileEvent(file)
	if err != nil {
		t.Fatal(err)
	}
	if ev.Audio.Filename != "memo.wav" || ev.Audio.DeclaredSize != 12 || ev.Audio.Data != nil {
		t.Errorf("audio = %+v", ev.Audio)
	}
	data, err := ev.Audio.Fetch(context.Background())
	if err != nil || string(data) != "RIFF1234WAVE" {
		t.Errorf("fetch = %q, %v", data, err)
	}
}

type scriptedHandler struct {
	events []*bus.Event
}

func (h *scriptedHandler) Handle(_ context.Context, ev *bus.Event) []*bus.Reply {
	h.events = append(h.events, ev)
	if ev.Kind == bus.KindAudio {
		return []*bus.Reply{{Chunks: []string{"transcript"}, Menu: format.RenderMenu("s1")}}
	}
	return []*bus.Reply{{Chunks: []string{"result for " + ev.Token}, Menu: format.RenderMenu("s1")}}
}

func TestProcessFilePressesMode(t *testing.T) {
	file := filepath.Join(t.TempDir(), "a.ogg")
	os.WriteFile(file, []byte("OggS"), 0o644)
	h := &scriptedHandler{}

	replies, err := processFile(context.Background(), h, file, summary.ModeTasks)
	if err != nil {
		t.Fatal(err)
	}
	if len(h.events) != 2 || h.events[1].Token != "vb:tasks:s1" {
		t.Fatalf("events = %+v", h.events)
	}
	if len(replies) != 2 || replies[1].Text() != "result for vb:tasks:s1" {
		t.Errorf("replies = %+v", replies)
	}

	h = &scriptedHandler{}
	replies, _ = processFile(context.Background(), h, file, "")
	if len(h.events) != 1 || len(replies) != 1 {
		t.Errorf("without mode: events = %d, replies = %d", len(h.events), len(replies))
	}
}

func TestSubmitRemembersMenu(t *testing.T) {
	h := &scriptedHandler{}
	m := newTryModel(context.Background(), h, TryConfig{})
	file := filepath.Join(t.TempDir(), "a.ogg")
	os.WriteFile(file, []byte("OggS"), 0o644)

	next, cmd := m.submit(file)
	m = next.(tryModel)
	if !m.waiting || cmd == nil {
		t.Fatal("submit did not start a request")
	}
	next, _ = m.Update(cmd())
	m = next.(tryModel)
	if m.waiting || m.menu == nil || m.menu.SessionID != "s1" {
		t.Fatalf("menu not remembered: %+v", m.menu)
	}

	next, cmd = m.submit("3")
	m = next.(tryModel)
	m.Update(cmd())
	if got := h.events[len(h.events)-1].Token; got != "vb:tasks:s1" {
		t.Errorf("token = %q", got)
	}
}

func TestRenderMenu(t *testing.T) {
	got := renderMenu(format.RenderMenu("x", summary.ModeSummary, summary.ModeStats))
	if !strings.Contains(got, "[1] 📋 Summary") || !strings.Contains(got, "[2] 📊 Stats") {
		t.Errorf("menu = %q", got)
	}
}

func TestWriteIfMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", ".env")
	created, err := writeIfMissing(path, "A=1\n")
	if err != nil || !created {
		t.Fatalf("created = %v, err = %v", created, err)
	}
	created, _ = writeIfMissing(path, "B=2\n")
	data, _ := os.ReadFile(path)
	if created || string(data) != "A=1\n" {
		t.Errorf("existing file overwritten: %q", data)
	}
	if info, _ := os.Stat(path); info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v", info.Mode())
	}
}

func TestPickerWrapsAndCancels(t *testing.T) {
	p := newPicker("pick", option{label: "a"}, option{label: "b"})
	var m tea.Model = p
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	if got := m.(picker).cursor; got != 1 {
		t.Fatalf("cursor = %d, want wrap to 1", got)
	}
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if got := m.(picker); got.picked != 1 || !got.done {
		t.Errorf("picked = %d", got.picked)
	}

	m, _ = tea.Model(p).Update(tea.KeyMsg{Type: tea.KeyEsc})
	if got := m.(picker); got.picked != -1 || !got.done {
		t.Errorf("cancel picked = %d", got.picked)
	}
}

func TestItem(t *testing.T) {
	if got := Item(false, "Discord", "(not enabled)"); !strings.Contains(got, "Discord") || !strings.Contains(got, "(not enabled)") {
		t.Errorf("item = %q", got)
	}
}
