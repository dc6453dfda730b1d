package format

import (
	"errors"
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/joebot/voxbrief/internal/summary"
)

func checkChunks(t *testing.T, text string, limit int, chunks []string) {
	t.Helper()
	if got := strings.Join(chunks, ""); got != text {
		t.Fatalf("join mismatch: %d chunks, joined %d bytes, want %d", len(chunks), len(got), len(text))
	}
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c); n > limit || n == 0 {
			t.Fatalf("chunk %d has %d runes (limit %d)", i, n, limit)
		}
	}
}

func TestSplitShortText(t *testing.T) {
	if got := Split("hello", 10); len(got) != 1 || got[0] != "hello" {
		t.Errorf("got %q", got)
	}
	if got := Split("", 10); len(got) != 0 {
		t.Errorf("empty text gave %q", got)
	}
}

func TestSplitPrefersParagraphs(t *testing.T) {
	text := "First paragraph here.\n\nSecond paragraph is here.\n\nThird."
	chunks := Split(text, 30)
	checkChunks(t, text, 30, chunks)
	if chunks[0] != "First paragraph here.\n\n" {
		t.Errorf("first chunk = %q", chunks[0])
	}
}

func TestSplitFallsBackToSentencesAndWords(t *testing.T) {
	text := "One sentence. Another sentence follows. And a third"
	chunks := Split(text, 25)
	checkChunks(t, text, 25, chunks)
	if chunks[0] != "One sentence. " {
		t.Errorf("first chunk = %q", chunks[0])
	}

	text = "alpha beta gamma delta epsilon"
	chunks = Split(text, 12)
	checkChunks(t, text, 12, chunks)
	if chunks[0] != "alpha beta " {
		t.Errorf("first chunk = %q", chunks[0])
	}
}

func TestSplitHardCutsLongWordRuneSafe(t *testing.T) {
	text := strings.Repeat("ж", 25)
	chunks := Split(text, 10)
	checkChunks(t, text, 10, chunks)
	if len(chunks) != 3 {
		t.Errorf("chunks = %d, want 3", len(chunks))
	}
}

func TestSplitRandomTexts(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	words := []string{"a", "word", "longerword", "ünïcödé", "🙂", "sentence.", "end!", "\n", "\n\n", " ", strings.Repeat("x", 40)}
	for iter := 0; iter < 200; iter++ {
		var b strings.Builder
		for n := rng.Intn(300); n > 0; n-- {
			b.WriteString(words[rng.Intn(len(words))])
			if rng.Intn(3) > 0 {
				b.WriteString(" ")
			}
		}
		text := b.String()
		limit := 5 + rng.Intn(100)
		checkChunks(t, text, limit, Split(text, limit))
	}
}

func TestTokenRoundTrip(t *testing.T) {
	id := "3f1c2a9e-8d7b-4c6a-9e5f-1a2b3c4d5e6f"
	menu := RenderMenu(id)
	if len(menu.Buttons) != len(summary.Modes) {
		t.Fatalf("buttons = %d", len(menu.Buttons))
	}
	for i, b := range menu.Buttons {
		if len(b.Token) > MaxTokenLen {
			t.Errorf("token too long: %q", b.Token)
		}
		mode, sid, err := ParseToken(b.Token)
		if err != nil || mode != summary.Modes[i] || sid != id {
			t.Errorf("ParseToken(%q) = %q, %q, %v", b.Token, mode, sid, err)
		}
	}
	if menu.Buttons[0].Label != "📋 Summary" {
		t.Errorf("label = %q", menu.Buttons[0].Label)
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	for _, tok := range []string{"", "vb", "vb:summary", "vb:summary:", "xx:summary:id", "vb:poem:id", "vb:stats:" + strings.Repeat("a", 100)} {
		if _, _, err := ParseToken(tok); !errors.Is(err, ErrBadToken) {
			t.Errorf("ParseToken(%q) err = %v", tok, err)
		}
	}
}

func TestNewReply(t *testing.T) {
	menu := RenderMenu("id", summary.ModeStats)
	r := NewReply(strings.Repeat("word ", 1000), DefaultLimit, menu)
	if len(r.Chunks) != 3 || r.Menu != menu {
		t.Errorf("chunks = %d", len(r.Chunks))
	}
}
