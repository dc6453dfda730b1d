// Package format prepares bot output for a chat platform: size-bounded
// message chunks and the follow-up button menu.
package format

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultLimit is the Discord message limit.
	DefaultLimit = 2000
	// TelegramLimit is the Telegram-sized message limit.
	TelegramLimit = 4000
)

// Split breaks text into chunks of at most limit characters. It packs as
// much as fits and cuts at the last paragraph break, else line break, else
// sentence end, else space; a single word longer than the limit is cut at the
// limit. Chunks are contiguous: joining them yields text exactly.
func Split(text string, limit int) []string {
	if limit <= 0 {
		limit = DefaultLimit
	}
	var chunks []string
	for text != "" {
		if utf8.RuneCountInString(text) <= limit {
			chunks = append(chunks, text)
			break
		}
		cut := cutPoint(text, limit)
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	return chunks
}

// cutPoint returns the byte offset to cut text at, given that text is longer
// than limit runes.
func cutPoint(text string, limit int) int {
	window := prefixRunes(text, limit)
	head := text[:window]

	if i := strings.LastIndex(head, "\n\n"); i > 0 {
		return i + 2
	}
	if i := strings.LastIndex(head, "\n"); i > 0 {
		return i + 1
	}
	if i := lastSentenceEnd(head); i > 0 {
		return i
	}
	if i := strings.LastIndexAny(head, " \t"); i > 0 {
		return i + 1
	}
	return window
}

// prefixRunes returns the byte length of the first n runes of s.
func prefixRunes(s string, n int) int {
	count := 0
	for i := range s {
		if count == n {
			return i
		}
		count++
	}
	return len(s)
}

// lastSentenceEnd returns the offset just after the last ". ", "! " or "? "
// in s, or -1.
func lastSentenceEnd(s string) int {
	best := -1
	for _, sep := range []string{". ", "! ", "? ", "… "} {
		if i := strings.LastIndex(s, sep); i >= 0 && i+len(sep) > best {
			best = i + len(sep)
		}
	}
	return best
}
