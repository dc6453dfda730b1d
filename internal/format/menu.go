package format

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joebot/voxbrief/internal/summary"
)

// TokenPrefix namespaces callback tokens of this bot.
const TokenPrefix = "vb"

// MaxTokenLen is the Discord custom_id limit.
const MaxTokenLen = 100

var ErrBadToken = errors.New("malformed callback token")

// Button is one menu entry.
type Button struct {
	Label string
	Token string
}

// Menu is the follow-up button row for one session.
type Menu struct {
	SessionID string
	Buttons   []Button
}

// RenderMenu builds the menu for sessionID. No modes means all modes.
func RenderMenu(sessionID string, modes ...summary.Mode) *Menu {
	if len(modes) == 0 {
		modes = summary.Modes
	}
	m := &Menu{SessionID: sessionID}
	for _, mode := range modes {
		m.Buttons = append(m.Buttons, Button{Label: mode.Label(), Token: Token(mode, sessionID)})
	}
	return m
}

// Token encodes a button press as "vb:<mode>:<sessionID>".
func Token(mode summary.Mode, sessionID string) string {
	return TokenPrefix + ":" + string(mode) + ":" + sessionID
}

// ParseToken decodes a callback token.
func ParseToken(token string) (summary.Mode, string, error) {
	if len(token) > MaxTokenLen {
		return "", "", fmt.Errorf("%w: too long", ErrBadToken)
	}
	parts := strings.SplitN(token, ":", 3)
	if len(parts) != 3 || parts[0] != TokenPrefix || parts[2] == "" {
		return "", "", ErrBadToken
	}
	mode, ok := summary.ParseMode(parts[1])
	if !ok {
		return "", "", fmt.Errorf("%w: unknown mode %q", ErrBadToken, parts[1])
	}
	return mode, parts[2], nil
}

// Reply is the formatted output of one bot action.
type Reply struct {
	Chunks []string
	Menu   *Menu
}

// NewReply splits text for the platform limit and attaches menu, which is
// shown after the last chunk.
func NewReply(text string, limit int, menu *Menu) *Reply {
	return &Reply{Chunks: Split(text, limit), Menu: menu}
}
