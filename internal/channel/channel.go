// Package channel adapts chat platforms to the message bus.
package channel

import (
	"context"
	"strings"

	"github.com/joebot/voxbrief/internal/bus"
)

// Channel is a chat platform integration. Inbound traffic is published on
// the bus; replies arrive through Send.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Send(ctx context.Context, r *bus.Reply) error
	// Check reports whether the platform connection is usable.
	Check(ctx context.Context) error
}

// AllowList is a set of user IDs permitted to talk to the bot. The zero
// value admits everyone.
type AllowList map[string]struct{}

// NewAllowList builds an allow list, ignoring blank entries.
func NewAllowList(ids []string) AllowList {
	var l AllowList
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if l == nil {
			l = make(AllowList, len(ids))
		}
		l[id] = struct{}{}
	}
	return l
}

// Permits reports whether userID may use the bot.
func (l AllowList) Permits(userID string) bool {
	if len(l) == 0 {
		return true
	}
	_, ok := l[userID]
	return ok
}
