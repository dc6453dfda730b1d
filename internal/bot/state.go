package bot

import (
	"sync"

	"github.com/joebot/voxbrief/internal/summary"
)

// Phase is the conversation phase of one (chat, user) key.
type Phase int

const (
	Idle Phase = iota
	AwaitingTranscription
	MenuPresented
	Processing
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case AwaitingTranscription:
		return "awaiting_transcription"
	case MenuPresented:
		return "menu_presented"
	case Processing:
		return "processing"
	}
	return "unknown"
}

// State is the observable state of a key. Mode is set while Processing.
type State struct {
	Phase Phase
	Mode  summary.Mode
}

func (s State) String() string {
	if s.Phase == Processing {
		return "processing(" + string(s.Mode) + ")"
	}
	return s.Phase.String()
}

// keyState tracks one key. commit serializes transcript commits against
// running actions so an action never sees a half-replaced session.
type keyState struct {
	commit sync.Mutex

	refs       int          // handlers holding this keyState
	inflight   int          // transcriptions running
	processing summary.Mode // action running, "" when none
	menu       bool         // a menu was shown for the current session
}

// state derives the phase. live reports whether the key's session is still
// in the store; a menu over an expired session is Idle. Caller holds
// Orchestrator.mu.
func (k *keyState) state(live bool) State {
	switch {
	case k.processing != "":
		return State{Phase: Processing, Mode: k.processing}
	case k.inflight > 0:
		return State{Phase: AwaitingTranscription}
	case k.menu && live:
		return State{Phase: MenuPresented}
	}
	return State{Phase: Idle}
}

// unused reports whether k can be dropped. Caller holds Orchestrator.mu.
func (k *keyState) unused(live bool) bool {
	return k.refs == 0 && k.inflight == 0 && k.processing == "" && !live
}
