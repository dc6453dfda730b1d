package bot

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joebot/voxbrief/internal/audio"
	"github.com/joebot/voxbrief/internal/bus"
	"github.com/joebot/voxbrief/internal/fault"
	"github.com/joebot/voxbrief/internal/format"
	"github.com/joebot/voxbrief/internal/metrics"
	"github.com/joebot/voxbrief/internal/retry"
	"github.com/joebot/voxbrief/internal/session"
	"github.com/joebot/voxbrief/internal/stt"
	"github.com/joebot/voxbrief/internal/summary"
	"github.com/joebot/voxbrief/internal/transcript"
)

var oggBytes = append([]byte("OggS"), make([]byte, 64)...)

// fakeBackend returns queued results; each call pops one.
type fakeBackend struct {
	mu      sync.Mutex
	calls   int
	errs    []error
	text    string
	gate    map[string]chan struct{} // filename -> release
	entered chan string
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Transcribe(ctx context.Context, req stt.Request) (*stt.Result, error) {
	f.mu.Lock()
	f.calls++
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	gate := f.gate[req.Filename]
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- req.Filename
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	text := f.text
	if text == "" {
		text = "hello from " + req.Filename
	}
	return &stt.Result{Text: text, Segments: []transcript.Segment{
		{Text: text, Start: 0, End: 3 * time.Second, HasTiming: true, SpeakerHint: transcript.NoHint},
	}}, nil
}

func (f *fakeBackend) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeEngine struct {
	mu      sync.Mutex
	calls   int
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeEngine) Process(_ context.Context, t *transcript.Transcript, mode summary.Mode) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return "", f.err
	}
	return "result of " + string(mode) + ": " + t.Text, nil
}

type harness struct {
	o       *Orchestrator
	backend *fakeBackend
	engine  *fakeEngine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	m := metrics.NewMetrics(prometheus.NewRegistry())
	backend := &fakeBackend{}
	engine := &fakeEngine{}
	client := stt.NewClient(backend, stt.Options{Policy: retry.Once(0), Metrics: m})
	o := New(Config{
		Ingestor:    audio.NewIngestor(20<<20, nil),
		Transcriber: client,
		Engine:      engine,
		Sessions:    session.NewManager(time.Hour, time.Minute).WithMetrics(m),
		Metrics:     m,
	})
	return &harness{o: o, backend: backend, engine: engine}
}

func audioEvent(name string, at time.Time) *bus.Event {
	return &bus.Event{
		Channel:    "test",
		ChatID:     "chat",
		UserID:     "user",
		Kind:       bus.KindAudio,
		Audio:      &audio.Inbound{Filename: name, MIME: "audio/ogg", Data: oggBytes},
		ReceivedAt: at,
	}
}

func buttonEvent(token string) *bus.Event {
	return &bus.Event{Channel: "test", ChatID: "chat", UserID: "user", Kind: bus.KindButton, Token: token}
}

const testKey = "chat:user"

// presentMenu runs one successful transcription and returns the menu.
func (h *harness) presentMenu(t *testing.T) *format.Menu {
	t.Helper()
	replies := h.o.Handle(context.Background(), audioEvent("a.ogg", time.Now()))
	if len(replies) != 1 || replies[0].Menu == nil {
		t.Fatalf("replies = %+v", replies)
	}
	return replies[0].Menu
}

func tokenFor(menu *format.Menu, mode summary.Mode) string {
	return format.Token(mode, menu.SessionID)
}

func TestOversizedAudioRejectedBeforeTranscription(t *testing.T) {
	h := newHarness(t)
	var fetched atomic.Int32
	ev := audioEvent("big.ogg", time.Now())
	ev.Audio = &audio.Inbound{
		Filename:     "big.ogg",
		MIME:         "audio/ogg",
		DeclaredSize: 25 << 20,
		Fetch: func(context.Context) ([]byte, error) {
			fetched.Add(1)
			return oggBytes, nil
		},
	}
	replies := h.o.Handle(context.Background(), ev)
	if len(replies) != 1 {
		t.Fatalf("replies = %d, want 1", len(replies))
	}
	if !strings.Contains(replies[0].Text(), "too large") {
		t.Errorf("reply = %q", replies[0].Text())
	}
	if replies[0].Menu != nil {
		t.Error("rejection should not carry a menu")
	}
	if h.backend.Calls() != 0 || fetched.Load() != 0 {
		t.Errorf("calls = %d, fetched = %d", h.backend.Calls(), fetched.Load())
	}
	if st := h.o.State(testKey); st.Phase != Idle {
		t.Errorf("state = %s", st)
	}
}

func TestRejectionKeepsPreviousState(t *testing.T) {
	h := newHarness(t)
	h.presentMenu(t)
	ev := audioEvent("notes.txt", time.Now())
	ev.Audio = &audio.Inbound{Filename: "notes.txt", MIME: "text/plain", Data: []byte("not audio")}
	replies := h.o.Handle(context.Background(), ev)
	if len(replies) != 1 || !strings.Contains(replies[0].Text(), "Unsupported") {
		t.Fatalf("replies = %+v", replies)
	}
	if st := h.o.State(testKey); st.Phase != MenuPresented {
		t.Errorf("state = %s, want menu_presented", st)
	}
}

func TestAudioPresentsMenu(t *testing.T) {
	h := newHarness(t)
	menu := h.presentMenu(t)
	if len(menu.Buttons) != len(summary.Modes) {
		t.Errorf("buttons = %d", len(menu.Buttons))
	}
	if st := h.o.State(testKey); st.Phase != MenuPresented {
		t.Errorf("state = %s", st)
	}
	if _, err := h.o.Sessions().Lookup(testKey, menu.SessionID); err != nil {
		t.Errorf("lookup: %v", err)
	}
}

func TestTransientTranscriptionFailureRetriedOnce(t *testing.T) {
	h := newHarness(t)
	h.backend.errs = []error{fault.Transientf(fault.ReasonRateLimited, "fake", "429")}
	h.presentMenu(t)
	if h.backend.Calls() != 2 {
		t.Errorf("calls = %d, want 2", h.backend.Calls())
	}
}

func TestTranscriptionFailureRepliesOnceAndGoesIdle(t *testing.T) {
	h := newHarness(t)
	h.backend.errs = []error{fault.Permanentf(fault.ReasonInvalidAudio, "fake", "bad audio")}
	replies := h.o.Handle(context.Background(), audioEvent("a.ogg", time.Now()))
	if len(replies) != 1 || replies[0].Menu != nil {
		t.Fatalf("replies = %+v", replies)
	}
	if !strings.Contains(replies[0].Text(), "could not be recognized") {
		t.Errorf("reply = %q", replies[0].Text())
	}
	if h.backend.Calls() != 1 {
		t.Errorf("calls = %d, permanent errors must not retry", h.backend.Calls())
	}
	if st := h.o.State(testKey); st.Phase != Idle {
		t.Errorf("state = %s", st)
	}
}

func TestExpiredSessionAsksForAudio(t *testing.T) {
	h := newHarness(t)
	menu := h.presentMenu(t)
	h.o.Sessions().Sweep(time.Now().Add(2 * time.Hour))

	replies := h.o.Handle(context.Background(), buttonEvent(tokenFor(menu, summary.ModeSummary)))
	if len(replies) != 1 || replies[0].Text() != ExpiredMessage {
		t.Fatalf("replies = %+v", replies)
	}
	if h.engine.calls != 0 {
		t.Error("engine called for an expired session")
	}
	if st := h.o.State(testKey); st.Phase != Idle {
		t.Errorf("state = %s, want idle", st)
	}
}

func TestStaleMenuReportsExpired(t *testing.T) {
	h := newHarness(t)
	old := h.presentMenu(t)
	h.presentMenu(t)
	replies := h.o.Handle(context.Background(), buttonEvent(tokenFor(old, summary.ModeStats)))
	if len(replies) != 1 || replies[0].Text() != ExpiredMessage {
		t.Fatalf("replies = %+v", replies)
	}
}

func TestButtonRunsModeAndKeepsMenu(t *testing.T) {
	h := newHarness(t)
	menu := h.presentMenu(t)

	replies := h.o.Handle(context.Background(), buttonEvent(tokenFor(menu, summary.ModeSummary)))
	if len(replies) != 1 {
		t.Fatalf("replies = %d", len(replies))
	}
	r := replies[0]
	if !strings.HasPrefix(r.Text(), "result of summary") {
		t.Errorf("text = %q", r.Text())
	}
	if r.Menu == nil || r.Menu.SessionID != menu.SessionID {
		t.Errorf("menu = %+v", r.Menu)
	}
	if st := h.o.State(testKey); st.Phase != MenuPresented {
		t.Errorf("state = %s", st)
	}
	if info := h.o.Sessions().Info(testKey); info.Processed != 1 {
		t.Errorf("processed = %d", info.Processed)
	}
}

func TestLocalModesSkipEngine(t *testing.T) {
	h := newHarness(t)
	menu := h.presentMenu(t)
	for _, mode := range []summary.Mode{summary.ModeStats, summary.ModeFullText} {
		replies := h.o.Handle(context.Background(), buttonEvent(tokenFor(menu, mode)))
		if len(replies) != 1 || replies[0].Menu == nil {
			t.Fatalf("%s: replies = %+v", mode, replies)
		}
	}
	if h.engine.calls != 0 {
		t.Errorf("engine calls = %d", h.engine.calls)
	}
}

func TestActionFailureKeepsMenu(t *testing.T) {
	h := newHarness(t)
	menu := h.presentMenu(t)
	h.engine.err = fault.Permanentf(fault.ReasonQuota, "fake", "quota exceeded")

	replies := h.o.Handle(context.Background(), buttonEvent(tokenFor(menu, summary.ModeTasks)))
	if len(replies) != 1 {
		t.Fatalf("replies = %d", len(replies))
	}
	if !strings.Contains(replies[0].Text(), "quota") || strings.Contains(replies[0].Text(), "exceeded") {
		t.Errorf("text = %q", replies[0].Text())
	}
	if replies[0].Menu == nil {
		t.Error("menu dropped after failure")
	}
	if st := h.o.State(testKey); st.Phase != MenuPresented {
		t.Errorf("state = %s", st)
	}
}

func TestLongResultIsChunked(t *testing.T) {
	h := newHarness(t)
	h.backend.text = strings.Repeat("word ", 1000)
	menu := h.presentMenu(t)
	replies := h.o.Handle(context.Background(), buttonEvent(tokenFor(menu, summary.ModeFullText)))
	r := replies[0]
	if len(r.Chunks) < 2 {
		t.Fatalf("chunks = %d", len(r.Chunks))
	}
	for i, c := range r.Chunks {
		if len([]rune(c)) > format.DefaultLimit {
			t.Errorf("chunk %d has %d runes", i, len([]rune(c)))
		}
	}
}

func TestSupersededTranscriptDiscarded(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	h.backend.gate = map[string]chan struct{}{"first.ogg": release}
	h.backend.entered = make(chan string, 2)

	t0 := time.Now()
	first := make(chan []*bus.Reply, 1)
	go func() {
		first <- h.o.Handle(context.Background(), audioEvent("first.ogg", t0))
	}()
	<-h.backend.entered
	if st := h.o.State(testKey); st.Phase != AwaitingTranscription {
		t.Errorf("state = %s, want awaiting_transcription", st)
	}

	second := h.o.Handle(context.Background(), audioEvent("second.ogg", t0.Add(time.Second)))
	<-h.backend.entered
	if len(second) != 1 || second[0].Menu == nil {
		t.Fatalf("second replies = %+v", second)
	}
	close(release)

	select {
	case replies := <-first:
		if len(replies) != 0 {
			t.Errorf("superseded result produced replies: %+v", replies)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first transcription never finished")
	}

	s, err := h.o.Sessions().Get(testKey)
	if err != nil {
		t.Fatal(err)
	}
	if s.ID != second[0].Menu.SessionID || !strings.Contains(s.Transcript.Text, "second.ogg") {
		t.Errorf("session holds %q", s.Transcript.Text)
	}
	if st := h.o.State(testKey); st.Phase != MenuPresented {
		t.Errorf("state = %s", st)
	}
}

func TestSupersededFailureStaysSilent(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	h.backend.gate = map[string]chan struct{}{"first.ogg": release}
	h.backend.entered = make(chan string, 2)
	h.backend.errs = []error{fault.Permanentf(fault.ReasonInvalidAudio, "fake", "bad audio")}

	t0 := time.Now()
	first := make(chan []*bus.Reply, 1)
	go func() {
		first <- h.o.Handle(context.Background(), audioEvent("first.ogg", t0))
	}()
	<-h.backend.entered

	second := h.o.Handle(context.Background(), audioEvent("second.ogg", t0.Add(time.Second)))
	<-h.backend.entered
	if len(second) != 1 || second[0].Menu == nil {
		t.Fatalf("second replies = %+v", second)
	}
	close(release)

	select {
	case replies := <-first:
		if len(replies) != 0 {
			t.Errorf("failure of older audio produced replies: %+v", replies)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first transcription never finished")
	}
	if st := h.o.State(testKey); st.Phase != MenuPresented {
		t.Errorf("state = %s, want menu_presented", st)
	}
	if _, live := h.o.Sessions().Peek(testKey); !live {
		t.Error("newer session lost")
	}
}

func TestSweepReturnsKeyToIdle(t *testing.T) {
	h := newHarness(t)
	h.presentMenu(t)
	if st := h.o.State(testKey); st.Phase != MenuPresented {
		t.Fatalf("state = %s", st)
	}
	h.o.Sessions().Sweep(time.Now().Add(2 * time.Hour))

	if st := h.o.State(testKey); st.Phase != Idle {
		t.Errorf("state = %s, want idle", st)
	}
	if n := h.o.Keys(); n != 0 {
		t.Errorf("tracked keys = %d after expiry", n)
	}
}

func TestFailedKeysAreNotRetained(t *testing.T) {
	h := newHarness(t)
	h.backend.errs = []error{fault.Permanentf(fault.ReasonInvalidAudio, "fake", "bad audio")}
	h.o.Handle(context.Background(), audioEvent("a.ogg", time.Now()))
	if n := h.o.Keys(); n != 0 {
		t.Errorf("tracked keys = %d", n)
	}
	h.presentMenu(t)
	if n := h.o.Keys(); n != 1 {
		t.Errorf("tracked keys = %d with a live session", n)
	}
}

func TestCommitWaitsForRunningAction(t *testing.T) {
	h := newHarness(t)
	menu := h.presentMenu(t)
	h.engine.started = make(chan struct{}, 1)
	h.engine.release = make(chan struct{})

	done := make(chan []*bus.Reply, 1)
	go func() {
		done <- h.o.Handle(context.Background(), buttonEvent(tokenFor(menu, summary.ModeSummary)))
	}()
	<-h.engine.started
	if st := h.o.State(testKey); st.Phase != Processing || st.Mode != summary.ModeSummary {
		t.Errorf("state = %s, want processing(summary)", st)
	}

	committed := make(chan []*bus.Reply, 1)
	go func() {
		committed <- h.o.Handle(context.Background(), audioEvent("b.ogg", time.Now()))
	}()
	select {
	case <-committed:
		t.Fatal("new transcript committed while an action was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(h.engine.release)
	replies := <-done
	if !strings.Contains(replies[0].Text(), "a.ogg") {
		t.Errorf("action saw %q", replies[0].Text())
	}
	if r := <-committed; len(r) != 1 || r[0].Menu == nil {
		t.Errorf("commit replies = %+v", r)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	h := newHarness(t)
	var wg sync.WaitGroup
	for _, chat := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ev := audioEvent("x.ogg", time.Now())
			ev.ChatID = chat
			if r := h.o.Handle(context.Background(), ev); len(r) != 1 || r[0].Menu == nil {
				t.Errorf("chat %s: replies = %+v", chat, r)
			}
		}()
	}
	wg.Wait()
	if n := h.o.Sessions().Len(); n != 4 {
		t.Errorf("sessions = %d", n)
	}
}

func TestTextCommands(t *testing.T) {
	h := newHarness(t)
	text := func(s string) string {
		ev := &bus.Event{Channel: "test", ChatID: "chat", UserID: "user", Kind: bus.KindText, Text: s}
		replies := h.o.Handle(context.Background(), ev)
		if len(replies) != 1 {
			t.Fatalf("%q: replies = %d", s, len(replies))
		}
		return replies[0].Text()
	}
	if got := text("/start"); !strings.Contains(got, "voice messages") {
		t.Errorf("/start = %q", got)
	}
	if got := text("/help@voxbrief"); !strings.Contains(got, "20 MB") {
		t.Errorf("/help = %q", got)
	}
	if got := text("hello"); got != sendAudioText {
		t.Errorf("plain text = %q", got)
	}
	if got := text("/stats"); !strings.Contains(got, "Transcript: none") {
		t.Errorf("/stats = %q", got)
	}
	h.presentMenu(t)
	if got := text("/stats"); !strings.Contains(got, "Transcript: active") {
		t.Errorf("/stats = %q", got)
	}
}

func TestInterimNotifications(t *testing.T) {
	h := newHarness(t)
	var mu sync.Mutex
	var interim []string
	h.o.notify = func(r *bus.Reply) {
		mu.Lock()
		defer mu.Unlock()
		interim = append(interim, r.Text())
	}
	menu := h.presentMenu(t)
	h.o.Handle(context.Background(), buttonEvent(tokenFor(menu, summary.ModeSummary)))
	h.o.Handle(context.Background(), buttonEvent(tokenFor(menu, summary.ModeStats)))
	if len(interim) != 2 {
		t.Fatalf("interim = %q", interim)
	}
	if !strings.Contains(interim[1], "Processing") {
		t.Errorf("interim = %q", interim)
	}
}

func TestBadTokenAndInteractionRef(t *testing.T) {
	h := newHarness(t)
	ev := buttonEvent("garbage")
	ev.Metadata = map[string]any{bus.MetaInteraction: "ix-1"}
	replies := h.o.Handle(context.Background(), ev)
	if len(replies) != 1 || replies[0].EditRef != "ix-1" {
		t.Fatalf("replies = %+v", replies)
	}
}

func TestStateString(t *testing.T) {
	if got := (State{Phase: Processing, Mode: summary.ModeTasks}).String(); got != "processing(tasks)" {
		t.Errorf("got %q", got)
	}
	if got := (State{}).String(); got != "idle" {
		t.Errorf("got %q", got)
	}
}
