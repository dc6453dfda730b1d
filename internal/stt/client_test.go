package stt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joebot/voxbrief/internal/audio"
	"github.com/joebot/voxbrief/internal/fault"
	"github.com/joebot/voxbrief/internal/metrics"
	"github.com/joebot/voxbrief/internal/retry"
	"github.com/joebot/voxbrief/internal/transcript"
)

type fakeBackend struct {
	calls   int
	errs    []error
	result  *Result
	lastReq Request
	block   bool
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Transcribe(ctx context.Context, req Request) (*Result, error) {
	f.calls++
	f.lastReq = req
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if len(f.errs) >= f.calls && f.errs[f.calls-1] != nil {
		return nil, f.errs[f.calls-1]
	}
	return f.result, nil
}

func testClient(b Backend, timeout time.Duration) *Client {
	return NewClient(b, Options{
		Timeout: timeout,
		Policy:  retry.Once(0),
		Metrics: metrics.NewMetrics(prometheus.NewRegistry()),
	})
}

func payload() *audio.Payload {
	return &audio.Payload{Data: []byte("OggS...."), MIME: "audio/ogg", Format: audio.FormatOGG, Size: 8, Filename: "voice.ogg"}
}

func twoSpeakerResult() *Result {
	return &Result{
		Text:     "Hello there. Hi, good morning.",
		Language: "en",
		Segments: []transcript.Segment{
			{Text: "Hello there.", Start: 0, End: 2 * time.Second, HasTiming: true, SpeakerHint: transcript.NoHint},
			{Text: "Hi, good morning.", Start: 5 * time.Second, End: 7 * time.Second, HasTiming: true, SpeakerHint: transcript.NoHint},
		},
	}
}

func TestTranscribeRetriesTransientOnce(t *testing.T) {
	b := &fakeBackend{
		errs:   []error{fault.Transientf(fault.ReasonRateLimited, "fake", "429")},
		result: twoSpeakerResult(),
	}
	tr, err := testClient(b, time.Second).Transcribe(context.Background(), payload(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.calls != 2 {
		t.Errorf("calls = %d, want 2", b.calls)
	}
	if got := tr.Speakers(); len(got) != 2 {
		t.Errorf("speakers = %v", got)
	}
	if tr.Language != "en" {
		t.Errorf("language = %q", tr.Language)
	}
}

func TestTranscribePermanentNotRetried(t *testing.T) {
	b := &fakeBackend{errs: []error{fault.Permanentf(fault.ReasonQuota, "fake", "quota")}}
	_, err := testClient(b, time.Second).Transcribe(context.Background(), payload(), "")
	if fault.KindOf(err) != fault.Permanent || fault.ReasonOf(err) != fault.ReasonQuota {
		t.Fatalf("err = %v", err)
	}
	if b.calls != 1 {
		t.Errorf("calls = %d, want 1", b.calls)
	}
}

func TestTranscribeGivesUpAfterSecondTransient(t *testing.T) {
	transient := fault.Transientf(fault.ReasonUnavailable, "fake", "503")
	b := &fakeBackend{errs: []error{transient, transient, nil}, result: twoSpeakerResult()}
	_, err := testClient(b, time.Second).Transcribe(context.Background(), payload(), "")
	if fault.KindOf(err) != fault.Transient {
		t.Fatalf("err = %v", err)
	}
	if b.calls != 2 {
		t.Errorf("calls = %d, want 2", b.calls)
	}
}

func TestTranscribeTimeoutIsTransient(t *testing.T) {
	b := &fakeBackend{block: true}
	_, err := testClient(b, 10*time.Millisecond).Transcribe(context.Background(), payload(), "")
	if fault.KindOf(err) != fault.Transient || fault.ReasonOf(err) != fault.ReasonTimeout {
		t.Fatalf("err = %v", err)
	}
	if b.calls != 2 {
		t.Errorf("calls = %d, want 2", b.calls)
	}
}

func TestTranscribeWithoutSegments(t *testing.T) {
	b := &fakeBackend{result: &Result{Text: "  a single block  "}}
	tr, err := testClient(b, time.Second).Transcribe(context.Background(), payload(), "de")
	if err != nil {
		t.Fatal(err)
	}
	if tr.Labeled() || tr.Text != "a single block" {
		t.Errorf("transcript = %+v", tr)
	}
	if b.lastReq.Language != "de" || b.lastReq.Filename != "voice.ogg" {
		t.Errorf("request = %+v", b.lastReq)
	}
	if tr.Language != "de" {
		t.Errorf("language = %q", tr.Language)
	}
}

func TestTranscribeEmptyResultIsInvalidAudio(t *testing.T) {
	b := &fakeBackend{result: &Result{Text: "   "}}
	_, err := testClient(b, time.Second).Transcribe(context.Background(), payload(), "")
	if fault.ReasonOf(err) != fault.ReasonInvalidAudio {
		t.Fatalf("err = %v", err)
	}
}

func TestTranscribeRejectsEmptyPayload(t *testing.T) {
	b := &fakeBackend{}
	_, err := testClient(b, time.Second).Transcribe(context.Background(), &audio.Payload{}, "")
	if fault.KindOf(err) != fault.Validation {
		t.Fatalf("err = %v", err)
	}
	if b.calls != 0 {
		t.Errorf("backend called %d times", b.calls)
	}
}

func TestNormalizeKeepsClassified(t *testing.T) {
	orig := fault.Permanentf(fault.ReasonInvalidAudio, "x", "bad")
	if got := normalize(context.Background(), orig); !errors.Is(got, orig) {
		t.Errorf("normalize changed a classified error: %v", got)
	}
	if got := normalize(context.Background(), context.DeadlineExceeded); fault.ReasonOf(got) != fault.ReasonTimeout {
		t.Errorf("deadline not mapped: %v", got)
	}
}
