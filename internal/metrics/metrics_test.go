package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordHelpers(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordEvent("discord", "audio")
	m.RecordEvent("discord", "audio")
	if got := testutil.ToFloat64(m.EventsTotal.WithLabelValues("discord", "audio")); got != 2 {
		t.Errorf("events = %v, want 2", got)
	}

	m.RecordSTT("openai", 1.5, "")
	m.RecordSTT("openai", 0.2, "transient")
	if got := testutil.ToFloat64(m.STTErrors.WithLabelValues("openai", "transient")); got != 1 {
		t.Errorf("stt errors = %v, want 1", got)
	}

	m.RecordPublish("kafka", "transcript.ready", nil)
	m.RecordPublish("kafka", "transcript.ready", errors.New("broker down"))
	if got := testutil.ToFloat64(m.EventPublishTotal.WithLabelValues("kafka", "transcript.ready")); got != 2 {
		t.Errorf("publish total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.EventPublishErrors.WithLabelValues("kafka", "transcript.ready")); got != 1 {
		t.Errorf("publish errors = %v, want 1", got)
	}
}

func TestSeparateRegistries(t *testing.T) {
	// Registering twice on fresh registries must not panic.
	a := NewMetrics(prometheus.NewRegistry())
	b := NewMetrics(prometheus.NewRegistry())
	a.Transcripts.Inc()
	if testutil.ToFloat64(b.Transcripts) != 0 {
		t.Error("registries share state")
	}
}
