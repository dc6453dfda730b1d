package stt

import (
	"context"
	"fmt"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joebot/voxbrief/internal/audio"
	"github.com/joebot/voxbrief/internal/fault"
	"github.com/joebot/voxbrief/internal/transcript"
)

type recognizeFunc func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

// GoogleBackend transcribes with Google Cloud Speech-to-Text, using speaker
// diarization so turns come from the service instead of pause guessing.
type GoogleBackend struct {
	client       *speech.Client
	recognize    recognizeFunc
	languageCode string
	maxSpeakers  int32
}

// NewGoogleBackend creates the backend. Credentials come from Application
// Default Credentials (GOOGLE_APPLICATION_CREDENTIALS). maxSpeakers bounds
// diarization; zero keeps the default of 6.
func NewGoogleBackend(ctx context.Context, languageCode string, maxSpeakers int) (*GoogleBackend, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}
	g := newGoogleBackend(func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		return c.Recognize(ctx, req)
	}, languageCode)
	g.client = c
	if maxSpeakers > 0 {
		g.maxSpeakers = int32(maxSpeakers)
	}
	return g, nil
}

func newGoogleBackend(fn recognizeFunc, languageCode string) *GoogleBackend {
	if languageCode == "" {
		languageCode = "en-US"
	}
	return &GoogleBackend{recognize: fn, languageCode: languageCode, maxSpeakers: 6}
}

func (g *GoogleBackend) Name() string { return "google" }

// Close releases the gRPC connection.
func (g *GoogleBackend) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// Transcribe runs a synchronous Recognize call. Audio longer than about a
// minute is refused by the service with InvalidArgument.
func (g *GoogleBackend) Transcribe(ctx context.Context, req Request) (*Result, error) {
	lang := req.Language
	if lang == "" {
		lang = g.languageCode
	}
	cfg := &speechpb.RecognitionConfig{
		LanguageCode:               lang,
		EnableWordTimeOffsets:      true,
		EnableAutomaticPunctuation: true,
		DiarizationConfig: &speechpb.SpeakerDiarizationConfig{
			EnableSpeakerDiarization: true,
			MinSpeakerCount:          1,
			MaxSpeakerCount:          g.maxSpeakers,
		},
	}
	switch req.Format {
	case audio.FormatOGG:
		cfg.Encoding = speechpb.RecognitionConfig_OGG_OPUS
		cfg.SampleRateHertz = 48000
	case audio.FormatMP3:
		// The rate comes from the frame headers.
		cfg.Encoding = speechpb.RecognitionConfig_MP3
	case audio.FormatWAV:
		cfg.Encoding = speechpb.RecognitionConfig_LINEAR16
	}
	if req.Prompt != "" {
		cfg.SpeechContexts = []*speechpb.SpeechContext{{Phrases: strings.Fields(req.Prompt)}}
	}

	resp, err := g.recognize(ctx, &speechpb.RecognizeRequest{
		Config: cfg,
		Audio:  &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: req.Audio}},
	})
	if err != nil {
		return nil, classifyGRPC(err, "stt.google")
	}
	return googleResult(resp, lang), nil
}

// googleResult builds segments from the response. With diarization the last
// result repeats every word with its speaker tag; consecutive words of one
// speaker become one segment. Without tags each result is one segment.
func googleResult(resp *speechpb.RecognizeResponse, lang string) *Result {
	res := &Result{Language: lang}
	var texts []string
	for _, r := range resp.GetResults() {
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		if r.GetLanguageCode() != "" {
			res.Language = r.GetLanguageCode()
		}
		if t := strings.TrimSpace(r.GetAlternatives()[0].GetTranscript()); t != "" {
			texts = append(texts, t)
		}
		if end := r.GetResultEndTime().AsDuration(); end > res.Duration {
			res.Duration = end
		}
	}
	res.Text = strings.Join(texts, " ")

	if words := diarizedWords(resp); len(words) > 0 {
		res.Segments = wordSegments(words)
		return res
	}

	var prevEnd time.Duration
	for _, r := range resp.GetResults() {
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		alt := r.GetAlternatives()[0]
		text := strings.TrimSpace(alt.GetTranscript())
		if text == "" {
			continue
		}
		seg := transcript.Segment{Text: text, SpeakerHint: transcript.NoHint, Start: prevEnd}
		if ws := alt.GetWords(); len(ws) > 0 {
			seg.Start = ws[0].GetStartTime().AsDuration()
			seg.End = ws[len(ws)-1].GetEndTime().AsDuration()
			seg.HasTiming = true
		} else if r.GetResultEndTime() != nil {
			seg.End = r.GetResultEndTime().AsDuration()
			seg.HasTiming = true
		}
		prevEnd = seg.End
		res.Segments = append(res.Segments, seg)
	}
	return res
}

func diarizedWords(resp *speechpb.RecognizeResponse) []*speechpb.WordInfo {
	results := resp.GetResults()
	for i := len(results) - 1; i >= 0; i-- {
		alts := results[i].GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		words := alts[0].GetWords()
		for _, w := range words {
			if w.GetSpeakerTag() > 0 {
				return words
			}
		}
		return nil
	}
	return nil
}

func wordSegments(words []*speechpb.WordInfo) []transcript.Segment {
	var segs []transcript.Segment
	for _, w := range words {
		tag := int(w.GetSpeakerTag())
		start := w.GetStartTime().AsDuration()
		end := w.GetEndTime().AsDuration()
		if n := len(segs); n > 0 && segs[n-1].SpeakerHint == tag {
			segs[n-1].Text += " " + w.GetWord()
			segs[n-1].End = end
			continue
		}
		segs = append(segs, transcript.Segment{
			Text:        w.GetWord(),
			Start:       start,
			End:         end,
			HasTiming:   true,
			SpeakerHint: tag,
		})
	}
	return segs
}

// classifyGRPC maps gRPC status codes onto fault kinds.
func classifyGRPC(err error, op string) error {
	st, ok := status.FromError(err)
	if !ok {
		return fault.New(fault.Transient, fault.ReasonUnavailable, op, err)
	}
	switch st.Code() {
	case codes.DeadlineExceeded:
		return fault.New(fault.Transient, fault.ReasonTimeout, op, err)
	case codes.ResourceExhausted:
		if strings.Contains(strings.ToLower(st.Message()), "quota") {
			return fault.New(fault.Permanent, fault.ReasonQuota, op, err)
		}
		return fault.New(fault.Transient, fault.ReasonRateLimited, op, err)
	case codes.Unavailable, codes.Aborted, codes.Internal, codes.Unknown:
		return fault.New(fault.Transient, fault.ReasonUnavailable, op, err)
	case codes.InvalidArgument, codes.OutOfRange:
		return fault.New(fault.Permanent, fault.ReasonInvalidAudio, op, err)
	case codes.Canceled:
		return fault.New(fault.Internal, "", op, err)
	default:
		return fault.New(fault.Permanent, fault.ReasonInvalidRequest, op, err)
	}
}
