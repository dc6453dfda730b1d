package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/joebot/voxbrief/internal/fault"
)

const (
	anthropicBase    = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
	anthropicModel   = "claude-sonnet-4-5"
	anthropicOp      = "llm.anthropic"
	defaultMaxTokens = 4096
)

// AnthropicProvider talks to the Anthropic Messages API.
type AnthropicProvider struct {
	key   string
	base  string
	model string
	http  *http.Client
}

// NewAnthropicProvider creates an Anthropic provider. Empty base and model
// select the public endpoint and the default model.
func NewAnthropicProvider(apiKey, apiBase, model string) *AnthropicProvider {
	p := &AnthropicProvider{
		key:   apiKey,
		base:  strings.TrimRight(apiBase, "/"),
		model: model,
		http:  &http.Client{Timeout: 2 * time.Minute},
	}
	if p.base == "" {
		p.base = anthropicBase
	}
	if p.model == "" {
		p.model = anthropicModel
	}
	return p
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) DefaultModel() string { return p.model }

type messagesRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	System      string        `json:"system,omitempty"`
	Messages    []turnMessage `json:"messages"`
}

type turnMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string        `json:"stop_reason"`
	Error      *apiErrorBody `json:"error"`
}

type apiErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (string, error) {
	in := messagesRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		System:      req.System,
		Messages:    []turnMessage{{Role: "user", Content: req.Prompt}},
	}
	if in.Model == "" {
		in.Model = p.model
	}
	if in.MaxTokens == 0 {
		in.MaxTokens = defaultMaxTokens
	}

	status, body, err := p.post(ctx, "/v1/messages", in)
	if err != nil {
		return "", err
	}
	var out messagesResponse
	jsonErr := json.Unmarshal(body, &out)
	if status != http.StatusOK {
		return "", anthropicFault(status, out.Error)
	}
	if jsonErr != nil {
		return "", fault.New(fault.Permanent, fault.ReasonInvalidResponse, anthropicOp, fmt.Errorf("decode response: %w", jsonErr))
	}
	if out.Error != nil {
		return "", fault.Permanentf(fault.ReasonInvalidResponse, anthropicOp, "%s: %s", out.Error.Type, out.Error.Message)
	}
	return out.text()
}

// post sends v as JSON and returns the status and raw body.
func (p *AnthropicProvider) post(ctx context.Context, path string, v any) (int, []byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return 0, nil, fault.New(fault.Internal, "", anthropicOp, fmt.Errorf("encode request: %w", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fault.New(fault.Internal, "", anthropicOp, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.key)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.http.Do(httpReq)
	if err != nil {
		reason := fault.ReasonUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			reason = fault.ReasonTimeout
		}
		return 0, nil, fault.New(fault.Transient, reason, anthropicOp, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fault.New(fault.Transient, fault.ReasonUnavailable, anthropicOp, fmt.Errorf("read response: %w", err))
	}
	return resp.StatusCode, body, nil
}

// text joins the text blocks of a response.
func (r *messagesResponse) text() (string, error) {
	var sb strings.Builder
	for _, block := range r.Content {
		if block.Type != "text" || block.Text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(block.Text)
	}
	if s := strings.TrimSpace(sb.String()); s != "" {
		return s, nil
	}
	return "", fault.Permanentf(fault.ReasonInvalidResponse, anthropicOp, "empty completion (stop_reason=%s)", r.StopReason)
}

// anthropicFault maps an error response. Overload is retryable whatever the
// status; an exhausted credit balance is reported as quota.
func anthropicFault(status int, e *apiErrorBody) error {
	if e == nil {
		return fault.FromHTTPStatus(status, anthropicOp, fmt.Errorf("HTTP %d", status))
	}
	cause := fmt.Errorf("HTTP %d: %s: %s", status, e.Type, e.Message)
	switch {
	case e.Type == "overloaded_error":
		return fault.New(fault.Transient, fault.ReasonUnavailable, anthropicOp, cause)
	case strings.Contains(strings.ToLower(e.Message), "credit balance"):
		return fault.New(fault.Permanent, fault.ReasonQuota, anthropicOp, cause)
	}
	return fault.FromHTTPStatus(status, anthropicOp, cause)
}
