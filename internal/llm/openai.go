package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/joebot/voxbrief/internal/fault"
)

// OpenRouterBase is the OpenAI-compatible OpenRouter endpoint.
const OpenRouterBase = "https://openrouter.ai/api/v1"

// OpenAIProvider implements Provider over any OpenAI-compatible chat API.
// Works with OpenAI itself, OpenRouter, DeepSeek, vLLM, etc.
type OpenAIProvider struct {
	name         string
	client       *openai.Client
	defaultModel string
}

// NewOpenAIProvider creates an OpenAI-compatible provider. extraHeaders are
// added to every request (OpenRouter attribution headers, for example).
func NewOpenAIProvider(name, apiKey, apiBase, defaultModel string, extraHeaders map[string]string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if apiBase != "" {
		cfg.BaseURL = strings.TrimRight(apiBase, "/")
	}
	cfg.HTTPClient = &http.Client{Transport: &headerTransport{base: http.DefaultTransport, headers: extraHeaders}}
	if defaultModel == "" {
		defaultModel = openai.GPT4oMini
	}
	if name == "" {
		name = "openai"
	}
	return &OpenAIProvider{name: name, client: openai.NewClientWithConfig(cfg), defaultModel: defaultModel}
}

// NewOpenRouterProvider creates a provider for OpenRouter with the attribution
// headers OpenRouter asks clients to send.
func NewOpenRouterProvider(apiKey, apiBase, defaultModel, referer, title string) *OpenAIProvider {
	if apiBase == "" {
		apiBase = OpenRouterBase
	}
	headers := map[string]string{}
	if referer != "" {
		headers["HTTP-Referer"] = referer
	}
	if title != "" {
		headers["X-Title"] = title
	}
	return NewOpenAIProvider("openrouter", apiKey, apiBase, defaultModel, headers)
}

func (p *OpenAIProvider) Name() string { return p.name }

func (p *OpenAIProvider) DefaultModel() string { return p.defaultModel }

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	var msgs []openai.ChatCompletionMessage
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return "", ClassifyOpenAIError(err, "llm."+p.name)
	}
	if len(resp.Choices) == 0 {
		return "", fault.Permanentf(fault.ReasonInvalidResponse, "llm."+p.name, "no choices in response")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fault.Permanentf(fault.ReasonInvalidResponse, "llm."+p.name, "empty completion (finish_reason=%s)", resp.Choices[0].FinishReason)
	}
	return content, nil
}

type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if len(t.headers) > 0 {
		r = r.Clone(r.Context())
		for k, v := range t.headers {
			r.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(r)
}

// ClassifyOpenAIError maps errors from a go-openai client onto fault kinds.
// Exhausted quota is permanent; other API errors follow their HTTP status.
func ClassifyOpenAIError(err error, op string) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code, _ := apiErr.Code.(string)
		if code == "insufficient_quota" || apiErr.Type == "insufficient_quota" {
			return fault.New(fault.Permanent, fault.ReasonQuota, op, err)
		}
		return fault.FromHTTPStatus(apiErr.HTTPStatusCode, op, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fault.FromHTTPStatus(reqErr.HTTPStatusCode, op, err)
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fault.New(fault.Transient, fault.ReasonTimeout, op, err)
	case errors.Is(err, context.Canceled):
		return fault.New(fault.Internal, "", op, err)
	}
	return fault.New(fault.Transient, fault.ReasonUnavailable, op, err)
}
