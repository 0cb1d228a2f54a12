package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicLLM is an LLM implementation using the Anthropic API.
type AnthropicLLM struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	model      string
	maxRetries int
	client     anthropic.Client
}

// AnthropicOption configures the Anthropic client.
type AnthropicOption func(*AnthropicLLM)

// WithAPIKey sets the API key.
func WithAPIKey(key string) AnthropicOption {
	return func(a *AnthropicLLM) {
		a.apiKey = key
	}
}

// WithModel sets the default model.
func WithModel(model string) AnthropicOption {
	return func(a *AnthropicLLM) {
		a.model = model
	}
}

// WithBaseURL sets the API base URL.
func WithBaseURL(url string) AnthropicOption {
	return func(a *AnthropicLLM) {
		a.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) AnthropicOption {
	return func(a *AnthropicLLM) {
		a.httpClient = client
	}
}

// WithMaxRetries sets how many times the SDK retries 429/5xx responses.
func WithMaxRetries(n int) AnthropicOption {
	return func(a *AnthropicLLM) {
		a.maxRetries = n
	}
}

// Default Anthropic configuration values
const (
	DefaultAnthropicTimeout = 5 * time.Minute
	DefaultAnthropicModel   = "claude-sonnet-4-20250514"
	DefaultAnthropicRetries = 2
)

// NewAnthropic creates a new Anthropic LLM client.
func NewAnthropic(opts ...AnthropicOption) *AnthropicLLM {
	a := &AnthropicLLM{
		apiKey: os.Getenv("ANTHROPIC_API_KEY"),
		httpClient: &http.Client{
			Timeout: DefaultAnthropicTimeout,
		},
		model:      DefaultAnthropicModel,
		maxRetries: DefaultAnthropicRetries,
	}

	for _, opt := range opts {
		opt(a)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(a.apiKey),
		option.WithHTTPClient(a.httpClient),
		option.WithMaxRetries(a.maxRetries),
	}
	if a.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(a.baseURL))
	}
	a.client = anthropic.NewClient(reqOpts...)

	return a
}

// Model returns the default model.
func (a *AnthropicLLM) Model() string {
	return a.model
}

// Generate sends a request and returns the complete response.
func (a *AnthropicLLM) Generate(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	params := a.buildParams(req)
	slog.Debug("anthropic request", "model", params.Model, "messages", len(params.Messages))

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic API error: %w", err)
	}

	return a.parseResponse(msg, time.Since(start)), nil
}

func (a *AnthropicLLM) buildParams(req *Request) anthropic.MessageNewParams {
	model := req.Model
	if model == "" {
		model = a.model
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens(req)),
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	system := req.System
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			// The Messages API only takes a top-level system prompt.
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
		case RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{
			{Type: "text", Text: system},
		}
	}

	return params
}

func (a *AnthropicLLM) parseResponse(msg *anthropic.Message, latency time.Duration) *Response {
	result := &Response{
		Model:        string(msg.Model),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
		LatencyMs:    latency.Milliseconds(),
	}
	result.CostUSD = CalculateCost(result.Model, result.InputTokens, result.OutputTokens)

	switch string(msg.StopReason) {
	case "end_turn":
		result.StopReason = StopReasonEnd
	case "max_tokens":
		result.StopReason = StopReasonLength
	case "stop_sequence":
		result.StopReason = StopReasonStop
	case "refusal":
		result.StopReason = StopReasonFiltered
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	result.Content = text.String()

	return result
}
