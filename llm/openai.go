package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAILLM is an LLM implementation for OpenAI and OpenAI-compatible
// endpoints (DeepSeek, SiliconFlow, vLLM, ...).
type OpenAILLM struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	model      string
	client     *openai.Client
}

// OpenAIOption configures the OpenAI client.
type OpenAIOption func(*OpenAILLM)

// WithOpenAIKey sets the API key.
func WithOpenAIKey(key string) OpenAIOption {
	return func(o *OpenAILLM) {
		o.apiKey = key
	}
}

// WithOpenAIModel sets the default model.
func WithOpenAIModel(model string) OpenAIOption {
	return func(o *OpenAILLM) {
		o.model = model
	}
}

// WithOpenAIBaseURL points the client at a compatible endpoint, e.g.
// "https://api.deepseek.com/v1".
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(o *OpenAILLM) {
		o.baseURL = url
	}
}

// WithOpenAIHTTPClient sets a custom HTTP client.
func WithOpenAIHTTPClient(client *http.Client) OpenAIOption {
	return func(o *OpenAILLM) {
		o.httpClient = client
	}
}

// Default OpenAI configuration values
const (
	DefaultOpenAITimeout = 5 * time.Minute
	DefaultOpenAIModel   = "gpt-4o-mini"
)

// NewOpenAI creates a new OpenAI-compatible LLM client. The API key defaults
// to OPENAI_API_KEY and the base URL to OPENAI_BASE_URL when set.
func NewOpenAI(opts ...OpenAIOption) *OpenAILLM {
	o := &OpenAILLM{
		apiKey:  os.Getenv("OPENAI_API_KEY"),
		baseURL: os.Getenv("OPENAI_BASE_URL"),
		httpClient: &http.Client{
			Timeout: DefaultOpenAITimeout,
		},
		model: DefaultOpenAIModel,
	}

	for _, opt := range opts {
		opt(o)
	}

	cfg := openai.DefaultConfig(o.apiKey)
	if o.baseURL != "" {
		cfg.BaseURL = o.baseURL
	}
	cfg.HTTPClient = o.httpClient
	o.client = openai.NewClientWithConfig(cfg)

	return o
}

// Model returns the default model.
func (o *OpenAILLM) Model() string {
	return o.model
}

// Generate sends a request and returns the complete response.
func (o *OpenAILLM) Generate(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	chatReq := o.buildRequest(req)
	slog.Debug("openai request", "model", chatReq.Model, "messages", len(chatReq.Messages))

	resp, err := o.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("openai API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai API returned no choices")
	}

	result := &Response{
		Content:      resp.Choices[0].Message.Content,
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		LatencyMs:    time.Since(start).Milliseconds(),
	}
	if result.Model == "" {
		result.Model = chatReq.Model
	}
	result.CostUSD = CalculateCost(result.Model, result.InputTokens, result.OutputTokens)

	switch resp.Choices[0].FinishReason {
	case openai.FinishReasonStop:
		result.StopReason = StopReasonEnd
	case openai.FinishReasonLength:
		result.StopReason = StopReasonLength
	case openai.FinishReasonContentFilter:
		result.StopReason = StopReasonFiltered
	}

	return result, nil
}

func (o *OpenAILLM) buildRequest(req *Request) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = o.model
	}

	chatReq := openai.ChatCompletionRequest{
		Model:     model,
		MaxTokens: maxTokens(req),
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}

	if req.System != "" {
		chatReq.Messages = append(chatReq.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, msg := range req.Messages {
		role := openai.ChatMessageRoleUser
		switch msg.Role {
		case RoleSystem:
			role = openai.ChatMessageRoleSystem
		case RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		chatReq.Messages = append(chatReq.Messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}

	return chatReq
}
