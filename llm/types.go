package llm

import (
	"context"
	"strings"
)

// LLM is the interface for language model backends.
type LLM interface {
	// Generate sends a request and returns the complete response.
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// Request is a single completion request.
type Request struct {
	// Model is the model ID. Backends fall back to their default when empty.
	Model string

	// System is the system prompt (optional)
	System string

	// Messages is the conversation, oldest first
	Messages []Message

	// Temperature for generation (optional)
	Temperature *float64

	// MaxTokens limits response length (0 uses the backend default)
	MaxTokens int
}

// Message represents a conversation message.
type Message struct {
	Role    Role
	Content string
}

// Role identifies the message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Response is the response from an LLM call.
type Response struct {
	// Content is the text response
	Content string

	// Model that actually served the request
	Model string

	// Token counts
	InputTokens  int
	OutputTokens int

	// Cost in USD
	CostUSD float64

	// Latency in milliseconds
	LatencyMs int64

	// StopReason indicates why generation stopped
	StopReason StopReason
}

// StopReason indicates why the LLM stopped generating.
type StopReason string

const (
	StopReasonEnd      StopReason = "end_turn"
	StopReasonLength   StopReason = "max_tokens"
	StopReasonStop     StopReason = "stop_sequence"
	StopReasonFiltered StopReason = "content_filter"
)

// DefaultMaxTokens is used when a request does not set MaxTokens.
const DefaultMaxTokens = 8192

// Model pricing for cost calculation (USD per 1M tokens)
var modelPricing = map[string]struct {
	InputPer1M  float64
	OutputPer1M float64
}{
	"claude-sonnet-4-20250514":   {3.00, 15.00},
	"claude-opus-4-20250514":     {15.00, 75.00},
	"claude-3-5-sonnet-20241022": {3.00, 15.00},
	"claude-3-haiku-20240307":    {0.25, 1.25},
	"gpt-4o":                     {2.50, 10.00},
	"gpt-4o-mini":                {0.15, 0.60},
	"deepseek-chat":              {0.27, 1.10},
	"deepseek-reasoner":          {0.55, 2.19},
}

// CalculateCost returns the cost of a request in USD. Unknown models cost
// nothing; self-hosted and compatible endpoints are not billed per token.
func CalculateCost(model string, inputTokens, outputTokens int) float64 {
	pricing, ok := modelPricing[model]
	if !ok {
		pricing, ok = modelPricing[strings.ToLower(model)]
	}
	if !ok {
		return 0
	}

	inputCost := float64(inputTokens) / 1_000_000 * pricing.InputPer1M
	outputCost := float64(outputTokens) / 1_000_000 * pricing.OutputPer1M
	return inputCost + outputCost
}

func maxTokens(req *Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return DefaultMaxTokens
}
