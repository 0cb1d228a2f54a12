package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAnthropicGenerate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			t.Errorf("path = %q, want suffix /v1/messages", r.URL.Path)
		}
		if key := r.Header.Get("x-api-key"); key != "test-key" {
			t.Errorf("x-api-key = %q, want test-key", key)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("request body is not JSON: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-20250514",
			"content": [{"type": "text", "text": "so the answer is \\boxed{5}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 100, "output_tokens": 20}
		}`)
	}))
	defer srv.Close()

	a := NewAnthropic(
		WithAPIKey("test-key"),
		WithBaseURL(srv.URL),
		WithMaxRetries(0),
	)

	temp := 0.3
	resp, err := a.Generate(context.Background(), &Request{
		System:      "You are a verifier.",
		Messages:    []Message{{Role: RoleUser, Content: "What is 2+3?"}},
		Temperature: &temp,
		MaxTokens:   512,
	})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	if resp.Content != `so the answer is \boxed{5}` {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.InputTokens != 100 || resp.OutputTokens != 20 {
		t.Errorf("tokens = %d/%d, want 100/20", resp.InputTokens, resp.OutputTokens)
	}
	if resp.StopReason != StopReasonEnd {
		t.Errorf("StopReason = %q, want %q", resp.StopReason, StopReasonEnd)
	}
	if resp.CostUSD <= 0 {
		t.Errorf("CostUSD = %f, want > 0", resp.CostUSD)
	}

	if got["model"] != DefaultAnthropicModel {
		t.Errorf("request model = %v, want %s", got["model"], DefaultAnthropicModel)
	}
	if got["max_tokens"] != float64(512) {
		t.Errorf("request max_tokens = %v, want 512", got["max_tokens"])
	}
	system, _ := json.Marshal(got["system"])
	if !strings.Contains(string(system), "You are a verifier.") {
		t.Errorf("request system = %s", system)
	}
}

func TestAnthropicGenerateAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	}))
	defer srv.Close()

	a := NewAnthropic(WithAPIKey("bad"), WithBaseURL(srv.URL), WithMaxRetries(0))

	_, err := a.Generate(context.Background(), &Request{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("Generate() should fail on 401")
	}
	if !strings.Contains(err.Error(), "anthropic API error") {
		t.Errorf("error = %v", err)
	}
}

func TestAnthropicBuildParamsMergesSystemMessages(t *testing.T) {
	a := NewAnthropic(WithAPIKey("k"), WithModel("claude-3-haiku-20240307"))

	params := a.buildParams(&Request{
		System: "base",
		Messages: []Message{
			{Role: RoleSystem, Content: "extra"},
			{Role: RoleUser, Content: "q"},
			{Role: RoleAssistant, Content: "a"},
		},
	})

	if string(params.Model) != "claude-3-haiku-20240307" {
		t.Errorf("Model = %q", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2", len(params.Messages))
	}
	if len(params.System) != 1 || params.System[0].Text != "base\n\nextra" {
		t.Errorf("System = %+v", params.System)
	}
	if params.MaxTokens != DefaultMaxTokens {
		t.Errorf("MaxTokens = %d, want %d", params.MaxTokens, DefaultMaxTokens)
	}
}

func TestCalculateCost(t *testing.T) {
	tests := []struct {
		model string
		in    int
		out   int
		want  float64
	}{
		{"claude-sonnet-4-20250514", 1_000_000, 0, 3.00},
		{"claude-sonnet-4-20250514", 0, 1_000_000, 15.00},
		{"deepseek-chat", 1_000_000, 1_000_000, 1.37},
		{"DeepSeek-Chat", 1_000_000, 1_000_000, 1.37},
		{"local-model", 1_000_000, 1_000_000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			got := CalculateCost(tt.model, tt.in, tt.out)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("CalculateCost(%q) = %f, want %f", tt.model, got, tt.want)
			}
		})
	}
}
