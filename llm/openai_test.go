package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIGenerate(t *testing.T) {
	var got struct {
		Model       string  `json:"model"`
		Temperature float64 `json:"temperature"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q, want /v1/chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer ds-key" {
			t.Errorf("Authorization = %q", auth)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("request body is not JSON: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "deepseek-chat",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "VERIFICATION: CORRECT"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 40, "completion_tokens": 8, "total_tokens": 48}
		}`)
	}))
	defer srv.Close()

	o := NewOpenAI(
		WithOpenAIKey("ds-key"),
		WithOpenAIBaseURL(srv.URL+"/v1"),
		WithOpenAIModel("deepseek-chat"),
	)

	temp := 0.5
	resp, err := o.Generate(context.Background(), &Request{
		System:      "You are an evaluator.",
		Messages:    []Message{{Role: RoleUser, Content: "pick one"}},
		Temperature: &temp,
	})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	if resp.Content != "VERIFICATION: CORRECT" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.InputTokens != 40 || resp.OutputTokens != 8 {
		t.Errorf("tokens = %d/%d, want 40/8", resp.InputTokens, resp.OutputTokens)
	}
	if resp.StopReason != StopReasonEnd {
		t.Errorf("StopReason = %q", resp.StopReason)
	}

	if got.Model != "deepseek-chat" {
		t.Errorf("request model = %q", got.Model)
	}
	if got.Temperature != 0.5 {
		t.Errorf("request temperature = %v", got.Temperature)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "pick one" {
		t.Errorf("request messages = %+v", got.Messages)
	}
}

func TestOpenAIGenerateNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"x","object":"chat.completion","model":"m","choices":[]}`)
	}))
	defer srv.Close()

	o := NewOpenAI(WithOpenAIKey("k"), WithOpenAIBaseURL(srv.URL+"/v1"))
	if _, err := o.Generate(context.Background(), &Request{Messages: []Message{{Role: RoleUser, Content: "x"}}}); err == nil {
		t.Fatal("Generate() should fail when no choices are returned")
	}
}

func TestOpenAIBuildRequestDefaults(t *testing.T) {
	o := NewOpenAI(WithOpenAIKey("k"))

	req := o.buildRequest(&Request{Messages: []Message{{Role: RoleUser, Content: "x"}}})
	if req.Model != DefaultOpenAIModel {
		t.Errorf("Model = %q, want %q", req.Model, DefaultOpenAIModel)
	}
	if req.MaxTokens != DefaultMaxTokens {
		t.Errorf("MaxTokens = %d, want %d", req.MaxTokens, DefaultMaxTokens)
	}
	if len(req.Messages) != 1 {
		t.Errorf("len(Messages) = %d, want 1 (no system message)", len(req.Messages))
	}
}
