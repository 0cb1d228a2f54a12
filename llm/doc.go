// Package llm provides LLM backend implementations for the rigel package.
//
// # Anthropic Backend
//
//	backend := llm.NewAnthropic()  // Uses ANTHROPIC_API_KEY env var
//
//	// Or with custom API key and model
//	backend := llm.NewAnthropic(
//	    llm.WithAPIKey("sk-..."),
//	    llm.WithModel("claude-opus-4-20250514"),
//	)
//
// # OpenAI-compatible Backend
//
// Any endpoint speaking the chat completions protocol works, which covers
// OpenAI itself as well as DeepSeek, SiliconFlow and local vLLM servers:
//
//	backend := llm.NewOpenAI(
//	    llm.WithOpenAIKey(os.Getenv("DEEPSEEK_API_KEY")),
//	    llm.WithOpenAIBaseURL("https://api.deepseek.com/v1"),
//	    llm.WithOpenAIModel("deepseek-chat"),
//	)
//
// # Using with a Pipeline
//
// Backends are wrapped into a rigel.Invoker, which renders each stage's
// role into a system prompt:
//
//	inv := rigel.NewLLMInvoker(backend)
//	doc, _ := dsl.Default()
//	p, err := dsl.Build(doc, inv)
//
// # Implementing Custom Backends
//
// Implement the LLM interface:
//
//	type LLM interface {
//	    Generate(ctx context.Context, req *Request) (*Response, error)
//	}
package llm
