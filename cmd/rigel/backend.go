package main

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/everydev1618/rigel"
	"github.com/everydev1618/rigel/dsl"
	"github.com/everydev1618/rigel/llm"
)

// provider returns the configured provider: flag or env first, then the
// document, then anthropic.
func provider(doc *dsl.Document) string {
	if p := viper.GetString("provider"); p != "" {
		return p
	}
	if doc.Settings != nil && doc.Settings.Provider != "" {
		return doc.Settings.Provider
	}
	return dsl.ProviderAnthropic
}

// newBackend creates the LLM backend the document asks for.
func newBackend(doc *dsl.Document) (llm.LLM, error) {
	baseURL := viper.GetString("base_url")
	if baseURL == "" && doc.Settings != nil {
		baseURL = doc.Settings.BaseURL
	}

	switch p := provider(doc); p {
	case dsl.ProviderAnthropic:
		key := firstNonEmpty(viper.GetString("api_key"), viper.GetString("anthropic_api_key"))
		if key == "" {
			return nil, fmt.Errorf("no API key: set RIGEL_API_KEY or ANTHROPIC_API_KEY")
		}
		opts := []llm.AnthropicOption{llm.WithAPIKey(key)}
		if baseURL != "" {
			opts = append(opts, llm.WithBaseURL(baseURL))
		}
		return llm.NewAnthropic(opts...), nil

	case dsl.ProviderOpenAI:
		key := firstNonEmpty(viper.GetString("api_key"), viper.GetString("openai_api_key"))
		if key == "" {
			return nil, fmt.Errorf("no API key: set RIGEL_API_KEY, DEEPSEEK_API_KEY or OPENAI_API_KEY")
		}
		opts := []llm.OpenAIOption{llm.WithOpenAIKey(key)}
		if baseURL != "" {
			opts = append(opts, llm.WithOpenAIBaseURL(baseURL))
		}
		return llm.NewOpenAI(opts...), nil

	default:
		return nil, fmt.Errorf("unknown provider %q (want %s or %s)", p, dsl.ProviderAnthropic, dsl.ProviderOpenAI)
	}
}

// newInvoker wraps the backend with the document's model and rate limit.
func newInvoker(doc *dsl.Document) (*rigel.LLMInvoker, error) {
	backend, err := newBackend(doc)
	if err != nil {
		return nil, err
	}
	return rigel.NewLLMInvoker(backend,
		rigel.WithDefaultModel(doc.DefaultModel()),
		rigel.WithRateLimit(doc.RateLimit()),
	), nil
}

// runs returns the reasoner run count: flag, then config, then document.
func runs(doc *dsl.Document, flag int) int {
	if flag > 0 {
		return flag
	}
	if n := viper.GetInt("runs"); n > 0 {
		return n
	}
	return doc.Rounds(rigel.DefaultRuns)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
