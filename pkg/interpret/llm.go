// Package interpret asks a text LLM to synthesize one searchable description
// of a frame from its vision description, OCR text and window metadata.
package interpret

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	DefaultTimeout = 60 * time.Second
)

// CallFunc sends a single prompt and returns the model's reply.
type CallFunc func(ctx context.Context, prompt string) (string, error)

// Config selects and configures a provider.
type Config struct {
	Provider string        // "ollama", "openai" or "anthropic"
	Model    string        // e.g. "llama3.2", "gpt-4o-mini"
	APIKey   string        // explicit API key (highest priority)
	BaseURL  string        // override base URL
	Timeout  time.Duration // per-call bound
	Logger   *slog.Logger
}

// NewCaller creates a CallFunc with its own HTTP client.
// API key resolution: explicit APIKey, then OPENAI_API_KEY / ANTHROPIC_API_KEY.
// A hosted provider without a key falls back to Ollama on localhost.
func NewCaller(cfg Config) (CallFunc, error) {
	provider := strings.ToLower(cfg.Provider)
	model := cfg.Model

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := &http.Client{Timeout: timeout}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = resolveAPIKeyFromEnv(provider)
	}

	if apiKey == "" && provider != ProviderOllama && provider != "" {
		if cfg.Logger != nil {
			cfg.Logger.Warn("no API key found, falling back to ollama", "provider", provider)
		}
		provider = ProviderOllama
		model = ""
		cfg.BaseURL = ""
	}

	switch provider {
	case ProviderOllama, "":
		if model == "" {
			model = "llama3.2"
		}
		return newOllamaCaller(client, model, baseURLOr(cfg.BaseURL, "http://localhost:11434")), nil

	case ProviderOpenAI:
		if model == "" {
			model = "gpt-4o-mini"
		}
		return newOpenAICaller(client, apiKey, model, baseURLOr(cfg.BaseURL, "https://api.openai.com")), nil

	case ProviderAnthropic:
		if model == "" {
			model = "claude-haiku-4-5-20251001"
		}
		return newAnthropicCaller(client, apiKey, model, baseURLOr(cfg.BaseURL, "https://api.anthropic.com")), nil

	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func baseURLOr(u, def string) string {
	if u == "" {
		return def
	}
	return strings.TrimRight(u, "/")
}

func resolveAPIKeyFromEnv(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	case ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	default:
		return ""
	}
}

func postJSON(ctx context.Context, client *http.Client, url string, body any, headers map[string]string) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(out))
	}
	return out, nil
}

// --- Ollama caller ---

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type ollamaChatResponse struct {
	Message chatMessage `json:"message"`
	Error   string      `json:"error"`
}

func newOllamaCaller(client *http.Client, model, baseURL string) CallFunc {
	return func(ctx context.Context, prompt string) (string, error) {
		body, err := postJSON(ctx, client, baseURL+"/api/chat", ollamaChatRequest{
			Model:    model,
			Messages: []chatMessage{{Role: "user", Content: prompt}},
			Stream:   false,
		}, nil)
		if err != nil {
			return "", fmt.Errorf("ollama: %w", err)
		}

		var result ollamaChatResponse
		if err := json.Unmarshal(body, &result); err != nil {
			return "", fmt.Errorf("unmarshal ollama response: %w", err)
		}
		if result.Error != "" {
			return "", fmt.Errorf("ollama error: %s", result.Error)
		}
		return result.Message.Content, nil
	}
}

// --- OpenAI caller ---

type openAIRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type openAIResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func newOpenAICaller(client *http.Client, apiKey, model, baseURL string) CallFunc {
	return func(ctx context.Context, prompt string) (string, error) {
		body, err := postJSON(ctx, client, baseURL+"/v1/chat/completions", openAIRequest{
			Model:    model,
			Messages: []chatMessage{{Role: "user", Content: prompt}},
		}, map[string]string{"Authorization": "Bearer " + apiKey})
		if err != nil {
			return "", fmt.Errorf("openai: %w", err)
		}

		var result openAIResponse
		if err := json.Unmarshal(body, &result); err != nil {
			return "", fmt.Errorf("unmarshal openai response: %w", err)
		}
		if result.Error != nil {
			return "", fmt.Errorf("openai error: %s", result.Error.Message)
		}
		if len(result.Choices) == 0 {
			return "", errors.New("openai returned no choices")
		}
		return result.Choices[0].Message.Content, nil
	}
}

// --- Anthropic caller ---

type anthropicRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []chatMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func newAnthropicCaller(client *http.Client, apiKey, model, baseURL string) CallFunc {
	return func(ctx context.Context, prompt string) (string, error) {
		body, err := postJSON(ctx, client, baseURL+"/v1/messages", anthropicRequest{
			Model:     model,
			MaxTokens: 512,
			Messages:  []chatMessage{{Role: "user", Content: prompt}},
		}, map[string]string{
			"x-api-key":         apiKey,
			"anthropic-version": "2023-06-01",
		})
		if err != nil {
			return "", fmt.Errorf("anthropic: %w", err)
		}

		var result anthropicResponse
		if err := json.Unmarshal(body, &result); err != nil {
			return "", fmt.Errorf("unmarshal anthropic response: %w", err)
		}
		if result.Error != nil {
			return "", fmt.Errorf("anthropic error: %s", result.Error.Message)
		}
		if len(result.Content) == 0 {
			return "", errors.New("anthropic returned no content")
		}
		return result.Content[0].Text, nil
	}
}
