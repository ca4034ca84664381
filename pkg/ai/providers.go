package ai

import (
	"context"
	"net/http"
	"strings"
)

// OpenAIClient talks to the chat completions API of OpenAI or any
// compatible server.
type OpenAIClient struct {
	BaseURL     string
	APIKey      string
	ModelName   string
	Temperature float64
	MaxTokens   int
	HTTP        *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *OpenAIClient) Provider() Provider { return ProviderOpenAI }
func (c *OpenAIClient) Model() string      { return c.ModelName }

func (c *OpenAIClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	req := chatRequest{
		Model: c.ModelName,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
	}
	header := http.Header{"Authorization": {"Bearer " + c.APIKey}}

	var resp chatResponse
	if err := postJSON(ctx, c.HTTP, ProviderOpenAI, c.BaseURL+"/chat/completions", header, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// OllamaClient talks to a local Ollama server.
type OllamaClient struct {
	BaseURL     string
	ModelName   string
	Temperature float64
	MaxTokens   int
	HTTP        *http.Client
}

type generateRequest struct {
	Model   string          `json:"model"`
	System  string          `json:"system,omitempty"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

func (c *OllamaClient) Provider() Provider { return ProviderOllama }
func (c *OllamaClient) Model() string      { return c.ModelName }

func (c *OllamaClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	req := generateRequest{
		Model:   c.ModelName,
		System:  system,
		Prompt:  prompt,
		Options: generateOptions{Temperature: c.Temperature, NumPredict: c.MaxTokens},
	}
	var resp generateResponse
	if err := postJSON(ctx, c.HTTP, ProviderOllama, c.BaseURL+"/api/generate", nil, req, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Response) == "" {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(resp.Response), nil
}
