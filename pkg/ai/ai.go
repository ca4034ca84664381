// Package ai turns a finished report into an executive and a technical
// summary using an OpenAI-compatible or Ollama model.
//
// Reports are sanitized before they leave the process; see Sanitize.
package ai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/waftester/wpscout/pkg/config"
	"github.com/waftester/wpscout/pkg/iohelper"
	"github.com/waftester/wpscout/pkg/jsonutil"
)

// Provider names a model backend.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderOllama Provider = "ollama"
)

var (
	ErrUnknownProvider = errors.New("ai: unknown provider")
	ErrMissingAPIKey   = errors.New("ai: missing API key")
	ErrEmptyResponse   = errors.New("ai: empty response")
)

const maxResponseSize = 4 << 20

// Client completes a prompt.
type Client interface {
	Provider() Provider
	Model() string
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// APIError is a non-2xx answer from a provider.
type APIError struct {
	Provider Provider
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ai: %s returned HTTP %d: %s", e.Provider, e.Status, e.Body)
}

// NewClient builds the client configured in cfg. The OpenAI key is read
// from the environment variable named by cfg.APIKeyEnv.
func NewClient(cfg config.AI, hc *http.Client) (Client, error) {
	if hc == nil {
		hc = &http.Client{Timeout: 120 * time.Second}
	}
	switch Provider(strings.ToLower(cfg.Provider)) {
	case ProviderOpenAI:
		key := os.Getenv(cfg.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("%w: set %s", ErrMissingAPIKey, cfg.APIKeyEnv)
		}
		base := cfg.BaseURL
		if base == "" {
			base = "https://api.openai.com/v1"
		}
		return &OpenAIClient{
			BaseURL:     strings.TrimRight(base, "/"),
			APIKey:      key,
			ModelName:   cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			HTTP:        hc,
		}, nil
	case ProviderOllama:
		base := cfg.BaseURL
		if base == "" {
			base = "http://localhost:11434"
		}
		return &OllamaClient{
			BaseURL:     strings.TrimRight(base, "/"),
			ModelName:   cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			HTTP:        hc,
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
}

// postJSON sends body to url and decodes the answer into out.
func postJSON(ctx context.Context, hc *http.Client, provider Provider, url string, header http.Header, body, out any) error {
	payload, err := jsonutil.Marshal(body)
	if err != nil {
		return fmt.Errorf("ai: encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("ai: building request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("ai: %s request failed: %w", provider, err)
	}
	defer iohelper.DrainAndClose(resp.Body)

	data, _, err := iohelper.ReadBody(resp.Body, maxResponseSize)
	if err != nil {
		return fmt.Errorf("ai: reading %s response: %w", provider, err)
	}
	if resp.StatusCode/100 != 2 {
		return &APIError{Provider: provider, Status: resp.StatusCode, Body: truncate(string(data), 300)}
	}
	if err := jsonutil.UnmarshalFold(data, out); err != nil {
		return fmt.Errorf("ai: decoding %s response: %w", provider, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
