package ai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waftester/wpscout/pkg/config"
	"github.com/waftester/wpscout/pkg/finding"
	"github.com/waftester/wpscout/pkg/jsonutil"
	"github.com/waftester/wpscout/pkg/report"
)

func aiConfig() config.AI {
	cfg := config.Default().AI
	cfg.MaxEvidenceLength = 60
	return cfg
}

func TestNewClient(t *testing.T) {
	cfg := aiConfig()

	cfg.Provider = "ollama"
	c, err := NewClient(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderOllama, c.Provider())

	cfg.Provider = "openai"
	cfg.APIKeyEnv = "WPSCOUT_TEST_OPENAI_KEY"
	t.Setenv("WPSCOUT_TEST_OPENAI_KEY", "")
	_, err = NewClient(cfg, nil)
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	t.Setenv("WPSCOUT_TEST_OPENAI_KEY", "sk-test")
	c, err = NewClient(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, c.Provider())

	cfg.Provider = "anthropic"
	_, err = NewClient(cfg, nil)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestOpenAIClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, jsonutil.Unmarshal(body, &req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "hello", req.Messages[1].Content)

		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"  summary  "}}]}`)
	}))
	defer srv.Close()

	c := &OpenAIClient{BaseURL: srv.URL + "/v1", APIKey: "sk-test", ModelName: "gpt-4o-mini", HTTP: srv.Client()}
	out, err := c.Complete(context.Background(), "sys", "hello")
	require.NoError(t, err)
	assert.Equal(t, "summary", out)
}

func TestOpenAIClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"quota"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := &OpenAIClient{BaseURL: srv.URL, APIKey: "k", ModelName: "m", HTTP: srv.Client()}
	_, err := c.Complete(context.Background(), "sys", "hello")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Contains(t, apiErr.Body, "quota")
}

func TestOllamaClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var req generateRequest
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, jsonutil.Unmarshal(body, &req))
		assert.False(t, req.Stream)
		assert.Equal(t, "llama3", req.Model)
		_, _ = io.WriteString(w, `{"model":"llama3","response":"ok","done":true}`)
	}))
	defer srv.Close()

	c := &OllamaClient{BaseURL: srv.URL, ModelName: "llama3", HTTP: srv.Client()}
	out, err := c.Complete(context.Background(), "sys", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"response":""}`)
	}))
	defer empty.Close()
	c.BaseURL = empty.URL
	_, err = c.Complete(context.Background(), "sys", "prompt")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func sampleReport() *report.Report {
	return report.Create(report.Input{
		ScanID:          "scan-1",
		Target:          "https://example.com",
		Domain:          "example.com",
		ConsentVerified: true,
		Findings: []finding.Finding{
			{
				Code:       "WPS-030",
				Title:      "Config backup exposed",
				Severity:   finding.Critical,
				Confidence: finding.ConfidenceHigh,
				Evidence: &finding.Evidence{
					Type:  finding.EvidenceBody,
					Value: "define('DB_PASSWORD', 'hunter2'); password=s3cret",
				},
			},
			{
				Code:       "WPS-001",
				Title:      "Consent token seen",
				Severity:   finding.Info,
				Confidence: finding.ConfidenceHigh,
				Evidence:   finding.URLEvidence("https://example.com/.well-known/verify-0123456789abcdef.txt", ""),
			},
		},
	})
}

func TestSanitize(t *testing.T) {
	cfg := aiConfig()
	cfg.RemoveURLs = true
	r := sampleReport()

	clean, stats := Sanitize(r, cfg)

	assert.Nil(t, clean.Consent)
	assert.Empty(t, clean.ScanID)
	body := clean.Findings[0].Evidence.Value
	assert.NotContains(t, body, "hunter2")
	assert.NotContains(t, body, "s3cret")
	assert.Equal(t, "https://example.com/[path-redacted]", clean.Findings[1].Evidence.Value)
	assert.Equal(t, 1, stats.Tokens)
	assert.Equal(t, 1, stats.Credentials)
	assert.Equal(t, 1, stats.URLs)

	assert.Contains(t, r.Findings[0].Evidence.Value, "hunter2", "original untouched")
	assert.NotNil(t, r.Consent)
}

func TestSanitize_Truncates(t *testing.T) {
	cfg := aiConfig()
	r := report.Create(report.Input{Findings: []finding.Finding{{
		Code: "WPS-063", Severity: finding.Medium, Confidence: finding.ConfidenceLow,
		Evidence: &finding.Evidence{Type: finding.EvidenceBody, Value: strings.Repeat("x ", 100)},
	}}})
	clean, stats := Sanitize(r, cfg)
	assert.Equal(t, 1, stats.Truncated)
	assert.True(t, strings.HasSuffix(clean.Findings[0].Evidence.Value, "[truncated]"))
	assert.Less(t, len(clean.Findings[0].Evidence.Value), 100)
}

type fakeClient struct {
	prompts []string
	fail    map[int]error
}

func (f *fakeClient) Provider() Provider { return ProviderOllama }
func (f *fakeClient) Model() string      { return "fake" }

func (f *fakeClient) Complete(_ context.Context, _, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if err := f.fail[len(f.prompts)]; err != nil {
		return "", err
	}
	return "answer " + string(rune('0'+len(f.prompts))), nil
}

func TestAnalyzer(t *testing.T) {
	fc := &fakeClient{}
	a := NewAnalyzer(fc, aiConfig(), nil)

	out, err := a.Analyze(context.Background(), sampleReport())
	require.NoError(t, err)
	assert.Equal(t, "answer 1", out.ExecutiveSummary)
	assert.Equal(t, "answer 2", out.TechnicalRemediation)
	assert.Equal(t, "ollama", out.Provider)
	assert.False(t, out.GeneratedAt.IsZero())

	require.Len(t, fc.prompts, 2)
	for _, p := range fc.prompts {
		assert.NotContains(t, p, "hunter2")
		assert.NotContains(t, p, "scan-1")
		assert.Contains(t, p, "WPS-030")
	}
}

func TestAnalyzer_PartialAndTotalFailure(t *testing.T) {
	boom := errors.New("boom")

	fc := &fakeClient{fail: map[int]error{1: boom}}
	out, err := NewAnalyzer(fc, aiConfig(), nil).Analyze(context.Background(), sampleReport())
	require.NoError(t, err)
	assert.Empty(t, out.ExecutiveSummary)
	assert.Equal(t, "answer 2", out.TechnicalRemediation)

	fc = &fakeClient{fail: map[int]error{1: boom, 2: boom}}
	_, err = NewAnalyzer(fc, aiConfig(), nil).Analyze(context.Background(), sampleReport())
	assert.ErrorIs(t, err, boom)
}
