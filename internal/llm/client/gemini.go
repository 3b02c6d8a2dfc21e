package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	genai "google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiClient is a thin wrapper around the official genai client.
type GeminiClient struct {
	cli     *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiClient creates a client for the Gemini API. An empty apiKey lets
// genai read GOOGLE_API_KEY / GEMINI_API_KEY from the environment.
func NewGeminiClient(ctx context.Context, apiKey, model string, timeout time.Duration) (*GeminiClient, error) {
	if model == "" {
		model = DefaultGeminiModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, eris.Wrap(err, "create gemini client")
	}
	return &GeminiClient{cli: cli, model: model, timeout: timeout}, nil
}

func (g *GeminiClient) Name() string  { return "Gemini:" + g.model }
func (g *GeminiClient) Model() string { return g.model }
func (g *GeminiClient) Close() error  { return nil }

// Ping fetches the model metadata to check key and model name.
func (g *GeminiClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if _, err := g.cli.Models.Get(ctx, g.model, nil); err != nil {
		return classifyGeminiError(err)
	}
	return nil
}

func (g *GeminiClient) Generate(ctx context.Context, prompt string) (Generation, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		nil,
	)
	if err != nil {
		return Generation{}, classifyGeminiError(err)
	}
	latency := time.Since(start)
	if resp == nil || len(resp.Candidates) == 0 {
		return Generation{}, &UpstreamHTTPError{Status: 502, Body: "gemini: empty candidate list"}
	}

	raw, _ := json.Marshal(resp)
	out := Generation{
		Text:    strings.TrimSpace(resp.Text()),
		Raw:     raw,
		Latency: latency,
	}
	if u := resp.UsageMetadata; u != nil {
		p := int(u.PromptTokenCount)
		c := int(u.CandidatesTokenCount)
		out.PromptTokens = &p
		out.CompletionTokens = &c
	}
	return out, nil
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &UpstreamHTTPError{Status: apiErr.Code, Body: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &UpstreamHTTPError{Status: apiErrPtr.Code, Body: apiErrPtr.Message}
	}
	return &UpstreamUnavailableError{Cause: err}
}
