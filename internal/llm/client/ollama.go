package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultOllamaBaseURL = "http://ollama:11434"
	DefaultOllamaModel   = "gemma:2b"
	DefaultTimeout       = 120 * time.Second
	pingTimeout          = 10 * time.Second
)

// OllamaConfig configures an OllamaClient. Zero values take the defaults.
type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
	// NumPredict bounds the decode length; -1 means unlimited.
	NumPredict int
	HTTPClient *http.Client
}

// OllamaClient calls a local Ollama server through /api/generate.
// See: https://github.com/ollama/ollama/blob/main/docs/api.md
type OllamaClient struct {
	http       *http.Client
	baseURL    string
	model      string
	timeout    time.Duration
	numPredict int
}

func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.NumPredict == 0 {
		cfg.NumPredict = -1
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &OllamaClient{
		http:       hc,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		numPredict: cfg.NumPredict,
	}
}

func (o *OllamaClient) Name() string  { return "Ollama:" + o.model }
func (o *OllamaClient) Model() string { return o.model }
func (o *OllamaClient) Close() error  { return nil }

type ollamaGenerateReq struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	NumPredict int `json:"num_predict"`
}

type ollamaGenerateResp struct {
	Response        string `json:"response"`
	PromptEvalCount *int   `json:"prompt_eval_count"`
	EvalCount       *int   `json:"eval_count"`
}

// Generate sends one non-streaming request bounded by the client timeout.
func (o *OllamaClient) Generate(ctx context.Context, prompt string) (Generation, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	body, err := json.Marshal(ollamaGenerateReq{
		Model:   o.model,
		Prompt:  prompt,
		Stream:  false,
		Options: ollamaOptions{NumPredict: o.numPredict},
	})
	if err != nil {
		return Generation{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return Generation{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := o.http.Do(req)
	if err != nil {
		return Generation{}, &UpstreamUnavailableError{Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Generation{}, &UpstreamUnavailableError{Cause: err}
	}
	latency := time.Since(start)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Generation{}, &UpstreamHTTPError{Status: resp.StatusCode, Body: truncateBody(raw)}
	}

	var out ollamaGenerateResp
	if err := json.Unmarshal(raw, &out); err != nil {
		return Generation{}, &UpstreamHTTPError{Status: resp.StatusCode, Body: "undecodable response: " + truncateBody(raw)}
	}
	return Generation{
		Text:             strings.TrimSpace(out.Response),
		Raw:              json.RawMessage(raw),
		PromptTokens:     out.PromptEvalCount,
		CompletionTokens: out.EvalCount,
		Latency:          latency,
	}, nil
}

// Ping lists the server's local models to check that it is reachable.
func (o *OllamaClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := o.http.Do(req)
	if err != nil {
		return &UpstreamUnavailableError{Cause: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &UpstreamHTTPError{Status: resp.StatusCode, Body: truncateBody(b)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
