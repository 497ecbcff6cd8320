package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultOllamaEndpoint = "http://localhost:11434"

// OllamaClient talks to a local Ollama server over its streaming generate
// API. Streaming lets the abort token be honored per chunk and keeps partial
// output flowing to the render layer.
type OllamaClient struct {
	httpc    *http.Client
	endpoint string
	model    string
}

func NewOllamaClient(endpoint, model string) *OllamaClient {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		endpoint = defaultOllamaEndpoint
	}
	return &OllamaClient{
		// Generation deadlines come from the task's context; this timeout is
		// only a backstop against a wedged connection.
		httpc:    &http.Client{Timeout: 10 * time.Minute},
		endpoint: endpoint,
		model:    model,
	}
}

func (c *OllamaClient) Name() string { return "ollama" }

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateChunk struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

func (c *OllamaClient) Generate(ctx context.Context, req GenerateRequest) (*Response, error) {
	if wantsAbort(req.Abort) {
		return nil, ErrAborted
	}

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:   c.model,
		Prompt:  req.Prompt,
		System:  req.System,
		Stream:  true,
		Options: map[string]any{"num_predict": 2048},
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: ollama at %s: %v (start it with 'ollama serve')", ErrUnavailable, c.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := readErrorBody(resp)
		return nil, &ProviderError{Provider: "ollama", Status: resp.StatusCode, Message: msg}
	}

	var (
		content      strings.Builder
		model        = c.model
		promptTokens int
		evalTokens   int
	)
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if wantsAbort(req.Abort) {
			return nil, ErrAborted
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaGenerateChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		content.WriteString(chunk.Response)
		if chunk.Model != "" {
			model = chunk.Model
		}
		if chunk.PromptEvalCount > 0 {
			promptTokens = chunk.PromptEvalCount
		}
		if chunk.EvalCount > 0 {
			evalTokens = chunk.EvalCount
		}
		if req.OnChunk != nil {
			req.OnChunk(content.String())
		}
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ollama: read stream: %w", err)
	}

	if promptTokens == 0 {
		promptTokens = EstimateTokens(req.Prompt)
	}
	if evalTokens == 0 {
		evalTokens = EstimateTokens(content.String())
	}
	return &Response{
		Content: content.String(),
		Model:   model,
		Usage: Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: evalTokens,
			TotalTokens:      promptTokens + evalTokens,
		},
	}, nil
}

func (c *OllamaClient) Models(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("ollama: build request: %w", err)
	}
	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: ollama at %s: %v", ErrUnavailable, c.endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Provider: "ollama", Status: resp.StatusCode, Message: readErrorBody(resp)}
	}
	var out struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ollama: parse models: %w", err)
	}
	names := make([]string, 0, len(out.Models))
	for _, m := range out.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func (c *OllamaClient) CheckAvailability(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("ollama: build request: %w", err)
	}
	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: ollama at %s: %v (start it with 'ollama serve')", ErrUnavailable, c.endpoint, err)
	}
	resp.Body.Close()
	return nil
}

func readErrorBody(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		msg = resp.Status
	}
	return msg
}
