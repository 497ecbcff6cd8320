package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultOpenAIEndpoint = "https://api.openai.com/v1"

// OpenAIClient speaks the OpenAI chat-completions protocol. It also covers
// LM Studio and other compatible servers: point the endpoint at them and
// leave the key empty.
type OpenAIClient struct {
	httpc      *http.Client
	endpoint   string
	apiKey     string
	model      string
	name       string
	requireKey bool
}

func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		httpc:      &http.Client{Timeout: 5 * time.Minute},
		endpoint:   defaultOpenAIEndpoint,
		apiKey:     apiKey,
		model:      model,
		name:       "openai",
		requireKey: true,
	}
}

// NewCompatibleClient targets an OpenAI-compatible local server such as
// LM Studio. No key required.
func NewCompatibleClient(name, endpoint, apiKey, model string) *OpenAIClient {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	return &OpenAIClient{
		httpc:    &http.Client{Timeout: 5 * time.Minute},
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		name:     name,
	}
}

func (c *OpenAIClient) Name() string { return c.name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *OpenAIClient) Generate(ctx context.Context, req GenerateRequest) (*Response, error) {
	if c.requireKey && c.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if wantsAbort(req.Abort) {
		return nil, ErrAborted
	}

	msgs := make([]chatMessage, 0, 2)
	if req.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.System})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(chatCompletionRequest{Model: c.model, Messages: msgs})
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", c.name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", c.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s at %s: %v", ErrUnavailable, c.name, c.endpoint, err)
	}
	defer resp.Body.Close()

	var out chatCompletionResponse
	if resp.StatusCode != http.StatusOK {
		msg := readErrorBody(resp)
		return nil, &ProviderError{Provider: c.name, Status: resp.StatusCode, Message: msg}
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%s: parse response: %w", c.name, err)
	}
	if out.Error != nil {
		return nil, &ProviderError{Provider: c.name, Status: resp.StatusCode, Message: out.Error.Message}
	}
	if len(out.Choices) == 0 {
		return nil, &ProviderError{Provider: c.name, Status: resp.StatusCode, Message: "empty choices in response"}
	}
	// The call was atomic from the caller's perspective, but an abort that
	// tripped mid-flight still discards the payload.
	if wantsAbort(req.Abort) {
		return nil, ErrAborted
	}

	content := out.Choices[0].Message.Content
	if req.OnChunk != nil {
		req.OnChunk(content)
	}
	usage := Usage{
		PromptTokens:     out.Usage.PromptTokens,
		CompletionTokens: out.Usage.CompletionTokens,
		TotalTokens:      out.Usage.TotalTokens,
	}
	if usage.TotalTokens == 0 {
		usage.PromptTokens = EstimateTokens(req.Prompt)
		usage.CompletionTokens = EstimateTokens(content)
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	model := out.Model
	if model == "" {
		model = c.model
	}
	return &Response{Content: content, Model: model, Usage: usage}, nil
}

func (c *OpenAIClient) Models(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", c.name, err)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s at %s: %v", ErrUnavailable, c.name, c.endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Provider: c.name, Status: resp.StatusCode, Message: readErrorBody(resp)}
	}
	var out struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%s: parse models: %w", c.name, err)
	}
	names := make([]string, 0, len(out.Data))
	for _, m := range out.Data {
		names = append(names, m.ID)
	}
	return names, nil
}

func (c *OpenAIClient) CheckAvailability(ctx context.Context) error {
	if c.requireKey && c.apiKey == "" {
		return ErrNoAPIKey
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/models", nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", c.name, err)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %s at %s: %v", ErrUnavailable, c.name, c.endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &ProviderError{Provider: c.name, Status: resp.StatusCode, Message: "authentication failed; check the api key"}
	}
	return nil
}
