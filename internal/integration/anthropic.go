package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/valter-silva-au/tinker/internal/core"
	"github.com/valter-silva-au/tinker/pkg/models"
)

const (
	anthropicVersion   = "2023-06-01"
	defaultBaseURL     = "https://api.anthropic.com"
	defaultMaxTokens   = 4096
	maxTransientRetry  = 2
	retryBackoffFactor = 500 * time.Millisecond
)

// AnthropicConfig configures an AnthropicClient.
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// AnthropicClient talks to the Anthropic Messages API. It implements
// core.LanguageModel.
type AnthropicClient struct {
	cfg        AnthropicConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewAnthropicClient creates a client. Missing base URL and token limits use
// the API defaults; the credential is only checked when a request is made.
func NewAnthropicClient(cfg AnthropicConfig, logger *zap.Logger) *AnthropicClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnthropicClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.Named("anthropic"),
	}
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicRequest struct {
	Model     string               `json:"model"`
	MaxTokens int                  `json:"max_tokens"`
	System    string               `json:"system,omitempty"`
	Messages  []models.ChatMessage `json:"messages"`
	Tools     []anthropicTool      `json:"tools,omitempty"`
}

type anthropicResponse struct {
	Content    []models.ContentBlock `json:"content"`
	StopReason string                `json:"stop_reason"`
}

type anthropicErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends one Messages API request. It fails with core.ErrMissingAPIKey
// before any network traffic when no credential is configured, with
// core.ErrAuthentication on 401/403, and with *core.APIError on any other
// non-2xx status. Rate limiting and overload responses are retried briefly.
func (c *AnthropicClient) Complete(ctx context.Context, req models.ModelRequest) (*models.ModelResponse, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, core.ErrMissingAPIKey
	}

	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshalling model request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= maxTransientRetry; attempt++ {
		if attempt > 0 {
			wait := time.Duration(1<<uint(attempt-1)) * retryBackoffFactor
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		resp, err := c.send(ctx, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
		c.logger.Debug("retrying model request", zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return nil, lastErr
}

func (c *AnthropicClient) buildRequest(req models.ModelRequest) anthropicRequest {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}
	out := anthropicRequest{
		Model:     c.cfg.Model,
		MaxTokens: maxTokens,
		System:    req.System,
		Messages:  make([]models.ChatMessage, 0, len(req.Messages)),
	}
	for _, m := range req.Messages {
		blocks := make([]models.ContentBlock, len(m.Content))
		copy(blocks, m.Content)
		for i := range blocks {
			// The API requires an input object on every echoed tool_use block.
			if blocks[i].Type == models.BlockToolUse && len(blocks[i].Input) == 0 {
				blocks[i].Input = json.RawMessage(`{}`)
			}
		}
		out.Messages = append(out.Messages, models.ChatMessage{Role: m.Role, Content: blocks})
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, anthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return out
}

func (c *AnthropicClient) send(ctx context.Context, body []byte) (*models.ModelResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating model request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending model request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading model response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w (status %d)", core.ErrAuthentication, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apiError(resp.StatusCode, data)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decoding model response: %w", err)
	}

	c.logger.Debug("model request completed",
		zap.String("model", c.cfg.Model),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("blocks", len(parsed.Content)),
		zap.String("stop_reason", parsed.StopReason),
	)
	return &models.ModelResponse{
		Content:    parsed.Content,
		StopReason: models.StopReason(parsed.StopReason),
	}, nil
}

func apiError(status int, body []byte) *core.APIError {
	apiErr := &core.APIError{StatusCode: status}
	var eb anthropicErrorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error.Message != "" {
		apiErr.Type = eb.Error.Type
		apiErr.Message = eb.Error.Message
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(body))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

// retryable reports rate limiting (429), overload (529) and gateway errors.
func retryable(err error) bool {
	apiErr, ok := err.(*core.APIError)
	if !ok {
		return false
	}
	switch apiErr.StatusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, 529:
		return true
	}
	return false
}
