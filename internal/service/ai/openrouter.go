package ai

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

	"github.com/mindease/companion/backend/internal/model/chat"
	"github.com/mindease/companion/backend/internal/policy"
)

// OpenRouterOptions 描述 OpenRouter 兼容接口的调用参数。
type OpenRouterOptions struct {
	BaseURL     string
	APIKey      string
	Model       string
	Title       string
	Referer     string
	Temperature float64
	MaxTokens   int
	HTTPClient  *http.Client
}

// OpenRouterGenerator 直接调用 OpenAI 兼容的 chat/completions 接口。
type OpenRouterGenerator struct {
	opts   OpenRouterOptions
	client *http.Client
	policy *policy.Policy
	logger *zap.Logger
}

// NewOpenRouterGenerator 创建生成器。
func NewOpenRouterGenerator(opts OpenRouterOptions, p *policy.Policy, logger *zap.Logger) *OpenRouterGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.BaseURL == "" {
		opts.BaseURL = "https://openrouter.ai/api/v1"
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	return &OpenRouterGenerator{
		opts:   opts,
		client: client,
		policy: p,
		logger: logger.Named("generator"),
	}
}

type completionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string              `json:"model"`
	Messages    []completionMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
	MaxTokens   int                 `json:"max_tokens"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate 实现 Generator。
func (g *OpenRouterGenerator) Generate(ctx context.Context, query string, history []chat.HistoryMessage, knowledge string) (string, error) {
	messages := make([]completionMessage, 0, len(history)+2)
	messages = append(messages, completionMessage{Role: "system", Content: g.policy.Compose(knowledge)})
	for _, msg := range history {
		messages = append(messages, completionMessage{Role: string(msg.Role), Content: msg.Content})
	}
	messages = append(messages, completionMessage{Role: "user", Content: query})

	body, err := json.Marshal(completionRequest{
		Model:       g.opts.Model,
		Messages:    messages,
		Temperature: g.opts.Temperature,
		MaxTokens:   g.opts.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %v", ErrGeneratorUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.opts.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrGeneratorUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+g.opts.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if g.opts.Referer != "" {
		req.Header.Set("HTTP-Referer", g.opts.Referer)
	}
	if g.opts.Title != "" {
		req.Header.Set("X-Title", g.opts.Title)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneratorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: openrouter status %d: %s", ErrGeneratorUnavailable, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var decoded completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrGeneratorUnavailable, err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrGeneratorUnavailable)
	}

	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w: empty completion", ErrGeneratorUnavailable)
	}

	g.logger.Debug("generated reply", zap.String("model", g.opts.Model), zap.Int("length", len(content)))
	return content, nil
}
