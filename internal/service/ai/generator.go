package ai

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mindease/companion/backend/internal/config"
	"github.com/mindease/companion/backend/internal/model/chat"
	"github.com/mindease/companion/backend/internal/policy"
)

// ErrGeneratorUnavailable 表示生成服务不可用、超时或返回了空内容。
var ErrGeneratorUnavailable = errors.New("generator unavailable")

// Default sampling parameters.
const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 1024
)

// Generator 根据用户消息、历史和知识上下文生成一条回复。
type Generator interface {
	Generate(ctx context.Context, query string, history []chat.HistoryMessage, knowledge string) (string, error)
}

// New 按配置选择生成通道，未配置任何凭证时返回一个总是失败的生成器。
func New(ctx context.Context, cfg config.AIConfig, p *policy.Policy, logger *zap.Logger) (Generator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Provider() {
	case config.ProviderOpenRouter:
		logger.Info("using openrouter generator", zap.String("model", cfg.OpenRouterModel))
		return NewOpenRouterGenerator(OpenRouterOptions{
			BaseURL:     cfg.OpenRouterBaseURL,
			APIKey:      cfg.OpenRouterAPIKey,
			Model:       cfg.OpenRouterModel,
			Title:       cfg.AppTitle,
			Referer:     cfg.Referer,
			Temperature: cfg.TemperatureOr(defaultTemperature),
			MaxTokens:   cfg.MaxTokensOr(defaultMaxTokens),
		}, p, logger), nil
	case config.ProviderArk:
		chatModel, err := cfg.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create chat model: %w", err)
		}
		logger.Info("using ark chain generator", zap.String("model", cfg.Model))
		return NewChainGenerator(ctx, chatModel, p, logger)
	default:
		logger.Warn("no generation provider configured, every reply will fall back")
		return Unavailable{}, nil
	}
}

// Unavailable 在没有配置任何生成通道时使用。
type Unavailable struct{}

// Generate 实现 Generator。
func (Unavailable) Generate(context.Context, string, []chat.HistoryMessage, string) (string, error) {
	return "", fmt.Errorf("%w: no provider configured", ErrGeneratorUnavailable)
}
