package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/mindease/companion/backend/internal/model/chat"
	"github.com/mindease/companion/backend/internal/policy"
)

// ChainGenerator 通过 eino 链路（提示词模板 -> 聊天模型）生成回复。
type ChainGenerator struct {
	chain  compose.Runnable[map[string]any, *schema.Message]
	policy *policy.Policy
	logger *zap.Logger
}

// NewChainGenerator 编译提示词模板与聊天模型组成的链路。
func NewChainGenerator(ctx context.Context, chatModel model.BaseChatModel, p *policy.Policy, logger *zap.Logger) (*ChainGenerator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &ChainGenerator{
		chain:  runnable,
		policy: p,
		logger: logger.Named("generator"),
	}, nil
}

// Generate 实现 Generator。
func (g *ChainGenerator) Generate(ctx context.Context, query string, history []chat.HistoryMessage, knowledge string) (string, error) {
	input := map[string]any{
		"system":  g.policy.Compose(knowledge),
		"history": toSchemaMessages(history),
		"query":   query,
	}

	response, err := g.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("%w: run chat chain: %v", ErrGeneratorUnavailable, err)
	}

	content := ""
	if response != nil {
		content = strings.TrimSpace(response.Content)
	}
	if content == "" {
		return "", fmt.Errorf("%w: empty completion", ErrGeneratorUnavailable)
	}

	g.logger.Debug("generated reply", zap.Int("history", len(history)), zap.Int("length", len(content)))
	return content, nil
}

func toSchemaMessages(history []chat.HistoryMessage) []*schema.Message {
	if len(history) == 0 {
		return nil
	}

	out := make([]*schema.Message, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case chat.SenderUser:
			out = append(out, schema.UserMessage(msg.Content))
		case chat.SenderAssistant:
			out = append(out, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return out
}
