package knowledge

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// VectorSeparator 连接向量检索命中的片段。
const VectorSeparator = "\n---\n"

// Default similarity parameters.
const (
	DefaultThreshold  = 0.78
	DefaultMatchCount = 5
)

// Embedder 把文本转换为嵌入向量。
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Match 是一次相似度检索的命中。
type Match struct {
	ID         string
	Content    string
	Similarity float32
}

// Matcher 返回与向量相似度不低于阈值的最多 count 个片段。
type Matcher interface {
	Match(ctx context.Context, embedding []float32, threshold float32, count int) ([]Match, error)
}

// VectorRetriever 先嵌入查询，再按相似度挑选资料片段。
type VectorRetriever struct {
	embedder  Embedder
	matcher   Matcher
	threshold float32
	count     int
	logger    *zap.Logger
}

// NewVectorRetriever 创建向量检索器，非法参数回落到默认值。
func NewVectorRetriever(embedder Embedder, matcher Matcher, threshold float64, count int, logger *zap.Logger) *VectorRetriever {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	if count <= 0 {
		count = DefaultMatchCount
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VectorRetriever{
		embedder:  embedder,
		matcher:   matcher,
		threshold: float32(threshold),
		count:     count,
		logger:    logger,
	}
}

// Retrieve 实现 Retriever。
func (r *VectorRetriever) Retrieve(ctx context.Context, query string) (string, error) {
	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return "", fmt.Errorf("%w: embed query: %v", ErrRetrievalFailed, err)
	}
	if len(embedding) == 0 {
		return "", fmt.Errorf("%w: empty query embedding", ErrRetrievalFailed)
	}

	matches, err := r.matcher.Match(ctx, embedding, r.threshold, r.count)
	if err != nil {
		return "", fmt.Errorf("%w: match documents: %v", ErrRetrievalFailed, err)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > r.count {
		matches = matches[:r.count]
	}

	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		if content := strings.TrimSpace(m.Content); content != "" {
			parts = append(parts, content)
		}
	}

	r.logger.Debug("retrieved knowledge passages", zap.Int("count", len(parts)))

	if len(parts) == 0 {
		return Placeholder, nil
	}
	return strings.Join(parts, VectorSeparator), nil
}
