package knowledge

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/mindease/companion/backend/internal/config"
)

// VectorStore 同时提供检索与写入。
type VectorStore interface {
	Matcher
	Indexer
}

// Backend 是按配置构建的向量检索后端。
type Backend struct {
	Embedder *GenAIEmbedder
	Store    VectorStore
	db       *sql.DB
}

// OpenBackend 创建嵌入客户端与向量存储；Postgres 后端会确保表结构存在。
func OpenBackend(ctx context.Context, cfg config.RetrievalConfig) (*Backend, error) {
	embedder, err := NewGenAIEmbedder(ctx, cfg.GenAIAPIKey, cfg.EmbeddingModel)
	if err != nil {
		return nil, err
	}

	switch cfg.Matcher {
	case config.MatcherPostgres:
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open retrieval database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping retrieval database: %w", err)
		}
		matcher := NewPostgresMatcher(db)
		if err := matcher.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return &Backend{Embedder: embedder, Store: matcher, db: db}, nil
	default:
		matcher, err := NewChromemMatcher(cfg.ChromemDir, cfg.Collection, embedder.EmbeddingFunc())
		if err != nil {
			return nil, err
		}
		return &Backend{Embedder: embedder, Store: matcher}, nil
	}
}

// Close 释放数据库连接。
func (b *Backend) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// NewRetriever 按配置返回检索器：向量配置齐全时使用向量检索，否则使用内置知识包。
// 返回的 close 函数总是非空。
func NewRetriever(ctx context.Context, cfg config.RetrievalConfig, logger *zap.Logger) (Retriever, func() error, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	noop := func() error { return nil }

	if !cfg.VectorEnabled() {
		if cfg.Mode == config.RetrievalVector {
			logger.Warn("vector retrieval requested but not fully configured, using bundled knowledge",
				zap.String("matcher", cfg.Matcher))
		}
		return NewStaticRetriever(), noop, nil
	}

	backend, err := OpenBackend(ctx, cfg)
	if err != nil {
		return nil, noop, err
	}
	retriever := NewVectorRetriever(backend.Embedder, backend.Store, cfg.Threshold, cfg.MatchCount, logger)
	return retriever, backend.Close, nil
}
