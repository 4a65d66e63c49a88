package knowledge

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// DefaultIndexConcurrency 是并发嵌入请求的上限。
const DefaultIndexConcurrency = 4

// DocumentEmbedder 为待入库文档生成嵌入。
type DocumentEmbedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedDocuments 并发为每篇文档生成嵌入，结果顺序与输入一致；任一失败会取消其余请求。
func EmbedDocuments(ctx context.Context, embedder DocumentEmbedder, docs []Document, concurrency int) ([]IndexedDocument, error) {
	if concurrency <= 0 {
		concurrency = DefaultIndexConcurrency
	}

	out := make([]IndexedDocument, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, doc := range docs {
		g.Go(func() error {
			vectors, err := embedder.EmbedDocuments(gctx, []string{doc.Content})
			if err != nil {
				return fmt.Errorf("embed %s: %w", doc.ID, err)
			}
			if len(vectors) != 1 || len(vectors[0]) == 0 {
				return fmt.Errorf("embed %s: empty embedding", doc.ID)
			}
			out[i] = IndexedDocument{Document: doc, Embedding: vectors[0]}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// IndexDocuments 嵌入并写入文档。
func IndexDocuments(ctx context.Context, embedder DocumentEmbedder, indexer Indexer, docs []Document, concurrency int) (int, error) {
	indexed, err := EmbedDocuments(ctx, embedder, docs, concurrency)
	if err != nil {
		return 0, err
	}
	if err := indexer.Index(ctx, indexed); err != nil {
		return 0, fmt.Errorf("index documents: %w", err)
	}
	return len(indexed), nil
}
