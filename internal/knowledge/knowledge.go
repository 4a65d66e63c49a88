// Package knowledge 为生成器提供参考资料上下文。
package knowledge

import (
	"context"
	"errors"
)

// Placeholder 在没有任何匹配资料时作为上下文。
const Placeholder = "No relevant context found."

// ErrRetrievalFailed 表示嵌入或相似度检索失败。
var ErrRetrievalFailed = errors.New("knowledge retrieval failed")

// Retriever 根据用户消息返回一段上下文文本。
type Retriever interface {
	Retrieve(ctx context.Context, query string) (string, error)
}

// Document 是一份可被检索的资料。
type Document struct {
	ID      string
	Content string
}

// IndexedDocument 附带预先计算的嵌入向量。
type IndexedDocument struct {
	Document
	Embedding []float32
}

// Indexer 将资料写入向量后端。
type Indexer interface {
	Index(ctx context.Context, docs []IndexedDocument) error
}
