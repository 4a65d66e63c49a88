package knowledge

import (
	"context"
	"fmt"
	"os"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// ChromemMatcher 使用本地持久化的 chromem 集合做相似度检索。
type ChromemMatcher struct {
	mu  sync.RWMutex
	col *chromem.Collection
}

// NewChromemMatcher 打开（或创建）dir 下的持久化集合。
// embed 仅在写入未携带向量的文档时调用。
func NewChromemMatcher(dir, collection string, embed chromem.EmbeddingFunc) (*ChromemMatcher, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create vector dir: %w", err)
	}

	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}

	col := db.GetCollection(collection, embed)
	if col == nil {
		col, err = db.CreateCollection(collection, nil, embed)
		if err != nil {
			return nil, fmt.Errorf("create collection %s: %w", collection, err)
		}
	}

	return &ChromemMatcher{col: col}, nil
}

// Count 返回集合中的文档数。
func (m *ChromemMatcher) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.col.Count()
}

// Match 实现 Matcher。
func (m *ChromemMatcher) Match(ctx context.Context, embedding []float32, threshold float32, count int) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := m.col.Count()
	if total == 0 || count <= 0 {
		return nil, nil
	}
	if count > total {
		count = total
	}

	results, err := m.col.QueryEmbedding(ctx, embedding, count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		if r.Similarity < threshold {
			continue
		}
		matches = append(matches, Match{ID: r.ID, Content: r.Content, Similarity: r.Similarity})
	}
	return matches, nil
}

// Index 实现 Indexer，同 ID 文档会被覆盖。
func (m *ChromemMatcher) Index(ctx context.Context, docs []IndexedDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, doc := range docs {
		err := m.col.AddDocument(ctx, chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Embedding: doc.Embedding,
		})
		if err != nil {
			return fmt.Errorf("index document %s: %w", doc.ID, err)
		}
	}
	return nil
}
