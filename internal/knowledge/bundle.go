package knowledge

import (
	"context"
	"embed"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed bundle/*.md
var bundleFS embed.FS

// StaticSeparator 连接静态资料包中的各份文档。
const StaticSeparator = "\n\n---\n\n"

// Bundle 返回内置资料包，按文件名排序。
func Bundle() []Document {
	entries, err := fs.ReadDir(bundleFS, "bundle")
	if err != nil {
		return nil
	}

	docs := make([]Document, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		raw, err := bundleFS.ReadFile(path.Join("bundle", entry.Name()))
		if err != nil {
			continue
		}
		content := strings.TrimSpace(string(raw))
		if content == "" {
			continue
		}
		docs = append(docs, Document{
			ID:      strings.TrimSuffix(entry.Name(), ".md"),
			Content: content,
		})
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs
}

// StaticRetriever 无视查询，总是返回完整资料包。
type StaticRetriever struct {
	context string
}

// NewStaticRetriever 基于内置资料包构建检索器。
func NewStaticRetriever() *StaticRetriever {
	return NewStaticRetrieverFrom(Bundle())
}

// NewStaticRetrieverFrom 基于给定文档构建检索器。
func NewStaticRetrieverFrom(docs []Document) *StaticRetriever {
	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		parts = append(parts, doc.Content)
	}

	joined := strings.Join(parts, StaticSeparator)
	if joined == "" {
		joined = Placeholder
	}
	return &StaticRetriever{context: joined}
}

// Retrieve 实现 Retriever。
func (r *StaticRetriever) Retrieve(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return r.context, nil
}
