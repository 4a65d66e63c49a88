package knowledge

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// postgresSchema 创建 documents 表与 match_documents 函数，依赖 pgvector 扩展。
const postgresSchema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	embedding vector(768) NOT NULL
);

CREATE OR REPLACE FUNCTION match_documents(
	query_embedding vector(768),
	match_threshold float,
	match_count int
)
RETURNS TABLE (id TEXT, content TEXT, similarity float)
LANGUAGE sql STABLE
AS $$
	SELECT documents.id, documents.content, 1 - (documents.embedding <=> query_embedding) AS similarity
	FROM documents
	WHERE 1 - (documents.embedding <=> query_embedding) > match_threshold
	ORDER BY documents.embedding <=> query_embedding
	LIMIT match_count;
$$;
`

// PostgresMatcher 调用数据库中的 match_documents 函数。
type PostgresMatcher struct {
	db *sql.DB
}

// NewPostgresMatcher 包装一个已打开的 lib/pq 连接。
func NewPostgresMatcher(db *sql.DB) *PostgresMatcher {
	return &PostgresMatcher{db: db}
}

// EnsureSchema 创建检索所需的表与函数。
func (m *PostgresMatcher) EnsureSchema(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("ensure documents schema: %w", err)
	}
	return nil
}

// Match 实现 Matcher。
func (m *PostgresMatcher) Match(ctx context.Context, embedding []float32, threshold float32, count int) ([]Match, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, content, similarity FROM match_documents($1::float8[]::vector, $2, $3)`,
		pq.Float64Array(widen(embedding)), threshold, count,
	)
	if err != nil {
		return nil, fmt.Errorf("match documents: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			match      Match
			similarity float64
		)
		if err := rows.Scan(&match.ID, &match.Content, &similarity); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		match.Similarity = float32(similarity)
		matches = append(matches, match)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	return matches, nil
}

// Index 实现 Indexer。
func (m *PostgresMatcher) Index(ctx context.Context, docs []IndexedDocument) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (id, content, embedding)
		VALUES ($1, $2, $3::float8[]::vector)
		ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, embedding = EXCLUDED.embedding`)
	if err != nil {
		return fmt.Errorf("prepare index statement: %w", err)
	}
	defer stmt.Close()

	for _, doc := range docs {
		if _, err := stmt.ExecContext(ctx, doc.ID, doc.Content, pq.Float64Array(widen(doc.Embedding))); err != nil {
			return fmt.Errorf("index document %s: %w", doc.ID, err)
		}
	}
	return tx.Commit()
}

func widen(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
