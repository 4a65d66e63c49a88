// Package postgres 是基于 lib/pq 的存储驱动。
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/mindease/companion/backend/internal/store"
)

var _ store.Driver = (*DB)(nil)

// DB 实现 store.Driver。
type DB struct {
	db *sql.DB
}

// NewDB 打开 dsn 指向的数据库并验证连通性。
func NewDB(ctx context.Context, dsn string) (*DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &DB{db: db}, nil
}

// Close 关闭连接池。
func (d *DB) Close() error {
	return d.db.Close()
}

// Migrate 创建表结构，gen_random_uuid 需要 PostgreSQL 13 及以上。
func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_messages (
			seq         BIGSERIAL,
			id          UUID        PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id     TEXT        NOT NULL,
			session_id  UUID        NOT NULL DEFAULT gen_random_uuid(),
			content     TEXT        NOT NULL,
			sender      TEXT        NOT NULL CHECK (sender IN ('user', 'bot')),
			"timestamp" TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_user_session ON chat_messages(user_id, session_id)`,
		`CREATE TABLE IF NOT EXISTS mood_entries (
			seq         BIGSERIAL,
			id          UUID        PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id     TEXT        NOT NULL,
			mood        INTEGER     NOT NULL CHECK (mood BETWEEN 1 AND 5),
			notes       TEXT        NOT NULL DEFAULT '',
			"timestamp" TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_mood_entries_user_ts ON mood_entries(user_id, "timestamp")`,
	}
	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
