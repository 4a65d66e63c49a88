// Package sqlite 是基于 modernc.org/sqlite 的存储驱动，时间以 Unix 毫秒保存。
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB 实现 store.Driver。
type DB struct {
	db *sql.DB
}

// NewDB 打开 dsn 指向的数据库。
func NewDB(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite 只允许单写者，内存库在多连接下也不共享数据。
	db.SetMaxOpenConns(1)
	return &DB{db: db}, nil
}

// Close 关闭连接。
func (d *DB) Close() error {
	return d.db.Close()
}

// Migrate 创建表结构。
func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id          TEXT    PRIMARY KEY DEFAULT (lower(hex(randomblob(16)))),
			user_id     TEXT    NOT NULL,
			session_id  TEXT    NOT NULL DEFAULT (lower(hex(randomblob(16)))),
			content     TEXT    NOT NULL,
			sender      TEXT    NOT NULL CHECK (sender IN ('user', 'bot')),
			"timestamp" INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_user_session ON chat_messages(user_id, session_id)`,
		`CREATE TABLE IF NOT EXISTS mood_entries (
			id          TEXT    PRIMARY KEY DEFAULT (lower(hex(randomblob(16)))),
			user_id     TEXT    NOT NULL,
			mood        INTEGER NOT NULL CHECK (mood BETWEEN 1 AND 5),
			notes       TEXT    NOT NULL DEFAULT '',
			"timestamp" INTEGER NOT NULL
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

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
