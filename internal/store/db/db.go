// Package db 根据配置选择存储驱动。
package db

import (
	"context"
	"fmt"

	"github.com/mindease/companion/backend/internal/config"
	"github.com/mindease/companion/backend/internal/store"
	"github.com/mindease/companion/backend/internal/store/db/postgres"
	"github.com/mindease/companion/backend/internal/store/db/sqlite"
)

// NewDriver 打开配置指定的数据库。
func NewDriver(ctx context.Context, cfg config.StoreConfig) (store.Driver, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.NewDB(ctx, cfg.DSN)
	case "sqlite":
		return sqlite.NewDB(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}
}
