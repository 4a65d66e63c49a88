package chat

import (
	"context"
	"sync"
)

// Guard 提供跨实例的单飞保护，同一 key 同时只能被一方持有。
type Guard interface {
	// Acquire 尝试持有 key；ok 为 false 表示已被他人持有。
	Acquire(ctx context.Context, key string) (release func(), ok bool, err error)
}

// MemoryGuard 是进程内的 Guard 实现。
type MemoryGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemoryGuard 创建进程内 Guard。
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{held: make(map[string]struct{})}
}

// Acquire 实现 Guard。
func (g *MemoryGuard) Acquire(_ context.Context, key string) (func(), bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.held[key]; busy {
		return nil, false, nil
	}
	g.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
	}, true, nil
}
