package mood

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mindease/companion/backend/internal/model/identity"
	"github.com/mindease/companion/backend/internal/model/mood"
)

// Repository 保存情绪记录。ListMood 按时间降序返回 since 之后（含）的记录。
type Repository interface {
	CreateMood(ctx context.Context, owner identity.Identity, entry mood.Entry) (mood.Entry, error)
	ListMood(ctx context.Context, owner identity.Identity, since time.Time) ([]mood.Entry, error)
	DeleteMood(ctx context.Context, owner identity.Identity) error
}

// MaxMemoryEntriesPerOwner 是每个匿名身份保留的记录上限，超出时丢弃最早的记录。
const MaxMemoryEntriesPerOwner = 500

// MemoryRepository 是匿名身份使用的进程内实现，ID 带有 mood_ 前缀。
type MemoryRepository struct {
	mu      sync.RWMutex
	entries map[string][]mood.Entry
	seq     atomic.Uint64
}

// NewMemoryRepository 创建空仓库。
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{entries: make(map[string][]mood.Entry)}
}

// CreateMood 实现 Repository。
func (r *MemoryRepository) CreateMood(_ context.Context, owner identity.Identity, entry mood.Entry) (mood.Entry, error) {
	entry.ID = mood.LocalIDPrefix + strconv.FormatInt(entry.CreatedAt.UnixMilli(), 10) + "_" + strconv.FormatUint(r.seq.Add(1), 10)
	entry.IdentityID = owner.ID

	r.mu.Lock()
	entries := append(r.entries[owner.ID], entry)
	if over := len(entries) - MaxMemoryEntriesPerOwner; over > 0 {
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		})
		entries = append(entries[:0:0], entries[over:]...)
	}
	r.entries[owner.ID] = entries
	r.mu.Unlock()
	return entry, nil
}

// ListMood 实现 Repository。
func (r *MemoryRepository) ListMood(_ context.Context, owner identity.Identity, since time.Time) ([]mood.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]mood.Entry, 0, len(r.entries[owner.ID]))
	for _, e := range r.entries[owner.ID] {
		if since.IsZero() || !e.CreatedAt.Before(since) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// DeleteMood 实现 Repository。
func (r *MemoryRepository) DeleteMood(_ context.Context, owner identity.Identity) error {
	r.mu.Lock()
	delete(r.entries, owner.ID)
	r.mu.Unlock()
	return nil
}

// Prune 删除最新记录早于 cutoff 的身份，返回删除的身份数。
func (r *MemoryRepository) Prune(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for owner, entries := range r.entries {
		var latest time.Time
		for _, e := range entries {
			if e.CreatedAt.After(latest) {
				latest = e.CreatedAt
			}
		}
		if latest.Before(cutoff) {
			delete(r.entries, owner)
			removed++
		}
	}
	return removed
}
