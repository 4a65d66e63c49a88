// Package mood 实现情绪日志：记录、近期查询、均值、连续打卡与进度汇总。
package mood

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mindease/companion/backend/internal/model/identity"
	"github.com/mindease/companion/backend/internal/model/mood"
)

// ErrInvalidWindow 表示查询天数不是正数。
var ErrInvalidWindow = fmt.Errorf("%w: days must be a positive integer", mood.ErrValidation)

// StreakLookback 是连续打卡向前检查的最大天数。
const StreakLookback = 30

// Ledger 按身份路由到持久化仓库或内存仓库。
type Ledger struct {
	durable Repository
	memory  *MemoryRepository
	loc     *time.Location
	now     func() time.Time
	logger  *zap.Logger
}

// Option 调整 Ledger。
type Option func(*Ledger)

// WithLocation 设置按日历天统计时使用的时区。
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) {
		if loc != nil {
			l.loc = loc
		}
	}
}

// WithClock 替换当前时间来源。
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger 设置日志。
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLedger 创建 Ledger；durable 为空时所有身份都使用内存仓库。
func NewLedger(durable Repository, memory *MemoryRepository, opts ...Option) *Ledger {
	if memory == nil {
		memory = NewMemoryRepository()
	}
	l := &Ledger{
		durable: durable,
		memory:  memory,
		loc:     time.Local,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.Named("mood")
	return l
}

func (l *Ledger) repo(owner identity.Identity) Repository {
	if owner.Anonymous || l.durable == nil {
		return l.memory
	}
	return l.durable
}

// Record 校验并保存一条记录，非法值在触达存储之前被拒绝。
func (l *Ledger) Record(ctx context.Context, owner identity.Identity, value int, notes string) (mood.Entry, error) {
	entry := mood.Entry{
		Mood:      value,
		Notes:     strings.TrimSpace(notes),
		CreatedAt: l.now().UTC(),
	}
	if err := entry.Validate(); err != nil {
		return mood.Entry{}, err
	}

	saved, err := l.repo(owner).CreateMood(ctx, owner, entry)
	if err != nil {
		l.logger.Error("failed to record mood entry", zap.String("owner", owner.ID), zap.Error(err))
		return mood.Entry{}, fmt.Errorf("record mood: %w", err)
	}
	return saved, nil
}

// Recent 返回最近 days 天内的记录，最新的在前。
func (l *Ledger) Recent(ctx context.Context, owner identity.Identity, days int) ([]mood.Entry, error) {
	if days <= 0 {
		return nil, ErrInvalidWindow
	}

	since := l.now().AddDate(0, 0, -days)
	entries, err := l.repo(owner).ListMood(ctx, owner, since)
	if err != nil {
		return nil, fmt.Errorf("list mood entries: %w", err)
	}
	return entries, nil
}

// History 返回全部记录，最新的在前。
func (l *Ledger) History(ctx context.Context, owner identity.Identity) ([]mood.Entry, error) {
	entries, err := l.repo(owner).ListMood(ctx, owner, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("list mood entries: %w", err)
	}
	return entries, nil
}

// Average 返回最近 days 天的平均值；窗口内没有记录时 ok 为 false。
func (l *Ledger) Average(ctx context.Context, owner identity.Identity, days int) (avg float64, ok bool, err error) {
	entries, err := l.Recent(ctx, owner, days)
	if err != nil {
		return 0, false, err
	}
	avg, ok = average(entries)
	return avg, ok, nil
}

// Streak 返回从今天向前连续有记录的天数，今天缺失不打断对之前日期的检查。
func (l *Ledger) Streak(ctx context.Context, owner identity.Identity) (int, error) {
	today := l.startOfDay(l.now())
	since := today.AddDate(0, 0, -(StreakLookback - 1))

	entries, err := l.repo(owner).ListMood(ctx, owner, since)
	if err != nil {
		return 0, fmt.Errorf("list mood entries: %w", err)
	}
	return streak(entries, today, l.loc), nil
}

// Clear 删除身份的全部记录。
func (l *Ledger) Clear(ctx context.Context, owner identity.Identity) error {
	if err := l.repo(owner).DeleteMood(ctx, owner); err != nil {
		l.logger.Error("failed to clear mood entries", zap.String("owner", owner.ID), zap.Error(err))
		return fmt.Errorf("clear mood entries: %w", err)
	}
	return nil
}

func (l *Ledger) startOfDay(t time.Time) time.Time {
	local := t.In(l.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, l.loc)
}

func average(entries []mood.Entry) (float64, bool) {
	if len(entries) == 0 {
		return 0, false
	}
	sum := 0
	for _, e := range entries {
		sum += e.Mood
	}
	return float64(sum) / float64(len(entries)), true
}

func dayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(time.DateOnly)
}

func streak(entries []mood.Entry, today time.Time, loc *time.Location) int {
	logged := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		logged[dayKey(e.CreatedAt, loc)] = struct{}{}
	}

	count := 0
	for i := 0; i < StreakLookback; i++ {
		day := today.AddDate(0, 0, -i)
		if _, ok := logged[dayKey(day, loc)]; ok {
			count++
		} else if i > 0 {
			break
		}
	}
	return count
}
