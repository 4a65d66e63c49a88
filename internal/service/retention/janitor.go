// Package retention 定期清理进程内的对话与匿名数据。
package retention

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Task 是一项清理任务，返回本次清理的条目数。
type Task struct {
	Name string
	Run  func(now time.Time) int
}

// Janitor 按 cron 表达式执行清理任务。
type Janitor struct {
	cron   *cron.Cron
	tasks  []Task
	logger *zap.Logger
	now    func() time.Time
}

// Option 配置 Janitor。
type Option func(*Janitor)

// WithClock 替换时钟，用于测试。
func WithClock(now func() time.Time) Option {
	return func(j *Janitor) {
		if now != nil {
			j.now = now
		}
	}
}

// New 创建 Janitor 并登记任务；schedule 无法解析时返回错误。
func New(schedule string, logger *zap.Logger, tasks []Task, opts ...Option) (*Janitor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	j := &Janitor{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		tasks:  tasks,
		logger: logger.Named("retention"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}

	if _, err := j.cron.AddFunc(schedule, j.RunOnce); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}
	return j, nil
}

// RunOnce 立即执行全部任务。
func (j *Janitor) RunOnce() {
	now := j.now()
	for _, task := range j.tasks {
		removed := task.Run(now)
		if removed > 0 {
			j.logger.Info("retention sweep", zap.String("task", task.Name), zap.Int("removed", removed))
		}
	}
}

// Start 启动调度。
func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop 停止调度并等待正在执行的任务结束。
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}
