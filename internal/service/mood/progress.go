package mood

import (
	"context"
	"fmt"

	"github.com/mindease/companion/backend/internal/model/identity"
)

// Achievement identifiers.
const (
	AchievementFirstCheckIn     = "first-check-in"
	AchievementSevenDayStreak   = "seven-day-streak"
	AchievementReflectionMaster = "reflection-master"
)

// Progress thresholds.
const (
	WeeklyGoalTarget       = 5
	weeklyGoalDays         = 7
	progressAverageDays    = 30
	streakAchievementDays  = 7
	reflectionNotesEntries = 10
)

// Achievement 是一项可解锁的成就。
type Achievement struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Unlocked    bool   `json:"unlocked"`
}

// WeeklyGoal 描述最近七天的打卡目标。
type WeeklyGoal struct {
	Target   int  `json:"target"`
	Count    int  `json:"count"`
	Percent  int  `json:"percent"`
	Achieved bool `json:"achieved"`
}

// Progress 汇总身份的情绪日志进度。
type Progress struct {
	Streak       int           `json:"streak"`
	TotalEntries int           `json:"totalEntries"`
	Average30    *float64      `json:"average30"`
	WeeklyGoal   WeeklyGoal    `json:"weeklyGoal"`
	Achievements []Achievement `json:"achievements"`
}

// Progress 计算进度汇总。
func (l *Ledger) Progress(ctx context.Context, owner identity.Identity) (Progress, error) {
	all, err := l.History(ctx, owner)
	if err != nil {
		return Progress{}, err
	}

	now := l.now()
	today := l.startOfDay(now)
	weekStart := now.AddDate(0, 0, -weeklyGoalDays)
	monthStart := now.AddDate(0, 0, -progressAverageDays)

	var (
		weekCount  int
		withNotes  int
		monthSum   int
		monthCount int
	)
	for _, e := range all {
		if !e.CreatedAt.Before(weekStart) {
			weekCount++
		}
		if !e.CreatedAt.Before(monthStart) {
			monthSum += e.Mood
			monthCount++
		}
		if e.Notes != "" {
			withNotes++
		}
	}

	p := Progress{
		Streak:       streak(all, today, l.loc),
		TotalEntries: len(all),
	}
	if monthCount > 0 {
		avg := float64(monthSum) / float64(monthCount)
		p.Average30 = &avg
	}

	goalCount := min(weekCount, WeeklyGoalTarget)
	p.WeeklyGoal = WeeklyGoal{
		Target:   WeeklyGoalTarget,
		Count:    goalCount,
		Percent:  goalCount * 100 / WeeklyGoalTarget,
		Achieved: weekCount >= WeeklyGoalTarget,
	}

	p.Achievements = []Achievement{
		{
			ID:          AchievementFirstCheckIn,
			Title:       "First Check-in",
			Description: "Logged your first mood",
			Unlocked:    len(all) > 0,
		},
		{
			ID:          AchievementSevenDayStreak,
			Title:       "7-Day Streak",
			Description: fmt.Sprintf("Tracked mood for %d days in a row", streakAchievementDays),
			Unlocked:    p.Streak >= streakAchievementDays,
		},
		{
			ID:          AchievementReflectionMaster,
			Title:       "Reflection Master",
			Description: fmt.Sprintf("Added notes to %d entries", reflectionNotesEntries),
			Unlocked:    withNotes >= reflectionNotesEntries,
		},
	}
	return p, nil
}
