package schedule

import (
	"math"
	"time"
)

// 疗程状态
const (
	TreatmentContinuous = "continuous"  // 无疗程概念（未设定时长）
	TreatmentNotStarted = "not_started" // 已设定时长但尚未开始
	TreatmentActive     = "active"      // 疗程进行中
	TreatmentCompleted  = "completed"   // 疗程已结束
)

// Progress 疗程进度（由 duration_days + started_at 推导的只读视图）
type Progress struct {
	DaysPassed         int     `json:"days_passed"`
	DaysRemaining      int     `json:"days_remaining"`
	ProgressPercentage float64 `json:"progress_percentage"`
	IsActive           bool    `json:"is_active"`
	IsCompleted        bool    `json:"is_completed"`
}

// midnight 将时刻归一到 loc 时区当日零点（日粒度运算，避免时分秒造成偏差）
func midnight(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// ComputeProgress 计算疗程进度。
// durationDays 为空（连续用药）时返回 nil。
func ComputeProgress(durationDays *int, startedAt *time.Time, now time.Time, loc *time.Location) *Progress {
	if durationDays == nil || *durationDays <= 0 {
		return nil
	}

	daysPassed := 0
	if startedAt != nil {
		delta := midnight(now, loc).Sub(midnight(*startedAt, loc))
		daysPassed = int(math.Floor(delta.Hours() / 24))
		if daysPassed < 0 {
			daysPassed = 0
		}
	}

	total := *durationDays
	remaining := total - daysPassed
	if remaining < 0 {
		remaining = 0
	}

	pct := float64(daysPassed) / float64(total) * 100
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}

	return &Progress{
		DaysPassed:         daysPassed,
		DaysRemaining:      remaining,
		ProgressPercentage: pct,
		IsActive:           daysPassed >= 0 && daysPassed < total,
		IsCompleted:        daysPassed >= total,
	}
}

// TreatmentStatus 推导疗程状态
func TreatmentStatus(durationDays *int, startedAt *time.Time, now time.Time, loc *time.Location) string {
	p := ComputeProgress(durationDays, startedAt, now, loc)
	if p == nil {
		return TreatmentContinuous
	}
	if startedAt == nil {
		return TreatmentNotStarted
	}
	if p.IsCompleted {
		return TreatmentCompleted
	}
	if p.IsActive {
		return TreatmentActive
	}
	return TreatmentNotStarted
}
