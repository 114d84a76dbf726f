package schedule

import (
	"testing"
	"time"
)

func intPtr(n int) *int { return &n }

func timePtr(t time.Time) *time.Time { return &t }

func TestComputeProgress_Continuous(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, testLoc)

	if p := ComputeProgress(nil, nil, now, testLoc); p != nil {
		t.Errorf("连续用药时应返回 nil，实际 %+v", p)
	}
}

func TestComputeProgress_Midway(t *testing.T) {
	// duration=10天，started 5 天前 → 过半
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, testLoc)
	started := time.Date(2026, 3, 5, 18, 30, 0, 0, testLoc) // 时分秒不影响日粒度

	p := ComputeProgress(intPtr(10), timePtr(started), now, testLoc)
	if p == nil {
		t.Fatal("不应返回 nil")
	}
	if p.DaysPassed != 5 {
		t.Errorf("期望 DaysPassed=5，实际 %d", p.DaysPassed)
	}
	if p.DaysRemaining != 5 {
		t.Errorf("期望 DaysRemaining=5，实际 %d", p.DaysRemaining)
	}
	if p.ProgressPercentage != 50 {
		t.Errorf("期望进度 50%%，实际 %v", p.ProgressPercentage)
	}
	if !p.IsActive || p.IsCompleted {
		t.Errorf("期望 active=true completed=false，实际 active=%v completed=%v", p.IsActive, p.IsCompleted)
	}
}

func TestComputeProgress_CompletedAndClamped(t *testing.T) {
	// 超期疗程：进度钳制在 100
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, testLoc)
	started := time.Date(2026, 3, 1, 8, 0, 0, 0, testLoc)

	p := ComputeProgress(intPtr(10), timePtr(started), now, testLoc)
	if p == nil {
		t.Fatal("不应返回 nil")
	}
	if !p.IsCompleted {
		t.Error("期望 completed=true")
	}
	if p.IsActive {
		t.Error("期望 active=false")
	}
	if p.ProgressPercentage != 100 {
		t.Errorf("进度应钳制为 100，实际 %v", p.ProgressPercentage)
	}
	if p.DaysRemaining != 0 {
		t.Errorf("期望 DaysRemaining=0，实际 %d", p.DaysRemaining)
	}
}

func TestComputeProgress_FutureStartClampedToZero(t *testing.T) {
	// startedAt 在未来时 daysPassed 钳制为 0
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, testLoc)
	started := time.Date(2026, 3, 15, 8, 0, 0, 0, testLoc)

	p := ComputeProgress(intPtr(10), timePtr(started), now, testLoc)
	if p == nil {
		t.Fatal("不应返回 nil")
	}
	if p.DaysPassed != 0 {
		t.Errorf("期望 DaysPassed=0，实际 %d", p.DaysPassed)
	}
	if p.ProgressPercentage != 0 {
		t.Errorf("期望进度 0，实际 %v", p.ProgressPercentage)
	}
}

func TestTreatmentStatus(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, testLoc)

	cases := []struct {
		name     string
		duration *int
		started  *time.Time
		want     string
	}{
		{"无疗程", nil, nil, TreatmentContinuous},
		{"未开始", intPtr(10), nil, TreatmentNotStarted},
		{"进行中", intPtr(10), timePtr(now.AddDate(0, 0, -3)), TreatmentActive},
		{"已完成", intPtr(10), timePtr(now.AddDate(0, 0, -15)), TreatmentCompleted},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := TreatmentStatus(tc.duration, tc.started, now, testLoc)
			if got != tc.want {
				t.Errorf("期望 %s，实际 %s", tc.want, got)
			}
		})
	}
}
