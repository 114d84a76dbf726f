package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/thiagotlz/medcontrol/config"
	"github.com/thiagotlz/medcontrol/internal/service"
)

// ── Mock NotifierService ──

type mockNotifier struct {
	mu         sync.Mutex
	dispatches int
	replenish  int
	cleanups   int
}

func (m *mockNotifier) DispatchDue(_ context.Context, _ time.Time) (*service.DispatchReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatches++
	return &service.DispatchReport{}, nil
}

func (m *mockNotifier) Replenish(_ context.Context, _ time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replenish++
	return 0, nil
}

func (m *mockNotifier) Cleanup(_ context.Context, _ time.Time) (*service.CleanupReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanups++
	return &service.CleanupReport{}, nil
}

func testSchedulerConfig() *config.SchedulerConfig {
	return &config.SchedulerConfig{
		Timezone:          "America/Sao_Paulo",
		SweepCron:         "* * * * *",
		ReplenishCron:     "0 * * * *",
		CleanupCron:       "0 2 * * *",
		DueTolerance:      2 * time.Minute,
		HorizonDays:       7,
		LowWaterMark:      10,
		DoseRetentionDays: 30,
		LogRetentionDays:  90,
	}
}

func TestNew_InvalidCronSpec(t *testing.T) {
	cfg := testSchedulerConfig()
	cfg.SweepCron = "not a cron spec"

	if _, err := New(cfg, &mockNotifier{}, zap.NewNop()); err == nil {
		t.Error("期望非法 cron 表达式返回错误，实际为 nil")
	}
}

func TestStartStop_Idempotent(t *testing.T) {
	s, err := New(testSchedulerConfig(), &mockNotifier{}, zap.NewNop())
	if err != nil {
		t.Fatalf("创建调度器失败: %v", err)
	}

	if s.Running() {
		t.Error("未启动前不应处于运行状态")
	}

	s.Start()
	s.Start() // 重复启动只告警
	if !s.Running() {
		t.Error("启动后应处于运行状态")
	}

	s.Stop()
	s.Stop() // 重复停止只告警
	if s.Running() {
		t.Error("停止后不应处于运行状态")
	}
}

func TestRunJob_Manual(t *testing.T) {
	notifier := &mockNotifier{}
	s, err := New(testSchedulerConfig(), notifier, zap.NewNop())
	if err != nil {
		t.Fatalf("创建调度器失败: %v", err)
	}

	ctx := context.Background()
	for _, name := range []string{JobSweep, JobReplenish, JobCleanup} {
		if err := s.RunJob(ctx, name); err != nil {
			t.Errorf("手动执行 %s 失败: %v", name, err)
		}
	}

	if notifier.dispatches != 1 || notifier.replenish != 1 || notifier.cleanups != 1 {
		t.Errorf("期望各任务执行 1 次，实际 dispatch=%d replenish=%d cleanup=%d",
			notifier.dispatches, notifier.replenish, notifier.cleanups)
	}
}

func TestRunJob_Unknown(t *testing.T) {
	s, _ := New(testSchedulerConfig(), &mockNotifier{}, zap.NewNop())

	if err := s.RunJob(context.Background(), "nope"); err == nil {
		t.Error("期望未知任务返回错误，实际为 nil")
	}
}
