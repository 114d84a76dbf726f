// Package scheduler 驱动三个周期任务：到期提醒扫描、剂量补充、过期数据清理。
// 任务执行体在 service 层，此处只负责按 cron 表达式在配置时区内触发。
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/thiagotlz/medcontrol/config"
	"github.com/thiagotlz/medcontrol/internal/service"
)

// 任务名
const (
	JobSweep     = "sweep"
	JobReplenish = "replenish"
	JobCleanup   = "cleanup"
)

// Scheduler 定时调度器
type Scheduler struct {
	cfg      *config.SchedulerConfig
	notifier service.NotifierService
	logger   *zap.Logger

	cron *cron.Cron
	jobs map[string]func(context.Context)

	mu      sync.Mutex
	running bool
}

// New 创建调度器并注册全部任务。
// 上个周期未结束时跳过本次触发，避免慢 SMTP 导致任务堆叠。
func New(cfg *config.SchedulerConfig, notifier service.NotifierService, logger *zap.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cfg:      cfg,
		notifier: notifier,
		logger:   logger,
	}
	s.jobs = map[string]func(context.Context){
		JobSweep:     s.sweep,
		JobReplenish: s.replenish,
		JobCleanup:   s.cleanup,
	}

	cronLogger := &zapCronLogger{logger: logger.Named("cron")}
	s.cron = cron.New(
		cron.WithLocation(cfg.Location()),
		cron.WithChain(
			cron.SkipIfStillRunning(cronLogger),
			cron.Recover(cronLogger),
		),
	)

	specs := map[string]string{
		JobSweep:     cfg.SweepCron,
		JobReplenish: cfg.ReplenishCron,
		JobCleanup:   cfg.CleanupCron,
	}
	for name, spec := range specs {
		job := s.jobs[name]
		if _, err := s.cron.AddFunc(spec, func() {
			job(context.Background())
		}); err != nil {
			return nil, fmt.Errorf("注册任务 %s 失败: %w", name, err)
		}
	}

	return s, nil
}

// Start 启动调度器。重复启动只告警。
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Warn("调度器已在运行")
		return
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("调度器已启动",
		zap.String("timezone", s.cfg.Timezone),
		zap.String("sweep", s.cfg.SweepCron),
		zap.String("replenish", s.cfg.ReplenishCron),
		zap.String("cleanup", s.cfg.CleanupCron))
}

// Stop 停止调度器并等待运行中的任务结束
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		s.logger.Warn("调度器未在运行")
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false

	s.logger.Info("调度器已停止")
}

// Running 返回调度器是否在运行
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunJob 手动执行指定任务（管理接口用）
func (s *Scheduler) RunJob(ctx context.Context, name string) error {
	job, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("未知任务: %s", name)
	}
	s.logger.Info("手动执行任务", zap.String("job", name))
	job(ctx)
	return nil
}

// ── 任务执行体 ──

func (s *Scheduler) sweep(ctx context.Context) {
	report, err := s.notifier.DispatchDue(ctx, time.Now())
	if err != nil {
		s.logger.Error("到期扫描失败", zap.Error(err))
		return
	}
	if report.Due > 0 {
		s.logger.Info("到期扫描完成",
			zap.Int("due", report.Due),
			zap.Int("sent", report.Sent),
			zap.Int("suppressed", report.Suppressed),
			zap.Int("failed", report.Failed),
			zap.Int("conflicts", report.Conflicts))
	}
}

func (s *Scheduler) replenish(ctx context.Context) {
	if _, err := s.notifier.Replenish(ctx, time.Now()); err != nil {
		s.logger.Error("剂量补充失败", zap.Error(err))
	}
}

func (s *Scheduler) cleanup(ctx context.Context) {
	if _, err := s.notifier.Cleanup(ctx, time.Now()); err != nil {
		s.logger.Error("数据清理失败", zap.Error(err))
	}
}

// ── cron 日志适配 ──

// zapCronLogger 将 cron.Logger 适配到 zap
type zapCronLogger struct {
	logger *zap.Logger
}

func (l *zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Infow(msg, keysAndValues...)
}

func (l *zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
