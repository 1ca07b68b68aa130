package application

import (
	"context"
	"sync"
	"time"

	"github.com/wyfcoding/stockbacktest/internal/backtest/domain"
	"github.com/wyfcoding/stockbacktest/pkg/config"
	"github.com/wyfcoding/stockbacktest/pkg/logger"
)

// Scheduler 任务调度器：轮询认领 PENDING 任务并交给编排器执行。
// 同时运行的任务数由 max_parallel_jobs 限定，认领在数据库侧以
// 乐观更新完成，多实例部署下不会重复执行。
type Scheduler struct {
	jobs         domain.JobRepository
	orchestrator *Orchestrator
	pollInterval time.Duration
	slots        chan struct{}
}

// NewScheduler 创建调度器
func NewScheduler(jobs domain.JobRepository, orchestrator *Orchestrator, cfg config.BacktestConfig) *Scheduler {
	return &Scheduler{
		jobs:         jobs,
		orchestrator: orchestrator,
		pollInterval: time.Duration(cfg.PollInterval) * time.Second,
		slots:        make(chan struct{}, cfg.MaxParallelJobs),
	}
}

// Run 阻塞运行调度循环直至 ctx 取消，返回前等待在途任务完结
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	logger.Info(ctx, "Scheduler started",
		"poll_interval", s.pollInterval,
		"max_parallel_jobs", cap(s.slots),
	)

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Scheduler stopping, waiting for running jobs")
			wg.Wait()
			return ctx.Err()
		case <-ticker.C:
		}

		// 无空闲槽位时跳过本轮，不占住 PENDING 任务
		select {
		case s.slots <- struct{}{}:
		default:
			continue
		}

		job, err := s.jobs.ClaimNextPending(ctx)
		if err != nil {
			logger.Error(ctx, "Failed to claim pending job", "error", err)
			<-s.slots
			continue
		}
		if job == nil {
			<-s.slots
			continue
		}

		logger.Info(ctx, "Job claimed", "job_id", job.JobID, "priority", job.Priority)
		wg.Add(1)
		go func(job *domain.BacktestJob) {
			defer wg.Done()
			defer func() { <-s.slots }()
			// 错误已由编排器落库并广播，这里无需再处理
			_ = s.orchestrator.Run(ctx, job)
		}(job)
	}
}
