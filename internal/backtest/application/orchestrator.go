// Package application 回测服务应用层
// 生成摘要：
// 1) Orchestrator 在有界 worker 池内并发执行任务的全部 (策略, 标的) 组合
// 2) 组合级错误只计入失败计数，任务继续；SystemError 将整个任务转入 FAILED
// 3) 计数器更新、任务落库与事件发布在同一互斥段内完成，保证事件携带的
//    计数单调不减；取消只在组合边界生效
package application

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/stockbacktest/internal/backtest/domain"
	"github.com/wyfcoding/stockbacktest/internal/sandbox"
	"github.com/wyfcoding/stockbacktest/pkg/config"
	"github.com/wyfcoding/stockbacktest/pkg/logger"
	"github.com/wyfcoding/stockbacktest/pkg/metrics"
	"github.com/wyfcoding/stockbacktest/pkg/utils"
)

// combination 一个待执行的 (策略, 标的) 组合
type combination struct {
	strategyID string
	code       string
}

// Orchestrator 任务编排器。一个实例服务整个进程，可同时驱动多个任务；
// 单个任务内的组合并发度由 worker_pool_size 限定。
type Orchestrator struct {
	jobs       domain.JobRepository
	writer     domain.CombinationWriter
	strategies domain.StrategyRepository
	marketData domain.MarketDataRepository
	publisher  domain.EventPublisher
	box        *sandbox.Sandbox
	metrics    *metrics.Metrics
	idGen      *utils.SnowflakeID

	workerPoolSize    int
	riskFreeRate      float64
	errorMessageLimit int

	mu        sync.Mutex
	cancelled map[string]bool
}

// NewOrchestrator 创建编排器
func NewOrchestrator(
	jobs domain.JobRepository,
	writer domain.CombinationWriter,
	strategies domain.StrategyRepository,
	marketData domain.MarketDataRepository,
	publisher domain.EventPublisher,
	box *sandbox.Sandbox,
	m *metrics.Metrics,
	idGen *utils.SnowflakeID,
	cfg config.BacktestConfig,
) *Orchestrator {
	return &Orchestrator{
		jobs:              jobs,
		writer:            writer,
		strategies:        strategies,
		marketData:        marketData,
		publisher:         publisher,
		box:               box,
		metrics:           m,
		idGen:             idGen,
		workerPoolSize:    cfg.WorkerPoolSize,
		riskFreeRate:      cfg.RiskFreeRate,
		errorMessageLimit: cfg.ErrorMessageLimit,
		cancelled:         map[string]bool{},
	}
}

// RequestCancel 登记取消请求。RUNNING 任务在下一个组合边界停止
// 派发，在途组合先行完结。
func (o *Orchestrator) RequestCancel(jobID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cancelled[jobID] = true
}

func (o *Orchestrator) cancelRequested(jobID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cancelled[jobID]
}

func (o *Orchestrator) clearCancel(jobID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.cancelled, jobID)
}

// Run 执行一个 QUEUED 任务直至终态。返回错误仅表示任务级致命故障，
// 组合失败不会从这里冒出。
func (o *Orchestrator) Run(ctx context.Context, job *domain.BacktestJob) error {
	defer o.clearCancel(job.JobID)

	strategyIDs := job.StrategyIDList()
	codes := job.InstrumentList()
	combos := make([]combination, 0, len(strategyIDs)*len(codes))
	for _, sid := range strategyIDs {
		for _, code := range codes {
			combos = append(combos, combination{strategyID: sid, code: code})
		}
	}

	if err := job.Start(len(combos)); err != nil {
		return err
	}
	if err := o.jobs.Save(ctx, job); err != nil {
		return o.failJob(ctx, job, &domain.SystemError{Op: "start job", Cause: err})
	}
	o.metrics.JobsStarted.Inc()
	if err := o.publisher.PublishLog(ctx, domain.JobLogEvent{
		JobID:   job.JobID,
		Level:   "info",
		Message: fmt.Sprintf("job started with %d combinations", len(combos)),
	}); err != nil {
		o.metrics.EventPublishErrors.Inc()
		return o.failJob(ctx, job, &domain.SystemError{Op: "publish log", Cause: err})
	}
	logger.Info(ctx, "Backtest job started",
		"job_id", job.JobID,
		"strategies", len(strategyIDs),
		"instruments", len(codes),
		"combinations", len(combos),
	)

	defs, err := o.strategies.FindByStrategyIDs(ctx, strategyIDs)
	if err != nil {
		return o.failJob(ctx, job, &domain.SystemError{Op: "load strategies", Cause: err})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workerPoolSize)

	dispatched := 0
	for _, combo := range combos {
		if o.cancelRequested(job.JobID) {
			break
		}
		dispatched++
		combo := combo
		g.Go(func() error {
			o.metrics.ActiveWorkers.Inc()
			defer o.metrics.ActiveWorkers.Dec()
			return o.executeCombination(gctx, job, defs[combo.strategyID], combo)
		})
	}

	if err := g.Wait(); err != nil {
		return o.failJob(ctx, job, err)
	}

	if dispatched < len(combos) || o.cancelRequested(job.JobID) {
		o.mu.Lock()
		job.Cancel()
		saveErr := o.jobs.Save(ctx, job)
		o.mu.Unlock()
		if saveErr != nil {
			return o.failJob(ctx, job, &domain.SystemError{Op: "persist cancellation", Cause: saveErr})
		}
	}

	o.finishJob(ctx, job)
	return nil
}

// executeCombination 运行单个组合并提交其结果。
// 返回非 nil 即 SystemError，由调用方转入任务失败路径。
func (o *Orchestrator) executeCombination(ctx context.Context, job *domain.BacktestJob, def *domain.StrategyDefinition, combo combination) error {
	defer logger.LogDuration(ctx, "Combination finished",
		"job_id", job.JobID,
		"strategy_id", combo.strategyID,
		"code", combo.code,
	)()

	start := time.Now()
	resultID := strconv.FormatInt(o.idGen.Generate(), 10)
	row := domain.NewBacktestResult(resultID, job.JobID, combo.strategyID, combo.code)

	outcome, runErr := o.simulate(ctx, job, def, combo)
	elapsed := time.Since(start)

	switch {
	case runErr == nil:
		m := domain.ComputeMetrics(outcome, job.InitialCapital.InexactFloat64(), o.riskFreeRate)
		row.Finalize(m, outcome.Equity, outcome.Trades, elapsed)
	case domain.IsCombinationError(runErr):
		row.MarkFailed(domain.FailureKind(runErr),
			utils.TruncateString(runErr.Error(), o.errorMessageLimit), elapsed)
		logger.Warn(ctx, "Combination failed",
			"job_id", job.JobID,
			"strategy_id", combo.strategyID,
			"code", combo.code,
			"kind", row.FailureKind,
			"error", runErr,
		)
	default:
		return runErr
	}

	return o.commitCombination(ctx, job, row, elapsed)
}

// simulate 组合的纯计算部分：装载策略、取数、建引擎、跑模拟。
// 返回的错误已按组合级/任务级分类。
func (o *Orchestrator) simulate(ctx context.Context, job *domain.BacktestJob, def *domain.StrategyDefinition, combo combination) (*domain.SimulationOutcome, error) {
	if def == nil {
		return nil, &domain.DataError{Code: combo.code,
			Detail: fmt.Sprintf("strategy %s not found", combo.strategyID)}
	}

	params, err := def.ParamsMap()
	if err != nil {
		return nil, &domain.SandboxExecutionError{Cause: err}
	}
	// 句柄持有可变指标窗口，必须组合私有，不能跨组合复用
	handle, err := o.box.Load(def.Source, params)
	if err != nil {
		return nil, err
	}

	instrument, err := o.marketData.GetInstrument(ctx, combo.code)
	if err != nil {
		return nil, &domain.SystemError{Op: "load instrument", Cause: err}
	}
	isST := instrument != nil && instrument.IsST

	bars, err := o.marketData.GetBars(ctx, combo.code, job.StartDate, job.EndDate)
	if err != nil {
		return nil, &domain.SystemError{Op: "load market bars", Cause: err}
	}
	if len(bars) == 0 {
		return nil, &domain.DataError{Code: combo.code, Detail: fmt.Sprintf(
			"no bars between %s and %s",
			utils.FormatDate(job.StartDate), utils.FormatDate(job.EndDate))}
	}

	var factors []domain.AdjustmentFactor
	if job.AdjustPrices {
		factors, err = o.marketData.GetAdjustmentFactors(ctx, combo.code)
		if err != nil {
			return nil, &domain.SystemError{Op: "load adjustment factors", Cause: err}
		}
	}
	feed := domain.NewPriceFeed(combo.code, bars, factors, job.StartDate, job.AdjustPrices)

	engine := domain.NewSimulationEngine(domain.SimulationConfig{
		InitialCapital: job.InitialCapital,
		CommissionRate: job.CommissionRate,
		SlippagePct:    job.SlippagePct,
		Sizing:         job.SizingSpec(),
		IsST:           isST,
	}, handle, feed)

	return engine.Run(ctx)
}

// commitCombination 提交组合结果：在互斥段内推进任务计数，结果行与
// 计数同事务落库，随后按更新后的计数发布进度与结果事件。
// 互斥段保证消费者观察到的计数单调不减。
func (o *Orchestrator) commitCombination(ctx context.Context, job *domain.BacktestJob, row *domain.BacktestResult, elapsed time.Duration) error {
	success := row.Status == domain.ResultStatusDone

	o.mu.Lock()
	defer o.mu.Unlock()

	if err := job.RecordCombination(success); err != nil {
		return &domain.SystemError{Op: "advance counters", Cause: err}
	}
	if err := o.writer.SaveCombination(ctx, row, job); err != nil {
		return &domain.SystemError{Op: "persist combination", Cause: err}
	}

	if err := o.publisher.PublishProgress(ctx, domain.JobProgressEvent{
		JobID:           job.JobID,
		ProgressPercent: job.ProgressPercent(),
		Completed:       job.Completed,
		Total:           job.Total,
		Successful:      job.Successful,
		Failed:          job.Failed,
	}); err != nil {
		o.metrics.EventPublishErrors.Inc()
		return &domain.SystemError{Op: "publish progress", Cause: err}
	}
	if err := o.publisher.PublishResult(ctx, domain.CombinationResultEvent{
		JobID:        job.JobID,
		StrategyID:   row.StrategyID,
		Code:         row.Code,
		Status:       string(row.Status),
		TotalReturn:  row.TotalReturn,
		SharpeRatio:  row.SharpeRatio,
		MaxDrawdown:  row.MaxDrawdown,
		TotalTrades:  row.TotalTrades,
		FailureKind:  row.FailureKind,
		ErrorMessage: row.ErrorMessage,
	}); err != nil {
		o.metrics.EventPublishErrors.Inc()
		return &domain.SystemError{Op: "publish result", Cause: err}
	}

	o.metrics.RecordCombination(string(row.Status), elapsed)
	return nil
}

// failJob 任务级致命错误处理：转 FAILED、落库、广播终态
func (o *Orchestrator) failJob(ctx context.Context, job *domain.BacktestJob, cause error) error {
	logger.Error(ctx, "Backtest job failed",
		"job_id", job.JobID,
		"error", cause,
	)

	o.mu.Lock()
	job.Fail(utils.TruncateString(cause.Error(), o.errorMessageLimit))
	if err := o.jobs.Save(ctx, job); err != nil {
		logger.Error(ctx, "Failed to persist job failure", "job_id", job.JobID, "error", err)
	}
	o.mu.Unlock()

	if err := o.publisher.PublishLog(ctx, domain.JobLogEvent{
		JobID:   job.JobID,
		Level:   "error",
		Message: job.ErrorMessage,
	}); err != nil {
		o.metrics.EventPublishErrors.Inc()
	}
	o.publishCompletion(ctx, job)
	o.metrics.JobsFinished.WithLabelValues(string(job.Status)).Inc()
	return cause
}

// finishJob 正常完结路径（COMPLETED 或 CANCELLED）
func (o *Orchestrator) finishJob(ctx context.Context, job *domain.BacktestJob) {
	o.publishCompletion(ctx, job)
	o.metrics.JobsFinished.WithLabelValues(string(job.Status)).Inc()
	logger.Info(ctx, "Backtest job finished",
		"job_id", job.JobID,
		"status", job.Status,
		"total", job.Total,
		"successful", job.Successful,
		"failed", job.Failed,
	)
}

func (o *Orchestrator) publishCompletion(ctx context.Context, job *domain.BacktestJob) {
	var durationMs int64
	if job.StartedAt != nil && job.FinishedAt != nil {
		durationMs = job.FinishedAt.Sub(*job.StartedAt).Milliseconds()
	}
	if err := o.publisher.PublishJobComplete(ctx, domain.JobCompleteEvent{
		JobID:      job.JobID,
		Status:     string(job.Status),
		Total:      job.Total,
		Completed:  job.Completed,
		Successful: job.Successful,
		Failed:     job.Failed,
		DurationMs: durationMs,
	}); err != nil {
		// 任务已持久化为终态，事件丢失只影响观察方
		o.metrics.EventPublishErrors.Inc()
		logger.Error(ctx, "Failed to publish job completion", "job_id", job.JobID, "error", err)
	}
}
