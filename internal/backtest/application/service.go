package application

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/stockbacktest/internal/backtest/domain"
	"github.com/wyfcoding/stockbacktest/internal/sandbox"
	"github.com/wyfcoding/stockbacktest/pkg/logger"
	"github.com/wyfcoding/stockbacktest/pkg/utils"
)

// CommandService 对外命令入口：策略注册、任务提交与取消、结果查询。
// 所有写路径都先经过领域校验，沙箱拒绝的策略不会入库。
type CommandService struct {
	jobs         domain.JobRepository
	results      domain.ResultRepository
	strategies   domain.StrategyRepository
	box          *sandbox.Sandbox
	orchestrator *Orchestrator
	idGen        *utils.SnowflakeID
}

// NewCommandService 创建命令服务
func NewCommandService(
	jobs domain.JobRepository,
	results domain.ResultRepository,
	strategies domain.StrategyRepository,
	box *sandbox.Sandbox,
	orchestrator *Orchestrator,
	idGen *utils.SnowflakeID,
) *CommandService {
	return &CommandService{
		jobs:         jobs,
		results:      results,
		strategies:   strategies,
		box:          box,
		orchestrator: orchestrator,
		idGen:        idGen,
	}
}

// RegisterStrategy 校验并登记策略源码。校验不通过返回 SandboxRejected，
// params 为注册时固化的参数覆盖。
func (s *CommandService) RegisterStrategy(ctx context.Context, name, source string, params map[string]float64) (*domain.StrategyDefinition, error) {
	validation := s.box.Validate(source)
	if !validation.Valid {
		return nil, &domain.SandboxRejected{Reasons: validation.Errors}
	}
	for _, warn := range validation.Warnings {
		logger.Warn(ctx, "Strategy validation warning", "name", name, "warning", warn)
	}

	if name == "" {
		name = validation.EntryPoint
	}
	strategyID := strconv.FormatInt(s.idGen.Generate(), 10)
	def := domain.NewStrategyDefinition(strategyID, name, source, utils.SHA256Hash(source), params)
	def.MarkValidated(validation.EntryPoint)

	if err := s.strategies.Save(ctx, def); err != nil {
		return nil, &domain.SystemError{Op: "persist strategy", Cause: err}
	}
	logger.Info(ctx, "Strategy registered",
		"strategy_id", def.StrategyID,
		"entry_point", def.EntryPoint,
		"content_hash", def.ContentHash,
	)
	return def, nil
}

// ValidateStrategy 仅做静态校验，不入库
func (s *CommandService) ValidateStrategy(source string) sandbox.ValidationResult {
	return s.box.Validate(source)
}

// SubmitJobCommand 任务提交命令
type SubmitJobCommand struct {
	StrategyIDs    []string               `json:"strategy_ids"`
	Instruments    []string               `json:"instruments"`
	StartDate      string                 `json:"start_date"`
	EndDate        string                 `json:"end_date"`
	InitialCapital float64                `json:"initial_capital"`
	CommissionRate float64                `json:"commission_rate"`
	SlippagePct    float64                `json:"slippage_pct"`
	Sizing         *domain.PositionSizing `json:"sizing"`
	AdjustPrices   *bool                  `json:"adjust_prices"`
	Priority       int                    `json:"priority"`
}

// SubmitJob 创建 PENDING 任务，由调度器择机认领。
// 引用的策略必须已注册且通过沙箱校验。
func (s *CommandService) SubmitJob(ctx context.Context, cmd SubmitJobCommand) (*domain.BacktestJob, error) {
	start, err := utils.ParseDate(cmd.StartDate)
	if err != nil {
		return nil, fmt.Errorf("invalid start date %q: %w", cmd.StartDate, err)
	}
	end, err := utils.ParseDate(cmd.EndDate)
	if err != nil {
		return nil, fmt.Errorf("invalid end date %q: %w", cmd.EndDate, err)
	}

	defs, err := s.strategies.FindByStrategyIDs(ctx, cmd.StrategyIDs)
	if err != nil {
		return nil, &domain.SystemError{Op: "load strategies", Cause: err}
	}
	for _, sid := range cmd.StrategyIDs {
		def, ok := defs[sid]
		if !ok {
			return nil, fmt.Errorf("strategy %s not found", sid)
		}
		if !def.Valid {
			return nil, fmt.Errorf("strategy %s has not passed validation", sid)
		}
	}

	sizing := domain.PositionSizing{Type: domain.SizingPercent, Value: 95}
	if cmd.Sizing != nil {
		sizing = *cmd.Sizing
	}

	jobID := strconv.FormatInt(s.idGen.Generate(), 10)
	job, err := domain.NewBacktestJob(jobID, cmd.StrategyIDs, cmd.Instruments, start, end,
		decimal.NewFromFloat(cmd.InitialCapital), sizing)
	if err != nil {
		return nil, err
	}
	if cmd.CommissionRate > 0 {
		job.CommissionRate = decimal.NewFromFloat(cmd.CommissionRate)
	}
	if cmd.SlippagePct > 0 {
		job.SlippagePct = decimal.NewFromFloat(cmd.SlippagePct)
	}
	if cmd.AdjustPrices != nil {
		job.AdjustPrices = *cmd.AdjustPrices
	}
	job.Priority = cmd.Priority

	if err := s.jobs.Save(ctx, job); err != nil {
		return nil, &domain.SystemError{Op: "persist job", Cause: err}
	}
	logger.Info(ctx, "Job submitted",
		"job_id", job.JobID,
		"strategies", len(cmd.StrategyIDs),
		"instruments", len(cmd.Instruments),
		"start", cmd.StartDate,
		"end", cmd.EndDate,
	)
	return job, nil
}

// CancelJob 取消任务。PENDING/QUEUED 直接转 CANCELLED；
// RUNNING 任务登记取消请求，在下一个组合边界生效；终态任务为幂等 no-op。
func (s *CommandService) CancelJob(ctx context.Context, jobID string) error {
	job, err := s.jobs.FindByJobID(ctx, jobID)
	if err != nil {
		return &domain.SystemError{Op: "load job", Cause: err}
	}
	if job == nil {
		return fmt.Errorf("job %s not found", jobID)
	}
	if job.Status.Terminal() {
		return nil
	}

	if job.Status == domain.JobStatusRunning {
		s.orchestrator.RequestCancel(jobID)
		logger.Info(ctx, "Cancellation requested for running job", "job_id", jobID)
		return nil
	}

	job.Cancel()
	if err := s.jobs.Save(ctx, job); err != nil {
		return &domain.SystemError{Op: "persist cancellation", Cause: err}
	}
	logger.Info(ctx, "Job cancelled", "job_id", jobID)
	return nil
}

// GetJob 查询任务
func (s *CommandService) GetJob(ctx context.Context, jobID string) (*domain.BacktestJob, error) {
	job, err := s.jobs.FindByJobID(ctx, jobID)
	if err != nil {
		return nil, &domain.SystemError{Op: "load job", Cause: err}
	}
	if job == nil {
		return nil, fmt.Errorf("job %s not found", jobID)
	}
	return job, nil
}

// GetJobResults 查询任务的全部组合结果
func (s *CommandService) GetJobResults(ctx context.Context, jobID string) ([]*domain.BacktestResult, error) {
	results, err := s.results.ListByJobID(ctx, jobID)
	if err != nil {
		return nil, &domain.SystemError{Op: "load results", Cause: err}
	}
	return results, nil
}

// GetStrategy 查询策略定义
func (s *CommandService) GetStrategy(ctx context.Context, strategyID string) (*domain.StrategyDefinition, error) {
	def, err := s.strategies.FindByStrategyID(ctx, strategyID)
	if err != nil {
		return nil, &domain.SystemError{Op: "load strategy", Cause: err}
	}
	if def == nil {
		return nil, fmt.Errorf("strategy %s not found", strategyID)
	}
	return def, nil
}
