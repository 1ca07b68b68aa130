package domain

import (
	"context"
	"time"
)

// JobRepository 任务仓储端口
type JobRepository interface {
	Save(ctx context.Context, job *BacktestJob) error
	FindByJobID(ctx context.Context, jobID string) (*BacktestJob, error)
	// ClaimNextPending 以乐观更新认领优先级最高的 PENDING 任务
	// （PENDING -> QUEUED），无待处理任务时返回 (nil, nil)
	ClaimNextPending(ctx context.Context) (*BacktestJob, error)
}

// ResultRepository 结果仓储端口
type ResultRepository interface {
	Save(ctx context.Context, result *BacktestResult) error
	ListByJobID(ctx context.Context, jobID string) ([]*BacktestResult, error)
}

// CombinationWriter 组合完结写入端口：结果行与更新后的任务计数
// 必须原子落库，消费侧才不会观察到结果行与计数不一致
type CombinationWriter interface {
	SaveCombination(ctx context.Context, result *BacktestResult, job *BacktestJob) error
}

// StrategyRepository 策略定义仓储端口
type StrategyRepository interface {
	Save(ctx context.Context, def *StrategyDefinition) error
	FindByStrategyID(ctx context.Context, strategyID string) (*StrategyDefinition, error)
	FindByStrategyIDs(ctx context.Context, strategyIDs []string) (map[string]*StrategyDefinition, error)
}

// MarketDataRepository 行情数据端口，由外部数据管道灌库
type MarketDataRepository interface {
	GetBars(ctx context.Context, code string, start, end time.Time) ([]MarketBar, error)
	GetAdjustmentFactors(ctx context.Context, code string) ([]AdjustmentFactor, error)
	// GetInstrument 读取标的基础信息；无记录时返回 (nil, nil)，按非 ST 主板处理
	GetInstrument(ctx context.Context, code string) (*Instrument, error)
}
