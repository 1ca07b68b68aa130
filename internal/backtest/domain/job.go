package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/wyfcoding/stockbacktest/pkg/utils"
)

// JobStatus 任务状态
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusQueued    JobStatus = "QUEUED"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

// Terminal 是否为终态
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// SizingType 仓位计算方式
type SizingType string

const (
	SizingPercent SizingType = "percent"
	SizingFixed   SizingType = "fixed"
)

// PositionSizing 仓位配置
type PositionSizing struct {
	Type  SizingType `json:"type"`
	Value float64    `json:"value"`
}

// BacktestJob 回测任务聚合根。由提交方创建，此后仅由编排器变更。
// 计数器不变式：successful + failed == completed <= total。
type BacktestJob struct {
	gorm.Model
	JobID          string          `gorm:"column:job_id;type:varchar(32);uniqueIndex;not null"`
	StrategyIDs    string          `gorm:"column:strategy_ids;type:json;not null"`
	Instruments    string          `gorm:"column:instruments;type:json;not null"`
	StartDate      time.Time       `gorm:"column:start_date;not null"`
	EndDate        time.Time       `gorm:"column:end_date;not null"`
	InitialCapital decimal.Decimal `gorm:"column:initial_capital;type:decimal(20,4);not null"`
	CommissionRate decimal.Decimal `gorm:"column:commission_rate;type:decimal(10,6);not null"`
	SlippagePct    decimal.Decimal `gorm:"column:slippage_pct;type:decimal(10,6);not null"`
	Sizing         string          `gorm:"column:sizing;type:json"`
	AdjustPrices   bool            `gorm:"column:adjust_prices;not null;default:true"`
	Priority       int             `gorm:"column:priority;not null;default:0"`
	Status         JobStatus       `gorm:"column:status;type:varchar(16);not null;default:'PENDING';index"`

	Total      int `gorm:"column:total;not null;default:0"`
	Completed  int `gorm:"column:completed;not null;default:0"`
	Successful int `gorm:"column:successful;not null;default:0"`
	Failed     int `gorm:"column:failed;not null;default:0"`

	ErrorMessage string     `gorm:"column:error_message;type:text"`
	StartedAt    *time.Time `gorm:"column:started_at"`
	FinishedAt   *time.Time `gorm:"column:finished_at"`
}

// TableName 表名
func (BacktestJob) TableName() string {
	return "backtest_jobs"
}

// NewBacktestJob 创建 PENDING 状态的任务
func NewBacktestJob(jobID string, strategyIDs, instruments []string, start, end time.Time,
	capital decimal.Decimal, sizing PositionSizing) (*BacktestJob, error) {
	if len(strategyIDs) == 0 {
		return nil, errors.New("job requires at least one strategy")
	}
	if len(instruments) == 0 {
		return nil, errors.New("job requires at least one instrument")
	}
	if !end.After(start) {
		return nil, errors.New("job end date must be after start date")
	}
	if capital.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("initial capital must be positive")
	}

	return &BacktestJob{
		JobID:          jobID,
		StrategyIDs:    utils.ToJSON(strategyIDs),
		Instruments:    utils.ToJSON(instruments),
		StartDate:      start,
		EndDate:        end,
		InitialCapital: capital,
		CommissionRate: decimal.NewFromFloat(DefaultCommissionRate),
		SlippagePct:    decimal.Zero,
		Sizing:         utils.ToJSON(sizing),
		AdjustPrices:   true,
		Status:         JobStatusPending,
	}, nil
}

// StrategyIDList 解析策略 ID 列表
func (j *BacktestJob) StrategyIDList() []string {
	var ids []string
	_ = utils.FromJSON(j.StrategyIDs, &ids)
	return ids
}

// InstrumentList 解析标的代码列表
func (j *BacktestJob) InstrumentList() []string {
	var codes []string
	_ = utils.FromJSON(j.Instruments, &codes)
	return codes
}

// SizingSpec 解析仓位配置，缺省按 95% 资金比例
func (j *BacktestJob) SizingSpec() PositionSizing {
	sizing := PositionSizing{Type: SizingPercent, Value: 95}
	if j.Sizing != "" {
		_ = utils.FromJSON(j.Sizing, &sizing)
	}
	return sizing
}

// Enqueue PENDING -> QUEUED，被调度器认领
func (j *BacktestJob) Enqueue() error {
	if j.Status != JobStatusPending {
		return fmt.Errorf("cannot enqueue job in status %s", j.Status)
	}
	j.Status = JobStatusQueued
	return nil
}

// Start QUEUED -> RUNNING，初始化计数器
func (j *BacktestJob) Start(total int) error {
	if j.Status != JobStatusQueued {
		return fmt.Errorf("cannot start job in status %s", j.Status)
	}
	now := time.Now()
	j.Status = JobStatusRunning
	j.Total = total
	j.Completed = 0
	j.Successful = 0
	j.Failed = 0
	j.StartedAt = &now
	return nil
}

// RecordCombination 记录一个组合完结。completed == total 时任务转入 COMPLETED，
// 单个组合失败只增加失败计数，永不中断任务。
func (j *BacktestJob) RecordCombination(success bool) error {
	if j.Status != JobStatusRunning {
		return fmt.Errorf("cannot record combination in status %s", j.Status)
	}
	if j.Completed >= j.Total {
		return errors.New("completed counter would exceed total")
	}
	j.Completed++
	if success {
		j.Successful++
	} else {
		j.Failed++
	}
	if j.Completed == j.Total {
		now := time.Now()
		j.Status = JobStatusCompleted
		j.FinishedAt = &now
	}
	return nil
}

// Fail 任务级致命错误，RUNNING/QUEUED -> FAILED
func (j *BacktestJob) Fail(msg string) {
	if j.Status.Terminal() {
		return
	}
	now := time.Now()
	j.Status = JobStatusFailed
	j.ErrorMessage = msg
	j.FinishedAt = &now
}

// Cancel 取消任务。已在途的组合会先行完结，计数器保持不变式。
func (j *BacktestJob) Cancel() {
	if j.Status.Terminal() {
		return
	}
	now := time.Now()
	j.Status = JobStatusCancelled
	j.FinishedAt = &now
}

// ProgressPercent 完成百分比
func (j *BacktestJob) ProgressPercent() float64 {
	if j.Total == 0 {
		return 0
	}
	return float64(j.Completed) / float64(j.Total) * 100
}
