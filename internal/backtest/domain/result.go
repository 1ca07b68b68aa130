package domain

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// ResultStatus 组合结果状态，独立于任务状态：
// 任务 COMPLETED 时允许个别结果为 FAILED。
type ResultStatus string

const (
	ResultStatusRunning ResultStatus = "RUNNING"
	ResultStatusDone    ResultStatus = "DONE"
	ResultStatusFailed  ResultStatus = "FAILED"
)

// EquityPoint 权益曲线采样点
type EquityPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// TradeRecord 一笔完整交易（开仓到清仓）
type TradeRecord struct {
	EntryDate  string  `json:"entry_date"`
	ExitDate   string  `json:"exit_date"`
	EntryPrice float64 `json:"entry_price"`
	ExitPrice  float64 `json:"exit_price"`
	Size       int64   `json:"size"`
	GrossPnL   float64 `json:"gross_pnl"`
	NetPnL     float64 `json:"net_pnl"`
	Commission float64 `json:"commission"`
	BarsHeld   int     `json:"bars_held"`
}

// BacktestResult 单个 (任务, 策略, 标的) 组合的结果。
// 组合启动时创建，完结后不再变更。
type BacktestResult struct {
	gorm.Model
	ResultID   string       `gorm:"column:result_id;type:varchar(32);uniqueIndex;not null"`
	JobID      string       `gorm:"column:job_id;type:varchar(32);index;not null"`
	StrategyID string       `gorm:"column:strategy_id;type:varchar(32);index;not null"`
	Code       string       `gorm:"column:code;type:varchar(16);not null"`
	Status     ResultStatus `gorm:"column:status;type:varchar(16);not null;default:'RUNNING'"`

	// 绩效指标
	TotalReturn      float64 `gorm:"column:total_return"`
	AnnualizedReturn float64 `gorm:"column:annualized_return"`
	MaxDrawdown      float64 `gorm:"column:max_drawdown"`
	DrawdownDays     int     `gorm:"column:drawdown_days"`
	Volatility       float64 `gorm:"column:volatility"`
	SharpeRatio      float64 `gorm:"column:sharpe_ratio"`
	WinRate          float64 `gorm:"column:win_rate"`
	ProfitFactor     float64 `gorm:"column:profit_factor"`
	TotalTrades      int     `gorm:"column:total_trades"`
	FinalEquity      float64 `gorm:"column:final_equity"`

	// 子集合以 JSON 列存储
	EquityCurve    string `gorm:"column:equity_curve;type:json"`
	Trades         string `gorm:"column:trades;type:json"`
	MonthlyReturns string `gorm:"column:monthly_returns;type:json"`

	FailureKind     string `gorm:"column:failure_kind;type:varchar(32)"`
	ErrorMessage    string `gorm:"column:error_message;type:varchar(512)"`
	ExecutionTimeMs int64  `gorm:"column:execution_time_ms"`
}

// TableName 表名
func (BacktestResult) TableName() string {
	return "backtest_results"
}

// NewBacktestResult 创建 RUNNING 状态的结果行
func NewBacktestResult(resultID, jobID, strategyID, code string) *BacktestResult {
	return &BacktestResult{
		ResultID:   resultID,
		JobID:      jobID,
		StrategyID: strategyID,
		Code:       code,
		Status:     ResultStatusRunning,
	}
}

// Finalize 写入指标与子集合并转入 DONE
func (r *BacktestResult) Finalize(m PerformanceMetrics, equity []EquityPoint, trades []TradeRecord, elapsed time.Duration) {
	r.Status = ResultStatusDone
	r.TotalReturn = m.TotalReturn
	r.AnnualizedReturn = m.AnnualizedReturn
	r.MaxDrawdown = m.MaxDrawdown
	r.DrawdownDays = m.DrawdownDays
	r.Volatility = m.Volatility
	r.SharpeRatio = m.SharpeRatio
	r.WinRate = m.WinRate
	r.ProfitFactor = m.ProfitFactor
	r.TotalTrades = m.TotalTrades
	r.FinalEquity = m.FinalEquity

	if data, err := json.Marshal(equity); err == nil {
		r.EquityCurve = string(data)
	}
	if data, err := json.Marshal(trades); err == nil {
		r.Trades = string(data)
	}
	if data, err := json.Marshal(m.MonthlyReturns); err == nil {
		r.MonthlyReturns = string(data)
	}
	r.ExecutionTimeMs = elapsed.Milliseconds()
}

// MarkFailed 记录组合级失败，消息已截断
func (r *BacktestResult) MarkFailed(kind, message string, elapsed time.Duration) {
	r.Status = ResultStatusFailed
	r.FailureKind = kind
	r.ErrorMessage = message
	r.ExecutionTimeMs = elapsed.Milliseconds()
}
