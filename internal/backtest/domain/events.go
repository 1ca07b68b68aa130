package domain

import "context"

// EventType 事件类型
type EventType string

const (
	EventTypeProgress    EventType = "progress"
	EventTypeResult      EventType = "result"
	EventTypeLog         EventType = "log"
	EventTypeJobComplete EventType = "job_complete"
)

// JobProgressEvent 任务进度投影，在每个组合边界发布，不落库。
// 计数器更新先于携带其新值的事件发布。
type JobProgressEvent struct {
	JobID           string  `json:"job_id"`
	ProgressPercent float64 `json:"progress_percent"`
	Completed       int     `json:"completed"`
	Total           int     `json:"total"`
	Successful      int     `json:"successful"`
	Failed          int     `json:"failed"`
}

// CombinationResultEvent 组合完结摘要
type CombinationResultEvent struct {
	JobID        string  `json:"job_id"`
	StrategyID   string  `json:"strategy_id"`
	Code         string  `json:"code"`
	Status       string  `json:"status"`
	TotalReturn  float64 `json:"total_return"`
	SharpeRatio  float64 `json:"sharpe_ratio"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	TotalTrades  int     `json:"total_trades"`
	FailureKind  string  `json:"failure_kind,omitempty"`
	ErrorMessage string  `json:"error_message,omitempty"`
}

// JobLogEvent 人读日志事件
type JobLogEvent struct {
	JobID   string `json:"job_id"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// JobCompleteEvent 任务终态事件，携带最终计数
type JobCompleteEvent struct {
	JobID      string `json:"job_id"`
	Status     string `json:"status"`
	Total      int    `json:"total"`
	Completed  int    `json:"completed"`
	Successful int    `json:"successful"`
	Failed     int    `json:"failed"`
	DurationMs int64  `json:"duration_ms"`
}

// EventPublisher 事件总线发布端口。发布失败视为 SystemError（任务级致命）。
type EventPublisher interface {
	PublishProgress(ctx context.Context, event JobProgressEvent) error
	PublishResult(ctx context.Context, event CombinationResultEvent) error
	PublishLog(ctx context.Context, event JobLogEvent) error
	PublishJobComplete(ctx context.Context, event JobCompleteEvent) error
}
