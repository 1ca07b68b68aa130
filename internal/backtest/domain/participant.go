package domain

// IntentSide 订单意图方向
type IntentSide string

const (
	IntentBuy  IntentSide = "BUY"
	IntentSell IntentSide = "SELL"
)

// OrderIntent 策略在某根 K 线上产生的订单意图。
// SizePercent 为 0 时由任务级仓位配置决定买入规模；卖出始终全仓。
type OrderIntent struct {
	Side        IntentSide
	SizePercent float64
}

// BarContext 传入策略参与者的单根 K 线上下文。
// 只读快照：策略无法通过它触达行情仓储或引擎内部状态。
type BarContext struct {
	Code      string
	Date      string
	Index     int
	Open      float64
	High      float64
	Low       float64
	Close     float64
	PreClose  float64
	Volume    float64
	Turnover  float64
	PctChange float64

	Cash       float64
	Position   float64
	EntryPrice float64
}

// StrategyParticipant 模拟参与者的固定回调接口。
// 指标状态由参与者自行基于 K 线流增量维护；引擎保证 K 线按日期
// 严格递增送达且不重放。
type StrategyParticipant interface {
	Name() string
	OnBar(ctx *BarContext) ([]OrderIntent, error)
}
