// 生成摘要：实现组合级模拟引擎，逐 K 线驱动策略参与者，
// 在涨跌停、T+1、整手与佣金规则约束下撮合订单意图并维护权益曲线。
package domain

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// EngineState 引擎状态机：INITIALIZED -> RUNNING -> FINISHED | ERRORED
type EngineState int

const (
	EngineInitialized EngineState = iota
	EngineRunning
	EngineFinished
	EngineErrored
)

// SimulationConfig 单组合模拟配置
type SimulationConfig struct {
	InitialCapital decimal.Decimal
	CommissionRate decimal.Decimal
	SlippagePct    decimal.Decimal
	Sizing         PositionSizing
	IsST           bool
}

// SimulationOutcome 模拟产出：权益曲线与成交记录
type SimulationOutcome struct {
	Equity []EquityPoint
	Trades []TradeRecord
}

// SimulationEngine 组合级模拟引擎。每个实例只服务一个 (策略, 标的) 组合，
// 行情与策略实例均为组合私有，不与并发组合共享。
type SimulationEngine struct {
	cfg         SimulationConfig
	participant StrategyParticipant
	feed        *PriceFeed
	state       EngineState

	commission CommissionModel
	sizer      LotSizer
	limits     PriceLimitChecker
	ledger     *HoldingLedger

	cash       decimal.Decimal
	position   int64
	entryPrice decimal.Decimal
	entryDate  string
	entryFees  decimal.Decimal
	entryBar   int
}

// NewSimulationEngine 创建引擎
func NewSimulationEngine(cfg SimulationConfig, participant StrategyParticipant, feed *PriceFeed) *SimulationEngine {
	return &SimulationEngine{
		cfg:         cfg,
		participant: participant,
		feed:        feed,
		state:       EngineInitialized,
		commission:  NewCommissionModel(cfg.CommissionRate),
		sizer:       NewLotSizer(),
		ledger:      NewHoldingLedger(),
		cash:        cfg.InitialCapital,
	}
}

// State 当前状态
func (e *SimulationEngine) State() EngineState {
	return e.state
}

// Run 逐 K 线执行模拟。策略回调中的 panic 会被恢复并作为 ExecutionError 返回；
// 引擎内部不做重试。取消只在组合边界生效，循环内不检查 ctx。
func (e *SimulationEngine) Run(ctx context.Context) (outcome *SimulationOutcome, err error) {
	if e.state != EngineInitialized {
		return nil, fmt.Errorf("engine already consumed (state %d)", e.state)
	}
	e.state = EngineRunning

	bars := e.feed.Bars
	result := &SimulationOutcome{
		Equity: make([]EquityPoint, 0, len(bars)),
	}

	defer func() {
		if r := recover(); r != nil {
			e.state = EngineErrored
			outcome = nil
			err = &ExecutionError{Code: e.feed.Code, Date: "", Cause: fmt.Errorf("strategy panic: %v", r)}
		}
	}()

	for i := range bars {
		bar := &bars[i]
		date := bar.TradeDate.Format("2006-01-02")

		intents, onBarErr := e.participant.OnBar(e.barContext(bar, i))
		if onBarErr != nil {
			e.state = EngineErrored
			return nil, &ExecutionError{Code: e.feed.Code, Date: date, Cause: onBarErr}
		}

		for _, intent := range intents {
			if fillErr := e.applyIntent(intent, bar, i, date, result); fillErr != nil {
				e.state = EngineErrored
				return nil, &ExecutionError{Code: e.feed.Code, Date: date, Cause: fillErr}
			}
		}

		equity := e.cash.Add(decimal.NewFromInt(e.position).Mul(bar.Close))
		result.Equity = append(result.Equity, EquityPoint{Date: date, Value: equity.InexactFloat64()})
	}

	e.state = EngineFinished
	return result, nil
}

// barContext 构造传给策略的只读上下文
func (e *SimulationEngine) barContext(bar *MarketBar, index int) *BarContext {
	return &BarContext{
		Code:       e.feed.Code,
		Date:       bar.TradeDate.Format("2006-01-02"),
		Index:      index,
		Open:       bar.Open.InexactFloat64(),
		High:       bar.High.InexactFloat64(),
		Low:        bar.Low.InexactFloat64(),
		Close:      bar.Close.InexactFloat64(),
		PreClose:   bar.PreClose.InexactFloat64(),
		Volume:     float64(bar.Volume),
		Turnover:   bar.Turnover.InexactFloat64(),
		PctChange:  bar.PctChange.InexactFloat64(),
		Cash:       e.cash.InexactFloat64(),
		Position:   float64(e.position),
		EntryPrice: e.entryPrice.InexactFloat64(),
	}
}

// applyIntent 撮合单个订单意图。规则拒绝（涨跌停、T+1、零股数）只是丢弃意图，
// 不构成错误。
func (e *SimulationEngine) applyIntent(intent OrderIntent, bar *MarketBar, index int, date string, result *SimulationOutcome) error {
	limits := e.limits.Limits(bar.PreClose, e.feed.Code, e.cfg.IsST)
	one := decimal.NewFromInt(1)
	hundred := decimal.NewFromInt(100)
	slip := e.cfg.SlippagePct.Div(hundred)

	switch intent.Side {
	case IntentBuy:
		if e.position > 0 {
			return nil
		}
		fill := bar.Open.Mul(one.Add(slip))
		if !limits.CanBuy(fill) {
			return nil
		}

		size := e.sizeBuy(intent, fill)
		if size <= 0 {
			return nil
		}

		value := fill.Mul(decimal.NewFromInt(size))
		fee := e.commission.Calculate(value, false)
		cost := value.Add(fee)
		if cost.GreaterThan(e.cash) {
			return nil
		}

		e.cash = e.cash.Sub(cost)
		e.position = size
		e.entryPrice = fill
		e.entryDate = date
		e.entryFees = fee
		e.entryBar = index
		e.ledger.RecordBuy(e.feed.Code, bar.TradeDate)

	case IntentSell:
		if e.position <= 0 {
			return nil
		}
		if !e.ledger.CanSell(e.feed.Code, bar.TradeDate) {
			return nil
		}
		fill := bar.Open.Mul(one.Sub(slip))
		if !limits.CanSell(fill) {
			return nil
		}

		size := e.position
		value := fill.Mul(decimal.NewFromInt(size))
		fee := e.commission.Calculate(value, true)
		e.cash = e.cash.Add(value.Sub(fee))

		gross := fill.Sub(e.entryPrice).Mul(decimal.NewFromInt(size))
		totalFees := e.entryFees.Add(fee)
		net := gross.Sub(totalFees)
		result.Trades = append(result.Trades, TradeRecord{
			EntryDate:  e.entryDate,
			ExitDate:   date,
			EntryPrice: e.entryPrice.InexactFloat64(),
			ExitPrice:  fill.InexactFloat64(),
			Size:       size,
			GrossPnL:   gross.InexactFloat64(),
			NetPnL:     net.InexactFloat64(),
			Commission: totalFees.InexactFloat64(),
			BarsHeld:   index - e.entryBar,
		})

		e.position = 0
		e.entryPrice = decimal.Zero
		e.entryFees = decimal.Zero
		e.ledger.Clear(e.feed.Code)

	default:
		return fmt.Errorf("unknown intent side %q", intent.Side)
	}
	return nil
}

// sizeBuy 计算买入股数：按任务仓位配置，percent 模式下策略可用
// 自身 size_percent 覆盖
func (e *SimulationEngine) sizeBuy(intent OrderIntent, price decimal.Decimal) int64 {
	sizing := e.cfg.Sizing
	switch sizing.Type {
	case SizingFixed:
		return e.sizer.SizeByValue(e.cash, decimal.NewFromFloat(sizing.Value), price)
	default:
		percent := sizing.Value
		if intent.SizePercent > 0 {
			percent = intent.SizePercent
		}
		if percent <= 0 || percent > 100 {
			percent = 95
		}
		return e.sizer.SizeByPercent(e.cash, decimal.NewFromFloat(percent), price)
	}
}
