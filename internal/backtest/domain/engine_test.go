package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scripted 按 K 线序号回放既定意图的测试策略
type scripted struct {
	intents map[int][]OrderIntent
	onBar   func(ctx *BarContext)
}

func (s *scripted) Name() string { return "scripted" }

func (s *scripted) OnBar(ctx *BarContext) ([]OrderIntent, error) {
	if s.onBar != nil {
		s.onBar(ctx)
	}
	return s.intents[ctx.Index], nil
}

func testConfig() SimulationConfig {
	return SimulationConfig{
		InitialCapital: decimal.NewFromInt(100000),
		CommissionRate: decimal.NewFromFloat(DefaultCommissionRate),
		SlippagePct:    decimal.Zero,
		Sizing:         PositionSizing{Type: SizingPercent, Value: 95},
	}
}

func flatBars(days int, price float64) []MarketBar {
	start := day(2024, 1, 2)
	bars := make([]MarketBar, days)
	for i := range bars {
		bars[i] = bar(start.AddDate(0, 0, i), price)
	}
	return bars
}

func TestEngineBuyThenSell(t *testing.T) {
	feed := NewPriceFeed("600000", flatBars(3, 10), nil, day(2024, 1, 2), false)
	strategy := &scripted{intents: map[int][]OrderIntent{
		0: {{Side: IntentBuy}},
		1: {{Side: IntentSell}},
	}}

	engine := NewSimulationEngine(testConfig(), strategy, feed)
	outcome, err := engine.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, EngineFinished, engine.State())
	require.Len(t, outcome.Trades, 1)

	trade := outcome.Trades[0]
	// 100000 * 95% * 0.999 / 10 = 9490 股，取整手 9400
	assert.Equal(t, int64(9400), trade.Size)
	assert.Equal(t, "2024-01-02", trade.EntryDate)
	assert.Equal(t, "2024-01-03", trade.ExitDate)
	assert.Equal(t, 1, trade.BarsHeld)
	// 价格无波动，净盈亏即负的双边费用
	assert.InDelta(t, -trade.Commission, trade.NetPnL, 1e-9)
	assert.Len(t, outcome.Equity, 3)
}

func TestEngineTPlusOneBlocksSameDaySell(t *testing.T) {
	feed := NewPriceFeed("600000", flatBars(2, 10), nil, day(2024, 1, 2), false)
	strategy := &scripted{intents: map[int][]OrderIntent{
		0: {{Side: IntentBuy}, {Side: IntentSell}},
	}}

	engine := NewSimulationEngine(testConfig(), strategy, feed)
	outcome, err := engine.Run(context.Background())

	require.NoError(t, err)
	// 卖出被 T+1 拒绝，无成交记录，仓位保留到结束
	assert.Empty(t, outcome.Trades)
	last := outcome.Equity[len(outcome.Equity)-1]
	assert.Greater(t, last.Value, 90000.0)
}

func TestEngineRejectsBuyAtLimitUp(t *testing.T) {
	bars := flatBars(2, 10)
	// 开盘即涨停：昨收 10，开盘 11
	bars[0].Open = decimal.NewFromFloat(11)
	feed := NewPriceFeed("600000", bars, nil, day(2024, 1, 2), false)
	strategy := &scripted{intents: map[int][]OrderIntent{
		0: {{Side: IntentBuy}},
	}}

	engine := NewSimulationEngine(testConfig(), strategy, feed)
	outcome, err := engine.Run(context.Background())

	require.NoError(t, err)
	assert.Empty(t, outcome.Trades)
	// 意图被静默丢弃，资金原封不动
	assert.InDelta(t, 100000.0, outcome.Equity[0].Value, 1e-9)
}

func TestEngineSlippageWorsensFill(t *testing.T) {
	cfg := testConfig()
	cfg.SlippagePct = decimal.NewFromFloat(1) // 1%
	feed := NewPriceFeed("600000", flatBars(3, 10), nil, day(2024, 1, 2), false)
	strategy := &scripted{intents: map[int][]OrderIntent{
		0: {{Side: IntentBuy}},
		1: {{Side: IntentSell}},
	}}

	engine := NewSimulationEngine(cfg, strategy, feed)
	outcome, err := engine.Run(context.Background())

	require.NoError(t, err)
	require.Len(t, outcome.Trades, 1)
	// 买入上滑 10.10，卖出下滑 9.90
	assert.InDelta(t, 10.1, outcome.Trades[0].EntryPrice, 1e-9)
	assert.InDelta(t, 9.9, outcome.Trades[0].ExitPrice, 1e-9)
}

func TestEngineFixedSizing(t *testing.T) {
	cfg := testConfig()
	cfg.Sizing = PositionSizing{Type: SizingFixed, Value: 20000}
	feed := NewPriceFeed("600000", flatBars(2, 10), nil, day(2024, 1, 2), false)

	var seenPosition float64
	strategy := &scripted{
		intents: map[int][]OrderIntent{0: {{Side: IntentBuy}}},
		onBar: func(ctx *BarContext) {
			if ctx.Index == 1 {
				seenPosition = ctx.Position
			}
		},
	}

	engine := NewSimulationEngine(cfg, strategy, feed)
	_, err := engine.Run(context.Background())

	require.NoError(t, err)
	// 20000 * 0.999 / 10 = 1998 股，取整手 1900
	assert.InDelta(t, 1900.0, seenPosition, 1e-9)
}

func TestEngineRecoversStrategyPanic(t *testing.T) {
	feed := NewPriceFeed("600000", flatBars(2, 10), nil, day(2024, 1, 2), false)
	strategy := &scripted{onBar: func(ctx *BarContext) {
		panic("boom")
	}}

	engine := NewSimulationEngine(testConfig(), strategy, feed)
	outcome, err := engine.Run(context.Background())

	assert.Nil(t, outcome)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, EngineErrored, engine.State())
}

func TestEngineSingleUse(t *testing.T) {
	feed := NewPriceFeed("600000", flatBars(1, 10), nil, day(2024, 1, 2), false)
	engine := NewSimulationEngine(testConfig(), &scripted{}, feed)

	_, err := engine.Run(context.Background())
	require.NoError(t, err)

	_, err = engine.Run(context.Background())
	assert.Error(t, err)
}

func TestEngineOnBarErrorStopsSimulation(t *testing.T) {
	feed := NewPriceFeed("600000", flatBars(2, 10), nil, day(2024, 1, 2), false)
	strategy := &erroring{}

	engine := NewSimulationEngine(testConfig(), strategy, feed)
	_, err := engine.Run(context.Background())

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "600000", execErr.Code)
	assert.Equal(t, "2024-01-02", execErr.Date)
}

type erroring struct{}

func (e *erroring) Name() string { return "erroring" }

func (e *erroring) OnBar(*BarContext) ([]OrderIntent, error) {
	return nil, errors.New("indicator window not ready")
}
