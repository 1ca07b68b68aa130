package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeMetricsEmptyOutcome(t *testing.T) {
	m := ComputeMetrics(&SimulationOutcome{}, 100000, 0.02)

	assert.Zero(t, m.TotalReturn)
	assert.Zero(t, m.TotalTrades)
	assert.Empty(t, m.MonthlyReturns)
}

func TestComputeMetricsTotalAndDrawdown(t *testing.T) {
	outcome := &SimulationOutcome{
		Equity: []EquityPoint{
			{Date: "2024-01-31", Value: 100},
			{Date: "2024-02-29", Value: 110},
			{Date: "2024-03-31", Value: 99},
		},
	}

	m := ComputeMetrics(outcome, 100, 0.02)

	assert.InDelta(t, -0.01, m.TotalReturn, 1e-9)
	assert.InDelta(t, 99.0, m.FinalEquity, 1e-9)
	// 回撤峰 110，谷 99
	assert.InDelta(t, 0.1, m.MaxDrawdown, 1e-9)
	assert.Equal(t, 31, m.DrawdownDays)
}

func TestComputeMetricsMonthlyReturnsSkipFirstMonth(t *testing.T) {
	outcome := &SimulationOutcome{
		Equity: []EquityPoint{
			{Date: "2024-01-15", Value: 100},
			{Date: "2024-01-31", Value: 104},
			{Date: "2024-02-15", Value: 110},
			{Date: "2024-02-29", Value: 130},
			{Date: "2024-03-29", Value: 117},
		},
	}

	m := ComputeMetrics(outcome, 100, 0.02)

	require.Len(t, m.MonthlyReturns, 2)
	assert.NotContains(t, m.MonthlyReturns, "2024-01")
	assert.InDelta(t, 0.25, m.MonthlyReturns["2024-02"], 1e-9)
	assert.InDelta(t, -0.1, m.MonthlyReturns["2024-03"], 1e-9)
}

func TestComputeMetricsTradeStats(t *testing.T) {
	outcome := &SimulationOutcome{
		Equity: []EquityPoint{{Date: "2024-01-31", Value: 100}},
		Trades: []TradeRecord{
			{NetPnL: 10},
			{NetPnL: 30},
			{NetPnL: -5},
			{NetPnL: -15},
		},
	}

	m := ComputeMetrics(outcome, 100, 0.02)

	assert.Equal(t, 4, m.TotalTrades)
	assert.Equal(t, 2, m.WinningTrades)
	assert.Equal(t, 2, m.LosingTrades)
	assert.InDelta(t, 0.5, m.WinRate, 1e-9)
	assert.InDelta(t, 20.0, m.AvgWin, 1e-9)
	assert.InDelta(t, -10.0, m.AvgLoss, 1e-9)
	assert.InDelta(t, 2.0, m.ProfitFactor, 1e-9)
}

func TestComputeMetricsProfitFactorWithoutLosses(t *testing.T) {
	outcome := &SimulationOutcome{
		Equity: []EquityPoint{{Date: "2024-01-31", Value: 100}},
		Trades: []TradeRecord{{NetPnL: 10}},
	}

	m := ComputeMetrics(outcome, 100, 0.02)

	assert.True(t, math.IsInf(m.ProfitFactor, 1))
}

func TestComputeMetricsSharpeFromMeanDailyReturn(t *testing.T) {
	// 日收益 +1% 与 -1%：均值 0，样本标准差 sqrt(0.0002)。
	// 波动率 = sqrt(0.0002) * sqrt(252) = sqrt(0.0504)，
	// 夏普 = (0*252 - 0.02) / 波动率。
	outcome := &SimulationOutcome{
		Equity: []EquityPoint{
			{Date: "2024-01-02", Value: 100},
			{Date: "2024-01-03", Value: 101},
			{Date: "2024-01-04", Value: 99.99},
		},
	}

	m := ComputeMetrics(outcome, 100, 0.02)

	wantVol := math.Sqrt(0.0504)
	assert.InDelta(t, wantVol, m.Volatility, 1e-6)
	assert.InDelta(t, -0.02/wantVol, m.SharpeRatio, 1e-6)
}

func TestComputeMetricsConstantReturnsHaveZeroVolatility(t *testing.T) {
	// 两个 10% 日收益完全相同：样本标准差为 0，夏普不计算
	outcome := &SimulationOutcome{
		Equity: []EquityPoint{
			{Date: "2024-01-02", Value: 100},
			{Date: "2024-01-03", Value: 110},
			{Date: "2024-01-04", Value: 121},
		},
	}

	m := ComputeMetrics(outcome, 100, 0.02)

	assert.Zero(t, m.Volatility)
	assert.Zero(t, m.SharpeRatio)
	assert.Greater(t, m.AnnualizedReturn, 0.0)
}
