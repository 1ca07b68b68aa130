package domain

import (
	"math"
	"time"

	"github.com/montanaflynn/stats"
)

// 年化换算按 252 个交易日
const tradingDaysPerYear = 252

// PerformanceMetrics 组合绩效统计
type PerformanceMetrics struct {
	TotalReturn      float64
	AnnualizedReturn float64
	MaxDrawdown      float64
	DrawdownDays     int
	Volatility       float64
	SharpeRatio      float64
	WinRate          float64
	AvgWin           float64
	AvgLoss          float64
	ProfitFactor     float64
	TotalTrades      int
	WinningTrades    int
	LosingTrades     int
	FinalEquity      float64
	MonthlyReturns   map[string]float64
}

// ComputeMetrics 从完结的模拟产出推导绩效指标。
// riskFreeRate 为年化无风险利率（如 0.02）。
func ComputeMetrics(outcome *SimulationOutcome, initialCapital float64, riskFreeRate float64) PerformanceMetrics {
	m := PerformanceMetrics{MonthlyReturns: map[string]float64{}}
	equity := outcome.Equity
	if len(equity) == 0 || initialCapital <= 0 {
		return m
	}

	final := equity[len(equity)-1].Value
	m.FinalEquity = final
	m.TotalReturn = final/initialCapital - 1

	years := float64(len(equity)) / tradingDaysPerYear
	if years > 0 && final > 0 {
		m.AnnualizedReturn = math.Pow(final/initialCapital, 1/years) - 1
	}

	m.MaxDrawdown, m.DrawdownDays = maxDrawdown(equity)

	// 日收益率序列
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Value
		if prev > 0 {
			returns = append(returns, equity[i].Value/prev-1)
		}
	}
	if len(returns) >= 2 {
		if sd, err := stats.StandardDeviationSample(stats.Float64Data(returns)); err == nil {
			m.Volatility = sd * math.Sqrt(tradingDaysPerYear)
		}
		// 夏普比率分子取日收益算术均值的年化，与分母的样本波动率同源
		if m.Volatility > 0 {
			if avg, err := stats.Mean(stats.Float64Data(returns)); err == nil {
				m.SharpeRatio = (avg*tradingDaysPerYear - riskFreeRate) / m.Volatility
			}
		}
	}

	m.tradeStats(outcome.Trades)
	m.MonthlyReturns = monthlyReturns(equity)
	return m
}

// tradeStats 交易统计：胜率、平均盈亏与利润因子
func (m *PerformanceMetrics) tradeStats(trades []TradeRecord) {
	m.TotalTrades = len(trades)
	if len(trades) == 0 {
		return
	}

	var wins, losses []float64
	var grossProfit, grossLoss float64
	for _, t := range trades {
		if t.NetPnL > 0 {
			wins = append(wins, t.NetPnL)
			grossProfit += t.NetPnL
		} else {
			losses = append(losses, t.NetPnL)
			grossLoss += t.NetPnL
		}
	}
	m.WinningTrades = len(wins)
	m.LosingTrades = len(losses)
	m.WinRate = float64(len(wins)) / float64(len(trades))

	if len(wins) > 0 {
		if avg, err := stats.Mean(stats.Float64Data(wins)); err == nil {
			m.AvgWin = avg
		}
	}
	if len(losses) > 0 {
		if avg, err := stats.Mean(stats.Float64Data(losses)); err == nil {
			m.AvgLoss = avg
		}
	}
	// 利润因子：毛利 / |毛损|，无亏损时避免除零
	if grossLoss < 0 {
		m.ProfitFactor = grossProfit / math.Abs(grossLoss)
	} else if grossProfit > 0 {
		m.ProfitFactor = math.Inf(1)
	}
}

// maxDrawdown 峰谷扫描，返回最大回撤比例与峰到谷的自然日天数
func maxDrawdown(equity []EquityPoint) (float64, int) {
	var maxDD float64
	var days int

	peak := equity[0].Value
	peakDate := equity[0].Date
	for _, p := range equity {
		if p.Value > peak {
			peak = p.Value
			peakDate = p.Date
			continue
		}
		if peak <= 0 {
			continue
		}
		dd := (peak - p.Value) / peak
		if dd > maxDD {
			maxDD = dd
			days = daysBetween(peakDate, p.Date)
		}
	}
	return maxDD, days
}

// monthlyReturns 月度收益：取每个自然月最后一个权益值，逐月环比，
// 首月缺少前驱故不计入
func monthlyReturns(equity []EquityPoint) map[string]float64 {
	lastByMonth := map[string]float64{}
	var months []string
	for _, p := range equity {
		if len(p.Date) < 7 {
			continue
		}
		month := p.Date[:7]
		if _, seen := lastByMonth[month]; !seen {
			months = append(months, month)
		}
		lastByMonth[month] = p.Value
	}

	result := map[string]float64{}
	for i := 1; i < len(months); i++ {
		prev := lastByMonth[months[i-1]]
		if prev > 0 {
			result[months[i]] = lastByMonth[months[i]]/prev - 1
		}
	}
	return result
}

func daysBetween(from, to string) int {
	start, err1 := time.Parse("2006-01-02", from)
	end, err2 := time.Parse("2006-01-02", to)
	if err1 != nil || err2 != nil {
		return 0
	}
	return int(end.Sub(start).Hours() / 24)
}
