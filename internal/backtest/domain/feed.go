package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceFeed 单标的行情序列，K 线按日期严格递增，复权在构造时一次完成。
//
// 复权基点为动态选取：取不晚于回测起始日的最近一个因子（若无则取首个因子，
// 再无则取 1.0），全部因子除以该基值后逐 K 线前向携带。由此起始日价格数值
// 不变（因子 ≈ 1.0），以真实币值计算的资金配比在历史复权后仍然成立。
type PriceFeed struct {
	Code     string
	Bars     []MarketBar
	Adjusted bool
}

// NewPriceFeed 构造行情序列。adjusted 为 false 时原样透传。
func NewPriceFeed(code string, bars []MarketBar, factors []AdjustmentFactor, startDate time.Time, adjusted bool) *PriceFeed {
	feed := &PriceFeed{Code: code, Adjusted: adjusted}
	if !adjusted || len(factors) == 0 {
		feed.Bars = bars
		return feed
	}

	base := baseFactor(factors, startDate)

	// 归一化后的因子按除权日前向携带到每根 K 线
	normalized := make([]decimal.Decimal, len(factors))
	for i, f := range factors {
		normalized[i] = f.ForwardFactor.Div(base)
	}

	adjustedBars := make([]MarketBar, len(bars))
	one := decimal.NewFromInt(1)
	idx := -1
	for i, bar := range bars {
		for idx+1 < len(factors) && !factors[idx+1].ExDate.After(bar.TradeDate) {
			idx++
		}
		factor := one
		if idx >= 0 {
			factor = normalized[idx]
		}

		adjustedBars[i] = bar
		adjustedBars[i].Open = bar.Open.Mul(factor)
		adjustedBars[i].High = bar.High.Mul(factor)
		adjustedBars[i].Low = bar.Low.Mul(factor)
		adjustedBars[i].Close = bar.Close.Mul(factor)
		adjustedBars[i].PreClose = bar.PreClose.Mul(factor)
	}
	feed.Bars = adjustedBars
	return feed
}

// baseFactor 选取动态基点因子值
func baseFactor(factors []AdjustmentFactor, startDate time.Time) decimal.Decimal {
	base := decimal.Decimal{}
	for _, f := range factors {
		if f.ExDate.After(startDate) {
			break
		}
		base = f.ForwardFactor
	}
	if base.IsZero() {
		base = factors[0].ForwardFactor
	}
	if base.IsZero() {
		base = decimal.NewFromInt(1)
	}
	return base
}

// Len K 线数量
func (f *PriceFeed) Len() int {
	return len(f.Bars)
}
