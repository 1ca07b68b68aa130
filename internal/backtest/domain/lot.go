package domain

import "github.com/shopspring/decimal"

// RoundLot A 股整手股数
const RoundLot = 100

// LotSizer 整手股数计算器。买入按整手向下取整，卖出始终全仓清仓（允许零股）。
type LotSizer struct {
	LotSize int64
}

// NewLotSizer 创建默认 100 股整手的计算器
func NewLotSizer() LotSizer {
	return LotSizer{LotSize: RoundLot}
}

// 资金预留系数，避免费用导致资金透支
var cashBuffer = decimal.NewFromFloat(0.999)

// SizeByPercent 按可用资金百分比计算买入股数：
// floor(floor(cash * percent/100 * 0.999 / price) / lot) * lot
func (s LotSizer) SizeByPercent(cash decimal.Decimal, percent decimal.Decimal, price decimal.Decimal) int64 {
	if price.LessThanOrEqual(decimal.Zero) || cash.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	usable := cash.Mul(percent).Div(decimal.NewFromInt(100)).Mul(cashBuffer)
	rawShares := usable.Div(price).Floor()
	lots := rawShares.Div(decimal.NewFromInt(s.LotSize)).Floor()
	return lots.Mul(decimal.NewFromInt(s.LotSize)).IntPart()
}

// SizeByValue 按固定金额计算买入股数，受可用资金约束
func (s LotSizer) SizeByValue(cash decimal.Decimal, value decimal.Decimal, price decimal.Decimal) int64 {
	if value.GreaterThan(cash) {
		value = cash
	}
	if price.LessThanOrEqual(decimal.Zero) || value.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	rawShares := value.Mul(cashBuffer).Div(price).Floor()
	lots := rawShares.Div(decimal.NewFromInt(s.LotSize)).Floor()
	return lots.Mul(decimal.NewFromInt(s.LotSize)).IntPart()
}
