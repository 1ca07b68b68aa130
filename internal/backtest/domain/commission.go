package domain

import "github.com/shopspring/decimal"

// 佣金默认参数（A 股）：佣金率 0.025%，卖出印花税 0.05%，最低佣金 5 元
const (
	DefaultCommissionRate = 0.00025
	DefaultStampDuty      = 0.0005
	DefaultMinCommission  = 5.0
)

// CommissionModel 佣金模型，值类型，无状态
type CommissionModel struct {
	Rate          decimal.Decimal
	StampDuty     decimal.Decimal
	MinCommission decimal.Decimal
}

// NewCommissionModel 创建佣金模型，rate 为空时使用默认佣金率
func NewCommissionModel(rate decimal.Decimal) CommissionModel {
	if rate.LessThanOrEqual(decimal.Zero) {
		rate = decimal.NewFromFloat(DefaultCommissionRate)
	}
	return CommissionModel{
		Rate:          rate,
		StampDuty:     decimal.NewFromFloat(DefaultStampDuty),
		MinCommission: decimal.NewFromFloat(DefaultMinCommission),
	}
}

// Calculate 计算一笔成交的费用：max(金额*佣金率, 最低佣金)，卖出另收印花税
func (m CommissionModel) Calculate(tradeValue decimal.Decimal, isSell bool) decimal.Decimal {
	commission := tradeValue.Mul(m.Rate)
	if commission.LessThan(m.MinCommission) {
		commission = m.MinCommission
	}
	if isSell {
		commission = commission.Add(tradeValue.Mul(m.StampDuty))
	}
	return commission
}
