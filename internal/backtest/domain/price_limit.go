package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// 涨跌停比例：科创板/创业板 20%，ST 5%，主板 10%
var (
	limitRatioWide   = decimal.NewFromFloat(0.20)
	limitRatioST     = decimal.NewFromFloat(0.05)
	limitRatioNormal = decimal.NewFromFloat(0.10)

	priceFloor = decimal.NewFromFloat(0.01)
)

// 适用 20% 涨跌幅的代码前缀
var wideBoardPrefixes = []string{"688", "300"}

// PriceLimits 当日价格限制
type PriceLimits struct {
	Upper decimal.Decimal
	Lower decimal.Decimal
}

// CanBuy 价格未触及涨停时可买
func (l PriceLimits) CanBuy(price decimal.Decimal) bool {
	return price.LessThan(l.Upper)
}

// CanSell 价格未触及跌停时可卖
func (l PriceLimits) CanSell(price decimal.Decimal) bool {
	return price.GreaterThan(l.Lower)
}

// PriceLimitChecker 涨跌停校验器，值类型，无状态
type PriceLimitChecker struct{}

// Limits 按昨收、代码与 ST 标记计算当日涨跌停价，保留两位小数，
// 跌停价不低于 0.01 元
func (PriceLimitChecker) Limits(preclose decimal.Decimal, code string, isST bool) PriceLimits {
	ratio := limitRatioNormal
	if isWideBoard(code) {
		ratio = limitRatioWide
	} else if isST {
		ratio = limitRatioST
	}

	one := decimal.NewFromInt(1)
	upper := preclose.Mul(one.Add(ratio)).Round(2)
	lower := preclose.Mul(one.Sub(ratio)).Round(2)
	if lower.LessThan(priceFloor) {
		lower = priceFloor
	}
	return PriceLimits{Upper: upper, Lower: lower}
}

func isWideBoard(code string) bool {
	for _, prefix := range wideBoardPrefixes {
		if strings.HasPrefix(code, prefix) {
			return true
		}
	}
	return false
}
