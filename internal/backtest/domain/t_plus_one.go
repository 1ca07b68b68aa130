package domain

import "time"

// HoldingLedger T+1 持仓台账：记录每个标的最近一次买入日，
// 当日买入不得当日卖出（按自然日比较，忽略时分秒）。
type HoldingLedger struct {
	lastBuy map[string]time.Time
}

// NewHoldingLedger 创建空台账
func NewHoldingLedger() *HoldingLedger {
	return &HoldingLedger{lastBuy: make(map[string]time.Time)}
}

// RecordBuy 记录买入日期
func (l *HoldingLedger) RecordBuy(code string, date time.Time) {
	l.lastBuy[code] = truncateDay(date)
}

// CanSell 无买入记录或买入日严格早于 date 时可卖
func (l *HoldingLedger) CanSell(code string, date time.Time) bool {
	bought, ok := l.lastBuy[code]
	if !ok {
		return true
	}
	return bought.Before(truncateDay(date))
}

// Clear 清仓后移除台账记录
func (l *HoldingLedger) Clear(code string) {
	delete(l.lastBuy, code)
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
