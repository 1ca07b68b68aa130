package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MarketBar 单日 K 线。主键语义为 (code, trade_date)，同一标的日期严格递增且唯一。
type MarketBar struct {
	gorm.Model
	Code      string          `gorm:"column:code;type:varchar(16);not null;uniqueIndex:uk_code_date,priority:1"`
	TradeDate time.Time       `gorm:"column:trade_date;not null;uniqueIndex:uk_code_date,priority:2"`
	Open      decimal.Decimal `gorm:"column:open;type:decimal(20,4);not null"`
	High      decimal.Decimal `gorm:"column:high;type:decimal(20,4);not null"`
	Low       decimal.Decimal `gorm:"column:low;type:decimal(20,4);not null"`
	Close     decimal.Decimal `gorm:"column:close;type:decimal(20,4);not null"`
	PreClose  decimal.Decimal `gorm:"column:preclose;type:decimal(20,4);not null"`
	Volume    int64           `gorm:"column:volume;not null"`
	Amount    decimal.Decimal `gorm:"column:amount;type:decimal(24,4)"`
	Turnover  decimal.Decimal `gorm:"column:turnover;type:decimal(10,4)"`
	PctChange decimal.Decimal `gorm:"column:pct_change;type:decimal(10,4)"`
}

// TableName 表名
func (MarketBar) TableName() string {
	return "market_bars"
}

// AdjustmentFactor 复权因子，每次公司行动一行，按除权日排序
type AdjustmentFactor struct {
	gorm.Model
	Code           string          `gorm:"column:code;type:varchar(16);not null;uniqueIndex:uk_factor_code_date,priority:1"`
	ExDate         time.Time       `gorm:"column:ex_date;not null;uniqueIndex:uk_factor_code_date,priority:2"`
	ForwardFactor  decimal.Decimal `gorm:"column:forward_factor;type:decimal(20,8);not null"`
	BackwardFactor decimal.Decimal `gorm:"column:backward_factor;type:decimal(20,8);not null"`
}

// TableName 表名
func (AdjustmentFactor) TableName() string {
	return "adjustment_factors"
}

// Instrument 标的基础信息，价格限制规则需要 ST 标记与板块
type Instrument struct {
	gorm.Model
	Code  string `gorm:"column:code;type:varchar(16);uniqueIndex;not null"`
	Name  string `gorm:"column:name;type:varchar(64)"`
	Board string `gorm:"column:board;type:varchar(16)"`
	IsST  bool   `gorm:"column:is_st;not null;default:false"`
}

// TableName 表名
func (Instrument) TableName() string {
	return "instruments"
}
