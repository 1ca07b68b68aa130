package domain

import (
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
)

// StrategyDefinition 策略定义聚合根。
// 一经沙箱校验通过即视为不可变：参数覆盖通过 WithParams 派生新定义，
// 原定义可能同时被多个并发模拟共享，绝不原地修改。
type StrategyDefinition struct {
	gorm.Model
	StrategyID  string `gorm:"column:strategy_id;type:varchar(32);uniqueIndex;not null"`
	Name        string `gorm:"column:name;type:varchar(64);not null"`
	Source      string `gorm:"column:source;type:text;not null"`
	ContentHash string `gorm:"column:content_hash;type:char(64);index;not null"`
	Parameters  string `gorm:"column:parameters;type:json"`
	EntryPoint  string `gorm:"column:entry_point;type:varchar(64)"`
	Valid       bool   `gorm:"column:valid;not null;default:false"`
}

// TableName 表名
func (StrategyDefinition) TableName() string {
	return "strategy_definitions"
}

// NewStrategyDefinition 创建策略定义，参数以 JSON 存储
func NewStrategyDefinition(strategyID, name, source, contentHash string, params map[string]float64) *StrategyDefinition {
	def := &StrategyDefinition{
		StrategyID:  strategyID,
		Name:        name,
		Source:      source,
		ContentHash: contentHash,
	}
	if len(params) > 0 {
		if data, err := json.Marshal(params); err == nil {
			def.Parameters = string(data)
		}
	}
	return def
}

// MarkValidated 记录沙箱校验结果
func (d *StrategyDefinition) MarkValidated(entryPoint string) {
	d.Valid = true
	d.EntryPoint = entryPoint
}

// ParamsMap 解析参数映射，空参数返回空 map
func (d *StrategyDefinition) ParamsMap() (map[string]float64, error) {
	params := map[string]float64{}
	if d.Parameters == "" {
		return params, nil
	}
	if err := json.Unmarshal([]byte(d.Parameters), &params); err != nil {
		return nil, fmt.Errorf("invalid strategy parameters: %w", err)
	}
	return params, nil
}

// WithParams 派生一个带覆盖参数的新定义，原定义不变。
// 派生定义仅存在于内存中（ID 置空），参数为原默认值与覆盖值的并集。
func (d *StrategyDefinition) WithParams(overrides map[string]float64) (*StrategyDefinition, error) {
	base, err := d.ParamsMap()
	if err != nil {
		return nil, err
	}
	merged := make(map[string]float64, len(base)+len(overrides))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}

	derived := NewStrategyDefinition(d.StrategyID, d.Name, d.Source, d.ContentHash, merged)
	derived.Valid = d.Valid
	derived.EntryPoint = d.EntryPoint
	return derived, nil
}
