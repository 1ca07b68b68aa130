package mysql

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/wyfcoding/stockbacktest/internal/backtest/domain"
	"github.com/wyfcoding/stockbacktest/pkg/metrics"
)

type marketDataRepository struct {
	db      *gorm.DB
	metrics *metrics.Metrics
}

// NewMarketDataRepository 创建行情仓储。行情表由外部数据管道灌库，
// 本服务只读。
func NewMarketDataRepository(db *gorm.DB, m *metrics.Metrics) domain.MarketDataRepository {
	return &marketDataRepository{db: db, metrics: m}
}

func (r *marketDataRepository) observe(start time.Time) {
	if r.metrics != nil {
		r.metrics.DBQueryDuration.Observe(time.Since(start).Seconds())
	}
}

// GetBars 读取区间内的日 K 线，按交易日升序
func (r *marketDataRepository) GetBars(ctx context.Context, code string, start, end time.Time) ([]domain.MarketBar, error) {
	defer r.observe(time.Now())

	var bars []domain.MarketBar
	err := r.db.WithContext(ctx).
		Where("code = ? AND trade_date >= ? AND trade_date <= ?", code, start, end).
		Order("trade_date ASC").
		Find(&bars).Error
	if err != nil {
		return nil, err
	}
	return bars, nil
}

// GetAdjustmentFactors 读取标的全部复权因子，按除权日升序
func (r *marketDataRepository) GetAdjustmentFactors(ctx context.Context, code string) ([]domain.AdjustmentFactor, error) {
	defer r.observe(time.Now())

	var factors []domain.AdjustmentFactor
	err := r.db.WithContext(ctx).
		Where("code = ?", code).
		Order("ex_date ASC").
		Find(&factors).Error
	if err != nil {
		return nil, err
	}
	return factors, nil
}

// GetInstrument 读取标的基础信息，无记录时返回 (nil, nil)
func (r *marketDataRepository) GetInstrument(ctx context.Context, code string) (*domain.Instrument, error) {
	defer r.observe(time.Now())

	var instrument domain.Instrument
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&instrument).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &instrument, nil
}
